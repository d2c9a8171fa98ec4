// Scentmatch - Hybrid Fragrance Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scentmatch

package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/goccy/go-json"
)

// apiClient calls the /api/v1 routes of a Scentmatch server.
type apiClient struct {
	baseURL    string
	httpClient *http.Client
}

// newAPIClient builds a client from the global flags.
func newAPIClient() (*apiClient, error) {
	base := strings.TrimRight(serverURL, "/")
	u, err := url.Parse(base)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid --server %q: want a URL such as %s", serverURL, defaultServer)
	}
	return &apiClient{
		baseURL:    base,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// envelope is the response body of every API route.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *apiError       `json:"error"`
}

// apiError is a non-2xx response.
type apiError struct {
	Status  int             `json:"-"`
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Details json.RawMessage `json:"details,omitempty"`
}

func (e *apiError) Error() string {
	if len(e.Details) > 0 && string(e.Details) != "null" {
		return fmt.Sprintf("%s (%d): %s %s", e.Code, e.Status, e.Message, e.Details)
	}
	return fmt.Sprintf("%s (%d): %s", e.Code, e.Status, e.Message)
}

func (c *apiClient) do(ctx context.Context, method, path string, body any) ([]byte, http.Header, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, nil, fmt.Errorf("marshalling request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("server not reachable at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("reading response: %w", err)
	}
	return raw, resp.Header, checkStatus(resp.StatusCode, raw)
}

// checkStatus turns an error envelope into an *apiError.
func checkStatus(status int, raw []byte) error {
	if status < 400 {
		return nil
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err == nil && env.Error != nil {
		env.Error.Status = status
		return env.Error
	}
	return &apiError{Status: status, Code: http.StatusText(status), Message: strings.TrimSpace(string(raw))}
}

// call performs a request and decodes the envelope's data into out.
func (c *apiClient) call(ctx context.Context, method, path string, body, out any) (http.Header, error) {
	raw, header, err := c.do(ctx, method, path, body)
	if err != nil {
		return header, err
	}
	if out == nil {
		return header, nil
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return header, fmt.Errorf("decoding response: %w", err)
	}
	if !env.Success {
		return header, errors.New("server reported failure without an error body")
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return header, fmt.Errorf("decoding response data: %w", err)
	}
	return header, nil
}

// probe calls a health route, whose body is not an envelope.
func (c *apiClient) probe(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, http.NoBody)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("server not reachable at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}
	if resp.StatusCode >= 400 {
		return &apiError{Status: resp.StatusCode, Code: http.StatusText(resp.StatusCode), Message: path + " failed"}
	}
	return nil
}
