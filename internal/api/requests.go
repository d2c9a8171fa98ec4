// Scentmatch - Hybrid Fragrance Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scentmatch

package api

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/scentmatch/internal/recommend"
	"github.com/tomtom215/scentmatch/internal/validation"
)

// ContextRequest is the declared situation of a request or event.
type ContextRequest struct {
	Season   string `json:"season,omitempty" validate:"omitempty,season"`
	Occasion string `json:"occasion,omitempty" validate:"omitempty,max=64"`
}

func (c *ContextRequest) toEngine() recommend.RequestContext {
	if c == nil {
		return recommend.RequestContext{}
	}
	return recommend.RequestContext{Season: c.Season, Occasion: c.Occasion}
}

// FiltersRequest holds the hard constraints of a recommendation request.
type FiltersRequest struct {
	ExcludeIDs      []string `json:"exclude_ids,omitempty" validate:"omitempty,max=500,dive,required,max=128"`
	Families        []string `json:"families,omitempty" validate:"omitempty,max=20,dive,required,max=64"`
	ExcludeFamilies []string `json:"exclude_families,omitempty" validate:"omitempty,max=20,dive,required,max=64"`
	Seasons         []string `json:"seasons,omitempty" validate:"omitempty,max=4,dive,season"`
	Brands          []string `json:"brands,omitempty" validate:"omitempty,max=50,dive,required,max=128"`
	MinRating       float64  `json:"min_rating,omitempty" validate:"gte=0,lte=5"`
	Expression      string   `json:"expression,omitempty" validate:"omitempty,max=1024"`
}

// RecommendationRequest is the body of POST /api/v1/recommendations. The
// GET route fills the same struct from the path and query.
type RecommendationRequest struct {
	UserID              string         `json:"user_id" validate:"required,max=128"`
	MaxResults          int            `json:"max_results,omitempty" validate:"gte=0,lte=200"`
	IncludeExplanations bool           `json:"include_explanations,omitempty"`
	Context             ContextRequest `json:"context"`
	Filters             FiltersRequest `json:"filters"`
	Experiment          string         `json:"experiment,omitempty" validate:"omitempty,max=64"`
	SkipCache           bool           `json:"skip_cache,omitempty"`
}

// Options converts the request into engine options.
func (req *RecommendationRequest) Options() recommend.Options {
	return recommend.Options{
		MaxResults:          req.MaxResults,
		IncludeExplanations: req.IncludeExplanations,
		Context:             req.Context.toEngine(),
		Filters: recommend.Filters{
			ExcludeIDs:      req.Filters.ExcludeIDs,
			Families:        req.Filters.Families,
			ExcludeFamilies: req.Filters.ExcludeFamilies,
			Seasons:         req.Filters.Seasons,
			Brands:          req.Filters.Brands,
			MinRating:       req.Filters.MinRating,
			Expression:      req.Filters.Expression,
		},
		Experiment: req.Experiment,
		SkipCache:  req.SkipCache,
	}
}

// FeedbackRequest is one interaction event as submitted by a client.
type FeedbackRequest struct {
	ID        string          `json:"id,omitempty" validate:"omitempty,max=128"`
	UserID    string          `json:"user_id" validate:"required,max=128"`
	ItemID    string          `json:"item_id" validate:"required,max=128"`
	Type      string          `json:"type" validate:"required,interaction_type"`
	Strength  float64         `json:"strength,omitempty" validate:"gte=0,lte=5"`
	Timestamp *time.Time      `json:"timestamp,omitempty"`
	Context   *ContextRequest `json:"context,omitempty"`
}

// Event converts the request into an engine event. A missing timestamp
// stays zero and is stamped by the engine.
func (req *FeedbackRequest) Event() recommend.InteractionEvent {
	ev := recommend.InteractionEvent{
		ID:       req.ID,
		UserID:   req.UserID,
		ItemID:   req.ItemID,
		Type:     recommend.InteractionType(req.Type),
		Strength: req.Strength,
	}
	if req.Timestamp != nil {
		ev.Timestamp = req.Timestamp.UTC()
	}
	if req.Context != nil {
		rc := req.Context.toEngine()
		ev.Context = &rc
	}
	return ev
}

// BatchFeedbackRequest is the body of POST /api/v1/feedback/batch.
type BatchFeedbackRequest struct {
	Events []FeedbackRequest `json:"events" validate:"required,min=1,dive"`
}

// decodeJSON reads a JSON body into dst and validates it. Unknown fields
// are rejected so typos in option names do not pass silently.
func decodeJSON(r *http.Request, dst any) error {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			return err
		}
		return fmt.Errorf("%w: read body: %v", errBadRequest, err)
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: invalid JSON body: %v", errBadRequest, err)
	}
	return validate(dst)
}

// validate returns a *validation.RequestValidationError or nil.
func validate(s any) error {
	if verr := validation.ValidateStruct(s); verr != nil {
		return verr
	}
	return nil
}

// recommendationFromQuery builds a request from GET parameters.
func recommendationFromQuery(userID string, q url.Values) (*RecommendationRequest, error) {
	req := &RecommendationRequest{
		UserID:     userID,
		Experiment: q.Get("experiment"),
		Context: ContextRequest{
			Season:   q.Get("season"),
			Occasion: q.Get("occasion"),
		},
		Filters: FiltersRequest{
			ExcludeIDs:      splitList(q["exclude"]),
			Families:        splitList(q["family"]),
			ExcludeFamilies: splitList(q["exclude_family"]),
			Seasons:         splitList(q["filter_season"]),
			Brands:          splitList(q["brand"]),
			Expression:      q.Get("filter"),
		},
	}

	var err error
	if req.MaxResults, err = intParam(q, "limit"); err != nil {
		return nil, err
	}
	if req.Filters.MinRating, err = floatParam(q, "min_rating"); err != nil {
		return nil, err
	}
	if req.IncludeExplanations, err = boolParam(q, "explain"); err != nil {
		return nil, err
	}
	if req.SkipCache, err = boolParam(q, "skip_cache"); err != nil {
		return nil, err
	}
	if err := validate(req); err != nil {
		return nil, err
	}
	return req, nil
}

// splitList flattens repeated and comma separated values.
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func intParam(q url.Values, name string) (int, error) {
	raw := q.Get(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", errBadRequest, name)
	}
	return v, nil
}

func floatParam(q url.Values, name string) (float64, error) {
	raw := q.Get(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be a number", errBadRequest, name)
	}
	return v, nil
}

func boolParam(q url.Values, name string) (bool, error) {
	raw := q.Get(name)
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%w: %s must be true or false", errBadRequest, name)
	}
	return v, nil
}

// windowParam parses the quality window. "all" and "0" mean every
// retained list.
func windowParam(q url.Values, def time.Duration) (time.Duration, error) {
	raw := q.Get("window")
	switch raw {
	case "":
		return def, nil
	case "all", "0":
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("%w: window must be a positive duration such as 24h", errBadRequest)
	}
	return d, nil
}
