// Scentmatch - Hybrid Fragrance Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scentmatch

package middleware

import (
	"compress/gzip"
	"io"
	"net/http"
	"strings"
	"sync"
)

type gzipResponseWriter struct {
	http.ResponseWriter
	gz          *gzip.Writer
	wroteHeader bool
}

func (w *gzipResponseWriter) WriteHeader(status int) {
	if !w.wroteHeader {
		w.wroteHeader = true
		h := w.Header()
		h.Del("Content-Length")
		h.Set("Content-Encoding", "gzip")
		h.Add("Vary", "Accept-Encoding")
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *gzipResponseWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	return w.gz.Write(b)
}

var gzipWriterPool = sync.Pool{
	New: func() any {
		return gzip.NewWriter(io.Discard)
	},
}

// Gzip compresses responses for clients that accept gzip. Responses without
// a body (204, 304 and HEAD) are passed through untouched.
func Gzip(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead || !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
			next.ServeHTTP(w, r)
			return
		}

		gz, _ := gzipWriterPool.Get().(*gzip.Writer)
		gz.Reset(w)
		gzw := &gzipResponseWriter{ResponseWriter: w, gz: gz}
		defer func() {
			if gzw.wroteHeader {
				_ = gz.Close()
			}
			gzipWriterPool.Put(gz)
		}()

		next.ServeHTTP(&noBodyAware{gzw: gzw}, r)
	})
}

// noBodyAware skips compression for status codes that forbid a body.
type noBodyAware struct {
	gzw   *gzipResponseWriter
	plain bool
}

func (w *noBodyAware) Header() http.Header {
	return w.gzw.Header()
}

func (w *noBodyAware) WriteHeader(status int) {
	if status == http.StatusNoContent || status == http.StatusNotModified {
		w.plain = true
		w.gzw.ResponseWriter.WriteHeader(status)
		return
	}
	w.gzw.WriteHeader(status)
}

func (w *noBodyAware) Write(b []byte) (int, error) {
	if w.plain {
		return w.gzw.ResponseWriter.Write(b)
	}
	return w.gzw.Write(b)
}
