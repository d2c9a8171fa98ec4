// Scentmatch - Hybrid Fragrance Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scentmatch

package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	if cfg.Level != "info" || cfg.Format != "json" || !cfg.Timestamp || cfg.Caller || cfg.Instance != "" {
		t.Errorf("DefaultConfig() = %+v", cfg)
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  zerolog.Level
	}{
		{"trace", zerolog.TraceLevel},
		{"DEBUG", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"warning", zerolog.WarnLevel},
		{" error ", zerolog.ErrorLevel},
		{"off", zerolog.Disabled},
		{"nonsense", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		if got := ParseLevel(tt.input); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

// TestInitAndSetLevel mutates global state and must not run in parallel.
func TestInitAndSetLevel(t *testing.T) {
	original := Logger()
	level := zerolog.GlobalLevel()
	t.Cleanup(func() {
		mu.Lock()
		global = original
		mu.Unlock()
		zerolog.SetGlobalLevel(level)
	})

	var buf bytes.Buffer
	Init(Config{Level: "warn", Format: "json", Instance: "scentmatch-0", Output: &buf})

	Info().Msg("dropped")
	Warn().Str("component", "retrieval").Msg("kept")

	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Errorf("info entry written at warn level: %s", out)
	}
	for _, want := range []string{`"component":"retrieval"`, `"message":"kept"`, `"instance":"scentmatch-0"`} {
		if !strings.Contains(out, want) {
			t.Errorf("output %s missing %s", out, want)
		}
	}

	if !SetLevel("info") {
		t.Error("SetLevel(info) reported no change from warn")
	}
	if SetLevel("INFO") {
		t.Error("SetLevel(INFO) reported a change at info")
	}
	buf.Reset()
	Info().Msg("now visible")
	if !strings.Contains(buf.String(), "now visible") {
		t.Errorf("info entry missing after SetLevel: %q", buf.String())
	}
}
