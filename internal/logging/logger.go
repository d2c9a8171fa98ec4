// Scentmatch - Hybrid Fragrance Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scentmatch

package logging

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Config holds logging configuration.
type Config struct {
	// Level is the minimum level: trace, debug, info, warn, error, fatal
	// or disabled. It is the one logging setting that hot-reloads.
	Level string `koanf:"level" json:"level" validate:"omitempty,oneof=trace debug info warn warning error fatal panic disabled"`

	// Format is json for shipping or console for a terminal.
	Format string `koanf:"format" json:"format" validate:"omitempty,oneof=json console"`

	// Caller adds file:line to every entry.
	Caller bool `koanf:"caller" json:"caller"`

	// Timestamp adds the time field.
	Timestamp bool `koanf:"timestamp" json:"timestamp"`

	// Instance is added to every entry as "instance" when set, so logs of
	// several replicas can be told apart.
	Instance string `koanf:"instance" json:"instance"`

	Output io.Writer `koanf:"-" json:"-"`
}

// DefaultConfig logs JSON at info level to stderr.
func DefaultConfig() Config {
	return Config{
		Level:     "info",
		Format:    "json",
		Timestamp: true,
		Output:    os.Stderr,
	}
}

var (
	mu     sync.RWMutex
	global zerolog.Logger
)

//nolint:gochecknoinits // packages log before main calls Init
func init() {
	cfg := DefaultConfig()
	if os.Getenv("SCENTMATCH_QUIET_LOGS") == "1" {
		cfg.Level = "fatal"
	}
	global = build(cfg)
}

// Init replaces the global logger. Calling it again reconfigures.
func Init(cfg Config) {
	l := build(cfg)
	mu.Lock()
	global = l
	mu.Unlock()
}

func build(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(ParseLevel(cfg.Level))
	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.TimestampFieldName = "time"
	zerolog.MessageFieldName = "message"

	var w io.Writer = os.Stderr
	if cfg.Output != nil {
		w = cfg.Output
	}
	if cfg.Format == "console" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}
	}

	zctx := zerolog.New(w).With()
	if cfg.Timestamp {
		zctx = zctx.Timestamp()
	}
	if cfg.Caller {
		zctx = zctx.Caller()
	}
	if cfg.Instance != "" {
		zctx = zctx.Str("instance", cfg.Instance)
	}
	return zctx.Logger()
}

// ParseLevel maps a level name to zerolog. Unknown names are info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	case "panic":
		return zerolog.PanicLevel
	case "disabled", "off":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

// SetLevel changes the global level of a running process and reports
// whether it changed.
func SetLevel(level string) bool {
	next := ParseLevel(level)
	if zerolog.GlobalLevel() == next {
		return false
	}
	zerolog.SetGlobalLevel(next)
	return true
}

// Logger returns the global logger. Components derive their own from it
// with .With().Str("component", ...).
func Logger() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return global
}

func Info() *zerolog.Event {
	l := Logger()
	return l.Info()
}

func Warn() *zerolog.Event {
	l := Logger()
	return l.Warn()
}

func Error() *zerolog.Event {
	l := Logger()
	return l.Error()
}

// Fatal logs and exits with status 1.
func Fatal() *zerolog.Event {
	l := Logger()
	return l.Fatal()
}
