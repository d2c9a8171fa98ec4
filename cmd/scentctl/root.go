// Scentmatch - Hybrid Fragrance Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scentmatch

package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
)

const (
	defaultServer = "http://127.0.0.1:8080"
	serverEnvVar  = "SCENTCTL_SERVER"
)

var (
	serverURL  string
	timeout    time.Duration
	noColor    bool
	jsonOutput bool
)

var rootCmd = &cobra.Command{
	Use:           "scentctl",
	Short:         "Query and train a Scentmatch recommendation server",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.SetVersionTemplate(versionString() + "\n")

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&serverURL, "server", envOr(serverEnvVar, defaultServer), "server base URL")
	flags.DurationVar(&timeout, "timeout", 10*time.Second, "request timeout")
	flags.BoolVar(&noColor, "no-color", os.Getenv("NO_COLOR") != "", "disable colored output")
	flags.BoolVar(&jsonOutput, "json", false, "print raw JSON responses")

	rootCmd.AddCommand(recommendCmd, explainCmd, feedbackCmd, stateCmd, qualityCmd, statsCmd, healthCmd)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
