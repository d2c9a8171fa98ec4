// Scentmatch - Hybrid Fragrance Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scentmatch

// Command scentctl talks to a running Scentmatch server.
//
//	scentctl recommend alice --limit 5 --season winter --explain
//	scentctl explain alice bois-noir
//	scentctl feedback send alice bois-noir rate --strength 5
//	scentctl feedback import events.yaml
//	scentctl quality --window 24h
//
// The server address comes from --server, then SCENTCTL_SERVER, then
// http://127.0.0.1:8080.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		printError("%v", err)
		os.Exit(1)
	}
}

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func versionString() string {
	return fmt.Sprintf("scentctl %s", version)
}
