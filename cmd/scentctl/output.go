// Scentmatch - Hybrid Fragrance Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scentmatch

package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/goccy/go-json"

	"github.com/tomtom215/scentmatch/internal/recommend"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
)

func colorize(color, text string) string {
	if noColor {
		return text
	}
	return color + text + colorReset
}

func printSuccess(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorGreen, "✓ "+msg))
}

func printError(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorRed, "✗ "+msg))
}

func printWarning(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorYellow, "⚠ "+msg))
}

func printStep(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorCyan, "→ "+msg))
}

func printStatus(w io.Writer, label, format string, args ...any) {
	val := fmt.Sprintf(format, args...)
	fmt.Fprintf(w, "  %s %s\n", colorize(colorBold, label+":"), val)
}

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func newTable(w io.Writer, header string) *tabwriter.Writer {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, header)
	return tw
}

// printCandidates writes one row per item. Explanations, when present,
// follow the row they belong to.
func printCandidates(w io.Writer, items []recommend.ScoredCandidate) error {
	tw := newTable(w, "#\tITEM\tNAME\tBRAND\tFAMILIES\tSCORE\tCONTENT\tCOLLAB\tCONTEXT")
	for i, c := range items {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%.3f\t%.3f\t%.3f\t%.3f\n",
			i+1, c.ItemID, c.Item.Name, c.Item.Brand, strings.Join(c.Item.Families, ","),
			c.CombinedScore, c.ContentScore, c.CollaborativeScore, c.ContextualScore)
		if c.Explanation != nil {
			fmt.Fprintf(tw, "\t\t↳ %s\t\t\t\t\t\t\n", c.Explanation.PrimaryReason)
		}
	}
	return tw.Flush()
}

func printExplanation(w io.Writer, exp *recommend.Explanation) error {
	printStatus(w, "Item", "%s", exp.ItemID)
	printStatus(w, "Reason", "%s", exp.PrimaryReason)
	printStatus(w, "Confidence", "%.2f", exp.Confidence)
	if exp.ExplorationFlag {
		printStatus(w, "Exploration", "%s", colorize(colorYellow, "yes"))
	}
	if len(exp.Factors) == 0 {
		return nil
	}
	fmt.Fprintln(w)
	tw := newTable(w, "FACTOR\tWEIGHT\tCONFIDENCE\tDESCRIPTION")
	for _, f := range exp.Factors {
		fmt.Fprintf(tw, "%s\t%.3f\t%.2f\t%s\n", f.Type, f.Weight, f.Confidence, f.Description)
	}
	return tw.Flush()
}
