// Scentmatch - Hybrid Fragrance Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scentmatch

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tomtom215/scentmatch/internal/api"
	"github.com/tomtom215/scentmatch/internal/recommend"
)

// importBatchSize stays below the server's default batch limit.
const importBatchSize = 200

// --- recommend ---

// recommendOptions mirrors the query parameters of
// GET /api/v1/users/{userID}/recommendations.
type recommendOptions struct {
	Limit           int
	Season          string
	Occasion        string
	Families        []string
	ExcludeFamilies []string
	FilterSeasons   []string
	Brands          []string
	Exclude         []string
	MinRating       float64
	Filter          string
	Explain         bool
	Experiment      string
	SkipCache       bool
}

func (o recommendOptions) query() url.Values {
	q := url.Values{}
	set := func(key, val string) {
		if val != "" {
			q.Set(key, val)
		}
	}
	list := func(key string, vals []string) {
		if len(vals) > 0 {
			q.Set(key, strings.Join(vals, ","))
		}
	}
	if o.Limit > 0 {
		q.Set("limit", strconv.Itoa(o.Limit))
	}
	set("season", o.Season)
	set("occasion", o.Occasion)
	list("family", o.Families)
	list("exclude_family", o.ExcludeFamilies)
	list("filter_season", o.FilterSeasons)
	list("brand", o.Brands)
	list("exclude", o.Exclude)
	if o.MinRating > 0 {
		q.Set("min_rating", strconv.FormatFloat(o.MinRating, 'f', -1, 64))
	}
	set("filter", o.Filter)
	set("experiment", o.Experiment)
	if o.Explain {
		q.Set("explain", "true")
	}
	if o.SkipCache {
		q.Set("skip_cache", "true")
	}
	return q
}

var recommendCmd = &cobra.Command{
	Use:   "recommend <user>",
	Short: "Show recommendations for a user",
	Long: `Show recommendations for a user.

Examples:
  scentctl recommend alice
  scentctl recommend alice --limit 5 --season winter --occasion evening
  scentctl recommend alice --family woody,amber --exclude-family gourmand
  scentctl recommend alice --filter 'item.rating_average >= 4.0' --explain`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f := cmd.Flags()
		var opts recommendOptions
		opts.Limit, _ = f.GetInt("limit")
		opts.Season, _ = f.GetString("season")
		opts.Occasion, _ = f.GetString("occasion")
		opts.Families, _ = f.GetStringSlice("family")
		opts.ExcludeFamilies, _ = f.GetStringSlice("exclude-family")
		opts.FilterSeasons, _ = f.GetStringSlice("only-season")
		opts.Brands, _ = f.GetStringSlice("brand")
		opts.Exclude, _ = f.GetStringSlice("exclude")
		opts.MinRating, _ = f.GetFloat64("min-rating")
		opts.Filter, _ = f.GetString("filter")
		opts.Explain, _ = f.GetBool("explain")
		opts.Experiment, _ = f.GetString("experiment")
		opts.SkipCache, _ = f.GetBool("skip-cache")
		sections, _ := f.GetBool("sections")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		return runRecommend(cmd.Context(), client, cmd.OutOrStdout(), args[0], opts, sections)
	},
}

func init() {
	f := recommendCmd.Flags()
	f.Int("limit", 0, "maximum number of items (server default when 0)")
	f.String("season", "", "current season: spring, summer, autumn or winter")
	f.String("occasion", "", "current occasion, e.g. office or evening")
	f.StringSlice("family", nil, "only these scent families")
	f.StringSlice("exclude-family", nil, "never these scent families")
	f.StringSlice("only-season", nil, "only items suited to these seasons")
	f.StringSlice("brand", nil, "only these brands")
	f.StringSlice("exclude", nil, "item IDs to leave out")
	f.Float64("min-rating", 0, "minimum average rating")
	f.String("filter", "", "filter expression evaluated per item")
	f.Bool("explain", false, "include an explanation for every item")
	f.String("experiment", "", "force an experiment variant")
	f.Bool("skip-cache", false, "bypass the result cache")
	f.Bool("sections", false, "also print the themed sections")
}

func runRecommend(ctx context.Context, client *apiClient, w io.Writer, userID string, opts recommendOptions, sections bool) error {
	path := "/api/v1/users/" + url.PathEscape(userID) + "/recommendations"
	if q := opts.query(); len(q) > 0 {
		path += "?" + q.Encode()
	}

	var res recommend.RecommendationResult
	if _, err := client.call(ctx, http.MethodGet, path, nil, &res); err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(w, res)
	}

	md := res.Metadata
	fmt.Fprintf(w, "%s %s\n", colorize(colorBold, "Recommendations for"), res.UserID)
	printStatus(w, "Request", "%s (%s, %s)", md.RequestID, md.AlgorithmVersion, md.ProcessingTime)
	if md.Experiment != "" {
		printStatus(w, "Experiment", "%s", md.Experiment)
	}
	printStatus(w, "Confidence", "%.2f", md.UserConfidence)
	if md.ColdStart {
		printStatus(w, "Cold start", "%s", colorize(colorYellow, "yes"))
	}
	if md.CacheHit {
		printStatus(w, "Cache", "hit")
	}
	if md.Degraded {
		printStatus(w, "Degraded", "%s", colorize(colorRed, md.FallbackReason))
	}
	fmt.Fprintln(w)

	if md.Empty || len(res.Items) == 0 {
		fmt.Fprintln(w, "No items matched.")
		return nil
	}
	if err := printCandidates(w, res.Items); err != nil {
		return err
	}
	if !sections {
		return nil
	}

	names := make([]string, 0, len(res.Sections))
	for name := range res.Sections {
		names = append(names, string(name))
	}
	sort.Strings(names)
	for _, name := range names {
		items := res.Sections[recommend.SectionName(name)]
		fmt.Fprintf(w, "\n%s (%d)\n", colorize(colorCyan, name), len(items))
		if len(items) == 0 {
			continue
		}
		if err := printCandidates(w, items); err != nil {
			return err
		}
	}
	return nil
}

// --- explain ---

var explainCmd = &cobra.Command{
	Use:   "explain <user> <item>",
	Short: "Explain why an item is recommended to a user",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		season, _ := cmd.Flags().GetString("season")
		occasion, _ := cmd.Flags().GetString("occasion")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		return runExplain(cmd.Context(), client, cmd.OutOrStdout(), args[0], args[1],
			recommend.RequestContext{Season: season, Occasion: occasion})
	},
}

func init() {
	explainCmd.Flags().String("season", "", "current season")
	explainCmd.Flags().String("occasion", "", "current occasion")
}

func runExplain(ctx context.Context, client *apiClient, w io.Writer, userID, itemID string, rc recommend.RequestContext) error {
	path := "/api/v1/users/" + url.PathEscape(userID) + "/items/" + url.PathEscape(itemID) + "/explanation"
	q := url.Values{}
	if rc.Season != "" {
		q.Set("season", rc.Season)
	}
	if rc.Occasion != "" {
		q.Set("occasion", rc.Occasion)
	}
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var exp recommend.Explanation
	if _, err := client.call(ctx, http.MethodGet, path, nil, &exp); err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(w, exp)
	}
	return printExplanation(w, &exp)
}

// --- feedback ---

var feedbackCmd = &cobra.Command{
	Use:   "feedback",
	Short: "Send interaction events",
}

var feedbackSendCmd = &cobra.Command{
	Use:   "send <user> <item> <type>",
	Short: "Send one interaction event",
	Long: `Send one interaction event.

Types: view, rate, collection_add, sample_request, dislike.

Examples:
  scentctl feedback send alice bois-noir view
  scentctl feedback send alice bois-noir rate --strength 4.5
  scentctl feedback send alice aqua-fresca dislike --season summer`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		f := cmd.Flags()
		req := api.FeedbackRequest{UserID: args[0], ItemID: args[1], Type: args[2]}
		req.ID, _ = f.GetString("id")
		req.Strength, _ = f.GetFloat64("strength")
		season, _ := f.GetString("season")
		occasion, _ := f.GetString("occasion")
		if season != "" || occasion != "" {
			req.Context = &api.ContextRequest{Season: season, Occasion: occasion}
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		return runFeedbackSend(cmd.Context(), client, cmd.OutOrStdout(), &req)
	},
}

var feedbackImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Send interaction events from a YAML or JSON file",
	Long: `Send interaction events from a YAML or JSON file.

The file holds either a list of events or an object with an "events" list:

  - user_id: alice
    item_id: bois-noir
    type: rate
    strength: 5
    timestamp: 2026-03-01T18:30:00Z
    context: {season: winter}

Use "-" to read from stdin.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		size, _ := cmd.Flags().GetInt("batch-size")

		var (
			data []byte
			err  error
		)
		if args[0] == "-" {
			data, err = io.ReadAll(cmd.InOrStdin())
		} else {
			data, err = os.ReadFile(args[0])
		}
		if err != nil {
			return fmt.Errorf("reading events: %w", err)
		}

		events, err := parseEvents(data)
		if err != nil {
			return err
		}
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		return runFeedbackImport(cmd.Context(), client, cmd.OutOrStdout(), events, size)
	},
}

func init() {
	feedbackSendCmd.Flags().String("id", "", "event ID for de-duplication (generated when empty)")
	feedbackSendCmd.Flags().Float64("strength", 0, "rating in [1,5] for rate events")
	feedbackSendCmd.Flags().String("season", "", "season the interaction happened in")
	feedbackSendCmd.Flags().String("occasion", "", "occasion the interaction happened in")

	feedbackImportCmd.Flags().Int("batch-size", importBatchSize, "events per request")

	feedbackCmd.AddCommand(feedbackSendCmd, feedbackImportCmd)
}

func runFeedbackSend(ctx context.Context, client *apiClient, w io.Writer, req *api.FeedbackRequest) error {
	var accepted api.FeedbackAccepted
	if _, err := client.call(ctx, http.MethodPost, "/api/v1/feedback", req, &accepted); err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(w, accepted)
	}
	printSuccess("Accepted %s for %s on %s", req.Type, req.UserID, req.ItemID)
	printStatus(w, "Event", "%s", accepted.EventID)
	return nil
}

// fileEvent is one event in an import file.
type fileEvent struct {
	ID        string  `yaml:"id"`
	UserID    string  `yaml:"user_id"`
	ItemID    string  `yaml:"item_id"`
	Type      string  `yaml:"type"`
	Strength  float64 `yaml:"strength"`
	Timestamp string  `yaml:"timestamp"`
	Context   *struct {
		Season   string `yaml:"season"`
		Occasion string `yaml:"occasion"`
	} `yaml:"context"`
}

func (e *fileEvent) request() (api.FeedbackRequest, error) {
	req := api.FeedbackRequest{
		ID:       e.ID,
		UserID:   e.UserID,
		ItemID:   e.ItemID,
		Type:     e.Type,
		Strength: e.Strength,
	}
	if e.Timestamp != "" {
		ts, err := time.Parse(time.RFC3339, e.Timestamp)
		if err != nil {
			return req, fmt.Errorf("timestamp %q is not RFC 3339", e.Timestamp)
		}
		req.Timestamp = &ts
	}
	if e.Context != nil {
		req.Context = &api.ContextRequest{Season: e.Context.Season, Occasion: e.Context.Occasion}
	}
	return req, nil
}

// parseEvents accepts a bare list or {events: [...]}. JSON parses as YAML.
func parseEvents(data []byte) ([]api.FeedbackRequest, error) {
	var list []fileEvent
	if err := yaml.Unmarshal(data, &list); err != nil {
		var doc struct {
			Events []fileEvent `yaml:"events"`
		}
		if docErr := yaml.Unmarshal(data, &doc); docErr != nil {
			return nil, fmt.Errorf("parsing events: %w", err)
		}
		list = doc.Events
	}
	if len(list) == 0 {
		return nil, errors.New("no events in file")
	}

	out := make([]api.FeedbackRequest, len(list))
	for i := range list {
		req, err := list[i].request()
		if err != nil {
			return nil, fmt.Errorf("event %d: %w", i+1, err)
		}
		out[i] = req
	}
	return out, nil
}

// importSummary totals the results of a batch import.
type importSummary struct {
	Sent       int      `json:"sent"`
	Updated    int      `json:"preference_updated"`
	Duplicates int      `json:"duplicates"`
	Shifts     int      `json:"shifts_detected"`
	Errors     []string `json:"errors,omitempty"`
}

func runFeedbackImport(ctx context.Context, client *apiClient, w io.Writer, events []api.FeedbackRequest, batchSize int) error {
	if batchSize <= 0 {
		batchSize = importBatchSize
	}

	var sum importSummary
	for start := 0; start < len(events); start += batchSize {
		end := min(start+batchSize, len(events))
		if !jsonOutput {
			printStep("Sending events %d-%d of %d", start+1, end, len(events))
		}

		var resp api.BatchFeedbackResponse
		body := api.BatchFeedbackRequest{Events: events[start:end]}
		if _, err := client.call(ctx, http.MethodPost, "/api/v1/feedback/batch", body, &resp); err != nil {
			return fmt.Errorf("batch starting at event %d: %w", start+1, err)
		}
		sum.Sent += end - start
		for _, r := range resp.Results {
			if r.PreferenceUpdated {
				sum.Updated++
			}
			if r.Duplicate {
				sum.Duplicates++
			}
			if r.ShiftDetected {
				sum.Shifts++
			}
		}
		if resp.Error != "" {
			sum.Errors = append(sum.Errors, resp.Error)
		}
	}

	if jsonOutput {
		return printJSON(w, sum)
	}
	printStatus(w, "Sent", "%d", sum.Sent)
	printStatus(w, "Preference updates", "%d", sum.Updated)
	printStatus(w, "Duplicates", "%d", sum.Duplicates)
	printStatus(w, "Taste shifts", "%d", sum.Shifts)
	for _, e := range sum.Errors {
		printWarning("%s", e)
	}
	if len(sum.Errors) > 0 {
		return fmt.Errorf("%d batch(es) reported errors", len(sum.Errors))
	}
	printSuccess("Imported %d events", sum.Sent)
	return nil
}

// --- state ---

var stateCmd = &cobra.Command{
	Use:   "state <user>",
	Short: "Show the learning state of a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		var resp api.LearnerStateResponse
		path := "/api/v1/users/" + url.PathEscape(args[0]) + "/state"
		if _, err := client.call(cmd.Context(), http.MethodGet, path, nil, &resp); err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), resp)
		}
		printStatus(cmd.OutOrStdout(), resp.UserID, "%s", resp.State)
		return nil
	},
}

// --- quality ---

var qualityCmd = &cobra.Command{
	Use:   "quality",
	Short: "Show offline quality metrics of recent recommendations",
	Long: `Show offline quality metrics of recent recommendations.

The window is a duration such as 1h or 7d, or "all" for every retained list.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		window, _ := cmd.Flags().GetString("window")
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		return runQuality(cmd.Context(), client, cmd.OutOrStdout(), window)
	},
}

func init() {
	qualityCmd.Flags().String("window", "", "evaluation window (server default when empty)")
}

func runQuality(ctx context.Context, client *apiClient, w io.Writer, window string) error {
	path := "/api/v1/quality"
	if window != "" {
		path += "?" + url.Values{"window": {window}}.Encode()
	}
	var report recommend.QualityReport
	if _, err := client.call(ctx, http.MethodGet, path, nil, &report); err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(w, report)
	}

	printQuality(w, "all", &report)
	names := make([]string, 0, len(report.Variants))
	for name := range report.Variants {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintln(w)
		printQuality(w, name, report.Variants[name])
	}
	return nil
}

func printQuality(w io.Writer, label string, r *recommend.QualityReport) {
	fmt.Fprintln(w, colorize(colorBold, label))
	printStatus(w, "Sessions", "%d", r.Sessions)
	printStatus(w, fmt.Sprintf("Precision@%d", r.K), "%.3f", r.PrecisionAtK)
	printStatus(w, fmt.Sprintf("Recall@%d", r.K), "%.3f", r.RecallAtK)
	printStatus(w, "NDCG", "%.3f", r.NDCG)
	printStatus(w, "Diversity", "%.3f", r.Diversity)
	printStatus(w, "Freshness", "%.3f", r.Freshness)
}

// --- stats ---

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show engine counters and endpoint latencies",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		return runStats(cmd.Context(), client, cmd.OutOrStdout())
	},
}

func runStats(ctx context.Context, client *apiClient, w io.Writer) error {
	var stats api.StatsResponse
	if _, err := client.call(ctx, http.MethodGet, "/api/v1/stats", nil, &stats); err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(w, stats)
	}

	e := stats.Engine
	printStatus(w, "Uptime", "%s", (time.Duration(stats.UptimeSeconds) * time.Second).String())
	printStatus(w, "Requests", "%d (errors %d, degraded %d, cold starts %d)", e.Requests, e.Errors, e.Degraded, e.ColdStarts)
	printStatus(w, "Cache", "%d hits, %d misses, %d entries", e.CacheHits, e.CacheMisses, e.CachedResults)
	printStatus(w, "Feedback", "%d", e.Feedback)
	printStatus(w, "Degraded ratio", "%.3f", e.DegradedRatio)
	if len(stats.Endpoints) == 0 {
		return nil
	}

	fmt.Fprintln(w)
	tw := newTable(w, "ENDPOINT\tREQUESTS\tERRORS\tAVG MS\tP95 MS\tMAX MS")
	for _, ep := range stats.Endpoints {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%.1f\t%.1f\t%.1f\n", ep.Endpoint, ep.RequestCount, ep.ErrorCount, ep.AvgMS, ep.P95MS, ep.MaxMS)
	}
	return tw.Flush()
}

// --- health ---

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check whether the server is ready to serve",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		return runHealth(cmd.Context(), client, cmd.OutOrStdout())
	},
}

func runHealth(ctx context.Context, client *apiClient, w io.Writer) error {
	var status api.HealthStatus
	probeErr := client.probe(ctx, "/readyz", &status)
	if status.Status == "" {
		return probeErr
	}
	if jsonOutput {
		if err := printJSON(w, status); err != nil {
			return err
		}
		return probeErr
	}

	names := make([]string, 0, len(status.Checks))
	for name := range status.Checks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		printStatus(w, name, "%s", status.Checks[name])
	}
	printStatus(w, "Degraded ratio", "%.3f", status.DegradedRatio)
	if probeErr != nil {
		printError("Server is %s", status.Status)
		return probeErr
	}
	printSuccess("Server is %s", status.Status)
	return nil
}
