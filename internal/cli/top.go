package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/manonlortal-sys/Bot-Alli/internal/event"
)

// TopOptions holds flags for the top command.
type TopOptions struct {
	*RootOptions
	Metric string
	Limit  int
}

// TopEntry is one leaderboard row.
type TopEntry struct {
	Rank   int    `json:"rank"`
	UserID string `json:"user_id"`
	Count  int64  `json:"count"`
}

// TopResult is the leaderboard for one metric.
type TopResult struct {
	Scope   string     `json:"scope"`
	Metric  string     `json:"metric"`
	Entries []TopEntry `json:"entries"`
}

// NewTopCommand creates the top command.
func NewTopCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TopOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "top",
		Short: "Show the leaderboard for a metric",
		Long: `Show the per-user leaderboard for one metric, descending.

Ties break by user id so the ordering is stable across runs.

Examples:
  botalli top --metric participation
  botalli top --metric win --limit 5 --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTop(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Metric, "metric", string(event.MetricParticipation),
		fmt.Sprintf("metric to rank by %v", metricNames()))
	cmd.Flags().IntVar(&opts.Limit, "limit", 10, "maximum entries to show")

	return cmd
}

func runTop(opts *TopOptions, cmd *cobra.Command) error {
	metric := event.Metric(opts.Metric)
	if !event.ValidMetric(metric) {
		return NewExitError(ExitCommandError,
			fmt.Sprintf("invalid metric %q: must be one of %v", opts.Metric, metricNames()))
	}
	if opts.Limit <= 0 {
		return NewExitError(ExitCommandError, "limit must be positive")
	}

	rt, err := openRuntime(opts.RootOptions)
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	entries, err := rt.agg.TopTotals(ctx, rt.cfg.ScopeID, metric, opts.Limit)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read leaderboard", err)
	}

	result := TopResult{
		Scope:   rt.cfg.ScopeID,
		Metric:  string(metric),
		Entries: make([]TopEntry, 0, len(entries)),
	}
	for i, e := range entries {
		result.Entries = append(result.Entries, TopEntry{
			Rank:   i + 1,
			UserID: e.UserID,
			Count:  e.Count,
		})
	}

	if opts.Format == "json" {
		return writeJSONOK(cmd.OutOrStdout(), result)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Top %s in scope %s\n", result.Metric, result.Scope)
	if len(result.Entries) == 0 {
		fmt.Fprintln(w, "  (empty)")
		return nil
	}
	for _, e := range result.Entries {
		fmt.Fprintf(w, "  %2d. %-20s %d\n", e.Rank, e.UserID, e.Count)
	}
	return nil
}

func metricNames() []string {
	metrics := event.Metrics()
	names := make([]string, 0, len(metrics))
	for _, m := range metrics {
		names = append(names, string(m))
	}
	return names
}
