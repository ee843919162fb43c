package cli

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/manonlortal-sys/Bot-Alli/internal/aggregate"
	"github.com/manonlortal-sys/Bot-Alli/internal/event"
)

// StatsOptions holds flags for the stats command.
type StatsOptions struct {
	*RootOptions
	User   string
	Recent int
}

// StatsResult is the scope-wide view: true totals (baseline plus
// live), per-team breakdown, and the time-of-day histogram.
type StatsResult struct {
	Scope  string                      `json:"scope"`
	Global aggregate.Totals            `json:"global"`
	Teams  map[string]aggregate.Totals `json:"teams"`
	Hourly aggregate.Histogram         `json:"hourly"`
}

// UserStatsResult is one user's view.
type UserStatsResult struct {
	Scope  string                `json:"scope"`
	User   string                `json:"user"`
	Counts map[string]int64      `json:"counts"`
	Hourly aggregate.Histogram   `json:"hourly"`
	Recent []RecentParticipation `json:"recent"`
}

// RecentParticipation is one row of a user's recent history.
type RecentParticipation struct {
	Record   string `json:"record"`
	Outcome  string `json:"outcome"`
	MarkedAt string `json:"marked_at"`
}

// NewStatsCommand creates the stats command.
func NewStatsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StatsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show scope totals, team breakdown, and hourly histogram",
		Long: `Show true totals for the configured scope.

Totals are snapshot baseline plus live state. With --user, shows that
user's per-metric counts, hourly distribution, and recent history
instead.

Examples:
  botalli stats
  botalli stats --user 120847 --recent 5
  botalli stats --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.User, "user", "", "show stats for one user")
	cmd.Flags().IntVar(&opts.Recent, "recent", 10, "recent participations to list with --user")

	return cmd
}

func runStats(opts *StatsOptions, cmd *cobra.Command) error {
	rt, err := openRuntime(opts.RootOptions)
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if opts.User != "" {
		return runUserStats(ctx, rt, opts, cmd)
	}

	result := StatsResult{Scope: rt.cfg.ScopeID, Teams: map[string]aggregate.Totals{}}
	result.Global, err = rt.agg.Totals(ctx, rt.cfg.ScopeID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to compute totals", err)
	}

	teams, err := rt.st.ScopeTeams(ctx, rt.cfg.ScopeID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list teams", err)
	}
	for _, teamID := range teams {
		t, err := rt.agg.TeamTotals(ctx, rt.cfg.ScopeID, teamID)
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("failed to compute team %s totals", teamID), err)
		}
		result.Teams[teamID] = t
	}

	result.Hourly, err = rt.agg.HourlyHistogram(ctx, rt.cfg.ScopeID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to compute histogram", err)
	}

	if opts.Format == "json" {
		return writeJSONOK(cmd.OutOrStdout(), result)
	}
	return outputStatsText(cmd, result)
}

func runUserStats(ctx context.Context, rt *runtime, opts *StatsOptions, cmd *cobra.Command) error {
	result := UserStatsResult{
		Scope:  rt.cfg.ScopeID,
		User:   opts.User,
		Counts: map[string]int64{},
	}

	for _, metric := range event.Metrics() {
		n, err := rt.agg.TotalForUser(ctx, rt.cfg.ScopeID, metric, opts.User)
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("failed to read %s count", metric), err)
		}
		result.Counts[string(metric)] = n
	}

	var err error
	result.Hourly, err = rt.agg.UserHourly(ctx, rt.cfg.ScopeID, opts.User)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to compute user histogram", err)
	}

	recent, err := rt.agg.RecentForUser(ctx, rt.cfg.ScopeID, opts.User, opts.Recent)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read recent participations", err)
	}
	result.Recent = make([]RecentParticipation, 0, len(recent))
	for _, p := range recent {
		result.Recent = append(result.Recent, RecentParticipation{
			Record:   p.RecordID,
			Outcome:  string(p.Outcome),
			MarkedAt: time.Unix(p.MarkedAt, 0).In(rt.cfg.Location).Format(time.RFC3339),
		})
	}

	if opts.Format == "json" {
		return writeJSONOK(cmd.OutOrStdout(), result)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "User %s in scope %s\n\n", result.User, result.Scope)
	for _, metric := range event.Metrics() {
		fmt.Fprintf(w, "  %-13s %d\n", string(metric)+":", result.Counts[string(metric)])
	}
	fmt.Fprintln(w)
	printHistogram(cmd, result.Hourly)
	if len(result.Recent) > 0 {
		fmt.Fprintln(w, "\nRecent:")
		for _, p := range result.Recent {
			fmt.Fprintf(w, "  %s  %-7s %s\n", p.MarkedAt, p.Outcome, p.Record)
		}
	}
	return nil
}

func outputStatsText(cmd *cobra.Command, result StatsResult) error {
	w := cmd.OutOrStdout()

	fmt.Fprintf(w, "Scope %s\n\n", result.Scope)
	printTotals(cmd, "Global", result.Global)

	teamIDs := make([]string, 0, len(result.Teams))
	for id := range result.Teams {
		teamIDs = append(teamIDs, id)
	}
	sort.Strings(teamIDs)
	for _, id := range teamIDs {
		printTotals(cmd, "Team "+id, result.Teams[id])
	}

	fmt.Fprintln(w)
	printHistogram(cmd, result.Hourly)
	return nil
}

func printTotals(cmd *cobra.Command, label string, t aggregate.Totals) {
	fmt.Fprintf(cmd.OutOrStdout(), "  %-10s %d attacks (%d won, %d lost, %d incomplete)\n",
		label+":", t.Attacks, t.Wins, t.Losses, t.Incomplete)
}

func printHistogram(cmd *cobra.Command, h aggregate.Histogram) {
	w := cmd.OutOrStdout()
	fmt.Fprintln(w, "By time of day:")
	for _, name := range aggregate.BucketNames {
		fmt.Fprintf(w, "  %-10s %d\n", name+":", *h.Bucket(name))
	}
}
