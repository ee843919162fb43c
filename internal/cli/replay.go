package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/spf13/cobra"

	"github.com/manonlortal-sys/Bot-Alli/internal/engine"
	"github.com/manonlortal-sys/Bot-Alli/internal/event"
	"github.com/manonlortal-sys/Bot-Alli/internal/store"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
}

// ReplayResult holds the overall replay result.
type ReplayResult struct {
	Events    int  `json:"events"`
	Applied   int  `json:"applied"`
	Converged bool `json:"converged"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay <events.jsonl>",
		Short: "Replay an event log and verify convergence",
		Long: `Replay an event log into throwaway databases and verify convergence.

The log is applied once to a fresh database and twice (every event
duplicated) to a second one. Both must land on identical totals and
counter maps; if they diverge, an event handler is not idempotent.

Exit codes:
  0 - Replay converged
  1 - Divergence detected
  2 - Command error (bad config, malformed log)

Examples:
  botalli replay events.jsonl
  botalli replay events.jsonl --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, args[0], cmd)
		},
	}

	return cmd
}

func runReplay(opts *ReplayOptions, logPath string, cmd *cobra.Command) error {
	rt, err := openRuntime(opts.RootOptions)
	if err != nil {
		return err
	}
	defer rt.Close()

	events, err := loadEventLog(logPath)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	tmpDir, err := os.MkdirTemp("", "botalli-replay-")
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create scratch dir", err)
	}
	defer os.RemoveAll(tmpDir)

	once, applied, err := replayInto(ctx, filepath.Join(tmpDir, "once.db"), rt.cfg.ScopeID, events, 1)
	if err != nil {
		return err
	}
	twice, _, err := replayInto(ctx, filepath.Join(tmpDir, "twice.db"), rt.cfg.ScopeID, events, 2)
	if err != nil {
		return err
	}

	result := ReplayResult{
		Events:    len(events),
		Applied:   applied,
		Converged: reflect.DeepEqual(once, twice),
	}

	if opts.Format == "json" {
		if !result.Converged {
			if err := writeJSONError(cmd.OutOrStdout(), "E_CONVERGENCE", "replay diverged under duplicate delivery", result); err != nil {
				return err
			}
			return NewExitError(ExitFailure, "replay diverged under duplicate delivery")
		}
		return writeJSONOK(cmd.OutOrStdout(), result)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Replayed %d event(s), %d applied\n", result.Events, result.Applied)
	if !result.Converged {
		fmt.Fprintln(w, "✗ Divergence detected: duplicate delivery changed the final state")
		return NewExitError(ExitFailure, "replay diverged under duplicate delivery")
	}
	fmt.Fprintln(w, "✓ Converged: single and duplicate delivery agree")
	return nil
}

// replayState is everything two replays must agree on.
type replayState struct {
	Totals   store.LiveTotals
	Counters map[string]map[string]int64
}

// replayInto applies the log times-over into a fresh database at path
// and returns the resulting state for the scope.
func replayInto(ctx context.Context, path, scopeID string, events []event.Event, times int) (replayState, int, error) {
	st, err := store.Open(path)
	if err != nil {
		return replayState{}, 0, WrapExitError(ExitCommandError, "failed to open scratch database", err)
	}
	defer st.Close()

	eng := engine.New(st, nil)
	applied := 0
	for _, ev := range events {
		for range times {
			changed, err := eng.Apply(ctx, ev)
			if err != nil {
				return replayState{}, 0, WrapExitError(ExitCommandError, "replay failed", err)
			}
			if changed {
				applied++
			}
		}
	}

	state := replayState{Counters: make(map[string]map[string]int64)}
	state.Totals, err = st.ScopeLiveTotals(ctx, scopeID, "")
	if err != nil {
		return replayState{}, 0, WrapExitError(ExitCommandError, "failed to read totals", err)
	}
	for _, metric := range event.Metrics() {
		cm, err := st.CounterMap(ctx, scopeID, metric)
		if err != nil {
			return replayState{}, 0, WrapExitError(ExitCommandError, "failed to read counters", err)
		}
		state.Counters[string(metric)] = cm
	}
	return state, applied, nil
}

// loadEventLog parses a JSONL event log into typed events.
func loadEventLog(path string) ([]event.Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open event log", err)
	}
	defer f.Close()

	var events []event.Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		ev, err := event.ParseEnvelope([]byte(text))
		if err != nil {
			return nil, WrapExitError(ExitCommandError, fmt.Sprintf("line %d", line), err)
		}
		events = append(events, ev)
	}
	if err := scanner.Err(); err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to read event log", err)
	}
	return events, nil
}
