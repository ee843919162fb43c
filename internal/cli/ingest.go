package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/manonlortal-sys/Bot-Alli/internal/engine"
	"github.com/manonlortal-sys/Bot-Alli/internal/event"
)

// IngestOptions holds flags for the ingest command.
type IngestOptions struct {
	*RootOptions
}

// IngestResult summarizes one ingest pass.
type IngestResult struct {
	Events  int `json:"events"`
	Applied int `json:"applied"`
	Noops   int `json:"noops"`
}

// NewIngestCommand creates the ingest command.
func NewIngestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &IngestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "ingest [events.jsonl]",
		Short: "Apply a JSONL event log to the database",
		Long: `Apply events from a JSONL file (or stdin) to the database.

Each line is one event envelope. Duplicate deliveries are expected and
converge: a replayed line is a no-op, never an error.

Exit codes:
  0 - All lines applied
  2 - Command error (bad config, malformed line)

Examples:
  botalli ingest events.jsonl
  cat events.jsonl | botalli ingest --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(opts, cmd, args)
		},
	}

	return cmd
}

func runIngest(opts *IngestOptions, cmd *cobra.Command, args []string) error {
	rt, err := openRuntime(opts.RootOptions)
	if err != nil {
		return err
	}
	defer rt.Close()

	var in io.Reader = cmd.InOrStdin()
	if len(args) == 1 {
		f, err := os.Open(args[0])
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open event log", err)
		}
		defer f.Close()
		in = f
	}

	result, err := applyEventLog(cmd.Context(), rt.eng, in)
	if err != nil {
		return err
	}

	if opts.Format == "json" {
		return writeJSONOK(cmd.OutOrStdout(), result)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Applied %d of %d event(s), %d no-op(s)\n",
		result.Applied, result.Events, result.Noops)
	return nil
}

// applyEventLog applies one envelope per line. A malformed line or a
// storage failure aborts the pass; already-applied lines do not.
func applyEventLog(ctx context.Context, eng *engine.Engine, in io.Reader) (IngestResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	var result IngestResult
	scanner := bufio.NewScanner(in)
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
			return result, WrapExitError(ExitCommandError, fmt.Sprintf("line %d", line), err)
		}

		changed, err := eng.Apply(ctx, ev)
		if err != nil {
			return result, WrapExitError(ExitCommandError, fmt.Sprintf("line %d", line), err)
		}
		result.Events++
		if changed {
			result.Applied++
		} else {
			result.Noops++
		}
	}
	if err := scanner.Err(); err != nil {
		return result, WrapExitError(ExitCommandError, "failed to read event log", err)
	}
	return result, nil
}
