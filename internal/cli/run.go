package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/manonlortal-sys/Bot-Alli/internal/event"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	SkipRestore bool
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the engine as a long-lived service",
		Long: `Run the engine: restore state from the newest snapshot, then apply
event envelopes read from stdin (one JSON object per line) while
publishing periodic snapshots.

A malformed or failed line is logged and skipped; a live feed must
survive one bad message. Shutdown on SIGINT/SIGTERM takes a final
snapshot before exiting.

Examples:
  feed | botalli run
  botalli run --skip-restore < events.jsonl`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runService(opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.SkipRestore, "skip-restore", false, "do not seed from a snapshot at boot")

	return cmd
}

func runService(opts *RunOptions, cmd *cobra.Command) error {
	rt, err := openRuntime(opts.RootOptions)
	if err != nil {
		return err
	}
	defer rt.Close()

	mgr, err := rt.snapshotManager()
	if err != nil {
		return err
	}

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	if !opts.SkipRestore {
		if _, err := mgr.Restore(ctx, rt.cfg.ScopeID); err != nil {
			return WrapExitError(ExitCommandError, "boot restore failed", err)
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			rt.log.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		mgr.RunPeriodic(ctx, rt.cfg.ScopeID, rt.cfg.SnapshotInterval)
	}()

	rt.log.Info("engine started", "scope", rt.cfg.ScopeID, "db", rt.cfg.DBPath,
		"snapshot_interval", rt.cfg.SnapshotInterval)
	fmt.Fprintln(cmd.OutOrStdout(), "Engine started. Reading events from stdin...")

	scanner := bufio.NewScanner(cmd.InOrStdin())
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		if ctx.Err() != nil {
			break
		}
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}

		ev, err := event.ParseEnvelope([]byte(text))
		if err != nil {
			rt.log.Warn("skipping malformed event", "line", line, "error", err)
			continue
		}
		if _, err := rt.eng.Apply(ctx, ev); err != nil {
			if ctx.Err() != nil {
				break
			}
			rt.log.Error("event apply failed", "line", line, "error", err)
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		rt.log.Error("event feed read failed", "error", err)
	}

	// Feed exhausted or shutdown requested: stop the snapshot loop,
	// which takes a final save on its way out.
	cancel()
	wg.Wait()

	rt.log.Info("engine stopped gracefully")
	return nil
}
