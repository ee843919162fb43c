package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// SnapshotOptions holds flags for the snapshot subcommands.
type SnapshotOptions struct {
	*RootOptions
	Require bool
}

// NewSnapshotCommand creates the snapshot command group.
func NewSnapshotCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SnapshotOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Save or restore state snapshots",
	}

	save := &cobra.Command{
		Use:   "save",
		Short: "Publish a snapshot of the current state",
		Long: `Gather the scope's full state and publish it to the archive.

An unchanged state since the last publish is skipped. After a
successful publish, older entries for the scope are pruned best-effort.

Examples:
  botalli snapshot save
  botalli snapshot save --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSnapshotSave(opts, cmd)
		},
	}

	restore := &cobra.Command{
		Use:   "restore",
		Short: "Seed baselines and counters from the newest snapshot",
		Long: `Scan the archive for the newest snapshot matching the scope and
seed the baseline and counter tables from it, replacing whatever is
there. Live record rows are never touched.

Finding no snapshot is a normal first run, not an error; pass
--require to exit 1 instead.

Examples:
  botalli snapshot restore
  botalli snapshot restore --require`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSnapshotRestore(opts, cmd)
		},
	}
	restore.Flags().BoolVar(&opts.Require, "require", false, "fail if no snapshot is found")

	cmd.AddCommand(save)
	cmd.AddCommand(restore)
	return cmd
}

func runSnapshotSave(opts *SnapshotOptions, cmd *cobra.Command) error {
	rt, err := openRuntime(opts.RootOptions)
	if err != nil {
		return err
	}
	defer rt.Close()

	mgr, err := rt.snapshotManager()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	result, err := mgr.Save(ctx, rt.cfg.ScopeID)
	if err != nil {
		return WrapExitError(ExitCommandError, "snapshot save failed", err)
	}

	if opts.Format == "json" {
		return writeJSONOK(cmd.OutOrStdout(), result)
	}
	if result.Skipped {
		fmt.Fprintln(cmd.OutOrStdout(), "State unchanged, publish skipped")
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Snapshot %s published as %s\n", result.SnapshotID, result.EntryID)
	return nil
}

func runSnapshotRestore(opts *SnapshotOptions, cmd *cobra.Command) error {
	rt, err := openRuntime(opts.RootOptions)
	if err != nil {
		return err
	}
	defer rt.Close()

	mgr, err := rt.snapshotManager()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	result, err := mgr.Restore(ctx, rt.cfg.ScopeID)
	if err != nil {
		return WrapExitError(ExitCommandError, "snapshot restore failed", err)
	}

	if opts.Format == "json" {
		if err := writeJSONOK(cmd.OutOrStdout(), result); err != nil {
			return err
		}
	} else if result.Found {
		fmt.Fprintf(cmd.OutOrStdout(), "Restored snapshot %s (generated %s)\n", result.SnapshotID, result.GeneratedAt)
	} else {
		fmt.Fprintln(cmd.OutOrStdout(), "No snapshot found, starting from zero")
	}

	if !result.Found && opts.Require {
		return NewExitError(ExitFailure, "no snapshot found")
	}
	return nil
}
