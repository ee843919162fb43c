package cli

import (
	"log/slog"
	"os"

	"github.com/manonlortal-sys/Bot-Alli/internal/aggregate"
	"github.com/manonlortal-sys/Bot-Alli/internal/config"
	"github.com/manonlortal-sys/Bot-Alli/internal/engine"
	"github.com/manonlortal-sys/Bot-Alli/internal/snapshot"
	"github.com/manonlortal-sys/Bot-Alli/internal/store"
)

// runtime bundles the wired components every command needs.
type runtime struct {
	cfg *config.Config
	st  *store.Store
	eng *engine.Engine
	agg *aggregate.Aggregator
	log *slog.Logger
}

// openRuntime loads config, opens the store, and builds the engine and
// aggregator. Callers must Close it.
func openRuntime(opts *RootOptions) (*runtime, error) {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}

	logLevel := slog.LevelInfo
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}

	return &runtime{
		cfg: cfg,
		st:  st,
		eng: engine.New(st, logger),
		agg: aggregate.New(st, cfg.Location),
		log: logger,
	}, nil
}

func (r *runtime) Close() error {
	return r.st.Close()
}

// snapshotManager wires the archive directory and snapshot manager.
func (r *runtime) snapshotManager() (*snapshot.Manager, error) {
	archive, err := snapshot.NewDirArchive(r.cfg.ArchiveDir)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open archive", err)
	}
	return snapshot.NewManager(r.st, r.agg, archive, r.log, r.cfg.ScanDepth), nil
}
