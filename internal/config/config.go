// Package config loads the engine configuration from a YAML file and
// validates it against a CUE schema before anything trusts it.
package config

import (
	"fmt"
	"os"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"
)

// schema is the CUE contract the decoded file must satisfy.
const schema = `
scope_id:          string & !=""
db_path:           string & !=""
archive_dir:       string & !=""
snapshot_interval: string & !=""
scan_depth:        int & >0 & <=500
time_zone:         string & !=""
`

// fileConfig is the raw on-disk shape.
type fileConfig struct {
	ScopeID          string `yaml:"scope_id" json:"scope_id"`
	DBPath           string `yaml:"db_path" json:"db_path"`
	ArchiveDir       string `yaml:"archive_dir" json:"archive_dir"`
	SnapshotInterval string `yaml:"snapshot_interval" json:"snapshot_interval"`
	ScanDepth        int    `yaml:"scan_depth" json:"scan_depth"`
	TimeZone         string `yaml:"time_zone" json:"time_zone"`
}

// Config is the resolved configuration.
type Config struct {
	ScopeID          string
	DBPath           string
	ArchiveDir       string
	SnapshotInterval time.Duration
	ScanDepth        int
	TimeZone         string
	Location         *time.Location
}

func defaults() fileConfig {
	return fileConfig{
		DBPath:           "data/tracker.db",
		ArchiveDir:       "data/snapshots",
		SnapshotInterval: "30m",
		ScanDepth:        50,
		TimeZone:         "UTC",
	}
}

// Load reads, validates, and resolves the config file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse validates and resolves raw YAML config bytes.
func Parse(data []byte) (*Config, error) {
	fc := defaults()
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := validate(fc); err != nil {
		return nil, err
	}

	interval, err := time.ParseDuration(fc.SnapshotInterval)
	if err != nil {
		return nil, fmt.Errorf("config: snapshot_interval: %w", err)
	}
	if interval < time.Minute {
		return nil, fmt.Errorf("config: snapshot_interval %s is below the 1m floor", interval)
	}

	loc, err := time.LoadLocation(fc.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("config: time_zone: %w", err)
	}

	return &Config{
		ScopeID:          fc.ScopeID,
		DBPath:           fc.DBPath,
		ArchiveDir:       fc.ArchiveDir,
		SnapshotInterval: interval,
		ScanDepth:        fc.ScanDepth,
		TimeZone:         fc.TimeZone,
		Location:         loc,
	}, nil
}

// validate unifies the decoded file with the CUE schema. CUE reports
// every constraint the value breaks, which beats hand-rolled field
// checks falling over at the first problem.
func validate(fc fileConfig) error {
	cctx := cuecontext.New()

	schemaVal := cctx.CompileString(schema)
	if err := schemaVal.Err(); err != nil {
		return fmt.Errorf("config schema: %w", err)
	}

	configVal := cctx.Encode(fc)
	if err := configVal.Err(); err != nil {
		return fmt.Errorf("config encode: %w", err)
	}

	unified := schemaVal.Unify(configVal)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
