package snapshot

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/manonlortal-sys/Bot-Alli/internal/aggregate"
	"github.com/manonlortal-sys/Bot-Alli/internal/event"
	"github.com/manonlortal-sys/Bot-Alli/internal/store"
)

// DefaultScanDepth bounds how many archive entries restore inspects.
const DefaultScanDepth = 50

// Manager owns the save and restore paths between the store and the
// archive.
//
// Save path:    Idle -> Gathering -> Serializing -> Publishing -> Idle
// Restore path: Idle -> Scanning -> Parsing -> SeedingBaseline -> Ready
//
// Both paths are best effort: a failure leaves prior state intact and
// is logged, never escalated into a crash.
type Manager struct {
	store     *store.Store
	agg       *aggregate.Aggregator
	archive   Archive
	log       *slog.Logger
	scanDepth int

	// Fingerprint of the last published state, used to skip
	// republishing an unchanged snapshot. In-memory only; after a
	// restart the first save always publishes.
	lastFingerprint [sha256.Size]byte
	published       bool
}

// NewManager creates a manager. A nil logger disables logging;
// scanDepth <= 0 uses DefaultScanDepth.
func NewManager(st *store.Store, agg *aggregate.Aggregator, archive Archive, logger *slog.Logger, scanDepth int) *Manager {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if scanDepth <= 0 {
		scanDepth = DefaultScanDepth
	}
	return &Manager{
		store:     st,
		agg:       agg,
		archive:   archive,
		log:       logger,
		scanDepth: scanDepth,
	}
}

// SaveResult reports what a save did.
type SaveResult struct {
	SnapshotID string `json:"snapshot_id"`
	EntryID    string `json:"entry_id,omitempty"`
	Skipped    bool   `json:"skipped"`
}

// Save gathers the full state for a scope - global and per-team
// totals, hourly buckets, and every counter map in full - and
// publishes it as one payload. After a successful publish it
// best-effort deletes older entries for the same scope so the archive
// holds at most one live snapshot; restore tolerates leftovers from
// failed deletes.
func (m *Manager) Save(ctx context.Context, scopeID string) (SaveResult, error) {
	p, err := m.Gather(ctx, scopeID)
	if err != nil {
		return SaveResult{}, fmt.Errorf("snapshot save: %w", err)
	}

	fingerprint, err := stateFingerprint(p)
	if err != nil {
		return SaveResult{}, fmt.Errorf("snapshot save: fingerprint: %w", err)
	}
	if m.published && fingerprint == m.lastFingerprint {
		m.log.Debug("snapshot unchanged, skipping publish", "scope", scopeID)
		return SaveResult{SnapshotID: p.SnapshotID, Skipped: true}, nil
	}

	data, err := EncodeCanonical(p)
	if err != nil {
		return SaveResult{}, fmt.Errorf("snapshot save: encode: %w", err)
	}

	entryID, err := m.archive.Publish(ctx, data)
	if err != nil {
		return SaveResult{}, fmt.Errorf("snapshot save: publish: %w", err)
	}
	m.lastFingerprint = fingerprint
	m.published = true
	m.log.Info("snapshot published", "scope", scopeID, "snapshot", p.SnapshotID, "entry", entryID)

	m.pruneOlder(ctx, scopeID, entryID)

	return SaveResult{SnapshotID: p.SnapshotID, EntryID: entryID}, nil
}

// Gather assembles the current true state of a scope into a payload.
func (m *Manager) Gather(ctx context.Context, scopeID string) (*Payload, error) {
	global, err := m.agg.Totals(ctx, scopeID)
	if err != nil {
		return nil, fmt.Errorf("gather global totals: %w", err)
	}

	teamIDs, err := m.scopeTeamIDs(ctx, scopeID)
	if err != nil {
		return nil, err
	}
	teams := make(map[string]aggregate.Totals, len(teamIDs))
	for _, teamID := range teamIDs {
		t, err := m.agg.TeamTotals(ctx, scopeID, teamID)
		if err != nil {
			return nil, fmt.Errorf("gather team %s totals: %w", teamID, err)
		}
		teams[teamID] = t
	}

	hist, err := m.agg.HourlyHistogram(ctx, scopeID)
	if err != nil {
		return nil, fmt.Errorf("gather hourly histogram: %w", err)
	}
	hourly := make(map[string]int64, len(aggregate.BucketNames))
	for _, name := range aggregate.BucketNames {
		hourly[name] = *hist.Bucket(name)
	}

	counters := make(map[string]map[string]int64, len(event.Metrics()))
	for _, metric := range event.Metrics() {
		cm, err := m.store.CounterMap(ctx, scopeID, metric)
		if err != nil {
			return nil, fmt.Errorf("gather %s counters: %w", metric, err)
		}
		counters[string(metric)] = cm
	}

	return &Payload{
		SchemaVersion: SchemaVersion,
		SnapshotID:    uuid.NewString(),
		ScopeID:       scopeID,
		GeneratedAt:   time.Now().UTC().Format(time.RFC3339),
		Global:        global,
		Teams:         teams,
		Hourly:        hourly,
		Counters:      counters,
	}, nil
}

// scopeTeamIDs unions the teams with live records and the teams that
// only exist in the baseline, so a team idle since the last snapshot
// still rides along losslessly.
func (m *Manager) scopeTeamIDs(ctx context.Context, scopeID string) ([]string, error) {
	live, err := m.store.ScopeTeams(ctx, scopeID)
	if err != nil {
		return nil, fmt.Errorf("gather teams: %w", err)
	}

	seen := make(map[string]bool, len(live))
	ids := make([]string, 0, len(live))
	for _, id := range live {
		seen[id] = true
		ids = append(ids, id)
	}

	baselines, err := m.store.BaselineMap(ctx, scopeID)
	if err != nil {
		return nil, fmt.Errorf("gather baseline teams: %w", err)
	}
	for key := range baselines {
		rest, ok := strings.CutPrefix(key, store.BaselineTeamPrefix)
		if !ok {
			continue
		}
		teamID, _, ok := strings.Cut(rest, ".")
		if !ok || teamID == "" || seen[teamID] {
			continue
		}
		seen[teamID] = true
		ids = append(ids, teamID)
	}
	return ids, nil
}

// pruneOlder best-effort deletes every other entry for this scope.
func (m *Manager) pruneOlder(ctx context.Context, scopeID, keepEntryID string) {
	entries, err := m.archive.ListRecent(ctx, m.scanDepth)
	if err != nil {
		m.log.Warn("snapshot prune: list failed", "scope", scopeID, "error", err)
		return
	}
	for _, entry := range entries {
		if entry.ID == keepEntryID {
			continue
		}
		if _, ok := Decode(entry.Payload, scopeID); !ok {
			continue
		}
		if err := m.archive.Delete(ctx, entry.ID); err != nil {
			m.log.Warn("snapshot prune: delete failed", "scope", scopeID, "entry", entry.ID, "error", err)
		}
	}
}

// RestoreResult reports what a restore found.
type RestoreResult struct {
	Found       bool   `json:"found"`
	EntryID     string `json:"entry_id,omitempty"`
	SnapshotID  string `json:"snapshot_id,omitempty"`
	GeneratedAt string `json:"generated_at,omitempty"`
}

// Restore scans the archive's recent entries for the newest payload
// matching the scope and seeds the baseline and counter tables from
// it, wholesale. Finding nothing leaves everything at zero - the
// correct first-run state, not a degraded one. Restoring the same
// payload twice is idempotent.
func (m *Manager) Restore(ctx context.Context, scopeID string) (RestoreResult, error) {
	entries, err := m.archive.ListRecent(ctx, m.scanDepth)
	if err != nil {
		return RestoreResult{}, fmt.Errorf("snapshot restore: scan: %w", err)
	}

	for _, entry := range entries {
		p, ok := Decode(entry.Payload, scopeID)
		if !ok {
			continue
		}

		if err := m.seed(ctx, scopeID, p); err != nil {
			return RestoreResult{}, fmt.Errorf("snapshot restore: seed from %s: %w", entry.ID, err)
		}
		m.log.Info("snapshot restored", "scope", scopeID, "entry", entry.ID, "generated_at", p.GeneratedAt)
		return RestoreResult{
			Found:       true,
			EntryID:     entry.ID,
			SnapshotID:  p.SnapshotID,
			GeneratedAt: p.GeneratedAt,
		}, nil
	}

	m.log.Info("no snapshot found, starting from zero", "scope", scopeID)
	return RestoreResult{}, nil
}

// seed replaces baselines and counters in one transaction so a failed
// restore can never leave half-seeded state behind.
func (m *Manager) seed(ctx context.Context, scopeID string, p *Payload) error {
	baselines := make(map[string]int64)
	addTotals(baselines, store.BaselineGlobalPrefix, p.Global)
	for teamID, t := range p.Teams {
		addTotals(baselines, store.BaselineTeamPrefix+teamID+".", t)
	}
	for _, name := range aggregate.BucketNames {
		baselines[store.BaselineHourlyPrefix+name] = p.Hourly[name]
	}

	return m.store.WithTx(ctx, func(tx *sql.Tx) error {
		if err := m.store.ReplaceBaselines(ctx, tx, scopeID, baselines); err != nil {
			return err
		}
		for _, metric := range event.Metrics() {
			// Metrics absent from the payload still replace (clear)
			// their table; a stale map must not survive a restore.
			if err := m.store.ReplaceCounterMap(ctx, tx, scopeID, metric, p.Counters[string(metric)]); err != nil {
				return err
			}
		}
		return nil
	})
}

func addTotals(dst map[string]int64, prefix string, t aggregate.Totals) {
	dst[prefix+"attacks"] = t.Attacks
	dst[prefix+"wins"] = t.Wins
	dst[prefix+"losses"] = t.Losses
	dst[prefix+"incomplete"] = t.Incomplete
}

// stateFingerprint hashes the payload with its per-save identity
// fields cleared, so two snapshots of identical state compare equal.
func stateFingerprint(p *Payload) ([sha256.Size]byte, error) {
	clone := *p
	clone.SnapshotID = ""
	clone.GeneratedAt = ""
	data, err := EncodeCanonical(&clone)
	if err != nil {
		return [sha256.Size]byte{}, err
	}
	return sha256.Sum256(data), nil
}
