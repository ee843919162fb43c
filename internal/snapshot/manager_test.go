package snapshot

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manonlortal-sys/Bot-Alli/internal/aggregate"
	"github.com/manonlortal-sys/Bot-Alli/internal/engine"
	"github.com/manonlortal-sys/Bot-Alli/internal/event"
	"github.com/manonlortal-sys/Bot-Alli/internal/store"
	"github.com/manonlortal-sys/Bot-Alli/internal/testutil"
)

const testScope = "guild-42"

type managerFixture struct {
	st  *store.Store
	eng *engine.Engine
	agg *aggregate.Aggregator
	mgr *Manager
}

// newFixture builds a manager over a fresh store sharing archiveDir,
// so two fixtures can model a restart with an empty database.
func newFixture(t *testing.T, archiveDir string) *managerFixture {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	archive, err := NewDirArchive(archiveDir)
	require.NoError(t, err)

	agg := aggregate.New(st, time.UTC)
	return &managerFixture{
		st:  st,
		eng: engine.New(st, nil),
		agg: agg,
		mgr: NewManager(st, agg, archive, nil, 0),
	}
}

// seedActivity drives a small but representative scenario: two teams,
// decided and open records, assisted joins, and a removal.
func (f *managerFixture) seedActivity(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	clock := testutil.NewClock(time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC), time.Hour)

	events := []event.Event{
		testutil.TeamRecordSeen("r1", testScope, "1", "alice", clock.Next()),
		testutil.SelfJoin("r1", "alice"),
		testutil.SelfJoin("r1", "bob"),
		testutil.Marker("r1", event.MarkerWin, true),
		testutil.TeamRecordSeen("r2", testScope, "2", "bob", clock.Next()),
		testutil.AssistedJoin("r2", "carol", "bob"),
		testutil.Marker("r2", event.MarkerLoss, true),
		testutil.RecordSeen("r3", testScope, "alice", clock.Next()),
		testutil.SelfJoin("r3", "dave"),
		testutil.Marker("r3", event.MarkerIncomplete, true),
		testutil.Unmark("r3", "dave", "dave"),
	}
	for _, ev := range events {
		_, err := f.eng.Apply(ctx, ev)
		require.NoError(t, err)
	}
}

func TestSaveRestore_RoundTrip(t *testing.T) {
	archiveDir := t.TempDir()
	ctx := context.Background()

	before := newFixture(t, archiveDir)
	before.seedActivity(t)

	saved, err := before.mgr.Save(ctx, testScope)
	require.NoError(t, err)
	assert.False(t, saved.Skipped)
	require.NotEmpty(t, saved.EntryID)

	wantTotals, err := before.agg.Totals(ctx, testScope)
	require.NoError(t, err)
	wantTeam1, err := before.agg.TeamTotals(ctx, testScope, "1")
	require.NoError(t, err)
	wantHourly, err := before.agg.HourlyHistogram(ctx, testScope)
	require.NoError(t, err)

	// Fresh database, same archive: the restart-after-data-loss path.
	after := newFixture(t, archiveDir)
	restored, err := after.mgr.Restore(ctx, testScope)
	require.NoError(t, err)
	require.True(t, restored.Found)
	assert.Equal(t, saved.EntryID, restored.EntryID)

	gotTotals, err := after.agg.Totals(ctx, testScope)
	require.NoError(t, err)
	assert.Equal(t, wantTotals, gotTotals, "true totals must survive the round trip")

	gotTeam1, err := after.agg.TeamTotals(ctx, testScope, "1")
	require.NoError(t, err)
	assert.Equal(t, wantTeam1, gotTeam1)

	gotHourly, err := after.agg.HourlyHistogram(ctx, testScope)
	require.NoError(t, err)
	assert.Equal(t, wantHourly, gotHourly)

	for _, metric := range event.Metrics() {
		want, err := before.st.CounterMap(ctx, testScope, metric)
		require.NoError(t, err)
		got, err := after.st.CounterMap(ctx, testScope, metric)
		require.NoError(t, err)
		assert.Equal(t, want, got, "%s counters must survive the round trip", metric)
	}
}

func TestSave_SkipsUnchangedState(t *testing.T) {
	f := newFixture(t, t.TempDir())
	f.seedActivity(t)
	ctx := context.Background()

	first, err := f.mgr.Save(ctx, testScope)
	require.NoError(t, err)
	assert.False(t, first.Skipped)

	second, err := f.mgr.Save(ctx, testScope)
	require.NoError(t, err)
	assert.True(t, second.Skipped, "identical state must not republish")
	assert.Empty(t, second.EntryID)
}

func TestSave_PrunesOlderEntries(t *testing.T) {
	archiveDir := t.TempDir()
	f := newFixture(t, archiveDir)
	f.seedActivity(t)
	ctx := context.Background()

	_, err := f.mgr.Save(ctx, testScope)
	require.NoError(t, err)

	// Change state so the second save publishes.
	_, err = f.eng.Apply(ctx, testutil.RecordSeen("r9", testScope, "erin", time.Now().Unix()))
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)

	second, err := f.mgr.Save(ctx, testScope)
	require.NoError(t, err)
	require.False(t, second.Skipped)

	archive, err := NewDirArchive(archiveDir)
	require.NoError(t, err)
	entries, err := archive.ListRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1, "older snapshot should be pruned after a publish")
	assert.Equal(t, second.EntryID, entries[0].ID)
}

func TestRestore_NoSnapshotIsNotAnError(t *testing.T) {
	f := newFixture(t, t.TempDir())

	result, err := f.mgr.Restore(context.Background(), testScope)
	require.NoError(t, err, "an empty archive is a normal first run")
	assert.False(t, result.Found)
}

func TestRestore_SkipsMalformedAndForeignEntries(t *testing.T) {
	archiveDir := t.TempDir()
	f := newFixture(t, archiveDir)
	f.seedActivity(t)
	ctx := context.Background()

	saved, err := f.mgr.Save(ctx, testScope)
	require.NoError(t, err)

	// Newer junk on top of the good snapshot: garbage bytes and a
	// payload for a different scope.
	archive, err := NewDirArchive(archiveDir)
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	foreign := fixturePayload()
	foreign.ScopeID = "someone-else"
	foreignData, err := EncodeCanonical(foreign)
	require.NoError(t, err)
	_, err = archive.Publish(ctx, foreignData)
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	_, err = archive.Publish(ctx, []byte("corrupted garbage"))
	require.NoError(t, err)

	after := newFixture(t, archiveDir)
	restored, err := after.mgr.Restore(ctx, testScope)
	require.NoError(t, err)
	require.True(t, restored.Found)
	assert.Equal(t, saved.EntryID, restored.EntryID, "restore must skip junk and take the newest matching payload")
}

func TestRestore_ReplacesStaleState(t *testing.T) {
	archiveDir := t.TempDir()
	f := newFixture(t, archiveDir)
	f.seedActivity(t)
	ctx := context.Background()

	_, err := f.mgr.Save(ctx, testScope)
	require.NoError(t, err)

	after := newFixture(t, archiveDir)

	// Pre-seed state that must not survive the restore.
	require.NoError(t, after.st.ReplaceBaselines(ctx, after.st.DB(), testScope, map[string]int64{
		store.BaselineGlobalPrefix + "attacks": 999,
		store.BaselineGlobalPrefix + "stale":   123,
	}))
	require.NoError(t, after.st.ReplaceCounterMap(ctx, after.st.DB(), testScope, event.MetricWin, map[string]int64{
		"impostor": 50,
	}))

	_, err = after.mgr.Restore(ctx, testScope)
	require.NoError(t, err)

	stale, err := after.st.BaselineValue(ctx, testScope, store.BaselineGlobalPrefix+"stale")
	require.NoError(t, err)
	assert.Zero(t, stale, "restore must replace baselines wholesale, never merge")

	wins, err := after.st.CounterMap(ctx, testScope, event.MetricWin)
	require.NoError(t, err)
	assert.NotContains(t, wins, "impostor")
}

func TestRestore_Idempotent(t *testing.T) {
	archiveDir := t.TempDir()
	f := newFixture(t, archiveDir)
	f.seedActivity(t)
	ctx := context.Background()

	_, err := f.mgr.Save(ctx, testScope)
	require.NoError(t, err)

	after := newFixture(t, archiveDir)
	_, err = after.mgr.Restore(ctx, testScope)
	require.NoError(t, err)
	once, err := after.agg.Totals(ctx, testScope)
	require.NoError(t, err)

	_, err = after.mgr.Restore(ctx, testScope)
	require.NoError(t, err)
	twice, err := after.agg.Totals(ctx, testScope)
	require.NoError(t, err)

	assert.Equal(t, once, twice, "restoring the same payload twice must not double anything")
}

func TestGather_IncludesBaselineOnlyTeams(t *testing.T) {
	f := newFixture(t, t.TempDir())
	ctx := context.Background()

	// Team 7 exists only in the baseline: no live records reference it.
	require.NoError(t, f.st.ReplaceBaselines(ctx, f.st.DB(), testScope, map[string]int64{
		store.BaselineTeamPrefix + "7.attacks": 4,
		store.BaselineTeamPrefix + "7.wins":    2,
	}))

	p, err := f.mgr.Gather(ctx, testScope)
	require.NoError(t, err)
	require.Contains(t, p.Teams, "7", "idle teams must ride along in snapshots")
	assert.Equal(t, aggregate.Totals{Attacks: 4, Wins: 2}, p.Teams["7"])
}

func TestRunPeriodic_FinalSaveOnShutdown(t *testing.T) {
	archiveDir := t.TempDir()
	f := newFixture(t, archiveDir)
	f.seedActivity(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f.mgr.RunPeriodic(ctx, testScope, time.Hour)

	archive, err := NewDirArchive(archiveDir)
	require.NoError(t, err)
	entries, err := archive.ListRecent(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "shutdown must flush one final snapshot")
}
