package store

import (
	"context"
	"testing"

	"github.com/manonlortal-sys/Bot-Alli/internal/event"
)

func TestInsertRecord_Idempotent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	rec := createTestRecord("rec-1", "scope-1", 1700000000)

	inserted, err := s.InsertRecord(ctx, s.DB(), rec)
	if err != nil {
		t.Fatalf("first InsertRecord() failed: %v", err)
	}
	if !inserted {
		t.Error("first insert should report inserted=true")
	}

	inserted, err = s.InsertRecord(ctx, s.DB(), rec)
	if err != nil {
		t.Fatalf("second InsertRecord() failed: %v", err)
	}
	if inserted {
		t.Error("duplicate insert should report inserted=false")
	}
}

func TestInsertRecord_DuplicateKeepsOriginal(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	mustInsertRecord(t, s, createTestRecord("rec-1", "scope-1", 1700000000))

	dupe := createTestRecord("rec-1", "scope-1", 1700009999)
	dupe.CreatorID = "someone-else"
	if _, err := s.InsertRecord(ctx, s.DB(), dupe); err != nil {
		t.Fatalf("duplicate InsertRecord() failed: %v", err)
	}

	rec, found, err := s.GetRecord(ctx, s.DB(), "rec-1")
	if err != nil || !found {
		t.Fatalf("GetRecord() = (%v, %v), want found", err, found)
	}
	if rec.CreatorID != "creator-1" || rec.CreatedAt != 1700000000 {
		t.Errorf("duplicate insert overwrote original: %+v", rec)
	}
}

func TestGetRecord_Absent(t *testing.T) {
	s := createTestStore(t)

	rec, found, err := s.GetRecord(context.Background(), s.DB(), "missing")
	if err != nil {
		t.Fatalf("GetRecord() on absent id should not error: %v", err)
	}
	if found {
		t.Errorf("GetRecord() on absent id returned %+v", rec)
	}
}

func TestRecord_NewDefaultsToNoOutcome(t *testing.T) {
	s := createTestStore(t)
	mustInsertRecord(t, s, createTestRecord("rec-1", "scope-1", 1700000000))

	rec, _, err := s.GetRecord(context.Background(), s.DB(), "rec-1")
	if err != nil {
		t.Fatalf("GetRecord() failed: %v", err)
	}
	if rec.WinMarker || rec.LossMarker || rec.Incomplete {
		t.Errorf("new record has markers set: %+v", rec)
	}
	if rec.Outcome != event.OutcomeNone {
		t.Errorf("new record outcome = %q, want %q", rec.Outcome, event.OutcomeNone)
	}
}

func TestUpdateOutcome_Persists(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	mustInsertRecord(t, s, createTestRecord("rec-1", "scope-1", 1700000000))

	if err := s.UpdateOutcome(ctx, s.DB(), "rec-1", true, false, event.OutcomeWin); err != nil {
		t.Fatalf("UpdateOutcome() failed: %v", err)
	}

	rec, _, err := s.GetRecord(ctx, s.DB(), "rec-1")
	if err != nil {
		t.Fatalf("GetRecord() failed: %v", err)
	}
	if !rec.WinMarker || rec.LossMarker {
		t.Errorf("markers = (%v, %v), want (true, false)", rec.WinMarker, rec.LossMarker)
	}
	if rec.Outcome != event.OutcomeWin {
		t.Errorf("outcome = %q, want %q", rec.Outcome, event.OutcomeWin)
	}
}

func TestUpdateIncomplete_Persists(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	mustInsertRecord(t, s, createTestRecord("rec-1", "scope-1", 1700000000))

	if err := s.UpdateIncomplete(ctx, s.DB(), "rec-1", true); err != nil {
		t.Fatalf("UpdateIncomplete() failed: %v", err)
	}

	rec, _, err := s.GetRecord(ctx, s.DB(), "rec-1")
	if err != nil {
		t.Fatalf("GetRecord() failed: %v", err)
	}
	if !rec.Incomplete {
		t.Error("incomplete flag not persisted")
	}
	if rec.Outcome != event.OutcomeNone {
		t.Errorf("incomplete flag changed outcome to %q", rec.Outcome)
	}
}

func TestDeleteRecord_CascadesParticipants(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	mustInsertRecord(t, s, createTestRecord("rec-1", "scope-1", 1700000000))
	mustInsertParticipant(t, s, "rec-1", "user-1")
	mustInsertParticipant(t, s, "rec-1", "user-2")

	if err := s.DeleteRecord(ctx, s.DB(), "rec-1"); err != nil {
		t.Fatalf("DeleteRecord() failed: %v", err)
	}

	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM participants WHERE record_id = 'rec-1'").Scan(&count)
	if err != nil {
		t.Fatalf("count query failed: %v", err)
	}
	if count != 0 {
		t.Errorf("participants after cascade delete = %d, want 0", count)
	}
}

func TestScopeTeams_DistinctAndOrdered(t *testing.T) {
	s := createTestStore(t)

	for _, rec := range []Record{
		{ID: "r1", ScopeID: "scope-1", TeamID: "2", CreatorID: "c", CreatedAt: 1},
		{ID: "r2", ScopeID: "scope-1", TeamID: "1", CreatorID: "c", CreatedAt: 2},
		{ID: "r3", ScopeID: "scope-1", TeamID: "1", CreatorID: "c", CreatedAt: 3},
		{ID: "r4", ScopeID: "scope-1", CreatorID: "c", CreatedAt: 4}, // no team
		{ID: "r5", ScopeID: "scope-2", TeamID: "9", CreatorID: "c", CreatedAt: 5},
	} {
		mustInsertRecord(t, s, rec)
	}

	teams, err := s.ScopeTeams(context.Background(), "scope-1")
	if err != nil {
		t.Fatalf("ScopeTeams() failed: %v", err)
	}
	want := []string{"1", "2"}
	if len(teams) != len(want) {
		t.Fatalf("ScopeTeams() = %v, want %v", teams, want)
	}
	for i := range want {
		if teams[i] != want[i] {
			t.Errorf("ScopeTeams()[%d] = %q, want %q", i, teams[i], want[i])
		}
	}
}

func TestRecordCreatedTimes_TeamFilter(t *testing.T) {
	s := createTestStore(t)

	mustInsertRecord(t, s, Record{ID: "r1", ScopeID: "scope-1", TeamID: "1", CreatorID: "c", CreatedAt: 100})
	mustInsertRecord(t, s, Record{ID: "r2", ScopeID: "scope-1", TeamID: "2", CreatorID: "c", CreatedAt: 200})
	mustInsertRecord(t, s, Record{ID: "r3", ScopeID: "scope-1", CreatorID: "c", CreatedAt: 300})

	all, err := s.RecordCreatedTimes(context.Background(), "scope-1", "")
	if err != nil {
		t.Fatalf("RecordCreatedTimes() failed: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("all times = %v, want 3 entries", all)
	}

	team1, err := s.RecordCreatedTimes(context.Background(), "scope-1", "1")
	if err != nil {
		t.Fatalf("RecordCreatedTimes(team) failed: %v", err)
	}
	if len(team1) != 1 || team1[0] != 100 {
		t.Errorf("team 1 times = %v, want [100]", team1)
	}
}
