package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/manonlortal-sys/Bot-Alli/internal/event"
)

// createTestStore creates a file-backed store in a temp dir.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestRecord builds a record with minimal required fields.
func createTestRecord(id, scopeID string, createdAt int64) Record {
	return Record{
		ID:        id,
		ScopeID:   scopeID,
		CreatorID: "creator-1",
		CreatedAt: createdAt,
	}
}

// mustInsertRecord inserts a record and fails the test on error or on
// a duplicate id.
func mustInsertRecord(t *testing.T, s *Store, rec Record) {
	t.Helper()
	inserted, err := s.InsertRecord(context.Background(), s.DB(), rec)
	if err != nil {
		t.Fatalf("InsertRecord(%s) failed: %v", rec.ID, err)
	}
	if !inserted {
		t.Fatalf("InsertRecord(%s): expected insert, got duplicate", rec.ID)
	}
}

// mustInsertParticipant inserts a participant row, failing on error or
// duplicate.
func mustInsertParticipant(t *testing.T, s *Store, recordID, userID string) {
	t.Helper()
	inserted, err := s.InsertParticipant(context.Background(), s.DB(), Participant{
		RecordID: recordID,
		UserID:   userID,
		AddedBy:  userID,
		Source:   event.SourceSelf,
	})
	if err != nil {
		t.Fatalf("InsertParticipant(%s, %s) failed: %v", recordID, userID, err)
	}
	if !inserted {
		t.Fatalf("InsertParticipant(%s, %s): expected insert, got duplicate", recordID, userID)
	}
}
