package snapshot

import (
	"context"
	"time"
)

// Entry is one published blob in the archive, as seen during a scan.
type Entry struct {
	ID          string
	PublishedAt time.Time
	Payload     []byte
}

// Archive is the external, append-mostly, latest-wins blob channel the
// engine persists snapshots to. There is no lookup by key: restore
// lists recent entries, newest first, and takes the first payload that
// decodes for its scope.
//
// The production implementation lives with the transport collaborator
// (a chat channel with attachments); DirArchive backs the CLI and
// tests.
type Archive interface {
	// Publish appends a payload and returns the new entry's id.
	Publish(ctx context.Context, payload []byte) (string, error)

	// ListRecent returns up to limit entries, newest first.
	ListRecent(ctx context.Context, limit int) ([]Entry, error)

	// Delete removes an entry. Best effort: the caller treats failure
	// as a logged warning, and restore tolerates leftover entries.
	Delete(ctx context.Context, id string) error
}
