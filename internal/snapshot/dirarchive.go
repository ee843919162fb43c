package snapshot

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DirArchive stores one JSON file per published snapshot in a
// directory. File names embed a nanosecond timestamp so recency
// ordering is a name sort; writes go through a temp file and rename so
// a crash never leaves a half-written entry visible.
type DirArchive struct {
	dir string
}

// NewDirArchive creates the directory if needed.
func NewDirArchive(dir string) (*DirArchive, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("archive dir must not be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create archive dir: %w", err)
	}
	return &DirArchive{dir: dir}, nil
}

// Publish writes the payload as a new entry.
func (a *DirArchive) Publish(ctx context.Context, payload []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	id := fmt.Sprintf("%020d-%s.json", time.Now().UnixNano(), uuid.NewString())
	tmp := filepath.Join(a.dir, "."+id+".tmp")
	if err := os.WriteFile(tmp, payload, 0o644); err != nil {
		return "", fmt.Errorf("write archive entry: %w", err)
	}
	if err := os.Rename(tmp, filepath.Join(a.dir, id)); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("publish archive entry: %w", err)
	}
	return id, nil
}

// ListRecent returns up to limit entries, newest first.
func (a *DirArchive) ListRecent(ctx context.Context, limit int) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	names, err := os.ReadDir(a.dir)
	if err != nil {
		return nil, fmt.Errorf("list archive: %w", err)
	}

	var ids []string
	for _, de := range names {
		if de.IsDir() || !strings.HasSuffix(de.Name(), ".json") || strings.HasPrefix(de.Name(), ".") {
			continue
		}
		ids = append(ids, de.Name())
	}
	sort.Sort(sort.Reverse(sort.StringSlice(ids)))
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}

	entries := make([]Entry, 0, len(ids))
	for _, id := range ids {
		payload, err := os.ReadFile(filepath.Join(a.dir, id))
		if err != nil {
			// An entry deleted mid-scan is not fatal.
			continue
		}
		entries = append(entries, Entry{
			ID:          id,
			PublishedAt: publishedAtFromName(id),
			Payload:     payload,
		})
	}
	return entries, nil
}

// Delete removes an entry by id.
func (a *DirArchive) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if filepath.Base(id) != id {
		return fmt.Errorf("invalid archive entry id %q", id)
	}
	if err := os.Remove(filepath.Join(a.dir, id)); err != nil {
		return fmt.Errorf("delete archive entry: %w", err)
	}
	return nil
}

func publishedAtFromName(id string) time.Time {
	head, _, ok := strings.Cut(id, "-")
	if !ok {
		return time.Time{}
	}
	ns, err := strconv.ParseInt(head, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(0, ns)
}
