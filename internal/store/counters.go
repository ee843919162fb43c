package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/manonlortal-sys/Bot-Alli/internal/event"
)

// CounterEntry is one leaderboard row.
type CounterEntry struct {
	UserID string
	Count  int64
}

// IncrementCounter adds one to (scope, metric, user) as a single
// atomic upsert. The primary key is the only concurrency primitive
// here; a read-then-write would lose updates under interleaving.
func (s *Store) IncrementCounter(ctx context.Context, q DBTX, scopeID string, metric event.Metric, userID string) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO counters (scope_id, metric, user_id, count)
		VALUES (?, ?, ?, 1)
		ON CONFLICT(scope_id, metric, user_id) DO UPDATE SET count = count + 1
	`, scopeID, string(metric), userID)
	if err != nil {
		return fmt.Errorf("increment counter: %w", err)
	}
	return nil
}

// DecrementCounter subtracts one, flooring at zero, and removes the
// row when it reaches zero so no residue rows accumulate.
//
// The WHERE count > 0 guard keeps the decrement from tripping the
// CHECK(count >= 0) constraint; decrementing a missing or zero counter
// is a no-op.
func (s *Store) DecrementCounter(ctx context.Context, q DBTX, scopeID string, metric event.Metric, userID string) error {
	_, err := q.ExecContext(ctx, `
		UPDATE counters SET count = count - 1
		WHERE scope_id = ? AND metric = ? AND user_id = ? AND count > 0
	`, scopeID, string(metric), userID)
	if err != nil {
		return fmt.Errorf("decrement counter: %w", err)
	}

	_, err = q.ExecContext(ctx, `
		DELETE FROM counters
		WHERE scope_id = ? AND metric = ? AND user_id = ? AND count <= 0
	`, scopeID, string(metric), userID)
	if err != nil {
		return fmt.Errorf("decrement counter: delete zero row: %w", err)
	}
	return nil
}

// TopCounters returns the highest counts for a metric, descending,
// with user_id as tiebreak for deterministic output.
func (s *Store) TopCounters(ctx context.Context, scopeID string, metric event.Metric, limit int) ([]CounterEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, count
		FROM counters
		WHERE scope_id = ? AND metric = ?
		ORDER BY count DESC, user_id ASC
		LIMIT ?
	`, scopeID, string(metric), limit)
	if err != nil {
		return nil, fmt.Errorf("query top counters: %w", err)
	}
	defer rows.Close()

	var entries []CounterEntry
	for rows.Next() {
		var e CounterEntry
		if err := rows.Scan(&e.UserID, &e.Count); err != nil {
			return nil, fmt.Errorf("scan counter: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate counters: %w", err)
	}
	return entries, nil
}

// CounterForUser returns the count for one user, zero when absent.
func (s *Store) CounterForUser(ctx context.Context, scopeID string, metric event.Metric, userID string) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `
		SELECT count FROM counters
		WHERE scope_id = ? AND metric = ? AND user_id = ?
	`, scopeID, string(metric), userID).Scan(&count)
	if err == sql.ErrNoRows {
		// Missing row reads as zero.
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("counter for user: %w", err)
	}
	return count, nil
}

// CounterMap returns the full metric table for a scope. Snapshots need
// every row, not just the top N.
func (s *Store) CounterMap(ctx context.Context, scopeID string, metric event.Metric) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, count
		FROM counters
		WHERE scope_id = ? AND metric = ?
	`, scopeID, string(metric))
	if err != nil {
		return nil, fmt.Errorf("query counter map: %w", err)
	}
	defer rows.Close()

	m := make(map[string]int64)
	for rows.Next() {
		var (
			userID string
			count  int64
		)
		if err := rows.Scan(&userID, &count); err != nil {
			return nil, fmt.Errorf("scan counter map: %w", err)
		}
		m[userID] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate counter map: %w", err)
	}
	return m, nil
}

// ReplaceCounterMap wholesale-replaces one metric table for a scope
// with the given map. Restore uses this; it is delete-then-insert, not
// a merge, so restoring the same snapshot twice is idempotent.
func (s *Store) ReplaceCounterMap(ctx context.Context, q DBTX, scopeID string, metric event.Metric, counts map[string]int64) error {
	_, err := q.ExecContext(ctx, `
		DELETE FROM counters WHERE scope_id = ? AND metric = ?
	`, scopeID, string(metric))
	if err != nil {
		return fmt.Errorf("replace counter map: clear: %w", err)
	}

	for userID, count := range counts {
		if count <= 0 {
			continue
		}
		_, err := q.ExecContext(ctx, `
			INSERT INTO counters (scope_id, metric, user_id, count)
			VALUES (?, ?, ?, ?)
		`, scopeID, string(metric), userID, count)
		if err != nil {
			return fmt.Errorf("replace counter map: insert %s: %w", userID, err)
		}
	}
	return nil
}
