package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/manonlortal-sys/Bot-Alli/internal/event"
)

// Record is a tracked alert record.
type Record struct {
	ID         string
	ScopeID    string
	TeamID     string // empty when the record has no team
	CreatorID  string
	CreatedAt  int64 // unix seconds
	WinMarker  bool
	LossMarker bool
	Outcome    event.Outcome
	Incomplete bool
}

// InsertRecord inserts a record if its id is unseen.
// Uses ON CONFLICT(id) DO NOTHING for idempotency - returns whether a
// new row was actually inserted so the caller can guard side effects.
func (s *Store) InsertRecord(ctx context.Context, q DBTX, rec Record) (bool, error) {
	res, err := q.ExecContext(ctx, `
		INSERT INTO records (id, scope_id, team_id, creator_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, rec.ID, rec.ScopeID, nullString(rec.TeamID), rec.CreatorID, rec.CreatedAt, time.Now().Unix())
	if err != nil {
		return false, fmt.Errorf("insert record: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert record: rows affected: %w", err)
	}
	return n > 0, nil
}

// GetRecord returns the record with the given id, or (zero, false) when
// it does not exist. Unknown ids are normal - an event may race with a
// deletion - so absence is not an error.
func (s *Store) GetRecord(ctx context.Context, q DBTX, id string) (Record, bool, error) {
	var (
		rec  Record
		team sql.NullString
	)
	err := q.QueryRowContext(ctx, `
		SELECT id, scope_id, team_id, creator_id, created_at, win_marker, loss_marker, outcome, incomplete
		FROM records
		WHERE id = ?
	`, id).Scan(&rec.ID, &rec.ScopeID, &team, &rec.CreatorID, &rec.CreatedAt,
		&rec.WinMarker, &rec.LossMarker, &rec.Outcome, &rec.Incomplete)
	if err == sql.ErrNoRows {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("get record: %w", err)
	}
	rec.TeamID = team.String
	return rec, true, nil
}

// UpdateOutcome persists the derived outcome together with the raw
// markers it was derived from.
func (s *Store) UpdateOutcome(ctx context.Context, q DBTX, id string, winMarker, lossMarker bool, outcome event.Outcome) error {
	_, err := q.ExecContext(ctx, `
		UPDATE records
		SET win_marker = ?, loss_marker = ?, outcome = ?, updated_at = ?
		WHERE id = ?
	`, winMarker, lossMarker, string(outcome), time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("update outcome: %w", err)
	}
	return nil
}

// UpdateIncomplete sets the incomplete flag. No counter side effects.
func (s *Store) UpdateIncomplete(ctx context.Context, q DBTX, id string, incomplete bool) error {
	_, err := q.ExecContext(ctx, `
		UPDATE records SET incomplete = ?, updated_at = ? WHERE id = ?
	`, incomplete, time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("update incomplete: %w", err)
	}
	return nil
}

// DeleteRecord removes the record; participants cascade via the
// foreign key.
func (s *Store) DeleteRecord(ctx context.Context, q DBTX, id string) error {
	if _, err := q.ExecContext(ctx, "DELETE FROM records WHERE id = ?", id); err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	return nil
}

// RecordCreatedTimes returns created_at for every record in scope,
// optionally restricted to one team. Used for the hourly histogram;
// bucketing happens in Go because the bucket boundaries are local-time
// and DST-aware.
func (s *Store) RecordCreatedTimes(ctx context.Context, scopeID, teamID string) ([]int64, error) {
	query := "SELECT created_at FROM records WHERE scope_id = ?"
	args := []any{scopeID}
	if teamID != "" {
		query += " AND team_id = ?"
		args = append(args, teamID)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query record times: %w", err)
	}
	defer rows.Close()

	var times []int64
	for rows.Next() {
		var ts int64
		if err := rows.Scan(&ts); err != nil {
			return nil, fmt.Errorf("scan record time: %w", err)
		}
		times = append(times, ts)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate record times: %w", err)
	}
	return times, nil
}

// ScopeTeams returns the distinct non-null team ids present in scope,
// ordered for deterministic snapshot payloads.
func (s *Store) ScopeTeams(ctx context.Context, scopeID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT team_id FROM records
		WHERE scope_id = ? AND team_id IS NOT NULL
		ORDER BY team_id ASC
	`, scopeID)
	if err != nil {
		return nil, fmt.Errorf("query scope teams: %w", err)
	}
	defer rows.Close()

	var teams []string
	for rows.Next() {
		var team string
		if err := rows.Scan(&team); err != nil {
			return nil, fmt.Errorf("scan team: %w", err)
		}
		teams = append(teams, team)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate teams: %w", err)
	}
	return teams, nil
}

// nullString maps "" to NULL so optional ids stay out of indexes.
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
