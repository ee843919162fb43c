package store

import (
	"context"
	"fmt"
)

// LiveTotals are the record counts of the current epoch, before the
// snapshot baseline is added.
type LiveTotals struct {
	Attacks    int64
	Wins       int64
	Losses     int64
	Incomplete int64
}

// ScopeLiveTotals aggregates the live record rows for a scope,
// optionally restricted to one team.
func (s *Store) ScopeLiveTotals(ctx context.Context, scopeID, teamID string) (LiveTotals, error) {
	query := `
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN outcome = 'win' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN outcome = 'loss' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(incomplete), 0)
		FROM records
		WHERE scope_id = ?`
	args := []any{scopeID}
	if teamID != "" {
		query += " AND team_id = ?"
		args = append(args, teamID)
	}

	var t LiveTotals
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&t.Attacks, &t.Wins, &t.Losses, &t.Incomplete)
	if err != nil {
		return LiveTotals{}, fmt.Errorf("live totals: %w", err)
	}
	return t, nil
}
