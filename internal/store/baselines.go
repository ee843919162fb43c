package store

import (
	"context"
	"database/sql"
	"fmt"
)

// Baseline key namespaces. Keys look like "global.attacks",
// "team:7.wins", "hourly.morning".
const (
	BaselineGlobalPrefix = "global."
	BaselineTeamPrefix   = "team:"
	BaselineHourlyPrefix = "hourly."
)

// TeamBaselineKey builds the namespaced key for a team metric.
func TeamBaselineKey(teamID, field string) string {
	return BaselineTeamPrefix + teamID + "." + field
}

// BaselineValue returns the baseline for (scope, key), zero when the
// key was never seeded. Zero is the correct first-run value, not a
// degraded one.
func (s *Store) BaselineValue(ctx context.Context, scopeID, key string) (int64, error) {
	var value int64
	err := s.db.QueryRowContext(ctx, `
		SELECT value FROM baselines WHERE scope_id = ? AND key = ?
	`, scopeID, key).Scan(&value)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("baseline value: %w", err)
	}
	return value, nil
}

// BaselineMap returns every baseline row for a scope.
func (s *Store) BaselineMap(ctx context.Context, scopeID string) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT key, value FROM baselines WHERE scope_id = ?
	`, scopeID)
	if err != nil {
		return nil, fmt.Errorf("query baselines: %w", err)
	}
	defer rows.Close()

	m := make(map[string]int64)
	for rows.Next() {
		var (
			key   string
			value int64
		)
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scan baseline: %w", err)
		}
		m[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate baselines: %w", err)
	}
	return m, nil
}

// ReplaceBaselines wholesale-replaces all baseline rows for a scope.
// Delete-then-insert, never merge: restoring the same snapshot twice
// must produce identical baselines, not doubled ones.
func (s *Store) ReplaceBaselines(ctx context.Context, q DBTX, scopeID string, values map[string]int64) error {
	if _, err := q.ExecContext(ctx, "DELETE FROM baselines WHERE scope_id = ?", scopeID); err != nil {
		return fmt.Errorf("replace baselines: clear: %w", err)
	}

	for key, value := range values {
		_, err := q.ExecContext(ctx, `
			INSERT INTO baselines (scope_id, key, value) VALUES (?, ?, ?)
		`, scopeID, key, value)
		if err != nil {
			return fmt.Errorf("replace baselines: insert %s: %w", key, err)
		}
	}
	return nil
}
