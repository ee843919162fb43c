package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/manonlortal-sys/Bot-Alli/internal/event"
)

// Participant is one (record, user) participation credit.
type Participant struct {
	RecordID string
	UserID   string
	AddedBy  string // empty when unknown
	Source   event.Source
	MarkedAt int64
}

// InsertParticipant inserts a participation row.
// The (record_id, user_id) primary key makes the insert idempotent;
// returns whether a new row was inserted so the caller can guard the
// counter side effects.
func (s *Store) InsertParticipant(ctx context.Context, q DBTX, p Participant) (bool, error) {
	markedAt := p.MarkedAt
	if markedAt == 0 {
		markedAt = time.Now().Unix()
	}

	res, err := q.ExecContext(ctx, `
		INSERT INTO participants (record_id, user_id, added_by, source, marked_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(record_id, user_id) DO NOTHING
	`, p.RecordID, p.UserID, nullString(p.AddedBy), string(p.Source), markedAt)
	if err != nil {
		return false, fmt.Errorf("insert participant: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert participant: rows affected: %w", err)
	}
	return n > 0, nil
}

// GetParticipant returns the entry for (recordID, userID), or
// (zero, false) when the user is not a participant.
func (s *Store) GetParticipant(ctx context.Context, q DBTX, recordID, userID string) (Participant, bool, error) {
	var (
		p       Participant
		addedBy sql.NullString
	)
	err := q.QueryRowContext(ctx, `
		SELECT record_id, user_id, added_by, source, marked_at
		FROM participants
		WHERE record_id = ? AND user_id = ?
	`, recordID, userID).Scan(&p.RecordID, &p.UserID, &addedBy, &p.Source, &p.MarkedAt)
	if err == sql.ErrNoRows {
		return Participant{}, false, nil
	}
	if err != nil {
		return Participant{}, false, fmt.Errorf("get participant: %w", err)
	}
	p.AddedBy = addedBy.String
	return p, true, nil
}

// DeleteParticipant removes the entry and reports whether a row was
// actually deleted.
func (s *Store) DeleteParticipant(ctx context.Context, q DBTX, recordID, userID string) (bool, error) {
	res, err := q.ExecContext(ctx, `
		DELETE FROM participants WHERE record_id = ? AND user_id = ?
	`, recordID, userID)
	if err != nil {
		return false, fmt.Errorf("delete participant: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete participant: rows affected: %w", err)
	}
	return n > 0, nil
}

// ListParticipants returns every participant of a record, ordered by
// marked_at then user_id for determinism.
func (s *Store) ListParticipants(ctx context.Context, q DBTX, recordID string) ([]Participant, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT record_id, user_id, added_by, source, marked_at
		FROM participants
		WHERE record_id = ?
		ORDER BY marked_at ASC, user_id ASC
	`, recordID)
	if err != nil {
		return nil, fmt.Errorf("query participants: %w", err)
	}
	defer rows.Close()

	var participants []Participant
	for rows.Next() {
		var (
			p       Participant
			addedBy sql.NullString
		)
		if err := rows.Scan(&p.RecordID, &p.UserID, &addedBy, &p.Source, &p.MarkedAt); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		p.AddedBy = addedBy.String
		participants = append(participants, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate participants: %w", err)
	}
	return participants, nil
}

// FirstParticipant returns the earliest participant of a record, or
// (zero, false) when the record has none.
func (s *Store) FirstParticipant(ctx context.Context, recordID string) (Participant, bool, error) {
	var (
		p       Participant
		addedBy sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT record_id, user_id, added_by, source, marked_at
		FROM participants
		WHERE record_id = ?
		ORDER BY marked_at ASC, user_id ASC
		LIMIT 1
	`, recordID).Scan(&p.RecordID, &p.UserID, &addedBy, &p.Source, &p.MarkedAt)
	if err == sql.ErrNoRows {
		return Participant{}, false, nil
	}
	if err != nil {
		return Participant{}, false, fmt.Errorf("first participant: %w", err)
	}
	p.AddedBy = addedBy.String
	return p, true, nil
}

// UserParticipation is one row of a user's participation history.
type UserParticipation struct {
	RecordID  string
	MarkedAt  int64
	CreatedAt int64
	Outcome   event.Outcome
}

// RecentParticipations returns a user's most recent participations in
// scope, newest first, with the record outcome attached.
func (s *Store) RecentParticipations(ctx context.Context, scopeID, userID string, limit int) ([]UserParticipation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.record_id, p.marked_at, r.created_at, r.outcome
		FROM participants p
		JOIN records r ON r.id = p.record_id
		WHERE r.scope_id = ? AND p.user_id = ?
		ORDER BY p.marked_at DESC, p.record_id DESC
		LIMIT ?
	`, scopeID, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent participations: %w", err)
	}
	defer rows.Close()

	var out []UserParticipation
	for rows.Next() {
		var up UserParticipation
		if err := rows.Scan(&up.RecordID, &up.MarkedAt, &up.CreatedAt, &up.Outcome); err != nil {
			return nil, fmt.Errorf("scan participation: %w", err)
		}
		out = append(out, up)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate participations: %w", err)
	}
	return out, nil
}

// UserParticipationTimes returns record created_at for every record in
// scope the user participated in. Feeds the per-user hourly histogram.
func (s *Store) UserParticipationTimes(ctx context.Context, scopeID, userID string) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.created_at
		FROM participants p
		JOIN records r ON r.id = p.record_id
		WHERE r.scope_id = ? AND p.user_id = ?
	`, scopeID, userID)
	if err != nil {
		return nil, fmt.Errorf("query participation times: %w", err)
	}
	defer rows.Close()

	var times []int64
	for rows.Next() {
		var ts int64
		if err := rows.Scan(&ts); err != nil {
			return nil, fmt.Errorf("scan participation time: %w", err)
		}
		times = append(times, ts)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate participation times: %w", err)
	}
	return times, nil
}
