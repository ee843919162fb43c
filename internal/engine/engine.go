// Package engine implements the event processor: the state machine
// that turns unordered, possibly-duplicated participation and outcome
// events into durable record and counter state.
//
// Correctness model: every event is applied inside one transaction,
// and every idempotency-sensitive write is a single-statement upsert
// guarded by a uniqueness constraint. Duplicate and reordered
// deliveries of the same event converge to the same final state.
//
// The engine is designed for a single active writer. Where two events
// are nonetheless applied in parallel, the participant primary key and
// the counter upserts keep totals exact; an outcome transition and a
// concurrent join serialize through the transaction so the joiner is
// counted exactly once for the final outcome, whichever lands first.
package engine

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/manonlortal-sys/Bot-Alli/internal/event"
	"github.com/manonlortal-sys/Bot-Alli/internal/store"
)

// Engine applies inbound events to the store.
type Engine struct {
	store *store.Store
	log   *slog.Logger
}

// New creates an engine. A nil logger disables logging.
func New(st *store.Store, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Engine{store: st, log: logger}
}

// Apply processes one event. It returns whether the event changed
// state: duplicates, unknown record ids, and rejected removals are
// expected no-ops, reported as (false, nil), never as errors.
func (e *Engine) Apply(ctx context.Context, ev event.Event) (bool, error) {
	if err := event.Validate(ev); err != nil {
		return false, fmt.Errorf("apply: %w", err)
	}

	switch ev := ev.(type) {
	case event.RecordSeen:
		return e.recordSeen(ctx, ev)
	case event.ParticipationMarked:
		return e.participationMarked(ctx, ev)
	case event.ParticipationUnmarked:
		return e.participationUnmarked(ctx, ev)
	case event.OutcomeMarkerChanged:
		return e.outcomeMarkerChanged(ctx, ev)
	case event.RecordDeleted:
		return e.recordDeleted(ctx, ev)
	default:
		return false, fmt.Errorf("apply: unknown event type %T", ev)
	}
}

// recordSeen upserts the record. Only the first sighting credits the
// creator's initiator counter; the record primary key guards the rest.
func (e *Engine) recordSeen(ctx context.Context, ev event.RecordSeen) (bool, error) {
	var inserted bool
	err := e.store.WithTx(ctx, func(tx *sql.Tx) error {
		var err error
		inserted, err = e.store.InsertRecord(ctx, tx, store.Record{
			ID:        ev.ID,
			ScopeID:   ev.ScopeID,
			TeamID:    ev.TeamID,
			CreatorID: ev.CreatorID,
			CreatedAt: ev.CreatedAt,
		})
		if err != nil {
			return err
		}
		if !inserted {
			return nil
		}
		return e.store.IncrementCounter(ctx, tx, ev.ScopeID, event.MetricInitiator, ev.CreatorID)
	})
	if err != nil {
		return false, fmt.Errorf("record seen %s: %w", ev.ID, err)
	}

	if inserted {
		e.log.Info("record tracked", "record", ev.ID, "scope", ev.ScopeID, "creator", ev.CreatorID)
	} else {
		e.log.Debug("duplicate record seen", "record", ev.ID)
	}
	return inserted, nil
}

// participationMarked inserts the participant row and, on first
// insertion, credits participation - plus the win/loss counter when the
// outcome is already fixed, so a late joiner into a decided record is
// credited consistently.
func (e *Engine) participationMarked(ctx context.Context, ev event.ParticipationMarked) (bool, error) {
	var inserted bool
	err := e.store.WithTx(ctx, func(tx *sql.Tx) error {
		rec, found, err := e.store.GetRecord(ctx, tx, ev.Record)
		if err != nil {
			return err
		}
		if !found {
			return nil
		}

		inserted, err = e.store.InsertParticipant(ctx, tx, store.Participant{
			RecordID: ev.Record,
			UserID:   ev.UserID,
			AddedBy:  ev.ActorID,
			Source:   ev.Source,
		})
		if err != nil {
			return err
		}
		if !inserted {
			return nil
		}

		if err := e.store.IncrementCounter(ctx, tx, rec.ScopeID, event.MetricParticipation, ev.UserID); err != nil {
			return err
		}
		if metric, fixed := event.MetricForOutcome(rec.Outcome); fixed {
			// Retroactive credit for joining an already-decided record.
			if err := e.store.IncrementCounter(ctx, tx, rec.ScopeID, metric, ev.UserID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("participation marked %s/%s: %w", ev.Record, ev.UserID, err)
	}

	if inserted {
		e.log.Info("participation marked", "record", ev.Record, "user", ev.UserID, "source", string(ev.Source))
	} else {
		e.log.Debug("participation already marked or record unknown", "record", ev.Record, "user", ev.UserID)
	}
	return inserted, nil
}

// participationUnmarked removes the entry only when the original actor
// of a self-sourced entry revokes it. Assisted entries are not
// revocable through this path: one user's click must not delete
// another actor's deliberate addition.
func (e *Engine) participationUnmarked(ctx context.Context, ev event.ParticipationUnmarked) (bool, error) {
	var removed bool
	err := e.store.WithTx(ctx, func(tx *sql.Tx) error {
		rec, found, err := e.store.GetRecord(ctx, tx, ev.Record)
		if err != nil {
			return err
		}
		if !found {
			return nil
		}

		p, found, err := e.store.GetParticipant(ctx, tx, ev.Record, ev.UserID)
		if err != nil {
			return err
		}
		if !found {
			return nil
		}
		if p.Source != event.SourceSelf || p.AddedBy != ev.ActorID {
			e.log.Debug("unmark rejected", "record", ev.Record, "user", ev.UserID,
				"source", string(p.Source), "actor", ev.ActorID, "added_by", p.AddedBy)
			return nil
		}

		removed, err = e.store.DeleteParticipant(ctx, tx, ev.Record, ev.UserID)
		if err != nil {
			return err
		}
		if !removed {
			return nil
		}

		if err := e.store.DecrementCounter(ctx, tx, rec.ScopeID, event.MetricParticipation, ev.UserID); err != nil {
			return err
		}
		if metric, fixed := event.MetricForOutcome(rec.Outcome); fixed {
			if err := e.store.DecrementCounter(ctx, tx, rec.ScopeID, metric, ev.UserID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("participation unmarked %s/%s: %w", ev.Record, ev.UserID, err)
	}

	if removed {
		e.log.Info("participation unmarked", "record", ev.Record, "user", ev.UserID)
	}
	return removed, nil
}

// outcomeMarkerChanged recomputes the outcome from the two markers and,
// on a transition, reprices every current participant: decrement the
// counter of the old outcome, increment the counter of the new one.
// The whole recount shares the event's transaction, so a join racing
// the transition lands either before the recount (and is repriced) or
// after the new outcome is visible (and is priced at insert time).
func (e *Engine) outcomeMarkerChanged(ctx context.Context, ev event.OutcomeMarkerChanged) (bool, error) {
	var (
		changed    bool
		transition bool
		from, to   event.Outcome
	)
	err := e.store.WithTx(ctx, func(tx *sql.Tx) error {
		rec, found, err := e.store.GetRecord(ctx, tx, ev.Record)
		if err != nil {
			return err
		}
		if !found {
			return nil
		}

		if ev.Marker == event.MarkerIncomplete {
			if rec.Incomplete == ev.Present {
				return nil
			}
			changed = true
			return e.store.UpdateIncomplete(ctx, tx, ev.Record, ev.Present)
		}

		winMarker, lossMarker := rec.WinMarker, rec.LossMarker
		switch ev.Marker {
		case event.MarkerWin:
			winMarker = ev.Present
		case event.MarkerLoss:
			lossMarker = ev.Present
		}
		if winMarker == rec.WinMarker && lossMarker == rec.LossMarker {
			return nil
		}
		changed = true

		newOutcome := event.DeriveOutcome(winMarker, lossMarker)
		if newOutcome != rec.Outcome {
			transition = true
			from, to = rec.Outcome, newOutcome

			participants, err := e.store.ListParticipants(ctx, tx, ev.Record)
			if err != nil {
				return err
			}
			for _, p := range participants {
				if metric, fixed := event.MetricForOutcome(rec.Outcome); fixed {
					if err := e.store.DecrementCounter(ctx, tx, rec.ScopeID, metric, p.UserID); err != nil {
						return err
					}
				}
				if metric, fixed := event.MetricForOutcome(newOutcome); fixed {
					if err := e.store.IncrementCounter(ctx, tx, rec.ScopeID, metric, p.UserID); err != nil {
						return err
					}
				}
			}
		}

		return e.store.UpdateOutcome(ctx, tx, ev.Record, winMarker, lossMarker, newOutcome)
	})
	if err != nil {
		return false, fmt.Errorf("outcome marker %s: %w", ev.Record, err)
	}

	if transition {
		e.log.Info("outcome transition", "record", ev.Record, "from", string(from), "to", string(to))
	} else if !changed {
		e.log.Debug("marker change was a no-op", "record", ev.Record, "marker", string(ev.Marker))
	}
	return changed, nil
}

// recordDeleted reverses every credit attached to the record - each
// participant's participation and outcome counters plus the creator's
// initiator counter - then deletes the record. Participants cascade.
func (e *Engine) recordDeleted(ctx context.Context, ev event.RecordDeleted) (bool, error) {
	var deleted bool
	err := e.store.WithTx(ctx, func(tx *sql.Tx) error {
		rec, found, err := e.store.GetRecord(ctx, tx, ev.Record)
		if err != nil {
			return err
		}
		if !found {
			return nil
		}

		participants, err := e.store.ListParticipants(ctx, tx, ev.Record)
		if err != nil {
			return err
		}
		outcomeMetric, fixed := event.MetricForOutcome(rec.Outcome)
		for _, p := range participants {
			if err := e.store.DecrementCounter(ctx, tx, rec.ScopeID, event.MetricParticipation, p.UserID); err != nil {
				return err
			}
			if fixed {
				if err := e.store.DecrementCounter(ctx, tx, rec.ScopeID, outcomeMetric, p.UserID); err != nil {
					return err
				}
			}
		}

		if err := e.store.DecrementCounter(ctx, tx, rec.ScopeID, event.MetricInitiator, rec.CreatorID); err != nil {
			return err
		}

		deleted = true
		return e.store.DeleteRecord(ctx, tx, ev.Record)
	})
	if err != nil {
		return false, fmt.Errorf("record deleted %s: %w", ev.Record, err)
	}

	if deleted {
		e.log.Info("record deleted", "record", ev.Record)
	} else {
		e.log.Debug("delete for unknown record", "record", ev.Record)
	}
	return deleted, nil
}
