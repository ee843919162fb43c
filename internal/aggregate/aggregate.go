// Package aggregate is the read side: it computes true totals as
// snapshot baseline plus live aggregate, and the time-of-day
// histogram. It never mutates state and requires no isolation beyond
// whatever store state is visible at call time.
package aggregate

import (
	"context"
	"time"

	"github.com/manonlortal-sys/Bot-Alli/internal/event"
	"github.com/manonlortal-sys/Bot-Alli/internal/store"
)

// Totals is the decided/undecided breakdown for a scope or team.
type Totals struct {
	Attacks    int64 `json:"attacks"`
	Wins       int64 `json:"wins"`
	Losses     int64 `json:"losses"`
	Incomplete int64 `json:"incomplete"`
}

// Aggregator computes display-facing aggregates over the store.
type Aggregator struct {
	store *store.Store
	loc   *time.Location
}

// New creates an aggregator. loc is the local time zone used for
// hourly bucketing; nil means UTC.
func New(st *store.Store, loc *time.Location) *Aggregator {
	if loc == nil {
		loc = time.UTC
	}
	return &Aggregator{store: st, loc: loc}
}

// Totals returns baseline + live totals for the whole scope.
func (a *Aggregator) Totals(ctx context.Context, scopeID string) (Totals, error) {
	live, err := a.store.ScopeLiveTotals(ctx, scopeID, "")
	if err != nil {
		return Totals{}, err
	}
	return a.addBaseline(ctx, scopeID, store.BaselineGlobalPrefix, live)
}

// TeamTotals returns baseline + live totals for one team in scope.
func (a *Aggregator) TeamTotals(ctx context.Context, scopeID, teamID string) (Totals, error) {
	live, err := a.store.ScopeLiveTotals(ctx, scopeID, teamID)
	if err != nil {
		return Totals{}, err
	}
	return a.addBaseline(ctx, scopeID, store.BaselineTeamPrefix+teamID+".", live)
}

func (a *Aggregator) addBaseline(ctx context.Context, scopeID, prefix string, live store.LiveTotals) (Totals, error) {
	t := Totals{
		Attacks:    live.Attacks,
		Wins:       live.Wins,
		Losses:     live.Losses,
		Incomplete: live.Incomplete,
	}
	for _, f := range []struct {
		field string
		dst   *int64
	}{
		{"attacks", &t.Attacks},
		{"wins", &t.Wins},
		{"losses", &t.Losses},
		{"incomplete", &t.Incomplete},
	} {
		base, err := a.store.BaselineValue(ctx, scopeID, prefix+f.field)
		if err != nil {
			return Totals{}, err
		}
		*f.dst += base
	}
	return t, nil
}

// TopTotals returns the leaderboard for one metric, descending.
// Counters are restored wholesale from snapshots, so no baseline is
// added here.
func (a *Aggregator) TopTotals(ctx context.Context, scopeID string, metric event.Metric, limit int) ([]store.CounterEntry, error) {
	return a.store.TopCounters(ctx, scopeID, metric, limit)
}

// TotalForUser returns one user's count for a metric.
func (a *Aggregator) TotalForUser(ctx context.Context, scopeID string, metric event.Metric, userID string) (int64, error) {
	return a.store.CounterForUser(ctx, scopeID, metric, userID)
}

// RecentForUser returns a user's most recent participations with the
// record outcome attached, newest first.
func (a *Aggregator) RecentForUser(ctx context.Context, scopeID, userID string, limit int) ([]store.UserParticipation, error) {
	return a.store.RecentParticipations(ctx, scopeID, userID, limit)
}
