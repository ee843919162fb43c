package aggregate

import (
	"context"
	"time"

	"github.com/manonlortal-sys/Bot-Alli/internal/store"
)

// Histogram buckets activity into four fixed local-time windows:
// morning 06-10, afternoon 10-18, evening 18-24, night 00-06.
type Histogram struct {
	Morning   int64 `json:"morning"`
	Afternoon int64 `json:"afternoon"`
	Evening   int64 `json:"evening"`
	Night     int64 `json:"night"`
}

// BucketNames lists the histogram buckets in display order.
var BucketNames = []string{"morning", "afternoon", "evening", "night"}

// Bucket returns the pointer to the named bucket, nil for unknown
// names. Lets the snapshot codec treat the histogram as a map.
func (h *Histogram) Bucket(name string) *int64 {
	switch name {
	case "morning":
		return &h.Morning
	case "afternoon":
		return &h.Afternoon
	case "evening":
		return &h.Evening
	case "night":
		return &h.Night
	}
	return nil
}

// HourlyHistogram buckets live record creation times in scope and adds
// the matching baseline bucket values.
func (a *Aggregator) HourlyHistogram(ctx context.Context, scopeID string) (Histogram, error) {
	times, err := a.store.RecordCreatedTimes(ctx, scopeID, "")
	if err != nil {
		return Histogram{}, err
	}

	h := a.bucketTimes(times)
	for _, name := range BucketNames {
		base, err := a.store.BaselineValue(ctx, scopeID, store.BaselineHourlyPrefix+name)
		if err != nil {
			return Histogram{}, err
		}
		*h.Bucket(name) += base
	}
	return h, nil
}

// UserHourly buckets one user's live participations. Per-user activity
// is live-only: snapshots carry no per-user histogram.
func (a *Aggregator) UserHourly(ctx context.Context, scopeID, userID string) (Histogram, error) {
	times, err := a.store.UserParticipationTimes(ctx, scopeID, userID)
	if err != nil {
		return Histogram{}, err
	}
	return a.bucketTimes(times), nil
}

func (a *Aggregator) bucketTimes(times []int64) Histogram {
	var h Histogram
	for _, ts := range times {
		hour := time.Unix(ts, 0).In(a.loc).Hour()
		switch {
		case hour >= 6 && hour < 10:
			h.Morning++
		case hour >= 10 && hour < 18:
			h.Afternoon++
		case hour >= 18:
			h.Evening++
		default:
			h.Night++
		}
	}
	return h
}
