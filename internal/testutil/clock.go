// Package testutil provides deterministic fixtures for engine and
// snapshot tests.
package testutil

import (
	"sync"
	"time"
)

// Clock is a thread-safe deterministic clock for tests. It hands out
// strictly increasing unix timestamps starting from a fixed base, so
// record and participation times are reproducible across runs.
type Clock struct {
	mu   sync.Mutex
	now  int64
	step int64
}

// NewClock creates a clock starting at base, advancing by step per
// Next call. A zero step advances by one second.
func NewClock(base time.Time, step time.Duration) *Clock {
	s := int64(step / time.Second)
	if s <= 0 {
		s = 1
	}
	return &Clock{now: base.Unix(), step: s}
}

// Next advances the clock and returns the new unix timestamp.
func (c *Clock) Next() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now += c.step
	return c.now
}

// Current returns the current timestamp without advancing.
func (c *Clock) Current() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}
