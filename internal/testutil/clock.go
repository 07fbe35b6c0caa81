// Package testutil holds deterministic helpers shared by tests.
package testutil

import (
	"sync"
	"time"
)

// FixedClock is a thread-safe wall clock that only moves when told to.
// Passing its Now method wherever a component takes a clock makes
// timestamps reproducible across runs.
type FixedClock struct {
	mu sync.Mutex
	t  time.Time
}

// NewFixedClock creates a clock pinned to start.
func NewFixedClock(start time.Time) *FixedClock {
	return &FixedClock{t: start}
}

// Now returns the current pinned time.
func (c *FixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

// Advance moves the clock forward by d.
func (c *FixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}
