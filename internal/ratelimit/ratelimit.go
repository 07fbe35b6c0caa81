// Package ratelimit bounds outbound calls to the publish channel with a
// token bucket. The bucket is the only component allowed to mutate its own
// state; the orchestrator refills it exactly once per cycle and the
// publisher draws tokens one post at a time.
package ratelimit

import (
	"sync"
	"time"
)

// Limiter is a token bucket. Refill is driven by the cycle boundary, not a
// background timer, so runs are deterministic under a test clock.
type Limiter struct {
	mu         sync.Mutex
	capacity   int
	refill     int
	tokens     int
	lastRefill time.Time
}

// State is a read-only view of the bucket for inspection and checkpoints.
type State struct {
	Tokens     int       `json:"tokens"`
	Capacity   int       `json:"capacity"`
	RefillRate int       `json:"refill_rate"`
	LastRefill time.Time `json:"last_refill"`
}

// New creates a full bucket with the given capacity and per-cycle refill.
func New(capacity, refillPerCycle int) *Limiter {
	return &Limiter{
		capacity: capacity,
		refill:   refillPerCycle,
		tokens:   capacity,
	}
}

// Restore replays per-cycle post counts from a checkpoint so the rebuilt
// bucket carries the same balance as the uninterrupted run would. Called
// once by the orchestrator before the first resumed cycle.
func (l *Limiter) Restore(cycle int64, postsPerCycle map[int64]int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	tokens := l.capacity
	for c := int64(1); c <= cycle; c++ {
		tokens += l.refill
		if tokens > l.capacity {
			tokens = l.capacity
		}
		tokens -= postsPerCycle[c]
		if tokens < 0 {
			tokens = 0
		}
	}
	l.tokens = tokens
}

// TryAcquire takes one token if available. Never blocks.
func (l *Limiter) TryAcquire() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.tokens <= 0 {
		return false
	}
	l.tokens--
	return true
}

// Refill adds the per-cycle allowance, clamped to capacity. Called once per
// cycle by the orchestrator.
func (l *Limiter) Refill(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.tokens += l.refill
	if l.tokens > l.capacity {
		l.tokens = l.capacity
	}
	l.lastRefill = now
}

// State returns the current bucket state.
func (l *Limiter) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()

	return State{
		Tokens:     l.tokens,
		Capacity:   l.capacity,
		RefillRate: l.refill,
		LastRefill: l.lastRefill,
	}
}
