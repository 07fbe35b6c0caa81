package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLimiter_StartsFull(t *testing.T) {
	l := New(3, 1)

	assert.True(t, l.TryAcquire())
	assert.True(t, l.TryAcquire())
	assert.True(t, l.TryAcquire())
	assert.False(t, l.TryAcquire(), "empty bucket must deny")
}

func TestLimiter_CapacityOneOnePostPerCycle(t *testing.T) {
	l := New(1, 1)

	// Regardless of queue depth, only one acquire succeeds per cycle.
	for cycle := 0; cycle < 5; cycle++ {
		l.Refill(time.Unix(int64(cycle), 0))
		granted := 0
		for i := 0; i < 10; i++ {
			if l.TryAcquire() {
				granted++
			}
		}
		assert.Equal(t, 1, granted, "cycle %d", cycle)
	}
}

func TestLimiter_RefillClampedToCapacity(t *testing.T) {
	l := New(2, 5)

	l.Refill(time.Unix(1, 0))
	s := l.State()
	assert.Equal(t, 2, s.Tokens)
	assert.Equal(t, time.Unix(1, 0), s.LastRefill)
}

func TestLimiter_RestoreReplaysTokenDebt(t *testing.T) {
	// Capacity 2, refill 1. Two posts on cycle 1 drain the bucket; one
	// refill on cycle 2 leaves a single token, not a fresh full bucket.
	l := New(2, 1)
	l.Restore(2, map[int64]int{1: 2})

	assert.Equal(t, 1, l.State().Tokens)

	live := New(2, 1)
	live.Refill(time.Unix(1, 0))
	live.TryAcquire()
	live.TryAcquire()
	live.Refill(time.Unix(2, 0))
	assert.Equal(t, live.State().Tokens, l.State().Tokens)
}

func TestLimiter_StateDoesNotMutate(t *testing.T) {
	l := New(2, 1)

	before := l.State()
	_ = l.State()
	assert.Equal(t, before.Tokens, l.State().Tokens)
}
