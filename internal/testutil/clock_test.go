package testutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFixedClock_OnlyMovesWhenAdvanced(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c := NewFixedClock(start)

	assert.True(t, c.Now().Equal(start))
	assert.True(t, c.Now().Equal(start), "repeated reads do not drift")

	c.Advance(90 * time.Second)
	assert.True(t, c.Now().Equal(start.Add(90*time.Second)))
}
