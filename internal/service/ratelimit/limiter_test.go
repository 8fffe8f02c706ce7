package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLimiterBurstAndRefill(t *testing.T) {
	now := time.Unix(0, 0)
	l := New(2, 3)
	l.now = func() time.Time { return now }

	for n := 0; n < 3; n++ {
		assert.True(t, l.Allow("a"))
	}
	assert.False(t, l.Allow("a"))
	assert.True(t, l.Allow("b"))

	now = now.Add(500 * time.Millisecond)
	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))

	now = now.Add(time.Hour)
	for n := 0; n < 3; n++ {
		assert.True(t, l.Allow("a"))
	}
	assert.False(t, l.Allow("a"))
}

func TestLimiterDisabled(t *testing.T) {
	l := New(0, 0)
	for n := 0; n < 100; n++ {
		assert.True(t, l.Allow("a"))
	}
}

func TestLimiterPrune(t *testing.T) {
	now := time.Unix(0, 0)
	l := New(1, 1)
	l.now = func() time.Time { return now }
	l.Allow("a")
	now = now.Add(time.Minute)
	l.Allow("b")
	assert.Equal(t, 1, l.Prune(30*time.Second))
}
