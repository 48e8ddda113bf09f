package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// Quantified invariant 3: for a ratelimiter R with burst=B, interval=I,
// and key K, the count of messages passed through R under key K in any
// rolling window of I seconds is <= B.
func TestLimiterEnforcesBurstWithinInterval(t *testing.T) {
	lim := New(1, 2, 4)
	start := time.Unix(0, 0)

	assert.True(t, lim.Allow(start))
	assert.True(t, lim.Allow(start.Add(100*time.Millisecond)))
	assert.False(t, lim.Allow(start.Add(200*time.Millisecond)))

	allowed, rejected := lim.Stats()
	assert.Equal(t, int64(2), allowed)
	assert.Equal(t, int64(1), rejected)
}

// Scenario E: ratelimiter(interval=1, burst=2), three messages in 0.5s
// with the same key -> 2 submitted, 1 counted as discarded.
func TestScenarioERatelimitThreeMessagesHalfSecond(t *testing.T) {
	lim := New(1, 2, 4)
	start := time.Unix(0, 0)

	results := []bool{
		lim.Allow(start),
		lim.Allow(start.Add(200 * time.Millisecond)),
		lim.Allow(start.Add(500 * time.Millisecond)),
	}

	passed := 0
	for _, r := range results {
		if r {
			passed++
		}
	}
	assert.Equal(t, 2, passed)

	_, rejected := lim.Stats()
	assert.Equal(t, int64(1), rejected)
}

func TestLimiterResetsAfterWindowElapses(t *testing.T) {
	lim := New(1, 2, 4)
	start := time.Unix(0, 0)
	assert.True(t, lim.Allow(start))
	assert.True(t, lim.Allow(start))
	assert.False(t, lim.Allow(start))

	assert.True(t, lim.Allow(start.Add(1100*time.Millisecond)))
}

func TestKeyedEvictsLeastRecentlyUsedAtMaxStates(t *testing.T) {
	k := NewKeyed(60, 100, 4, 2)
	now := time.Now()

	assert.True(t, k.Allow("host-a", now))
	assert.True(t, k.Allow("host-b", now))
	assert.Equal(t, 2, k.Len())

	// touch host-a so it becomes most-recently-used, then add a third key
	// which must evict host-b, not host-a.
	assert.True(t, k.Allow("host-a", now))
	assert.True(t, k.Allow("host-c", now))
	assert.Equal(t, 2, k.Len())

	stats := k.TopN(10)
	keys := map[string]bool{}
	for _, s := range stats {
		keys[s.Key] = true
	}
	assert.True(t, keys["host-a"])
	assert.True(t, keys["host-c"])
	assert.False(t, keys["host-b"])
}

func TestKeyedIndependentLimitsPerKey(t *testing.T) {
	k := NewKeyed(1, 1, 4, 10)
	now := time.Now()
	assert.True(t, k.Allow("a", now))
	assert.False(t, k.Allow("a", now))
	assert.True(t, k.Allow("b", now))
}
