// Package ratelimit implements the linux-kernel-style "burst+interval"
// limiter (burst B within a rolling interval I), plus an optional
// per-source keyed sub-limiter with LRU eviction.
package ratelimit

import (
	"container/list"
	"sync"
	"sync/atomic"
	"time"
)

// Limiter enforces: for a given key, messages allowed in any rolling
// window of Interval seconds is <= Burst. It is the single-key primitive;
// Keyed wraps N of these behind an LRU.
type Limiter struct {
	interval time.Duration
	burst    int64

	mu           sync.Mutex
	windowStart  time.Time
	count        int64
	discardSev   int

	allowed  atomic.Int64
	rejected atomic.Int64
}

// New constructs a Limiter with interval seconds and burst count,
// discardSeverity carried alongside the counters (messages at-or-
// below this severity are candidates for discard once the limiter is
// saturated; the caller decides whether to consult it, the limiter
// itself only gates count).
func New(intervalSeconds int, burst int, discardSeverity int) *Limiter {
	return &Limiter{
		interval:   time.Duration(intervalSeconds) * time.Second,
		burst:      int64(burst),
		discardSev: discardSeverity,
	}
}

// Allow reports whether one more message may pass right now, consuming
// one slot of the current rolling window if so.
func (l *Limiter) Allow(now time.Time) bool {
	if l.burst <= 0 || l.interval <= 0 {
		l.allowed.Add(1)
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.windowStart) >= l.interval {
		l.windowStart = now
		l.count = 0
	}

	if l.count >= l.burst {
		l.rejected.Add(1)
		return false
	}
	l.count++
	l.allowed.Add(1)
	return true
}

// DiscardSeverity returns the configured discard-severity threshold.
func (l *Limiter) DiscardSeverity() int { return l.discardSev }

// Stats returns the cumulative allowed/rejected counters (never reset,
// matching "rejections are counted, not silently lost").
func (l *Limiter) Stats() (allowed, rejected int64) {
	return l.allowed.Load(), l.rejected.Load()
}

// KeySource selects which message attribute keys a per-source
// sub-limit: a template rendering, or one of from-host, from-host:port,
// from-host-IP, from-host-IP:port.
type KeySource int

const (
	KeyFromHost KeySource = iota
	KeyFromHostPort
	KeyFromHostIP
	KeyFromHostIPPort
	KeyTemplate
)

// Keyed is a per-source table of Limiters keyed by an arbitrary string,
// bounded at maxStates with least-recently-used eviction, matching the
// Ratelimiter data model's "per-source table ... with LRU eviction at
// max-states, top-N counters, and per-source stats object."
type Keyed struct {
	intervalSeconds int
	burst           int
	discardSeverity int
	maxStates       int

	mu      sync.Mutex
	entries map[string]*list.Element
	order   *list.List // front = most recently used
}

type keyedEntry struct {
	key     string
	limiter *Limiter
}

// NewKeyed constructs a bounded per-key limiter table.
func NewKeyed(intervalSeconds, burst, discardSeverity, maxStates int) *Keyed {
	return &Keyed{
		intervalSeconds: intervalSeconds,
		burst:           burst,
		discardSeverity: discardSeverity,
		maxStates:       maxStates,
		entries:         make(map[string]*list.Element),
		order:           list.New(),
	}
}

// Allow gates one message under key, lazily creating (or evicting to make
// room for) that key's sub-limiter.
func (k *Keyed) Allow(key string, now time.Time) bool {
	k.mu.Lock()
	el, ok := k.entries[key]
	if ok {
		k.order.MoveToFront(el)
	} else {
		if k.maxStates > 0 && len(k.entries) >= k.maxStates {
			k.evictOldestLocked()
		}
		lim := New(k.intervalSeconds, k.burst, k.discardSeverity)
		el = k.order.PushFront(&keyedEntry{key: key, limiter: lim})
		k.entries[key] = el
	}
	lim := el.Value.(*keyedEntry).limiter
	k.mu.Unlock()

	return lim.Allow(now)
}

func (k *Keyed) evictOldestLocked() {
	oldest := k.order.Back()
	if oldest == nil {
		return
	}
	k.order.Remove(oldest)
	delete(k.entries, oldest.Value.(*keyedEntry).key)
}

// TopN returns the n keys with the highest rejected count, for operator
// visibility ("top-N counters" in the data model).
func (k *Keyed) TopN(n int) []KeyStat {
	k.mu.Lock()
	defer k.mu.Unlock()

	stats := make([]KeyStat, 0, len(k.entries))
	for el := k.order.Front(); el != nil; el = el.Next() {
		ke := el.Value.(*keyedEntry)
		allowed, rejected := ke.limiter.Stats()
		stats = append(stats, KeyStat{Key: ke.key, Allowed: allowed, Rejected: rejected})
	}

	// Simple insertion sort by Rejected descending; table sizes here are
	// small (bounded by maxStates) so an O(n^2) sort is not worth
	// importing sort for.
	for i := 1; i < len(stats); i++ {
		for j := i; j > 0 && stats[j].Rejected > stats[j-1].Rejected; j-- {
			stats[j], stats[j-1] = stats[j-1], stats[j]
		}
	}
	if n > 0 && n < len(stats) {
		stats = stats[:n]
	}
	return stats
}

// KeyStat reports one keyed sub-limiter's cumulative counters.
type KeyStat struct {
	Key      string
	Allowed  int64
	Rejected int64
}

// Len reports the number of live keyed sub-limiters, bounded by maxStates.
func (k *Keyed) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.entries)
}
