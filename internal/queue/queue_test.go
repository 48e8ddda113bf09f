package queue

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rsyslog-go/daemon/internal/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Boundary behavior 12: Queue capacity 10, discard-mark 8,
// discard-severity 5 -> 9th enqueue of a severity-6 message succeeds;
// 9th enqueue of a severity-4 message is discarded.
//
// Discard-mark is measured against current queue depth, and a worker
// takes a message off the queue before it calls the consumer. So this
// test first parks the single worker on one held message, then fills
// the queue to 8 undrained messages, then issues the 9th.
func TestDiscardMarkAndSeverityBoundary(t *testing.T) {
	var processed atomic.Int64
	release := make(chan struct{})
	consumer := func(m *message.Message) {
		<-release
		processed.Add(1)
	}

	cfg := DefaultConfig()
	cfg.Capacity = 16
	cfg.DiscardMark = 8
	cfg.DiscardSeverity = 5
	cfg.NumWorkers = 1
	cfg.MaxWorkers = 1

	q := New(cfg, nil, consumer, nil)
	require.NoError(t, q.Start(context.Background()))
	defer close(release)

	first := message.Construct(time.Now())
	first.Severity = message.SeverityNotice
	require.NoError(t, q.Enqueue(first, message.FullDelay))
	require.Eventually(t, func() bool { return q.Depth() == 0 }, time.Second, time.Millisecond)

	for i := 0; i < 8; i++ {
		m := message.Construct(time.Now())
		m.Severity = message.SeverityNotice
		require.NoError(t, q.Enqueue(m, message.FullDelay))
	}

	require.Eventually(t, func() bool { return q.Depth() >= 8 }, time.Second, time.Millisecond)

	sev6 := message.Construct(time.Now())
	sev6.Severity = message.Severity(6)
	assert.NoError(t, q.Enqueue(sev6, message.NoDelay))

	sev4 := message.Construct(time.Now())
	sev4.Severity = message.Severity(4)
	err := q.Enqueue(sev4, message.NoDelay)
	assert.ErrorIs(t, err, ErrDiscarded)
}

func TestEnqueueProcessesMessages(t *testing.T) {
	var got []string
	done := make(chan struct{})
	consumer := func(m *message.Message) {
		got = append(got, m.Tag)
		if len(got) == 3 {
			close(done)
		}
	}

	cfg := DefaultConfig()
	q := New(cfg, nil, consumer, nil)
	require.NoError(t, q.Start(context.Background()))

	for _, tag := range []string{"a", "b", "c"} {
		m := message.Construct(time.Now())
		m.Tag = tag
		require.NoError(t, q.Enqueue(m, message.FullDelay))
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for consumption")
	}
}

// Quantified invariant 5: after shutdown returns, no pending message
// remains in any in-memory queue unless persist-on-shutdown was disabled
// and the shutdown timeout expired.
func TestDestructDrainsBeforeReturning(t *testing.T) {
	consumer := func(m *message.Message) {}

	cfg := DefaultConfig()
	cfg.QueueShutdownTimeout = time.Second
	cfg.WorkerShutdownTimeout = time.Second
	q := New(cfg, nil, consumer, nil)
	require.NoError(t, q.Start(context.Background()))

	for i := 0; i < 5; i++ {
		require.NoError(t, q.Enqueue(message.Construct(time.Now()), message.FullDelay))
	}

	remaining, err := q.Destruct(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, remaining)
	assert.Equal(t, StateStopped, q.State())
}
