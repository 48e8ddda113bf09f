// Package diag stages self-generated diagnostic messages (oversize
// warnings, suspend/resume transitions, ratelimit-discard summaries)
// produced before the main queue exists, then merges them into the main
// pipeline as ordinary internal-origin messages once it starts. It
// carries its own rate limiter so a diagnostic storm cannot flood the
// pipeline, and a stderr bypass so error logging from the core never
// re-enters a queue during shutdown.
package diag

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rsyslog-go/daemon/internal/message"
	"github.com/rsyslog-go/daemon/internal/ratelimit"
	"github.com/rsyslog-go/daemon/pkg/ringbuffer"
)

// stagingCapacity bounds the pre-queue ring. Messages past this are
// dropped with a counter rather than blocking startup.
const stagingCapacity = 512

// Buffer is the internal-message staging ring.
type Buffer struct {
	ring    *ringbuffer.RingBuffer[message.Message]
	limiter *ratelimit.Limiter

	mu       sync.Mutex
	sink     message.Enqueuer
	shutdown bool

	dropped uint64
}

// New constructs a Buffer with its own limiter (burst within interval,
// same contract as input-side limiters).
func New(intervalSeconds, burst int) *Buffer {
	return &Buffer{
		ring:    ringbuffer.New[message.Message](stagingCapacity),
		limiter: ratelimit.New(intervalSeconds, burst, -1),
	}
}

// Emit builds an internal-origin message at sev with body text and either
// stages it (pre-merge) or submits it straight to the main queue
// (post-merge). During shutdown it falls back to stderr so diagnostics
// never re-enter a draining queue.
func (b *Buffer) Emit(sev message.Severity, text string) {
	if !b.limiter.Allow(time.Now()) {
		return
	}

	b.mu.Lock()
	if b.shutdown {
		b.mu.Unlock()
		fmt.Fprintf(os.Stderr, "rsyslogd: %s\n", text)
		return
	}
	sink := b.sink
	b.mu.Unlock()

	m := message.Construct(time.Now())
	m.Facility = message.FacilitySyslog
	m.Severity = sev
	m.Tag = "rsyslogd:"
	m.InputName = "internal"
	m.MSG = append(m.MSG[:0], text...)
	m.Raw = append(m.Raw[:0], text...)
	m.SetFlag(message.FlagInternalOrigin)
	m.Flow = message.NoDelay

	if sink != nil {
		if err := sink.Enqueue(m, message.NoDelay); err != nil {
			b.mu.Lock()
			b.dropped++
			b.mu.Unlock()
		}
		return
	}

	if !b.ring.Put(m) {
		b.mu.Lock()
		b.dropped++
		b.mu.Unlock()
	}
}

// Errorf emits a formatted error-severity diagnostic.
func (b *Buffer) Errorf(format string, args ...interface{}) {
	b.Emit(message.SeverityErr, fmt.Sprintf(format, args...))
}

// Warnf emits a formatted warning-severity diagnostic.
func (b *Buffer) Warnf(format string, args ...interface{}) {
	b.Emit(message.SeverityWarning, fmt.Sprintf(format, args...))
}

// Merge drains every staged message into q and routes all subsequent
// Emit calls there directly. Called once, when the main queue is up.
func (b *Buffer) Merge(q message.Enqueuer) int {
	b.mu.Lock()
	b.sink = q
	b.mu.Unlock()

	n := 0
	for {
		m := b.ring.Get()
		if m == nil {
			break
		}
		if err := q.Enqueue(m, message.NoDelay); err == nil {
			n++
		}
	}
	return n
}

// Shutdown flips the buffer into stderr-bypass mode for the remainder of
// the process lifetime.
func (b *Buffer) Shutdown() {
	b.mu.Lock()
	b.shutdown = true
	b.sink = nil
	b.mu.Unlock()
}

// Pending reports how many staged messages await a Merge.
func (b *Buffer) Pending() int { return b.ring.Size() }

// Dropped reports how many diagnostics were lost to a full ring or a
// failed enqueue.
func (b *Buffer) Dropped() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}
