package queue

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rsyslog-go/daemon/internal/errs"
	"github.com/rsyslog-go/daemon/internal/message"
	"github.com/rsyslog-go/daemon/internal/ports"
	"github.com/rsyslog-go/daemon/internal/timeutil"
)

// lightDelayMillis bounds how long a light-delay enqueue may block on a
// full queue before discarding.
const lightDelayMillis = 50

// Type is the queue backing mode.
type Type int

const (
	TypeDirect Type = iota
	TypeLinkedList
	TypeFixedArray
	TypeDisk
	TypeDiskAssisted
)

// State is the queue lifecycle state
// (idle/running/paused/stopping/stopped).
type State int32

const (
	StateIdle State = iota
	StateRunning
	StatePaused
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Config carries the queue tuning knobs: sizing, watermarks, discard
// thresholds, worker counts, and shutdown timeouts.
type Config struct {
	Type Type

	Capacity        int
	HighWater       int
	LowWater        int
	DiscardMark     int
	DiscardSeverity int

	NumWorkers       int
	MaxWorkers       int
	BatchSize        int
	MinMsgsPerWorker int
	DequeueSlowdown  time.Duration

	EnqueueTimeout time.Duration

	QueueShutdownTimeout  time.Duration
	ActionShutdownTimeout time.Duration
	WorkerShutdownTimeout time.Duration

	PersistOnShutdown bool

	// AbortOnFailedStartup: when true
	// and worker startup fails, the caller should exit the process;
	// otherwise the queue degrades to direct pass-through mode.
	AbortOnFailedStartup bool
}

// DefaultConfig returns sane defaults for an in-memory main queue.
func DefaultConfig() Config {
	return Config{
		Type:                  TypeFixedArray,
		Capacity:              1024,
		HighWater:             900,
		LowWater:              200,
		DiscardMark:           1000,
		DiscardSeverity:       -1, // negative disables severity discards
		NumWorkers:            2,
		MaxWorkers:            8,
		BatchSize:             64,
		MinMsgsPerWorker:      100,
		EnqueueTimeout:        time.Second,
		QueueShutdownTimeout:  5 * time.Second,
		ActionShutdownTimeout: 5 * time.Second,
		WorkerShutdownTimeout: 2 * time.Second,
		PersistOnShutdown:     true,
	}
}

// ErrDiscarded is returned by Enqueue when the message is dropped under
// the discard-mark/discard-severity rule, or when NoDelay flow control
// finds the queue full.
var ErrDiscarded = fmt.Errorf("queue: message discarded: %w", errs.ErrDiscardBySeverity)

// Backend is the optional disk-assisted persistence the queue spills to
// when Config.Type is TypeDisk or TypeDiskAssisted. internal/queue/diskqueue
// implements it against Redis streams.
type Backend = ports.QueueBackend

// Queue is the bounded MPMC main/ruleset queue.
type Queue struct {
	cfg    Config
	logger ports.Logger
	pool   *workerPool

	state atomic.Int32

	discarded atomic.Uint64
	enqueued  atomic.Uint64

	backend Backend
}

// New constructs a Queue bound to consume with fn. Workers are not
// started until Start is called, after config activation.
func New(cfg Config, logger ports.Logger, fn ConsumerFunc, backend Backend) *Queue {
	capacity := nextPow2(cfg.Capacity)
	q := &Queue{
		cfg:     cfg,
		logger:  logger,
		backend: backend,
	}
	q.pool = newWorkerPool(context.Background(), cfg.NumWorkers, cfg.MaxWorkers, capacity, fn, logger)
	q.state.Store(int32(StateIdle))
	return q
}

func nextPow2(n int) uint32 {
	if n <= 1 {
		return 1
	}
	v := uint32(1)
	for int(v) < n {
		v <<= 1
	}
	return v
}

// Start spins up workers and, when PersistOnShutdown is set and a backend
// is present, replays spilled entries. It always returns nil: worker
// startup has no failure path, a failed replay is logged rather than
// returned, and AbortOnFailedStartup is not consulted here.
func (q *Queue) Start(ctx context.Context) error {
	if !q.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		return nil
	}
	q.pool.Start()
	if q.cfg.PersistOnShutdown && q.backend != nil {
		q.replayFromBackend(ctx)
	}
	return nil
}

func (q *Queue) replayFromBackend(ctx context.Context) {
	if q.backend == nil {
		return
	}
	entries, err := q.backend.Replay(ctx, int64(q.cfg.BatchSize), 0)
	if err != nil {
		if q.logger != nil {
			q.logger.Warn("queue: disk-assisted replay failed", ports.Field{Key: "error", Value: err})
		}
		return
	}
	for _, e := range entries {
		m := message.Construct(time.Now())
		m.Raw = append(m.Raw[:0], e.Payload...)
		_ = q.pool.SubmitMsg(m)
	}
}

// Enqueue applies the discard-mark/discard-severity rule and flow
// control, then submits m to the worker pool's fast path.
//
// Invariant: the discard-severity filter drops messages at-or-below
// severity S (numerically <= S, i.e. the less-important end of the
// scale) once size >= discard-mark. A negative threshold disables the
// filter.
func (q *Queue) Enqueue(m *message.Message, flow message.FlowControl) error {
	size := q.pool.Depth()
	if q.cfg.DiscardSeverity >= 0 && size >= q.cfg.DiscardMark && int(m.Severity) <= q.cfg.DiscardSeverity {
		q.discarded.Add(1)
		return ErrDiscarded
	}

	switch flow {
	case message.NoDelay:
		if err := q.pool.SubmitMsg(m); err != nil {
			q.discarded.Add(1)
			return ErrDiscarded
		}
	case message.LightDelay:
		if err := q.pool.SubmitMsg(m); err != nil {
			deadline := time.Now().Add(timeutil.FromMillis(lightDelayMillis))
			for time.Now().Before(deadline) {
				if err := q.pool.SubmitMsg(m); err == nil {
					break
				}
				time.Sleep(time.Millisecond)
			}
			if err := q.pool.SubmitMsg(m); err != nil {
				q.discarded.Add(1)
				return ErrDiscarded
			}
		}
	case message.FullDelay:
		for {
			if err := q.pool.SubmitMsg(m); err == nil {
				break
			}
			time.Sleep(time.Millisecond)
		}
	}

	q.enqueued.Add(1)
	if q.backend != nil {
		if _, err := q.backend.Spill(context.Background(), append([]byte(nil), m.Raw...)); err != nil && q.logger != nil {
			q.logger.Warn("queue: disk-assisted spill failed", ports.Field{Key: "error", Value: err})
		}
	}
	return nil
}

// MultiEnqueue enqueues every message in list, preserving order.
func (q *Queue) MultiEnqueue(list []*message.Message, flow message.FlowControl) error {
	for _, m := range list {
		if err := q.Enqueue(m, flow); err != nil {
			return err
		}
	}
	return nil
}

// Depth reports the number of messages currently buffered.
func (q *Queue) Depth() int { return q.pool.Depth() }

// Stats reports cumulative enqueue/discard counters.
func (q *Queue) Stats() (enqueued, discarded uint64) {
	return q.enqueued.Load(), q.discarded.Load()
}

// State reports the current lifecycle state.
func (q *Queue) State() State { return State(q.state.Load()) }

// SetWorkerCount adjusts worker concurrency within [NumWorkers,
// MaxWorkers].
func (q *Queue) SetWorkerCount(n int) { q.pool.SetWorkerCount(n) }

// Destruct drains up to QueueShutdownTimeout, then signals workers
// shutdown-immediate and waits up to WorkerShutdownTimeout for them to
// join.
func (q *Queue) Destruct(ctx context.Context) (remaining int, err error) {
	if !q.state.CompareAndSwap(int32(StateRunning), int32(StateStopping)) {
		if !q.state.CompareAndSwap(int32(StatePaused), int32(StateStopping)) {
			return q.pool.Depth(), nil
		}
	}

	drainCtx, cancel := context.WithTimeout(ctx, q.cfg.QueueShutdownTimeout)
	defer cancel()
	for q.pool.Depth() > 0 {
		select {
		case <-drainCtx.Done():
			goto stopWorkers
		default:
			time.Sleep(time.Millisecond)
		}
	}

stopWorkers:
	stopCtx, stopCancel := context.WithTimeout(ctx, q.cfg.WorkerShutdownTimeout)
	defer stopCancel()
	clean := q.pool.StopWithTimeout(stopCtx)

	remaining = q.pool.Depth()
	q.state.Store(int32(StateStopped))

	if q.backend != nil {
		_ = q.backend.Close()
	}

	if !clean && remaining > 0 && !q.cfg.PersistOnShutdown {
		return remaining, errPendingLost
	}
	return remaining, nil
}

var errPendingLost = errors.New("queue: pending messages lost on shutdown (persist-on-shutdown disabled)")
