// Package action implements the per-action driver:
// ready/suspended/disabled, the beginTransaction/doAction/commitTransaction
// contract, a per-action sub-queue, and per-action rate limiting ahead of
// that sub-queue.
package action

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rsyslog-go/daemon/internal/errs"
	"github.com/rsyslog-go/daemon/internal/message"
	"github.com/rsyslog-go/daemon/internal/ports"
	"github.com/rsyslog-go/daemon/internal/queue"
	"github.com/rsyslog-go/daemon/internal/ratelimit"
)

// State mirrors the action driver's state machine:
// ready --(transient failure)--> suspended(resume) --(resume reached AND
// doTryResume ok)--> ready; suspended --(permanent failure)--> disabled.
type State int32

const (
	StateReady State = iota
	StateSuspended
	StateDisabled
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateSuspended:
		return "suspended"
	case StateDisabled:
		return "disabled"
	default:
		return "unknown"
	}
}

// Driver wraps one ports.OutputAction with the state machine, its
// sub-queue, and an optional rate limiter, transitioning state by
// atomic stores.
type Driver struct {
	name   string
	output ports.OutputAction
	logger ports.Logger

	state        atomic.Int32
	resumeAt     atomic.Int64 // unix nano; consulted only while suspended
	resumeRate   time.Duration
	suspendCount atomic.Uint64
	disableCause atomic.Value // string

	limiter *ratelimit.Limiter
	sub     *queue.Queue

	breaker ports.CircuitBreaker
}

// Config configures a Driver.
type Config struct {
	Name string

	// ResumeInterval is how long a transient failure suspends the action
	// for before a resume attempt is tried.
	ResumeInterval time.Duration

	// Ratelimit gates messages ahead of the sub-queue; a RatelimitBurst
	// of zero or less disables it.
	RatelimitIntervalSeconds int
	RatelimitBurst           int
	RatelimitDiscardSeverity int

	SubQueue queue.Config

	Breaker ports.CircuitBreaker
}

// New constructs a Driver around output, ready to run.
func New(cfg Config, output ports.OutputAction, logger ports.Logger, consumer queue.ConsumerFunc) *Driver {
	d := &Driver{
		name:       cfg.Name,
		output:     output,
		logger:     logger,
		resumeRate: cfg.ResumeInterval,
		breaker:    cfg.Breaker,
	}
	d.state.Store(int32(StateReady))

	if cfg.RatelimitBurst > 0 {
		d.limiter = ratelimit.New(cfg.RatelimitIntervalSeconds, cfg.RatelimitBurst, cfg.RatelimitDiscardSeverity)
	}

	d.sub = queue.New(cfg.SubQueue, logger, consumer, nil)
	return d
}

// Name returns the action's configured name.
func (d *Driver) Name() string { return d.name }

// State reports the current state.
func (d *Driver) State() State { return State(d.state.Load()) }

// Start begins draining the sub-queue.
func (d *Driver) Start(ctx context.Context) error {
	return d.sub.Start(ctx)
}

// Submit applies the action-level rate limiter (discards increment a
// stats counter, never crash), then enqueues m on the action's
// sub-queue if the action is not disabled.
func (d *Driver) Submit(m *message.Message, flow message.FlowControl) error {
	if d.State() == StateDisabled {
		return errActionDisabled
	}
	if d.limiter != nil && !d.limiter.Allow(message.Now()) {
		return errRatelimited
	}
	return d.sub.Enqueue(m, flow)
}

// BeginTransaction must be called once before a batch. It consults
// poolTryResume-equivalent logic: if suspended and the resume timer has
// elapsed, it attempts a trial call through output.BeginTransaction; on
// success the action returns to ready.
func (d *Driver) BeginTransaction(ctx context.Context) ports.ActionStatus {
	switch d.State() {
	case StateDisabled:
		return ports.ActionDisabled
	case StateSuspended:
		if time.Now().UnixNano() < d.resumeAt.Load() {
			return ports.ActionSuspended
		}
		status := d.callBegin(ctx)
		if status == ports.ActionOK {
			d.state.Store(int32(StateReady))
			return ports.ActionOK
		}
		if status == ports.ActionDisabled {
			d.disable("begin transaction reported a permanent failure")
			return ports.ActionDisabled
		}
		d.suspend()
		return ports.ActionSuspended
	default:
		status := d.callBegin(ctx)
		if status == ports.ActionSuspended {
			d.suspend()
		}
		if status == ports.ActionDisabled {
			d.disable("begin transaction reported a permanent failure")
		}
		return status
	}
}

func (d *Driver) callBegin(ctx context.Context) ports.ActionStatus {
	if d.breaker != nil {
		status := ports.ActionSuspended
		_ = d.breaker.Execute(func() error {
			status = d.output.BeginTransaction(ctx)
			if status != ports.ActionOK {
				return errBreakerTrip
			}
			return nil
		})
		return status
	}
	return d.output.BeginTransaction(ctx)
}

// DoAction delivers one message through the output driver.
func (d *Driver) DoAction(ctx context.Context, m *message.Message) ports.ActionStatus {
	if d.State() != StateReady {
		return ports.ActionSuspended
	}
	status := d.output.DoAction(ctx, m)
	switch status {
	case ports.ActionSuspended:
		d.suspend()
	case ports.ActionDisabled:
		d.disable("output reported a permanent failure")
	}
	return status
}

// CommitTransaction performs the final flush of buffered data.
func (d *Driver) CommitTransaction(ctx context.Context) ports.ActionStatus {
	status := d.output.CommitTransaction(ctx)
	if status == ports.ActionSuspended {
		d.suspend()
	}
	if status == ports.ActionDisabled {
		d.disable("commit reported a permanent failure")
	}
	return status
}

// HUP reopens file handles / rotates logs / re-resolves cached hosts per
// action, never tearing down the sub-queue.
func (d *Driver) HUP(ctx context.Context) error {
	return d.output.HUP(ctx)
}

func (d *Driver) suspend() {
	d.state.Store(int32(StateSuspended))
	d.resumeAt.Store(time.Now().Add(d.resumeRate).UnixNano())
	d.suspendCount.Add(1)
	if d.logger != nil {
		d.logger.Warn("action suspended",
			ports.Field{Key: "action", Value: d.name},
			ports.Field{Key: "resume_in", Value: d.resumeRate.String()},
		)
	}
}

func (d *Driver) disable(reason string) {
	d.state.Store(int32(StateDisabled))
	d.disableCause.Store(reason)
	if d.logger != nil {
		d.logger.Error("action disabled permanently",
			ports.Field{Key: "action", Value: d.name},
			ports.Field{Key: "reason", Value: reason},
		)
	}
}

// Destruct drains and stops the sub-queue, then closes the output
// driver; it issues no final CommitTransaction.
func (d *Driver) Destruct(ctx context.Context) error {
	if _, err := d.sub.Destruct(ctx); err != nil {
		return err
	}
	return d.output.Close()
}

var (
	errActionDisabled = fmt.Errorf("action: %w", errs.ErrDisabledAction)
	errRatelimited    = fmt.Errorf("action: %w", errs.ErrDiscardByRatelimit)
	errBreakerTrip    = errors.New("action: circuit breaker tripped")
)
