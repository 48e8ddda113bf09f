// Package lifecycle implements the daemon's signal and housekeeping
// controller: stop on TERM/INT/QUIT, HUP fan-out to registered hooks,
// child reaping, a periodic janitor, mark-message emission, a debug
// toggle on USR1, and pidfile handling.
package lifecycle

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rsyslog-go/daemon/internal/message"
	"github.com/rsyslog-go/daemon/internal/ports"
)

// Config configures the controller.
type Config struct {
	JanitorInterval time.Duration
	MarkInterval    time.Duration

	// PermitCtlC additionally allows the USR1 debug toggle when the
	// daemon was not started in debug mode.
	PermitCtlC bool
	Debug      bool
}

// HUPHook is called on SIGHUP; it must never tear down queues.
type HUPHook func(ctx context.Context) error

// JanitorFunc is a registered periodic cleanup callback.
type JanitorFunc func()

// Controller owns the signal loop.
type Controller struct {
	cfg    Config
	logger ports.Logger

	sigCh  chan os.Signal
	stopCh chan struct{}

	mu       sync.Mutex
	hupHooks []HUPHook
	janitors []JanitorFunc
	markSink message.Enqueuer

	debugOn bool

	stopOnce sync.Once
}

// New constructs a Controller; Run wires the signal mask.
func New(cfg Config, logger ports.Logger) *Controller {
	return &Controller{
		cfg:     cfg,
		logger:  logger,
		sigCh:   make(chan os.Signal, 8),
		stopCh:  make(chan struct{}),
		debugOn: cfg.Debug,
	}
}

// OnHUP registers a hook run on every SIGHUP, in registration order.
func (c *Controller) OnHUP(h HUPHook) {
	c.mu.Lock()
	c.hupHooks = append(c.hupHooks, h)
	c.mu.Unlock()
}

// RegisterJanitor registers a periodic cleanup callback.
func (c *Controller) RegisterJanitor(fn JanitorFunc) {
	c.mu.Lock()
	c.janitors = append(c.janitors, fn)
	c.mu.Unlock()
}

// SetMarkSink wires the queue that receives synthetic mark messages when
// MarkInterval > 0.
func (c *Controller) SetMarkSink(q message.Enqueuer) {
	c.mu.Lock()
	c.markSink = q
	c.mu.Unlock()
}

// Run blocks until a stop signal arrives or ctx is cancelled. It owns
// the janitor and mark tickers for its lifetime.
func (c *Controller) Run(ctx context.Context) {
	signal.Notify(c.sigCh,
		syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT,
		syscall.SIGHUP, syscall.SIGCHLD, syscall.SIGUSR1,
	)
	defer signal.Stop(c.sigCh)

	janitor := newOptionalTicker(c.cfg.JanitorInterval)
	defer janitor.stop()
	mark := newOptionalTicker(c.cfg.MarkInterval)
	defer mark.stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case sig := <-c.sigCh:
			if c.handleSignal(ctx, sig) {
				return
			}
		case <-janitor.ch:
			c.runJanitor()
		case <-mark.ch:
			c.emitMark()
		}
	}
}

// handleSignal reports true when the daemon should stop.
func (c *Controller) handleSignal(ctx context.Context, sig os.Signal) bool {
	switch sig {
	case syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT:
		if c.logger != nil {
			c.logger.Info("shutdown signal received", ports.Field{Key: "signal", Value: sig.String()})
		}
		return true
	case syscall.SIGHUP:
		c.HUP(ctx)
	case syscall.SIGCHLD:
		c.reapChildren()
	case syscall.SIGUSR1:
		c.toggleDebug()
	}
	return false
}

// HUP runs every registered hook. Exported so tests and the config
// activation path can trigger the same sequence a SIGHUP does; running
// it twice with no intervening config change is idempotent because
// hooks only reopen/re-resolve, never accumulate state.
func (c *Controller) HUP(ctx context.Context) {
	c.mu.Lock()
	hooks := append([]HUPHook(nil), c.hupHooks...)
	c.mu.Unlock()

	for _, h := range hooks {
		if err := h(ctx); err != nil && c.logger != nil {
			c.logger.Warn("HUP hook failed", ports.Field{Key: "error", Value: err})
		}
	}
	if c.logger != nil {
		c.logger.Info("HUP processed", ports.Field{Key: "hooks", Value: len(hooks)})
	}
}

func (c *Controller) runJanitor() {
	c.mu.Lock()
	fns := append([]JanitorFunc(nil), c.janitors...)
	c.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// emitMark enqueues one synthetic mark message.
func (c *Controller) emitMark() {
	c.mu.Lock()
	sink := c.markSink
	c.mu.Unlock()
	if sink == nil {
		return
	}

	m := message.Construct(time.Now())
	m.Facility = message.FacilitySyslog
	m.Severity = message.SeverityInfo
	m.Tag = "rsyslogd:"
	m.InputName = "internal"
	m.MSG = append(m.MSG[:0], "-- MARK --"...)
	m.Raw = append(m.Raw[:0], "-- MARK --"...)
	m.SetFlag(message.FlagMark | message.FlagInternalOrigin)
	m.Flow = message.NoDelay
	_ = sink.Enqueue(m, message.NoDelay)
}

// reapChildren collects every exited child without blocking.
func (c *Controller) reapChildren() {
	for {
		var status syscall.WaitStatus
		pid, err := syscall.Wait4(-1, &status, syscall.WNOHANG, nil)
		if err != nil || pid <= 0 {
			return
		}
		if c.logger != nil {
			c.logger.Info("child process exited",
				ports.Field{Key: "pid", Value: pid},
				ports.Field{Key: "status", Value: status.ExitStatus()},
			)
		}
	}
}

// toggleDebug flips runtime debug logging, permitted only when the
// daemon started in debug mode or PermitCtlC is set.
func (c *Controller) toggleDebug() {
	if !c.cfg.Debug && !c.cfg.PermitCtlC {
		return
	}
	c.mu.Lock()
	c.debugOn = !c.debugOn
	on := c.debugOn
	c.mu.Unlock()
	if c.logger != nil {
		c.logger.Info("debug toggled", ports.Field{Key: "enabled", Value: on})
	}
}

// DebugEnabled reports the current debug toggle state.
func (c *Controller) DebugEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.debugOn
}

// Stop ends Run from inside the process (equivalent to SIGTERM).
func (c *Controller) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
}

// Signal injects a signal as if delivered by the OS; used by tests.
func (c *Controller) Signal(sig os.Signal) {
	c.sigCh <- sig
}

// optionalTicker wraps a ticker that may be disabled (interval <= 0), in
// which case its channel never fires.
type optionalTicker struct {
	t  *time.Ticker
	ch <-chan time.Time
}

func newOptionalTicker(interval time.Duration) optionalTicker {
	if interval <= 0 {
		return optionalTicker{ch: make(chan time.Time)}
	}
	t := time.NewTicker(interval)
	return optionalTicker{t: t, ch: t.C}
}

func (o optionalTicker) stop() {
	if o.t != nil {
		o.t.Stop()
	}
}
