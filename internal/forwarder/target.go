package forwarder

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rsyslog-go/daemon/internal/ports"
	"github.com/rsyslog-go/daemon/pkg/circuitbreaker"
)

// errResumePending is returned while a target sits out its post-rebind
// resume interval; the pool skips it in favor of the next target.
var errResumePending = errors.New("forwarder: target resume timer has not elapsed")

// target holds one pool member's runtime connection state. A pool with
// NumWorkers>1 on its sub-queue may call doAction concurrently from
// several goroutines; mu guards the connection and send buffer so that is
// safe, though the common configuration (matching real omfwd deployments
// that need per-target ordered delivery) runs a single action worker.
type target struct {
	host string
	port int

	cfg    Config
	logger ports.Logger

	mu       sync.Mutex
	conn     net.Conn
	udpConns []*net.UDPConn
	sendBuf  []byte
	streamZ  *streamCompressor
	txCount  int64

	connected atomic.Bool
	resumeAt  atomic.Int64 // unix nano; set on rebind, gates the next dial

	bytesSent    atomic.Uint64
	messagesSent atomic.Uint64
	sendErrors   atomic.Uint64
	skipped      atomic.Uint64

	breaker *circuitbreaker.CircuitBreaker
}

func newTarget(host string, port int, cfg Config, logger ports.Logger) *target {
	t := &target{
		host:   host,
		port:   port,
		cfg:    cfg,
		logger: logger,
		breaker: circuitbreaker.New(
			fmt.Sprintf("forwarder-target-%s:%d", host, port),
			0.5, 1, cfg.PoolResumeInterval, 1, 3,
		),
	}
	return t
}

// active reports whether the target's circuit breaker is presently
// allowing connection attempts, i.e. it is not mid-suspend.
func (t *target) active() bool {
	return t.breaker.GetState() != "open"
}

// ensureConnected dials (or redials) the target if not already connected,
// gated through the breaker so a burst of dial failures trips suspension.
func (t *target) ensureConnected(ctx context.Context) error {
	t.mu.Lock()
	already := t.connected.Load()
	t.mu.Unlock()
	if already {
		return nil
	}

	if until := t.resumeAt.Load(); until != 0 && time.Now().UnixNano() < until {
		return errResumePending
	}

	return t.breaker.Execute(func() error {
		t.mu.Lock()
		defer t.mu.Unlock()
		if t.connected.Load() {
			return nil
		}
		if err := t.dialLocked(ctx); err != nil {
			t.sendErrors.Add(1)
			t.logCapped("connect", err)
			return err
		}
		t.connected.Store(true)
		t.txCount = 0
		t.resumeAt.Store(0)
		return nil
	})
}

func (t *target) dialLocked(ctx context.Context) error {
	addr := net.JoinHostPort(t.host, fmt.Sprintf("%d", t.port))

	if t.cfg.Protocol == ProtocolUDP {
		return t.dialUDPLocked()
	}

	dialer := &net.Dialer{Timeout: t.cfg.DialTimeout}
	var conn net.Conn
	var err error
	if t.cfg.TLS.Enabled {
		tlsCfg, terr := buildTLSConfig(t.cfg.TLS, t.host)
		if terr != nil {
			return terr
		}
		conn, err = tls.DialWithDialer(dialer, "tcp", addr, tlsCfg)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return fmt.Errorf("forwarder: dial tcp target %s: %w", addr, err)
	}

	if tcpConn, ok := conn.(*net.TCPConn); ok && t.cfg.KeepAlive.Enabled {
		_ = tcpConn.SetKeepAlive(true)
		if t.cfg.KeepAlive.Time > 0 {
			_ = tcpConn.SetKeepAlivePeriod(t.cfg.KeepAlive.Time)
		}
	}

	t.conn = conn
	if t.cfg.Compression == CompressionStream {
		sc, serr := newStreamCompressor(t.cfg.CompressionLevel)
		if serr != nil {
			_ = conn.Close()
			t.conn = nil
			return serr
		}
		t.streamZ = sc
	}
	return nil
}

// closeLocked tears down the connection; caller must hold mu.
func (t *target) closeLocked() {
	if t.conn != nil {
		_ = t.conn.Close()
		t.conn = nil
	}
	for _, c := range t.udpConns {
		_ = c.Close()
	}
	t.udpConns = nil
	t.streamZ = nil
	t.sendBuf = t.sendBuf[:0]
	t.connected.Store(false)
}

// maybeRebind counts one delivered message and, once RebindInterval
// messages have been sent, closes the connection and arms the resume
// timer: the target may not redial before now + PoolResumeInterval. The
// breaker is left untouched, a rebind is not a failure.
func (t *target) maybeRebind() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.txCount++
	if t.cfg.RebindInterval <= 0 || t.txCount < t.cfg.RebindInterval {
		return
	}
	t.closeLocked()
	t.txCount = 0
	t.resumeAt.Store(time.Now().Add(t.cfg.PoolResumeInterval).UnixNano())
}

// close tears the target all the way down for shutdown, flushing any
// pending stream-compressed trailer bytes first.
func (t *target) close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn != nil && t.streamZ != nil {
		if tail, err := t.streamZ.Close(); err == nil && len(tail) > 0 {
			_, _ = t.conn.Write(tail)
		}
	}
	t.closeLocked()
	return nil
}

func (t *target) stats() (bytesSent, messagesSent uint64) {
	return t.bytesSent.Load(), t.messagesSent.Load()
}
