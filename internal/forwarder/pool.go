package forwarder

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/rsyslog-go/daemon/internal/message"
	"github.com/rsyslog-go/daemon/internal/ports"
)

// Pool is the omfwd output action: a named set of targets dispatched in
// round-robin order, implementing ports.OutputAction so internal/action
// can drive it through the usual transaction contract.
type Pool struct {
	name   string
	cfg    Config
	logger ports.Logger

	targets []*target
	cursor  atomic.Uint32
}

var _ ports.OutputAction = (*Pool)(nil)

// New constructs a target pool from cfg. Ports may be fewer than
// targets: a short ports slice pads with ports[0] for the rest.
func New(cfg Config, logger ports.Logger) *Pool {
	p := &Pool{name: cfg.Name, cfg: cfg, logger: logger}

	defaultPort := 514
	if len(cfg.Ports) > 0 {
		defaultPort = cfg.Ports[0]
	}

	for i, host := range cfg.Targets {
		port := defaultPort
		if i < len(cfg.Ports) {
			port = cfg.Ports[i]
		}
		p.targets = append(p.targets, newTarget(host, port, cfg, logger))
	}

	return p
}

// Name returns the pool's configured action name.
func (p *Pool) Name() string { return p.name }

// BeginTransaction implements poolTryResume: every target whose breaker
// currently reports non-open is considered reachable; targets still open
// get one proactive dial attempt so the pool does not wait for the next
// DoAction call to discover a target has come back. The pool is ready
// once at least one target is reachable.
func (p *Pool) BeginTransaction(ctx context.Context) ports.ActionStatus {
	active := 0
	for _, t := range p.targets {
		if t.active() {
			active++
			continue
		}
		if err := t.ensureConnected(ctx); err == nil {
			active++
		}
	}
	if active == 0 {
		return ports.ActionSuspended
	}
	return ports.ActionOK
}

// DoAction renders m onto the wire, framing/compressing it as configured,
// and delivers it to the next reachable target starting from the pool's
// round-robin cursor. A target that fails is skipped in favor of the
// next; the pool only reports suspended once every target has failed.
func (p *Pool) DoAction(ctx context.Context, m *message.Message) ports.ActionStatus {
	n := len(p.targets)
	if n == 0 {
		return ports.ActionDisabled
	}

	payload := message.FormatStdFwdFmt(m)

	start := int(p.cursor.Load()) % n
	for i := 0; i < n; i++ {
		idx := (start + i) % n
		t := p.targets[idx]
		if !t.active() {
			continue
		}

		if err := p.deliver(ctx, t, payload); err != nil {
			continue
		}

		p.cursor.Store(uint32((idx + 1) % n))
		t.messagesSent.Add(1)
		t.maybeRebind()
		return ports.ActionOK
	}

	return ports.ActionSuspended
}

func (p *Pool) deliver(ctx context.Context, t *target, payload []byte) error {
	if p.cfg.Protocol == ProtocolUDP {
		data := payload
		if p.cfg.Compression == CompressionSingle {
			data = compressSingle(payload, p.cfg.CompressionThreshold, p.cfg.CompressionLevel)
		}
		return t.sendUDP(ctx, data)
	}

	switch p.cfg.Compression {
	case CompressionSingle:
		framed := frame(p.cfg.Framing, p.cfg.Delimiter, compressSingle(payload, p.cfg.CompressionThreshold, p.cfg.CompressionLevel))
		return t.sendTCP(ctx, framed)
	case CompressionStream:
		// Each send only feeds the persistent deflate stream; compressed
		// bytes reach the wire at transaction end (CommitTransaction) or
		// target close. A per-message sync flush would reset the deflate
		// window and forfeit the cross-message ratio.
		framed := frame(p.cfg.Framing, p.cfg.Delimiter, payload)
		if err := t.ensureConnected(ctx); err != nil {
			return err
		}
		t.mu.Lock()
		defer t.mu.Unlock()
		if t.streamZ == nil {
			return errNotConnected
		}
		return t.streamZ.Write(framed)
	default:
		framed := frame(p.cfg.Framing, p.cfg.Delimiter, payload)
		return t.sendTCP(ctx, framed)
	}
}

// CommitTransaction flushes every target's send buffer. Stream-compressed
// targets first drain the deflate stream: a sync flush when
// FlushCompressionOnTxEnd is set (so the peer can decode up to the
// transaction boundary), otherwise only the complete blocks the
// compressor has already emitted.
func (p *Pool) CommitTransaction(ctx context.Context) ports.ActionStatus {
	ok := false
	for _, t := range p.targets {
		if p.cfg.Protocol == ProtocolTCP && p.cfg.Compression == CompressionStream {
			t.mu.Lock()
			_ = t.drainCompressionLocked(p.cfg.FlushCompressionOnTxEnd)
			t.mu.Unlock()
		}
		if err := t.flush(); err == nil {
			ok = true
		}
	}
	if !ok && len(p.targets) > 0 {
		return ports.ActionSuspended
	}
	return ports.ActionOK
}

// HUP re-resolves every target's cached connection by forcing a rebind on
// the next send, so cached host resolutions never outlive a HUP.
func (p *Pool) HUP(ctx context.Context) error {
	for _, t := range p.targets {
		t.mu.Lock()
		t.closeLocked()
		t.mu.Unlock()
	}
	return nil
}

// Close tears every target down for shutdown.
func (p *Pool) Close() error {
	for _, t := range p.targets {
		_ = t.close()
	}
	return nil
}

// Stats returns aggregate bytes/messages sent across every target, keyed
// by "<proto>-<host>-<port>" for the stats subsystem to export as
// labeled counters.
func (p *Pool) Stats() map[string][2]uint64 {
	out := make(map[string][2]uint64, len(p.targets))
	for _, t := range p.targets {
		bytesSent, messagesSent := t.stats()
		label := fmt.Sprintf("%s-%s-%d", p.cfg.Protocol, t.host, t.port)
		out[label] = [2]uint64{bytesSent, messagesSent}
	}
	return out
}
