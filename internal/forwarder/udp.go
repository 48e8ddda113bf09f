package forwarder

import (
	"context"
	"net"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rsyslog-go/daemon/internal/ports"
)

// dialUDPLocked resolves the target host once and opens one socket per
// resolved address, optionally bound to the configured local address and
// port. Caller holds mu.
func (t *target) dialUDPLocked() error {
	var (
		addrs []net.IP
		err   error
	)
	if ip := net.ParseIP(t.host); ip != nil {
		addrs = []net.IP{ip}
	} else {
		addrs, err = net.LookupIP(t.host)
		if err != nil {
			return err
		}
	}

	var laddr *net.UDPAddr
	if t.cfg.LocalAddr != "" || t.cfg.LocalPort > 0 {
		laddr = &net.UDPAddr{Port: t.cfg.LocalPort}
		if t.cfg.LocalAddr != "" {
			laddr.IP = net.ParseIP(t.cfg.LocalAddr)
		}
	}

	var conns []*net.UDPConn
	for _, ip := range addrs {
		conn, derr := net.DialUDP("udp", laddr, &net.UDPAddr{IP: ip, Port: t.port})
		if derr != nil {
			err = derr
			continue
		}
		conns = append(conns, conn)
	}
	if len(conns) == 0 {
		if err != nil {
			return err
		}
		return errNotConnected
	}
	t.udpConns = conns
	return nil
}

// sendUDP writes payload as a single datagram. Payloads above the
// protocol ceiling are truncated with a warning; EMSGSIZE shrinks the
// datagram by 1 KiB steps down to a floor of 512 bytes rather than give
// up, since a syslog message truncated to fit the path MTU is still more
// useful than one dropped. In send-to-all mode every resolved address
// receives the datagram, paced by UDPSendDelay; otherwise the first
// successful socket wins.
func (t *target) sendUDP(ctx context.Context, payload []byte) error {
	if err := t.ensureConnected(ctx); err != nil {
		return err
	}

	t.mu.Lock()
	conns := t.udpConns
	t.mu.Unlock()
	if len(conns) == 0 {
		return errNotConnected
	}

	data := payload
	if len(data) > maxUDPPayload {
		t.logCapped("oversize", errOversizeDatagram)
		data = data[:maxUDPPayload]
	}

	var lastErr error
	sent := false
	for i, conn := range conns {
		if i > 0 && t.cfg.UDPSendDelay > 0 {
			time.Sleep(t.cfg.UDPSendDelay)
		}
		if err := t.sendUDPOne(conn, data); err != nil {
			lastErr = err
			continue
		}
		sent = true
		if !t.cfg.SendToAll {
			return nil
		}
	}
	if sent {
		return nil
	}

	// Every socket failed: close the whole set so the next attempt
	// rebuilds it.
	t.mu.Lock()
	t.closeLocked()
	t.mu.Unlock()
	return lastErr
}

func (t *target) sendUDPOne(conn *net.UDPConn, data []byte) error {
	for {
		n, err := conn.Write(data)
		if err == nil {
			t.bytesSent.Add(uint64(n))
			return nil
		}
		if isEMSGSIZE(err) && len(data) > 512 {
			shrink := len(data) - 1024
			if shrink < 512 {
				shrink = 512
			}
			data = data[:shrink]
			t.logCapped("emsgsize", err)
			continue
		}
		t.sendErrors.Add(1)
		return err
	}
}

var errOversizeDatagram = errTooLarge("udp payload exceeds 65507 bytes, truncating")

type errTooLarge string

func (e errTooLarge) Error() string { return string(e) }

func isEMSGSIZE(err error) bool {
	return strings.Contains(err.Error(), "message too long") || errorsIs(err, syscall.EMSGSIZE)
}

func errorsIs(err error, target error) bool {
	type causer interface{ Unwrap() error }
	for err != nil {
		if err == target {
			return true
		}
		c, ok := err.(causer)
		if !ok {
			return false
		}
		err = c.Unwrap()
	}
	return false
}

// logCapped logs a target-connection error, suppressing all but every
// ConnErrSkip'th occurrence.
func (t *target) logCapped(kind string, err error) {
	n := t.skipped.Add(1)
	skip := uint64(t.cfg.ConnErrSkip)
	if skip > 1 && n%skip != 0 {
		return
	}
	if t.logger != nil {
		t.logger.Warn("forwarder target send error",
			ports.Field{Key: "target", Value: net.JoinHostPort(t.host, strconv.Itoa(t.port))},
			ports.Field{Key: "kind", Value: kind},
			ports.Field{Key: "error", Value: err.Error()},
		)
	}
}
