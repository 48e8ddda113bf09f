package forwarder

import (
	"context"
	"errors"
)

var errNotConnected = errors.New("forwarder: target not connected")

// sendTCP appends data (already framed, and compressed if CompressionSingle
// applies) to the target's send buffer, flushing first if appending would
// exceed SendBufferSize. Outgoing bytes batch up to the configured cap
// and flush when full or at transaction end.
func (t *target) sendTCP(ctx context.Context, data []byte) error {
	if err := t.ensureConnected(ctx); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn == nil {
		return errNotConnected
	}

	bufCap := t.cfg.SendBufferSize
	if bufCap <= 0 || bufCap > maxSendBuffer {
		bufCap = maxSendBuffer
	}

	if len(data) > bufCap {
		// A single frame larger than the buffer bypasses batching entirely.
		if err := t.flushLocked(); err != nil {
			return err
		}
		return t.writeLocked(data)
	}

	if len(t.sendBuf)+len(data) > bufCap {
		if err := t.flushLocked(); err != nil {
			return err
		}
	}
	t.sendBuf = append(t.sendBuf, data...)
	return nil
}

// flush writes any buffered bytes to the connection now.
func (t *target) flush() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.flushLocked()
}

func (t *target) flushLocked() error {
	if len(t.sendBuf) == 0 {
		return nil
	}
	buf := t.sendBuf
	t.sendBuf = t.sendBuf[:0]
	return t.writeLocked(buf)
}

// drainCompressionLocked writes pending stream-compressor output straight
// to the connection, bypassing the send buffer since a transaction
// boundary must reach the wire. With syncFlush it issues a sync flush so
// every byte written to the stream becomes decodable; without it, only
// the complete blocks the compressor already emitted are sent.
func (t *target) drainCompressionLocked(syncFlush bool) error {
	if t.streamZ == nil {
		return nil
	}
	var out []byte
	if syncFlush {
		var err error
		out, err = t.streamZ.Flush()
		if err != nil {
			return err
		}
	} else {
		out = t.streamZ.Take()
	}
	if len(out) == 0 {
		return nil
	}
	return t.writeLocked(out)
}

func (t *target) writeLocked(data []byte) error {
	n, err := t.conn.Write(data)
	if err != nil {
		t.closeLocked()
		return err
	}
	t.bytesSent.Add(uint64(n))
	return nil
}
