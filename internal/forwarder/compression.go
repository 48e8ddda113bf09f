package forwarder

import (
	"bytes"
	"compress/zlib"
	"io"
)

// compressSingle deflates payload standalone when it is at least threshold
// bytes, returning the compressed form prefixed with a single 'z' marker
// byte (omfwd's own single-message compression marker). If compression
// does not shrink the payload, or the payload is under threshold, payload
// is returned unchanged. Stays on compress/zlib: the wire contract is
// plain zlib with sync-flush boundaries, which no third-party codec
// exposes more directly.
func compressSingle(payload []byte, threshold, level int) []byte {
	if len(payload) < threshold {
		return payload
	}

	var buf bytes.Buffer
	buf.WriteByte('z')
	w, err := zlib.NewWriterLevel(&buf, normalizeLevel(level))
	if err != nil {
		return payload
	}
	if _, err := w.Write(payload); err != nil {
		return payload
	}
	if err := w.Close(); err != nil {
		return payload
	}

	if buf.Len() >= len(payload) {
		return payload
	}
	return buf.Bytes()
}

// normalizeLevel maps omfwd's 0..9 config knob (plus the sentinel 10
// meaning "zlib default") onto compress/zlib's level constants.
func normalizeLevel(level int) int {
	if level == 10 {
		return zlib.DefaultCompression
	}
	if level < 0 || level > 9 {
		return defaultCompressionLevel
	}
	return level
}

// streamCompressor wraps one target's persistent deflate stream for
// CompressionStream mode. Flush corresponds to zlib's Z_SYNC_FLUSH: it
// pushes buffered bytes out without resetting the dictionary, so the
// receiving end can decompress up through the flush point immediately.
type streamCompressor struct {
	w   *zlib.Writer
	buf bytes.Buffer
}

func newStreamCompressor(level int) (*streamCompressor, error) {
	sc := &streamCompressor{}
	w, err := zlib.NewWriterLevel(&sc.buf, normalizeLevel(level))
	if err != nil {
		return nil, err
	}
	sc.w = w
	return sc, nil
}

// Write compresses payload into the internal buffer; call Take to drain
// whatever is ready to send.
func (sc *streamCompressor) Write(payload []byte) error {
	_, err := sc.w.Write(payload)
	return err
}

// Take returns and clears whatever compressed blocks are already
// complete, without forcing a flush boundary into the stream.
func (sc *streamCompressor) Take() []byte {
	if sc.buf.Len() == 0 {
		return nil
	}
	out := make([]byte, sc.buf.Len())
	copy(out, sc.buf.Bytes())
	sc.buf.Reset()
	return out
}

// Flush performs a sync flush, guaranteeing every byte written so far is
// available in the internal buffer, then returns and clears it.
func (sc *streamCompressor) Flush() ([]byte, error) {
	if f, ok := io.Writer(sc.w).(interface{ Flush() error }); ok {
		if err := f.Flush(); err != nil {
			return nil, err
		}
	}
	out := make([]byte, sc.buf.Len())
	copy(out, sc.buf.Bytes())
	sc.buf.Reset()
	return out, nil
}

// Close terminates the deflate stream, flushing any trailer bytes.
func (sc *streamCompressor) Close() ([]byte, error) {
	if err := sc.w.Close(); err != nil {
		return nil, err
	}
	out := make([]byte, sc.buf.Len())
	copy(out, sc.buf.Bytes())
	sc.buf.Reset()
	return out, nil
}
