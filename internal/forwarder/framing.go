package forwarder

import "strconv"

// frame wraps payload according to the TCP framing mode. UDP never frames
// (each message is its own datagram).
func frame(mode Framing, delimiter byte, payload []byte) []byte {
	switch mode {
	case FramingOctetCounting:
		prefix := strconv.Itoa(len(payload))
		out := make([]byte, 0, len(prefix)+1+len(payload))
		out = append(out, prefix...)
		out = append(out, ' ')
		out = append(out, payload...)
		return out
	default:
		out := make([]byte, 0, len(payload)+1)
		out = append(out, payload...)
		out = append(out, delimiter)
		return out
	}
}
