package message

import (
	"strconv"
	"time"
)

// timeLayout matches the legacy syslog RFC3164 header timestamp, e.g.
// "Jan  2 15:04:05".
const timeLayout = "Jan _2 15:04:05"

// ParseLegacy decodes a "<PRI>TIMESTAMP HOSTNAME TAG: MSG" legacy syslog
// line into m, honoring the PRI header described in the Glossary. A
// leading "1 " immediately after the PRI marks an RFC5424 ("syslog-protocol
// version 1") message regardless of surrounding context: its header
// fields are not parsed, and everything after the marker becomes MSG.
func ParseLegacy(m *Message, raw []byte, receivedAt time.Time) error {
	m.Raw = append(m.Raw[:0], raw...)
	m.TimestampReceived = receivedAt
	m.SetFlag(FlagNeedsParsing)

	rest := raw
	if len(rest) == 0 || rest[0] != '<' {
		m.MSG = append(m.MSG[:0], raw...)
		return nil
	}

	end := -1
	for i := 1; i < len(rest) && i < 6; i++ {
		if rest[i] == '>' {
			end = i
			break
		}
	}
	if end < 0 {
		m.MSG = append(m.MSG[:0], raw...)
		return nil
	}

	pri, err := strconv.Atoi(string(rest[1:end]))
	if err != nil {
		m.MSG = append(m.MSG[:0], raw...)
		return nil
	}
	m.Facility = Facility(pri / 8)
	m.Severity = Severity(pri % 8)
	rest = rest[end+1:]

	if len(rest) >= 2 && rest[0] == '1' && rest[1] == ' ' {
		// RFC5424 version marker: nothing after it is parsed; the body is
		// passed through as-is beyond this point, matching the legacy
		// quirk rather than inferring it
		// from the hostname shape.
		m.MSG = append(m.MSG[:0], rest[2:]...)
		return nil
	}

	if len(rest) >= len(timeLayout) {
		if t, terr := time.Parse(timeLayout, string(rest[:len(timeLayout)])); terr == nil {
			m.TimestampReported = stampYear(t, receivedAt)
			rest = rest[len(timeLayout):]
			if len(rest) > 0 && rest[0] == ' ' {
				rest = rest[1:]
			}
		}
	}

	sp := indexByte(rest, ' ')
	if sp > 0 {
		m.Hostname = string(rest[:sp])
		rest = rest[sp+1:]
	}

	colon := indexByte(rest, ':')
	if colon > 0 && colon < 64 {
		m.Tag = string(rest[:colon+1])
		rest = rest[colon+1:]
		if len(rest) > 0 && rest[0] == ' ' {
			rest = rest[1:]
		}
	}

	m.MSG = append(m.MSG[:0], rest...)
	return nil
}

// stampYear fills in the year the RFC3164 timestamp omits, using the
// receive time's year (or the prior year if that would place the
// timestamp in the future by more than a day, covering year-boundary
// traffic).
func stampYear(t, receivedAt time.Time) time.Time {
	year := receivedAt.Year()
	stamped := time.Date(year, t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, receivedAt.Location())
	if stamped.After(receivedAt.Add(24 * time.Hour)) {
		stamped = time.Date(year-1, t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, receivedAt.Location())
	}
	return stamped
}

func indexByte(b []byte, c byte) int {
	for i, v := range b {
		if v == c {
			return i
		}
	}
	return -1
}

// FormatStdFwdFmt renders m the way the StdFwdFmt template does:
// "<PRI>TIMESTAMP HOSTNAME TAG MSG", the round-trip counterpart to
// ParseLegacy used by omfwd's framing stages.
func FormatStdFwdFmt(m *Message) []byte {
	out := make([]byte, 0, len(m.MSG)+64)
	out = append(out, '<')
	out = strconv.AppendInt(out, int64(m.PRI()), 10)
	out = append(out, '>')
	out = append(out, m.TimestampReported.Format(timeLayout)...)
	out = append(out, ' ')
	out = append(out, m.Hostname...)
	out = append(out, ' ')
	out = append(out, m.Tag...)
	out = append(out, ' ')
	out = append(out, m.MSG...)
	return out
}
