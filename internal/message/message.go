// Package message defines the Message type that flows through the
// pipeline: construction, mutation up to submit, then read-only passage
// through queues and actions.
package message

import (
	"sync"
	"sync/atomic"
	"time"
)

// FlowControl classifies how submit behaves against a full queue.
type FlowControl int32

const (
	// NoDelay drops the message immediately if the target queue is full.
	NoDelay FlowControl = iota
	// LightDelay may block briefly on a full queue before giving up.
	LightDelay
	// FullDelay blocks until space is available.
	FullDelay
)

func (f FlowControl) String() string {
	switch f {
	case NoDelay:
		return "no-delay"
	case LightDelay:
		return "light-delay"
	case FullDelay:
		return "full-delay"
	default:
		return "unknown"
	}
}

// Flag bits recorded on a Message.
type Flag uint32

const (
	FlagNeedsParsing Flag = 1 << iota
	FlagNeedsACLCheck
	FlagParseHostname
	FlagInternalOrigin
	FlagMark
	FlagTruncated
	FlagOversize
)

// Facility is the syslog facility, 0..23.
type Facility int8

// Severity is the syslog severity, 0 (emerg) .. 7 (debug).
type Severity int8

const (
	SeverityEmerg Severity = iota
	SeverityAlert
	SeverityCrit
	SeverityErr
	SeverityWarning
	SeverityNotice
	SeverityInfo
	SeverityDebug
)

const (
	FacilityKern Facility = iota
	FacilityUser
	FacilityMail
	FacilityDaemon
	FacilityAuth
	FacilitySyslog
	FacilityLPR
	FacilityNews
	FacilityUUCP
	FacilityCron
	FacilityAuthpriv
	FacilityFTP
)

// Message is the record carried through the pipeline. Once Submit has been
// called on it, its body and parsed fields must not be mutated: it becomes
// read-only through every subsequent queue and action stage. Ownership
// passes to the owning queue at that point; on action failure with retry,
// ownership returns to the queue, never to the original input.
type Message struct {
	Raw []byte

	MSG           []byte
	AppName       string
	ProcID        string
	MsgID         string
	StructuredData string
	Tag           string
	Hostname      string

	ReceiverFrom   string
	ReceiverFromIP string
	InputName      string
	Ruleset        string

	TimestampReported time.Time
	TimestampReceived time.Time

	Facility Facility
	Severity Severity
	Flags    Flag
	Flow     FlowControl

	// Metadata carries optional structured JSON metadata attached by an
	// input (e.g. the imdocker container attributes).
	Metadata map[string]string

	submitted atomic.Bool
}

// PRI returns the legacy syslog PRI value, facility*8 + severity.
func (m *Message) PRI() int {
	return int(m.Facility)*8 + int(m.Severity)
}

// HasFlag reports whether every bit in f is set.
func (m *Message) HasFlag(f Flag) bool {
	return m.Flags&f == f
}

// SetFlag sets the given bits.
func (m *Message) SetFlag(f Flag) {
	m.Flags |= f
}

// Construct builds a new Message stamped with the current time for both
// reported and received timestamps.
func Construct(now time.Time) *Message {
	return ConstructWithTime(now, now)
}

// ConstructWithTime builds a new Message with an explicit reported
// timestamp distinct from the receive timestamp (e.g. a parsed RFC3164
// header time vs. wall-clock arrival).
func ConstructWithTime(reported, received time.Time) *Message {
	m := pool.Get().(*Message)
	m.reset()
	m.TimestampReported = reported
	m.TimestampReceived = received
	return m
}

// Release returns a Message to the pool. Callers must not touch m after
// calling Release; only the terminal action or an explicit discard may do
// so, per the ownership summary: destroyed after terminal action(s)
// complete or after an explicit discard.
func Release(m *Message) {
	pool.Put(m)
}

func (m *Message) reset() {
	m.Raw = m.Raw[:0]
	m.MSG = m.MSG[:0]
	m.AppName = ""
	m.ProcID = ""
	m.MsgID = ""
	m.StructuredData = ""
	m.Tag = ""
	m.Hostname = ""
	m.ReceiverFrom = ""
	m.ReceiverFromIP = ""
	m.InputName = ""
	m.Ruleset = ""
	m.TimestampReported = time.Time{}
	m.TimestampReceived = time.Time{}
	m.Facility = 0
	m.Severity = 0
	m.Flags = 0
	m.Flow = NoDelay
	m.Metadata = nil
	m.submitted.Store(false)
}

// MarkSubmitted records that this message has been handed to a queue.
// Submit must call this exactly once; it is used by tests and internal
// assertions to enforce the "mutated only up to submit" invariant.
func (m *Message) MarkSubmitted() bool {
	return m.submitted.CompareAndSwap(false, true)
}

// Submitted reports whether MarkSubmitted has already succeeded for m.
func (m *Message) Submitted() bool {
	return m.submitted.Load()
}

var pool = sync.Pool{
	New: func() interface{} {
		return &Message{
			Raw: make([]byte, 0, 256),
			MSG: make([]byte, 0, 256),
		}
	},
}
