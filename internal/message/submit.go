package message

import (
	"errors"
	"time"
)

// OversizePolicy controls what happens when a raw message body exceeds
// MaxLine.
type OversizePolicy int

const (
	// OversizeAccept passes the message through unchanged.
	OversizeAccept OversizePolicy = iota
	// OversizeTruncate cuts the body at MaxLine and sets FlagTruncated.
	OversizeTruncate
	// OversizeSplit breaks the body into MaxLine-sized sibling messages,
	// each submitted independently; the original is then released.
	OversizeSplit
)

// Enqueuer is the narrow interface submit needs from a queue: enough to
// enqueue one message under a flow-control class. internal/queue.Queue
// implements this.
type Enqueuer interface {
	Enqueue(m *Message, flow FlowControl) error
}

// ErrQueueFull is returned by an Enqueuer when NoDelay flow control finds
// no room.
var ErrQueueFull = errors.New("message: queue full")

// OversizeReporter receives one notification per configured report
// interval describing an oversize message; callers wire this to the
// ratelimited oversize-log writer.
type OversizeReporter interface {
	ReportOversize(firstBytes []byte, total int)
}

// SubmitOptions configures Submit's oversize handling.
type SubmitOptions struct {
	MaxLine  int
	Policy   OversizePolicy
	Reporter OversizeReporter
}

// Submit applies the oversize policy to m, then enqueues it (or its split
// siblings) on q under m.Flow. It is the single call site that marks a
// message submitted, enforcing the immutable-after-submit invariant.
func Submit(q Enqueuer, m *Message, opts SubmitOptions) error {
	if opts.MaxLine <= 0 || len(m.Raw) <= opts.MaxLine {
		return submitOne(q, m)
	}

	if opts.Reporter != nil {
		n := len(m.Raw)
		if n > 80 {
			n = 80
		}
		opts.Reporter.ReportOversize(append([]byte(nil), m.Raw[:n]...), len(m.Raw))
	}

	switch opts.Policy {
	case OversizeTruncate:
		m.Raw = m.Raw[:opts.MaxLine]
		m.SetFlag(FlagTruncated | FlagOversize)
		return submitOne(q, m)
	case OversizeSplit:
		return submitSplit(q, m, opts.MaxLine)
	default: // OversizeAccept
		m.SetFlag(FlagOversize)
		return submitOne(q, m)
	}
}

func submitOne(q Enqueuer, m *Message) error {
	if !m.MarkSubmitted() {
		return errors.New("message: already submitted")
	}
	return q.Enqueue(m, m.Flow)
}

// submitSplit breaks m.Raw into equal-sized MaxLine segments (the final
// segment carries the remainder), constructs a sibling Message per
// segment, submits each independently preserving byte order, then
// releases the original.
func submitSplit(q Enqueuer, m *Message, maxLine int) error {
	raw := m.Raw
	var firstErr error
	for off := 0; off < len(raw); off += maxLine {
		end := off + maxLine
		if end > len(raw) {
			end = len(raw)
		}
		sib := Construct(m.TimestampReceived)
		sib.TimestampReported = m.TimestampReported
		sib.Hostname = m.Hostname
		sib.Tag = m.Tag
		sib.AppName = m.AppName
		sib.Facility = m.Facility
		sib.Severity = m.Severity
		sib.Flow = m.Flow
		sib.InputName = m.InputName
		sib.Ruleset = m.Ruleset
		sib.Raw = append(sib.Raw[:0], raw[off:end]...)
		sib.SetFlag(FlagOversize)

		if err := submitOne(q, sib); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	Release(m)
	return firstErr
}

// MultiSubmit submits every message in list to q, all under the same
// queue, in list order. The batch is not enqueued atomically: enqueues
// from other goroutines can interleave with it. It stops at the first error
// but still marks each already-visited message submitted, since ownership
// has already transferred to the queue for prior entries.
func MultiSubmit(q Enqueuer, list []*Message, opts SubmitOptions) error {
	for _, m := range list {
		if err := Submit(q, m, opts); err != nil {
			return err
		}
	}
	return nil
}

// Now is a small seam so callers (and tests) can stub the wall clock
// without threading a clock interface through every input.
var Now = time.Now
