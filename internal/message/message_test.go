package message

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeQueue struct {
	got []*Message
}

func (f *fakeQueue) Enqueue(m *Message, _ FlowControl) error {
	f.got = append(f.got, m)
	return nil
}

func TestConstructResetsFields(t *testing.T) {
	now := time.Now()
	m := Construct(now)
	require.Equal(t, now, m.TimestampReceived)
	require.Equal(t, now, m.TimestampReported)
	require.Empty(t, m.Hostname)
	require.False(t, m.Submitted())
}

func TestSubmitMarksSubmittedOnce(t *testing.T) {
	q := &fakeQueue{}
	m := Construct(time.Now())
	m.Raw = []byte("hello")

	require.NoError(t, Submit(q, m, SubmitOptions{MaxLine: 1024, Policy: OversizeAccept}))
	require.Len(t, q.got, 1)
	require.True(t, m.Submitted())

	err := Submit(q, m, SubmitOptions{MaxLine: 1024, Policy: OversizeAccept})
	require.Error(t, err)
}

// Boundary behavior 9: max-line = 1024, incoming 4000-byte message,
// policy=split -> 4 sibling messages of length {1024,1024,1024,928}
// preserving byte order.
func TestSubmitSplitProducesExpectedSegments(t *testing.T) {
	q := &fakeQueue{}
	m := Construct(time.Now())
	body := make([]byte, 4000)
	for i := range body {
		body[i] = byte('a' + i%26)
	}
	m.Raw = append([]byte(nil), body...)

	require.NoError(t, Submit(q, m, SubmitOptions{MaxLine: 1024, Policy: OversizeSplit}))
	require.Len(t, q.got, 4)

	lengths := make([]int, len(q.got))
	for i, sib := range q.got {
		lengths[i] = len(sib.Raw)
	}
	assert.Equal(t, []int{1024, 1024, 1024, 928}, lengths)

	var rebuilt []byte
	for _, sib := range q.got {
		rebuilt = append(rebuilt, sib.Raw...)
	}
	assert.Equal(t, body, rebuilt)
}

func TestSubmitTruncateSetsFlag(t *testing.T) {
	q := &fakeQueue{}
	m := Construct(time.Now())
	m.Raw = make([]byte, 2000)

	require.NoError(t, Submit(q, m, SubmitOptions{MaxLine: 1024, Policy: OversizeTruncate}))
	require.Len(t, q.got, 1)
	assert.Len(t, q.got[0].Raw, 1024)
	assert.True(t, q.got[0].HasFlag(FlagTruncated))
}

type recordingReporter struct {
	firstBytes []byte
	total      int
}

func (r *recordingReporter) ReportOversize(firstBytes []byte, total int) {
	r.firstBytes = firstBytes
	r.total = total
}

func TestSubmitReportsOversizeFirst80Bytes(t *testing.T) {
	q := &fakeQueue{}
	rep := &recordingReporter{}
	m := Construct(time.Now())
	m.Raw = make([]byte, 200)
	for i := range m.Raw {
		m.Raw[i] = 'x'
	}

	require.NoError(t, Submit(q, m, SubmitOptions{MaxLine: 100, Policy: OversizeAccept, Reporter: rep}))
	assert.Len(t, rep.firstBytes, 80)
	assert.Equal(t, 200, rep.total)
}

func TestMultiSubmitPreservesOrder(t *testing.T) {
	q := &fakeQueue{}
	var list []*Message
	for i := 0; i < 5; i++ {
		m := Construct(time.Now())
		m.Tag = string(rune('a' + i))
		list = append(list, m)
	}
	require.NoError(t, MultiSubmit(q, list, SubmitOptions{MaxLine: 1024}))
	require.Len(t, q.got, 5)
	for i, m := range q.got {
		assert.Equal(t, string(rune('a'+i)), m.Tag)
	}
}

// Round-trip / idempotence 6: a Message constructed from raw syslog "PRI
// header + body" then re-serialized through StdFwdFmt yields the same
// on-wire bytes (modulo trailing-LF policy).
func TestParseLegacyRoundTripsThroughStdFwdFmt(t *testing.T) {
	raw := []byte("<14>Jan  2 15:04:05 myhost app: hello")
	m := Construct(time.Now())
	require.NoError(t, ParseLegacy(m, raw, time.Date(2026, 1, 2, 15, 5, 0, 0, time.UTC)))

	assert.Equal(t, FacilityUser, m.Facility)
	assert.Equal(t, SeverityInfo, m.Severity)
	assert.Equal(t, "myhost", m.Hostname)
	assert.Equal(t, "app:", m.Tag)
	assert.Equal(t, "hello", string(m.MSG))

	out := FormatStdFwdFmt(m)
	assert.Equal(t, raw, out)
}

func TestParseLegacyHonorsVersionOneQuirkRegardlessOfContext(t *testing.T) {
	raw := []byte("<14>1 anything-here")
	m := Construct(time.Now())
	require.NoError(t, ParseLegacy(m, raw, time.Now()))
	assert.Equal(t, "anything-here", string(m.MSG))
}
