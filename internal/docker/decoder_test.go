package docker

import (
	"encoding/binary"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type emitted struct {
	stream  byte
	payload string
}

func collectDecoder(re *regexp.Regexp) (*frameDecoder, *[]emitted, *int) {
	var out []emitted
	errCount := 0
	d := newFrameDecoder(re,
		func(st byte, payload []byte) {
			out = append(out, emitted{stream: st, payload: string(payload)})
		},
		func() { errCount++ },
	)
	return d, &out, &errCount
}

func frameBytes(stream byte, payload string) []byte {
	hdr := make([]byte, 8)
	hdr[0] = stream
	binary.BigEndian.PutUint32(hdr[4:], uint32(len(payload)))
	return append(hdr, payload...)
}

func TestFrameDecoderStreamTypeAndLength(t *testing.T) {
	d, out, errCount := collectDecoder(nil)

	d.Write(frameBytes(streamStdout, "hello stdout\n"))
	d.Write(frameBytes(streamStderr, "oops stderr\n"))

	require.Len(t, *out, 2)
	assert.Equal(t, streamStdout, (*out)[0].stream)
	assert.Equal(t, "hello stdout\n", (*out)[0].payload)
	assert.Equal(t, streamStderr, (*out)[1].stream)
	assert.Equal(t, "oops stderr\n", (*out)[1].payload)
	assert.Zero(t, *errCount)
}

func TestFrameDecoderFrameSplitAcrossChunks(t *testing.T) {
	d, out, errCount := collectDecoder(nil)

	full := frameBytes(streamStdout, "split across chunks\n")
	// Split inside the header, then inside the payload.
	d.Write(full[:3])
	d.Write(full[3:11])
	d.Write(full[11:])

	require.Len(t, *out, 1)
	assert.Equal(t, "split across chunks\n", (*out)[0].payload)
	assert.Zero(t, *errCount)
}

func TestFrameDecoderLineSpansMultipleFrames(t *testing.T) {
	d, out, _ := collectDecoder(nil)

	d.Write(frameBytes(streamStdout, "part one, "))
	require.Empty(t, *out, "no LF yet, nothing should be emitted")
	d.Write(frameBytes(streamStdout, "part two\n"))

	require.Len(t, *out, 1)
	assert.Equal(t, "part one, part two\n", (*out)[0].payload)
}

func TestFrameDecoderInvalidHeaderFallsBackToLastStream(t *testing.T) {
	d, out, errCount := collectDecoder(nil)

	d.Write(frameBytes(streamStderr, "known stream\n"))
	require.Len(t, *out, 1)

	// Garbage where a header should be: dumped into stderr, not dropped.
	garbage := []byte("raw bytes with no header")
	d.Write(garbage)
	assert.Equal(t, 1, *errCount)

	d.Flush()
	require.Len(t, *out, 2)
	assert.Equal(t, streamStderr, (*out)[1].stream)
	assert.Equal(t, string(garbage), (*out)[1].payload)
}

func TestFrameDecoderPartialFrameFlushedWithError(t *testing.T) {
	d, out, errCount := collectDecoder(nil)

	full := frameBytes(streamStdout, "cut off mid-frame")
	d.Write(full[:14]) // header + 6 payload bytes

	partial := d.Flush()
	assert.True(t, partial)
	assert.Equal(t, 1, *errCount)
	require.Len(t, *out, 1)
	assert.Equal(t, streamStdout, (*out)[0].stream)
	assert.Equal(t, "cut of", (*out)[0].payload)
}

// Scenario: a container labeled with startregex ^\d{4}-\d{2}-\d{2} emits
// "2021-01-01 start\ncontinued\n2021-01-02 next\n" as three chunks, one
// line each; the
// first two lines form one message, the last flushes on stream end.
func TestMultiLineReassembly(t *testing.T) {
	re := regexp.MustCompile(`^\d{4}-\d{2}-\d{2}`)
	d, out, _ := collectDecoder(re)

	d.Write(frameBytes(streamStdout, "2021-01-01 start\n"))
	d.Write(frameBytes(streamStdout, "continued\n"))
	d.Write(frameBytes(streamStdout, "2021-01-02 next\n"))

	require.Len(t, *out, 1)
	assert.Equal(t, "2021-01-01 start\ncontinued\n", (*out)[0].payload)

	d.Flush()
	require.Len(t, *out, 2)
	assert.Equal(t, "2021-01-02 next\n", (*out)[1].payload)
}

func TestMultiLineSingleChunk(t *testing.T) {
	re := regexp.MustCompile(`^\d{4}-\d{2}-\d{2}`)
	d, out, _ := collectDecoder(re)

	var chunk []byte
	chunk = append(chunk, frameBytes(streamStdout, "2021-01-01 start\n")...)
	chunk = append(chunk, frameBytes(streamStdout, "continued\n")...)
	chunk = append(chunk, frameBytes(streamStdout, "2021-01-02 next\n")...)
	d.Write(chunk)
	d.Flush()

	require.Len(t, *out, 2)
	assert.Equal(t, "2021-01-01 start\ncontinued\n", (*out)[0].payload)
	assert.Equal(t, "2021-01-02 next\n", (*out)[1].payload)
}

func TestMultiLineStderrKeptSeparateFromStdout(t *testing.T) {
	re := regexp.MustCompile(`^START`)
	d, out, _ := collectDecoder(re)

	d.Write(frameBytes(streamStdout, "START out one\n"))
	d.Write(frameBytes(streamStderr, "START err one\n"))
	d.Write(frameBytes(streamStdout, "START out two\n"))

	require.Len(t, *out, 1)
	assert.Equal(t, streamStdout, (*out)[0].stream)
	assert.Equal(t, "START out one\n", (*out)[0].payload)

	d.Flush()
	require.Len(t, *out, 3)
}
