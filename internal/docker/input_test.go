package docker

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/rsyslog-go/daemon/internal/message"
	"github.com/rsyslog-go/daemon/internal/ports"
	"github.com/rsyslog-go/daemon/internal/stats"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStream struct {
	chunks [][]byte
	pos    int
}

func (f *fakeStream) Read(p []byte) (int, error) {
	if f.pos >= len(f.chunks) {
		return 0, io.EOF
	}
	n := copy(p, f.chunks[f.pos])
	f.pos++
	return n, nil
}

func (f *fakeStream) Close() error { return nil }

type fakeClient struct {
	containers []ports.ContainerSummary
	streams    map[string][][]byte
}

func (f *fakeClient) ListContainers(ctx context.Context, sinceID string) ([]ports.ContainerSummary, error) {
	if sinceID != "" {
		return nil, nil
	}
	return f.containers, nil
}

func (f *fakeClient) StreamLogs(ctx context.Context, containerID string, tail bool) (ports.LogStream, error) {
	return &fakeStream{chunks: f.streams[containerID]}, nil
}

type sinkQueue struct {
	msgs chan *message.Message
}

func (s *sinkQueue) Enqueue(m *message.Message, flow message.FlowControl) error {
	s.msgs <- m
	return nil
}

const testContainerID = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

func testInputConfig() Config {
	return Config{
		PollingInterval:          time.Hour,
		RetrieveNewLogsFromStart: true,
		DefaultFacility:          message.FacilityUser,
		DefaultSeverity:          message.SeverityInfo,
	}
}

func TestInputSubmitsDecodedMessagesWithMetadata(t *testing.T) {
	client := &fakeClient{
		containers: []ports.ContainerSummary{{
			ID:      testContainerID,
			Name:    "web",
			ImageID: "sha256:feedface",
			Created: 1700000000,
			Labels:  map[string]string{"app": "web"},
		}},
		streams: map[string][][]byte{
			testContainerID: {
				frameBytes(streamStdout, "hello from stdout\n"),
				frameBytes(streamStderr, "warning from stderr\n"),
			},
		},
	}

	sink := &sinkQueue{msgs: make(chan *message.Message, 8)}
	reg := stats.NewRegistry("rsyslogd_test", "", nil)
	in := New(testInputConfig(), client, sink, reg.Input("imdocker"), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go in.Run(ctx)

	first := <-sink.msgs
	second := <-sink.msgs

	assert.Equal(t, "hello from stdout\n", string(first.MSG))
	assert.Equal(t, message.SeverityInfo, first.Severity)
	assert.Equal(t, message.FacilityUser, first.Facility)
	assert.Equal(t, "docker:", first.Tag)
	assert.Equal(t, "imdocker", first.InputName)
	assert.Equal(t, testContainerID[:12], first.Metadata["CONTAINER_ID"])
	assert.Equal(t, "web", first.Metadata["CONTAINER_NAME"])
	assert.Equal(t, "sha256:feedface", first.Metadata["IMAGE_ID"])
	assert.Contains(t, first.Metadata["CONTAINER_LABELS"], `"app":"web"`)

	assert.Equal(t, "warning from stderr\n", string(second.MSG))
	assert.Equal(t, message.SeverityErr, second.Severity, "stderr records must carry LOG_ERR")
}

func TestInputRatelimitCountsDiscards(t *testing.T) {
	chunks := make([][]byte, 0, 5)
	for i := 0; i < 5; i++ {
		chunks = append(chunks, frameBytes(streamStdout, "line\n"))
	}
	client := &fakeClient{
		containers: []ports.ContainerSummary{{ID: testContainerID, Name: "noisy", Created: 1}},
		streams:    map[string][][]byte{testContainerID: chunks},
	}

	cfg := testInputConfig()
	cfg.RatelimitIntervalSeconds = 10
	cfg.RatelimitBurst = 2

	sink := &sinkQueue{msgs: make(chan *message.Message, 8)}
	reg := stats.NewRegistry("rsyslogd_test", "", nil)
	counters := reg.Input("imdocker")
	in := New(cfg, client, sink, counters, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go in.Run(ctx)

	<-sink.msgs
	<-sink.msgs

	require.Eventually(t, func() bool {
		return counters.RatelimitDiscarded() == 3
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, uint64(2), counters.Submitted())
}

func TestInputRemovesContainerWhenStreamEnds(t *testing.T) {
	client := &fakeClient{
		containers: []ports.ContainerSummary{{ID: testContainerID, Name: "short-lived", Created: 1}},
		streams:    map[string][][]byte{testContainerID: {frameBytes(streamStdout, "bye\n")}},
	}

	sink := &sinkQueue{msgs: make(chan *message.Message, 8)}
	in := New(testInputConfig(), client, sink, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go in.Run(ctx)

	<-sink.msgs
	require.Eventually(t, func() bool { return in.Tracked() == 0 },
		time.Second, 10*time.Millisecond)
}
