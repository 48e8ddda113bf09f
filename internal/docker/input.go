package docker

import (
	"context"
	"errors"
	"io"
	"regexp"
	"sync"
	"time"

	"github.com/rsyslog-go/daemon/internal/message"
	"github.com/rsyslog-go/daemon/internal/ports"
	"github.com/rsyslog-go/daemon/internal/ratelimit"
	"github.com/rsyslog-go/daemon/internal/stats"
	"github.com/rsyslog-go/daemon/pkg/jsonx"
)

// Config configures the container log input.
type Config struct {
	PollingInterval          time.Duration
	RetrieveNewLogsFromStart bool

	DefaultFacility message.Facility
	DefaultSeverity message.Severity

	RatelimitIntervalSeconds int
	RatelimitBurst           int

	Submit message.SubmitOptions
}

// containerInstance is one tracked container's streaming state.
type containerInstance struct {
	id      string
	name    string
	imageID string
	labels  map[string]string

	labelsJSON string
	startRe    *regexp.Regexp

	cancel context.CancelFunc
}

func (ci *containerInstance) shortID() string {
	if len(ci.id) > 12 {
		return ci.id[:12]
	}
	return ci.id
}

// Input polls the Docker Engine for containers and streams each one's
// logs into the main queue.
type Input struct {
	cfg    Config
	client ports.DockerClient
	sink   message.Enqueuer
	logger ports.Logger

	limiter  *ratelimit.Limiter
	counters *stats.InputCounters

	mu              sync.Mutex
	instances       map[string]*containerInstance
	lastContainerID string
	lastCreated     int64

	wg sync.WaitGroup
}

// New constructs the input; nothing runs until Run is called.
func New(cfg Config, client ports.DockerClient, sink message.Enqueuer, counters *stats.InputCounters, logger ports.Logger) *Input {
	return &Input{
		cfg:       cfg,
		client:    client,
		sink:      sink,
		logger:    logger,
		limiter:   ratelimit.New(cfg.RatelimitIntervalSeconds, cfg.RatelimitBurst, -1),
		counters:  counters,
		instances: make(map[string]*containerInstance),
	}
}

// Run polls until ctx is cancelled, then waits for every container
// stream to wind down.
func (in *Input) Run(ctx context.Context) {
	in.poll(ctx, true)

	ticker := time.NewTicker(in.cfg.PollingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			in.wg.Wait()
			return
		case <-ticker.C:
			in.poll(ctx, false)
		}
	}
}

// poll lists containers newer than the most recently seen one and starts
// a stream for each that is not yet tracked.
func (in *Input) poll(ctx context.Context, first bool) {
	in.mu.Lock()
	since := in.lastContainerID
	in.mu.Unlock()

	list, err := in.client.ListContainers(ctx, since)
	if err != nil {
		if in.counters != nil {
			in.counters.AddCurlErrors(1)
		}
		if in.logger != nil {
			in.logger.Warn("imdocker: container list failed", ports.Field{Key: "error", Value: err})
		}
		return
	}

	for _, c := range list {
		in.track(ctx, c, first)
	}
}

func (in *Input) track(ctx context.Context, c ports.ContainerSummary, first bool) {
	in.mu.Lock()
	if _, ok := in.instances[c.ID]; ok {
		in.mu.Unlock()
		return
	}

	ci := &containerInstance{
		id:      c.ID,
		name:    c.Name,
		imageID: c.ImageID,
		labels:  c.Labels,
	}
	if raw, err := jsonx.Marshal(c.Labels); err == nil {
		ci.labelsJSON = string(raw)
	}
	if pattern, ok := c.Labels[StartRegexLabel]; ok && pattern != "" {
		re, err := regexp.Compile(pattern)
		if err != nil {
			if in.logger != nil {
				in.logger.Warn("imdocker: bad startregex label, ignoring",
					ports.Field{Key: "container", Value: ci.shortID()},
					ports.Field{Key: "error", Value: err},
				)
			}
		} else {
			ci.startRe = re
		}
	}

	streamCtx, cancel := context.WithCancel(ctx)
	ci.cancel = cancel
	in.instances[c.ID] = ci
	if c.Created > in.lastCreated {
		in.lastCreated = c.Created
		in.lastContainerID = c.ID
	}
	in.mu.Unlock()

	tail := first || !in.cfg.RetrieveNewLogsFromStart

	in.wg.Add(1)
	go func() {
		defer in.wg.Done()
		defer in.remove(c.ID)
		in.streamContainer(streamCtx, ci, tail)
	}()
}

// remove drops a finished container from the table, mutex held briefly.
func (in *Input) remove(id string) {
	in.mu.Lock()
	if ci, ok := in.instances[id]; ok {
		ci.cancel()
		delete(in.instances, id)
	}
	in.mu.Unlock()
}

// streamContainer holds the follow-mode log stream open, reconnecting
// with backoff on transient errors, until the stream ends cleanly (the
// container stopped) or ctx is cancelled.
func (in *Input) streamContainer(ctx context.Context, ci *containerInstance, tail bool) {
	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		err := in.streamOnce(ctx, ci, tail)
		if ctx.Err() != nil || err == nil {
			return
		}

		if in.counters != nil {
			in.counters.AddCurlErrors(1)
		}
		if in.logger != nil {
			in.logger.Warn("imdocker: log stream error, reconnecting",
				ports.Field{Key: "container", Value: ci.shortID()},
				ports.Field{Key: "error", Value: err},
				ports.Field{Key: "backoff", Value: backoff.String()},
			)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		if backoff *= 2; backoff > maxBackoff {
			backoff = maxBackoff
		}
		tail = true // never re-ingest history after a reconnect
	}
}

// streamOnce opens one log stream and decodes it to exhaustion. A nil
// return means the stream ended cleanly.
func (in *Input) streamOnce(ctx context.Context, ci *containerInstance, tail bool) error {
	stream, err := in.client.StreamLogs(ctx, ci.id, tail)
	if err != nil {
		return err
	}
	defer stream.Close()

	dec := newFrameDecoder(ci.startRe,
		func(st byte, payload []byte) { in.submit(ci, st, payload) },
		func() {
			if in.counters != nil {
				in.counters.AddCurlErrors(1)
			}
		},
	)

	buf := make([]byte, 16*1024)
	for {
		n, rerr := stream.Read(buf)
		if n > 0 {
			dec.Write(buf[:n])
		}
		if rerr != nil {
			dec.Flush()
			if ctx.Err() != nil || errors.Is(rerr, io.EOF) {
				return nil
			}
			return rerr
		}
	}
}

// submit builds and enqueues one message for a decoded log record.
func (in *Input) submit(ci *containerInstance, streamType byte, payload []byte) {
	if !in.limiter.Allow(time.Now()) {
		if in.counters != nil {
			in.counters.AddRatelimitDiscarded(1)
		}
		return
	}

	m := message.Construct(time.Now())
	m.Facility = in.cfg.DefaultFacility
	m.Severity = in.cfg.DefaultSeverity
	if streamType == streamStderr {
		m.Severity = message.SeverityErr
	}
	m.Tag = "docker:"
	m.InputName = "imdocker"
	m.Raw = append(m.Raw[:0], payload...)
	m.MSG = append(m.MSG[:0], payload...)
	m.Metadata = map[string]string{
		"CONTAINER_ID":     ci.shortID(),
		"CONTAINER_NAME":   ci.name,
		"IMAGE_ID":         ci.imageID,
		"CONTAINER_LABELS": ci.labelsJSON,
	}

	if err := message.Submit(in.sink, m, in.cfg.Submit); err != nil {
		return
	}
	if in.counters != nil {
		in.counters.AddSubmitted(1)
	}
}

// Tracked reports how many containers currently stream, for tests and
// the health endpoint.
func (in *Input) Tracked() int {
	in.mu.Lock()
	defer in.mu.Unlock()
	return len(in.instances)
}
