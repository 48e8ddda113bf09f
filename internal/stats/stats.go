// Package stats exposes the daemon's operational counters: per-forwarder-
// target bytes.sent/messages.sent and per-input submitted/
// ratelimit.discarded/curl.errors, published both as Prometheus
// collectors and as a periodic JSON snapshot log line.
package stats

import (
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rsyslog-go/daemon/internal/ports"
	"github.com/rsyslog-go/daemon/pkg/jsonfast"
)

// TargetCounters holds one forwarder target's counters,
// labeled "<proto>-<host>-<port>".
type TargetCounters struct {
	Label string

	bytesSent    prometheus.Counter
	messagesSent prometheus.Counter
}

// AddBytesSent records n wire bytes delivered to this target.
func (t *TargetCounters) AddBytesSent(n uint64) { t.bytesSent.Add(float64(n)) }

// AddMessagesSent records n messages delivered to this target.
func (t *TargetCounters) AddMessagesSent(n uint64) { t.messagesSent.Add(float64(n)) }

// InputCounters holds one input module's counters.
type InputCounters struct {
	Name string

	submitted          prometheus.Counter
	ratelimitDiscarded prometheus.Counter
	curlErrors         prometheus.Counter

	// raw mirrors for the JSON snapshot (prometheus counters are not
	// readable without a full gather pass)
	rawSubmitted  counterMirror
	rawDiscarded  counterMirror
	rawCurlErrors counterMirror
}

type counterMirror struct {
	mu sync.Mutex
	v  uint64
}

func (c *counterMirror) add(n uint64) {
	c.mu.Lock()
	c.v += n
	c.mu.Unlock()
}

func (c *counterMirror) load() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.v
}

// AddSubmitted records n messages submitted by this input.
func (i *InputCounters) AddSubmitted(n uint64) {
	i.submitted.Add(float64(n))
	i.rawSubmitted.add(n)
}

// AddRatelimitDiscarded records n messages dropped by the input's limiter.
func (i *InputCounters) AddRatelimitDiscarded(n uint64) {
	i.ratelimitDiscarded.Add(float64(n))
	i.rawDiscarded.add(n)
}

// AddCurlErrors records n transport errors on the input's HTTP client.
func (i *InputCounters) AddCurlErrors(n uint64) {
	i.curlErrors.Add(float64(n))
	i.rawCurlErrors.add(n)
}

// Submitted returns the cumulative submitted count.
func (i *InputCounters) Submitted() uint64 { return i.rawSubmitted.load() }

// RatelimitDiscarded returns the cumulative ratelimit-discard count.
func (i *InputCounters) RatelimitDiscarded() uint64 { return i.rawDiscarded.load() }

// CurlErrors returns the cumulative transport-error count.
func (i *InputCounters) CurlErrors() uint64 { return i.rawCurlErrors.load() }

// Registry owns every counter family and the Prometheus registry behind
// them.
type Registry struct {
	namespace string
	subsystem string
	logger    ports.Logger

	reg *prometheus.Registry

	bytesSentVec    *prometheus.CounterVec
	messagesSentVec *prometheus.CounterVec
	inputVec        *prometheus.CounterVec

	mu      sync.Mutex
	targets map[string]*TargetCounters
	inputs  map[string]*InputCounters

	targetTotals func() map[string][2]uint64
}

// NewRegistry constructs a Registry with the counter families registered.
func NewRegistry(namespace, subsystem string, logger ports.Logger) *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		namespace: namespace,
		subsystem: subsystem,
		logger:    logger,
		reg:       reg,
		targets:   make(map[string]*TargetCounters),
		inputs:    make(map[string]*InputCounters),
	}

	r.bytesSentVec = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "forward_bytes_sent_total",
		Help:      "Bytes sent per forwarder target (bytes.sent).",
	}, []string{"target"})
	r.messagesSentVec = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "forward_messages_sent_total",
		Help:      "Messages sent per forwarder target (messages.sent).",
	}, []string{"target"})
	r.inputVec = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "input_events_total",
		Help:      "Per-input counters: submitted, ratelimit.discarded, curl.errors.",
	}, []string{"input", "counter"})

	reg.MustRegister(r.bytesSentVec, r.messagesSentVec, r.inputVec)
	reg.MustRegister(prometheus.NewGoCollector())

	return r
}

// TargetLabel builds the stats label for one forwarder target.
func TargetLabel(proto, host string, port int) string {
	return proto + "-" + host + "-" + strconv.Itoa(port)
}

// Target returns (creating on first use) the counter pair for one
// forwarder target label.
func (r *Registry) Target(label string) *TargetCounters {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.targets[label]; ok {
		return t
	}
	t := &TargetCounters{
		Label:        label,
		bytesSent:    r.bytesSentVec.WithLabelValues(label),
		messagesSent: r.messagesSentVec.WithLabelValues(label),
	}
	r.targets[label] = t
	return t
}

// Input returns (creating on first use) the counter set for one input
// module name.
func (r *Registry) Input(name string) *InputCounters {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i, ok := r.inputs[name]; ok {
		return i
	}
	i := &InputCounters{
		Name:               name,
		submitted:          r.inputVec.WithLabelValues(name, "submitted"),
		ratelimitDiscarded: r.inputVec.WithLabelValues(name, "ratelimit.discarded"),
		curlErrors:         r.inputVec.WithLabelValues(name, "curl.errors"),
	}
	r.inputs[name] = i
	return i
}

// SetTargetTotals wires a callback (typically forwarder.Pool.Stats)
// whose per-target byte/message totals feed the JSON snapshot.
func (r *Registry) SetTargetTotals(fn func() map[string][2]uint64) {
	r.mu.Lock()
	r.targetTotals = fn
	r.mu.Unlock()
}

// Handler returns the Prometheus scrape handler for this registry.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// Snapshot renders one impstats-style JSON record over the current
// counters using the low-allocation builder.
func (r *Registry) Snapshot(now time.Time) []byte {
	r.mu.Lock()
	defer r.mu.Unlock()

	b := jsonfast.New(512)
	b.BeginObject()
	b.AddStringField("origin", r.namespace)
	b.AddStringField("time", now.UTC().Format(time.RFC3339))

	if r.targetTotals != nil {
		for label, v := range r.targetTotals() {
			b.AddIntField(label+".bytes.sent", int(v[0]))
			b.AddIntField(label+".messages.sent", int(v[1]))
		}
	}
	for name, in := range r.inputs {
		b.AddIntField(name+".submitted", int(in.Submitted()))
		b.AddIntField(name+".ratelimit.discarded", int(in.RatelimitDiscarded()))
		b.AddIntField(name+".curl.errors", int(in.CurlErrors()))
	}

	b.EndObject()
	out := make([]byte, len(b.Bytes()))
	copy(out, b.Bytes())
	return out
}

// RunSnapshotLoop emits a snapshot log line every interval until stop is
// closed.
func (r *Registry) RunSnapshotLoop(interval time.Duration, stop <-chan struct{}) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			if r.logger != nil {
				r.logger.Info("stats snapshot", ports.Field{Key: "stats", Value: string(r.Snapshot(now))})
			}
		}
	}
}

// Serve starts an HTTP listener exposing the scrape endpoint on port.
// It returns the server so the caller can shut it down.
func (r *Registry) Serve(port int) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", r.Handler())
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed && r.logger != nil {
			r.logger.Error("stats listener failed", ports.Field{Key: "error", Value: err})
		}
	}()
	return srv
}
