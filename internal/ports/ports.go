// Package ports defines the narrow service interfaces used to decouple
// the pipeline core from its concrete transports, storage, and output
// drivers.
package ports

import (
	"context"
	"time"

	"github.com/rsyslog-go/daemon/internal/message"
)

// Logger defines the interface for structured logging.
type Logger interface {
	Trace(msg string, fields ...Field)
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	Fatal(msg string, fields ...Field)
	WithFields(fields ...Field) Logger
}

// Field represents a structured logging field.
type Field struct {
	Key   string
	Value interface{}
}

// CircuitBreaker gates an action's beginTransaction call, tripping an action
// (or forwarder target) into the suspended state on a burst of failures.
type CircuitBreaker interface {
	Execute(fn func() error) error
	GetState() string
	GetStats() CircuitBreakerStats
}

// CircuitBreakerStats mirrors the breaker's internal sliding window.
type CircuitBreakerStats struct {
	Requests            uint64
	TotalSuccess        uint64
	TotalFailure        uint64
	ConsecutiveFailures uint64
	State               string
}

// ActionStatus is the result of a doAction/commitTransaction call.
type ActionStatus int

const (
	ActionOK ActionStatus = iota
	ActionDeferCommit
	ActionPreviousCommitted
	ActionSuspended
	ActionDisabled
)

func (s ActionStatus) String() string {
	switch s {
	case ActionOK:
		return "ok"
	case ActionDeferCommit:
		return "defer-commit"
	case ActionPreviousCommitted:
		return "previous-committed"
	case ActionSuspended:
		return "suspended"
	case ActionDisabled:
		return "disabled"
	default:
		return "unknown"
	}
}

// OutputAction is the vtable every output driver (omfwd, ommqtt)
// implements.
type OutputAction interface {
	Name() string
	BeginTransaction(ctx context.Context) ActionStatus
	DoAction(ctx context.Context, m *message.Message) ActionStatus
	CommitTransaction(ctx context.Context) ActionStatus
	HUP(ctx context.Context) error
	Close() error
}

// DockerClient is the narrow surface imdocker needs from the Docker
// Engine API client, satisfied by internal/docker's adapter over
// github.com/docker/docker/client.
type DockerClient interface {
	ListContainers(ctx context.Context, sinceID string) ([]ContainerSummary, error)
	StreamLogs(ctx context.Context, containerID string, tail bool) (LogStream, error)
}

// ContainerSummary is the subset of the Docker container-list response
// this daemon consumes.
type ContainerSummary struct {
	ID      string
	Name    string
	ImageID string
	Created int64
	Labels  map[string]string
}

// LogStream is a single container's multiplexed stdout/stderr stream.
type LogStream interface {
	Read(p []byte) (int, error)
	Close() error
}

// QueueBackend is the narrow persistence surface a disk-assisted queue
// needs; internal/queue/diskqueue implements it against Redis streams.
type QueueBackend interface {
	Spill(ctx context.Context, payload []byte) (id string, err error)
	Replay(ctx context.Context, count int64, block time.Duration) ([]SpillEntry, error)
	Commit(ctx context.Context, ids ...string) error
	ReclaimOrphaned(ctx context.Context, minIdle time.Duration, count int64) ([]SpillEntry, error)
	Close() error
}

// SpillEntry is one message recovered from disk-assisted backing storage.
type SpillEntry struct {
	ID      string
	Payload []byte
}
