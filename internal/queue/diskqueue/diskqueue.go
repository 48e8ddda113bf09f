// Package diskqueue implements the disk-assisted queue backend (queue
// types "disk" and "disk-assisted") on top of Redis streams. It does not
// reproduce any particular on-disk file format; the guarantee it gives
// is that a clean restart replays whatever was spilled and an
// acknowledged-pending entry is never lost to a crash. XAdd appends a
// spill entry, XReadGroup replays, XClaim reclaims entries orphaned by a
// crashed consumer, XAck+XDel commit.
package diskqueue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rsyslog-go/daemon/internal/ports"
)

// Config configures the spill stream.
type Config struct {
	Addresses []string
	Username  string
	Password  string
	DB        int

	Stream string
	Group  string

	MaxRetries    int
	RetryInterval time.Duration
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
}

// Backend implements ports.QueueBackend against a Redis stream used as an
// append-only spill log.
type Backend struct {
	client   goredis.UniversalClient
	cfg      Config
	logger   ports.Logger
	consumer string
}

var _ ports.QueueBackend = (*Backend)(nil)

// New constructs a disk-assisted backend and ensures its consumer group
// exists (auto-creating the stream, tolerant of BUSYGROUP).
func New(cfg Config, logger ports.Logger, consumerName string) (*Backend, error) {
	c := goredis.NewUniversalClient(&goredis.UniversalOptions{
		Addrs:       cfg.Addresses,
		Username:    cfg.Username,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: cfg.ConnectTimeout,
		ReadTimeout: cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	b := &Backend{client: c, cfg: cfg, logger: logger, consumer: consumerName}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := b.ensureGroup(ctx); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *Backend) ensureGroup(ctx context.Context) error {
	err := b.client.XGroupCreateMkStream(ctx, b.cfg.Stream, b.cfg.Group, "0-0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return err
	}
	return nil
}

// Spill appends payload to the spill stream and returns its entry id.
func (b *Backend) Spill(ctx context.Context, payload []byte) (string, error) {
	var id string
	err := b.executeWithRetry(ctx, func(ctx context.Context) error {
		res, err := b.client.XAdd(ctx, &goredis.XAddArgs{
			Stream: b.cfg.Stream,
			Values: map[string]interface{}{"payload": payload},
		}).Result()
		if err != nil {
			return err
		}
		id = res
		return nil
	})
	return id, err
}

// Replay reads up to count not-yet-delivered entries for this consumer,
// used on restart to recover spilled messages the in-memory queue lost.
func (b *Backend) Replay(ctx context.Context, count int64, block time.Duration) ([]ports.SpillEntry, error) {
	var entries []ports.SpillEntry

	err := b.executeWithRetry(ctx, func(ctx context.Context) error {
		streams, err := b.client.XReadGroup(ctx, &goredis.XReadGroupArgs{
			Group:    b.cfg.Group,
			Consumer: b.consumer,
			Streams:  []string{b.cfg.Stream, ">"},
			Count:    count,
			Block:    block,
			NoAck:    false,
		}).Result()
		if err != nil {
			if errors.Is(err, goredis.Nil) {
				entries = nil
				return nil
			}
			if strings.Contains(err.Error(), "NOGROUP") {
				return b.ensureGroup(ctx)
			}
			return err
		}
		entries = convert(streams)
		return nil
	})
	return entries, err
}

// Commit acknowledges and trims entries once the in-memory queue has
// durably accepted them, the disk-assisted analogue of
// commitTransaction's final flush.
func (b *Backend) Commit(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	return b.executeWithRetry(ctx, func(ctx context.Context) error {
		pipe := b.client.Pipeline()
		ackCmd := pipe.XAck(ctx, b.cfg.Stream, b.cfg.Group, ids...)
		delCmd := pipe.XDel(ctx, b.cfg.Stream, ids...)
		if _, err := pipe.Exec(ctx); err != nil {
			if errors.Is(err, goredis.Nil) || strings.Contains(err.Error(), "NOGROUP") {
				return nil
			}
			return err
		}
		if aerr := ackCmd.Err(); aerr != nil && !errors.Is(aerr, goredis.Nil) && !strings.Contains(aerr.Error(), "NOGROUP") {
			return aerr
		}
		if derr := delCmd.Err(); derr != nil && !errors.Is(derr, goredis.Nil) {
			return derr
		}
		return nil
	})
}

// ReclaimOrphaned claims entries pending for at least minIdle under a
// different (crashed) consumer: post-crash recovery of orphaned spilled
// messages.
func (b *Backend) ReclaimOrphaned(ctx context.Context, minIdle time.Duration, count int64) ([]ports.SpillEntry, error) {
	var entries []ports.SpillEntry

	err := b.executeWithRetry(ctx, func(ctx context.Context) error {
		pending, err := b.client.XPendingExt(ctx, &goredis.XPendingExtArgs{
			Stream: b.cfg.Stream,
			Group:  b.cfg.Group,
			Idle:   minIdle,
			Start:  "-",
			End:    "+",
			Count:  count,
		}).Result()
		if err != nil {
			return err
		}
		if len(pending) == 0 {
			return nil
		}

		ids := make([]string, len(pending))
		for i, p := range pending {
			ids[i] = p.ID
		}

		xmsgs, err := b.client.XClaim(ctx, &goredis.XClaimArgs{
			Stream:   b.cfg.Stream,
			Group:    b.cfg.Group,
			Consumer: b.consumer,
			MinIdle:  minIdle,
			Messages: ids,
		}).Result()
		if err != nil {
			return err
		}
		entries = convert([]goredis.XStream{{Stream: b.cfg.Stream, Messages: xmsgs}})
		return nil
	})
	return entries, err
}

// Close releases the underlying Redis connection pool.
func (b *Backend) Close() error {
	if b.client != nil {
		return b.client.Close()
	}
	return nil
}

func convert(streams []goredis.XStream) []ports.SpillEntry {
	entries := make([]ports.SpillEntry, 0, 128)
	for _, s := range streams {
		for _, xmsg := range s.Messages {
			payload := extractPayload(xmsg.Values)
			entries = append(entries, ports.SpillEntry{ID: xmsg.ID, Payload: payload})
		}
	}
	return entries
}

func extractPayload(values map[string]interface{}) []byte {
	raw, ok := values["payload"]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case []byte:
		return v
	case string:
		return []byte(v)
	default:
		return []byte(fmt.Sprintf("%v", v))
	}
}

func (b *Backend) executeWithRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	var attempt int
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if errors.Is(err, goredis.Nil) {
			return nil
		}
		if !isTransient(err) || attempt >= b.cfg.MaxRetries {
			return err
		}
		attempt++
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(b.cfg.RetryInterval):
		}
	}
}

func isTransient(err error) bool {
	if err == nil {
		return false
	}
	es := err.Error()
	return strings.Contains(es, "LOADING") ||
		strings.Contains(es, "connect: connection refused") ||
		strings.Contains(es, "i/o timeout") ||
		strings.Contains(es, "EOF") ||
		strings.Contains(es, "read: connection reset")
}
