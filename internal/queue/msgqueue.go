// Package queue implements the bounded MPMC main/ruleset queue: a
// worker pool draining a lock-free ring buffer, with flow-control
// classes, discard-mark/discard-severity, batching, and shutdown
// draining.
package queue

import (
	"github.com/rsyslog-go/daemon/internal/message"
	"github.com/rsyslog-go/daemon/pkg/ringbuffer"
)

// ConsumerFunc processes one dequeued message. It is invoked by a worker
// goroutine with panic recovery wrapped around it.
type ConsumerFunc func(*message.Message)

// msgQueue is a lock-free multi-producer multi-consumer queue of message
// pointers, a thin wrapper over pkg/ringbuffer.RingBuffer focused on this
// package's needs.
type msgQueue struct {
	rb *ringbuffer.RingBuffer[message.Message]
}

func newMsgQueue(capacity uint32) *msgQueue {
	return &msgQueue{rb: ringbuffer.New[message.Message](capacity)}
}

func (q *msgQueue) Put(m *message.Message) bool {
	return q.rb.Put(m)
}

func (q *msgQueue) TryGetBatch(batch []*message.Message) int {
	return q.rb.TryGetBatch(batch)
}

func (q *msgQueue) Size() int {
	return q.rb.Size()
}

func (q *msgQueue) Capacity() int {
	return q.rb.Capacity()
}

func (q *msgQueue) DrainTo(fn func(*message.Message)) int {
	return q.rb.DrainTo(fn)
}

func (q *msgQueue) DropOldest(n int, onDrop func(*message.Message)) int {
	return q.rb.DropOldest(n, onDrop)
}

func (q *msgQueue) EnsureCapacityOrDropOldest(need int, onDrop func(*message.Message)) int {
	return q.rb.EnsureCapacityOrDropOldest(need, onDrop)
}
