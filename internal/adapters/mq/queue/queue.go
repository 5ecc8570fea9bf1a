// Package queue defines the contract for enqueuing and consuming assignment
// requests.
//
// One bounded in-memory queue backs each judge shard so that requests for
// the same judge are handled by exactly one consumer, in arrival order.
package queue

import (
	"context"
	"sync"
	"time"

	"github.com/okian/gavel/internal/domain/assignment"
	"github.com/okian/gavel/pkg/metrics"
)

// Default queue configuration constants.
const (
	defaultQueueCapacity = 1024
	defaultBufferSize    = 1024
)

// Kind selects which engine operation a request runs.
type Kind int

// Request kinds.
const (
	KindCreate Kind = iota + 1 // always create a new assignment
	KindNext                   // return the pending one or create one
)

// Result is the reply to a Request.
type Result struct {
	Outcome assignment.Outcome
	Err     error
}

// Request is one assignment request waiting for its judge's worker.
type Request struct {
	// Ctx is the caller's context; the worker skips requests whose caller
	// has already gone away.
	Ctx      context.Context //nolint:containedctx // request-scoped, crosses the queue
	JudgeID  int64
	Kind     Kind
	Enqueued time.Time
	// Reply must have room for one Result.
	Reply chan Result
}

// NewRequest builds a request with a buffered reply channel.
func NewRequest(ctx context.Context, judgeID int64, kind Kind) Request {
	return Request{
		Ctx:      ctx,
		JudgeID:  judgeID,
		Kind:     kind,
		Enqueued: time.Now(),
		Reply:    make(chan Result, 1),
	}
}

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds a request to the queue.
	// Returns false if the queue is full or closed and nothing was enqueued.
	Enqueue(ctx context.Context, r Request) bool

	// Dequeue returns a channel that will receive requests as they become available.
	// The channel will be closed when the queue is closed and drained.
	Dequeue(ctx context.Context) <-chan Request

	// Len returns the current number of queued requests.
	Len(ctx context.Context) int

	// Close gracefully shuts down the queue.
	// After closing, no new requests can be enqueued.
	Close() error

	// IsClosed returns true if the queue has been closed.
	IsClosed() bool
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	requests   chan Request
	capacity   int
	bufferSize int
	shard      int
	mu         sync.RWMutex
	closed     bool
}

// NewInMemoryQueue creates a new in-memory queue with configuration options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{
		capacity:   defaultQueueCapacity,
		bufferSize: defaultBufferSize,
	}

	// Apply all options
	for _, opt := range opts {
		opt(q)
	}

	if q.bufferSize < q.capacity {
		q.bufferSize = q.capacity
	}
	q.requests = make(chan Request, q.bufferSize)

	// Initialize metrics
	metrics.UpdateQueueCapacity(q.capacity)
	metrics.UpdateQueueSize(q.shard, 0)

	return q
}

// Enqueue adds a request to the queue.
func (q *InMemoryQueue) Enqueue(ctx context.Context, r Request) bool { //nolint:gocritic // hugeParam: Request is passed by value for channel semantics
	start := time.Now()
	defer func() {
		metrics.RecordQueueProcessingLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "closed")
		return false
	}

	if len(q.requests) >= q.capacity {
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "capacity_exceeded")
		return false
	}

	select {
	case q.requests <- r:
		metrics.RecordQueueEnqueue()
		metrics.UpdateQueueSize(q.shard, len(q.requests))
		return true
	case <-ctx.Done():
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "context_cancelled")
		return false
	default:
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "queue_full")
		return false
	}
}

// Dequeue returns a channel that will receive requests as they become available.
func (q *InMemoryQueue) Dequeue(ctx context.Context) <-chan Request {
	out := make(chan Request)
	go func() {
		defer close(out)
		for r := range q.requests {
			select {
			case out <- r:
				metrics.RecordQueueDequeue()
				metrics.UpdateQueueSize(q.shard, len(q.requests))
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Len returns the current number of queued requests.
func (q *InMemoryQueue) Len(_ context.Context) int {
	size := len(q.requests)
	metrics.UpdateQueueSize(q.shard, size)
	return size
}

// Close gracefully shuts down the queue. Queued requests are still delivered.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}

	close(q.requests)
	q.closed = true

	return nil
}

// IsClosed returns true if the queue has been closed.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
