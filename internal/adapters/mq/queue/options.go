package queue

// Option applies a configuration option to the InMemoryQueue.
type Option func(*InMemoryQueue)

// WithCapacity sets the maximum capacity of the queue.
func WithCapacity(capacity int) Option {
	return func(q *InMemoryQueue) {
		if capacity > 0 {
			q.capacity = capacity
		}
	}
}

// WithBufferSize sets the buffer size for the requests channel. It is
// raised to the capacity when smaller.
func WithBufferSize(size int) Option {
	return func(q *InMemoryQueue) {
		if size > 0 {
			q.bufferSize = size
		}
	}
}

// WithShard labels the queue's metrics with a shard index.
func WithShard(shard int) Option {
	return func(q *InMemoryQueue) {
		if shard >= 0 {
			q.shard = shard
		}
	}
}
