// Package idempotency remembers the outcome of assignment requests by
// client-supplied key, so a retried request gets the first answer instead
// of a second assignment.
package idempotency

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/okian/gavel/internal/domain/assignment"
	"github.com/okian/gavel/pkg/metrics"
)

const defaultMaxSize = 10000

// Func produces the outcome for a key seen for the first time.
type Func func(ctx context.Context) (assignment.Outcome, error)

// Cache runs Func at most once per key.
type Cache interface {
	// Do returns the remembered outcome for key, or runs fn and remembers
	// its outcome. replayed reports whether the result came from an
	// earlier call. Failed calls are forgotten so the key can be retried.
	Do(ctx context.Context, key string, fn Func) (out assignment.Outcome, replayed bool, err error)

	// Forget drops key.
	Forget(ctx context.Context, key string)

	Size() int64
}

// entry is one key. done is closed once out and err are set.
type entry struct {
	key  string
	done chan struct{}
	out  assignment.Outcome
	err  error
}

// node links entries oldest first.
type node struct {
	e    *entry
	next *node
}

func (n *node) reset() {
	n.e = nil
	n.next = nil
}

// inMemoryCache keeps entries in a map plus a linked list ordered by
// insertion. When full the oldest entry is evicted. maxSize <= 0 means
// unbounded.
type inMemoryCache struct {
	mu       sync.Mutex
	entries  map[string]*entry
	nodes    map[string]*node
	head     *node // oldest
	tail     *node // newest
	maxSize  int
	size     atomic.Int64
	nodePool sync.Pool
}

// NewInMemoryCache creates a new in-memory idempotency cache.
func NewInMemoryCache(opts ...Option) Cache {
	c := &inMemoryCache{
		maxSize: defaultMaxSize,
	}

	// Apply all options
	for _, opt := range opts {
		opt(c)
	}

	c.entries = make(map[string]*entry)
	c.nodes = make(map[string]*node)
	c.nodePool = sync.Pool{
		New: func() interface{} {
			return &node{}
		},
	}

	return c
}

// Do implements Cache.
func (c *inMemoryCache) Do(ctx context.Context, key string, fn Func) (assignment.Outcome, bool, error) {
	if key == "" {
		out, err := fn(ctx)
		return out, false, err
	}

	c.mu.Lock()
	if e, ok := c.entries[key]; ok {
		c.mu.Unlock()
		select {
		case <-e.done:
		case <-ctx.Done():
			return assignment.Outcome{}, false, ctx.Err()
		}
		if e.err == nil {
			metrics.RecordIdempotentReplay()
		}
		return e.out, true, e.err
	}

	e := &entry{key: key, done: make(chan struct{})}
	c.insertLocked(e)
	c.mu.Unlock()

	e.out, e.err = fn(ctx)
	close(e.done)

	if e.err != nil {
		c.removeIf(e)
	}
	return e.out, false, e.err
}

// Forget implements Cache.
func (c *inMemoryCache) Forget(_ context.Context, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		c.removeLocked(e)
	}
}

// Size implements Cache.
func (c *inMemoryCache) Size() int64 {
	return c.size.Load()
}

func (c *inMemoryCache) insertLocked(e *entry) {
	if c.maxSize > 0 && len(c.entries) >= c.maxSize {
		c.evictOldestLocked()
	}

	n := c.nodePool.Get().(*node) //nolint:forcetypeassert // pool only holds *node
	n.e = e
	if c.tail == nil {
		c.head = n
	} else {
		c.tail.next = n
	}
	c.tail = n

	c.entries[e.key] = e
	c.nodes[e.key] = n
	c.size.Add(1)
}

// removeIf drops e unless its key was already evicted or replaced.
func (c *inMemoryCache) removeIf(e *entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.entries[e.key]; ok && cur == e {
		c.removeLocked(e)
	}
}

func (c *inMemoryCache) removeLocked(e *entry) {
	target := c.nodes[e.key]
	delete(c.entries, e.key)
	delete(c.nodes, e.key)

	var prev *node
	for cur := c.head; cur != nil; prev, cur = cur, cur.next {
		if cur != target {
			continue
		}
		if prev == nil {
			c.head = cur.next
		} else {
			prev.next = cur.next
		}
		if c.tail == cur {
			c.tail = prev
		}
		cur.reset()
		c.nodePool.Put(cur)
		break
	}
	c.size.Add(-1)
}

func (c *inMemoryCache) evictOldestLocked() {
	if c.head == nil {
		return
	}
	c.removeLocked(c.head.e)
}
