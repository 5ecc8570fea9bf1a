package idempotency

// Option applies a configuration option to the in-memory cache.
type Option func(*inMemoryCache)

// WithMaxSize sets the maximum number of keys to remember.
// If maxSize > 0: bounded, the oldest key is evicted first.
// If maxSize <= 0: unbounded.
func WithMaxSize(maxSize int) Option {
	return func(c *inMemoryCache) {
		c.maxSize = maxSize
	}
}
