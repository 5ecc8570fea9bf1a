package queue

import "errors"

// Sentinel kinds for dispatch errors.
var (
	ErrBackpressure = errors.New("shard queue full")
	ErrStopped      = errors.New("dispatcher stopped")
)
