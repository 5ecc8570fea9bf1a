package assignment

import (
	"github.com/okian/gavel/pkg/logger"
)

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithSelector sets the scoring engine used to pick a candidate.
func WithSelector(s Selector) Option {
	return func(e *Engine) {
		if s != nil {
			e.selector = s
		}
	}
}

// WithLogger sets a custom logger for the engine.
func WithLogger(l logger.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithStoreLabel names the store driver in transaction latency metrics.
func WithStoreLabel(label string) Option {
	return func(e *Engine) {
		if label != "" {
			e.storeLabel = label
		}
	}
}

// WithCandidateLogging toggles the per-decision debug log of top candidates.
func WithCandidateLogging(enabled bool) Option {
	return func(e *Engine) {
		e.logCandidates = enabled
	}
}
