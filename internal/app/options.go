package service

import (
	"github.com/okian/gavel/internal/adapters/repository"
	"github.com/okian/gavel/internal/domain/scoring"
	"github.com/okian/gavel/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithStore uses an already opened store instead of opening one from the
// configuration. The service still closes it on Stop.
func WithStore(store repository.Store, driver string) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
			s.driver = driver
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(logger logger.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithScoringOptions appends options to the scoring engine built from the
// configuration, e.g. a deterministic random source in tests.
func WithScoringOptions(opts ...scoring.Option) Option {
	return func(s *Service) {
		s.scoringOpts = append(s.scoringOpts, opts...)
	}
}
