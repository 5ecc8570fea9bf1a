package judgesim

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/okian/gavel/internal/domain/types"
	"github.com/okian/gavel/pkg/logger"
	"golang.org/x/sync/errgroup"
)

// counters are updated from many judge goroutines.
type counters struct {
	requests     atomic.Int64
	replays      atomic.Int64
	created      atomic.Int64
	completed    atomic.Int64
	noShows      atomic.Int64
	exhausted    atomic.Int64
	backpressure atomic.Int64
	failed       atomic.Int64
}

type sim struct {
	cfg    *Config
	client *Client
	log    logger.Logger
	c      counters
}

// Run seeds a venue, walks every judge through next/rate loops with
// duplicated requests, and verifies the resulting assignments.
func Run(ctx context.Context, cfg *Config) (*Stats, error) {
	applyDefaults(cfg)
	stats := &Stats{StartTime: time.Now()}

	s := &sim{
		cfg:    cfg,
		client: NewClient(cfg.BaseURL, cfg.Timeout),
		log:    logger.Get().Named("judgesim"),
	}

	s.log.Info(ctx, "starting judge simulation",
		logger.String("baseURL", cfg.BaseURL),
		logger.Int("submissions", cfg.Submissions),
		logger.Int("judges", cfg.Judges),
		logger.Int("rounds", cfg.Rounds),
		logger.Int("duplicates", cfg.Duplicates),
		logger.Int("concurrency", cfg.Concurrency))

	if err := s.client.Health(ctx); err != nil {
		return stats, fmt.Errorf("service health check failed: %w", err)
	}
	if err := s.seed(ctx); err != nil {
		return stats, fmt.Errorf("seeding failed: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Concurrency)
	for i := 1; i <= cfg.Judges; i++ {
		judgeID := cfg.IDOffset + int64(i)
		g.Go(func() error {
			return s.walk(gctx, judgeID)
		})
	}
	walkErr := g.Wait()

	s.fill(stats)
	if walkErr != nil {
		return stats, fmt.Errorf("judge walk failed: %w", walkErr)
	}

	if err := s.verify(ctx, stats); err != nil {
		return stats, fmt.Errorf("verification failed: %w", err)
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	s.displayFinalStats(ctx, stats)
	return stats, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.Locations <= 0 {
		cfg.Locations = defaultLocations
	}
	if cfg.Duplicates < 0 {
		cfg.Duplicates = 0
	}
}

// seed stores the venue. Locations and anchors come from cfg.Seed.
func (s *sim) seed(ctx context.Context) error {
	rng := rand.New(rand.NewSource(s.cfg.Seed)) //nolint:gosec // simulation data

	for i := 1; i <= s.cfg.Submissions; i++ {
		id := s.cfg.IDOffset + int64(i)
		sub := types.Submission{
			Name:     fmt.Sprintf("hack-%d", id),
			TrackID:  int64(i%3 + 1),
			Location: rng.Intn(s.cfg.Locations),
		}
		if err := s.client.PutSubmission(ctx, id, sub); err != nil {
			return fmt.Errorf("submission %d: %w", id, err)
		}
	}

	for i := 1; i <= s.cfg.Judges; i++ {
		id := s.cfg.IDOffset + int64(i)
		j := types.Judge{Name: fmt.Sprintf("judge-%d", id)}
		if i%2 == 0 {
			anchor := rng.Intn(s.cfg.Locations)
			j.Anchor = &anchor
		}
		if err := s.client.PutJudge(ctx, id, j); err != nil {
			return fmt.Errorf("judge %d: %w", id, err)
		}
	}

	s.log.Info(ctx, "venue seeded",
		logger.Int("submissions", s.cfg.Submissions),
		logger.Int("judges", s.cfg.Judges))
	return nil
}

// walk runs one judge until it runs out of rounds or submissions.
func (s *sim) walk(ctx context.Context, judgeID int64) error {
	rng := rand.New(rand.NewSource(s.cfg.Seed + judgeID)) //nolint:gosec // simulation data

	for round := 0; s.cfg.Rounds == 0 || round < s.cfg.Rounds; round++ {
		out, err := s.next(ctx, judgeID)
		if errors.Is(err, ErrNoEligible) {
			s.c.exhausted.Add(1)
			return nil
		}
		if err != nil {
			s.c.failed.Add(1)
			return fmt.Errorf("judge %d round %d: %w", judgeID, round+1, err)
		}
		if !out.Created {
			return fmt.Errorf("judge %d round %d: got pending assignment %d after rating everything",
				judgeID, round+1, out.AssignmentID)
		}
		s.c.created.Add(1)

		var r types.Rating
		if rng.Float64() < s.cfg.NoShowRate {
			r.NoShow = true
		} else {
			v := minRating + rng.Intn(maxRating-minRating+1)
			r.Rating = &v
		}
		if _, err := s.client.Rate(ctx, out.AssignmentID, r); err != nil {
			s.c.failed.Add(1)
			return fmt.Errorf("judge %d rate assignment %d: %w", judgeID, out.AssignmentID, err)
		}
		s.c.completed.Add(1)
		if r.NoShow {
			s.c.noShows.Add(1)
		}

		if s.cfg.Verbose {
			s.log.Info(ctx, "assignment rated",
				logger.Int64("judge_id", judgeID),
				logger.Int64("assignment_id", out.AssignmentID),
				logger.Int64("submission_id", out.SubmissionID),
				logger.Int("priority", out.Priority))
		}
	}
	return nil
}

// next asks for the judge's next assignment, retrying the whole burst on
// backpressure with the same idempotency key.
func (s *sim) next(ctx context.Context, judgeID int64) (types.AssignResponse, error) {
	key := uuid.NewString()
	for attempt := 0; ; attempt++ {
		out, err := s.burst(ctx, judgeID, key)
		if errors.Is(err, ErrBackpressure) && attempt < backpressureRetries {
			s.c.backpressure.Add(1)
			select {
			case <-time.After(backpressureDelay):
				continue
			case <-ctx.Done():
				return types.AssignResponse{}, ctx.Err()
			}
		}
		return out, err
	}
}

// burst sends 1+Duplicates identical requests at once. They must all
// describe the same assignment.
func (s *sim) burst(ctx context.Context, judgeID int64, key string) (types.AssignResponse, error) {
	n := s.cfg.Duplicates + 1
	results := make([]types.AssignResponse, n)

	g, gctx := errgroup.WithContext(ctx)
	for i := range n {
		g.Go(func() error {
			s.c.requests.Add(1)
			out, err := s.client.Next(gctx, judgeID, key)
			if err != nil {
				return err
			}
			results[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return types.AssignResponse{}, err
	}

	first := results[0]
	for _, r := range results {
		if r.AssignmentID != first.AssignmentID || r.SubmissionID != first.SubmissionID {
			return types.AssignResponse{}, fmt.Errorf("duplicate requests for judge %d got assignments %d and %d",
				judgeID, first.AssignmentID, r.AssignmentID)
		}
		if r.Replayed {
			s.c.replays.Add(1)
		}
	}
	return first, nil
}

func (s *sim) fill(stats *Stats) {
	stats.Requests = s.c.requests.Load()
	stats.Replays = s.c.replays.Load()
	stats.Created = s.c.created.Load()
	stats.Completed = s.c.completed.Load()
	stats.NoShows = s.c.noShows.Load()
	stats.Exhausted = s.c.exhausted.Load()
	stats.Backpressure = s.c.backpressure.Load()
	stats.Failed = s.c.failed.Load()
}

// displayFinalStats logs the final run statistics.
func (s *sim) displayFinalStats(ctx context.Context, stats *Stats) {
	var perSecond float64
	if stats.Duration > 0 {
		perSecond = float64(stats.Requests) / stats.Duration.Seconds()
	}

	s.log.Info(ctx, "final statistics",
		logger.Int64("requests", stats.Requests),
		logger.Int64("replays", stats.Replays),
		logger.Int64("created", stats.Created),
		logger.Int64("completed", stats.Completed),
		logger.Int64("noShows", stats.NoShows),
		logger.Int64("exhausted", stats.Exhausted),
		logger.Int64("backpressure", stats.Backpressure),
		logger.Int64("failed", stats.Failed),
		logger.Int("minCoverage", stats.MinCoverage),
		logger.Int("maxCoverage", stats.MaxCoverage),
		logger.Duration("duration", stats.Duration),
		logger.Float64("requestsPerSecond", perSecond))
}
