// Package service wires the store, the assignment engine, the judge
// shard pool and the idempotency cache behind the operations the HTTP API
// needs.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	workerpool "github.com/okian/gavel/internal/adapters/mq/worker"
	"github.com/okian/gavel/internal/adapters/repository"
	"github.com/okian/gavel/internal/adapters/repository/sqlite"
	"github.com/okian/gavel/internal/config"
	"github.com/okian/gavel/internal/domain/assignment"
	"github.com/okian/gavel/internal/domain/idempotency"
	"github.com/okian/gavel/internal/domain/scoring"
	"github.com/okian/gavel/internal/domain/types"
	"github.com/okian/gavel/pkg/logger"
	"github.com/okian/gavel/pkg/metrics"
)

// Service implements the API dependencies for the assignment system.
type Service struct {
	mu sync.RWMutex

	cfg *config.Config

	// Core components
	store       repository.Store
	driver      string
	engine      *assignment.Engine
	pool        *workerpool.Pool
	idem        idempotency.Cache
	scoringOpts []scoring.Option

	// State
	started   bool
	startedAt time.Time
	cancel    context.CancelFunc
	stopped   chan struct{}

	logger logger.Logger
}

// New constructs a Service for cfg. Nothing is opened until Start.
func New(cfg *config.Config, opts ...Option) *Service {
	s := &Service{cfg: cfg}

	// Apply all options
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start opens the store and starts the shard workers and the stats
// updater.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}

	s.logger.Info(ctx, "starting assignment service...")

	if s.store == nil {
		store, err := openStore(s.cfg)
		if err != nil {
			return err
		}
		s.store = store
		s.driver = s.cfg.StoreDriver
	}
	s.logger.Info(ctx, "store ready", logger.String("driver", s.driver))

	scoringOpts := append([]scoring.Option{
		scoring.WithSeed(s.cfg.RandomSeed),
		scoring.WithLocalityBonuses(s.cfg.LocalityBonuses),
		scoring.WithTieBreakScale(s.cfg.TieBreakScale),
		scoring.WithCoverage(s.cfg.CoverageThreshold, s.cfg.CoverageBonus),
		scoring.WithDistanceMode(s.cfg.Mode()),
		scoring.WithTopN(s.cfg.LogTopCandidates),
	}, s.scoringOpts...)

	s.engine = assignment.NewEngine(s.store,
		assignment.WithSelector(scoring.NewEngine(scoringOpts...)),
		assignment.WithStoreLabel(s.driver),
		assignment.WithCandidateLogging(s.cfg.LogTopCandidates > 0),
	)

	if s.cfg.IdempotencySize > 0 {
		s.idem = idempotency.NewInMemoryCache(idempotency.WithMaxSize(s.cfg.IdempotencySize))
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.stopped = make(chan struct{})

	s.pool = workerpool.NewPool(s.engine,
		workerpool.WithShards(s.cfg.ShardCount),
		workerpool.WithQueueSize(s.cfg.ShardQueueSize),
	)
	s.pool.Start(runCtx)

	go s.runStatsUpdater(runCtx)

	s.started = true
	s.startedAt = time.Now()
	s.logger.Info(ctx, "assignment service started",
		logger.Int("shards", s.cfg.ShardCount),
		logger.Int("shardQueueSize", s.cfg.ShardQueueSize),
		logger.Int("idempotencySize", s.cfg.IdempotencySize),
		logger.String("distanceMode", s.cfg.Mode().String()),
	)

	return nil
}

func openStore(cfg *config.Config) (repository.Store, error) {
	switch cfg.StoreDriver {
	case config.StoreMemory:
		return repository.NewMemoryStore(), nil
	case config.StoreSQLite:
		store, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.StoreDriver)
	}
}

// Stop drains the shard queues and closes the store. Requests already
// queued are answered until ctx is done. A stopped Service is not
// restarted.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}

	s.logger.Info(ctx, "stopping assignment service...")

	var errs []error
	if err := s.pool.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	s.cancel()
	<-s.stopped

	if err := s.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close store: %w", err))
	}

	s.started = false
	s.logger.Info(ctx, "assignment service stopped")
	return errors.Join(errs...)
}

// running returns the live components or ErrNotStarted.
func (s *Service) running() (*workerpool.Pool, repository.Store, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil, nil, ErrNotStarted
	}
	return s.pool, s.store, nil
}

// CreateAssignment queues a new assignment for the judge. A non-empty key
// makes the request idempotent.
func (s *Service) CreateAssignment(ctx context.Context, judgeID int64, key string) (types.AssignResponse, error) {
	pool, _, err := s.running()
	if err != nil {
		return types.AssignResponse{}, err
	}
	return s.assign(ctx, judgeID, "create", key, pool.Create)
}

// NextAssignment returns the judge's pending assignment or queues a new
// one. A non-empty key makes the request idempotent.
func (s *Service) NextAssignment(ctx context.Context, judgeID int64, key string) (types.AssignResponse, error) {
	pool, _, err := s.running()
	if err != nil {
		return types.AssignResponse{}, err
	}
	return s.assign(ctx, judgeID, "next", key, pool.Next)
}

func (s *Service) assign(ctx context.Context, judgeID int64, op, key string,
	submit func(context.Context, int64) (assignment.Outcome, error),
) (types.AssignResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout())
	defer cancel()

	run := func(ctx context.Context) (assignment.Outcome, error) {
		return submit(ctx, judgeID)
	}

	if s.idem == nil || key == "" {
		out, err := run(ctx)
		if err != nil {
			return types.AssignResponse{}, err
		}
		return types.FromOutcome(judgeID, out, false), nil
	}

	scoped := fmt.Sprintf("%d/%s/%s", judgeID, op, key)
	out, replayed, err := s.idem.Do(ctx, scoped, run)
	if err != nil {
		return types.AssignResponse{}, err
	}
	if replayed {
		s.logger.Debug(ctx, "idempotent replay",
			logger.Int64("judge_id", judgeID),
			logger.String("key", key))
	}
	return types.FromOutcome(judgeID, out, replayed), nil
}

// JudgeAssignments lists the judge's assignments in priority order.
func (s *Service) JudgeAssignments(ctx context.Context, judgeID int64) ([]types.Assignment, error) {
	_, store, err := s.running()
	if err != nil {
		return nil, err
	}
	ds, err := store.JudgeAssignments(ctx, judgeID)
	if err != nil {
		return nil, err
	}
	return types.FromDetails(ds), nil
}

// CompleteRating records a rating or no-show for an assignment.
func (s *Service) CompleteRating(ctx context.Context, assignmentID int64, r types.Rating) (types.Assignment, error) {
	_, store, err := s.running()
	if err != nil {
		return types.Assignment{}, err
	}
	d, err := store.CompleteRating(ctx, assignmentID, r.Outcome())
	if err != nil {
		return types.Assignment{}, err
	}
	s.logger.Info(ctx, "rating completed",
		logger.Int64("assignment_id", assignmentID),
		logger.Int64("judge_id", d.JudgeID),
		logger.Int64("submission_id", d.Rating.SubmissionID),
		logger.Bool("no_show", d.Rating.NoShow))
	return types.FromDetail(d), nil
}

// PutSubmission creates or replaces a submission.
func (s *Service) PutSubmission(ctx context.Context, id int64, body types.Submission) error {
	_, store, err := s.running()
	if err != nil {
		return err
	}
	return store.PutSubmission(ctx, body.Model(id))
}

// PutJudge creates or replaces a judge.
func (s *Service) PutJudge(ctx context.Context, id int64, body types.Judge) error {
	_, store, err := s.running()
	if err != nil {
		return err
	}
	return store.PutJudge(ctx, body.Model(id))
}

// Coverage reports completed and pending ratings per submission.
func (s *Service) Coverage(ctx context.Context) ([]types.Coverage, error) {
	_, store, err := s.running()
	if err != nil {
		return nil, err
	}
	rows, err := store.Coverage(ctx)
	if err != nil {
		return nil, err
	}
	return types.FromCoverage(rows, s.cfg.CoverageThreshold), nil
}

// Stats returns service statistics for monitoring.
func (s *Service) Stats(ctx context.Context) (types.Stats, error) {
	pool, store, err := s.running()
	if err != nil {
		return types.Stats{}, err
	}
	st, err := store.Stats(ctx)
	if err != nil {
		return types.Stats{}, err
	}
	cov, err := s.Coverage(ctx)
	if err != nil {
		return types.Stats{}, err
	}

	out := types.Stats{
		StoreDriver:        s.driver,
		Submissions:        st.Submissions,
		ActiveSubmissions:  st.ActiveSubmissions,
		Judges:             st.Judges,
		Assignments:        st.Assignments,
		PendingAssignments: st.PendingAssignments,
		UnderRated:         underRated(cov),
		Shards:             pool.Shards(),
		Processed:          pool.Processed(),
	}
	if s.idem != nil {
		out.IdempotencyKeys = s.idem.Size()
	}
	s.mu.RLock()
	out.UptimeSeconds = time.Since(s.startedAt).Seconds()
	s.mu.RUnlock()
	return out, nil
}

func underRated(rows []types.Coverage) int {
	n := 0
	for _, r := range rows {
		if r.Active && r.UnderRated {
			n++
		}
	}
	return n
}

// runStatsUpdater refreshes store and process gauges until ctx is done.
func (s *Service) runStatsUpdater(ctx context.Context) {
	defer close(s.stopped)

	ticker := time.NewTicker(s.cfg.StatsInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.refreshMetrics(ctx)
		}
	}
}

func (s *Service) refreshMetrics(ctx context.Context) {
	st, err := s.store.Stats(ctx)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Warn(ctx, "stats refresh failed", logger.Error(err))
		}
		return
	}
	metrics.UpdateActiveSubmissions(st.ActiveSubmissions)
	metrics.UpdatePendingAssignments(st.PendingAssignments)

	if rows, err := s.store.Coverage(ctx); err == nil {
		metrics.UpdateUnderRatedSubmissions(underRated(types.FromCoverage(rows, s.cfg.CoverageThreshold)))
	}

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())
	if m.NumGC > 0 {
		metrics.RecordSystemGCPauseTime(float64(m.PauseNs[(m.NumGC+255)%256]) / 1e6)
	}
}
