// Package worker drains the judge shard queues.
//
// Each shard queue has exactly one worker, and a judge always hashes to
// the same shard, so assignment requests for one judge never run
// concurrently inside this process.
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/okian/gavel/internal/adapters/mq/queue"
	"github.com/okian/gavel/internal/domain/assignment"
	"github.com/okian/gavel/pkg/logger"
	"github.com/okian/gavel/pkg/metrics"
)

// Default pool configuration constants.
const (
	defaultQueueSize      = 1024
	metricsUpdateInterval = 5 * time.Second
)

// Assigner runs assignment decisions. *assignment.Engine satisfies it.
type Assigner interface {
	Assign(ctx context.Context, judgeID int64) (assignment.Outcome, error)
	NextAssignment(ctx context.Context, judgeID int64) (assignment.Outcome, error)
}

// Source is what a worker reads requests from.
type Source interface {
	Dequeue(ctx context.Context) <-chan queue.Request
}

// InMemoryWorker handles the requests of one shard in arrival order.
type InMemoryWorker struct {
	source   Source
	assigner Assigner
	name     string

	processed *atomic.Int64

	done   chan struct{}
	logger logger.Logger
}

// NewInMemoryWorker creates a worker for one shard.
func NewInMemoryWorker(source Source, assigner Assigner, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		source:    source,
		assigner:  assigner,
		name:      "worker",
		processed: &atomic.Int64{},
		done:      make(chan struct{}),
		logger:    logger.Get().Named("worker"),
	}

	// Apply all options
	for _, opt := range opts {
		opt(w)
	}

	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}

	return w
}

// Run handles requests until the source is closed and drained or ctx is
// canceled.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	requests := w.source.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case r, ok := <-requests:
			if !ok {
				return
			}
			w.handle(r)
		}
	}
}

// Done is closed once Run has returned.
func (w *InMemoryWorker) Done() <-chan struct{} {
	return w.done
}

// Processed reports how many requests the worker has answered.
func (w *InMemoryWorker) Processed() int64 {
	return w.processed.Load()
}

func (w *InMemoryWorker) handle(r queue.Request) { //nolint:gocritic // hugeParam: Request is passed by value for channel semantics
	start := time.Now()
	defer func() {
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Microseconds()) / 1000)
		w.processed.Add(1)
	}()

	ctx := r.Ctx
	if ctx == nil {
		ctx = context.Background()
	}

	// The caller gave up while the request was queued.
	if err := ctx.Err(); err != nil {
		w.logger.Debug(ctx, "skipping abandoned request",
			logger.Int64("judge_id", r.JudgeID),
			logger.Duration("queued", time.Since(r.Enqueued)))
		r.Reply <- queue.Result{Err: err}
		return
	}

	var (
		out assignment.Outcome
		err error
	)
	switch r.Kind {
	case queue.KindCreate:
		out, err = w.assigner.Assign(ctx, r.JudgeID)
	case queue.KindNext:
		out, err = w.assigner.NextAssignment(ctx, r.JudgeID)
	default:
		err = fmt.Errorf("unknown request kind %d", r.Kind)
	}

	if err != nil && !errors.Is(err, assignment.ErrNoEligibleSubmission) {
		metrics.RecordWorkerError()
		metrics.RecordErrorByComponent("worker", assignment.Kind(err))
	}

	r.Reply <- queue.Result{Outcome: out, Err: err}
}

// Pool owns the shard queues and their workers.
type Pool struct {
	shards   []*queue.InMemoryQueue
	workers  []*InMemoryWorker
	assigner Assigner

	shardCount int
	queueSize  int

	cancel context.CancelFunc

	lastProcessed     int64
	lastProcessedTime time.Time

	logger logger.Logger
}

// NewPool creates a pool with one bounded queue and one worker per shard.
func NewPool(assigner Assigner, opts ...PoolOption) *Pool {
	p := &Pool{
		assigner:          assigner,
		shardCount:        runtime.NumCPU(),
		queueSize:         defaultQueueSize,
		lastProcessedTime: time.Now(),
		logger:            logger.Get().Named("worker-pool"),
	}

	// Apply all options
	for _, opt := range opts {
		opt(p)
	}

	p.shards = make([]*queue.InMemoryQueue, p.shardCount)
	p.workers = make([]*InMemoryWorker, p.shardCount)
	for i := range p.shardCount {
		p.shards[i] = queue.NewInMemoryQueue(
			queue.WithCapacity(p.queueSize),
			queue.WithShard(i),
		)
		p.workers[i] = NewInMemoryWorker(p.shards[i], assigner,
			WithName("shard-"+strconv.Itoa(i)))
	}

	metrics.UpdateWorkerActiveCount(p.shardCount)
	metrics.UpdateWorkerMessagesPerSecond(0)

	return p
}

// Shards returns the number of shards.
func (p *Pool) Shards() int {
	return p.shardCount
}

// ShardFor maps a judge to its shard.
func (p *Pool) ShardFor(judgeID int64) int {
	s := judgeID % int64(p.shardCount)
	if s < 0 {
		s = -s
	}
	return int(s)
}

// Start launches every worker and the metrics updater. Workers stop when
// ctx is canceled or after Shutdown drains their queues.
func (p *Pool) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	for _, w := range p.workers {
		go w.Run(ctx)
	}
	go p.startMetricsUpdater(ctx)
}

// Submit queues a request on the judge's shard and waits for its result.
func (p *Pool) Submit(ctx context.Context, judgeID int64, kind queue.Kind) (assignment.Outcome, error) {
	q := p.shards[p.ShardFor(judgeID)]
	r := queue.NewRequest(ctx, judgeID, kind)

	if !q.Enqueue(ctx, r) {
		if q.IsClosed() {
			return assignment.Outcome{}, queue.ErrStopped
		}
		if err := ctx.Err(); err != nil {
			return assignment.Outcome{}, err
		}
		return assignment.Outcome{}, fmt.Errorf("%w: shard %d", queue.ErrBackpressure, p.ShardFor(judgeID))
	}

	return awaitReply(ctx, r.Reply)
}

// awaitReply waits for the worker's result. A reply that is ready when ctx
// ends wins over ctx.Err, since its assignment is already committed.
func awaitReply(ctx context.Context, reply <-chan queue.Result) (assignment.Outcome, error) {
	select {
	case res := <-reply:
		return res.Outcome, res.Err
	case <-ctx.Done():
		select {
		case res := <-reply:
			return res.Outcome, res.Err
		default:
			return assignment.Outcome{}, ctx.Err()
		}
	}
}

// Create queues a KindCreate request.
func (p *Pool) Create(ctx context.Context, judgeID int64) (assignment.Outcome, error) {
	return p.Submit(ctx, judgeID, queue.KindCreate)
}

// Next queues a KindNext request.
func (p *Pool) Next(ctx context.Context, judgeID int64) (assignment.Outcome, error) {
	return p.Submit(ctx, judgeID, queue.KindNext)
}

func (p *Pool) startMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(metricsUpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.updateMetrics()
		}
	}
}

func (p *Pool) updateMetrics() {
	total := p.Processed()
	now := time.Now()
	if secs := now.Sub(p.lastProcessedTime).Seconds(); secs > 0 {
		metrics.UpdateWorkerMessagesPerSecond(float64(total-p.lastProcessed) / secs)
	}
	p.lastProcessed = total
	p.lastProcessedTime = now
}

// Processed sums the requests answered by all workers.
func (p *Pool) Processed() int64 {
	var n int64
	for _, w := range p.workers {
		n += w.Processed()
	}
	return n
}

// Shutdown closes the shard queues so no new requests are accepted, lets
// the workers answer what is already queued, and waits for them until ctx
// is done.
func (p *Pool) Shutdown(ctx context.Context) error {
	for _, q := range p.shards {
		if err := q.Close(); err != nil {
			p.logger.Error(ctx, "error closing shard queue", logger.Error(err))
		}
	}

	var timedOut bool
	for i, w := range p.workers {
		select {
		case <-w.Done():
		case <-ctx.Done():
			timedOut = true
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("shard", i))
		}
		if timedOut {
			break
		}
	}

	if p.cancel != nil {
		p.cancel()
	}
	metrics.UpdateWorkerActiveCount(0)

	if timedOut {
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
	return nil
}
