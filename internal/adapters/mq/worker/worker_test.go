package worker_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/gavel/internal/adapters/mq/queue"
	"github.com/okian/gavel/internal/adapters/mq/worker"
	"github.com/okian/gavel/internal/domain/assignment"
	"github.com/okian/gavel/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	_ = logger.Init()
}

// mockAssigner records calls and tracks how many decisions run at once
// for the same judge.
type mockAssigner struct {
	mu          sync.Mutex
	inFlight    map[int64]int
	maxInFlight int
	creates     int
	nexts       int

	gate    chan struct{}
	started chan struct{}
	err     error
	nextID  atomic.Int64
}

func newMockAssigner() *mockAssigner {
	return &mockAssigner{inFlight: make(map[int64]int)}
}

func (m *mockAssigner) enter(judgeID int64, create bool) {
	m.mu.Lock()
	m.inFlight[judgeID]++
	if m.inFlight[judgeID] > m.maxInFlight {
		m.maxInFlight = m.inFlight[judgeID]
	}
	if create {
		m.creates++
	} else {
		m.nexts++
	}
	m.mu.Unlock()
}

func (m *mockAssigner) leave(judgeID int64) {
	m.mu.Lock()
	m.inFlight[judgeID]--
	m.mu.Unlock()
}

func (m *mockAssigner) decide(judgeID int64, create bool) (assignment.Outcome, error) {
	m.enter(judgeID, create)
	defer m.leave(judgeID)

	if m.started != nil {
		select {
		case m.started <- struct{}{}:
		default:
		}
	}
	if m.gate != nil {
		<-m.gate
	}
	time.Sleep(100 * time.Microsecond)

	if m.err != nil {
		return assignment.Outcome{}, m.err
	}
	return assignment.Outcome{
		AssignmentID: m.nextID.Add(1),
		SubmissionID: judgeID * 100,
		Priority:     1,
		Created:      create,
	}, nil
}

func (m *mockAssigner) Assign(_ context.Context, judgeID int64) (assignment.Outcome, error) {
	return m.decide(judgeID, true)
}

func (m *mockAssigner) NextAssignment(_ context.Context, judgeID int64) (assignment.Outcome, error) {
	return m.decide(judgeID, false)
}

func (m *mockAssigner) counts() (creates, nexts, maxInFlight int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.creates, m.nexts, m.maxInFlight
}

func TestPoolRouting(t *testing.T) {
	Convey("Given a pool with four shards", t, func() {
		p := worker.NewPool(newMockAssigner(), worker.WithShards(4), worker.WithQueueSize(8))

		Convey("A judge always maps to the same shard", func() {
			So(p.Shards(), ShouldEqual, 4)
			So(p.ShardFor(9), ShouldEqual, 1)
			So(p.ShardFor(9), ShouldEqual, p.ShardFor(9))
			So(p.ShardFor(12), ShouldEqual, 0)
		})

		Convey("Negative judge IDs still land on a valid shard", func() {
			So(p.ShardFor(-7), ShouldEqual, 3)
		})
	})

	Convey("Non-positive options keep the defaults", t, func() {
		p := worker.NewPool(newMockAssigner(), worker.WithShards(0), worker.WithQueueSize(-1))
		So(p.Shards(), ShouldBeGreaterThan, 0)
	})
}

func TestPoolDispatch(t *testing.T) {
	Convey("Given a started pool", t, func() {
		m := newMockAssigner()
		p := worker.NewPool(m, worker.WithShards(2))
		ctx, cancel := context.WithCancel(context.Background())
		p.Start(ctx)
		Reset(func() {
			_ = p.Shutdown(context.Background())
			cancel()
		})

		Convey("Create runs Assign", func() {
			out, err := p.Create(ctx, 5)
			So(err, ShouldBeNil)
			So(out.Created, ShouldBeTrue)
			So(out.SubmissionID, ShouldEqual, 500)
			creates, nexts, _ := m.counts()
			So(creates, ShouldEqual, 1)
			So(nexts, ShouldEqual, 0)
		})

		Convey("Next runs NextAssignment", func() {
			out, err := p.Next(ctx, 6)
			So(err, ShouldBeNil)
			So(out.Created, ShouldBeFalse)
			creates, nexts, _ := m.counts()
			So(creates, ShouldEqual, 0)
			So(nexts, ShouldEqual, 1)
		})

		Convey("An unknown kind is answered with an error", func() {
			_, err := p.Submit(ctx, 1, queue.Kind(99))
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "unknown request kind")
		})

		Convey("Processed counts answered requests", func() {
			for i := int64(1); i <= 3; i++ {
				_, err := p.Create(ctx, i)
				So(err, ShouldBeNil)
			}
			So(p.Processed(), ShouldEqual, 3)
		})
	})

	Convey("Assigner errors reach the caller unchanged", t, func() {
		m := newMockAssigner()
		m.err = assignment.ErrNoEligibleSubmission
		p := worker.NewPool(m, worker.WithShards(1))
		ctx := context.Background()
		p.Start(ctx)
		defer func() { _ = p.Shutdown(ctx) }()

		_, err := p.Create(ctx, 1)
		So(errors.Is(err, assignment.ErrNoEligibleSubmission), ShouldBeTrue)
	})
}

func TestPoolSerializesJudges(t *testing.T) {
	Convey("Concurrent requests for the same judges never overlap", t, func() {
		m := newMockAssigner()
		p := worker.NewPool(m, worker.WithShards(3), worker.WithQueueSize(256))
		ctx := context.Background()
		p.Start(ctx)
		defer func() { _ = p.Shutdown(ctx) }()

		var wg sync.WaitGroup
		var failures atomic.Int64
		for g := 0; g < 16; g++ {
			wg.Add(1)
			go func(g int) {
				defer wg.Done()
				for i := 0; i < 10; i++ {
					judge := int64(g%5 + 1)
					if _, err := p.Next(ctx, judge); err != nil {
						failures.Add(1)
					}
				}
			}(g)
		}
		wg.Wait()

		_, nexts, maxInFlight := m.counts()
		So(failures.Load(), ShouldEqual, 0)
		So(nexts, ShouldEqual, 160)
		So(maxInFlight, ShouldEqual, 1)
	})
}

func TestPoolBackpressure(t *testing.T) {
	Convey("Given a single shard whose worker is stuck", t, func() {
		m := newMockAssigner()
		m.gate = make(chan struct{})
		m.started = make(chan struct{}, 1)
		p := worker.NewPool(m, worker.WithShards(1), worker.WithQueueSize(1))
		ctx := context.Background()
		p.Start(ctx)

		first := make(chan error, 1)
		go func() {
			_, err := p.Create(ctx, 1)
			first <- err
		}()
		<-m.started

		Convey("Extra requests are rejected instead of waiting", func() {
			const extra = 5
			errs := make(chan error, extra)
			var wg sync.WaitGroup
			for i := 0; i < extra; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, err := p.Create(ctx, 1)
					errs <- err
				}()
			}

			// One request fits in the queue and one more can be held by the
			// dequeue goroutine, so at least three of five must bounce.
			rejected := 0
			deadline := time.After(2 * time.Second)
			for rejected < extra-2 {
				select {
				case err := <-errs:
					So(errors.Is(err, queue.ErrBackpressure), ShouldBeTrue)
					rejected++
				case <-deadline:
					t.Fatal("expected backpressure rejections")
				}
			}

			close(m.gate)
			wg.Wait()
			close(errs)
			for err := range errs {
				So(err == nil || errors.Is(err, queue.ErrBackpressure), ShouldBeTrue)
			}
			So(<-first, ShouldBeNil)
			So(p.Shutdown(ctx), ShouldBeNil)
		})
	})
}

func TestPoolAbandonedRequests(t *testing.T) {
	Convey("A request whose caller gave up is not decided", t, func() {
		m := newMockAssigner()
		m.gate = make(chan struct{})
		m.started = make(chan struct{}, 1)
		p := worker.NewPool(m, worker.WithShards(1))
		ctx := context.Background()
		p.Start(ctx)
		defer func() { _ = p.Shutdown(ctx) }()

		first := make(chan error, 1)
		go func() {
			_, err := p.Create(ctx, 1)
			first <- err
		}()
		<-m.started

		callerCtx, cancel := context.WithCancel(ctx)
		abandoned := make(chan error, 1)
		go func() {
			_, err := p.Create(callerCtx, 1)
			abandoned <- err
		}()
		time.Sleep(20 * time.Millisecond)
		cancel()
		So(errors.Is(<-abandoned, context.Canceled), ShouldBeTrue)

		close(m.gate)
		So(<-first, ShouldBeNil)

		_, err := p.Create(ctx, 1)
		So(err, ShouldBeNil)

		creates, _, _ := m.counts()
		So(creates, ShouldEqual, 2)
	})
}

func TestPoolShutdown(t *testing.T) {
	Convey("Given a started pool", t, func() {
		m := newMockAssigner()
		p := worker.NewPool(m, worker.WithShards(2))
		ctx := context.Background()
		p.Start(ctx)

		Convey("Shutdown stops intake", func() {
			_, err := p.Create(ctx, 1)
			So(err, ShouldBeNil)

			So(p.Shutdown(ctx), ShouldBeNil)

			_, err = p.Create(ctx, 2)
			So(errors.Is(err, queue.ErrStopped), ShouldBeTrue)
		})

		Convey("Shutdown honors its context when a worker is stuck", func() {
			m.gate = make(chan struct{})
			m.started = make(chan struct{}, 1)
			go func() { _, _ = p.Create(ctx, 1) }()
			<-m.started

			shutdownCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
			defer cancel()
			err := p.Shutdown(shutdownCtx)
			So(errors.Is(err, context.DeadlineExceeded), ShouldBeTrue)
			close(m.gate)
		})
	})
}

func TestAwaitReply(t *testing.T) {
	Convey("Given a caller whose context has ended", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		reply := make(chan queue.Result, 1)

		Convey("A reply that is already waiting is returned instead of the context error", func() {
			reply <- queue.Result{Outcome: assignment.Outcome{AssignmentID: 41, Created: true}}
			for range 50 {
				out, err := worker.AwaitReply(ctx, reply)
				So(err, ShouldBeNil)
				So(out.AssignmentID, ShouldEqual, 41)
				reply <- queue.Result{Outcome: out}
			}
		})

		Convey("Without a reply the context error is returned", func() {
			_, err := worker.AwaitReply(ctx, reply)
			So(errors.Is(err, context.Canceled), ShouldBeTrue)
		})
	})
}
