package assignment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/okian/gavel/internal/domain/model"
	"github.com/okian/gavel/internal/domain/scoring"
	"github.com/okian/gavel/pkg/logger"
	"github.com/okian/gavel/pkg/metrics"
)

// Selector picks the best candidate for one decision. *scoring.Engine
// satisfies it.
type Selector interface {
	Select(ctx context.Context, in scoring.SelectInput) (scoring.Result, error)
}

// Outcome describes the assignment handed to a judge.
type Outcome struct {
	AssignmentID int64
	SubmissionID int64
	Priority     int
	// Created is false when an already pending assignment was returned.
	Created bool
}

// Engine runs the read-decide-write assignment sequence.
type Engine struct {
	store         Transactor
	selector      Selector
	logger        logger.Logger
	storeLabel    string
	logCandidates bool
}

// NewEngine creates an assignment engine over a transactional store.
func NewEngine(store Transactor, opts ...Option) *Engine {
	e := &Engine{
		store:         store,
		storeLabel:    "unknown",
		logCandidates: true,
	}

	// Apply all options
	for _, opt := range opts {
		opt(e)
	}

	if e.selector == nil {
		e.selector = scoring.NewEngine()
	}
	if e.logger == nil {
		e.logger = logger.Get().Named("assignment")
	}

	return e
}

// CreateAssignment picks the best submission for the judge and records a
// new pending rating assignment for it. It returns the assignment ID.
func (e *Engine) CreateAssignment(ctx context.Context, judgeID int64) (int64, error) {
	out, err := e.Assign(ctx, judgeID)
	if err != nil {
		return 0, err
	}
	return out.AssignmentID, nil
}

// Assign is CreateAssignment reporting the whole outcome.
func (e *Engine) Assign(ctx context.Context, judgeID int64) (Outcome, error) {
	return e.run(ctx, judgeID, false)
}

// NextAssignment returns the judge's pending assignment with the lowest
// priority, creating a new one when nothing is pending.
func (e *Engine) NextAssignment(ctx context.Context, judgeID int64) (Outcome, error) {
	return e.run(ctx, judgeID, true)
}

func (e *Engine) run(ctx context.Context, judgeID int64, reusePending bool) (Outcome, error) {
	start := time.Now()
	var out Outcome

	err := e.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		if reusePending {
			detail, ok, err := tx.PendingAssignment(ctx, judgeID)
			if err != nil {
				return persistence("pending assignment", err)
			}
			if ok {
				out = Outcome{
					AssignmentID: detail.ID,
					SubmissionID: detail.Rating.SubmissionID,
					Priority:     detail.Priority,
				}
				return nil
			}
		}

		decided, err := e.decide(ctx, tx, judgeID)
		if err != nil {
			return err
		}
		out = decided
		return nil
	})

	elapsed := float64(time.Since(start).Nanoseconds()) / 1e6
	metrics.RecordStoreTxLatency(e.storeLabel, elapsed)

	if err != nil {
		err = persistence("transaction", err)
		metrics.RecordAssignmentFailure(Kind(err))
		if errors.Is(err, ErrNoEligibleSubmission) {
			e.logger.Info(ctx, "no eligible submission for judge", logger.Int64("judge_id", judgeID))
		} else {
			metrics.RecordErrorByComponent("assignment", Kind(err))
			metrics.RecordErrorLatency("assignment", Kind(err), elapsed)
			e.logger.Error(ctx, "assignment failed", logger.Int64("judge_id", judgeID), logger.Error(err))
		}
		return Outcome{}, err
	}

	metrics.RecordAssignmentLatency(elapsed)
	if out.Created {
		metrics.RecordAssignmentCreated()
		e.logger.Info(ctx, "assignment created",
			logger.Int64("judge_id", judgeID),
			logger.Int64("assignment_id", out.AssignmentID),
			logger.Int64("submission_id", out.SubmissionID),
			logger.Int("priority", out.Priority))
	} else {
		metrics.RecordAssignmentReused()
		e.logger.Debug(ctx, "returning pending assignment",
			logger.Int64("judge_id", judgeID),
			logger.Int64("assignment_id", out.AssignmentID))
	}
	return out, nil
}

// decide runs inside the transaction. Nothing is written unless a
// candidate was chosen.
func (e *Engine) decide(ctx context.Context, tx Tx, judgeID int64) (Outcome, error) {
	if _, ok, err := tx.Judge(ctx, judgeID); err != nil {
		return Outcome{}, persistence("judge", err)
	} else if !ok {
		return Outcome{}, fmt.Errorf("%w: %d", ErrUnknownJudge, judgeID)
	}

	plausible, err := PlausibleSubmissions(ctx, tx, judgeID)
	if err != nil {
		return Outcome{}, err
	}
	metrics.RecordCandidatePool(len(plausible))
	if len(plausible) == 0 {
		return Outcome{}, fmt.Errorf("%w: judge %d", ErrNoEligibleSubmission, judgeID)
	}

	ref, err := LastLocation(ctx, tx, judgeID)
	if err != nil {
		return Outcome{}, err
	}
	venue, err := tx.Submissions(ctx)
	if err != nil {
		return Outcome{}, persistence("submissions", err)
	}

	e.logger.Debug(ctx, "scoring candidates",
		logger.Int64("judge_id", judgeID),
		logger.Int("plausible", len(plausible)),
		logger.Int("reference_location", ref))

	res, err := e.selector.Select(ctx, scoring.SelectInput{
		Plausible: plausible,
		Reference: ref,
		Venue:     venue,
		Coverage:  NewCoverageTracker(tx),
	})
	if err != nil {
		if errors.Is(err, scoring.ErrNoCandidates) {
			return Outcome{}, fmt.Errorf("%w: judge %d", ErrNoEligibleSubmission, judgeID)
		}
		return Outcome{}, err
	}
	if e.logCandidates {
		e.logTop(ctx, judgeID, res)
	}

	priority, err := NextPriority(ctx, tx, judgeID)
	if err != nil {
		return Outcome{}, err
	}

	id, err := tx.InsertRatingAssignment(ctx, model.NewRatingAssignment{
		JudgeID:      judgeID,
		SubmissionID: res.Best.SubmissionID,
		Priority:     priority,
	})
	if err != nil {
		return Outcome{}, persistence("insert rating assignment", err)
	}

	if res.LocalityUsed && res.Best.Distance >= 0 {
		metrics.RecordSelectedDistance(res.Best.Distance)
	}
	if res.Best.CoverageBonus > 0 {
		metrics.RecordCoverageBonusSelected()
	}

	return Outcome{
		AssignmentID: id,
		SubmissionID: res.Best.SubmissionID,
		Priority:     priority,
		Created:      true,
	}, nil
}

func (e *Engine) logTop(ctx context.Context, judgeID int64, res scoring.Result) {
	for rank, c := range res.Top {
		e.logger.Debug(ctx, "candidate",
			logger.Int64("judge_id", judgeID),
			logger.Int("rank", rank+1),
			logger.Int64("submission_id", c.SubmissionID),
			logger.Float64("score", c.Score),
			logger.Int("distance", c.Distance),
			logger.Int("completed_ratings", c.CompletedRatings))
	}
}
