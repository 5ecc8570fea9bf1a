// Package assignment decides which submission a judge evaluates next and
// records the decision atomically.
package assignment

import (
	"context"

	"github.com/okian/gavel/internal/domain/model"
)

// Reader is the query side of the store as seen by the assignment engine.
type Reader interface {
	// ActiveSubmissions returns every active submission in ascending ID order.
	ActiveSubmissions(ctx context.Context) ([]model.Submission, error)
	// Submissions returns every submission, active or not.
	Submissions(ctx context.Context) ([]model.Submission, error)
	// Judge looks a judge up; ok is false when it does not exist.
	Judge(ctx context.Context, judgeID int64) (judge model.Judge, ok bool, err error)
	// RatingHistory returns every rating assignment ever made to the judge.
	RatingHistory(ctx context.Context, judgeID int64) ([]model.RatingHistoryEntry, error)
	// CompletedRatingCount counts completed rating assignments of a submission.
	CompletedRatingCount(ctx context.Context, submissionID int64) (int, error)
	// MaxPriority returns the judge's highest assignment priority, 0 when none.
	MaxPriority(ctx context.Context, judgeID int64) (int, error)
	// PendingAssignment returns the judge's lowest-priority active rating
	// assignment; ok is false when there is none.
	PendingAssignment(ctx context.Context, judgeID int64) (detail model.AssignmentDetail, ok bool, err error)
}

// Tx is a store transaction.
type Tx interface {
	Reader
	// InsertRatingAssignment writes an active rating Assignment and its
	// RatingAssignment child and returns the new assignment ID.
	InsertRatingAssignment(ctx context.Context, in model.NewRatingAssignment) (int64, error)
}

// Transactor runs fn inside a serializable transaction. Writes made
// through tx are committed only when fn returns nil.
type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
