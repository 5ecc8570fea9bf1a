// Package repository defines the assignment store contract and an
// in-memory implementation of it.
package repository

import (
	"context"

	"github.com/okian/gavel/internal/domain/assignment"
	"github.com/okian/gavel/internal/domain/model"
)

// Stats is a point-in-time summary of the store.
type Stats struct {
	Submissions        int
	ActiveSubmissions  int
	Judges             int
	Assignments        int
	PendingAssignments int
}

// Store provides transactional assignment access plus intake, completion
// and read-model operations.
type Store interface {
	assignment.Transactor

	// PutSubmission creates or replaces a submission.
	PutSubmission(ctx context.Context, s model.Submission) error
	// PutJudge creates or replaces a judge.
	PutJudge(ctx context.Context, j model.Judge) error
	// CompleteRating records a rating or no-show and marks the assignment
	// completed. Returns ErrNotFound or ErrAlreadyCompleted.
	CompleteRating(ctx context.Context, assignmentID int64, outcome model.RatingOutcome) (model.AssignmentDetail, error)

	// Assignment returns one assignment or ErrNotFound.
	Assignment(ctx context.Context, assignmentID int64) (model.AssignmentDetail, error)
	// JudgeAssignments returns the judge's assignments in priority order.
	// Returns ErrNotFound if the judge is unknown.
	JudgeAssignments(ctx context.Context, judgeID int64) ([]model.AssignmentDetail, error)
	// Coverage returns completed and pending rating counts per submission,
	// in ascending submission ID order.
	Coverage(ctx context.Context) ([]model.SubmissionCoverage, error)
	// Stats summarises the store.
	Stats(ctx context.Context) (Stats, error)

	// Close releases resources held by the store.
	Close() error
}

// ValidateSubmission checks a submission before it is stored.
func ValidateSubmission(s model.Submission) error {
	if s.ID <= 0 {
		return errInvalid("submission id must be positive")
	}
	if s.Location < 0 {
		return errInvalid("submission location must not be negative")
	}
	return nil
}

// ValidateJudge checks a judge before it is stored.
func ValidateJudge(j model.Judge) error {
	if j.ID <= 0 {
		return errInvalid("judge id must be positive")
	}
	if j.Anchor != nil && *j.Anchor < 0 {
		return errInvalid("judge anchor must not be negative")
	}
	return nil
}
