package assignment

import (
	"errors"
	"fmt"
)

// Sentinel kinds for assignment failures.
var (
	// ErrNoEligibleSubmission means every active submission has already been
	// assigned to the judge. Nothing was written.
	ErrNoEligibleSubmission = errors.New("no eligible submission")
	// ErrPersistence wraps any store read or write failure.
	ErrPersistence = errors.New("persistence failure")
	// ErrInconsistentReference means stored data contradicts itself.
	ErrInconsistentReference = errors.New("inconsistent reference")
	// ErrUnknownJudge means the judge does not exist.
	ErrUnknownJudge = fmt.Errorf("%w: unknown judge", ErrInconsistentReference)
)

// persistence marks a store error as ErrPersistence while keeping the cause.
func persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrPersistence) || errors.Is(err, ErrInconsistentReference) ||
		errors.Is(err, ErrNoEligibleSubmission) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrPersistence, op, err)
}

// Kind returns a short label for err suitable for metrics.
func Kind(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrNoEligibleSubmission):
		return "no_eligible_submission"
	case errors.Is(err, ErrUnknownJudge):
		return "unknown_judge"
	case errors.Is(err, ErrInconsistentReference):
		return "inconsistent_reference"
	case errors.Is(err, ErrPersistence):
		return "persistence"
	default:
		return "other"
	}
}
