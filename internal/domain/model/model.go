// Package model contains domain models passed between layers.
package model

import (
	"errors"
	"fmt"
)

// UnknownLocation marks a reference location that could not be resolved.
const UnknownLocation = -1

// AssignmentType discriminates what a judge is asked to do.
type AssignmentType int

// Assignment types. Only rating assignments are produced by the assigner.
const (
	AssignmentTypeRating  AssignmentType = 1
	AssignmentTypeRanking AssignmentType = 2
)

// String returns the wire name of the assignment type.
func (t AssignmentType) String() string {
	switch t {
	case AssignmentTypeRating:
		return "rating"
	case AssignmentTypeRanking:
		return "ranking"
	default:
		return fmt.Sprintf("unknown(%d)", int(t))
	}
}

// Submission is a hack placed at a location in the venue.
type Submission struct {
	ID       int64
	Name     string
	TrackID  int64
	Location int // position in the circular walking order, not unique
	Active   bool
}

// Judge is a person who walks the venue rating submissions.
type Judge struct {
	ID     int64
	Name   string
	Anchor *int // fallback starting location, nil when unset
}

// AnchorOrUnknown returns the judge's anchor or UnknownLocation.
func (j Judge) AnchorOrUnknown() int {
	if j.Anchor == nil {
		return UnknownLocation
	}
	return *j.Anchor
}

// Assignment is one entry of a judge's work queue.
type Assignment struct {
	ID       int64
	JudgeID  int64
	Priority int
	Type     AssignmentType
	Active   bool // true while pending, false once completed
}

// RatingAssignment is the child row of a rating Assignment.
type RatingAssignment struct {
	ID           int64
	AssignmentID int64
	SubmissionID int64
	Rating       *int
	NoShow       bool
}

// AssignmentDetail joins an Assignment with its rating child.
type AssignmentDetail struct {
	Assignment
	Rating RatingAssignment
}

// RatingHistoryEntry is one rating assignment of a judge together with
// the location of the submission it points at. SubmissionKnown is false
// when the referenced submission no longer exists.
type RatingHistoryEntry struct {
	AssignmentID    int64
	SubmissionID    int64
	Priority        int
	Active          bool
	Location        int
	SubmissionKnown bool
}

// NewRatingAssignment carries everything needed to insert an Assignment
// and its RatingAssignment child in one unit.
type NewRatingAssignment struct {
	JudgeID      int64
	SubmissionID int64
	Priority     int
}

// RatingOutcome is what a judge reports when completing an assignment.
type RatingOutcome struct {
	Rating *int
	NoShow bool
}

// Rating bounds accepted from judges.
const (
	MinRating = 1
	MaxRating = 10
)

// ErrInvalidOutcome reports a malformed rating outcome.
var ErrInvalidOutcome = errors.New("invalid rating outcome")

// Validate checks that exactly one of rating or no-show is reported.
func (o RatingOutcome) Validate() error {
	switch {
	case o.NoShow && o.Rating != nil:
		return fmt.Errorf("%w: rating and no_show are mutually exclusive", ErrInvalidOutcome)
	case !o.NoShow && o.Rating == nil:
		return fmt.Errorf("%w: rating or no_show is required", ErrInvalidOutcome)
	case o.Rating != nil && (*o.Rating < MinRating || *o.Rating > MaxRating):
		return fmt.Errorf("%w: rating %d outside [%d,%d]", ErrInvalidOutcome, *o.Rating, MinRating, MaxRating)
	}
	return nil
}

// SubmissionCoverage reports how many completed ratings a submission has.
type SubmissionCoverage struct {
	Submission       Submission
	CompletedRatings int
	PendingRatings   int
}
