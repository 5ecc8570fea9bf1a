// Package types contains the JSON shapes exchanged over the API.
package types

import (
	"github.com/okian/gavel/internal/domain/assignment"
	"github.com/okian/gavel/internal/domain/model"
)

// Assignment is one assignment as returned to a judge.
type Assignment struct {
	AssignmentID int64  `json:"assignment_id"`
	JudgeID      int64  `json:"judge_id"`
	SubmissionID int64  `json:"submission_id"`
	Priority     int    `json:"priority"`
	Type         string `json:"type"`
	Active       bool   `json:"active"`
	Rating       *int   `json:"rating,omitempty"`
	NoShow       bool   `json:"no_show,omitempty"`
}

// AssignResponse is the reply to an assignment request.
type AssignResponse struct {
	Assignment
	// Created is false when a pending assignment was handed back.
	Created bool `json:"created"`
	// Replayed is true when the answer came from an earlier request with
	// the same Idempotency-Key.
	Replayed bool `json:"replayed"`
}

// FromOutcome converts a fresh engine outcome.
func FromOutcome(judgeID int64, out assignment.Outcome, replayed bool) AssignResponse {
	return AssignResponse{
		Assignment: Assignment{
			AssignmentID: out.AssignmentID,
			JudgeID:      judgeID,
			SubmissionID: out.SubmissionID,
			Priority:     out.Priority,
			Type:         model.AssignmentTypeRating.String(),
			Active:       true,
		},
		Created:  out.Created,
		Replayed: replayed,
	}
}

// FromDetail converts a stored assignment.
func FromDetail(d model.AssignmentDetail) Assignment {
	return Assignment{
		AssignmentID: d.ID,
		JudgeID:      d.JudgeID,
		SubmissionID: d.Rating.SubmissionID,
		Priority:     d.Priority,
		Type:         d.Type.String(),
		Active:       d.Active,
		Rating:       d.Rating.Rating,
		NoShow:       d.Rating.NoShow,
	}
}

// FromDetails converts a list of stored assignments.
func FromDetails(ds []model.AssignmentDetail) []Assignment {
	out := make([]Assignment, 0, len(ds))
	for _, d := range ds {
		out = append(out, FromDetail(d))
	}
	return out
}

// Submission is the body of PUT /submissions/{id}.
type Submission struct {
	Name     string `json:"name"`
	TrackID  int64  `json:"track_id"`
	Location int    `json:"location"`
	// Active defaults to true when omitted.
	Active *bool `json:"active,omitempty"`
}

// Model builds the stored submission.
func (s Submission) Model(id int64) model.Submission {
	active := true
	if s.Active != nil {
		active = *s.Active
	}
	return model.Submission{
		ID:       id,
		Name:     s.Name,
		TrackID:  s.TrackID,
		Location: s.Location,
		Active:   active,
	}
}

// Judge is the body of PUT /judges/{id}.
type Judge struct {
	Name   string `json:"name"`
	Anchor *int   `json:"anchor,omitempty"`
}

// Model builds the stored judge.
func (j Judge) Model(id int64) model.Judge {
	return model.Judge{ID: id, Name: j.Name, Anchor: j.Anchor}
}

// Rating is the body of POST /assignments/{id}/rating.
type Rating struct {
	Rating *int `json:"rating,omitempty"`
	NoShow bool `json:"no_show,omitempty"`
}

// Outcome converts to the domain rating outcome.
func (r Rating) Outcome() model.RatingOutcome {
	return model.RatingOutcome{Rating: r.Rating, NoShow: r.NoShow}
}

// Coverage is one row of GET /coverage.
type Coverage struct {
	SubmissionID     int64  `json:"submission_id"`
	Name             string `json:"name"`
	Location         int    `json:"location"`
	Active           bool   `json:"active"`
	CompletedRatings int    `json:"completed_ratings"`
	PendingRatings   int    `json:"pending_ratings"`
	UnderRated       bool   `json:"under_rated"`
}

// FromCoverage converts coverage rows. A submission is under-rated when
// its completed ratings are below threshold.
func FromCoverage(rows []model.SubmissionCoverage, threshold int) []Coverage {
	out := make([]Coverage, 0, len(rows))
	for _, r := range rows {
		out = append(out, Coverage{
			SubmissionID:     r.Submission.ID,
			Name:             r.Submission.Name,
			Location:         r.Submission.Location,
			Active:           r.Submission.Active,
			CompletedRatings: r.CompletedRatings,
			PendingRatings:   r.PendingRatings,
			UnderRated:       r.CompletedRatings < threshold,
		})
	}
	return out
}

// Stats is the body of GET /stats.
type Stats struct {
	StoreDriver        string  `json:"store_driver"`
	Submissions        int     `json:"submissions"`
	ActiveSubmissions  int     `json:"active_submissions"`
	Judges             int     `json:"judges"`
	Assignments        int     `json:"assignments"`
	PendingAssignments int     `json:"pending_assignments"`
	UnderRated         int     `json:"under_rated"`
	Shards             int     `json:"shards"`
	Processed          int64   `json:"processed"`
	IdempotencyKeys    int64   `json:"idempotency_keys"`
	UptimeSeconds      float64 `json:"uptime_seconds"`
}
