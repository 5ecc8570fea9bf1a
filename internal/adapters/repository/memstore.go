package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/okian/gavel/internal/domain/assignment"
	"github.com/okian/gavel/internal/domain/model"
)

type judgeSubmission struct {
	judgeID      int64
	submissionID int64
}

type judgePriority struct {
	judgeID  int64
	priority int
}

// MemoryStore is an in-memory Store. A transaction holds the write lock
// for its whole callback and stages inserts until the callback succeeds.
type MemoryStore struct {
	mu          sync.RWMutex
	submissions map[int64]model.Submission
	judges      map[int64]model.Judge
	assignments map[int64]model.AssignmentDetail
	byJudge     map[int64][]int64 // assignment IDs in priority order
	seen        map[judgeSubmission]int64
	priorities  map[judgePriority]int64
	completed   map[int64]int // submission ID -> completed ratings
	nextID      int64
	closed      bool
}

// NewMemoryStore constructs an empty in-memory store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	s := &MemoryStore{
		submissions: make(map[int64]model.Submission),
		judges:      make(map[int64]model.Judge),
		assignments: make(map[int64]model.AssignmentDetail),
		byJudge:     make(map[int64][]int64),
		seen:        make(map[judgeSubmission]int64),
		priorities:  make(map[judgePriority]int64),
		completed:   make(map[int64]int),
	}

	// Apply all options
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// InTx implements assignment.Transactor.
func (s *MemoryStore) InTx(ctx context.Context, fn func(ctx context.Context, tx assignment.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	tx := &memTx{s: s}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	for _, d := range tx.staged {
		s.insertLocked(d)
	}
	return nil
}

func (s *MemoryStore) insertLocked(d model.AssignmentDetail) {
	s.assignments[d.ID] = d
	s.byJudge[d.JudgeID] = append(s.byJudge[d.JudgeID], d.ID)
	s.seen[judgeSubmission{d.JudgeID, d.Rating.SubmissionID}] = d.ID
	s.priorities[judgePriority{d.JudgeID, d.Priority}] = d.ID
	if d.ID > s.nextID {
		s.nextID = d.ID
	}
}

// PutSubmission implements Store.PutSubmission.
func (s *MemoryStore) PutSubmission(ctx context.Context, sub model.Submission) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := ValidateSubmission(sub); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.submissions[sub.ID] = sub
	return nil
}

// PutJudge implements Store.PutJudge.
func (s *MemoryStore) PutJudge(ctx context.Context, j model.Judge) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := ValidateJudge(j); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if j.Anchor != nil {
		anchor := *j.Anchor
		j.Anchor = &anchor
	}
	s.judges[j.ID] = j
	return nil
}

// CompleteRating implements Store.CompleteRating.
func (s *MemoryStore) CompleteRating(ctx context.Context, assignmentID int64, outcome model.RatingOutcome) (model.AssignmentDetail, error) {
	if err := ctx.Err(); err != nil {
		return model.AssignmentDetail{}, err
	}
	if err := outcome.Validate(); err != nil {
		return model.AssignmentDetail{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return model.AssignmentDetail{}, ErrClosed
	}

	d, ok := s.assignments[assignmentID]
	if !ok {
		return model.AssignmentDetail{}, fmt.Errorf("%w: assignment %d", ErrNotFound, assignmentID)
	}
	if !d.Active {
		return model.AssignmentDetail{}, fmt.Errorf("%w: assignment %d", ErrAlreadyCompleted, assignmentID)
	}

	if outcome.Rating != nil {
		r := *outcome.Rating
		d.Rating.Rating = &r
	}
	d.Rating.NoShow = outcome.NoShow
	d.Active = false
	s.assignments[assignmentID] = d
	s.completed[d.Rating.SubmissionID]++
	return d, nil
}

// Assignment implements Store.Assignment.
func (s *MemoryStore) Assignment(ctx context.Context, assignmentID int64) (model.AssignmentDetail, error) {
	if err := ctx.Err(); err != nil {
		return model.AssignmentDetail{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.assignments[assignmentID]
	if !ok {
		return model.AssignmentDetail{}, fmt.Errorf("%w: assignment %d", ErrNotFound, assignmentID)
	}
	return d, nil
}

// JudgeAssignments implements Store.JudgeAssignments.
func (s *MemoryStore) JudgeAssignments(ctx context.Context, judgeID int64) ([]model.AssignmentDetail, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.judges[judgeID]; !ok {
		return nil, fmt.Errorf("%w: judge %d", ErrNotFound, judgeID)
	}
	ids := s.byJudge[judgeID]
	out := make([]model.AssignmentDetail, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.assignments[id])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return out, nil
}

// Coverage implements Store.Coverage.
func (s *MemoryStore) Coverage(ctx context.Context) ([]model.SubmissionCoverage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	pending := make(map[int64]int)
	for _, d := range s.assignments {
		if d.Active {
			pending[d.Rating.SubmissionID]++
		}
	}

	out := make([]model.SubmissionCoverage, 0, len(s.submissions))
	for _, sub := range sortedSubmissions(s.submissions, false) {
		out = append(out, model.SubmissionCoverage{
			Submission:       sub,
			CompletedRatings: s.completed[sub.ID],
			PendingRatings:   pending[sub.ID],
		})
	}
	return out, nil
}

// Stats implements Store.Stats.
func (s *MemoryStore) Stats(ctx context.Context) (Stats, error) {
	if err := ctx.Err(); err != nil {
		return Stats{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Stats{
		Submissions: len(s.submissions),
		Judges:      len(s.judges),
		Assignments: len(s.assignments),
	}
	for _, sub := range s.submissions {
		if sub.Active {
			st.ActiveSubmissions++
		}
	}
	for _, d := range s.assignments {
		if d.Active {
			st.PendingAssignments++
		}
	}
	return st, nil
}

// Close implements Store.Close.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func sortedSubmissions(subs map[int64]model.Submission, activeOnly bool) []model.Submission {
	out := make([]model.Submission, 0, len(subs))
	for _, sub := range subs {
		if activeOnly && !sub.Active {
			continue
		}
		out = append(out, sub)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// memTx reads committed state plus its own staged inserts. The owning
// store's write lock is held for its whole lifetime.
type memTx struct {
	s      *MemoryStore
	staged []model.AssignmentDetail
}

// judgeAssignments returns committed and staged assignments of a judge.
func (t *memTx) judgeAssignments(judgeID int64) []model.AssignmentDetail {
	ids := t.s.byJudge[judgeID]
	out := make([]model.AssignmentDetail, 0, len(ids)+len(t.staged))
	for _, id := range ids {
		out = append(out, t.s.assignments[id])
	}
	for _, d := range t.staged {
		if d.JudgeID == judgeID {
			out = append(out, d)
		}
	}
	return out
}

func (t *memTx) ActiveSubmissions(ctx context.Context) ([]model.Submission, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return sortedSubmissions(t.s.submissions, true), nil
}

func (t *memTx) Submissions(ctx context.Context) ([]model.Submission, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return sortedSubmissions(t.s.submissions, false), nil
}

func (t *memTx) Judge(ctx context.Context, judgeID int64) (model.Judge, bool, error) {
	if err := ctx.Err(); err != nil {
		return model.Judge{}, false, err
	}
	j, ok := t.s.judges[judgeID]
	return j, ok, nil
}

func (t *memTx) RatingHistory(ctx context.Context, judgeID int64) ([]model.RatingHistoryEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	all := t.judgeAssignments(judgeID)
	out := make([]model.RatingHistoryEntry, 0, len(all))
	for _, d := range all {
		if d.Type != model.AssignmentTypeRating {
			continue
		}
		sub, known := t.s.submissions[d.Rating.SubmissionID]
		loc := model.UnknownLocation
		if known {
			loc = sub.Location
		}
		out = append(out, model.RatingHistoryEntry{
			AssignmentID:    d.ID,
			SubmissionID:    d.Rating.SubmissionID,
			Priority:        d.Priority,
			Active:          d.Active,
			Location:        loc,
			SubmissionKnown: known,
		})
	}
	return out, nil
}

func (t *memTx) CompletedRatingCount(ctx context.Context, submissionID int64) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return t.s.completed[submissionID], nil
}

func (t *memTx) MaxPriority(ctx context.Context, judgeID int64) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	highest := 0
	for _, d := range t.judgeAssignments(judgeID) {
		if d.Priority > highest {
			highest = d.Priority
		}
	}
	return highest, nil
}

func (t *memTx) PendingAssignment(ctx context.Context, judgeID int64) (model.AssignmentDetail, bool, error) {
	if err := ctx.Err(); err != nil {
		return model.AssignmentDetail{}, false, err
	}
	var (
		best  model.AssignmentDetail
		found bool
	)
	for _, d := range t.judgeAssignments(judgeID) {
		if !d.Active || d.Type != model.AssignmentTypeRating {
			continue
		}
		if !found || d.Priority < best.Priority {
			best, found = d, true
		}
	}
	return best, found, nil
}

func (t *memTx) InsertRatingAssignment(ctx context.Context, in model.NewRatingAssignment) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if in.Priority < 1 {
		return 0, errInvalid("priority must be positive")
	}
	if _, ok := t.s.judges[in.JudgeID]; !ok {
		return 0, fmt.Errorf("%w: judge %d", ErrNotFound, in.JudgeID)
	}
	if _, ok := t.s.submissions[in.SubmissionID]; !ok {
		return 0, fmt.Errorf("%w: submission %d", ErrNotFound, in.SubmissionID)
	}
	_, dupPriority := t.s.priorities[judgePriority{in.JudgeID, in.Priority}]
	_, dupSubmission := t.s.seen[judgeSubmission{in.JudgeID, in.SubmissionID}]
	for _, d := range t.staged {
		if d.JudgeID != in.JudgeID {
			continue
		}
		dupPriority = dupPriority || d.Priority == in.Priority
		dupSubmission = dupSubmission || d.Rating.SubmissionID == in.SubmissionID
	}
	if dupPriority {
		return 0, fmt.Errorf("%w: judge %d already has priority %d", ErrConflict, in.JudgeID, in.Priority)
	}
	if dupSubmission {
		return 0, fmt.Errorf("%w: judge %d already assigned submission %d", ErrConflict, in.JudgeID, in.SubmissionID)
	}

	id := t.s.nextID + int64(len(t.staged)) + 1
	t.staged = append(t.staged, model.AssignmentDetail{
		Assignment: model.Assignment{
			ID:       id,
			JudgeID:  in.JudgeID,
			Priority: in.Priority,
			Type:     model.AssignmentTypeRating,
			Active:   true,
		},
		Rating: model.RatingAssignment{
			ID:           id,
			AssignmentID: id,
			SubmissionID: in.SubmissionID,
		},
	})
	return id, nil
}

var (
	_ Store         = (*MemoryStore)(nil)
	_ assignment.Tx = (*memTx)(nil)
)
