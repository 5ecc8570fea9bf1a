package assignment

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/okian/gavel/internal/domain/model"
	"github.com/okian/gavel/pkg/logger"
)

func init() {
	_ = logger.Init()
}

var errInjected = errors.New("injected store failure")

// fakeStore is a transactional in-memory store with write counting and
// per-method error injection.
type fakeStore struct {
	mu          sync.Mutex
	subs        map[int64]model.Submission
	judges      map[int64]model.Judge
	assignments []model.AssignmentDetail
	nextID      int64
	writes      int
	failOn      string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		subs:   make(map[int64]model.Submission),
		judges: make(map[int64]model.Judge),
	}
}

func (f *fakeStore) addSubmission(id int64, loc int, active bool) {
	f.subs[id] = model.Submission{ID: id, Location: loc, Active: active}
}

func (f *fakeStore) addJudge(id int64, anchor *int) {
	f.judges[id] = model.Judge{ID: id, Anchor: anchor}
}

// addRating records a rating assignment directly, completed or pending.
func (f *fakeStore) addRating(judgeID, submissionID int64, priority int, completed bool) int64 {
	f.nextID++
	f.assignments = append(f.assignments, model.AssignmentDetail{
		Assignment: model.Assignment{
			ID: f.nextID, JudgeID: judgeID, Priority: priority,
			Type: model.AssignmentTypeRating, Active: !completed,
		},
		Rating: model.RatingAssignment{ID: f.nextID, AssignmentID: f.nextID, SubmissionID: submissionID},
	})
	return f.nextID
}

func (f *fakeStore) writeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writes
}

func (f *fakeStore) assignedTo(judgeID int64) []model.AssignmentDetail {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.AssignmentDetail
	for _, a := range f.assignments {
		if a.JudgeID == judgeID {
			out = append(out, a)
		}
	}
	return out
}

func (f *fakeStore) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	tx := &fakeTx{f: f}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	f.assignments = append(f.assignments, tx.staged...)
	f.writes += len(tx.staged)
	return nil
}

type fakeTx struct {
	f      *fakeStore
	staged []model.AssignmentDetail
}

func (t *fakeTx) fail(op string) error {
	if t.f.failOn == op {
		return errInjected
	}
	return nil
}

func (t *fakeTx) ActiveSubmissions(context.Context) ([]model.Submission, error) {
	if err := t.fail("ActiveSubmissions"); err != nil {
		return nil, err
	}
	var out []model.Submission
	for _, s := range t.f.subs {
		if s.Active {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *fakeTx) Submissions(context.Context) ([]model.Submission, error) {
	if err := t.fail("Submissions"); err != nil {
		return nil, err
	}
	out := make([]model.Submission, 0, len(t.f.subs))
	for _, s := range t.f.subs {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *fakeTx) Judge(_ context.Context, judgeID int64) (model.Judge, bool, error) {
	if err := t.fail("Judge"); err != nil {
		return model.Judge{}, false, err
	}
	j, ok := t.f.judges[judgeID]
	return j, ok, nil
}

func (t *fakeTx) RatingHistory(_ context.Context, judgeID int64) ([]model.RatingHistoryEntry, error) {
	if err := t.fail("RatingHistory"); err != nil {
		return nil, err
	}
	var out []model.RatingHistoryEntry
	for _, a := range t.f.assignments {
		if a.JudgeID != judgeID {
			continue
		}
		s, known := t.f.subs[a.Rating.SubmissionID]
		loc := model.UnknownLocation
		if known {
			loc = s.Location
		}
		out = append(out, model.RatingHistoryEntry{
			AssignmentID:    a.ID,
			SubmissionID:    a.Rating.SubmissionID,
			Priority:        a.Priority,
			Active:          a.Active,
			Location:        loc,
			SubmissionKnown: known,
		})
	}
	return out, nil
}

func (t *fakeTx) CompletedRatingCount(_ context.Context, submissionID int64) (int, error) {
	if err := t.fail("CompletedRatingCount"); err != nil {
		return 0, err
	}
	n := 0
	for _, a := range t.f.assignments {
		if a.Rating.SubmissionID == submissionID && !a.Active {
			n++
		}
	}
	return n, nil
}

func (t *fakeTx) MaxPriority(_ context.Context, judgeID int64) (int, error) {
	if err := t.fail("MaxPriority"); err != nil {
		return 0, err
	}
	highest := 0
	for _, a := range t.f.assignments {
		if a.JudgeID == judgeID && a.Priority > highest {
			highest = a.Priority
		}
	}
	return highest, nil
}

func (t *fakeTx) PendingAssignment(_ context.Context, judgeID int64) (model.AssignmentDetail, bool, error) {
	if err := t.fail("PendingAssignment"); err != nil {
		return model.AssignmentDetail{}, false, err
	}
	var (
		best  model.AssignmentDetail
		found bool
	)
	for _, a := range t.f.assignments {
		if a.JudgeID != judgeID || !a.Active {
			continue
		}
		if !found || a.Priority < best.Priority {
			best, found = a, true
		}
	}
	return best, found, nil
}

func (t *fakeTx) InsertRatingAssignment(_ context.Context, in model.NewRatingAssignment) (int64, error) {
	if err := t.fail("InsertRatingAssignment"); err != nil {
		return 0, err
	}
	t.f.nextID++
	id := t.f.nextID
	t.staged = append(t.staged, model.AssignmentDetail{
		Assignment: model.Assignment{
			ID: id, JudgeID: in.JudgeID, Priority: in.Priority,
			Type: model.AssignmentTypeRating, Active: true,
		},
		Rating: model.RatingAssignment{ID: id, AssignmentID: id, SubmissionID: in.SubmissionID},
	})
	return id, nil
}
