// Package storetest holds behaviour checks shared by every repository.Store
// implementation.
package storetest

import (
	"context"
	"errors"
	"testing"

	repository "github.com/okian/gavel/internal/adapters/repository"
	"github.com/okian/gavel/internal/domain/assignment"
	"github.com/okian/gavel/internal/domain/model"
	"github.com/okian/gavel/internal/domain/scoring"
	. "github.com/smartystreets/goconvey/convey"
	"golang.org/x/sync/errgroup"
)

// Opener returns a fresh, empty store. The kit closes it.
type Opener func(t *testing.T) repository.Store

var errRollback = errors.New("rollback requested")

func intPtr(v int) *int { return &v }

func seed(ctx context.Context, s repository.Store, judges []int64, subs ...model.Submission) {
	for _, id := range judges {
		So(s.PutJudge(ctx, model.Judge{ID: id, Name: "judge"}), ShouldBeNil)
	}
	for _, sub := range subs {
		So(s.PutSubmission(ctx, sub), ShouldBeNil)
	}
}

func insert(ctx context.Context, s repository.Store, in model.NewRatingAssignment) (int64, error) {
	var id int64
	err := s.InTx(ctx, func(ctx context.Context, tx assignment.Tx) error {
		var err error
		id, err = tx.InsertRatingAssignment(ctx, in)
		return err
	})
	return id, err
}

// Run exercises open against the full store contract.
func Run(t *testing.T, open Opener) {
	t.Helper()
	runIntake(t, open)
	runTransactions(t, open)
	runCompletion(t, open)
	runReadModel(t, open)
	runEngine(t, open)
}

func runIntake(t *testing.T, open Opener) {
	Convey("Given an empty store", t, func() {
		ctx := context.Background()
		s := open(t)
		Reset(func() { _ = s.Close() })

		Convey("When putting invalid rows", func() {
			Convey("Then they are rejected as invalid input", func() {
				So(errors.Is(s.PutSubmission(ctx, model.Submission{ID: 0}), repository.ErrInvalidInput), ShouldBeTrue)
				So(errors.Is(s.PutSubmission(ctx, model.Submission{ID: 1, Location: -2}), repository.ErrInvalidInput), ShouldBeTrue)
				So(errors.Is(s.PutJudge(ctx, model.Judge{ID: -1}), repository.ErrInvalidInput), ShouldBeTrue)
				So(errors.Is(s.PutJudge(ctx, model.Judge{ID: 1, Anchor: intPtr(-3)}), repository.ErrInvalidInput), ShouldBeTrue)
			})
		})

		Convey("When putting a judge with an anchor and replacing a submission", func() {
			So(s.PutJudge(ctx, model.Judge{ID: 1, Name: "Ada", Anchor: intPtr(4)}), ShouldBeNil)
			So(s.PutSubmission(ctx, model.Submission{ID: 7, Name: "old", Location: 2, Active: true}), ShouldBeNil)
			So(s.PutSubmission(ctx, model.Submission{ID: 7, Name: "new", TrackID: 3, Location: 5, Active: false}), ShouldBeNil)

			Convey("Then the transaction sees the latest values", func() {
				err := s.InTx(ctx, func(ctx context.Context, tx assignment.Tx) error {
					j, ok, err := tx.Judge(ctx, 1)
					So(err, ShouldBeNil)
					So(ok, ShouldBeTrue)
					So(j.Name, ShouldEqual, "Ada")
					So(j.Anchor, ShouldNotBeNil)
					So(*j.Anchor, ShouldEqual, 4)

					_, ok, err = tx.Judge(ctx, 2)
					So(err, ShouldBeNil)
					So(ok, ShouldBeFalse)

					all, err := tx.Submissions(ctx)
					So(err, ShouldBeNil)
					So(all, ShouldHaveLength, 1)
					So(all[0].Name, ShouldEqual, "new")
					So(all[0].TrackID, ShouldEqual, 3)
					So(all[0].Location, ShouldEqual, 5)

					active, err := tx.ActiveSubmissions(ctx)
					So(err, ShouldBeNil)
					So(active, ShouldBeEmpty)
					return nil
				})
				So(err, ShouldBeNil)
			})
		})
	})
}

func runTransactions(t *testing.T, open Opener) {
	Convey("Given a store with one judge and three submissions", t, func() {
		ctx := context.Background()
		s := open(t)
		Reset(func() { _ = s.Close() })
		seed(ctx, s, []int64{1},
			model.Submission{ID: 1, Location: 1, Active: true},
			model.Submission{ID: 2, Location: 2, Active: true},
			model.Submission{ID: 3, Location: 3, Active: true},
		)

		Convey("When a transaction inserts and then fails", func() {
			err := s.InTx(ctx, func(ctx context.Context, tx assignment.Tx) error {
				_, err := tx.InsertRatingAssignment(ctx, model.NewRatingAssignment{JudgeID: 1, SubmissionID: 1, Priority: 1})
				So(err, ShouldBeNil)
				return errRollback
			})

			Convey("Then nothing is kept", func() {
				So(errors.Is(err, errRollback), ShouldBeTrue)
				got, err := s.JudgeAssignments(ctx, 1)
				So(err, ShouldBeNil)
				So(got, ShouldBeEmpty)
			})
		})

		Convey("When a transaction inserts", func() {
			err := s.InTx(ctx, func(ctx context.Context, tx assignment.Tx) error {
				id, err := tx.InsertRatingAssignment(ctx, model.NewRatingAssignment{JudgeID: 1, SubmissionID: 2, Priority: 1})
				So(err, ShouldBeNil)

				Convey("Then it reads its own write", func() {
					p, err := tx.MaxPriority(ctx, 1)
					So(err, ShouldBeNil)
					So(p, ShouldEqual, 1)

					pending, ok, err := tx.PendingAssignment(ctx, 1)
					So(err, ShouldBeNil)
					So(ok, ShouldBeTrue)
					So(pending.ID, ShouldEqual, id)
					So(pending.Rating.SubmissionID, ShouldEqual, 2)

					hist, err := tx.RatingHistory(ctx, 1)
					So(err, ShouldBeNil)
					So(hist, ShouldHaveLength, 1)
					So(hist[0].Location, ShouldEqual, 2)
					So(hist[0].Active, ShouldBeTrue)
					So(hist[0].SubmissionKnown, ShouldBeTrue)
				})
				return nil
			})
			So(err, ShouldBeNil)

			Convey("Then the assignment is committed as a pending rating", func() {
				got, err := s.JudgeAssignments(ctx, 1)
				So(err, ShouldBeNil)
				So(got, ShouldHaveLength, 1)
				So(got[0].Type, ShouldEqual, model.AssignmentTypeRating)
				So(got[0].Active, ShouldBeTrue)
				So(got[0].Priority, ShouldEqual, 1)
				So(got[0].Rating.AssignmentID, ShouldEqual, got[0].ID)
				So(got[0].Rating.Rating, ShouldBeNil)
			})

			Convey("Then reusing the priority conflicts", func() {
				_, err := insert(ctx, s, model.NewRatingAssignment{JudgeID: 1, SubmissionID: 3, Priority: 1})
				So(errors.Is(err, repository.ErrConflict), ShouldBeTrue)
			})

			Convey("Then reassigning the submission conflicts", func() {
				_, err := insert(ctx, s, model.NewRatingAssignment{JudgeID: 1, SubmissionID: 2, Priority: 2})
				So(errors.Is(err, repository.ErrConflict), ShouldBeTrue)
			})
		})

		Convey("When inserting for a missing judge or submission", func() {
			_, errJudge := insert(ctx, s, model.NewRatingAssignment{JudgeID: 9, SubmissionID: 1, Priority: 1})
			_, errSub := insert(ctx, s, model.NewRatingAssignment{JudgeID: 1, SubmissionID: 9, Priority: 1})

			Convey("Then both are not found and nothing is written", func() {
				So(errors.Is(errJudge, repository.ErrNotFound), ShouldBeTrue)
				So(errors.Is(errSub, repository.ErrNotFound), ShouldBeTrue)
				st, err := s.Stats(ctx)
				So(err, ShouldBeNil)
				So(st.Assignments, ShouldEqual, 0)
			})
		})

		Convey("When the context is already cancelled", func() {
			cctx, cancel := context.WithCancel(ctx)
			cancel()
			called := false
			err := s.InTx(cctx, func(context.Context, assignment.Tx) error {
				called = true
				return nil
			})

			Convey("Then the callback never runs", func() {
				So(errors.Is(err, context.Canceled), ShouldBeTrue)
				So(called, ShouldBeFalse)
			})
		})
	})
}

func runCompletion(t *testing.T, open Opener) {
	Convey("Given a pending assignment", t, func() {
		ctx := context.Background()
		s := open(t)
		Reset(func() { _ = s.Close() })
		seed(ctx, s, []int64{1}, model.Submission{ID: 5, Location: 4, Active: true})
		id, err := insert(ctx, s, model.NewRatingAssignment{JudgeID: 1, SubmissionID: 5, Priority: 1})
		So(err, ShouldBeNil)

		Convey("When it is rated", func() {
			d, err := s.CompleteRating(ctx, id, model.RatingOutcome{Rating: intPtr(8)})

			Convey("Then it is completed and counted", func() {
				So(err, ShouldBeNil)
				So(d.Active, ShouldBeFalse)
				So(*d.Rating.Rating, ShouldEqual, 8)

				stored, err := s.Assignment(ctx, id)
				So(err, ShouldBeNil)
				So(stored.Active, ShouldBeFalse)
				So(*stored.Rating.Rating, ShouldEqual, 8)

				err = s.InTx(ctx, func(ctx context.Context, tx assignment.Tx) error {
					n, err := tx.CompletedRatingCount(ctx, 5)
					So(err, ShouldBeNil)
					So(n, ShouldEqual, 1)

					_, ok, err := tx.PendingAssignment(ctx, 1)
					So(err, ShouldBeNil)
					So(ok, ShouldBeFalse)
					return nil
				})
				So(err, ShouldBeNil)
			})

			Convey("Then completing it again fails", func() {
				_, err := s.CompleteRating(ctx, id, model.RatingOutcome{NoShow: true})
				So(errors.Is(err, repository.ErrAlreadyCompleted), ShouldBeTrue)
			})
		})

		Convey("When it is a no-show", func() {
			d, err := s.CompleteRating(ctx, id, model.RatingOutcome{NoShow: true})

			Convey("Then it is completed without a rating", func() {
				So(err, ShouldBeNil)
				So(d.Rating.NoShow, ShouldBeTrue)
				So(d.Rating.Rating, ShouldBeNil)
				So(d.Active, ShouldBeFalse)
			})
		})

		Convey("When the outcome is invalid or the assignment unknown", func() {
			_, errInvalid := s.CompleteRating(ctx, id, model.RatingOutcome{Rating: intPtr(11)})
			_, errBoth := s.CompleteRating(ctx, id, model.RatingOutcome{Rating: intPtr(3), NoShow: true})
			_, errMissing := s.CompleteRating(ctx, id+100, model.RatingOutcome{NoShow: true})

			Convey("Then each is reported by kind", func() {
				So(errors.Is(errInvalid, repository.ErrInvalidInput), ShouldBeTrue)
				So(errors.Is(errInvalid, model.ErrInvalidOutcome), ShouldBeTrue)
				So(errors.Is(errBoth, repository.ErrInvalidInput), ShouldBeTrue)
				So(errors.Is(errMissing, repository.ErrNotFound), ShouldBeTrue)
			})
		})
	})
}

func runReadModel(t *testing.T, open Opener) {
	Convey("Given ratings across two judges", t, func() {
		ctx := context.Background()
		s := open(t)
		Reset(func() { _ = s.Close() })
		seed(ctx, s, []int64{1, 2},
			model.Submission{ID: 1, Location: 1, Active: true},
			model.Submission{ID: 2, Location: 2, Active: true},
			model.Submission{ID: 3, Location: 3, Active: false},
		)
		a1, err := insert(ctx, s, model.NewRatingAssignment{JudgeID: 1, SubmissionID: 1, Priority: 1})
		So(err, ShouldBeNil)
		_, err = insert(ctx, s, model.NewRatingAssignment{JudgeID: 1, SubmissionID: 2, Priority: 2})
		So(err, ShouldBeNil)
		a3, err := insert(ctx, s, model.NewRatingAssignment{JudgeID: 2, SubmissionID: 1, Priority: 1})
		So(err, ShouldBeNil)
		_, err = s.CompleteRating(ctx, a1, model.RatingOutcome{Rating: intPtr(6)})
		So(err, ShouldBeNil)
		_, err = s.CompleteRating(ctx, a3, model.RatingOutcome{NoShow: true})
		So(err, ShouldBeNil)

		Convey("Then coverage counts completed and pending ratings per submission", func() {
			cov, err := s.Coverage(ctx)
			So(err, ShouldBeNil)
			So(cov, ShouldHaveLength, 3)
			So(cov[0].Submission.ID, ShouldEqual, 1)
			So(cov[0].CompletedRatings, ShouldEqual, 2)
			So(cov[0].PendingRatings, ShouldEqual, 0)
			So(cov[1].CompletedRatings, ShouldEqual, 0)
			So(cov[1].PendingRatings, ShouldEqual, 1)
			So(cov[2].Submission.Active, ShouldBeFalse)
		})

		Convey("Then stats summarise the store", func() {
			st, err := s.Stats(ctx)
			So(err, ShouldBeNil)
			So(st, ShouldResemble, repository.Stats{
				Submissions:        3,
				ActiveSubmissions:  2,
				Judges:             2,
				Assignments:        3,
				PendingAssignments: 1,
			})
		})

		Convey("Then judge history is in priority order", func() {
			got, err := s.JudgeAssignments(ctx, 1)
			So(err, ShouldBeNil)
			So(got, ShouldHaveLength, 2)
			So(got[0].Priority, ShouldEqual, 1)
			So(got[0].Active, ShouldBeFalse)
			So(got[1].Priority, ShouldEqual, 2)

			_, err = s.JudgeAssignments(ctx, 42)
			So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)

			_, err = s.Assignment(ctx, 999)
			So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
		})
	})
}

func runEngine(t *testing.T, open Opener) {
	Convey("Given an engine over the store", t, func() {
		ctx := context.Background()
		s := open(t)
		Reset(func() { _ = s.Close() })

		Convey("When three judges race for five submissions", func() {
			seed(ctx, s, []int64{1, 2, 3},
				model.Submission{ID: 1, Location: 1, Active: true},
				model.Submission{ID: 2, Location: 2, Active: true},
				model.Submission{ID: 3, Location: 3, Active: true},
				model.Submission{ID: 4, Location: 4, Active: true},
				model.Submission{ID: 5, Location: 5, Active: true},
				model.Submission{ID: 6, Location: 6, Active: false},
			)
			engine := assignment.NewEngine(s, assignment.WithSelector(scoring.NewEngine(scoring.WithSeed(11))))

			g, gctx := errgroup.WithContext(ctx)
			g.SetLimit(8)
			for judge := int64(1); judge <= 3; judge++ {
				for range 8 {
					g.Go(func() error {
						_, err := engine.CreateAssignment(gctx, judge)
						if err != nil && !errors.Is(err, assignment.ErrNoEligibleSubmission) {
							return err
						}
						return nil
					})
				}
			}
			So(g.Wait(), ShouldBeNil)

			Convey("Then each judge saw every active submission once with priorities 1..5", func() {
				for judge := int64(1); judge <= 3; judge++ {
					got, err := s.JudgeAssignments(ctx, judge)
					So(err, ShouldBeNil)
					So(got, ShouldHaveLength, 5)

					seen := map[int64]bool{}
					for i, d := range got {
						So(d.Priority, ShouldEqual, i+1)
						So(seen[d.Rating.SubmissionID], ShouldBeFalse)
						So(d.Rating.SubmissionID, ShouldNotEqual, 6)
						seen[d.Rating.SubmissionID] = true
					}
				}
			})
		})

		Convey("When J1 has no history or anchor and S3 is inactive", func() {
			seed(ctx, s, []int64{1},
				model.Submission{ID: 1, Location: 1, Active: true},
				model.Submission{ID: 2, Location: 5, Active: true},
				model.Submission{ID: 3, Location: 9, Active: false},
			)
			engine := assignment.NewEngine(s)

			out, err := engine.NextAssignment(ctx, 1)

			Convey("Then S1 or S2 is assigned at priority 1", func() {
				So(err, ShouldBeNil)
				So(out.Created, ShouldBeTrue)
				So(out.Priority, ShouldEqual, 1)
				So(out.SubmissionID, ShouldBeIn, []int64{1, 2})

				d, err := s.Assignment(ctx, out.AssignmentID)
				So(err, ShouldBeNil)
				So(d.Rating.SubmissionID, ShouldEqual, out.SubmissionID)
			})
		})
	})
}
