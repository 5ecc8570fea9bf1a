package assignment

import (
	"context"
	"errors"
	"testing"

	"github.com/okian/gavel/internal/domain/scoring"
	. "github.com/smartystreets/goconvey/convey"
	"golang.org/x/sync/errgroup"
)

func newTestEngine(store *fakeStore, seed int64) *Engine {
	return NewEngine(store,
		WithSelector(scoring.NewEngine(scoring.WithSeed(seed))),
		WithStoreLabel("fake"),
	)
}

func TestCreateAssignment(t *testing.T) {
	Convey("Given a judge and a venue", t, func() {
		ctx := context.Background()
		store := newFakeStore()
		store.addJudge(1, nil)

		Convey("When the judge does not exist", func() {
			store.addSubmission(1, 1, true)
			_, err := newTestEngine(store, 1).CreateAssignment(ctx, 42)

			Convey("Then it fails as an unknown judge without writing", func() {
				So(errors.Is(err, ErrUnknownJudge), ShouldBeTrue)
				So(errors.Is(err, ErrInconsistentReference), ShouldBeTrue)
				So(store.writeCount(), ShouldEqual, 0)
			})
		})

		Convey("When there are no active submissions", func() {
			store.addSubmission(1, 1, false)
			_, err := newTestEngine(store, 1).CreateAssignment(ctx, 1)

			Convey("Then it reports no eligible submission and writes nothing", func() {
				So(errors.Is(err, ErrNoEligibleSubmission), ShouldBeTrue)
				So(store.writeCount(), ShouldEqual, 0)
			})
		})

		Convey("When the judge already has priorities 1 and 2", func() {
			store.addSubmission(1, 1, true)
			store.addSubmission(2, 2, true)
			store.addSubmission(3, 3, true)
			store.addRating(1, 1, 1, true)
			store.addRating(1, 2, 2, false)

			id, err := newTestEngine(store, 1).CreateAssignment(ctx, 1)

			Convey("Then the new assignment gets priority 3 and the only unseen submission", func() {
				So(err, ShouldBeNil)
				got := store.assignedTo(1)
				So(got, ShouldHaveLength, 3)
				So(got[2].ID, ShouldEqual, id)
				So(got[2].Priority, ShouldEqual, 3)
				So(got[2].Rating.SubmissionID, ShouldEqual, 3)
				So(got[2].Active, ShouldBeTrue)
			})
		})

		Convey("When the judge is assigned until nothing is left", func() {
			for id := int64(1); id <= 5; id++ {
				store.addSubmission(id, int(id), true)
			}
			store.addSubmission(6, 6, false)
			engine := newTestEngine(store, 7)

			var err error
			for i := 0; i < 10 && err == nil; i++ {
				_, err = engine.CreateAssignment(ctx, 1)
			}

			Convey("Then every active submission was assigned exactly once in priority order", func() {
				So(errors.Is(err, ErrNoEligibleSubmission), ShouldBeTrue)
				got := store.assignedTo(1)
				So(got, ShouldHaveLength, 5)

				seen := map[int64]bool{}
				for i, a := range got {
					So(a.Priority, ShouldEqual, i+1)
					So(seen[a.Rating.SubmissionID], ShouldBeFalse)
					So(a.Rating.SubmissionID, ShouldNotEqual, 6)
					seen[a.Rating.SubmissionID] = true
				}
			})
		})

		Convey("When an under-rated submission is far away and a well-rated one is next door", func() {
			store.addSubmission(1, 1, true)
			store.addSubmission(2, 2, true)
			store.addSubmission(3, 8, true)
			store.addJudge(2, nil)
			store.addJudge(3, nil)
			store.addRating(1, 1, 1, true)
			store.addRating(2, 2, 1, true)
			store.addRating(3, 2, 1, true)

			id, err := newTestEngine(store, 3).CreateAssignment(ctx, 1)

			Convey("Then coverage wins over locality", func() {
				So(err, ShouldBeNil)
				got := store.assignedTo(1)
				So(got[len(got)-1].ID, ShouldEqual, id)
				So(got[len(got)-1].Rating.SubmissionID, ShouldEqual, 3)
			})
		})

		Convey("When the judge last rated the highest location", func() {
			store.addSubmission(1, 1, true)
			store.addSubmission(2, 2, true)
			store.addSubmission(3, 3, true)
			store.addJudge(2, nil)
			store.addJudge(3, nil)
			store.addRating(1, 3, 1, true)
			for _, j := range []int64{2, 3} {
				store.addRating(j, 1, 1, true)
				store.addRating(j, 2, 2, true)
			}

			_, err := newTestEngine(store, 5).CreateAssignment(ctx, 1)

			Convey("Then the walk wraps around to location 1", func() {
				So(err, ShouldBeNil)
				got := store.assignedTo(1)
				So(got[1].Rating.SubmissionID, ShouldEqual, 1)
				So(got[1].Priority, ShouldEqual, 2)
			})
		})
	})
}

func TestCreateAssignmentFailures(t *testing.T) {
	ops := []string{
		"Judge", "ActiveSubmissions", "RatingHistory", "Submissions",
		"CompletedRatingCount", "MaxPriority", "InsertRatingAssignment",
	}

	Convey("Given a store that fails on one operation", t, func() {
		ctx := context.Background()

		for _, op := range ops {
			store := newFakeStore()
			store.addJudge(1, nil)
			store.addSubmission(1, 1, true)
			store.addSubmission(2, 2, true)
			store.failOn = op

			_, err := newTestEngine(store, 1).CreateAssignment(ctx, 1)

			Convey("Then a failing "+op+" surfaces as a persistence error without writes", func() {
				So(errors.Is(err, ErrPersistence), ShouldBeTrue)
				So(errors.Is(err, errInjected), ShouldBeTrue)
				So(store.writeCount(), ShouldEqual, 0)
			})
		}
	})

	Convey("Given history that references a missing submission", t, func() {
		store := newFakeStore()
		store.addJudge(1, nil)
		store.addSubmission(1, 1, true)
		store.addRating(1, 99, 1, true)

		_, err := newTestEngine(store, 1).CreateAssignment(context.Background(), 1)

		Convey("Then it is an inconsistent reference", func() {
			So(errors.Is(err, ErrInconsistentReference), ShouldBeTrue)
			So(errors.Is(err, ErrUnknownJudge), ShouldBeFalse)
			So(store.writeCount(), ShouldEqual, 0)
		})
	})
}

func TestNextAssignment(t *testing.T) {
	Convey("Given a judge with nothing pending", t, func() {
		ctx := context.Background()
		store := newFakeStore()
		store.addJudge(1, nil)
		store.addSubmission(1, 1, true)
		store.addSubmission(2, 2, true)
		engine := newTestEngine(store, 1)

		first, err := engine.NextAssignment(ctx, 1)
		So(err, ShouldBeNil)

		Convey("Then the first call creates an assignment", func() {
			So(first.Created, ShouldBeTrue)
			So(first.Priority, ShouldEqual, 1)
		})

		Convey("When asking again before rating", func() {
			second, err := engine.NextAssignment(ctx, 1)

			Convey("Then the pending assignment is returned unchanged", func() {
				So(err, ShouldBeNil)
				So(second.Created, ShouldBeFalse)
				So(second.AssignmentID, ShouldEqual, first.AssignmentID)
				So(second.SubmissionID, ShouldEqual, first.SubmissionID)
				So(store.writeCount(), ShouldEqual, 1)
			})
		})

		Convey("When the pending lookup fails", func() {
			store.failOn = "PendingAssignment"
			_, err := engine.NextAssignment(ctx, 1)

			Convey("Then it is a persistence error", func() {
				So(errors.Is(err, ErrPersistence), ShouldBeTrue)
			})
		})
	})
}

func TestConcurrentSinglePlausible(t *testing.T) {
	Convey("Given one plausible submission and many concurrent requests for one judge", t, func() {
		store := newFakeStore()
		store.addJudge(1, nil)
		store.addSubmission(1, 1, true)
		engine := newTestEngine(store, 1)

		results := make([]error, 8)
		g, ctx := errgroup.WithContext(context.Background())
		for i := range results {
			g.Go(func() error {
				_, results[i] = engine.CreateAssignment(ctx, 1)
				return nil
			})
		}
		So(g.Wait(), ShouldBeNil)

		Convey("Then exactly one succeeds and the rest find nothing eligible", func() {
			ok, none := 0, 0
			for _, err := range results {
				switch {
				case err == nil:
					ok++
				case errors.Is(err, ErrNoEligibleSubmission):
					none++
				}
			}
			So(ok, ShouldEqual, 1)
			So(none, ShouldEqual, 7)
			So(store.writeCount(), ShouldEqual, 1)
		})
	})
}

func TestEndToEndScenario(t *testing.T) {
	Convey("Given J1 with no history or anchor, S1@1 and S2@5 active, S3@9 inactive", t, func() {
		picked := map[int64]int{}

		for seed := int64(1); seed <= 40; seed++ {
			store := newFakeStore()
			store.addJudge(1, nil)
			store.addSubmission(1, 1, true)
			store.addSubmission(2, 5, true)
			store.addSubmission(3, 9, false)

			_, err := newTestEngine(store, seed).CreateAssignment(context.Background(), 1)
			So(err, ShouldBeNil)
			picked[store.assignedTo(1)[0].Rating.SubmissionID]++
		}

		Convey("Then S3 is never picked and the tie-break reaches both S1 and S2", func() {
			So(picked[3], ShouldEqual, 0)
			So(picked[1], ShouldBeGreaterThan, 0)
			So(picked[2], ShouldBeGreaterThan, 0)
		})
	})
}

func TestKind(t *testing.T) {
	Convey("Given assignment errors", t, func() {
		So(Kind(nil), ShouldEqual, "none")
		So(Kind(ErrNoEligibleSubmission), ShouldEqual, "no_eligible_submission")
		So(Kind(ErrUnknownJudge), ShouldEqual, "unknown_judge")
		So(Kind(ErrInconsistentReference), ShouldEqual, "inconsistent_reference")
		So(Kind(persistence("op", errInjected)), ShouldEqual, "persistence")
		So(Kind(errInjected), ShouldEqual, "other")
	})
}
