package scoring_test

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/okian/gavel/internal/domain/model"
	scoring "github.com/okian/gavel/internal/domain/scoring"
	"github.com/okian/gavel/internal/domain/venue"
	. "github.com/smartystreets/goconvey/convey"
)

// fixedRand replays a fixed sequence of values, cycling when exhausted.
type fixedRand struct {
	values []float64
	next   int
}

func (r *fixedRand) Float64() float64 {
	v := r.values[r.next%len(r.values)]
	r.next++
	return v
}

type coverageMap map[int64]int

func (c coverageMap) CompletedRatingCount(_ context.Context, id int64) (int, error) {
	return c[id], nil
}

type failingCoverage struct{ err error }

func (f failingCoverage) CompletedRatingCount(context.Context, int64) (int, error) {
	return 0, f.err
}

func venueAt(locations map[int64]int) []model.Submission {
	out := make([]model.Submission, 0, len(locations))
	for id, loc := range locations {
		out = append(out, model.Submission{ID: id, Location: loc, Active: true})
	}
	return out
}

func TestEngine_Select(t *testing.T) {
	ctx := context.Background()

	Convey("Given a scoring engine", t, func() {
		engine := scoring.NewEngine(scoring.WithSeed(7))

		Convey("When no candidates are plausible", func() {
			_, err := engine.Select(ctx, scoring.SelectInput{Coverage: coverageMap{}})

			Convey("Then it should report no candidates", func() {
				So(errors.Is(err, scoring.ErrNoCandidates), ShouldBeTrue)
			})
		})

		Convey("When the coverage counter fails", func() {
			boom := errors.New("disk on fire")
			_, err := engine.Select(ctx, scoring.SelectInput{
				Plausible: []int64{1},
				Reference: model.UnknownLocation,
				Coverage:  failingCoverage{err: boom},
			})

			Convey("Then the failure should propagate", func() {
				So(errors.Is(err, boom), ShouldBeTrue)
			})
		})

		Convey("When one candidate is under-rated and another is well rated", func() {
			subs := venueAt(map[int64]int{1: 1, 2: 2})
			cov := coverageMap{1: 0, 2: 5}

			Convey("Then the under-rated one always wins without locality", func() {
				for i := 0; i < 500; i++ {
					res, err := engine.Select(ctx, scoring.SelectInput{
						Plausible: []int64{2, 1},
						Reference: model.UnknownLocation,
						Venue:     subs,
						Coverage:  cov,
					})
					So(err, ShouldBeNil)
					So(res.Best.SubmissionID, ShouldEqual, 1)
					So(res.LocalityUsed, ShouldBeFalse)
				}
			})

			Convey("And it wins even when the well rated one is next door", func() {
				// Judge stands at 1; submission 2 is at distance 1.
				subs := venueAt(map[int64]int{1: 5, 2: 2, 3: 1})
				res, err := engine.Select(ctx, scoring.SelectInput{
					Plausible: []int64{1, 2},
					Reference: 1,
					Venue:     subs,
					Coverage:  cov,
				})
				So(err, ShouldBeNil)
				So(res.Best.SubmissionID, ShouldEqual, 1)
				So(res.Top[1].SubmissionID, ShouldEqual, 2)
				So(res.Top[1].LocalityBonus, ShouldEqual, 1.5)
			})
		})

		Convey("When the reference location is unknown", func() {
			res, err := engine.Select(ctx, scoring.SelectInput{
				Plausible: []int64{1, 2},
				Reference: model.UnknownLocation,
				Venue:     venueAt(map[int64]int{1: 1, 2: 2}),
				Coverage:  coverageMap{},
			})

			Convey("Then no locality bonus is applied", func() {
				So(err, ShouldBeNil)
				for _, c := range res.Top {
					So(c.LocalityBonus, ShouldEqual, 0)
					So(c.Distance, ShouldEqual, -1)
				}
			})
		})
	})

	Convey("Given candidates at forward distances 1, 2 and 3 with equal coverage", t, func() {
		// Judge at location 10; candidates 1, 2, 3 at 11, 12, 13.
		subs := venueAt(map[int64]int{9: 10, 1: 11, 2: 12, 3: 13})
		cov := coverageMap{1: 3, 2: 3, 3: 3}
		engine := scoring.NewEngine(scoring.WithRandSource(rand.New(rand.NewSource(99))))

		Convey("When selecting many times", func() {
			wins := map[int64]int{}
			for i := 0; i < 1000; i++ {
				res, err := engine.Select(ctx, scoring.SelectInput{
					Plausible: []int64{3, 2, 1},
					Reference: 10,
					Venue:     subs,
					Coverage:  cov,
				})
				So(err, ShouldBeNil)
				wins[res.Best.SubmissionID]++
				So(res.Top, ShouldHaveLength, 3)
				So(res.Top[0].Distance, ShouldEqual, 1)
				So(res.Top[1].Distance, ShouldEqual, 2)
				So(res.Top[2].Distance, ShouldEqual, 3)
			}

			Convey("Then the nearest stop is chosen most often", func() {
				So(wins[1], ShouldBeGreaterThan, wins[2])
				So(wins[2], ShouldBeGreaterThanOrEqualTo, wins[3])
			})
		})

		Convey("When only distances 2 and 3 remain", func() {
			wins := map[int64]int{}
			for i := 0; i < 1000; i++ {
				res, err := engine.Select(ctx, scoring.SelectInput{
					Plausible: []int64{3, 2},
					Reference: 10,
					Venue:     subs,
					Coverage:  cov,
				})
				So(err, ShouldBeNil)
				wins[res.Best.SubmissionID]++
			}

			Convey("Then distance 2 is chosen more often than distance 3", func() {
				So(wins[2], ShouldBeGreaterThan, wins[3])
			})
		})
	})

	Convey("Given equal candidates and a scripted random source", t, func() {
		engine := scoring.NewEngine(scoring.WithRandSource(&fixedRand{values: []float64{0.2, 0.9, 0.5}}))

		Convey("When selecting", func() {
			res, err := engine.Select(ctx, scoring.SelectInput{
				Plausible: []int64{10, 20, 30},
				Reference: model.UnknownLocation,
				Coverage:  coverageMap{},
			})

			Convey("Then the highest random draw breaks the tie", func() {
				So(err, ShouldBeNil)
				So(res.Best.SubmissionID, ShouldEqual, 20)
				So(res.Best.TieBreak, ShouldAlmostEqual, 0.0009, 1e-12)
				So(res.Best.CoverageBonus, ShouldEqual, 10)
				So(res.Considered, ShouldEqual, 3)
			})
		})
	})

	Convey("Given custom weights", t, func() {
		engine := scoring.NewEngine(
			scoring.WithRandSource(&fixedRand{values: []float64{0}}),
			scoring.WithLocalityBonuses([]float64{4}),
			scoring.WithCoverage(1, 2),
			scoring.WithDistanceMode(venue.ModeLocationChanges),
			scoring.WithTopN(1),
		)
		// Locations: judge at 1, candidates 1 and 2 share location 2.
		subs := venueAt(map[int64]int{5: 1, 1: 2, 2: 2, 3: 3})

		Convey("When scoring", func() {
			res, err := engine.Select(ctx, scoring.SelectInput{
				Plausible: []int64{1, 2, 3},
				Reference: 1,
				Venue:     subs,
				Coverage:  coverageMap{1: 1, 2: 0, 3: 0},
			})

			Convey("Then the custom bonuses apply and Top is trimmed", func() {
				So(err, ShouldBeNil)
				So(res.Best.SubmissionID, ShouldEqual, 2)
				So(res.Best.Score, ShouldEqual, 6)
				So(res.Top, ShouldHaveLength, 1)
			})
		})
	})
}
