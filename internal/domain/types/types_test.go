package types_test

import (
	"testing"

	"github.com/okian/gavel/internal/domain/assignment"
	"github.com/okian/gavel/internal/domain/model"
	"github.com/okian/gavel/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

func TestAssignmentShapes(t *testing.T) {
	Convey("Given an engine outcome", t, func() {
		out := assignment.Outcome{AssignmentID: 7, SubmissionID: 3, Priority: 2, Created: true}

		Convey("FromOutcome reports a pending rating assignment", func() {
			r := types.FromOutcome(11, out, true)
			So(r.AssignmentID, ShouldEqual, 7)
			So(r.JudgeID, ShouldEqual, 11)
			So(r.SubmissionID, ShouldEqual, 3)
			So(r.Priority, ShouldEqual, 2)
			So(r.Type, ShouldEqual, "rating")
			So(r.Active, ShouldBeTrue)
			So(r.Created, ShouldBeTrue)
			So(r.Replayed, ShouldBeTrue)
		})
	})

	Convey("Given stored assignments", t, func() {
		rating := 8
		ds := []model.AssignmentDetail{
			{
				Assignment: model.Assignment{ID: 1, JudgeID: 2, Priority: 1, Type: model.AssignmentTypeRating},
				Rating:     model.RatingAssignment{ID: 1, AssignmentID: 1, SubmissionID: 5, Rating: &rating},
			},
			{
				Assignment: model.Assignment{ID: 2, JudgeID: 2, Priority: 2, Type: model.AssignmentTypeRating, Active: true},
				Rating:     model.RatingAssignment{ID: 2, AssignmentID: 2, SubmissionID: 6},
			},
		}

		Convey("FromDetails keeps order and completion data", func() {
			got := types.FromDetails(ds)
			So(got, ShouldHaveLength, 2)
			So(got[0].Active, ShouldBeFalse)
			So(*got[0].Rating, ShouldEqual, 8)
			So(got[1].Active, ShouldBeTrue)
			So(got[1].Rating, ShouldBeNil)
			So(got[1].SubmissionID, ShouldEqual, 6)
		})

		Convey("FromDetails of nothing is an empty list", func() {
			So(types.FromDetails(nil), ShouldNotBeNil)
			So(types.FromDetails(nil), ShouldBeEmpty)
		})
	})
}

func TestIntakeShapes(t *testing.T) {
	Convey("A submission body without active is active", t, func() {
		s := types.Submission{Name: "hack", TrackID: 2, Location: 4}.Model(9)
		So(s, ShouldResemble, model.Submission{ID: 9, Name: "hack", TrackID: 2, Location: 4, Active: true})
	})

	Convey("A submission body can deactivate", t, func() {
		off := false
		s := types.Submission{Location: 1, Active: &off}.Model(1)
		So(s.Active, ShouldBeFalse)
	})

	Convey("A judge body keeps its anchor", t, func() {
		a := 3
		j := types.Judge{Name: "ada", Anchor: &a}.Model(4)
		So(j.ID, ShouldEqual, 4)
		So(j.AnchorOrUnknown(), ShouldEqual, 3)
	})

	Convey("A rating body converts to an outcome", t, func() {
		So(types.Rating{NoShow: true}.Outcome().Validate(), ShouldBeNil)
		So(types.Rating{}.Outcome().Validate(), ShouldNotBeNil)
	})
}

func TestCoverageShape(t *testing.T) {
	Convey("Under-rated follows the threshold", t, func() {
		rows := []model.SubmissionCoverage{
			{Submission: model.Submission{ID: 1}, CompletedRatings: 1},
			{Submission: model.Submission{ID: 2}, CompletedRatings: 2, PendingRatings: 1},
		}
		got := types.FromCoverage(rows, 2)
		So(got[0].UnderRated, ShouldBeTrue)
		So(got[1].UnderRated, ShouldBeFalse)
		So(got[1].PendingRatings, ShouldEqual, 1)
	})
}
