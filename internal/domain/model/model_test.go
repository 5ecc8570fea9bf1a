package model_test

import (
	"errors"
	"testing"

	model "github.com/okian/gavel/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

func intPtr(v int) *int { return &v }

func TestRatingOutcome_Validate(t *testing.T) {
	convey.Convey("Given rating outcomes", t, func() {
		convey.Convey("When a rating inside bounds is reported", func() {
			err := model.RatingOutcome{Rating: intPtr(7)}.Validate()

			convey.Convey("Then it should be accepted", func() {
				convey.So(err, convey.ShouldBeNil)
			})
		})

		convey.Convey("When only no-show is reported", func() {
			err := model.RatingOutcome{NoShow: true}.Validate()

			convey.Convey("Then it should be accepted", func() {
				convey.So(err, convey.ShouldBeNil)
			})
		})

		convey.Convey("When both rating and no-show are reported", func() {
			err := model.RatingOutcome{Rating: intPtr(3), NoShow: true}.Validate()

			convey.Convey("Then it should be rejected", func() {
				convey.So(errors.Is(err, model.ErrInvalidOutcome), convey.ShouldBeTrue)
				convey.So(err.Error(), convey.ShouldContainSubstring, "mutually exclusive")
			})
		})

		convey.Convey("When nothing is reported", func() {
			err := model.RatingOutcome{}.Validate()

			convey.Convey("Then it should be rejected", func() {
				convey.So(errors.Is(err, model.ErrInvalidOutcome), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When the rating is out of bounds", func() {
			low := model.RatingOutcome{Rating: intPtr(model.MinRating - 1)}.Validate()
			high := model.RatingOutcome{Rating: intPtr(model.MaxRating + 1)}.Validate()

			convey.Convey("Then both ends should be rejected", func() {
				convey.So(errors.Is(low, model.ErrInvalidOutcome), convey.ShouldBeTrue)
				convey.So(errors.Is(high, model.ErrInvalidOutcome), convey.ShouldBeTrue)
			})
		})
	})
}

func TestJudge_AnchorOrUnknown(t *testing.T) {
	convey.Convey("Given judges with and without anchors", t, func() {
		anchored := model.Judge{ID: 1, Anchor: intPtr(0)}
		floating := model.Judge{ID: 2}

		convey.Convey("Then a zero anchor is a real location", func() {
			convey.So(anchored.AnchorOrUnknown(), convey.ShouldEqual, 0)
		})

		convey.Convey("And a missing anchor is unknown", func() {
			convey.So(floating.AnchorOrUnknown(), convey.ShouldEqual, model.UnknownLocation)
		})
	})
}

func TestAssignmentType_String(t *testing.T) {
	convey.Convey("Given assignment types", t, func() {
		convey.So(model.AssignmentTypeRating.String(), convey.ShouldEqual, "rating")
		convey.So(model.AssignmentTypeRanking.String(), convey.ShouldEqual, "ranking")
		convey.So(model.AssignmentType(9).String(), convey.ShouldEqual, "unknown(9)")
	})
}
