package venue_test

import (
	"testing"

	"github.com/okian/gavel/internal/domain/model"
	"github.com/okian/gavel/internal/domain/venue"
	. "github.com/smartystreets/goconvey/convey"
)

func subsAt(locations ...int) []model.Submission {
	out := make([]model.Submission, len(locations))
	for i, loc := range locations {
		out[i] = model.Submission{ID: int64(i + 1), Location: loc, Active: true}
	}
	return out
}

func TestForwardDistances(t *testing.T) {
	Convey("Given an empty venue", t, func() {
		Convey("Then every mode returns an empty map", func() {
			So(venue.ForwardDistances(nil, 3, venue.ModeFromReference), ShouldBeEmpty)
			So(venue.ForwardDistances(nil, 3, venue.ModeLocationChanges), ShouldBeEmpty)
		})
	})

	Convey("Given a venue with locations 1, 2 and 3", t, func() {
		subs := subsAt(1, 2, 3)

		Convey("When walking from location 3", func() {
			d := venue.ForwardDistances(subs, 3, venue.ModeFromReference)

			Convey("Then location 1 is reached by wrapping", func() {
				So(d[3], ShouldEqual, 0)
				So(d[1], ShouldEqual, 1)
				So(d[2], ShouldEqual, 2)
			})
		})

		Convey("When walking from location 1", func() {
			d := venue.ForwardDistances(subs, 1, venue.ModeFromReference)

			Convey("Then distances grow in location order", func() {
				So(d[1], ShouldEqual, 0)
				So(d[2], ShouldEqual, 1)
				So(d[3], ShouldEqual, 2)
			})
		})

		Convey("When walking from a location past the highest table", func() {
			d := venue.ForwardDistances(subs, 9, venue.ModeFromReference)

			Convey("Then the walk wraps to the lowest location", func() {
				So(d[1], ShouldEqual, 1)
				So(d[2], ShouldEqual, 2)
				So(d[3], ShouldEqual, 3)
			})
		})

		Convey("When walking from a location between tables", func() {
			d := venue.ForwardDistances(subsAt(10, 20, 30), 15, venue.ModeFromReference)

			Convey("Then the next table up is the first stop", func() {
				So(d[2], ShouldEqual, 1)
				So(d[3], ShouldEqual, 2)
				So(d[1], ShouldEqual, 3)
			})
		})
	})

	Convey("Given submissions sharing locations", t, func() {
		// IDs 1..5 at locations 1, 2, 2, 3, 1
		subs := subsAt(1, 2, 2, 3, 1)

		Convey("When distance is measured from the reference", func() {
			d := venue.ForwardDistances(subs, 1, venue.ModeFromReference)

			Convey("Then every submission passed away from the reference counts", func() {
				So(d[1], ShouldEqual, 0)
				So(d[5], ShouldEqual, 0)
				So(d[2], ShouldEqual, 1)
				So(d[3], ShouldEqual, 2)
				So(d[4], ShouldEqual, 3)
			})
		})

		Convey("When distance counts location changes", func() {
			d := venue.ForwardDistances(subs, 1, venue.ModeLocationChanges)

			Convey("Then tables at the same location share a distance", func() {
				So(d[1], ShouldEqual, 0)
				So(d[5], ShouldEqual, 0)
				So(d[2], ShouldEqual, 1)
				So(d[3], ShouldEqual, 1)
				So(d[4], ShouldEqual, 2)
			})
		})
	})

	Convey("Given every submission at the same location", t, func() {
		subs := subsAt(4, 4, 4)

		Convey("Then all distances are zero from that location", func() {
			d := venue.ForwardDistances(subs, 4, venue.ModeFromReference)
			So(d, ShouldResemble, map[int64]int{1: 0, 2: 0, 3: 0})
		})
	})

	Convey("Given an unsorted input slice", t, func() {
		subs := subsAt(3, 1, 2)

		Convey("When computing distances", func() {
			_ = venue.ForwardDistances(subs, 1, venue.ModeFromReference)

			Convey("Then the caller's slice keeps its order", func() {
				So(subs[0].Location, ShouldEqual, 3)
				So(subs[1].Location, ShouldEqual, 1)
				So(subs[2].Location, ShouldEqual, 2)
			})
		})
	})
}

func TestParseMode(t *testing.T) {
	Convey("Given distance mode names", t, func() {
		m, err := venue.ParseMode("")
		So(err, ShouldBeNil)
		So(m, ShouldEqual, venue.ModeFromReference)

		m, err = venue.ParseMode(" Changes ")
		So(err, ShouldBeNil)
		So(m, ShouldEqual, venue.ModeLocationChanges)
		So(m.String(), ShouldEqual, "changes")

		_, err = venue.ParseMode("diagonal")
		So(err, ShouldNotBeNil)
	})
}
