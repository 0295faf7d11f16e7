package scoring_test

import (
	"context"
	"testing"

	"github.com/okian/rampart/internal/domain/model"
	"github.com/okian/rampart/internal/domain/scoring"
	. "github.com/smartystreets/goconvey/convey"
)

func history(results ...bool) []model.CheckResult {
	out := make([]model.CheckResult, len(results))
	for i, r := range results {
		out[i] = model.CheckResult{Round: i + 1, Result: r}
	}
	return out
}

func TestConsecutiveFailures(t *testing.T) {
	Convey("Given a service's check history", t, func() {
		Convey("When there are no checks", func() {
			Convey("Then both streaks are zero", func() {
				So(scoring.ConsecutiveFailures(nil), ShouldEqual, 0)
				So(scoring.MaxConsecutiveFailures(nil), ShouldEqual, 0)
			})
		})

		Convey("When the latest check passed", func() {
			h := history(false, false, false, true)

			Convey("Then the current streak is zero but the longest run is kept", func() {
				So(scoring.ConsecutiveFailures(h), ShouldEqual, 0)
				So(scoring.MaxConsecutiveFailures(h), ShouldEqual, 3)
			})
		})

		Convey("When the history ends in failures", func() {
			h := history(true, false, true, false, false)

			Convey("Then only the trailing failures count", func() {
				So(scoring.ConsecutiveFailures(h), ShouldEqual, 2)
				So(scoring.MaxConsecutiveFailures(h), ShouldEqual, 2)
			})
		})

		Convey("When every check failed", func() {
			h := history(false, false, false, false, false, false, false)

			Convey("Then the streak equals the history length", func() {
				So(scoring.ConsecutiveFailures(h), ShouldEqual, 7)
				So(scoring.MaxConsecutiveFailures(h), ShouldEqual, 7)
			})
		})
	})
}

func TestAnalyzer(t *testing.T) {
	Convey("Given a store with recorded checks", t, func() {
		ctx := context.Background()
		c := newCompetition(100)
		c.round(pass())
		c.round(fail())
		c.round(fail())
		c.round(pass())
		c.round(fail())
		analyzer := scoring.NewAnalyzer(c.store)

		Convey("Then the analyzer reads the completed history", func() {
			cur, err := analyzer.ConsecutiveFailures(ctx, c.services[0].ID)
			So(err, ShouldBeNil)
			So(cur, ShouldEqual, 1)

			longest, err := analyzer.MaxConsecutiveFailures(ctx, c.services[0].ID)
			So(err, ShouldBeNil)
			So(longest, ShouldEqual, 2)
		})

		Convey("And an unknown service has no streak", func() {
			cur, err := analyzer.ConsecutiveFailures(ctx, 9999)
			So(err, ShouldBeNil)
			So(cur, ShouldEqual, 0)
		})
	})
}
