package scoring_test

import (
	"context"
	"errors"
	"testing"

	"github.com/okian/rampart/internal/adapters/repository"
	"github.com/okian/rampart/internal/domain/model"
	"github.com/okian/rampart/internal/domain/scoring"
	"github.com/okian/rampart/internal/domain/sla"
	. "github.com/smartystreets/goconvey/convey"
)

func slaSnapshot() sla.Snapshot {
	s := dynamicSnapshot()
	s.SLAEnabled = true
	s.PenaltyMode = sla.ModeAdditive
	return s
}

func TestServiceStatus(t *testing.T) {
	Convey("Given a service that passed five early rounds then failed five", t, func() {
		ctx := context.Background()
		c := newCompetition(100)
		c.repeat(5, pass())
		c.repeat(5, fail())
		agg := scoring.NewAggregator(c.store)

		Convey("When SLA penalties are enabled", func() {
			st, err := agg.ServiceStatus(ctx, c.services[0], slaSnapshot())

			Convey("Then ten percent of the dynamic base is deducted", func() {
				So(err, ShouldBeNil)
				So(st.ServiceName, ShouldEqual, "web")
				So(st.ConsecutiveFailures, ShouldEqual, 5)
				So(st.PenaltyThreshold, ShouldEqual, 5)
				So(st.PenaltyPercent, ShouldEqual, 10)
				So(st.BaseScore, ShouldEqual, 1000)
				So(st.PenaltyPoints, ShouldEqual, 100)
				So(st.AdjustedScore, ShouldEqual, 900)
				So(st.SLAViolation, ShouldBeTrue)
			})
		})

		Convey("When SLA penalties are disabled", func() {
			s := slaSnapshot()
			s.SLAEnabled = false
			st, err := agg.ServiceStatus(ctx, c.services[0], s)

			Convey("Then nothing is deducted but the violation is still reported", func() {
				So(err, ShouldBeNil)
				So(st.PenaltyPercent, ShouldEqual, 0)
				So(st.AdjustedScore, ShouldEqual, 1000)
				So(st.SLAViolation, ShouldBeTrue)
			})
		})
	})

	Convey("Given a service with no checks", t, func() {
		c := newCompetition(100)
		agg := scoring.NewAggregator(c.store)
		st, err := agg.ServiceStatus(context.Background(), c.services[0], slaSnapshot())

		Convey("Then everything is zero", func() {
			So(err, ShouldBeNil)
			So(st.ConsecutiveFailures, ShouldEqual, 0)
			So(st.BaseScore, ShouldEqual, 0)
			So(st.AdjustedScore, ShouldEqual, 0)
			So(st.SLAViolation, ShouldBeFalse)
		})
	})
}

func TestTeamSummary(t *testing.T) {
	Convey("Given a team with one healthy and one failing service", t, func() {
		ctx := context.Background()
		c := newCompetition(100, 100)
		c.repeat(4, pass(), pass())
		c.repeat(8, pass(), fail())
		agg := scoring.NewAggregator(c.store)
		s := slaSnapshot()
		s.DynamicEnabled = false

		summary, err := agg.TeamSummary(ctx, c.team.ID, s)

		Convey("Then penalties are computed per service and never pooled", func() {
			So(err, ShouldBeNil)
			So(summary.TeamName, ShouldEqual, "Blue Team")
			So(summary.SLAEnabled, ShouldBeTrue)
			So(summary.TotalServices, ShouldEqual, 2)
			So(summary.ServicesWithViolations, ShouldEqual, 1)

			healthy, failing := summary.Services[0], summary.Services[1]
			So(healthy.BaseScore, ShouldEqual, 1200)
			So(healthy.PenaltyPoints, ShouldEqual, 0)
			// 8 failures at threshold 5: (8-5+1)*10 = 40% of 400.
			So(failing.BaseScore, ShouldEqual, 400)
			So(failing.PenaltyPercent, ShouldEqual, 40)
			So(failing.PenaltyPoints, ShouldEqual, 160)
			So(failing.AdjustedScore, ShouldEqual, 240)

			So(summary.BaseScore, ShouldEqual, 1600)
			So(summary.TotalPenalties, ShouldEqual, 160)
			So(summary.AdjustedScore, ShouldEqual, 1440)
		})

		Convey("And an unknown team is reported as not found", func() {
			_, err := agg.TeamSummary(ctx, 4242, s)
			So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
		})
	})
}

func TestSummaries(t *testing.T) {
	Convey("Given blue and red teams", t, func() {
		ctx := context.Background()
		c := newCompetition(10)
		_, _ = c.store.AddTeam(ctx, model.Team{Name: "Red Team", Color: model.ColorRed})
		second, _ := c.store.AddTeam(ctx, model.Team{Name: "Blue Team 2", Color: model.ColorBlue})
		c.repeat(3, pass())

		summaries, err := scoring.NewAggregator(c.store).Summaries(ctx, slaSnapshot())

		Convey("Then only defenders are summarized", func() {
			So(err, ShouldBeNil)
			So(len(summaries), ShouldEqual, 2)
			So(summaries[0].TeamID, ShouldEqual, c.team.ID)
			So(summaries[0].BaseScore, ShouldEqual, 60)
			So(summaries[1].TeamID, ShouldEqual, second.ID)
			So(summaries[1].TotalServices, ShouldEqual, 0)
			So(summaries[1].Services, ShouldBeEmpty)
		})
	})
}
