package scoring_test

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/okian/rampart/internal/domain/model"
	"github.com/okian/rampart/internal/domain/scoring"
	"github.com/okian/rampart/internal/domain/sla"
	. "github.com/smartystreets/goconvey/convey"
)

func dynamicSnapshot() sla.Snapshot {
	s := sla.Defaults()
	s.DynamicEnabled = true
	return s
}

func scores(totals []model.RoundTotal) []int {
	out := make([]int, len(totals))
	for i, t := range totals {
		out[i] = t.Score
	}
	return out
}

func TestRecomputeTeamScore(t *testing.T) {
	Convey("Given a recomputer over a competition", t, func() {
		ctx := context.Background()
		c := newCompetition(100)
		r := scoring.NewRecomputer(c.store)
		s := dynamicSnapshot()

		Convey("When no rounds have been played", func() {
			totals, err := r.RecomputeTeamScore(ctx, c.team.ID, 1, 10, s)

			Convey("Then the result is empty", func() {
				So(err, ShouldBeNil)
				So(totals, ShouldBeEmpty)
			})
		})

		Convey("When the early phase doubles five passing checks and five failures follow", func() {
			c.repeat(5, pass())
			c.repeat(5, fail())
			totals, err := r.RecomputeTeamScore(ctx, c.team.ID, 1, 10, s)

			Convey("Then the running total grows by 200 per passing round", func() {
				So(err, ShouldBeNil)
				So(scores(totals), ShouldResemble, []int{200, 400, 600, 800, 1000, 1000, 1000, 1000, 1000, 1000})
				So(totals[9].Round, ShouldEqual, 10)
			})

			Convey("And the totals are persisted", func() {
				stored, err := c.store.TeamScores(ctx, c.team.ID)
				So(err, ShouldBeNil)
				So(stored, ShouldResemble, totals)
			})

			Convey("And recomputing again yields identical totals", func() {
				again, err := r.RecomputeTeamScore(ctx, c.team.ID, 1, 10, s)
				So(err, ShouldBeNil)
				So(again, ShouldResemble, totals)
			})

			Convey("And a partial recompute seeds from the previous round", func() {
				tail, err := r.RecomputeTeamScore(ctx, c.team.ID, 4, 10, s)
				So(err, ShouldBeNil)
				So(scores(tail), ShouldResemble, []int{800, 1000, 1000, 1000, 1000, 1000, 1000})
				So(tail, ShouldResemble, totals[3:])
			})

			Convey("And bounds outside the played rounds are clamped", func() {
				all, err := r.RecomputeTeamScore(ctx, c.team.ID, -3, math.MaxInt, s)
				So(err, ShouldBeNil)
				So(all, ShouldResemble, totals)
			})

			Convey("And an inverted range returns nothing", func() {
				none, err := r.RecomputeTeamScore(ctx, c.team.ID, 8, 3, s)
				So(err, ShouldBeNil)
				So(none, ShouldBeEmpty)
			})
		})

		Convey("When the seed round was never materialized", func() {
			c.repeat(6, pass())
			_, err := r.RecomputeTeamScore(ctx, c.team.ID, 4, 6, s)

			Convey("Then the recompute fails loudly", func() {
				So(errors.Is(err, scoring.ErrPreconditionFailed), ShouldBeTrue)
				stored, _ := c.store.TeamScores(ctx, c.team.ID)
				So(stored, ShouldBeEmpty)
			})
		})

		Convey("When checks are missing or incomplete", func() {
			c.round(pass())
			c.round(nil)
			c.round(pass())
			_, err := c.store.RecordCheck(ctx, model.Check{ServiceID: c.services[0].ID, RoundID: lastRoundID(ctx, c), Result: true, Completed: false})
			So(err, ShouldBeNil)
			c.rounds++
			totals, err := r.RecomputeTeamScore(ctx, c.team.ID, 1, 10, s)

			Convey("Then they contribute nothing", func() {
				So(err, ShouldBeNil)
				So(scores(totals), ShouldResemble, []int{200, 200, 400, 400})
			})
		})

		Convey("When rounds span every phase", func() {
			s.EarlyRounds, s.LateStartRound = 2, 4
			c.repeat(5, pass())
			totals, err := r.RecomputeTeamScore(ctx, c.team.ID, 1, 5, s)

			Convey("Then each round uses its own multiplier", func() {
				So(err, ShouldBeNil)
				So(scores(totals), ShouldResemble, []int{200, 400, 500, 550, 600})
			})
		})
	})
}

// lastRoundID adds a new round without checks and returns its id.
func lastRoundID(ctx context.Context, c *competition) int64 {
	r, _ := c.store.AddRound(ctx, model.Round{Number: c.rounds + 1})
	return r.ID
}

func TestRecomputeWindows(t *testing.T) {
	Convey("Given two recomputers with different query windows", t, func() {
		ctx := context.Background()
		c := newCompetition(10, 25, 40)
		for i := 0; i < 23; i++ {
			switch i % 3 {
			case 0:
				c.round(pass(), fail(), pass())
			case 1:
				c.round(fail(), pass(), nil)
			default:
				c.round(pass(), pass(), pass())
			}
		}
		s := dynamicSnapshot()
		s.EarlyRounds, s.LateStartRound, s.LateMultiplier = 5, 15, 0.3

		wide, err := scoring.NewRecomputer(c.store).RecomputeTeamScore(ctx, c.team.ID, 1, 23, s)
		So(err, ShouldBeNil)
		narrow, err := scoring.NewRecomputer(c.store, scoring.WithRoundWindow(4)).RecomputeTeamScore(ctx, c.team.ID, 1, 23, s)
		So(err, ShouldBeNil)

		Convey("Then the totals are identical", func() {
			So(len(narrow), ShouldEqual, 23)
			So(narrow, ShouldResemble, wide)
		})
	})
}

func TestRecomputeConcurrency(t *testing.T) {
	Convey("Given many concurrent recomputes of the same team", t, func() {
		ctx := context.Background()
		c := newCompetition(100, 50)
		c.repeat(30, pass(), fail())
		r := scoring.NewRecomputer(c.store)
		s := dynamicSnapshot()

		var wg sync.WaitGroup
		results := make([][]model.RoundTotal, 8)
		errs := make([]error, 8)
		for i := range results {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				results[i], errs[i] = r.RecomputeTeamScore(ctx, c.team.ID, 1, 30, s)
			}(i)
		}
		wg.Wait()

		Convey("Then every caller sees the same totals and the store holds them", func() {
			for i := range results {
				So(errs[i], ShouldBeNil)
				So(results[i], ShouldResemble, results[0])
			}
			stored, _ := c.store.TeamScores(ctx, c.team.ID)
			So(stored, ShouldResemble, results[0])
		})
	})
}

func TestRecomputeTeams(t *testing.T) {
	Convey("Given two blue teams", t, func() {
		ctx := context.Background()
		c := newCompetition(100)
		other, _ := c.store.AddTeam(ctx, model.Team{Name: "Blue Team 2", Color: model.ColorBlue})
		svc, _ := c.store.AddService(ctx, model.Service{TeamID: other.ID, Name: "web", Points: 30})
		for i := 1; i <= 3; i++ {
			rd, _ := c.store.AddRound(ctx, model.Round{Number: i})
			_, _ = c.store.RecordCheck(ctx, model.Check{ServiceID: c.services[0].ID, RoundID: rd.ID, Result: true, Completed: true})
			_, _ = c.store.RecordCheck(ctx, model.Check{ServiceID: svc.ID, RoundID: rd.ID, Result: i != 2, Completed: true})
		}
		r := scoring.NewRecomputer(c.store)

		Convey("When both are recomputed", func() {
			err := r.RecomputeTeams(ctx, []int64{c.team.ID, other.ID}, sla.Defaults())

			Convey("Then each team has its own totals", func() {
				So(err, ShouldBeNil)
				a, _ := c.store.TeamScores(ctx, c.team.ID)
				b, _ := c.store.TeamScores(ctx, other.ID)
				So(scores(a), ShouldResemble, []int{100, 200, 300})
				So(scores(b), ShouldResemble, []int{30, 30, 60})
			})
		})

		Convey("When the context is already cancelled", func() {
			cctx, cancel := context.WithCancel(ctx)
			cancel()
			err := r.RecomputeTeams(cctx, []int64{c.team.ID}, sla.Defaults())

			Convey("Then nothing is recomputed", func() {
				So(errors.Is(err, context.Canceled), ShouldBeTrue)
			})
		})
	})
}
