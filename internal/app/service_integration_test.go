package service_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/rampart/internal/adapters/repository"
	"github.com/okian/rampart/internal/adapters/settings"
	service "github.com/okian/rampart/internal/app"
	"github.com/okian/rampart/internal/domain/model"
	"github.com/okian/rampart/internal/domain/sla"
	"github.com/okian/rampart/internal/simulate"
	"github.com/okian/rampart/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

// waitForScores polls until the team has a stored total for round want.
func waitForScores(ctx context.Context, svc *service.Service, teamID int64, want int) []model.RoundTotal {
	deadline := time.Now().Add(5 * time.Second)
	for {
		totals, err := svc.TeamScores(ctx, teamID)
		if err == nil && len(totals) > 0 && totals[len(totals)-1].Round == want {
			return totals
		}
		if time.Now().After(deadline) {
			return totals
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestServiceIntegration(t *testing.T) {
	Convey("Given a service over sqlite", t, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		db, dialect, err := repository.Open(ctx, "sqlite", ":memory:")
		So(err, ShouldBeNil)
		defer db.Close()

		store, err := repository.NewSQLStore(ctx, db, repository.WithDialect(dialect), repository.WithLogger(logger.Nop()))
		So(err, ShouldBeNil)
		source, err := settings.NewSQLSource(ctx, db, dialect)
		So(err, ShouldBeNil)

		res, err := simulate.Generate(ctx, store, flawless, logger.Nop())
		So(err, ShouldBeNil)

		svc := service.New(store, settings.NewProvider(source), service.WithWorkerCount(2), service.WithLogger(logger.Nop()))
		So(svc.Start(ctx), ShouldBeNil)
		defer func() { _ = svc.Stop(ctx) }()

		Convey("An async recompute materializes every round", func() {
			job, coalesced, err := svc.RequestRecompute(ctx, res.BlueTeams[0], 0)
			So(err, ShouldBeNil)
			So(coalesced, ShouldBeFalse)
			So(job.ID, ShouldNotBeEmpty)
			So(job.FromRound, ShouldEqual, 1)

			totals := waitForScores(ctx, svc, res.BlueTeams[0], 10)
			So(totals, ShouldHaveLength, 10)
			So(totals[9].Score, ShouldEqual, 1500)
		})

		Convey("Turning on dynamic scoring replays every blue team", func() {
			So(svc.UpdateSetting(ctx, sla.KeyEarlyRounds, "2"), ShouldBeNil)
			So(svc.UpdateSetting(ctx, sla.KeyLateStartRound, "9"), ShouldBeNil)
			So(svc.UpdateSetting(ctx, sla.KeyDynamicEnabled, "true"), ShouldBeNil)

			// rounds 1-2 at 2x, 3-8 at 1x, 9-10 at 0.5x over 150 points a round
			want := 2*300 + 6*150 + 2*75
			for _, id := range res.BlueTeams {
				deadline := time.Now().Add(5 * time.Second)
				var totals []model.RoundTotal
				for time.Now().Before(deadline) {
					totals, _ = svc.TeamScores(ctx, id)
					if len(totals) == 10 && totals[9].Score == want {
						break
					}
					time.Sleep(10 * time.Millisecond)
				}
				So(totals, ShouldHaveLength, 10)
				So(totals[9].Score, ShouldEqual, want)
			}

			history, err := source.History(ctx, sla.KeyDynamicEnabled)
			So(err, ShouldBeNil)
			So(history, ShouldHaveLength, 1)
		})

		Convey("Unknown teams are refused", func() {
			_, _, err := svc.RequestRecompute(ctx, 9999, 1)
			So(err, ShouldNotBeNil)
		})
	})
}

// gatedStore blocks the first LastRoundNumber call until released, which holds
// the only worker inside its first job.
type gatedStore struct {
	*repository.MemoryStore
	gated   atomic.Bool
	entered chan struct{}
	release chan struct{}
}

func (g *gatedStore) LastRoundNumber(ctx context.Context) (int, error) {
	if g.gated.CompareAndSwap(true, false) {
		close(g.entered)
		<-g.release
	}
	return g.MemoryStore.LastRoundNumber(ctx)
}

func TestServiceCoalescing(t *testing.T) {
	Convey("Given a single busy worker", t, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		mem := repository.NewMemoryStore()
		res, err := simulate.Generate(ctx, mem, flawless, logger.Nop())
		So(err, ShouldBeNil)
		store := &gatedStore{MemoryStore: mem, entered: make(chan struct{}), release: make(chan struct{})}
		store.gated.Store(true)

		svc := service.New(store, settings.NewProvider(settings.NewMemorySource(nil)),
			service.WithWorkerCount(1), service.WithLogger(logger.Nop()))
		So(svc.Start(ctx), ShouldBeNil)

		team := res.BlueTeams[0]
		_, coalesced, err := svc.RequestRecompute(ctx, team, 1)
		So(err, ShouldBeNil)
		So(coalesced, ShouldBeFalse)
		<-store.entered

		Convey("A request made while the first runs is queued once", func() {
			_, coalesced, err := svc.RequestRecompute(ctx, team, 1)
			So(err, ShouldBeNil)
			So(coalesced, ShouldBeFalse)

			_, coalesced, err = svc.RequestRecompute(ctx, team, 1)
			So(err, ShouldBeNil)
			So(coalesced, ShouldBeTrue)

			_, coalesced, err = svc.RequestRecompute(ctx, team, 4)
			So(err, ShouldBeNil)
			So(coalesced, ShouldBeFalse)
			So(svc.GetStats(ctx)["pendingRequests"], ShouldEqual, int64(2))

			close(store.release)
			So(svc.Stop(ctx), ShouldBeNil)
			So(svc.GetStats(ctx)["pendingRequests"], ShouldEqual, int64(0))

			totals, err := svc.TeamScores(ctx, team)
			So(err, ShouldBeNil)
			So(totals, ShouldHaveLength, 10)
		})
	})
}

func TestServiceOutlivesStartContext(t *testing.T) {
	Convey("Given a service started with a context that is then cancelled", t, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		store := repository.NewMemoryStore()
		res, err := simulate.Generate(ctx, store, flawless, logger.Nop())
		So(err, ShouldBeNil)
		svc := service.New(store, settings.NewProvider(settings.NewMemorySource(nil)),
			service.WithWorkerCount(1), service.WithLogger(logger.Nop()))

		startCtx, stopStart := context.WithCancel(ctx)
		So(svc.Start(startCtx), ShouldBeNil)
		stopStart()
		team := res.BlueTeams[0]

		Convey("Recomputes still run and release their pending key", func() {
			_, coalesced, err := svc.RequestRecompute(ctx, team, 1)
			So(err, ShouldBeNil)
			So(coalesced, ShouldBeFalse)

			totals := waitForScores(ctx, svc, team, 10)
			So(totals, ShouldHaveLength, 10)
			So(totals[9].Score, ShouldEqual, 1500)

			_, coalesced, err = svc.RequestRecompute(ctx, team, 1)
			So(err, ShouldBeNil)
			So(coalesced, ShouldBeFalse)

			So(svc.Stop(ctx), ShouldBeNil)
			So(svc.GetStats(ctx)["started"], ShouldEqual, false)
			So(svc.GetStats(ctx)["pendingRequests"], ShouldEqual, int64(0))
		})
	})
}

func TestServiceStopTimeout(t *testing.T) {
	Convey("Given a worker held inside a job and another job queued", t, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		mem := repository.NewMemoryStore()
		res, err := simulate.Generate(ctx, mem, flawless, logger.Nop())
		So(err, ShouldBeNil)
		store := &gatedStore{MemoryStore: mem, entered: make(chan struct{}), release: make(chan struct{})}
		store.gated.Store(true)

		svc := service.New(store, settings.NewProvider(settings.NewMemorySource(nil)),
			service.WithWorkerCount(1), service.WithLogger(logger.Nop()))
		So(svc.Start(ctx), ShouldBeNil)

		_, _, err = svc.RequestRecompute(ctx, res.BlueTeams[0], 1)
		So(err, ShouldBeNil)
		<-store.entered
		_, _, err = svc.RequestRecompute(ctx, res.BlueTeams[1], 1)
		So(err, ShouldBeNil)
		So(svc.GetStats(ctx)["pendingRequests"], ShouldEqual, int64(1))

		Convey("A Stop that runs out of time forgets the abandoned requests", func() {
			expired, cancelExpired := context.WithCancel(ctx)
			cancelExpired()
			So(svc.Stop(expired), ShouldNotBeNil)
			close(store.release)

			So(svc.GetStats(ctx)["started"], ShouldEqual, false)
			So(svc.GetStats(ctx)["pendingRequests"], ShouldEqual, int64(0))

			So(svc.Start(ctx), ShouldBeNil)
			_, coalesced, err := svc.RequestRecompute(ctx, res.BlueTeams[1], 1)
			So(err, ShouldBeNil)
			So(coalesced, ShouldBeFalse)
			So(svc.Stop(ctx), ShouldBeNil)
		})
	})
}

func TestServiceReplayWithFullQueue(t *testing.T) {
	Convey("Given a busy worker, a queue of one and more teams than the backlog holds", t, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		mem := repository.NewMemoryStore()
		cfg := flawless
		// one queued job plus the dispatcher hand-off and the worker buffer hold
		// far fewer than a hundred replays
		cfg.BlueTeams = 100
		res, err := simulate.Generate(ctx, mem, cfg, logger.Nop())
		So(err, ShouldBeNil)
		store := &gatedStore{MemoryStore: mem, entered: make(chan struct{}), release: make(chan struct{})}
		store.gated.Store(true)

		src := settings.NewMemorySource(nil)
		svc := service.New(store, settings.NewProvider(src),
			service.WithWorkerCount(1), service.WithQueueSize(1), service.WithLogger(logger.Nop()))
		So(svc.Start(ctx), ShouldBeNil)

		// occupy the worker with a replay from round 2 so every round-1 key is free
		_, _, err = svc.RequestRecompute(ctx, res.BlueTeams[0], 2)
		So(err, ShouldBeNil)
		<-store.entered

		Convey("A multiplier change is saved and the teams left out are listed", func() {
			So(svc.UpdateSetting(ctx, sla.KeyDynamicEnabled, "true"), ShouldBeNil)

			snap, err := svc.Snapshot(ctx)
			So(err, ShouldBeNil)
			So(snap.DynamicEnabled, ShouldBeTrue)

			raw, ok, err := src.Get(ctx, service.KeyTeamsToUpdate)
			So(err, ShouldBeNil)
			So(ok, ShouldBeTrue)
			listed, err := service.ParseTeamList(raw)
			So(err, ShouldBeNil)
			So(listed, ShouldNotBeEmpty)
			So(len(listed), ShouldBeLessThan, len(res.BlueTeams))

			close(store.release)
			So(svc.Stop(ctx), ShouldBeNil)

			replayed, err := svc.RecomputeQueuedTeams(ctx)
			So(err, ShouldBeNil)
			So(replayed, ShouldResemble, listed)
			for _, id := range res.BlueTeams {
				totals, err := svc.TeamScores(ctx, id)
				So(err, ShouldBeNil)
				So(totals, ShouldHaveLength, 10)
			}
		})
	})
}
