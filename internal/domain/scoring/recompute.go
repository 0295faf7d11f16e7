package scoring

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/okian/rampart/internal/domain/model"
	"github.com/okian/rampart/internal/domain/sla"
	"github.com/okian/rampart/pkg/logger"
	"github.com/okian/rampart/pkg/metrics"
)

// ScoreStore is the persistence the Recomputer reads checks from and writes
// materialized round totals to.
type ScoreStore interface {
	LastRoundNumber(ctx context.Context) (int, error)
	TeamServices(ctx context.Context, teamID int64) ([]model.Service, error)
	// ChecksInRange returns every check of the team's services for rounds in [first, last].
	ChecksInRange(ctx context.Context, teamID int64, first, last int) ([]model.Check, error)
	// ScoreAt returns the materialized total of a round and whether one exists.
	ScoreAt(ctx context.Context, teamID int64, round int) (int, bool, error)
	SaveScores(ctx context.Context, teamID int64, totals []model.RoundTotal) error
}

// Recomputer replays a team's checks into per-round cumulative totals.
// Recomputations of the same team are serialized; different teams run in parallel.
type Recomputer struct {
	store  ScoreStore
	locks  *teamLocks
	window int
	log    logger.Logger
}

// NewRecomputer creates a Recomputer backed by store.
func NewRecomputer(store ScoreStore, opts ...Option) *Recomputer {
	r := &Recomputer{
		store:  store,
		locks:  newTeamLocks(),
		window: defaultRoundWindow,
		log:    logger.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type checkKey struct {
	round     int
	serviceID int64
}

// RecomputeTeamScore rebuilds the team's cumulative score for rounds first..last
// and persists one total per round.
//
// first is clamped to 1 and last to the latest round. An empty range returns no
// totals. When first > 1 the running total is seeded from the stored score of
// round first-1; if that score is missing the call fails with
// ErrPreconditionFailed rather than seeding from zero. A passing, completed
// check adds the service's points scaled by the round multiplier; anything
// else adds nothing.
func (r *Recomputer) RecomputeTeamScore(ctx context.Context, teamID int64, first, last int, s sla.Snapshot) ([]model.RoundTotal, error) {
	start := time.Now()
	totals, err := r.recompute(ctx, teamID, first, last, s)
	latency := float64(time.Since(start).Milliseconds())
	switch {
	case err == nil:
		metrics.RecordRecompute("ok", latency)
		metrics.RecordRoundsRecomputed(len(totals))
	case errors.Is(err, ErrPreconditionFailed):
		metrics.RecordRecompute("precondition", latency)
		metrics.RecordErrorByComponent("recompute", "precondition")
	default:
		metrics.RecordRecompute("error", latency)
		metrics.RecordErrorByComponent("recompute", "store")
	}
	return totals, err
}

func (r *Recomputer) recompute(ctx context.Context, teamID int64, first, last int, s sla.Snapshot) ([]model.RoundTotal, error) {
	unlock := r.locks.lock(teamID)
	defer unlock()

	latest, err := r.store.LastRoundNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("latest round: %w", err)
	}
	first = max(first, 1)
	last = min(last, latest)
	if first > last {
		return []model.RoundTotal{}, nil
	}

	running := 0
	if first > 1 {
		seed, ok, err := r.store.ScoreAt(ctx, teamID, first-1)
		if err != nil {
			return nil, fmt.Errorf("seed score for team %d round %d: %w", teamID, first-1, err)
		}
		if !ok {
			return nil, fmt.Errorf("%w: team %d has no score for round %d", ErrPreconditionFailed, teamID, first-1)
		}
		running = seed
	}

	services, err := r.store.TeamServices(ctx, teamID)
	if err != nil {
		return nil, fmt.Errorf("services of team %d: %w", teamID, err)
	}

	totals := make([]model.RoundTotal, 0, last-first+1)
	for lo := first; lo <= last; lo += r.window {
		hi := min(lo+r.window-1, last)
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		checks, err := r.store.ChecksInRange(ctx, teamID, lo, hi)
		if err != nil {
			return nil, fmt.Errorf("checks of team %d rounds %d-%d: %w", teamID, lo, hi, err)
		}
		passed := make(map[checkKey]bool, len(checks))
		for _, c := range checks {
			if c.Passed() {
				passed[checkKey{round: c.RoundNumber, serviceID: c.ServiceID}] = true
			}
		}

		for round := lo; round <= hi; round++ {
			for _, svc := range services {
				if passed[checkKey{round: round, serviceID: svc.ID}] {
					running += sla.ScaledPoints(round, svc.Points, s)
				}
			}
			totals = append(totals, model.RoundTotal{Round: round, Score: running})
		}
	}

	if err := r.store.SaveScores(ctx, teamID, totals); err != nil {
		return nil, fmt.Errorf("save scores of team %d: %w", teamID, err)
	}
	r.log.Debug(ctx, "team score recomputed",
		logger.Int64("team_id", teamID),
		logger.Int("first_round", first),
		logger.Int("last_round", last),
		logger.Int("total", running))
	return totals, nil
}

// RecomputeTeams replays every listed team from round 1 to the latest round.
// A failing team does not stop the others; all failures are joined.
func (r *Recomputer) RecomputeTeams(ctx context.Context, teamIDs []int64, s sla.Snapshot) error {
	var errs []error
	for _, id := range teamIDs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := r.RecomputeTeamScore(ctx, id, 1, math.MaxInt, s); err != nil {
			r.log.Error(ctx, "team recompute failed", logger.Int64("team_id", id), logger.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
