// Package service wires the scoring core to its store, settings and the
// background recompute pipeline, and exposes the operations the HTTP API needs.
package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	recomputequeue "github.com/okian/rampart/internal/adapters/mq/queue"
	workerpool "github.com/okian/rampart/internal/adapters/mq/worker"
	"github.com/okian/rampart/internal/adapters/repository"
	"github.com/okian/rampart/internal/adapters/settings"
	"github.com/okian/rampart/internal/domain/dedupe"
	"github.com/okian/rampart/internal/domain/model"
	"github.com/okian/rampart/internal/domain/scoring"
	"github.com/okian/rampart/internal/domain/sla"
	"github.com/okian/rampart/internal/domain/types"
	"github.com/okian/rampart/pkg/logger"
	"github.com/okian/rampart/pkg/metrics"
)

// KeyTeamsToUpdate holds a comma-separated list of team ids whose scores must
// be replayed from the first round.
const KeyTeamsToUpdate = "teams_to_update"

// Service implements the API dependencies for the scoring core.
type Service struct {
	mu sync.RWMutex

	store      repository.Store
	settings   *settings.Provider
	analyzer   *scoring.Analyzer
	recomputer *scoring.Recomputer
	aggregator *scoring.Aggregator
	pending    dedupe.Deduper
	queue      *recomputequeue.InMemoryQueue
	pool       *workerpool.Pool

	workerCount int
	queueSize   int
	dedupeSize  int
	roundWindow int

	started bool
	logger  logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of recompute workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the capacity of the recompute queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize bounds how many pending recompute requests are tracked.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithRoundWindow bounds how many rounds of checks one store query loads.
func WithRoundWindow(rounds int) Option {
	return func(s *Service) {
		if rounds > 0 {
			s.roundWindow = rounds
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a Service over store and provider. Reads work immediately;
// asynchronous recomputes need Start.
func New(store repository.Store, provider *settings.Provider, opts ...Option) *Service {
	s := &Service{
		store:       store,
		settings:    provider,
		workerCount: runtime.NumCPU(),
		queueSize:   1024,
		dedupeSize:  50000,
		logger:      logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	var ropts []scoring.Option
	ropts = append(ropts, scoring.WithLogger(s.logger.Named("recompute")))
	if s.roundWindow > 0 {
		ropts = append(ropts, scoring.WithRoundWindow(s.roundWindow))
	}
	s.analyzer = scoring.NewAnalyzer(store)
	s.recomputer = scoring.NewRecomputer(store, ropts...)
	s.aggregator = scoring.NewAggregator(store)
	s.pending = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	return s
}

// Start launches the recompute queue and worker pool. The pipeline outlives
// ctx and runs until Stop.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	s.logger.Info(ctx, "starting scoring service...")

	s.queue = recomputequeue.NewInMemoryQueue(recomputequeue.WithCapacity(s.queueSize))
	s.pool = workerpool.NewPool(s.workerCount, s.queue,
		workerpool.HandlerFunc(s.handle),
		workerpool.WithLogger(s.logger.Named("worker")))
	s.pool.Start(ctx)

	s.started = true
	s.logger.Info(ctx, "scoring service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
		logger.Int("dedupeSize", s.dedupeSize),
	)
	return nil
}

// Stop closes the queue and waits for queued recomputes to finish. Requests
// still pending when it returns are forgotten so a restarted pipeline accepts
// them again.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.logger.Info(ctx, "stopping scoring service...")

	err := s.pool.Shutdown(ctx)
	s.pending.Reset(ctx)
	s.started = false
	if err != nil {
		s.logger.Warn(ctx, "scoring service stopped with pending work", logger.Error(err))
		return err
	}
	s.logger.Info(ctx, "scoring service stopped")
	return nil
}

// Snapshot loads the current scoring configuration.
func (s *Service) Snapshot(ctx context.Context) (sla.Snapshot, error) {
	return s.settings.Snapshot(ctx)
}

// SLAConfig returns the penalty half of the current configuration.
func (s *Service) SLAConfig(ctx context.Context) (types.SLAConfig, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return types.SLAConfig{}, err
	}
	return types.SLAConfig{
		SLAEnabled:        snap.SLAEnabled,
		PenaltyThreshold:  snap.PenaltyThreshold,
		PenaltyPercent:    snap.PenaltyPercent,
		PenaltyMaxPercent: snap.PenaltyMaxPercent,
		PenaltyMode:       snap.PenaltyMode.String(),
		AllowNegative:     snap.AllowNegative,
	}, nil
}

// TeamSummary returns the SLA view of one team.
func (s *Service) TeamSummary(ctx context.Context, teamID int64) (types.TeamSummary, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return types.TeamSummary{}, err
	}
	return s.aggregator.TeamSummary(ctx, teamID, snap)
}

// Summaries returns the SLA overview of every blue team.
func (s *Service) Summaries(ctx context.Context) (types.SLAOverview, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return types.SLAOverview{}, err
	}
	teams, err := s.aggregator.Summaries(ctx, snap)
	if err != nil {
		return types.SLAOverview{}, err
	}
	return types.SLAOverview{
		SLAEnabled:       snap.SLAEnabled,
		PenaltyThreshold: snap.PenaltyThreshold,
		PenaltyMode:      snap.PenaltyMode.String(),
		Teams:            teams,
	}, nil
}

// ServiceStatus returns the SLA view of one of a team's services.
func (s *Service) ServiceStatus(ctx context.Context, teamID, serviceID int64) (types.ServiceStatus, error) {
	services, err := s.store.TeamServices(ctx, teamID)
	if err != nil {
		return types.ServiceStatus{}, err
	}
	for _, svc := range services {
		if svc.ID != serviceID {
			continue
		}
		snap, err := s.Snapshot(ctx)
		if err != nil {
			return types.ServiceStatus{}, err
		}
		return s.aggregator.ServiceStatus(ctx, svc, snap)
	}
	return types.ServiceStatus{}, fmt.Errorf("service %d of team %d: %w", serviceID, teamID, repository.ErrNotFound)
}

// ConsecutiveFailures returns the current failure streak of a service.
func (s *Service) ConsecutiveFailures(ctx context.Context, serviceID int64) (int, error) {
	return s.analyzer.ConsecutiveFailures(ctx, serviceID)
}

// DynamicScoring describes the multiplier phases and where the latest round falls.
func (s *Service) DynamicScoring(ctx context.Context) (types.DynamicScoringInfo, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return types.DynamicScoringInfo{}, err
	}
	last, err := s.store.LastRoundNumber(ctx)
	if err != nil {
		return types.DynamicScoringInfo{}, err
	}
	if last < 1 {
		return sla.DynamicInfo(snap), nil
	}
	return sla.DescribeRound(last, snap), nil
}

// UpdateSetting validates and stores a scoring setting. Multiplier settings
// change historical round values, so every blue team is queued for a full
// replay when the pipeline is running.
func (s *Service) UpdateSetting(ctx context.Context, name, value string) error {
	if err := s.settings.Set(ctx, name, value); err != nil {
		return err
	}
	if !strings.HasPrefix(name, "dynamic_scoring_") {
		return nil
	}
	return s.ReplayAll(ctx, name)
}

// ReplayAll queues a full replay of every blue team. Teams that cannot be
// queued, because the pipeline is stopped or the queue is full, are added to
// teams_to_update so the next startup replays them.
func (s *Service) ReplayAll(ctx context.Context, reason string) error {
	teams, err := s.store.BlueTeams(ctx)
	if err != nil {
		return fmt.Errorf("list teams for replay: %w", err)
	}
	var failed []int64
	var errs []error
	for _, t := range teams {
		if _, _, err := s.RequestRecompute(ctx, t.ID, 1); err != nil {
			failed = append(failed, t.ID)
			if !errors.Is(err, ErrNotStarted) {
				errs = append(errs, err)
			}
		}
	}
	if len(failed) == 0 {
		return nil
	}

	s.logger.Warn(ctx, "replay not queued for every team; scores are stale until they are recomputed",
		logger.String("reason", reason),
		logger.Any("team_ids", failed),
		logger.Error(errors.Join(errs...)))
	if err := s.markForUpdate(ctx, failed); err != nil {
		return fmt.Errorf("record %d unqueued teams: %w", len(failed), errors.Join(append(errs, err)...))
	}
	return nil
}

// markForUpdate merges ids into the teams_to_update list.
func (s *Service) markForUpdate(ctx context.Context, ids []int64) error {
	raw, _, err := s.settings.Raw(ctx, KeyTeamsToUpdate)
	if err != nil {
		return err
	}
	seen := make(map[int64]bool, len(ids))
	parts := make([]string, 0, len(ids)+1)
	listed, err := ParseTeamList(raw)
	if err != nil {
		// keep a malformed list as is; RecomputeQueuedTeams reports it
		parts = append(parts, strings.TrimSpace(raw))
		listed = nil
	}
	for _, id := range append(listed, ids...) {
		if seen[id] {
			continue
		}
		seen[id] = true
		parts = append(parts, strconv.FormatInt(id, 10))
	}
	return s.settings.SetRaw(ctx, KeyTeamsToUpdate, strings.Join(parts, ","))
}

// RequestRecompute queues a replay of the team from fromRound. A request
// identical to one still waiting in the queue is coalesced into it and
// reported with coalesced set.
func (s *Service) RequestRecompute(ctx context.Context, teamID int64, fromRound int) (job model.RecomputeJob, coalesced bool, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.started {
		return model.RecomputeJob{}, false, ErrNotStarted
	}
	if _, err := s.store.Team(ctx, teamID); err != nil {
		return model.RecomputeJob{}, false, err
	}

	fromRound = max(fromRound, 1)
	key := dedupe.Key(teamID, fromRound)
	if s.pending.SeenAndRecord(ctx, key) {
		metrics.RecordQueueCoalesced()
		return model.RecomputeJob{TeamID: teamID, FromRound: fromRound}, true, nil
	}

	job = model.NewRecomputeJob(teamID, fromRound)
	if err := s.queue.Enqueue(ctx, job); err != nil {
		s.pending.Unrecord(ctx, key)
		return model.RecomputeJob{}, false, fmt.Errorf("queue recompute for team %d: %w", teamID, err)
	}
	s.logger.Debug(ctx, "recompute queued",
		logger.String("job_id", job.ID),
		logger.Int64("team_id", teamID),
		logger.Int("from_round", fromRound))
	return job, false, nil
}

// handle runs one queued job. The pending key is released before the replay
// starts so a request arriving mid-run is queued again rather than lost.
func (s *Service) handle(ctx context.Context, job model.RecomputeJob) error {
	s.pending.Unrecord(ctx, dedupe.Key(job.TeamID, job.FromRound))

	snap, err := s.Snapshot(ctx)
	if err != nil {
		return err
	}
	_, err = s.recomputer.RecomputeTeamScore(ctx, job.TeamID, job.FromRound, math.MaxInt, snap)
	return err
}

// RecomputeNow replays the team's rounds first..last synchronously.
func (s *Service) RecomputeNow(ctx context.Context, teamID int64, first, last int) ([]model.RoundTotal, error) {
	if _, err := s.store.Team(ctx, teamID); err != nil {
		return nil, err
	}
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return s.recomputer.RecomputeTeamScore(ctx, teamID, first, last, snap)
}

// RecomputeQueuedTeams replays every team listed under teams_to_update from the
// first round and clears the list once all of them succeed.
func (s *Service) RecomputeQueuedTeams(ctx context.Context) ([]int64, error) {
	raw, ok, err := s.settings.Raw(ctx, KeyTeamsToUpdate)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	ids, err := ParseTeamList(raw)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	snap, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.recomputer.RecomputeTeams(ctx, ids, snap); err != nil {
		return nil, err
	}
	if err := s.settings.SetRaw(ctx, KeyTeamsToUpdate, ""); err != nil {
		return ids, fmt.Errorf("clear %s: %w", KeyTeamsToUpdate, err)
	}
	return ids, nil
}

// ParseTeamList parses a comma-separated list of team ids. Blank entries are
// ignored.
func ParseTeamList(raw string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidTeams, part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// TeamScores returns the materialized per-round totals of a team.
func (s *Service) TeamScores(ctx context.Context, teamID int64) ([]model.RoundTotal, error) {
	if _, err := s.store.Team(ctx, teamID); err != nil {
		return nil, err
	}
	start := time.Now()
	totals, err := s.store.TeamScores(ctx, teamID)
	metrics.RecordRepositoryQueryLatency(float64(time.Since(start).Milliseconds()))
	return totals, err
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats(ctx context.Context) map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]any{
		"started":         s.started,
		"workerCount":     s.workerCount,
		"queueSize":       s.queueSize,
		"pendingRequests": s.pending.Size(),
	}

	if s.started {
		stats["queueLength"] = s.queue.Len(ctx)
	}
	if counts, err := s.store.Counts(ctx); err == nil {
		stats["teams"] = counts.Teams
		stats["services"] = counts.Services
		stats["rounds"] = counts.Rounds
		stats["checks"] = counts.Checks
	} else {
		s.logger.Warn(ctx, "stats: store counts failed", logger.Error(err))
	}
	if last, err := s.store.LastRoundNumber(ctx); err == nil {
		stats["lastRound"] = last
	}
	return stats
}
