package scoring

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/rampart/internal/domain/model"
	"github.com/okian/rampart/internal/domain/sla"
	"github.com/okian/rampart/internal/domain/types"
	"github.com/okian/rampart/pkg/metrics"
)

// TeamReader is the read side the Aggregator needs.
type TeamReader interface {
	HistoryReader
	Team(ctx context.Context, id int64) (model.Team, error)
	BlueTeams(ctx context.Context) ([]model.Team, error)
	TeamServices(ctx context.Context, teamID int64) ([]model.Service, error)
}

// Aggregator produces the externally visible SLA figures for services and teams.
type Aggregator struct {
	store TeamReader
}

// NewAggregator creates an Aggregator over store.
func NewAggregator(store TeamReader) *Aggregator {
	return &Aggregator{store: store}
}

// BaseScore sums the multiplier-scaled points of every passing check in history.
func BaseScore(history []model.CheckResult, points int, s sla.Snapshot) int {
	total := 0
	for _, c := range history {
		if c.Result {
			total += sla.ScaledPoints(c.Round, points, s)
		}
	}
	return total
}

// ServiceStatus reports a service's streak, penalty and scores. The penalty is
// derived from this service's own streak only.
func (a *Aggregator) ServiceStatus(ctx context.Context, svc model.Service, s sla.Snapshot) (types.ServiceStatus, error) {
	history, err := a.store.CompletedHistory(ctx, svc.ID)
	if err != nil {
		return types.ServiceStatus{}, fmt.Errorf("history of service %d: %w", svc.ID, err)
	}
	return statusOf(svc, history, s), nil
}

func statusOf(svc model.Service, history []model.CheckResult, s sla.Snapshot) types.ServiceStatus {
	failures := ConsecutiveFailures(history)
	base := BaseScore(history, svc.Points, s)
	pct := sla.PenaltyPercent(failures, s)
	return types.ServiceStatus{
		ServiceID:           svc.ID,
		ServiceName:         svc.Name,
		ConsecutiveFailures: failures,
		PenaltyThreshold:    s.PenaltyThreshold,
		PenaltyPercent:      pct,
		PenaltyPoints:       sla.PenaltyPoints(base, pct),
		BaseScore:           base,
		AdjustedScore:       sla.AdjustedScore(base, pct, s),
		SLAViolation:        sla.Violation(failures, s),
	}
}

// TeamSummary aggregates every service of a team. The team's adjusted score is
// the sum of the per-service adjusted scores.
func (a *Aggregator) TeamSummary(ctx context.Context, teamID int64, s sla.Snapshot) (types.TeamSummary, error) {
	team, err := a.store.Team(ctx, teamID)
	if err != nil {
		return types.TeamSummary{}, fmt.Errorf("team %d: %w", teamID, err)
	}
	return a.summarize(ctx, team, s)
}

// Summaries returns a summary for every blue team, in store order.
func (a *Aggregator) Summaries(ctx context.Context, s sla.Snapshot) ([]types.TeamSummary, error) {
	start := time.Now()
	teams, err := a.store.BlueTeams(ctx)
	if err != nil {
		return nil, fmt.Errorf("blue teams: %w", err)
	}
	out := make([]types.TeamSummary, 0, len(teams))
	violations := 0
	for _, t := range teams {
		summary, err := a.summarize(ctx, t, s)
		if err != nil {
			return nil, err
		}
		violations += summary.ServicesWithViolations
		out = append(out, summary)
	}
	metrics.UpdateBlueTeams(len(teams))
	metrics.UpdateSLAViolations(violations)
	metrics.RecordSummaryLatency(float64(time.Since(start).Milliseconds()))
	return out, nil
}

func (a *Aggregator) summarize(ctx context.Context, team model.Team, s sla.Snapshot) (types.TeamSummary, error) {
	services, err := a.store.TeamServices(ctx, team.ID)
	if err != nil {
		return types.TeamSummary{}, fmt.Errorf("services of team %d: %w", team.ID, err)
	}
	summary := types.TeamSummary{
		TeamID:        team.ID,
		TeamName:      team.Name,
		SLAEnabled:    s.SLAEnabled,
		TotalServices: len(services),
		Services:      make([]types.ServiceStatus, 0, len(services)),
	}
	for _, svc := range services {
		st, err := a.ServiceStatus(ctx, svc, s)
		if err != nil {
			return types.TeamSummary{}, err
		}
		summary.BaseScore += st.BaseScore
		summary.TotalPenalties += st.PenaltyPoints
		summary.AdjustedScore += st.AdjustedScore
		if st.SLAViolation {
			summary.ServicesWithViolations++
		}
		summary.Services = append(summary.Services, st)
	}
	return summary, nil
}
