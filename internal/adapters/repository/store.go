// Package repository persists teams, services, rounds, checks and the
// materialized per-round team scores.
package repository

import (
	"context"

	"github.com/okian/rampart/internal/domain/model"
)

// Counts summarizes how much data the store holds.
type Counts struct {
	Teams    int `json:"teams"`
	Services int `json:"services"`
	Rounds   int `json:"rounds"`
	Checks   int `json:"checks"`
}

// Store provides the append-only competition record and the score cache.
//
// Teams, services, rounds and checks are written by the check-execution side and
// never edited. Scores are a cache keyed by (team, round) that the recomputer
// overwrites idempotently.
type Store interface {
	AddTeam(ctx context.Context, team model.Team) (model.Team, error)
	AddService(ctx context.Context, svc model.Service) (model.Service, error)
	AddRound(ctx context.Context, round model.Round) (model.Round, error)
	// RecordCheck stores the outcome of one probe. A second check for the same
	// service and round returns ErrDuplicateCheck.
	RecordCheck(ctx context.Context, check model.Check) (model.Check, error)

	// Team returns ErrNotFound for an unknown id.
	Team(ctx context.Context, id int64) (model.Team, error)
	Teams(ctx context.Context) ([]model.Team, error)
	BlueTeams(ctx context.Context) ([]model.Team, error)
	TeamServices(ctx context.Context, teamID int64) ([]model.Service, error)
	// LastRoundNumber returns 0 before the first round.
	LastRoundNumber(ctx context.Context) (int, error)
	// CompletedHistory returns the service's completed checks ordered by round.
	CompletedHistory(ctx context.Context, serviceID int64) ([]model.CheckResult, error)
	ChecksInRange(ctx context.Context, teamID int64, first, last int) ([]model.Check, error)

	ScoreAt(ctx context.Context, teamID int64, round int) (int, bool, error)
	SaveScores(ctx context.Context, teamID int64, totals []model.RoundTotal) error
	TeamScores(ctx context.Context, teamID int64) ([]model.RoundTotal, error)

	Counts(ctx context.Context) (Counts, error)
}
