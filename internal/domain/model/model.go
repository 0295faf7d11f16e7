// Package model contains domain models passed between layers.
package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// TeamColor classifies a team's role in the competition.
type TeamColor string

// Team colors. Only blue teams defend services and accumulate service score.
const (
	ColorBlue  TeamColor = "Blue"
	ColorRed   TeamColor = "Red"
	ColorWhite TeamColor = "White"
)

// IsDefender reports whether the color denotes a defending (blue) team.
func (c TeamColor) IsDefender() bool {
	return strings.EqualFold(string(c), string(ColorBlue))
}

// Team owns zero or more services.
type Team struct {
	ID    int64
	Name  string
	Color TeamColor
}

// Round is one discrete scoring epoch.
type Round struct {
	ID     int64
	Number int
	Start  time.Time
	End    time.Time
}

// Service is a team-owned target that is health-checked once per round.
type Service struct {
	ID        int64
	TeamID    int64
	Name      string // unique per team
	CheckName string // probe type, e.g. "HTTPCheck"
	Points    int    // value of one successful check
}

// Check is the outcome of probing one service during one round.
// RoundNumber is denormalized from the referenced round for convenience.
type Check struct {
	ID          int64
	ServiceID   int64
	RoundID     int64
	RoundNumber int
	Result      bool
	Completed   bool
}

// Passed reports whether the check counts toward the service's score.
func (c Check) Passed() bool {
	return c.Completed && c.Result
}

// CheckResult is a completed check reduced to what streak analysis needs.
type CheckResult struct {
	Round  int
	Result bool
}

// RoundTotal is a team's cumulative score as of the end of a round.
type RoundTotal struct {
	Round int `json:"round"`
	Score int `json:"score"`
}

// RecomputeJob asks for a team's scores to be replayed from FromRound to the latest round.
type RecomputeJob struct {
	ID        string
	TeamID    int64
	FromRound int
	Requested time.Time
}

// NewRecomputeJob builds a job with a fresh identifier.
func NewRecomputeJob(teamID int64, fromRound int) RecomputeJob {
	return RecomputeJob{
		ID:        uuid.NewString(),
		TeamID:    teamID,
		FromRound: fromRound,
		Requested: time.Now().UTC(),
	}
}
