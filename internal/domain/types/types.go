// Package types contains the read shapes shared by the scoring core and the API layer.
package types

// ServiceStatus is the SLA view of a single service.
type ServiceStatus struct {
	ServiceID           int64  `json:"service_id"`
	ServiceName         string `json:"service_name"`
	ConsecutiveFailures int    `json:"consecutive_failures"`
	PenaltyThreshold    int    `json:"penalty_threshold"`
	PenaltyPercent      int    `json:"penalty_percent"`
	PenaltyPoints       int    `json:"penalty_points"`
	BaseScore           int    `json:"base_score"`
	AdjustedScore       int    `json:"adjusted_score"`
	SLAViolation        bool   `json:"sla_violation"`
}

// TeamSummary aggregates the SLA view of every service a team owns.
type TeamSummary struct {
	TeamID                 int64           `json:"team_id"`
	TeamName               string          `json:"team_name"`
	SLAEnabled             bool            `json:"sla_enabled"`
	BaseScore              int             `json:"base_score"`
	TotalPenalties         int             `json:"total_penalties"`
	AdjustedScore          int             `json:"adjusted_score"`
	ServicesWithViolations int             `json:"services_with_violations"`
	TotalServices          int             `json:"total_services"`
	Services               []ServiceStatus `json:"services"`
}

// Phase describes one named scoring phase for display.
type Phase struct {
	Name       string  `json:"name"`
	Rounds     string  `json:"rounds"`
	Multiplier float64 `json:"multiplier"`
}

// DynamicScoringInfo describes the configured multiplier phases.
type DynamicScoringInfo struct {
	Enabled          bool    `json:"enabled"`
	EarlyRounds      int     `json:"early_rounds"`
	EarlyMultiplier  float64 `json:"early_multiplier"`
	NormalMultiplier float64 `json:"normal_multiplier"`
	LateStartRound   int     `json:"late_start_round"`
	LateMultiplier   float64 `json:"late_multiplier"`
	Phases           []Phase `json:"phases"`

	// Populated only when describing a specific round.
	CurrentRound      int     `json:"current_round,omitempty"`
	CurrentMultiplier float64 `json:"current_multiplier,omitempty"`
	CurrentPhase      string  `json:"current_phase,omitempty"`
}

// SLAConfig is the externally visible penalty configuration.
type SLAConfig struct {
	SLAEnabled        bool   `json:"sla_enabled"`
	PenaltyThreshold  int    `json:"penalty_threshold"`
	PenaltyPercent    int    `json:"penalty_percent"`
	PenaltyMaxPercent int    `json:"penalty_max_percent"`
	PenaltyMode       string `json:"penalty_mode"`
	AllowNegative     bool   `json:"allow_negative"`
}

// SLAOverview is the response shape listing every defending team.
type SLAOverview struct {
	SLAEnabled       bool          `json:"sla_enabled"`
	PenaltyThreshold int           `json:"penalty_threshold"`
	PenaltyMode      string        `json:"penalty_mode"`
	Teams            []TeamSummary `json:"teams"`
}
