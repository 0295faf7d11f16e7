package simulate

import (
	"fmt"
	"time"
)

// Config describes the competition to generate.
type Config struct {
	BlueTeams       int           // defending teams
	RedTeams        int           // attacking teams; they own no services
	ServicesPerTeam int           // services per blue team, at most len(catalog)
	Rounds          int           // rounds to play
	Points          int           // points per successful check
	Seed            uint64        // PRNG seed; equal seeds give equal competitions
	FailureRate     float64       // chance a healthy service fails a single check
	OutageRate      float64       // chance a healthy service starts a multi-round outage
	MaxOutage       int           // longest outage in rounds
	IncompleteRate  float64       // chance a check is left incomplete
	RoundLength     time.Duration // wall-clock length stamped on rounds
}

// DefaultConfig returns a small competition suitable for demos.
func DefaultConfig() Config {
	return Config{
		BlueTeams:       5,
		RedTeams:        1,
		ServicesPerTeam: 4,
		Rounds:          60,
		Points:          100,
		Seed:            1,
		FailureRate:     0.05,
		OutageRate:      0.02,
		MaxOutage:       12,
		IncompleteRate:  0.01,
		RoundLength:     time.Minute,
	}
}

// Validate rejects configurations the generator cannot play.
func (c Config) Validate() error {
	switch {
	case c.BlueTeams < 0 || c.RedTeams < 0:
		return fmt.Errorf("%w: team counts must not be negative", ErrInvalidConfig)
	case c.ServicesPerTeam < 0 || c.ServicesPerTeam > len(catalog):
		return fmt.Errorf("%w: services per team must be between 0 and %d", ErrInvalidConfig, len(catalog))
	case c.Rounds < 0:
		return fmt.Errorf("%w: rounds must not be negative", ErrInvalidConfig)
	case c.Points < 0:
		return fmt.Errorf("%w: points must not be negative", ErrInvalidConfig)
	case !isRate(c.FailureRate) || !isRate(c.OutageRate) || !isRate(c.IncompleteRate):
		return fmt.Errorf("%w: rates must be within [0, 1]", ErrInvalidConfig)
	case c.OutageRate > 0 && c.MaxOutage < 1:
		return fmt.Errorf("%w: max outage must be positive when outages are enabled", ErrInvalidConfig)
	}
	return nil
}

func isRate(r float64) bool {
	return r >= 0 && r <= 1
}

// Result summarizes what was written.
type Result struct {
	BlueTeams []int64 `json:"blue_teams"`
	RedTeams  []int64 `json:"red_teams"`
	Services  int     `json:"services"`
	Rounds    int     `json:"rounds"`
	Checks    int     `json:"checks"`
	Passed    int     `json:"passed"`
}
