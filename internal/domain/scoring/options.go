package scoring

import "github.com/okian/rampart/pkg/logger"

const defaultRoundWindow = 500

// Option applies a configuration option to the Recomputer.
type Option func(*Recomputer)

// WithLogger sets the logger used for recompute diagnostics.
func WithLogger(l logger.Logger) Option {
	return func(r *Recomputer) {
		if l != nil {
			r.log = l
		}
	}
}

// WithRoundWindow bounds how many rounds of checks are loaded per query.
func WithRoundWindow(rounds int) Option {
	return func(r *Recomputer) {
		if rounds > 0 {
			r.window = rounds
		}
	}
}
