package sla

import "math"

// maxShift bounds the exponential mode so 2^over never overflows an int.
const maxShift = 62

// PenaltyPercent maps a consecutive-failure streak to a percentage deduction.
//
// It returns 0 when SLA is disabled or the streak is below the threshold. The
// result is never negative. Unless negative scores are allowed it is capped at
// the configured maximum; next_check_reduction is always capped.
func PenaltyPercent(consecutiveFailures int, s Snapshot) int {
	if !s.SLAEnabled || consecutiveFailures < s.PenaltyThreshold {
		return 0
	}
	over := consecutiveFailures - s.PenaltyThreshold

	var penalty int
	switch s.PenaltyMode {
	case ModeFlat:
		penalty = mulSat(over, s.PenaltyPercent)
	case ModeExponential:
		penalty = mulSat(s.PenaltyPercent, pow2Sat(over))
	case ModeNextCheckReduction:
		return clamp(mulSat(over+1, s.PenaltyPercent), 0, s.PenaltyMaxPercent)
	case ModeAdditive:
		penalty = mulSat(over+1, s.PenaltyPercent)
	default:
		penalty = mulSat(over+1, s.PenaltyPercent)
	}

	if s.AllowNegative {
		return max(0, penalty)
	}
	return clamp(penalty, 0, s.PenaltyMaxPercent)
}

// Violation reports whether a streak has reached the penalty threshold.
func Violation(consecutiveFailures int, s Snapshot) bool {
	return consecutiveFailures >= s.PenaltyThreshold
}

// PenaltyPoints returns floor(base * percent / 100).
func PenaltyPoints(base, percent int) int {
	if base == 0 || percent == 0 {
		return 0
	}
	product := int64(base) * int64(percent)
	q := product / 100
	if product%100 != 0 && product < 0 {
		q--
	}
	return int(q)
}

// AdjustedScore subtracts the penalty from a base score, flooring the result at
// zero unless negative scores are allowed.
func AdjustedScore(base, penaltyPercent int, s Snapshot) int {
	adjusted := base - PenaltyPoints(base, penaltyPercent)
	if !s.AllowNegative {
		return max(0, adjusted)
	}
	return adjusted
}

// Percent returns part as a percentage of whole, or 0 when whole is 0.
func Percent(part, whole int) float64 {
	if whole == 0 {
		return 0
	}
	return float64(part) * 100 / float64(whole)
}

func clamp(v, lo, hi int) int {
	if hi < lo {
		hi = lo
	}
	return min(max(v, lo), hi)
}

func pow2Sat(n int) int {
	if n <= 0 {
		return 1
	}
	if n >= maxShift {
		return math.MaxInt
	}
	return 1 << n
}

func mulSat(a, b int) int {
	if a == 0 || b == 0 {
		return 0
	}
	if a < 0 || b < 0 {
		return a * b
	}
	if a > math.MaxInt/b {
		return math.MaxInt
	}
	return a * b
}
