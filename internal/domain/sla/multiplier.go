package sla

import (
	"fmt"

	"github.com/okian/rampart/internal/domain/types"
)

// Phase names a dynamic-scoring phase.
type Phase string

// Scoring phases in competition order.
const (
	PhaseEarly  Phase = "early"
	PhaseNormal Phase = "normal"
	PhaseLate   Phase = "late"
)

// PhaseFor classifies a round. The early check runs first, so when the early
// and late windows overlap the early phase wins and there is no normal phase.
func PhaseFor(round int, s Snapshot) Phase {
	switch {
	case round <= s.EarlyRounds:
		return PhaseEarly
	case round >= s.LateStartRound:
		return PhaseLate
	default:
		return PhaseNormal
	}
}

// RoundMultiplier returns the point multiplier for a round. It is 1.0 whenever
// dynamic scoring is disabled.
func RoundMultiplier(round int, s Snapshot) float64 {
	if !s.DynamicEnabled {
		return normalPhaseMultiplier
	}
	switch PhaseFor(round, s) {
	case PhaseEarly:
		return s.EarlyMultiplier
	case PhaseLate:
		return s.LateMultiplier
	default:
		return normalPhaseMultiplier
	}
}

// ScaledPoints applies the round multiplier to a point value, truncating toward zero.
func ScaledPoints(round, points int, s Snapshot) int {
	return int(float64(points) * RoundMultiplier(round, s))
}

// DynamicInfo describes the configured phases for display. A normal phase
// with no rounds is shown as "none".
func DynamicInfo(s Snapshot) types.DynamicScoringInfo {
	normal := "none"
	if first, last := s.EarlyRounds+1, s.LateStartRound-1; first <= last {
		normal = fmt.Sprintf("%d-%d", first, last)
	}
	return types.DynamicScoringInfo{
		Enabled:          s.DynamicEnabled,
		EarlyRounds:      s.EarlyRounds,
		EarlyMultiplier:  s.EarlyMultiplier,
		NormalMultiplier: normalPhaseMultiplier,
		LateStartRound:   s.LateStartRound,
		LateMultiplier:   s.LateMultiplier,
		Phases: []types.Phase{
			{Name: "Early Phase", Rounds: fmt.Sprintf("1-%d", s.EarlyRounds), Multiplier: s.EarlyMultiplier},
			{Name: "Normal Phase", Rounds: normal, Multiplier: normalPhaseMultiplier},
			{Name: "Late Phase", Rounds: fmt.Sprintf("%d+", s.LateStartRound), Multiplier: s.LateMultiplier},
		},
	}
}

// DescribeRound is DynamicInfo plus the phase and multiplier in effect for round.
func DescribeRound(round int, s Snapshot) types.DynamicScoringInfo {
	info := DynamicInfo(s)
	info.CurrentRound = round
	info.CurrentMultiplier = RoundMultiplier(round, s)
	info.CurrentPhase = string(PhaseFor(round, s))
	return info
}
