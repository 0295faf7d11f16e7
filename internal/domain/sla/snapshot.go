// Package sla implements the SLA penalty and dynamic-multiplier rules that turn
// earned service points into adjusted scores.
//
// Every calculator in this package is a total function of its arguments and a
// Snapshot. Nothing here reads settings on its own; callers load a Snapshot once
// per computation and pass it explicitly.
package sla

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Setting keys as stored in the settings store.
const (
	KeySLAEnabled        = "sla_enabled"
	KeyPenaltyThreshold  = "sla_penalty_threshold"
	KeyPenaltyPercent    = "sla_penalty_percent"
	KeyPenaltyMaxPercent = "sla_penalty_max_percent"
	KeyPenaltyMode       = "sla_penalty_mode"
	KeyAllowNegative     = "sla_allow_negative"
	KeyDynamicEnabled    = "dynamic_scoring_enabled"
	KeyEarlyRounds       = "dynamic_scoring_early_rounds"
	KeyEarlyMultiplier   = "dynamic_scoring_early_multiplier"
	KeyLateStartRound    = "dynamic_scoring_late_start_round"
	KeyLateMultiplier    = "dynamic_scoring_late_multiplier"
)

// Documented defaults used whenever a setting is absent or malformed.
const (
	normalPhaseMultiplier   = 1.0
	defaultPenaltyThreshold = 5
	defaultPenaltyPercent   = 10
	defaultPenaltyMax       = 50
	defaultEarlyRounds      = 10
	defaultEarlyMultiplier  = 2.0
	defaultLateStartRound   = 50
	defaultLateMultiplier   = 0.5
)

// Keys lists every setting a Snapshot is built from, in load order.
var Keys = []string{ //nolint:gochecknoglobals // read-only key list
	KeySLAEnabled,
	KeyPenaltyThreshold,
	KeyPenaltyPercent,
	KeyPenaltyMaxPercent,
	KeyPenaltyMode,
	KeyAllowNegative,
	KeyDynamicEnabled,
	KeyEarlyRounds,
	KeyEarlyMultiplier,
	KeyLateStartRound,
	KeyLateMultiplier,
}

// PenaltyMode selects the formula that turns an over-threshold failure streak
// into a percentage deduction.
type PenaltyMode uint8

// Penalty modes. The zero value is additive.
const (
	ModeAdditive PenaltyMode = iota
	ModeFlat
	ModeExponential
	ModeNextCheckReduction
)

var modeNames = [...]string{ //nolint:gochecknoglobals // enum names
	ModeAdditive:           "additive",
	ModeFlat:               "flat",
	ModeExponential:        "exponential",
	ModeNextCheckReduction: "next_check_reduction",
}

func (m PenaltyMode) String() string {
	if int(m) < len(modeNames) {
		return modeNames[m]
	}
	return "unknown"
}

// MarshalText renders the mode by name.
func (m PenaltyMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// ParsePenaltyMode maps a stored mode name to a PenaltyMode.
func ParsePenaltyMode(s string) (PenaltyMode, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for i, n := range modeNames {
		if n == name {
			return PenaltyMode(i), nil
		}
	}
	return ModeAdditive, fmt.Errorf("%w: %q", ErrUnknownPenaltyMode, s)
}

// Snapshot is an immutable bundle of scoring parameters used for one computation.
type Snapshot struct {
	SLAEnabled        bool
	PenaltyThreshold  int
	PenaltyPercent    int
	PenaltyMaxPercent int
	PenaltyMode       PenaltyMode
	AllowNegative     bool

	DynamicEnabled  bool
	EarlyRounds     int
	EarlyMultiplier float64
	LateStartRound  int
	LateMultiplier  float64
}

// Defaults returns the snapshot used when no setting is present.
func Defaults() Snapshot {
	return Snapshot{
		SLAEnabled:        false,
		PenaltyThreshold:  defaultPenaltyThreshold,
		PenaltyPercent:    defaultPenaltyPercent,
		PenaltyMaxPercent: defaultPenaltyMax,
		PenaltyMode:       ModeAdditive,
		AllowNegative:     false,
		DynamicEnabled:    false,
		EarlyRounds:       defaultEarlyRounds,
		EarlyMultiplier:   defaultEarlyMultiplier,
		LateStartRound:    defaultLateStartRound,
		LateMultiplier:    defaultLateMultiplier,
	}
}

// Lookup returns the raw value stored under name and whether it exists.
type Lookup func(name string) (string, bool)

// FromMap adapts a plain map to a Lookup.
func FromMap(values map[string]string) Lookup {
	return func(name string) (string, bool) {
		v, ok := values[name]
		return v, ok
	}
}

// Fallback records a setting whose stored value was rejected in favour of its default.
type Fallback struct {
	Key   string
	Value string
	Err   error
}

// LoadSnapshot builds a Snapshot from stored setting values. Absent settings take
// their documented default. Malformed values also take the default and are
// reported in the returned fallbacks; they never fail the load.
func LoadSnapshot(lookup Lookup) (Snapshot, []Fallback) {
	l := loader{lookup: lookup}
	d := Defaults()
	s := Snapshot{
		SLAEnabled:        l.boolean(KeySLAEnabled, d.SLAEnabled),
		PenaltyThreshold:  l.count(KeyPenaltyThreshold, d.PenaltyThreshold),
		PenaltyPercent:    l.count(KeyPenaltyPercent, d.PenaltyPercent),
		PenaltyMaxPercent: l.count(KeyPenaltyMaxPercent, d.PenaltyMaxPercent),
		PenaltyMode:       l.mode(KeyPenaltyMode, d.PenaltyMode),
		AllowNegative:     l.boolean(KeyAllowNegative, d.AllowNegative),
		DynamicEnabled:    l.boolean(KeyDynamicEnabled, d.DynamicEnabled),
		EarlyRounds:       l.count(KeyEarlyRounds, d.EarlyRounds),
		EarlyMultiplier:   l.factor(KeyEarlyMultiplier, d.EarlyMultiplier),
		LateStartRound:    l.count(KeyLateStartRound, d.LateStartRound),
		LateMultiplier:    l.factor(KeyLateMultiplier, d.LateMultiplier),
	}
	return s, l.fallbacks
}

type loader struct {
	lookup    Lookup
	fallbacks []Fallback
}

func (l *loader) raw(key string) (string, bool) {
	if l.lookup == nil {
		return "", false
	}
	v, ok := l.lookup(key)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return v, true
}

func (l *loader) reject(key, value string, err error) {
	l.fallbacks = append(l.fallbacks, Fallback{Key: key, Value: value, Err: err})
}

func (l *loader) boolean(key string, def bool) bool {
	v, ok := l.raw(key)
	if !ok {
		return def
	}
	return parseBool(v)
}

func (l *loader) count(key string, def int) int {
	v, ok := l.raw(key)
	if !ok {
		return def
	}
	n, err := parseCount(v)
	if err != nil {
		l.reject(key, v, err)
		return def
	}
	return n
}

func (l *loader) factor(key string, def float64) float64 {
	v, ok := l.raw(key)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		l.reject(key, v, fmt.Errorf("%w: %q is not a non-negative number", ErrInvalidSetting, v))
		return def
	}
	return f
}

func (l *loader) mode(key string, def PenaltyMode) PenaltyMode {
	v, ok := l.raw(key)
	if !ok {
		return def
	}
	m, err := ParsePenaltyMode(v)
	if err != nil {
		l.reject(key, v, err)
		return def
	}
	return m
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "1", "yes":
		return true
	default:
		return false
	}
}

func parseCount(v string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not an integer", ErrInvalidSetting, v)
	}
	if n < 0 {
		return 0, fmt.Errorf("%w: %d is negative", ErrInvalidSetting, n)
	}
	return n, nil
}
