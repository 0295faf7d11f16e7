package sla

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ValidateSetting checks a value an administrator wants to store. It is stricter
// than LoadSnapshot: counts must be positive and multipliers greater than zero.
func ValidateSetting(name, value string) error {
	v := strings.TrimSpace(value)
	switch name {
	case KeySLAEnabled, KeyAllowNegative, KeyDynamicEnabled:
		switch strings.ToLower(v) {
		case "true", "false", "1", "0", "yes", "no":
			return nil
		}
		return fmt.Errorf("%w: %s must be a boolean, got %q", ErrInvalidSetting, name, value)
	case KeyPenaltyThreshold, KeyPenaltyPercent, KeyPenaltyMaxPercent, KeyEarlyRounds, KeyLateStartRound:
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return fmt.Errorf("%w: %s must be a positive integer, got %q", ErrInvalidSetting, name, value)
		}
		return nil
	case KeyEarlyMultiplier, KeyLateMultiplier:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f <= 0 {
			return fmt.Errorf("%w: %s must be a positive number, got %q", ErrInvalidSetting, name, value)
		}
		return nil
	case KeyPenaltyMode:
		if _, err := ParsePenaltyMode(v); err != nil {
			return fmt.Errorf("%w: %s must be one of additive, flat, exponential, next_check_reduction", err, name)
		}
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownSetting, name)
	}
}
