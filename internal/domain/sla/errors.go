package sla

import "errors"

// Sentinel kinds for scoring configuration errors.
var (
	ErrUnknownPenaltyMode = errors.New("unknown penalty mode")
	ErrUnknownSetting     = errors.New("unknown setting")
	ErrInvalidSetting     = errors.New("invalid setting value")
)
