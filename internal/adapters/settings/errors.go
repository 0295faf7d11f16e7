package settings

import "errors"

// Sentinel kinds for settings errors.
var (
	ErrReadOnly      = errors.New("settings source is read-only")
	ErrInvalidFile   = errors.New("invalid settings file")
	ErrCorruptCached = errors.New("corrupt cached setting")
)
