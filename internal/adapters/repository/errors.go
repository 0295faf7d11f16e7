package repository

import "errors"

// Sentinel kinds for repository errors.
var (
	ErrNotFound       = errors.New("record not found")
	ErrDuplicateCheck = errors.New("check already recorded for service and round")
	ErrUnknownDialect = errors.New("unknown sql dialect")
	ErrInvalidRecord  = errors.New("invalid record")
)
