package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrRateLimited         = errors.New("rate limited")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrSigningFailed       = errors.New("signing failed")
	ErrLockHeld            = errors.New("lock already held")
	ErrInsufficientCapital = errors.New("insufficient capital")
	ErrUnknownPosition     = errors.New("unknown position")
	ErrMalformedData       = errors.New("malformed data")
	ErrTransientIO         = errors.New("transient io")
	ErrExecutionFailed     = errors.New("execution failed")
	ErrInvalidExit         = errors.New("invalid exit")
)
