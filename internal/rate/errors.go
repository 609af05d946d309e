package rate

import (
	"errors"
	"time"
)

var (
	// ErrRateLimited is returned by Check when the window is exhausted.
	ErrRateLimited = errors.New("rate limited")
	// ErrRedisUnavailable wraps every Redis failure.
	ErrRedisUnavailable = errors.New("redis unavailable")
)

// LimitedError carries how long the caller should wait before retrying.
type LimitedError struct {
	Scope      string
	RetryAfter time.Duration
}

func (e *LimitedError) Error() string {
	return "rate limited: " + e.Scope
}

func (e *LimitedError) Unwrap() error {
	return ErrRateLimited
}
