package contest

import (
	"errors"
	"fmt"
)

// Sentinel errors for source fetch and refresh coordination. Callers
// classify with errors.Is.
var (
	// ErrSourceUnavailable covers network failures, decode failures and
	// non-2xx responses other than 401/429.
	ErrSourceUnavailable = errors.New("contest source unavailable")

	// ErrUnauthorized means the source rejected the configured API
	// credentials (HTTP 401).
	ErrUnauthorized = errors.New("contest source rejected credentials")

	// ErrRateLimited means the source throttled us (HTTP 429).
	ErrRateLimited = errors.New("contest source rate limited")

	// ErrRefreshInFlight is returned when a refresh is requested while
	// another one is still running. The caller should serve cached data.
	ErrRefreshInFlight = errors.New("refresh already in progress")
)

// StatusError carries an unexpected HTTP status from the source API.
// It matches ErrSourceUnavailable under errors.Is.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("contest source returned status %d", e.Code)
}

func (e *StatusError) Unwrap() error { return ErrSourceUnavailable }
