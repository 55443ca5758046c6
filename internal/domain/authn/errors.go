package authn

import (
	"errors"
	"time"
)

var (
	// ErrInvalidCredentials covers both unknown-username and wrong-password so
	// the failure shape never discloses which half was wrong.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrInvalidToken covers absent, revoked and expired refresh tokens
	// uniformly.
	ErrInvalidToken = errors.New("invalid token")

	ErrAccountLocked = errors.New("account locked")
	ErrValidation    = errors.New("invalid authentication request")
)

// LockedError carries the lock expiry so callers can surface a retry-after.
// It matches ErrAccountLocked under errors.Is.
type LockedError struct {
	Until time.Time
}

func (e *LockedError) Error() string { return "account locked" }

func (e *LockedError) Unwrap() error { return ErrAccountLocked }

// newLockedError builds a LockedError from an optional expiry. A lock set
// administratively has no expiry; its Until stays zero and no retry window is
// surfaced.
func newLockedError(until *time.Time) *LockedError {
	if until == nil {
		return &LockedError{}
	}
	return &LockedError{Until: *until}
}
