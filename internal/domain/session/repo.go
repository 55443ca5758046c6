package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when no session matches the given token or id.
var ErrNotFound = errors.New("session not found")

type Repository interface {
	Create(ctx context.Context, s *Session) error
	GetByToken(ctx context.Context, refreshToken string) (*Session, error)
	// Revoke marks the session revoked and reports whether this call did the
	// revoking. The update is conditional on the row not being revoked yet:
	// of two concurrent refreshes with the same token, exactly one sees true.
	Revoke(ctx context.Context, refreshToken string) (bool, error)
	// Touch stamps last-accessed-at.
	Touch(ctx context.Context, id uuid.UUID, at time.Time) error
	RevokeAllForUser(ctx context.Context, userID uuid.UUID) (int, error)
	// DeleteExpired removes sessions whose expiry passed before the cutoff.
	// Expiry is otherwise enforced lazily; this is housekeeping only.
	DeleteExpired(ctx context.Context, cutoff time.Time) (int, error)
}
