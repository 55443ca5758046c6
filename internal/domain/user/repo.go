package user

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when no matching user or scope row exists.
var ErrNotFound = errors.New("user not found")

type Repository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByUsername(ctx context.Context, tenantID, username string) (*User, error)
	Update(ctx context.Context, u *User) error
	// RecordLoginFailure atomically increments the failure counter and, when
	// the counter reaches threshold, locks the account for lockFor. The
	// returned values reflect the row after the update, so two concurrent
	// failures cannot under-count.
	RecordLoginFailure(ctx context.Context, id uuid.UUID, threshold int, lockFor time.Duration) (attempts int, lockedUntil *time.Time, err error)
	// RecordLoginSuccess resets the failure counter and stamps last-login
	// metadata.
	RecordLoginSuccess(ctx context.Context, id uuid.UUID, ip string) error
	SetStatus(ctx context.Context, id uuid.UUID, status Status) error
	// Unlock clears the lock and failure counter and restores active status.
	Unlock(ctx context.Context, id uuid.UUID) error
	SoftDelete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, tenantID string, limit, offset int) ([]*User, int, error)
}

type ScopeRepository interface {
	Grant(ctx context.Context, s *Scope) error
	// Revoke marks the scope revoked; revoking an already-revoked scope is a
	// no-op.
	Revoke(ctx context.Context, id uuid.UUID) error
	ListForUser(ctx context.Context, userID uuid.UUID) ([]*Scope, error)
	// ActiveNamesForUser returns the names of effective-active scopes, for
	// embedding into token claims.
	ActiveNamesForUser(ctx context.Context, userID uuid.UUID, now time.Time) ([]string, error)
}
