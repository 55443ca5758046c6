package access

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("access grant not found")

// ListFilters narrows a ledger listing. Nil/empty fields match everything.
type ListFilters struct {
	PatientID  *uuid.UUID
	UserID     *uuid.UUID
	Level      Level
	ActiveOnly bool
}

type Repository interface {
	Create(ctx context.Context, g *Grant) error
	GetByID(ctx context.Context, id uuid.UUID) (*Grant, error)

	// Disable flips the enable flag off, recording who and why. Disabling an
	// already-disabled grant returns ErrNotFound so callers can distinguish
	// a stale revoke.
	Disable(ctx context.Context, id uuid.UUID, by uuid.UUID, reason *string) error

	// ListForUserPatient returns every enabled grant for the pair, newest
	// first. Expiry is not filtered here; callers apply EffectiveActive.
	ListForUserPatient(ctx context.Context, userID, patientID uuid.UUID) ([]*Grant, error)

	List(ctx context.Context, tenantID string, f ListFilters, limit, offset int) ([]*Grant, int, error)
}
