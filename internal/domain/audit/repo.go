package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// SearchParams filters the audit trail. Zero values mean "no filter".
type SearchParams struct {
	Action    Action
	Outcome   string
	ActorID   *uuid.UUID
	PatientID *uuid.UUID
	Since     *time.Time
	Until     *time.Time
}

type Repository interface {
	Insert(ctx context.Context, e *Event) error
	Search(ctx context.Context, tenantID string, params SearchParams, limit, offset int) ([]*Event, int, error)
}
