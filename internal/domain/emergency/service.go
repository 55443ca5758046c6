package emergency

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/medrec/medrec/internal/domain/access"
	"github.com/medrec/medrec/internal/domain/audit"
	"github.com/medrec/medrec/internal/platform/auth"
	"github.com/medrec/medrec/internal/platform/db"
)

var (
	ErrForbidden  = errors.New("role may not invoke emergency access")
	ErrValidation = errors.New("invalid emergency access request")
)

// Service creates break-glass grants: time-boxed emergency access that
// bypasses consent checks. The mandatory justification and the synchronous
// audit write are the compensating controls.
type Service struct {
	grants      access.Repository
	auditor     *audit.Recorder
	tx          db.TxRunner
	maxDuration time.Duration
}

func NewService(grants access.Repository, auditor *audit.Recorder, tx db.TxRunner, maxDuration time.Duration) *Service {
	return &Service{grants: grants, auditor: auditor, tx: tx, maxDuration: maxDuration}
}

type CreateInput struct {
	PatientID       uuid.UUID `json:"patient_id"`
	Justification   string    `json:"justification"`
	DurationMinutes int       `json:"duration_minutes"`
}

// Create records an emergency grant for the actor on the patient. The grant
// and its audit event are committed in one unit of work: if the audit trail
// cannot be written, the grant does not exist.
func (s *Service) Create(ctx context.Context, actor *auth.Identity, in CreateInput) (*access.Grant, error) {
	if !actor.Role.CanInvokeEmergencyAccess() {
		return nil, ErrForbidden
	}
	if strings.TrimSpace(in.Justification) == "" {
		return nil, fmt.Errorf("%w: justification is required", ErrValidation)
	}
	if in.DurationMinutes <= 0 {
		return nil, fmt.Errorf("%w: duration must be positive", ErrValidation)
	}

	duration := time.Duration(in.DurationMinutes) * time.Minute
	if duration > s.maxDuration {
		duration = s.maxDuration
	}

	now := time.Now().UTC()
	expires := now.Add(duration)
	justification := in.Justification

	g := &access.Grant{
		UserID:        actor.UserID,
		PatientID:     in.PatientID,
		TenantID:      actor.TenantID,
		Level:         access.LevelEmergency,
		GrantedBy:     actor.UserID,
		Justification: &justification,
		GrantedAt:     now,
		ExpiresAt:     &expires,
	}

	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.grants.Create(ctx, g); err != nil {
			return fmt.Errorf("create emergency grant: %w", err)
		}
		return s.auditor.Record(ctx, &audit.Event{
			TenantID:      actor.TenantID,
			Action:        audit.ActionEmergencyAccessGranted,
			Outcome:       audit.OutcomeSuccess,
			ActorID:       &actor.UserID,
			ActorName:     actor.Username,
			ActorRole:     string(actor.Role),
			PatientID:     &g.PatientID,
			GrantID:       &g.ID,
			Justification: justification,
		})
	})
	if err != nil {
		return nil, err
	}
	return g, nil
}
