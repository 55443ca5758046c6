package access

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/medrec/medrec/internal/domain/audit"
	"github.com/medrec/medrec/internal/platform/auth"
)

var (
	ErrForbidden  = errors.New("not authorized for this access operation")
	ErrValidation = errors.New("invalid access request")
)

// Ledger manages patient access grants. Grants accumulate: a new grant never
// auto-revokes a prior one for the same pair, overlap is resolved at decision
// time.
type Ledger struct {
	repo    Repository
	auditor *audit.Recorder
}

func NewLedger(repo Repository, auditor *audit.Recorder) *Ledger {
	return &Ledger{repo: repo, auditor: auditor}
}

type GrantInput struct {
	UserID    uuid.UUID  `json:"user_id"`
	PatientID uuid.UUID  `json:"patient_id"`
	Level     Level      `json:"access_level"`
	Reason    *string    `json:"reason,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Grant records a new access grant after checking the actor may delegate it.
// An actor may grant access when they are a system administrator, or a
// healthcare provider who already holds write-or-better access to the same
// patient. You cannot grant what you do not hold.
func (l *Ledger) Grant(ctx context.Context, actor *auth.Identity, in GrantInput) (*Grant, error) {
	if !in.Level.Valid() {
		return nil, fmt.Errorf("%w: unknown access level %q", ErrValidation, in.Level)
	}
	if in.Level == LevelEmergency {
		// Break-glass grants carry a mandatory justification and forced
		// expiry; they are created through the emergency access handler.
		return nil, fmt.Errorf("%w: emergency access is granted through the emergency endpoint", ErrValidation)
	}
	if in.ExpiresAt != nil && !in.ExpiresAt.After(time.Now()) {
		return nil, fmt.Errorf("%w: expires_at must be in the future", ErrValidation)
	}

	if err := l.checkCanDelegate(ctx, actor, in.PatientID); err != nil {
		return nil, err
	}

	g := &Grant{
		UserID:    in.UserID,
		PatientID: in.PatientID,
		TenantID:  actor.TenantID,
		Level:     in.Level,
		GrantedBy: actor.UserID,
		Reason:    in.Reason,
		GrantedAt: time.Now().UTC(),
		ExpiresAt: in.ExpiresAt,
	}
	if err := l.repo.Create(ctx, g); err != nil {
		return nil, fmt.Errorf("create access grant: %w", err)
	}

	l.auditor.RecordBestEffort(ctx, &audit.Event{
		TenantID:  actor.TenantID,
		Action:    audit.ActionAccessGranted,
		Outcome:   audit.OutcomeSuccess,
		ActorID:   &actor.UserID,
		ActorName: actor.Username,
		ActorRole: string(actor.Role),
		PatientID: &g.PatientID,
		GrantID:   &g.ID,
		Reason:    strDeref(in.Reason),
	})
	return g, nil
}

// Revoke disables a grant. Permitted for system administrators, the original
// granter, and providers holding write-or-better access to the patient. The
// row is retained; only the enable flag and disable metadata change.
func (l *Ledger) Revoke(ctx context.Context, actor *auth.Identity, grantID uuid.UUID, reason *string) error {
	g, err := l.repo.GetByID(ctx, grantID)
	if err != nil {
		return err
	}

	if g.GrantedBy != actor.UserID {
		if err := l.checkCanDelegate(ctx, actor, g.PatientID); err != nil {
			return err
		}
	}

	if err := l.repo.Disable(ctx, grantID, actor.UserID, reason); err != nil {
		return err
	}

	l.auditor.RecordBestEffort(ctx, &audit.Event{
		TenantID:  actor.TenantID,
		Action:    audit.ActionAccessRevoked,
		Outcome:   audit.OutcomeSuccess,
		ActorID:   &actor.UserID,
		ActorName: actor.Username,
		ActorRole: string(actor.Role),
		PatientID: &g.PatientID,
		GrantID:   &g.ID,
		Reason:    strDeref(reason),
	})
	return nil
}

// List returns a page of grants visible to the actor: administrators see the
// tenant's ledger, subjects see their own grants, and providers see grants on
// patients they themselves can access.
func (l *Ledger) List(ctx context.Context, actor *auth.Identity, f ListFilters, limit, offset int) ([]*Grant, int, error) {
	if err := l.checkCanView(ctx, actor, f); err != nil {
		return nil, 0, err
	}
	return l.repo.List(ctx, actor.TenantID, f, limit, offset)
}

// checkCanDelegate enforces the delegation ceiling: administrators always
// pass; healthcare providers pass only with an effective-active grant at
// write or admin on the same patient. The ceiling is read off the
// Read < Write < Admin ladder, so a break-glass emergency grant, which lets
// its holder read and write for a bounded window, does not let them mint
// grants for others.
func (l *Ledger) checkCanDelegate(ctx context.Context, actor *auth.Identity, patientID uuid.UUID) error {
	if actor.Role == auth.RoleSystemAdministrator {
		return nil
	}
	if actor.Role != auth.RoleHealthcareProvider {
		return ErrForbidden
	}
	grants, err := l.repo.ListForUserPatient(ctx, actor.UserID, patientID)
	if err != nil {
		return fmt.Errorf("list grants: %w", err)
	}
	now := time.Now()
	for _, g := range grants {
		if g.EffectiveActive(now) && g.Level.Rank() >= LevelWrite.Rank() {
			return nil
		}
	}
	return ErrForbidden
}

func (l *Ledger) checkCanView(ctx context.Context, actor *auth.Identity, f ListFilters) error {
	if actor.Role == auth.RoleSystemAdministrator {
		return nil
	}
	if f.UserID != nil && *f.UserID == actor.UserID {
		return nil
	}
	if actor.Role == auth.RoleHealthcareProvider && f.PatientID != nil {
		held, err := l.holdsLevel(ctx, actor.UserID, *f.PatientID, LevelRead)
		if err != nil {
			return err
		}
		if held {
			return nil
		}
	}
	return ErrForbidden
}

func strDeref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func (l *Ledger) holdsLevel(ctx context.Context, userID, patientID uuid.UUID, level Level) (bool, error) {
	grants, err := l.repo.ListForUserPatient(ctx, userID, patientID)
	if err != nil {
		return false, fmt.Errorf("list grants: %w", err)
	}
	now := time.Now()
	for _, g := range grants {
		if g.EffectiveActive(now) && g.Level.Covers(level) {
			return true, nil
		}
	}
	return false, nil
}
