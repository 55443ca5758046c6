package access

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/medrec/medrec/internal/domain/audit"
	"github.com/medrec/medrec/internal/domain/consent"
	"github.com/medrec/medrec/internal/platform/auth"
)

// DenyReason is the differentiated denial cause. It is recorded in the audit
// trail; callers present a generic denial to end users.
type DenyReason string

const (
	DenyNoGrant           DenyReason = "no_grant"
	DenyInsufficientLevel DenyReason = "insufficient_level"
	DenyConsentDenied     DenyReason = "consent_denied"
)

// Decision is the outcome of a single access check.
type Decision struct {
	Allowed        bool       `json:"allowed"`
	EffectiveLevel Level      `json:"effective_level,omitempty"`
	Reason         DenyReason `json:"reason,omitempty"`
}

func allow(level Level) Decision {
	return Decision{Allowed: true, EffectiveLevel: level}
}

func deny(reason DenyReason) Decision {
	return Decision{Reason: reason}
}

// Engine answers "may this actor perform this operation on this patient's
// record". It holds no state between calls; every answer is derived from the
// ledgers at decision time.
type Engine struct {
	grants   Repository
	consents consent.Repository
	auditor  *audit.Recorder
}

func NewEngine(grants Repository, consents consent.Repository, auditor *audit.Recorder) *Engine {
	return &Engine{grants: grants, consents: consents, auditor: auditor}
}

// Decide evaluates the access rules in fixed order, first match wins:
//
//  1. System administrators are allowed at admin level.
//  2. An active emergency grant allows, and the use is audited. The audit
//     write is mandatory: if it fails the decision fails, so no emergency
//     use can go unrecorded.
//  3. No effective-active grant: deny.
//  4. A grant below the requested tier: deny. Research and analytics grants
//     satisfy read requests only.
//  5. An active consent denial covering the operation overrides the grant.
//     The patient's veto dominates any staff-granted access short of an
//     emergency.
//  6. Allow at the most privileged grant's level.
func (e *Engine) Decide(ctx context.Context, actor *auth.Identity, patientID uuid.UUID, requested Level) (Decision, error) {
	if !requested.Valid() || requested.Rank() == 0 {
		return Decision{}, fmt.Errorf("%w: requested level must be read, write or admin", ErrValidation)
	}

	if actor.Role == auth.RoleSystemAdministrator {
		return allow(LevelAdmin), nil
	}

	now := time.Now()

	grants, err := e.grants.ListForUserPatient(ctx, actor.UserID, patientID)
	if err != nil {
		return Decision{}, fmt.Errorf("list grants: %w", err)
	}

	var best *Grant
	for _, g := range grants {
		if !g.EffectiveActive(now) {
			continue
		}
		if g.Level == LevelEmergency {
			if err := e.recordEmergencyUse(ctx, actor, patientID, g, requested); err != nil {
				return Decision{}, err
			}
			return allow(LevelEmergency), nil
		}
		if best == nil || g.Level.MorePrivileged(best.Level) {
			best = g
		}
	}

	if best == nil {
		e.recordDenied(ctx, actor, patientID, requested, DenyNoGrant)
		return deny(DenyNoGrant), nil
	}

	if !best.Level.Covers(requested) {
		e.recordDenied(ctx, actor, patientID, requested, DenyInsufficientLevel)
		return deny(DenyInsufficientLevel), nil
	}

	denied, err := e.consentDenies(ctx, patientID, requested, now)
	if err != nil {
		return Decision{}, err
	}
	if denied {
		e.recordDenied(ctx, actor, patientID, requested, DenyConsentDenied)
		return deny(DenyConsentDenied), nil
	}

	return allow(best.Level), nil
}

// consentDenies reports whether the patient has an active consent entry that
// explicitly denies the scope of the requested operation.
func (e *Engine) consentDenies(ctx context.Context, patientID uuid.UUID, requested Level, now time.Time) (bool, error) {
	entries, err := e.consents.ListForPatient(ctx, patientID)
	if err != nil {
		return false, fmt.Errorf("list consents: %w", err)
	}
	scope := "read"
	if requested.Rank() > LevelRead.Rank() {
		scope = "write"
	}
	for _, c := range entries {
		if !c.Granted && c.ActiveAt(now) && c.CoversScope(scope) {
			return true, nil
		}
	}
	return false, nil
}

func (e *Engine) recordEmergencyUse(ctx context.Context, actor *auth.Identity, patientID uuid.UUID, g *Grant, requested Level) error {
	err := e.auditor.Record(ctx, &audit.Event{
		TenantID:      actor.TenantID,
		Action:        audit.ActionEmergencyAccessUsed,
		Outcome:       audit.OutcomeSuccess,
		ActorID:       &actor.UserID,
		ActorName:     actor.Username,
		ActorRole:     string(actor.Role),
		PatientID:     &patientID,
		GrantID:       &g.ID,
		Reason:        string(requested),
		Justification: strDeref(g.Justification),
	})
	if err != nil {
		return fmt.Errorf("record emergency use: %w", err)
	}
	return nil
}

func (e *Engine) recordDenied(ctx context.Context, actor *auth.Identity, patientID uuid.UUID, requested Level, reason DenyReason) {
	e.auditor.RecordBestEffort(ctx, &audit.Event{
		TenantID:  actor.TenantID,
		Action:    audit.ActionAccessDenied,
		Outcome:   audit.OutcomeFailure,
		ActorID:   &actor.UserID,
		ActorName: actor.Username,
		ActorRole: string(actor.Role),
		PatientID: &patientID,
		Reason:    string(reason) + ", requested " + string(requested),
	})
}
