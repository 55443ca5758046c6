package audit

import (
	"time"

	"github.com/google/uuid"
)

// Action enumerates the auditable events emitted by the engine.
type Action string

const (
	ActionLoginSuccess           Action = "login_success"
	ActionLoginFailure           Action = "login_failure"
	ActionAccountLocked          Action = "account_locked"
	ActionLogoutSuccess          Action = "logout_success"
	ActionTokenRefreshed         Action = "token_refreshed"
	ActionAccessGranted          Action = "access_granted"
	ActionAccessRevoked          Action = "access_revoked"
	ActionAccessDenied           Action = "access_denied"
	ActionEmergencyAccessGranted Action = "emergency_access_granted"
	ActionEmergencyAccessUsed    Action = "emergency_access_used"
)

// Outcome values follow the success/failure split the audit consumers filter
// on; the differentiated denial reason rides in Reason.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Event maps to the audit_event table. Rows are append-only: nothing in the
// engine updates or deletes them.
type Event struct {
	ID            uuid.UUID  `db:"id" json:"id"`
	TenantID      string     `db:"tenant_id" json:"tenant_id"`
	Action        Action     `db:"action" json:"action"`
	Outcome       string     `db:"outcome" json:"outcome"`
	ActorID       *uuid.UUID `db:"actor_id" json:"actor_id,omitempty"`
	ActorName     string     `db:"actor_name" json:"actor_name,omitempty"`
	ActorRole     string     `db:"actor_role" json:"actor_role,omitempty"`
	PatientID     *uuid.UUID `db:"patient_id" json:"patient_id,omitempty"`
	GrantID       *uuid.UUID `db:"grant_id" json:"grant_id,omitempty"`
	SessionID     *uuid.UUID `db:"session_id" json:"session_id,omitempty"`
	Reason        string     `db:"reason" json:"reason,omitempty"`
	Justification string     `db:"justification" json:"justification,omitempty"`
	SourceIP      string     `db:"source_ip" json:"source_ip,omitempty"`
	UserAgent     string     `db:"user_agent" json:"user_agent,omitempty"`
	RecordedAt    time.Time  `db:"recorded_at" json:"recorded_at"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
}
