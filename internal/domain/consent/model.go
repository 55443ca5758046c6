package consent

import (
	"time"

	"github.com/google/uuid"
)

// Consent is a patient-asserted permission or denial governing access to
// their record. This engine only reads consent; recording and amending it
// belongs to the surrounding clinical system.
type Consent struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	PatientID   uuid.UUID  `db:"patient_id" json:"patient_id"`
	TenantID    string     `db:"tenant_id" json:"tenant_id"`
	ConsentType string     `db:"consent_type" json:"consent_type"`
	Scope       string     `db:"scope" json:"scope"` // "read", "write", or "*"
	Granted     bool       `db:"granted" json:"granted"`
	EffectiveAt time.Time  `db:"effective_at" json:"effective_at"`
	ExpiresAt   *time.Time `db:"expires_at" json:"expires_at,omitempty"`
	WitnessName *string    `db:"witness_name" json:"witness_name,omitempty"`
	WitnessedAt *time.Time `db:"witnessed_at" json:"witnessed_at,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
}

// ActiveAt reports whether the consent entry is in effect at the instant.
func (c *Consent) ActiveAt(now time.Time) bool {
	if now.Before(c.EffectiveAt) {
		return false
	}
	if c.ExpiresAt != nil && !now.Before(*c.ExpiresAt) {
		return false
	}
	return true
}

// CoversScope reports whether the entry's scope covers the named operation
// scope ("read" or "write").
func (c *Consent) CoversScope(scope string) bool {
	return c.Scope == "*" || c.Scope == scope
}
