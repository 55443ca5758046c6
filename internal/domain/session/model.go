package session

import (
	"time"

	"github.com/google/uuid"
)

// Session maps to the session table: one row per refresh token. The access
// token is stateless; this ledger is the only revocable credential state.
type Session struct {
	ID             uuid.UUID  `db:"id" json:"id"`
	UserID         uuid.UUID  `db:"user_id" json:"user_id"`
	TenantID       string     `db:"tenant_id" json:"tenant_id"`
	RefreshToken   string     `db:"refresh_token" json:"-"`
	IssuedAt       time.Time  `db:"issued_at" json:"issued_at"`
	ExpiresAt      time.Time  `db:"expires_at" json:"expires_at"`
	LastAccessedAt *time.Time `db:"last_accessed_at" json:"last_accessed_at,omitempty"`
	Revoked        bool       `db:"revoked" json:"revoked"`
	RevokedAt      *time.Time `db:"revoked_at" json:"revoked_at,omitempty"`
	ClientIP       string     `db:"client_ip" json:"client_ip,omitempty"`
	UserAgent      string     `db:"user_agent" json:"user_agent,omitempty"`
}

// EffectiveActive derives whether the session can still mint access tokens.
// It is computed, never stored: expiry is enforced lazily at read time and
// nothing sweeps expired rows.
func (s *Session) EffectiveActive(now time.Time) bool {
	return !s.Revoked && now.Before(s.ExpiresAt)
}
