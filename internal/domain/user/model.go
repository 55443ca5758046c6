package user

import (
	"time"

	"github.com/google/uuid"

	"github.com/medrec/medrec/internal/platform/auth"
)

// Status is the account lifecycle state. Status and LockedUntil jointly gate
// authentication; see User.IsLocked.
type Status string

const (
	StatusActive              Status = "active"
	StatusInactive            Status = "inactive"
	StatusLocked              Status = "locked"
	StatusSuspended           Status = "suspended"
	StatusPending             Status = "pending"
	StatusExpired             Status = "expired"
	StatusPendingVerification Status = "pending_verification"
	StatusDeleted             Status = "deleted"
)

var allStatuses = map[Status]bool{
	StatusActive:              true,
	StatusInactive:            true,
	StatusLocked:              true,
	StatusSuspended:           true,
	StatusPending:             true,
	StatusExpired:             true,
	StatusPendingVerification: true,
	StatusDeleted:             true,
}

// Valid reports whether the status is one of the enumerated values.
func (s Status) Valid() bool { return allStatuses[s] }

// User maps to the app_user table. Users are never hard-deleted; SoftDelete
// flips Deleted and stamps DeletedAt.
type User struct {
	ID                  uuid.UUID  `db:"id" json:"id"`
	TenantID            string     `db:"tenant_id" json:"tenant_id"`
	Username            string     `db:"username" json:"username"`
	Email               string     `db:"email" json:"email"`
	PasswordHash        string     `db:"password_hash" json:"-"`
	Role                auth.Role  `db:"role" json:"role"`
	Status              Status     `db:"status" json:"status"`
	FailedLoginAttempts int        `db:"failed_login_attempts" json:"-"`
	LockedUntil         *time.Time `db:"locked_until" json:"locked_until,omitempty"`
	LastLoginAt         *time.Time `db:"last_login_at" json:"last_login_at,omitempty"`
	LastLoginIP         *string    `db:"last_login_ip" json:"-"`
	PractitionerID      *uuid.UUID `db:"practitioner_id" json:"practitioner_id,omitempty"`
	Deleted             bool       `db:"deleted" json:"-"`
	DeletedAt           *time.Time `db:"deleted_at" json:"-"`
	CreatedAt           time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time  `db:"updated_at" json:"updated_at"`
}

// IsLocked reports whether the account is locked at the given instant. A
// locked status whose LockedUntil has already passed reads as unlocked: the
// lock expires lazily on the next check, nothing sweeps it.
func (u *User) IsLocked(now time.Time) bool {
	if u.Status != StatusLocked {
		return false
	}
	if u.LockedUntil == nil {
		return true
	}
	return now.Before(*u.LockedUntil)
}

// CanAuthenticate reports whether the account may attempt a credential check
// at the given instant.
func (u *User) CanAuthenticate(now time.Time) bool {
	if u.Deleted {
		return false
	}
	switch u.Status {
	case StatusActive:
		return true
	case StatusLocked:
		return !u.IsLocked(now)
	}
	return false
}

// Info is the projection of a user returned to authentication callers. It
// never carries the hash or counters.
type Info struct {
	ID             uuid.UUID  `json:"id"`
	Username       string     `json:"username"`
	Email          string     `json:"email"`
	Role           auth.Role  `json:"role"`
	TenantID       string     `json:"tenant_id"`
	PractitionerID *uuid.UUID `json:"practitioner_id,omitempty"`
}

// ToInfo returns the public projection of the user.
func (u *User) ToInfo() *Info {
	return &Info{
		ID:             u.ID,
		Username:       u.Username,
		Email:          u.Email,
		Role:           u.Role,
		TenantID:       u.TenantID,
		PractitionerID: u.PractitionerID,
	}
}

// Scope maps to the user_scope table: a named broad API permission granted to
// a user, independent of patient-level access. Revocation is terminal; rows
// are never deleted.
type Scope struct {
	ID        uuid.UUID  `db:"id" json:"id"`
	UserID    uuid.UUID  `db:"user_id" json:"user_id"`
	TenantID  string     `db:"tenant_id" json:"tenant_id"`
	Name      string     `db:"name" json:"name"`
	GrantedBy uuid.UUID  `db:"granted_by" json:"granted_by"`
	GrantedAt time.Time  `db:"granted_at" json:"granted_at"`
	ExpiresAt *time.Time `db:"expires_at" json:"expires_at,omitempty"`
	Revoked   bool       `db:"revoked" json:"revoked"`
	RevokedAt *time.Time `db:"revoked_at" json:"revoked_at,omitempty"`
}

// EffectiveActive derives whether the scope currently applies. It is computed
// from the stored fields, never stored itself.
func (s *Scope) EffectiveActive(now time.Time) bool {
	if s.Revoked {
		return false
	}
	if s.ExpiresAt != nil && !now.Before(*s.ExpiresAt) {
		return false
	}
	return true
}
