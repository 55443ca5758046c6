package access

import (
	"time"

	"github.com/google/uuid"
)

// Level is a per-patient capability tier. Read, Write and Admin form an
// ordered ladder; Emergency, Research and Analytics sit outside it.
// Research and Analytics grants permit read operations only.
type Level string

const (
	LevelRead      Level = "read"
	LevelWrite     Level = "write"
	LevelAdmin     Level = "admin"
	LevelEmergency Level = "emergency"
	LevelResearch  Level = "research"
	LevelAnalytics Level = "analytics"
)

var levelRank = map[Level]int{
	LevelRead:  1,
	LevelWrite: 2,
	LevelAdmin: 3,
}

func (l Level) Valid() bool {
	switch l {
	case LevelRead, LevelWrite, LevelAdmin, LevelEmergency, LevelResearch, LevelAnalytics:
		return true
	}
	return false
}

// Rank returns the level's position in the Read < Write < Admin ordering,
// or 0 for the tiers outside it.
func (l Level) Rank() int {
	return levelRank[l]
}

// Covers reports whether a grant at level l satisfies a request for level
// requested. Research and Analytics cover read requests only; Emergency
// covers everything (its use is audited separately).
func (l Level) Covers(requested Level) bool {
	switch l {
	case LevelEmergency:
		return true
	case LevelResearch, LevelAnalytics:
		return requested == LevelRead
	}
	return l.Rank() >= requested.Rank()
}

// MorePrivileged reports whether l outranks other when resolving overlapping
// grants. Emergency outranks everything; Research and Analytics rank below
// Read since they carry no write capability.
func (l Level) MorePrivileged(other Level) bool {
	return l.resolution() > other.resolution()
}

func (l Level) resolution() int {
	switch l {
	case LevelEmergency:
		return 4
	case LevelResearch, LevelAnalytics:
		return 0
	}
	return l.Rank()
}

// Grant is one row of the per-patient access ledger. Grants are append-only:
// revocation flips Enabled and records who and why, the row itself is kept
// for audit history. Multiple active grants may coexist for the same
// (user, patient) pair; reads resolve them most-privileged-wins.
type Grant struct {
	ID            uuid.UUID  `db:"id" json:"id"`
	UserID        uuid.UUID  `db:"user_id" json:"user_id"`
	PatientID     uuid.UUID  `db:"patient_id" json:"patient_id"`
	TenantID      string     `db:"tenant_id" json:"tenant_id"`
	Level         Level      `db:"access_level" json:"access_level"`
	GrantedBy     uuid.UUID  `db:"granted_by" json:"granted_by"`
	Reason        *string    `db:"reason" json:"reason,omitempty"`
	Justification *string    `db:"justification" json:"justification,omitempty"`
	GrantedAt     time.Time  `db:"granted_at" json:"granted_at"`
	ExpiresAt     *time.Time `db:"expires_at" json:"expires_at,omitempty"`
	Enabled       bool       `db:"enabled" json:"enabled"`
	DisabledAt    *time.Time `db:"disabled_at" json:"disabled_at,omitempty"`
	DisabledBy    *uuid.UUID `db:"disabled_by" json:"disabled_by,omitempty"`
	DisableReason *string    `db:"disable_reason" json:"disable_reason,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
}

// EffectiveActive derives the grant's live status from the manual flag and
// the expiry. It is never stored; expiry is enforced lazily at read time.
func (g *Grant) EffectiveActive(now time.Time) bool {
	if !g.Enabled {
		return false
	}
	if g.ExpiresAt != nil && !now.Before(*g.ExpiresAt) {
		return false
	}
	return true
}
