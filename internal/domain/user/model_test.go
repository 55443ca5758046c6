package user

import (
	"testing"
	"time"
)

func TestUser_IsLocked(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	tests := []struct {
		name        string
		status      Status
		lockedUntil *time.Time
		want        bool
	}{
		{"active", StatusActive, nil, false},
		{"locked no expiry", StatusLocked, nil, true},
		{"locked until future", StatusLocked, &future, true},
		{"lock expired", StatusLocked, &past, false},
		{"suspended with future lock", StatusSuspended, &future, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := &User{Status: tt.status, LockedUntil: tt.lockedUntil}
			if got := u.IsLocked(now); got != tt.want {
				t.Errorf("IsLocked() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestUser_CanAuthenticate(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	tests := []struct {
		name        string
		status      Status
		lockedUntil *time.Time
		deleted     bool
		want        bool
	}{
		{"active", StatusActive, nil, false, true},
		{"deleted", StatusActive, nil, true, false},
		{"suspended", StatusSuspended, nil, false, false},
		{"inactive", StatusInactive, nil, false, false},
		{"pending", StatusPending, nil, false, false},
		{"locked", StatusLocked, &future, false, false},
		{"lock lapsed", StatusLocked, &past, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := &User{Status: tt.status, LockedUntil: tt.lockedUntil, Deleted: tt.deleted}
			if got := u.CanAuthenticate(now); got != tt.want {
				t.Errorf("CanAuthenticate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestScope_EffectiveActive(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	tests := []struct {
		name      string
		revoked   bool
		expiresAt *time.Time
		want      bool
	}{
		{"open-ended", false, nil, true},
		{"expires later", false, &future, true},
		{"expired", false, &past, false},
		{"revoked", true, nil, false},
		{"revoked and unexpired", true, &future, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &Scope{Revoked: tt.revoked, ExpiresAt: tt.expiresAt}
			if got := s.EffectiveActive(now); got != tt.want {
				t.Errorf("EffectiveActive() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestHashPassword(t *testing.T) {
	hash, err := HashPassword("correct horse battery")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if hash == "correct horse battery" {
		t.Error("hash must not equal plaintext")
	}
	if !CheckPassword(hash, "correct horse battery") {
		t.Error("expected matching password to verify")
	}
	if CheckPassword(hash, "wrong password") {
		t.Error("expected mismatched password to fail")
	}
}

func TestHashPassword_RejectsShort(t *testing.T) {
	if _, err := HashPassword("short"); err == nil {
		t.Error("expected error for password under minimum length")
	}
}

func TestToInfo_OmitsSecrets(t *testing.T) {
	u := &User{Username: "alice", Email: "alice@example.org", PasswordHash: "hash", FailedLoginAttempts: 3}
	info := u.ToInfo()
	if info.Username != "alice" || info.Email != "alice@example.org" {
		t.Errorf("unexpected projection: %+v", info)
	}
}
