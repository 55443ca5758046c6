package session

import (
	"testing"
	"time"
)

func TestSession_EffectiveActive(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name      string
		revoked   bool
		expiresAt time.Time
		want      bool
	}{
		{"live", false, now.Add(time.Hour), true},
		{"expired", false, now.Add(-time.Second), false},
		{"expires exactly now", false, now, false},
		{"revoked", true, now.Add(time.Hour), false},
		{"revoked and expired", true, now.Add(-time.Hour), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &Session{Revoked: tt.revoked, ExpiresAt: tt.expiresAt}
			if got := s.EffectiveActive(now); got != tt.want {
				t.Errorf("EffectiveActive() = %v, want %v", got, tt.want)
			}
		})
	}
}

// Once inactive, a session can never read as active again at any later
// instant.
func TestSession_EffectiveActive_Monotonic(t *testing.T) {
	now := time.Now()
	s := &Session{ExpiresAt: now.Add(time.Minute)}

	if !s.EffectiveActive(now) {
		t.Fatal("expected session active before expiry")
	}
	for _, later := range []time.Duration{time.Minute, time.Hour, 24 * time.Hour} {
		if s.EffectiveActive(now.Add(later)) {
			t.Errorf("session active again at +%v", later)
		}
	}
}
