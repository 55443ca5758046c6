package config

import (
	"strings"
	"testing"
	"time"
)

const testKey = "000102030405060708090a0b0c0d0e0f000102030405060708090a0b0c0d0e0f"

func validConfig() *Config {
	return &Config{
		Port:                   "8000",
		Env:                    "production",
		DatabaseURL:            "postgres://localhost/medrec",
		JWTSigningKey:          testKey,
		JWTIssuer:              "medrec",
		AccessTokenTTLMins:     15,
		RefreshTokenTTLDays:    7,
		LockoutThreshold:       5,
		LockoutDurationMins:    15,
		EmergencyAccessMaxMins: 1440,
	}
}

func TestValidate_OK(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
}

func TestValidate_MissingSigningKey(t *testing.T) {
	cfg := validConfig()
	cfg.JWTSigningKey = ""
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "JWT_SIGNING_KEY") {
		t.Fatalf("expected signing key error, got %v", err)
	}
}

func TestValidate_SigningKeyNotHex(t *testing.T) {
	cfg := validConfig()
	cfg.JWTSigningKey = "zz" + testKey[2:]
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for non-hex key")
	}
}

func TestValidate_SigningKeyWrongLength(t *testing.T) {
	cfg := validConfig()
	cfg.JWTSigningKey = "abcd"
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "32 bytes") {
		t.Fatalf("expected length error, got %v", err)
	}
}

func TestValidate_PolicyConstants(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero access ttl", func(c *Config) { c.AccessTokenTTLMins = 0 }},
		{"negative refresh ttl", func(c *Config) { c.RefreshTokenTTLDays = -1 }},
		{"zero lockout threshold", func(c *Config) { c.LockoutThreshold = 0 }},
		{"zero lockout duration", func(c *Config) { c.LockoutDurationMins = 0 }},
		{"zero emergency max", func(c *Config) { c.EmergencyAccessMaxMins = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestValidate_TLSRequiresFiles(t *testing.T) {
	cfg := validConfig()
	cfg.TLSEnabled = true
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when TLS enabled without cert/key files")
	}

	cfg.TLSCertFile = "/etc/medrec/tls.crt"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when TLS key file missing")
	}

	cfg.TLSKeyFile = "/etc/medrec/tls.key"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid TLS config, got %v", err)
	}
}

func TestDurationHelpers(t *testing.T) {
	cfg := validConfig()
	if got := cfg.AccessTokenTTL(); got != 15*time.Minute {
		t.Errorf("AccessTokenTTL = %v, want 15m", got)
	}
	if got := cfg.RefreshTokenTTL(); got != 7*24*time.Hour {
		t.Errorf("RefreshTokenTTL = %v, want 168h", got)
	}
	if got := cfg.LockoutDuration(); got != 15*time.Minute {
		t.Errorf("LockoutDuration = %v, want 15m", got)
	}
	if got := cfg.EmergencyAccessMax(); got != 24*time.Hour {
		t.Errorf("EmergencyAccessMax = %v, want 24h", got)
	}
}

func TestSigningKeyDecodes(t *testing.T) {
	cfg := validConfig()
	key := cfg.SigningKey()
	if len(key) != 32 {
		t.Fatalf("expected 32-byte key, got %d", len(key))
	}
}

func TestEnvHelpers(t *testing.T) {
	cfg := validConfig()
	if cfg.IsDev() {
		t.Error("production config reported as dev")
	}
	if !cfg.IsProduction() {
		t.Error("production config not reported as production")
	}
	cfg.Env = "development"
	if !cfg.IsDev() {
		t.Error("development config not reported as dev")
	}
}
