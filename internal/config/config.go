package config

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port        string `mapstructure:"PORT"`
	Env         string `mapstructure:"ENV"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32  `mapstructure:"DB_MIN_CONNS"`

	DefaultTenant string `mapstructure:"DEFAULT_TENANT"`

	// Token policy. The signing key is a 64-char hex string (32 bytes decoded)
	// shared by every instance that verifies tokens.
	JWTSigningKey       string `mapstructure:"JWT_SIGNING_KEY"`
	JWTIssuer           string `mapstructure:"JWT_ISSUER"`
	AccessTokenTTLMins  int    `mapstructure:"ACCESS_TOKEN_TTL_MINUTES"`
	RefreshTokenTTLDays int    `mapstructure:"REFRESH_TOKEN_TTL_DAYS"`

	// Lockout policy.
	LockoutThreshold    int `mapstructure:"LOCKOUT_THRESHOLD"`
	LockoutDurationMins int `mapstructure:"LOCKOUT_DURATION_MINUTES"`

	// Emergency access policy.
	EmergencyAccessMaxMins int `mapstructure:"EMERGENCY_ACCESS_MAX_MINUTES"`

	RateLimitRPS   float64 `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int     `mapstructure:"RATE_LIMIT_BURST"`

	TLSEnabled  bool   `mapstructure:"TLS_ENABLED"`
	TLSCertFile string `mapstructure:"TLS_CERT_FILE"`
	TLSKeyFile  string `mapstructure:"TLS_KEY_FILE"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("DEFAULT_TENANT", "default")
	v.SetDefault("JWT_ISSUER", "medrec")
	v.SetDefault("ACCESS_TOKEN_TTL_MINUTES", 15)
	v.SetDefault("REFRESH_TOKEN_TTL_DAYS", 7)
	v.SetDefault("LOCKOUT_THRESHOLD", 5)
	v.SetDefault("LOCKOUT_DURATION_MINUTES", 15)
	v.SetDefault("EMERGENCY_ACCESS_MAX_MINUTES", 1440)
	v.SetDefault("RATE_LIMIT_RPS", 100)
	v.SetDefault("RATE_LIMIT_BURST", 200)

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("DEFAULT_TENANT")
	v.BindEnv("JWT_SIGNING_KEY")
	v.BindEnv("JWT_ISSUER")
	v.BindEnv("ACCESS_TOKEN_TTL_MINUTES")
	v.BindEnv("REFRESH_TOKEN_TTL_DAYS")
	v.BindEnv("LOCKOUT_THRESHOLD")
	v.BindEnv("LOCKOUT_DURATION_MINUTES")
	v.BindEnv("EMERGENCY_ACCESS_MAX_MINUTES")
	v.BindEnv("RATE_LIMIT_RPS")
	v.BindEnv("RATE_LIMIT_BURST")
	v.BindEnv("TLS_ENABLED")
	v.BindEnv("TLS_CERT_FILE")
	v.BindEnv("TLS_KEY_FILE")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// AccessTokenTTL returns the access-token lifetime as a duration.
func (c *Config) AccessTokenTTL() time.Duration {
	return time.Duration(c.AccessTokenTTLMins) * time.Minute
}

// RefreshTokenTTL returns the refresh-token lifetime as a duration.
func (c *Config) RefreshTokenTTL() time.Duration {
	return time.Duration(c.RefreshTokenTTLDays) * 24 * time.Hour
}

// LockoutDuration returns how long an account stays locked after the
// failure threshold is crossed.
func (c *Config) LockoutDuration() time.Duration {
	return time.Duration(c.LockoutDurationMins) * time.Minute
}

// EmergencyAccessMax returns the ceiling for emergency grant lifetimes.
func (c *Config) EmergencyAccessMax() time.Duration {
	return time.Duration(c.EmergencyAccessMaxMins) * time.Minute
}

// SigningKey decodes JWT_SIGNING_KEY. Validate must have passed first.
func (c *Config) SigningKey() []byte {
	key, _ := hex.DecodeString(c.JWTSigningKey)
	return key
}

// Validate checks that the configuration is safe to run. The signing key is
// required in every mode: there is no unauthenticated fallback for a service
// that gates access to patient records.
func (c *Config) Validate() error {
	if c.JWTSigningKey == "" {
		return fmt.Errorf("JWT_SIGNING_KEY is required")
	}
	keyBytes, err := hex.DecodeString(c.JWTSigningKey)
	if err != nil {
		return fmt.Errorf("JWT_SIGNING_KEY is not valid hex: %w", err)
	}
	if len(keyBytes) != 32 {
		return fmt.Errorf("JWT_SIGNING_KEY must be 32 bytes (64 hex chars), got %d bytes", len(keyBytes))
	}

	if c.AccessTokenTTLMins <= 0 {
		return fmt.Errorf("ACCESS_TOKEN_TTL_MINUTES must be positive, got %d", c.AccessTokenTTLMins)
	}
	if c.RefreshTokenTTLDays <= 0 {
		return fmt.Errorf("REFRESH_TOKEN_TTL_DAYS must be positive, got %d", c.RefreshTokenTTLDays)
	}
	if c.LockoutThreshold <= 0 {
		return fmt.Errorf("LOCKOUT_THRESHOLD must be positive, got %d", c.LockoutThreshold)
	}
	if c.LockoutDurationMins <= 0 {
		return fmt.Errorf("LOCKOUT_DURATION_MINUTES must be positive, got %d", c.LockoutDurationMins)
	}
	if c.EmergencyAccessMaxMins <= 0 {
		return fmt.Errorf("EMERGENCY_ACCESS_MAX_MINUTES must be positive, got %d", c.EmergencyAccessMaxMins)
	}

	// TLS validation: when TLS is enabled, cert and key files must be specified.
	if c.TLSEnabled {
		if c.TLSCertFile == "" {
			return fmt.Errorf("TLS_CERT_FILE is required when TLS_ENABLED is true")
		}
		if c.TLSKeyFile == "" {
			return fmt.Errorf("TLS_KEY_FILE is required when TLS_ENABLED is true")
		}
	}

	return nil
}
