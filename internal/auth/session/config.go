package session

import (
	"os"
	"strconv"
	"time"

	"commons/internal/security/token"
)

// Config defines all runtime configuration for the credential subsystem.
//
// It controls access-token TTL, refresh-token TTL, clock skew tolerance,
// refresh entropy size, and the signing/hashing secrets. Secrets are injected
// here at construction time so they can be rotated and tested with alternate
// keys; nothing in this package reads the environment at use sites.
type Config struct {
	// Issuer is the value set in the "iss" claim of access tokens.
	Issuer string

	// AccessTokenTTL defines the lifetime of signed access tokens.
	AccessTokenTTL time.Duration

	// RefreshTokenTTL defines the lifetime of opaque refresh credentials.
	RefreshTokenTTL time.Duration

	// ClockSkew defines the allowed time skew during token validation.
	ClockSkew time.Duration

	// RefreshTokenBytes defines the number of random bytes used to generate
	// opaque refresh tokens.
	RefreshTokenBytes int

	// SigningKey is the HMAC-SHA256 secret for access-token signatures.
	SigningKey []byte

	// RefreshHMACKey, when set, switches refresh-token at-rest hashing from
	// SHA-256 to HMAC-SHA256.
	RefreshHMACKey []byte
}

// DefaultConfig returns secure defaults suitable for development.
// The signing key has no default; deployments must provide one.
func DefaultConfig() Config {
	return Config{
		Issuer:            "commons",
		AccessTokenTTL:    30 * time.Minute,
		RefreshTokenTTL:   7 * 24 * time.Hour,
		ClockSkew:         30 * time.Second,
		RefreshTokenBytes: 32,
	}
}

// LoadConfigFromEnv loads credential configuration from environment variables.
//
// Required:
//   - COMMONS_AUTH_SIGNING_KEY (>= 32 bytes)
//
// Optional (durations are Go duration strings):
//   - COMMONS_AUTH_ISSUER
//   - COMMONS_AUTH_ACCESS_TTL
//   - COMMONS_AUTH_REFRESH_TTL
//   - COMMONS_AUTH_CLOCK_SKEW
//   - COMMONS_AUTH_REFRESH_TOKEN_BYTES (32..64)
//   - COMMONS_TOKEN_HMAC_KEY (>= 32 bytes when set)
//
// Returns ErrConfig if configuration is invalid.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	if v := os.Getenv("COMMONS_AUTH_ISSUER"); v != "" {
		cfg.Issuer = v
	}

	if v := os.Getenv("COMMONS_AUTH_ACCESS_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, ErrConfig
		}
		cfg.AccessTokenTTL = d
	}

	if v := os.Getenv("COMMONS_AUTH_REFRESH_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, ErrConfig
		}
		cfg.RefreshTokenTTL = d
	}

	if v := os.Getenv("COMMONS_AUTH_CLOCK_SKEW"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			return Config{}, ErrConfig
		}
		cfg.ClockSkew = d
	}

	if v := os.Getenv("COMMONS_AUTH_REFRESH_TOKEN_BYTES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 32 || n > 64 {
			return Config{}, ErrConfig
		}
		cfg.RefreshTokenBytes = n
	}

	key := os.Getenv("COMMONS_AUTH_SIGNING_KEY")
	if len(key) < 32 {
		return Config{}, ErrConfig
	}
	cfg.SigningKey = []byte(key)

	if v := os.Getenv("COMMONS_TOKEN_HMAC_KEY"); v != "" {
		k := []byte(v)
		if err := token.ValidateHMACKey(k); err != nil {
			return Config{}, ErrConfig
		}
		cfg.RefreshHMACKey = k
	}

	// Invariant: a refresh credential must outlive the access token it renews.
	if cfg.RefreshTokenTTL <= cfg.AccessTokenTTL {
		return Config{}, ErrConfig
	}

	return cfg, nil
}
