package session

import (
	"errors"
	"testing"
	"time"
)

const testEnvSigningKey = "0123456789abcdef0123456789abcdef"

func TestLoadConfigFromEnv_Defaults(t *testing.T) {
	t.Setenv("COMMONS_AUTH_SIGNING_KEY", testEnvSigningKey)

	cfg, err := LoadConfigFromEnv()
	if err != nil {
		t.Fatalf("LoadConfigFromEnv: %v", err)
	}
	if cfg.Issuer != "commons" {
		t.Fatalf("Issuer = %q, want commons", cfg.Issuer)
	}
	if cfg.AccessTokenTTL != 30*time.Minute {
		t.Fatalf("AccessTokenTTL = %v, want 30m", cfg.AccessTokenTTL)
	}
	if cfg.RefreshTokenTTL != 7*24*time.Hour {
		t.Fatalf("RefreshTokenTTL = %v, want 168h", cfg.RefreshTokenTTL)
	}
	if string(cfg.SigningKey) != testEnvSigningKey {
		t.Fatal("SigningKey not taken from environment")
	}
	if cfg.RefreshHMACKey != nil {
		t.Fatal("RefreshHMACKey should be unset by default")
	}
}

func TestLoadConfigFromEnv_Overrides(t *testing.T) {
	t.Setenv("COMMONS_AUTH_SIGNING_KEY", testEnvSigningKey)
	t.Setenv("COMMONS_AUTH_ISSUER", "commons-stage")
	t.Setenv("COMMONS_AUTH_ACCESS_TTL", "15m")
	t.Setenv("COMMONS_AUTH_REFRESH_TTL", "72h")
	t.Setenv("COMMONS_AUTH_CLOCK_SKEW", "10s")
	t.Setenv("COMMONS_AUTH_REFRESH_TOKEN_BYTES", "48")
	t.Setenv("COMMONS_TOKEN_HMAC_KEY", "ffffffffffffffffffffffffffffffff")

	cfg, err := LoadConfigFromEnv()
	if err != nil {
		t.Fatalf("LoadConfigFromEnv: %v", err)
	}
	if cfg.Issuer != "commons-stage" {
		t.Fatalf("Issuer = %q", cfg.Issuer)
	}
	if cfg.AccessTokenTTL != 15*time.Minute || cfg.RefreshTokenTTL != 72*time.Hour {
		t.Fatalf("TTLs = %v / %v", cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	}
	if cfg.ClockSkew != 10*time.Second {
		t.Fatalf("ClockSkew = %v", cfg.ClockSkew)
	}
	if cfg.RefreshTokenBytes != 48 {
		t.Fatalf("RefreshTokenBytes = %d", cfg.RefreshTokenBytes)
	}
	if len(cfg.RefreshHMACKey) != 32 {
		t.Fatalf("RefreshHMACKey length = %d", len(cfg.RefreshHMACKey))
	}
}

func TestLoadConfigFromEnv_Invalid(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
	}{
		{"missing signing key", map[string]string{}},
		{"short signing key", map[string]string{
			"COMMONS_AUTH_SIGNING_KEY": "too-short",
		}},
		{"bad access ttl", map[string]string{
			"COMMONS_AUTH_SIGNING_KEY": testEnvSigningKey,
			"COMMONS_AUTH_ACCESS_TTL":  "soon",
		}},
		{"negative refresh ttl", map[string]string{
			"COMMONS_AUTH_SIGNING_KEY": testEnvSigningKey,
			"COMMONS_AUTH_REFRESH_TTL": "-1h",
		}},
		{"refresh not longer than access", map[string]string{
			"COMMONS_AUTH_SIGNING_KEY": testEnvSigningKey,
			"COMMONS_AUTH_ACCESS_TTL":  "1h",
			"COMMONS_AUTH_REFRESH_TTL": "30m",
		}},
		{"token bytes below floor", map[string]string{
			"COMMONS_AUTH_SIGNING_KEY":         testEnvSigningKey,
			"COMMONS_AUTH_REFRESH_TOKEN_BYTES": "16",
		}},
		{"token bytes above ceiling", map[string]string{
			"COMMONS_AUTH_SIGNING_KEY":         testEnvSigningKey,
			"COMMONS_AUTH_REFRESH_TOKEN_BYTES": "128",
		}},
		{"short hmac key", map[string]string{
			"COMMONS_AUTH_SIGNING_KEY": testEnvSigningKey,
			"COMMONS_TOKEN_HMAC_KEY":   "short",
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("COMMONS_AUTH_SIGNING_KEY", "")
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			if _, err := LoadConfigFromEnv(); !errors.Is(err, ErrConfig) {
				t.Fatalf("err = %v, want ErrConfig", err)
			}
		})
	}
}
