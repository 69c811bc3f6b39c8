package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfigFromEnv_Defaults(t *testing.T) {
	cfg := LoadConfigFromEnv()

	assert.False(t, cfg.TrustProxy)
	assert.Equal(t, int64(1<<20), cfg.MaxBodyBytes)
	assert.Equal(t, "commons_access", cfg.AccessCookieName)
	assert.Equal(t, "commons_refresh", cfg.RefreshCookieName)
	assert.Equal(t, "/", cfg.CookiePath)
	assert.Equal(t, "/auth", cfg.RefreshCookiePath)
	assert.True(t, cfg.CookieSecure)
	assert.Equal(t, http.SameSiteLaxMode, cfg.CookieSameSite)
}

func TestLoadConfigFromEnv_Overrides(t *testing.T) {
	t.Setenv("COMMONS_AUTH_TRUST_PROXY", "true")
	t.Setenv("COMMONS_AUTH_MAX_BODY_BYTES", "4096")
	t.Setenv("COMMONS_AUTH_COOKIE_SECURE", "false")
	t.Setenv("COMMONS_AUTH_COOKIE_SAMESITE", "strict")
	t.Setenv("COMMONS_AUTH_COOKIE_DOMAIN", "example.com")

	cfg := LoadConfigFromEnv()

	assert.True(t, cfg.TrustProxy)
	assert.Equal(t, int64(4096), cfg.MaxBodyBytes)
	assert.False(t, cfg.CookieSecure)
	assert.Equal(t, http.SameSiteStrictMode, cfg.CookieSameSite)
	assert.Equal(t, "example.com", cfg.CookieDomain)
}

func TestLoadConfigFromEnv_BadValuesFallBack(t *testing.T) {
	t.Setenv("COMMONS_AUTH_MAX_BODY_BYTES", "not-a-number")
	t.Setenv("COMMONS_AUTH_COOKIE_SAMESITE", "bogus")

	cfg := LoadConfigFromEnv()

	assert.Equal(t, int64(1<<20), cfg.MaxBodyBytes)
	assert.Equal(t, http.SameSiteLaxMode, cfg.CookieSameSite)
}
