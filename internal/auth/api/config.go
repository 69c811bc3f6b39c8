package api

import (
	"net/http"
	"os"
	"strconv"
	"strings"
)

// Config controls auth API transport behavior and security defaults.
type Config struct {
	TrustProxy   bool
	MaxBodyBytes int64

	AccessCookieName  string
	RefreshCookieName string
	CSRFCookieName    string

	// CookiePath scopes the access and CSRF cookies; RefreshCookiePath
	// scopes the refresh cookie to the auth endpoints only.
	CookiePath        string
	RefreshCookiePath string

	CSRFHeaderName string

	CookieDomain   string
	CookieSecure   bool
	CookieSameSite http.SameSite
}

// LoadConfigFromEnv loads transport config from environment variables with
// safe defaults.
func LoadConfigFromEnv() Config {
	cfg := Config{
		TrustProxy:   envBool("COMMONS_AUTH_TRUST_PROXY", false),
		MaxBodyBytes: envInt64("COMMONS_AUTH_MAX_BODY_BYTES", 1<<20), // 1 MiB

		AccessCookieName:  envString("COMMONS_AUTH_ACCESS_COOKIE", "commons_access"),
		RefreshCookieName: envString("COMMONS_AUTH_REFRESH_COOKIE", "commons_refresh"),
		CSRFCookieName:    envString("COMMONS_AUTH_CSRF_COOKIE", "commons_csrf"),

		CookiePath:        "/",
		RefreshCookiePath: "/auth",

		CSRFHeaderName: "X-CSRF-Token",

		CookieDomain:   strings.TrimSpace(os.Getenv("COMMONS_AUTH_COOKIE_DOMAIN")),
		CookieSecure:   envBool("COMMONS_AUTH_COOKIE_SECURE", true),
		CookieSameSite: envSameSite("COMMONS_AUTH_COOKIE_SAMESITE", http.SameSiteLaxMode),
	}

	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}

	return cfg
}

func envString(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envInt64(key string, def int64) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envSameSite(key string, def http.SameSite) http.SameSite {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "strict":
		return http.SameSiteStrictMode
	case "lax":
		return http.SameSiteLaxMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return def
	}
}
