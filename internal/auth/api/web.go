package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"commons/internal/auth/session"
	"commons/internal/security/token"
)

// setSessionCookies installs the full cookie set for an issued token pair:
// the access token on the whole site, the refresh token scoped to the auth
// endpoints, and a CSRF pairing token readable by scripts.
func (h *Handler) setSessionCookies(w http.ResponseWriter, issued session.Issued) error {
	csrf, err := token.NewOpaque(32)
	if err != nil {
		return err
	}

	// The access cookie outlives the token it carries: an expired-but-present
	// token is what triggers the silent refresh, so dropping the cookie at
	// token expiry would strand browsers on a 401 instead.
	http.SetCookie(w, &http.Cookie{
		Name:     h.cfg.AccessCookieName,
		Value:    issued.AccessToken,
		Path:     h.cfg.CookiePath,
		Domain:   h.cfg.CookieDomain,
		Expires:  issued.RefreshExpiresAt,
		HttpOnly: true,
		Secure:   h.cfg.CookieSecure,
		SameSite: h.cfg.CookieSameSite,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     h.cfg.RefreshCookieName,
		Value:    issued.RefreshToken,
		Path:     h.cfg.RefreshCookiePath,
		Domain:   h.cfg.CookieDomain,
		Expires:  issued.RefreshExpiresAt,
		HttpOnly: true,
		Secure:   h.cfg.CookieSecure,
		SameSite: h.cfg.CookieSameSite,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     h.cfg.CSRFCookieName,
		Value:    csrf,
		Path:     h.cfg.CookiePath,
		Domain:   h.cfg.CookieDomain,
		Expires:  issued.RefreshExpiresAt,
		HttpOnly: false,
		Secure:   h.cfg.CookieSecure,
		SameSite: h.cfg.CookieSameSite,
	})
	return nil
}

// clearSessionCookies expires the cookie set with attributes mirroring the
// ones they were set with, so browsers actually drop them.
func (h *Handler) clearSessionCookies(w http.ResponseWriter) {
	h.expireCookie(w, h.cfg.AccessCookieName, h.cfg.CookiePath, true)
	h.expireCookie(w, h.cfg.RefreshCookieName, h.cfg.RefreshCookiePath, true)
	h.expireCookie(w, h.cfg.CSRFCookieName, h.cfg.CookiePath, false)
}

func (h *Handler) expireCookie(w http.ResponseWriter, name, path string, httpOnly bool) {
	if strings.TrimSpace(name) == "" {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     path,
		Domain:   h.cfg.CookieDomain,
		Expires:  time.Unix(0, 0).UTC(),
		MaxAge:   -1,
		HttpOnly: httpOnly,
		Secure:   h.cfg.CookieSecure,
		SameSite: h.cfg.CookieSameSite,
	})
}

// accessTokenFromRequest reads the access token from the cookie, falling
// back to a bearer Authorization header for non-browser clients.
func (h *Handler) accessTokenFromRequest(r *http.Request) string {
	if c, err := r.Cookie(h.cfg.AccessCookieName); err == nil {
		if v := strings.TrimSpace(c.Value); v != "" {
			return v
		}
	}
	return bearerToken(r)
}

func (h *Handler) refreshTokenFromCookie(r *http.Request) (string, bool) {
	c, err := r.Cookie(h.cfg.RefreshCookieName)
	if err != nil {
		return "", false
	}
	v := strings.TrimSpace(c.Value)
	if v == "" {
		return "", false
	}
	return v, true
}

// csrfDoubleSubmitValid checks the double-submit pair: the CSRF cookie must
// match the value the client echoed in the request header.
func (h *Handler) csrfDoubleSubmitValid(r *http.Request) bool {
	c, err := r.Cookie(h.cfg.CSRFCookieName)
	if err != nil {
		return false
	}
	cv := strings.TrimSpace(c.Value)
	hv := strings.TrimSpace(r.Header.Get(h.cfg.CSRFHeaderName))
	if cv == "" || hv == "" {
		return false
	}
	return secureStringEqual(cv, hv)
}

func bearerToken(r *http.Request) string {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	if raw == "" {
		return ""
	}
	parts := strings.SplitN(raw, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func secureStringEqual(a, b string) bool {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
