package api

import (
	"context"
	"errors"
	"net/http"

	"commons/internal/auth/session"
	"commons/internal/identity"
)

type ctxKey int

const claimsKey ctxKey = iota

// PrincipalFrom extracts the authenticated claims from a request context.
func PrincipalFrom(ctx context.Context) (session.AccessClaims, bool) {
	claims, ok := ctx.Value(claimsKey).(session.AccessClaims)
	return claims, ok
}

func withClaims(ctx context.Context, claims session.AccessClaims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

// WithSession authenticates the request before calling next. An access
// token that fails verification — expired or not — is refreshed silently
// when a refresh cookie is present: the session rotates, new cookies land
// on this response, and next runs with the fresh claims. Anything else
// answers 401.
func (h *Handler) WithSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := h.authenticate(w, r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
			return
		}
		next.ServeHTTP(w, r.WithContext(withClaims(r.Context(), claims)))
	})
}

// WithOptionalSession attaches claims when a valid session rides along and
// calls next either way. Expired tokens still get the silent refresh
// attempt; failures degrade to an anonymous request instead of a 401.
func (h *Handler) WithOptionalSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if claims, ok := h.authenticate(w, r); ok {
			r = r.WithContext(withClaims(r.Context(), claims))
		}
		next.ServeHTTP(w, r)
	})
}

// RequireRole gates next behind a role. It expects to run inside
// WithSession; an unauthenticated request answers 401 and a wrong role 403.
func (h *Handler) RequireRole(role identity.Role, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := PrincipalFrom(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
			return
		}
		if claims.Role != role {
			writeError(w, http.StatusForbidden, "forbidden", "insufficient role")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// authenticate resolves the request's access token to claims, performing a
// silent refresh when the token fails verification. It may write Set-Cookie
// headers on w but never writes a response body or status.
func (h *Handler) authenticate(w http.ResponseWriter, r *http.Request) (session.AccessClaims, bool) {
	tok := h.accessTokenFromRequest(r)
	if tok == "" {
		return session.AccessClaims{}, false
	}

	now := h.now()
	claims, err := h.sessions.VerifyAccess(tok, now)
	if err == nil {
		return claims, true
	}

	// Expired or otherwise unverifiable. Rotate on the refresh cookie when
	// the client sent one; the refresh token alone decides whether the
	// caller gets a new pair, so a garbled access token is no worse than a
	// missing one. No CSRF pair here: a silent refresh only re-arms the
	// caller's own cookies and the handler behind it never runs with
	// forged identity.
	refreshToken, ok := h.refreshTokenFromCookie(r)
	if !ok {
		return session.AccessClaims{}, false
	}

	issued, err := h.sessions.Refresh(r.Context(), now, refreshToken, session.DeviceContext{
		UserAgent: r.UserAgent(),
		IP:        clientIP(r, h.cfg.TrustProxy),
	})
	if err != nil {
		silentRefreshTotal.WithLabelValues(outcomeDenied).Inc()
		if errors.Is(err, session.ErrRefreshReuseDetected) {
			h.auditRefreshReuse(r.Context(), clientIP(r, h.cfg.TrustProxy), r.UserAgent())
		}
		return session.AccessClaims{}, false
	}

	if err := h.setSessionCookies(w, issued); err != nil {
		silentRefreshTotal.WithLabelValues(outcomeInternal).Inc()
		h.log.Error("auth.silent_refresh.cookie.fail", "err", err)
		return session.AccessClaims{}, false
	}

	silentRefreshTotal.WithLabelValues(outcomeOK).Inc()

	claims, err = h.sessions.VerifyAccess(issued.AccessToken, now)
	if err != nil {
		return session.AccessClaims{}, false
	}
	return claims, true
}
