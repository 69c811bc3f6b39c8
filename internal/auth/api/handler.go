package api

import (
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"commons/internal/auth/session"
	"commons/internal/identity"
	"commons/internal/security/password"
)

// Handler wires the HTTP auth endpoints to the identity and session
// services.
type Handler struct {
	log *slog.Logger
	cfg Config

	principals identity.Store
	sessions   *session.Service

	// pool is only used for audit log inserts; nil in memory mode.
	pool *pgxpool.Pool

	// now is swappable so tests can move the clock.
	now func() time.Time
}

// NewHandler constructs an auth Handler. pool may be nil, which disables
// audit logging.
func NewHandler(log *slog.Logger, cfg Config, principals identity.Store, sessions *session.Service, pool *pgxpool.Pool) (*Handler, error) {
	if log == nil {
		log = slog.Default()
	}
	if principals == nil || sessions == nil {
		return nil, errors.New("api: nil identity store or session service")
	}
	return &Handler{
		log:        log,
		cfg:        cfg,
		principals: principals,
		sessions:   sessions,
		pool:       pool,
		now:        func() time.Time { return time.Now().UTC() },
	}, nil
}

// Register wires auth routes onto the provided mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	mux.HandleFunc("/auth/register", h.handleRegister)
	mux.HandleFunc("/auth/login", h.handleLogin)
	mux.HandleFunc("/auth/refresh", h.handleRefresh)
	mux.HandleFunc("/auth/logout", h.handleLogout)
	mux.HandleFunc("/auth/logout_all", h.WithSession(http.HandlerFunc(h.handleLogoutAll)).ServeHTTP)
	mux.HandleFunc("/auth/revoke", h.WithSession(h.RequireRole(identity.RoleAdmin, http.HandlerFunc(h.handleRevoke))).ServeHTTP)
	mux.HandleFunc("/me", h.WithSession(http.HandlerFunc(h.handleMe)).ServeHTTP)
}

// ---- handlers ----

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req registerRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	username := strings.TrimSpace(req.Username)
	if username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "username and password are required")
		return
	}

	ctx := r.Context()
	now := h.now()
	ip := clientIP(r, h.cfg.TrustProxy)
	ua := strings.TrimSpace(r.UserAgent())

	issued, err := h.sessions.Register(ctx, now, session.RegisterInput{
		Username:    username,
		Password:    req.Password,
		DisplayName: trimPtr(req.DisplayName),
		Bio:         trimPtr(req.Bio),
	}, session.DeviceContext{UserAgent: ua, IP: ip})
	if err != nil {
		switch {
		case errors.Is(err, session.ErrUsernameTaken):
			writeError(w, http.StatusConflict, "username_taken", "username already exists")
		case errors.Is(err, password.ErrPasswordTooShort), errors.Is(err, password.ErrPasswordTooLong):
			writeError(w, http.StatusBadRequest, "invalid_request", "password does not meet policy")
		default:
			h.log.Error("auth.register.fail", "err", err)
			writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		}
		return
	}

	h.auditRegister(ctx, issued.Principal.ID, ip, ua)

	if err := h.setSessionCookies(w, issued); err != nil {
		h.log.Error("auth.register.cookie.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	resp := toSessionResponse(issued)
	resp.AccessToken = ""
	resp.RefreshToken = ""
	writeJSON(w, http.StatusCreated, registerResponse{
		Principal: toPrincipalResponse(issued.Principal),
		Session:   resp,
	})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req loginRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	username := strings.TrimSpace(req.Username)
	if username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "username and password are required")
		return
	}

	ctx := r.Context()
	now := h.now()
	ip := clientIP(r, h.cfg.TrustProxy)
	ua := strings.TrimSpace(r.UserAgent())

	issued, err := h.sessions.Login(ctx, now, username, req.Password, session.DeviceContext{
		UserAgent: ua,
		IP:        ip,
	})
	if err != nil {
		if errors.Is(err, session.ErrInvalidCredentials) {
			loginTotal.WithLabelValues(outcomeDenied).Inc()
			h.auditLoginFailed(ctx, nil, ip, ua, username, "invalid_credentials")
			writeError(w, http.StatusUnauthorized, "invalid_credentials", "invalid credentials")
			return
		}
		loginTotal.WithLabelValues(outcomeInternal).Inc()
		h.log.Error("auth.login.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	loginTotal.WithLabelValues(outcomeOK).Inc()
	h.auditLoginSuccess(ctx, issued.Principal.ID, issued.SessionID, ip, ua)

	if err := h.setSessionCookies(w, issued); err != nil {
		h.log.Error("auth.login.cookie.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	resp := toSessionResponse(issued)
	resp.AccessToken = ""
	resp.RefreshToken = ""
	writeJSON(w, http.StatusOK, loginResponse{
		Principal: toPrincipalResponse(issued.Principal),
		Session:   resp,
	})
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req refreshRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
			return
		}
	}
	refreshToken := strings.TrimSpace(req.RefreshToken)
	fromCookie := false
	if cookieToken, ok := h.refreshTokenFromCookie(r); ok && refreshToken == "" {
		fromCookie = true
		refreshToken = cookieToken
	}
	if refreshToken == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "refresh_token is required")
		return
	}
	// Cookie-sourced refreshes are reachable by cross-site form posts, so
	// they require the double-submit CSRF pair. Body-sourced tokens already
	// prove the caller can read our responses.
	if fromCookie && !h.csrfDoubleSubmitValid(r) {
		writeError(w, http.StatusForbidden, "forbidden", "missing or invalid csrf token")
		return
	}

	ctx := r.Context()
	now := h.now()
	ip := clientIP(r, h.cfg.TrustProxy)
	ua := strings.TrimSpace(r.UserAgent())

	issued, err := h.sessions.Refresh(ctx, now, refreshToken, session.DeviceContext{
		UserAgent: ua,
		IP:        ip,
	})
	if err != nil {
		switch {
		case errors.Is(err, session.ErrRefreshReuseDetected):
			refreshTotal.WithLabelValues(outcomeReuse).Inc()
			h.auditRefreshReuse(ctx, ip, ua)
			h.clearSessionCookies(w)
			// Same answer as any other bad token; reuse is not disclosed.
			writeError(w, http.StatusUnauthorized, "invalid_refresh_token", "invalid or expired refresh token")
		case errors.Is(err, session.ErrInvalidRefreshToken):
			refreshTotal.WithLabelValues(outcomeDenied).Inc()
			h.clearSessionCookies(w)
			writeError(w, http.StatusUnauthorized, "invalid_refresh_token", "invalid or expired refresh token")
		default:
			refreshTotal.WithLabelValues(outcomeInternal).Inc()
			h.log.Error("auth.refresh.fail", "err", err)
			writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		}
		return
	}

	refreshTotal.WithLabelValues(outcomeOK).Inc()
	h.auditRefreshSuccess(ctx, issued.SessionID, ip, ua)

	if err := h.setSessionCookies(w, issued); err != nil {
		h.log.Error("auth.refresh.cookie.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	resp := toSessionResponse(issued)
	if fromCookie {
		resp.AccessToken = ""
		resp.RefreshToken = ""
	}
	writeJSON(w, http.StatusOK, refreshResponse{Session: resp})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	// A garbage body is treated as "no token presented": logout must not
	// fail visibly, and the refresh cookie can still name the session.
	var req logoutRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
			req = logoutRequest{}
		}
	}
	refreshToken := strings.TrimSpace(req.RefreshToken)
	if refreshToken == "" {
		if cookieToken, ok := h.refreshTokenFromCookie(r); ok {
			refreshToken = cookieToken
		}
	}

	ctx := r.Context()
	now := h.now()

	// Logout always answers 204. A missing or already-dead token leaves
	// nothing to revoke, which is the state the client asked for.
	if refreshToken != "" {
		if err := h.sessions.Logout(ctx, now, refreshToken); err != nil {
			h.log.Error("auth.logout.fail", "err", err)
			writeError(w, http.StatusInternalServerError, "server_error", "internal error")
			return
		}
	}

	h.auditLogout(ctx, clientIP(r, h.cfg.TrustProxy), strings.TrimSpace(r.UserAgent()))
	h.clearSessionCookies(w)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleLogoutAll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	claims, ok := PrincipalFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}

	ctx := r.Context()
	now := h.now()

	n, err := h.sessions.RevokeAll(ctx, now, claims.PrincipalID, session.ReasonLogoutAll)
	if err != nil {
		h.log.Error("auth.logout_all.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	h.auditLogoutAll(ctx, claims.PrincipalID, n, clientIP(r, h.cfg.TrustProxy), strings.TrimSpace(r.UserAgent()))
	h.clearSessionCookies(w)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	claims, ok := PrincipalFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}

	var req revokeRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	targetID := strings.TrimSpace(req.PrincipalID)
	if targetID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "principal_id is required")
		return
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		reason = session.ReasonCompromise
	}

	ctx := r.Context()
	now := h.now()

	n, err := h.sessions.RevokeAll(ctx, now, targetID, reason)
	if err != nil {
		h.log.Error("auth.revoke.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	h.auditAdminRevoke(ctx, claims.PrincipalID, targetID, n, clientIP(r, h.cfg.TrustProxy), strings.TrimSpace(r.UserAgent()))
	writeJSON(w, http.StatusOK, revokeResponse{Revoked: n})
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	claims, ok := PrincipalFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}

	p, err := h.principals.GetByID(r.Context(), claims.PrincipalID)
	if err != nil {
		if identity.IsNotFound(err) {
			writeError(w, http.StatusUnauthorized, "unauthorized", "principal not found")
			return
		}
		h.log.Error("auth.me.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	writeJSON(w, http.StatusOK, meResponse{Principal: toPrincipalResponse(p)})
}

// ---- helpers ----

func trimPtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

func clientIP(r *http.Request, trustProxy bool) net.IP {
	if trustProxy {
		if ip := parseForwardedIP(r.Header.Get("X-Forwarded-For")); ip != nil {
			return ip
		}
		if ip := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); ip != nil {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil {
		if ip := net.ParseIP(host); ip != nil {
			return ip
		}
	}
	return nil
}

func parseForwardedIP(raw string) net.IP {
	if raw == "" {
		return nil
	}
	for _, p := range strings.Split(raw, ",") {
		if ip := net.ParseIP(strings.TrimSpace(p)); ip != nil {
			return ip
		}
	}
	return nil
}
