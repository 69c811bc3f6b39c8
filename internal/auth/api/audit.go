package api

import (
	"context"
	"encoding/json"
	"net"
	"strings"
)

func (h *Handler) auditLoginFailed(ctx context.Context, principalID *string, ip net.IP, ua, username, reason string) {
	h.insertAudit(ctx, "auth.login.failed", principalID, nil, ip, ua, map[string]any{
		"username": username,
		"reason":   reason,
	})
}

func (h *Handler) auditLoginSuccess(ctx context.Context, principalID, sessionID string, ip net.IP, ua string) {
	h.insertAudit(ctx, "auth.login.success", &principalID, &sessionID, ip, ua, nil)
}

func (h *Handler) auditRegister(ctx context.Context, principalID string, ip net.IP, ua string) {
	h.insertAudit(ctx, "auth.register", &principalID, nil, ip, ua, nil)
}

func (h *Handler) auditRefreshSuccess(ctx context.Context, sessionID string, ip net.IP, ua string) {
	h.insertAudit(ctx, "auth.refresh.success", nil, &sessionID, ip, ua, nil)
}

func (h *Handler) auditRefreshReuse(ctx context.Context, ip net.IP, ua string) {
	h.insertAudit(ctx, "auth.refresh.reuse_detected", nil, nil, ip, ua, nil)
}

func (h *Handler) auditLogout(ctx context.Context, ip net.IP, ua string) {
	h.insertAudit(ctx, "auth.logout", nil, nil, ip, ua, nil)
}

func (h *Handler) auditLogoutAll(ctx context.Context, principalID string, revoked int64, ip net.IP, ua string) {
	h.insertAudit(ctx, "auth.logout_all", &principalID, nil, ip, ua, map[string]any{
		"revoked": revoked,
	})
}

func (h *Handler) auditAdminRevoke(ctx context.Context, adminID, targetID string, revoked int64, ip net.IP, ua string) {
	h.insertAudit(ctx, "auth.admin.revoke", &adminID, nil, ip, ua, map[string]any{
		"target_principal_id": targetID,
		"revoked":             revoked,
	})
}

// insertAudit best-effort records an auth event. With no pool configured
// (in-memory mode) it is a no-op; failures are logged, never surfaced.
func (h *Handler) insertAudit(ctx context.Context, action string, principalID, sessionID *string, ip net.IP, ua string, meta map[string]any) {
	if h.pool == nil {
		return
	}

	action = strings.TrimSpace(action)
	if action == "" {
		return
	}

	var ipVal any
	if ip != nil {
		ipVal = ip.String()
	}

	var metaVal *string
	if len(meta) > 0 {
		if b, err := json.Marshal(meta); err == nil {
			s := string(b)
			metaVal = &s
		}
	}

	_, err := h.pool.Exec(ctx, `
		INSERT INTO commons.audit_log (
			principal_id, session_id, action, created_at, ip, user_agent, meta
		) VALUES ($1, $2, $3, now(), $4, $5, $6::jsonb)
	`, principalID, sessionID, action, ipVal, trimOrNil(ua), metaVal)
	if err != nil {
		h.log.Error("auth.audit.insert.fail", "err", err, "action", action)
	}
}

func trimOrNil(s string) any {
	v := strings.TrimSpace(s)
	if v == "" {
		return nil
	}
	return v
}
