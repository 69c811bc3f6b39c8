package session

import (
	"context"
	"net"
	"time"
)

// Revocation reasons recorded on the session row.
const (
	ReasonLogout       = "logout"
	ReasonLogoutAll    = "logout_all"
	ReasonRotation     = "rotation"
	ReasonReuse        = "reuse_detected"
	ReasonCompromise   = "compromise_response"
)

// DeviceContext describes the client that owns a session.
type DeviceContext struct {
	UserAgent string
	IP        net.IP
}

// Row mirrors the commons.sessions row backing a refresh credential.
// A refresh credential is valid iff RevokedAt is nil and ExpiresAt is in the
// future; the plaintext token is never stored, only its digest.
type Row struct {
	ID               string
	PrincipalID      string
	RefreshTokenHash string

	CreatedAt  time.Time
	LastUsedAt *time.Time
	ExpiresAt  time.Time

	RevokedAt        *time.Time
	RevocationReason *string

	// Rotation chain: when a refresh credential is rotated, the old row is
	// revoked and points at the replacement row.
	ReplacedBySessionID *string

	UserAgent *string
	IP        net.IP
}

// Store abstracts persistence for refresh credentials.
//
// Rotation safety contract: inside InTx, GetByRefreshHash must lock the row
// (or otherwise serialize rotations of the same credential) so that two
// concurrent refreshes of one token cannot both succeed.
type Store interface {
	// InTx runs fn against a transactional view of the store, committing on
	// nil and rolling back on error.
	InTx(ctx context.Context, fn func(Store) error) error

	// Create inserts a new session row and returns its ID.
	Create(ctx context.Context, now time.Time, principalID, refreshHash string, expiresAt time.Time, dev DeviceContext) (string, error)

	// GetByRefreshHash loads a row by refresh digest regardless of state.
	// Missing rows map to ErrSessionNotFound.
	GetByRefreshHash(ctx context.Context, refreshHash string) (Row, error)

	// FindValid returns the row only if it is unrevoked and unexpired at now.
	// Every other state — missing, expired, revoked — uniformly maps to
	// ErrSessionNotFound; the distinction is deliberately not leaked.
	FindValid(ctx context.Context, now time.Time, refreshHash string) (Row, error)

	// MarkRotated revokes the old row and links it to its replacement.
	MarkRotated(ctx context.Context, now time.Time, sessionID, replacedBy string) error

	// Revoke revokes the row matching the refresh digest. Idempotent: a
	// second call, or a miss, is a no-op.
	Revoke(ctx context.Context, now time.Time, refreshHash, reason string) error

	// RevokeAllForPrincipal revokes every active session of a principal
	// (logout everywhere, compromise response) and returns how many rows
	// it revoked. Idempotent: already-revoked rows are left alone and not
	// counted.
	RevokeAllForPrincipal(ctx context.Context, now time.Time, principalID, reason string) (int64, error)

	// DeleteExpired physically removes rows whose expiry predates before and
	// returns the number removed. Maintenance only, never on a request path.
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}
