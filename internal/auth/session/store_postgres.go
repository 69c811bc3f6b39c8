package session

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"commons/internal/identity"
)

// PostgresStore implements Store using PostgreSQL (commons.sessions).
//
// Outside a transaction it runs against the pool. InTx hands callers a
// tx-bound copy whose GetByRefreshHash locks the row with FOR UPDATE, which
// is what makes refresh rotation race-free.
type PostgresStore struct {
	pool *pgxpool.Pool
	tx   pgx.Tx
}

// sessionQuerier is satisfied by both *pgxpool.Pool and pgx.Tx.
type sessionQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// NewPostgresStore creates a Postgres-backed session store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) q() sessionQuerier {
	if s.tx != nil {
		return s.tx
	}
	return s.pool
}

// InTx runs fn inside a single database transaction.
func (s *PostgresStore) InTx(ctx context.Context, fn func(Store) error) error {
	if s.tx != nil {
		// Already transactional; nesting reuses the outer transaction.
		return fn(s)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&PostgresStore{pool: s.pool, tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Create inserts a new session row and returns its ULID.
func (s *PostgresStore) Create(ctx context.Context, now time.Time, principalID, refreshHash string, expiresAt time.Time, dev DeviceContext) (string, error) {
	id, err := identity.NewULID(now)
	if err != nil {
		return "", err
	}

	_, err = s.q().Exec(ctx, `
		INSERT INTO commons.sessions (
			id, principal_id, refresh_token_hash,
			created_at, last_used_at, expires_at, revoked_at,
			revocation_reason, replaced_by_session_id, user_agent, ip
		) VALUES (
			$1, $2, $3,
			$4, $4, $5, NULL,
			NULL, NULL, $6, $7
		)
	`, id, principalID, refreshHash, now, expiresAt, nullIfEmpty(dev.UserAgent), ipValue(dev.IP))
	if err != nil {
		return "", err
	}

	return id, nil
}

const sessionColumns = `
		id, principal_id, refresh_token_hash,
		created_at, last_used_at, expires_at, revoked_at,
		revocation_reason, replaced_by_session_id`

// GetByRefreshHash loads a session row by refresh digest. Inside a
// transaction the row is locked to serialize rotation.
func (s *PostgresStore) GetByRefreshHash(ctx context.Context, refreshHash string) (Row, error) {
	query := `SELECT` + sessionColumns + `
		FROM commons.sessions
		WHERE refresh_token_hash = $1`
	if s.tx != nil {
		query += `
		FOR UPDATE`
	}

	return scanRow(s.q().QueryRow(ctx, query, refreshHash))
}

// FindValid returns the row only while unrevoked and unexpired.
func (s *PostgresStore) FindValid(ctx context.Context, now time.Time, refreshHash string) (Row, error) {
	return scanRow(s.q().QueryRow(ctx, `
		SELECT`+sessionColumns+`
		FROM commons.sessions
		WHERE refresh_token_hash = $1
		  AND revoked_at IS NULL
		  AND expires_at > $2
	`, refreshHash, now))
}

// MarkRotated revokes the old session and links it to the replacement.
func (s *PostgresStore) MarkRotated(ctx context.Context, now time.Time, sessionID, replacedBy string) error {
	_, err := s.q().Exec(ctx, `
		UPDATE commons.sessions
		SET
			last_used_at = $2,
			revoked_at = $2,
			replaced_by_session_id = $3,
			revocation_reason = $4
		WHERE id = $1
	`, sessionID, now, replacedBy, ReasonRotation)
	return err
}

// Revoke revokes the session matching the digest (idempotent, no-op on miss).
func (s *PostgresStore) Revoke(ctx context.Context, now time.Time, refreshHash, reason string) error {
	_, err := s.q().Exec(ctx, `
		UPDATE commons.sessions
		SET revoked_at = COALESCE(revoked_at, $2),
		    revocation_reason = COALESCE(revocation_reason, $3)
		WHERE refresh_token_hash = $1
	`, refreshHash, now, reason)
	return err
}

// RevokeAllForPrincipal revokes all active sessions for a principal and
// returns how many it revoked. Already-revoked rows are untouched.
func (s *PostgresStore) RevokeAllForPrincipal(ctx context.Context, now time.Time, principalID, reason string) (int64, error) {
	ct, err := s.q().Exec(ctx, `
		UPDATE commons.sessions
		SET revoked_at = $2,
		    revocation_reason = $3
		WHERE principal_id = $1 AND revoked_at IS NULL
	`, principalID, now, reason)
	if err != nil {
		return 0, err
	}
	return ct.RowsAffected(), nil
}

// DeleteExpired physically removes long-expired rows.
func (s *PostgresStore) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	ct, err := s.q().Exec(ctx, `
		DELETE FROM commons.sessions
		WHERE expires_at < $1
	`, before)
	if err != nil {
		return 0, err
	}
	return ct.RowsAffected(), nil
}

func scanRow(r pgx.Row) (Row, error) {
	var row Row
	err := r.Scan(
		&row.ID,
		&row.PrincipalID,
		&row.RefreshTokenHash,
		&row.CreatedAt,
		&row.LastUsedAt,
		&row.ExpiresAt,
		&row.RevokedAt,
		&row.RevocationReason,
		&row.ReplacedBySessionID,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Row{}, ErrSessionNotFound
	}
	if err != nil {
		return Row{}, err
	}
	return row, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func ipValue(ip net.IP) any {
	if ip == nil {
		return nil
	}
	return ip.String()
}
