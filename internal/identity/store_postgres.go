package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store over PostgreSQL (commons.principals).
//
// The pgx pool is owned by the caller; this store must not close it.
// Errors are mapped to the identity sentinel kinds where appropriate.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a Postgres-backed principal store.
func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("identity: nil pool")
	}
	return &PostgresStore{pool: pool}, nil
}

// CreatePrincipal inserts a new principal with role fixed to "user".
func (s *PostgresStore) CreatePrincipal(ctx context.Context, in CreatePrincipalInput) (Principal, error) {
	const op = "identity.CreatePrincipal"

	username := strings.TrimSpace(in.Username)
	if username == "" {
		return Principal{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "username is required"}
	}
	if in.PasswordHash == "" {
		return Principal{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "password hash is required"}
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	id, err := NewULID(now)
	if err != nil {
		return Principal{}, err
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO commons.principals (
			id, username, password_hash, display_name, bio, role, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, id, username, in.PasswordHash, trimPtr(in.DisplayName), trimPtr(in.Bio), string(RoleUser), now)
	if err != nil {
		if isUniqueViolation(err) {
			return Principal{}, ConflictError{Op: op, Field: "username"}
		}
		return Principal{}, err
	}

	return Principal{
		ID:          id,
		Username:    username,
		DisplayName: trimPtr(in.DisplayName),
		Bio:         trimPtr(in.Bio),
		Role:        RoleUser,
		CreatedAt:   now,
	}, nil
}

// GetAuthByUsername loads a principal and its password hash by exact username.
func (s *PostgresStore) GetAuthByUsername(ctx context.Context, username string) (PrincipalAuth, error) {
	const op = "identity.GetAuthByUsername"

	var (
		out  PrincipalAuth
		role string
	)
	err := s.pool.QueryRow(ctx, `
		SELECT id, username, password_hash, display_name, bio, role, created_at
		FROM commons.principals
		WHERE username = $1
	`, username).Scan(
		&out.Principal.ID,
		&out.Principal.Username,
		&out.PasswordHash,
		&out.Principal.DisplayName,
		&out.Principal.Bio,
		&role,
		&out.Principal.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return PrincipalAuth{}, OpError{Op: op, Kind: ErrNotFound}
	}
	if err != nil {
		return PrincipalAuth{}, err
	}

	out.Principal.Role = storedRole(role)
	return out, nil
}

// GetByID loads a principal by ID.
func (s *PostgresStore) GetByID(ctx context.Context, id string) (Principal, error) {
	const op = "identity.GetByID"

	var (
		out  Principal
		role string
	)
	err := s.pool.QueryRow(ctx, `
		SELECT id, username, display_name, bio, role, created_at
		FROM commons.principals
		WHERE id = $1
	`, id).Scan(&out.ID, &out.Username, &out.DisplayName, &out.Bio, &role, &out.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Principal{}, OpError{Op: op, Kind: ErrNotFound}
	}
	if err != nil {
		return Principal{}, err
	}

	out.Role = storedRole(role)
	return out, nil
}

// storedRole parses a role column value. The schema CHECK constraint keeps
// the column well-formed; an unknown value degrades to the least privilege.
func storedRole(s string) Role {
	if r, ok := ParseRole(s); ok {
		return r
	}
	return RoleUser
}

func trimPtr(p *string) *string {
	if p == nil {
		return nil
	}
	s := strings.TrimSpace(*p)
	if s == "" {
		return nil
	}
	return &s
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "23505" // unique_violation
}
