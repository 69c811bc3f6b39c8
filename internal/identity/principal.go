package identity

import (
	"context"
	"strings"
	"time"
)

// Role restricts what a principal may do. Role elevation is never accepted
// from client input; registration always assigns RoleUser.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// ParseRole maps a stored or transported role string onto a known Role.
func ParseRole(s string) (Role, bool) {
	switch Role(strings.TrimSpace(s)) {
	case RoleUser:
		return RoleUser, true
	case RoleAdmin:
		return RoleAdmin, true
	default:
		return "", false
	}
}

// Principal is the canonical security principal. The password hash is kept
// out of this struct so it cannot leak through response shaping.
type Principal struct {
	ID       string
	Username string

	DisplayName *string
	Bio         *string

	Role      Role
	CreatedAt time.Time
}

// PrincipalAuth pairs a principal with its stored password hash.
// Only the login path may see it.
type PrincipalAuth struct {
	Principal    Principal
	PasswordHash string
}

// CreatePrincipalInput describes a registration request. The password has
// already been hashed by the caller; this layer never sees plaintext.
type CreatePrincipalInput struct {
	Username     string
	PasswordHash string
	DisplayName  *string
	Bio          *string
	Now          time.Time
}

// Store is the principal persistence boundary.
//
// Username matching is case-sensitive exact: "Alice" and "alice" are
// different principals.
type Store interface {
	CreatePrincipal(ctx context.Context, in CreatePrincipalInput) (Principal, error)

	// GetAuthByUsername returns the principal and its password hash for the
	// login path. Missing usernames map to ErrNotFound.
	GetAuthByUsername(ctx context.Context, username string) (PrincipalAuth, error)

	GetByID(ctx context.Context, id string) (Principal, error)
}
