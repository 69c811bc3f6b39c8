package identity

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store used by the db-less dev mode and tests.
// It enforces the same username uniqueness contract as the Postgres store.
type MemoryStore struct {
	mu         sync.Mutex
	byID       map[string]PrincipalAuth
	byUsername map[string]string
}

// NewMemoryStore creates an empty in-memory principal store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:       make(map[string]PrincipalAuth),
		byUsername: make(map[string]string),
	}
}

func (s *MemoryStore) CreatePrincipal(_ context.Context, in CreatePrincipalInput) (Principal, error) {
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

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byUsername[username]; exists {
		return Principal{}, ConflictError{Op: op, Field: "username"}
	}

	p := Principal{
		ID:          id,
		Username:    username,
		DisplayName: trimPtr(in.DisplayName),
		Bio:         trimPtr(in.Bio),
		Role:        RoleUser,
		CreatedAt:   now,
	}
	s.byID[id] = PrincipalAuth{Principal: p, PasswordHash: in.PasswordHash}
	s.byUsername[username] = id

	return p, nil
}

func (s *MemoryStore) GetAuthByUsername(_ context.Context, username string) (PrincipalAuth, error) {
	const op = "identity.GetAuthByUsername"

	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byUsername[username]
	if !ok {
		return PrincipalAuth{}, OpError{Op: op, Kind: ErrNotFound}
	}
	return s.byID[id], nil
}

func (s *MemoryStore) GetByID(_ context.Context, id string) (Principal, error) {
	const op = "identity.GetByID"

	s.mu.Lock()
	defer s.mu.Unlock()

	pa, ok := s.byID[id]
	if !ok {
		return Principal{}, OpError{Op: op, Kind: ErrNotFound}
	}
	return pa.Principal, nil
}

// SetRole mutates a principal's role in place. Role elevation never comes
// from client input; this exists for operator provisioning and tests.
func (s *MemoryStore) SetRole(id string, role Role) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	pa, ok := s.byID[id]
	if !ok {
		return false
	}
	pa.Principal.Role = role
	s.byID[id] = pa
	return true
}
