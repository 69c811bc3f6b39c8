package session

import (
	"context"
	"sync"
	"time"

	"commons/internal/identity"
)

// MemoryStore implements Store with an in-process map. It backs the
// database-less dev mode and the package tests.
//
// InTx serializes on the store mutex, so a transaction body observes and
// mutates a consistent snapshot just like a FOR UPDATE block does against
// PostgreSQL.
type MemoryStore struct {
	mu     sync.Mutex
	rows   map[string]*Row
	byHash map[string]string
}

// NewMemoryStore returns an empty in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rows:   make(map[string]*Row),
		byHash: make(map[string]string),
	}
}

// memoryTx is the view handed to InTx bodies. It reuses the parent's maps
// without re-locking, since the parent holds the mutex for the whole body.
type memoryTx struct {
	parent *MemoryStore
}

func (s *MemoryStore) InTx(ctx context.Context, fn func(Store) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(&memoryTx{parent: s})
}

func (s *MemoryStore) Create(ctx context.Context, now time.Time, principalID, refreshHash string, expiresAt time.Time, dev DeviceContext) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createLocked(now, principalID, refreshHash, expiresAt, dev)
}

func (s *MemoryStore) createLocked(now time.Time, principalID, refreshHash string, expiresAt time.Time, dev DeviceContext) (string, error) {
	id, err := identity.NewULID(now)
	if err != nil {
		return "", err
	}
	row := &Row{
		ID:               id,
		PrincipalID:      principalID,
		RefreshTokenHash: refreshHash,
		CreatedAt:        now,
		ExpiresAt:        expiresAt,
		IP:               append([]byte(nil), dev.IP...),
	}
	if dev.UserAgent != "" {
		ua := dev.UserAgent
		row.UserAgent = &ua
	}
	s.rows[id] = row
	s.byHash[refreshHash] = id
	return id, nil
}

func (s *MemoryStore) GetByRefreshHash(ctx context.Context, refreshHash string) (Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getByRefreshHashLocked(refreshHash)
}

func (s *MemoryStore) getByRefreshHashLocked(refreshHash string) (Row, error) {
	id, ok := s.byHash[refreshHash]
	if !ok {
		return Row{}, ErrSessionNotFound
	}
	return copyRow(s.rows[id]), nil
}

// copyRow deep-copies a row so callers cannot mutate stored state through
// the pointer fields.
func copyRow(r *Row) Row {
	out := *r
	out.LastUsedAt = copyTimePtr(r.LastUsedAt)
	out.RevokedAt = copyTimePtr(r.RevokedAt)
	out.RevocationReason = copyStrPtr(r.RevocationReason)
	out.ReplacedBySessionID = copyStrPtr(r.ReplacedBySessionID)
	out.UserAgent = copyStrPtr(r.UserAgent)
	out.IP = append([]byte(nil), r.IP...)
	return out
}

func copyTimePtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func copyStrPtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func (s *MemoryStore) FindValid(ctx context.Context, now time.Time, refreshHash string) (Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.findValidLocked(now, refreshHash)
}

func (s *MemoryStore) findValidLocked(now time.Time, refreshHash string) (Row, error) {
	id, ok := s.byHash[refreshHash]
	if !ok {
		return Row{}, ErrSessionNotFound
	}
	row := s.rows[id]
	if row.RevokedAt != nil || !row.ExpiresAt.After(now) {
		return Row{}, ErrSessionNotFound
	}
	return copyRow(row), nil
}

func (s *MemoryStore) MarkRotated(ctx context.Context, now time.Time, sessionID, replacedBySessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.markRotatedLocked(now, sessionID, replacedBySessionID)
}

func (s *MemoryStore) markRotatedLocked(now time.Time, sessionID, replacedBySessionID string) error {
	row, ok := s.rows[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	used := now
	reason := ReasonRotation
	row.LastUsedAt = &used
	row.RevokedAt = &used
	row.RevocationReason = &reason
	row.ReplacedBySessionID = &replacedBySessionID
	return nil
}

func (s *MemoryStore) Revoke(ctx context.Context, now time.Time, refreshHash, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.revokeLocked(now, refreshHash, reason)
}

func (s *MemoryStore) revokeLocked(now time.Time, refreshHash, reason string) error {
	id, ok := s.byHash[refreshHash]
	if !ok {
		return nil
	}
	row := s.rows[id]
	if row.RevokedAt != nil {
		return nil
	}
	at := now
	r := reason
	row.RevokedAt = &at
	row.RevocationReason = &r
	return nil
}

func (s *MemoryStore) RevokeAllForPrincipal(ctx context.Context, now time.Time, principalID, reason string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.revokeAllLocked(now, principalID, reason)
}

func (s *MemoryStore) revokeAllLocked(now time.Time, principalID, reason string) (int64, error) {
	var n int64
	for _, row := range s.rows {
		if row.PrincipalID != principalID || row.RevokedAt != nil {
			continue
		}
		at := now
		r := reason
		row.RevokedAt = &at
		row.RevocationReason = &r
		n++
	}
	return n, nil
}

func (s *MemoryStore) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, row := range s.rows {
		if row.ExpiresAt.Before(before) {
			delete(s.byHash, row.RefreshTokenHash)
			delete(s.rows, id)
			n++
		}
	}
	return n, nil
}

func (t *memoryTx) InTx(ctx context.Context, fn func(Store) error) error {
	return fn(t)
}

func (t *memoryTx) Create(ctx context.Context, now time.Time, principalID, refreshHash string, expiresAt time.Time, dev DeviceContext) (string, error) {
	return t.parent.createLocked(now, principalID, refreshHash, expiresAt, dev)
}

func (t *memoryTx) GetByRefreshHash(ctx context.Context, refreshHash string) (Row, error) {
	return t.parent.getByRefreshHashLocked(refreshHash)
}

func (t *memoryTx) FindValid(ctx context.Context, now time.Time, refreshHash string) (Row, error) {
	return t.parent.findValidLocked(now, refreshHash)
}

func (t *memoryTx) MarkRotated(ctx context.Context, now time.Time, sessionID, replacedBySessionID string) error {
	return t.parent.markRotatedLocked(now, sessionID, replacedBySessionID)
}

func (t *memoryTx) Revoke(ctx context.Context, now time.Time, refreshHash, reason string) error {
	return t.parent.revokeLocked(now, refreshHash, reason)
}

func (t *memoryTx) RevokeAllForPrincipal(ctx context.Context, now time.Time, principalID, reason string) (int64, error) {
	return t.parent.revokeAllLocked(now, principalID, reason)
}

func (t *memoryTx) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	var n int64
	for id, row := range t.parent.rows {
		if row.ExpiresAt.Before(before) {
			delete(t.parent.byHash, row.RefreshTokenHash)
			delete(t.parent.rows, id)
			n++
		}
	}
	return n, nil
}
