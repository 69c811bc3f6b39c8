package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"commons/internal/identity"
	"commons/internal/security/password"
	"commons/internal/security/token"
)

// Service implements the credential and session lifecycle: registration,
// login, refresh rotation, and revocation. It owns all plaintext handling;
// stores below it only ever see Argon2id password hashes and refresh-token
// digests.
type Service struct {
	cfg        Config
	principals identity.Store
	store      Store
	tokens     AccessTokenManager

	// dummyHash is verified against on login when the username does not
	// exist, so both failure paths cost one Argon2id computation.
	dummyHash string
}

// NewService wires a Service. The dummy hash is computed once at startup.
func NewService(cfg Config, principals identity.Store, store Store, tokens AccessTokenManager) (*Service, error) {
	dummy, err := password.Hash("commons-dummy-password", password.DefaultParams())
	if err != nil {
		return nil, fmt.Errorf("session: compute dummy hash: %w", err)
	}
	return &Service{
		cfg:        cfg,
		principals: principals,
		store:      store,
		tokens:     tokens,
		dummyHash:  dummy,
	}, nil
}

// Issued is the result of a successful login or refresh: a fresh token pair
// plus the session row id the refresh token belongs to.
type Issued struct {
	SessionID string

	AccessToken     string
	AccessExpiresAt time.Time

	RefreshToken     string
	RefreshExpiresAt time.Time

	Principal identity.Principal
}

// RegisterInput carries a registration request with the plaintext password.
type RegisterInput struct {
	Username    string
	Password    string
	DisplayName *string
	Bio         *string
}

// Register hashes the password, creates the principal, and opens its first
// session so the new user is signed in immediately. A taken username maps to
// ErrUsernameTaken; password policy violations surface as the password
// package's sentinel errors. The role is always `user`.
func (s *Service) Register(ctx context.Context, now time.Time, in RegisterInput, dev DeviceContext) (Issued, error) {
	hash, err := password.Hash(in.Password, password.DefaultParams())
	if err != nil {
		return Issued{}, err
	}
	p, err := s.principals.CreatePrincipal(ctx, identity.CreatePrincipalInput{
		Username:     in.Username,
		PasswordHash: hash,
		DisplayName:  in.DisplayName,
		Bio:          in.Bio,
		Now:          now,
	})
	if err != nil {
		if identity.IsConflict(err) {
			return Issued{}, ErrUsernameTaken
		}
		return Issued{}, err
	}
	return s.open(ctx, now, p, dev)
}

// Login verifies credentials and opens a session. Unknown usernames and
// wrong passwords both return ErrInvalidCredentials after a full Argon2id
// verification, so response timing does not reveal which one it was.
// Username matching is exact and case-sensitive.
func (s *Service) Login(ctx context.Context, now time.Time, username, plaintext string, dev DeviceContext) (Issued, error) {
	auth, err := s.principals.GetAuthByUsername(ctx, username)
	if err != nil {
		if identity.IsNotFound(err) {
			_, _ = password.Verify(plaintext, s.dummyHash)
			return Issued{}, ErrInvalidCredentials
		}
		return Issued{}, err
	}

	ok, err := password.Verify(plaintext, auth.PasswordHash)
	if err != nil {
		return Issued{}, err
	}
	if !ok {
		return Issued{}, ErrInvalidCredentials
	}

	return s.open(ctx, now, auth.Principal, dev)
}

// open mints a token pair and persists the refresh side for a principal
// whose identity has already been established.
func (s *Service) open(ctx context.Context, now time.Time, p identity.Principal, dev DeviceContext) (Issued, error) {
	plain, hash, err := newRefreshToken(s.cfg.RefreshTokenBytes, s.cfg.RefreshHMACKey)
	if err != nil {
		return Issued{}, err
	}

	refreshExp := now.Add(s.cfg.RefreshTokenTTL)
	sessionID, err := s.store.Create(ctx, now, p.ID, hash, refreshExp, dev)
	if err != nil {
		return Issued{}, err
	}

	access, accessExp, err := s.tokens.Issue(p, now)
	if err != nil {
		return Issued{}, err
	}

	return Issued{
		SessionID:        sessionID,
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     plain,
		RefreshExpiresAt: refreshExp,
		Principal:        p,
	}, nil
}

// Refresh rotates a refresh token: the presented token's session is revoked
// and a new session with a new token pair takes its place. Presenting an
// already-rotated token is treated as credential theft and revokes every
// session belonging to the principal; that case returns
// ErrRefreshReuseDetected so callers can audit it, but the HTTP layer must
// answer with the same response as any other invalid token.
func (s *Service) Refresh(ctx context.Context, now time.Time, presented string, dev DeviceContext) (Issued, error) {
	presented = strings.TrimSpace(presented)
	if presented == "" || len(presented) > maxRefreshTokenLen {
		return Issued{}, ErrInvalidRefreshToken
	}
	presentedHash := token.HashRefreshHex(presented, s.cfg.RefreshHMACKey)

	var (
		principalID  string
		newSessionID string
		newPlain     string
		refreshExp   time.Time
		reusedBy     string
	)

	err := s.store.InTx(ctx, func(tx Store) error {
		row, err := tx.GetByRefreshHash(ctx, presentedHash)
		if err != nil {
			if errors.Is(err, ErrSessionNotFound) {
				return ErrInvalidRefreshToken
			}
			return err
		}

		if row.RevokedAt != nil {
			if row.ReplacedBySessionID != nil {
				reusedBy = row.PrincipalID
				return ErrRefreshReuseDetected
			}
			return ErrInvalidRefreshToken
		}
		if !row.ExpiresAt.After(now) {
			return ErrInvalidRefreshToken
		}

		plain, hash, err := newRefreshToken(s.cfg.RefreshTokenBytes, s.cfg.RefreshHMACKey)
		if err != nil {
			return err
		}
		refreshExp = now.Add(s.cfg.RefreshTokenTTL)
		id, err := tx.Create(ctx, now, row.PrincipalID, hash, refreshExp, dev)
		if err != nil {
			return err
		}
		if err := tx.MarkRotated(ctx, now, row.ID, id); err != nil {
			return err
		}

		principalID = row.PrincipalID
		newSessionID = id
		newPlain = plain
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrRefreshReuseDetected) && reusedBy != "" {
			// The rotation tx rolled back; the defensive revocation commits
			// on its own.
			if _, revokeErr := s.store.RevokeAllForPrincipal(ctx, now, reusedBy, ReasonReuse); revokeErr != nil {
				return Issued{}, revokeErr
			}
			return Issued{}, ErrRefreshReuseDetected
		}
		return Issued{}, err
	}

	p, err := s.principals.GetByID(ctx, principalID)
	if err != nil {
		return Issued{}, err
	}

	access, accessExp, err := s.tokens.Issue(p, now)
	if err != nil {
		return Issued{}, err
	}

	return Issued{
		SessionID:        newSessionID,
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     newPlain,
		RefreshExpiresAt: refreshExp,
		Principal:        p,
	}, nil
}

// Logout revokes the session behind the presented refresh token. Unknown or
// already-revoked tokens are not an error, so logout is idempotent from the
// client's point of view.
func (s *Service) Logout(ctx context.Context, now time.Time, presented string) error {
	presented = strings.TrimSpace(presented)
	if presented == "" || len(presented) > maxRefreshTokenLen {
		return nil
	}
	hash := token.HashRefreshHex(presented, s.cfg.RefreshHMACKey)
	return s.store.Revoke(ctx, now, hash, ReasonLogout)
}

// RevokeAll revokes every active session for a principal. Used for
// "log out everywhere" and for administrative compromise response.
func (s *Service) RevokeAll(ctx context.Context, now time.Time, principalID, reason string) (int64, error) {
	return s.store.RevokeAllForPrincipal(ctx, now, principalID, reason)
}

// VerifyAccess validates a signed access token and returns its claims.
func (s *Service) VerifyAccess(tok string, now time.Time) (AccessClaims, error) {
	return s.tokens.Verify(tok, now)
}

// DecodeAccessUnverified extracts claims without checking the signature.
// Strictly for diagnostics; never use the result for authorization.
func (s *Service) DecodeAccessUnverified(tok string) *AccessClaims {
	return s.tokens.DecodeUnverified(tok)
}

// DeleteExpired removes long-dead session rows and reports how many went.
func (s *Service) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	return s.store.DeleteExpired(ctx, before)
}
