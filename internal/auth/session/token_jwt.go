package session

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"commons/internal/identity"
)

// AccessClaims is the identity snapshot carried by an access token.
type AccessClaims struct {
	PrincipalID string
	Username    string
	Role        identity.Role
	IssuedAt    time.Time
	ExpiresAt   time.Time
}

// AccessTokenManager issues and verifies short-lived access tokens.
//
// Verify distinguishes expiry from every other failure so the middleware can
// decide whether a silent refresh is worth attempting. DecodeUnverified
// parses without checking the signature; it exists for non-authoritative
// inspection (logging) only and returns nil on malformed input.
type AccessTokenManager interface {
	Issue(p identity.Principal, now time.Time) (token string, exp time.Time, err error)
	Verify(token string, now time.Time) (AccessClaims, error)
	DecodeUnverified(token string) *AccessClaims
}

// jwtAccessClaims is the wire shape. The principal id travels in "sub".
type jwtAccessClaims struct {
	jwt.RegisteredClaims
	Username string `json:"username"`
	Role     string `json:"role"`
}

type jwtManager struct {
	issuer    string
	ttl       time.Duration
	clockSkew time.Duration
	key       []byte
}

// NewJWTManager builds an AccessTokenManager signing HS256 tokens with the
// key from cfg. The key is injected, never read from ambient state, so it can
// be rotated and tested with alternates.
func NewJWTManager(cfg Config) (AccessTokenManager, error) {
	if len(cfg.SigningKey) < 32 {
		return nil, ErrConfig
	}
	if cfg.AccessTokenTTL <= 0 || cfg.ClockSkew < 0 || strings.TrimSpace(cfg.Issuer) == "" {
		return nil, ErrConfig
	}
	return &jwtManager{
		issuer:    cfg.Issuer,
		ttl:       cfg.AccessTokenTTL,
		clockSkew: cfg.ClockSkew,
		key:       cfg.SigningKey,
	}, nil
}

func (m *jwtManager) Issue(p identity.Principal, now time.Time) (string, time.Time, error) {
	exp := now.Add(m.ttl)

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwtAccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   p.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Username: p.Username,
		Role:     string(p.Role),
	})

	signed, err := tok.SignedString(m.key)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

func (m *jwtManager) Verify(token string, now time.Time) (AccessClaims, error) {
	claims := &jwtAccessClaims{}

	// A fresh parser per call keeps verification reentrant and lets the
	// caller's clock drive expiry decisions.
	_, err := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(m.clockSkew),
		jwt.WithTimeFunc(func() time.Time { return now }),
	).ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return m.key, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return AccessClaims{}, ErrTokenExpired
		}
		return AccessClaims{}, ErrInvalidToken
	}

	out, ok := claims.toAccessClaims()
	if !ok {
		return AccessClaims{}, ErrInvalidToken
	}
	return out, nil
}

func (m *jwtManager) DecodeUnverified(token string) *AccessClaims {
	claims := &jwtAccessClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil
	}
	out, ok := claims.toAccessClaims()
	if !ok {
		return nil
	}
	return &out
}

// toAccessClaims validates the decoded shape instead of trusting it: a token
// missing the identity fields is rejected even with a valid signature.
func (c *jwtAccessClaims) toAccessClaims() (AccessClaims, bool) {
	if strings.TrimSpace(c.Subject) == "" || strings.TrimSpace(c.Username) == "" {
		return AccessClaims{}, false
	}
	role, ok := identity.ParseRole(c.Role)
	if !ok {
		return AccessClaims{}, false
	}

	out := AccessClaims{
		PrincipalID: c.Subject,
		Username:    c.Username,
		Role:        role,
	}
	if c.IssuedAt != nil {
		out.IssuedAt = c.IssuedAt.Time
	}
	if c.ExpiresAt != nil {
		out.ExpiresAt = c.ExpiresAt.Time
	}
	return out, true
}
