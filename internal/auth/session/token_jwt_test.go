package session

import (
	"errors"
	"strings"
	"testing"
	"time"

	"commons/internal/identity"
)

func newTestManager(t *testing.T, mutate func(*Config)) AccessTokenManager {
	t.Helper()
	cfg := DefaultConfig()
	cfg.SigningKey = testSigningKey
	if mutate != nil {
		mutate(&cfg)
	}
	m, err := NewJWTManager(cfg)
	if err != nil {
		t.Fatalf("NewJWTManager: %v", err)
	}
	return m
}

func testPrincipal() identity.Principal {
	return identity.Principal{
		ID:       "01J0000000000000000000TEST",
		Username: "alice",
		Role:     identity.RoleUser,
	}
}

func TestJWTManager_IssueVerify(t *testing.T) {
	m := newTestManager(t, nil)
	now := time.Now()

	tok, exp, err := m.Issue(testPrincipal(), now)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if want := now.Add(DefaultConfig().AccessTokenTTL); !exp.Equal(want) {
		t.Fatalf("exp = %v, want %v", exp, want)
	}

	claims, err := m.Verify(tok, now)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.PrincipalID != "01J0000000000000000000TEST" {
		t.Fatalf("PrincipalID = %q", claims.PrincipalID)
	}
	if claims.Username != "alice" || claims.Role != identity.RoleUser {
		t.Fatalf("claims = %+v", claims)
	}
}

func TestJWTManager_RejectsTampering(t *testing.T) {
	m := newTestManager(t, nil)
	now := time.Now()

	tok, _, err := m.Issue(testPrincipal(), now)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	// Flip a character in the signature segment.
	i := strings.LastIndex(tok, ".") + 1
	var c byte = 'A'
	if tok[i] == 'A' {
		c = 'B'
	}
	tampered := tok[:i] + string(c) + tok[i+1:]

	if _, err := m.Verify(tampered, now); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("tampered token err = %v, want ErrInvalidToken", err)
	}
}

func TestJWTManager_WrongKey(t *testing.T) {
	m := newTestManager(t, nil)
	other := newTestManager(t, func(cfg *Config) {
		cfg.SigningKey = []byte("another-key-another-key-another!")
	})
	now := time.Now()

	tok, _, err := m.Issue(testPrincipal(), now)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := other.Verify(tok, now); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("cross-key verify err = %v, want ErrInvalidToken", err)
	}
}

func TestJWTManager_ExpiryIsDistinctFromInvalid(t *testing.T) {
	m := newTestManager(t, nil)
	now := time.Now()

	tok, _, err := m.Issue(testPrincipal(), now)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	past := now.Add(DefaultConfig().AccessTokenTTL + DefaultConfig().ClockSkew + time.Minute)
	_, err = m.Verify(tok, past)
	if !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expired token err = %v, want ErrTokenExpired", err)
	}
	if errors.Is(err, ErrInvalidToken) {
		t.Fatal("expired token must not also map to ErrInvalidToken")
	}
}

func TestJWTManager_ClockSkewLeeway(t *testing.T) {
	m := newTestManager(t, nil)
	now := time.Now()

	tok, exp, err := m.Issue(testPrincipal(), now)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	// Just past expiry but within the skew window still verifies.
	if _, err := m.Verify(tok, exp.Add(DefaultConfig().ClockSkew/2)); err != nil {
		t.Fatalf("within-skew verify: %v", err)
	}
}

func TestDecodeUnverified(t *testing.T) {
	m := newTestManager(t, nil)
	now := time.Now()

	tok, _, err := m.Issue(testPrincipal(), now)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	claims := m.DecodeUnverified(tok)
	if claims == nil {
		t.Fatal("DecodeUnverified returned nil for a well-formed token")
	}
	if claims.Username != "alice" {
		t.Fatalf("Username = %q, want alice", claims.Username)
	}

	for _, garbage := range []string{"", "not-a-jwt", "a.b", "a.b.c"} {
		if got := m.DecodeUnverified(garbage); got != nil {
			t.Fatalf("DecodeUnverified(%q) = %+v, want nil", garbage, got)
		}
	}
}
