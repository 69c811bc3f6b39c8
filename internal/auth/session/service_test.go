package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"commons/internal/identity"
	"commons/internal/security/password"
)

var testSigningKey = []byte("0123456789abcdef0123456789abcdef")

func newTestService(t *testing.T) (*Service, *MemoryStore) {
	t.Helper()

	cfg := DefaultConfig()
	cfg.SigningKey = testSigningKey

	tokens, err := NewJWTManager(cfg)
	if err != nil {
		t.Fatalf("NewJWTManager: %v", err)
	}
	store := NewMemoryStore()
	svc, err := NewService(cfg, identity.NewMemoryStore(), store, tokens)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc, store
}

func register(t *testing.T, svc *Service, username, pass string) identity.Principal {
	t.Helper()
	issued, err := svc.Register(context.Background(), time.Now(), RegisterInput{
		Username: username,
		Password: pass,
	}, DeviceContext{})
	if err != nil {
		t.Fatalf("Register(%q): %v", username, err)
	}
	if issued.AccessToken == "" || issued.RefreshToken == "" {
		t.Fatalf("Register(%q) issued an incomplete token pair", username)
	}
	return issued.Principal
}

func TestRegisterLogin_RoundTrip(t *testing.T) {
	svc, _ := newTestService(t)
	now := time.Now()

	p := register(t, svc, "alice", "correct horse battery")

	issued, err := svc.Login(context.Background(), now, "alice", "correct horse battery", DeviceContext{})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if issued.Principal.ID != p.ID {
		t.Fatalf("logged-in principal = %q, want %q", issued.Principal.ID, p.ID)
	}
	if issued.AccessToken == "" || issued.RefreshToken == "" {
		t.Fatal("issued pair has empty token")
	}
	if got := issued.RefreshExpiresAt; !got.Equal(now.Add(svc.cfg.RefreshTokenTTL)) {
		t.Fatalf("refresh expiry = %v, want %v", got, now.Add(svc.cfg.RefreshTokenTTL))
	}

	claims, err := svc.VerifyAccess(issued.AccessToken, now)
	if err != nil {
		t.Fatalf("VerifyAccess: %v", err)
	}
	if claims.PrincipalID != p.ID || claims.Username != "alice" {
		t.Fatalf("claims = %+v, want principal %q / alice", claims, p.ID)
	}
	if claims.Role != identity.RoleUser {
		t.Fatalf("claims role = %q, want %q", claims.Role, identity.RoleUser)
	}
}

func TestRegister_DuplicateUsername(t *testing.T) {
	svc, _ := newTestService(t)
	register(t, svc, "alice", "first password!")

	_, err := svc.Register(context.Background(), time.Now(), RegisterInput{
		Username: "alice",
		Password: "second password!",
	}, DeviceContext{})
	if !errors.Is(err, ErrUsernameTaken) {
		t.Fatalf("duplicate register err = %v, want ErrUsernameTaken", err)
	}

	// The original credentials still work.
	if _, err := svc.Login(context.Background(), time.Now(), "alice", "first password!", DeviceContext{}); err != nil {
		t.Fatalf("login after duplicate attempt: %v", err)
	}
}

func TestRegister_PasswordPolicy(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Register(context.Background(), time.Now(), RegisterInput{
		Username: "bob",
		Password: "short",
	}, DeviceContext{})
	if !errors.Is(err, password.ErrPasswordTooShort) {
		t.Fatalf("short password err = %v, want ErrPasswordTooShort", err)
	}
}

func TestLogin_FailuresAreUniform(t *testing.T) {
	svc, _ := newTestService(t)
	register(t, svc, "alice", "correct horse battery")

	_, unknownErr := svc.Login(context.Background(), time.Now(), "mallory", "whatever works", DeviceContext{})
	_, wrongErr := svc.Login(context.Background(), time.Now(), "alice", "not the password", DeviceContext{})

	if !errors.Is(unknownErr, ErrInvalidCredentials) {
		t.Fatalf("unknown username err = %v, want ErrInvalidCredentials", unknownErr)
	}
	if !errors.Is(wrongErr, ErrInvalidCredentials) {
		t.Fatalf("wrong password err = %v, want ErrInvalidCredentials", wrongErr)
	}
}

func TestRefresh_Rotates(t *testing.T) {
	svc, store := newTestService(t)
	now := time.Now()
	register(t, svc, "alice", "correct horse battery")

	first, err := svc.Login(context.Background(), now, "alice", "correct horse battery", DeviceContext{})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	later := now.Add(time.Hour)
	second, err := svc.Refresh(context.Background(), later, first.RefreshToken, DeviceContext{})
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if second.RefreshToken == first.RefreshToken {
		t.Fatal("refresh returned the same token")
	}
	if second.SessionID == first.SessionID {
		t.Fatal("refresh did not open a new session")
	}
	if !second.RefreshExpiresAt.Equal(later.Add(svc.cfg.RefreshTokenTTL)) {
		t.Fatalf("rotated expiry = %v, want full window from rotation time", second.RefreshExpiresAt)
	}

	// The replaced row records its successor.
	var old Row
	err = store.InTx(context.Background(), func(tx Store) error {
		found := false
		for _, r := range store.rows {
			if r.ID == first.SessionID {
				old = *r
				found = true
			}
		}
		if !found {
			return errors.New("old session row missing")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("inspect old row: %v", err)
	}
	if old.RevokedAt == nil || old.ReplacedBySessionID == nil || *old.ReplacedBySessionID != second.SessionID {
		t.Fatalf("old row not marked rotated: %+v", old)
	}
}

func TestRefresh_ReuseRevokesEverything(t *testing.T) {
	svc, _ := newTestService(t)
	now := time.Now()
	register(t, svc, "alice", "correct horse battery")

	first, err := svc.Login(context.Background(), now, "alice", "correct horse battery", DeviceContext{})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	second, err := svc.Refresh(context.Background(), now.Add(time.Minute), first.RefreshToken, DeviceContext{})
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	// Replaying the rotated token trips reuse detection.
	_, err = svc.Refresh(context.Background(), now.Add(2*time.Minute), first.RefreshToken, DeviceContext{})
	if !errors.Is(err, ErrRefreshReuseDetected) {
		t.Fatalf("replay err = %v, want ErrRefreshReuseDetected", err)
	}

	// Collateral damage: the legitimate successor is dead too.
	_, err = svc.Refresh(context.Background(), now.Add(3*time.Minute), second.RefreshToken, DeviceContext{})
	if !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("successor refresh err = %v, want ErrInvalidRefreshToken", err)
	}
}

func TestRefresh_ExpiredAndGarbage(t *testing.T) {
	svc, _ := newTestService(t)
	now := time.Now()
	register(t, svc, "alice", "correct horse battery")

	issued, err := svc.Login(context.Background(), now, "alice", "correct horse battery", DeviceContext{})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	afterExpiry := now.Add(svc.cfg.RefreshTokenTTL + time.Second)
	if _, err := svc.Refresh(context.Background(), afterExpiry, issued.RefreshToken, DeviceContext{}); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("expired refresh err = %v, want ErrInvalidRefreshToken", err)
	}

	for _, tok := range []string{"", "   ", "no-such-token", string(make([]byte, maxRefreshTokenLen+1))} {
		if _, err := svc.Refresh(context.Background(), now, tok, DeviceContext{}); !errors.Is(err, ErrInvalidRefreshToken) {
			t.Fatalf("Refresh(%q) err = %v, want ErrInvalidRefreshToken", tok, err)
		}
	}
}

func TestLogout_RevokesAndIsIdempotent(t *testing.T) {
	svc, _ := newTestService(t)
	now := time.Now()
	register(t, svc, "alice", "correct horse battery")

	issued, err := svc.Login(context.Background(), now, "alice", "correct horse battery", DeviceContext{})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	if err := svc.Logout(context.Background(), now, issued.RefreshToken); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if err := svc.Logout(context.Background(), now, issued.RefreshToken); err != nil {
		t.Fatalf("second Logout: %v", err)
	}
	if err := svc.Logout(context.Background(), now, "never-issued"); err != nil {
		t.Fatalf("Logout of unknown token: %v", err)
	}

	// A plain logout is not reuse, no matter how often the token comes back.
	_, err = svc.Refresh(context.Background(), now, issued.RefreshToken, DeviceContext{})
	if !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("refresh after logout err = %v, want ErrInvalidRefreshToken", err)
	}
}

func TestRevokeAll(t *testing.T) {
	svc, _ := newTestService(t)
	now := time.Now()
	p := register(t, svc, "alice", "correct horse battery")

	var tokens []string
	for i := 0; i < 3; i++ {
		issued, err := svc.Login(context.Background(), now, "alice", "correct horse battery", DeviceContext{})
		if err != nil {
			t.Fatalf("Login %d: %v", i, err)
		}
		tokens = append(tokens, issued.RefreshToken)
	}

	// Registration opened one session, the three logins three more.
	n, err := svc.RevokeAll(context.Background(), now, p.ID, ReasonLogoutAll)
	if err != nil {
		t.Fatalf("RevokeAll: %v", err)
	}
	if n != 4 {
		t.Fatalf("RevokeAll revoked %d sessions, want 4", n)
	}

	for _, tok := range tokens {
		if _, err := svc.Refresh(context.Background(), now, tok, DeviceContext{}); !errors.Is(err, ErrInvalidRefreshToken) {
			t.Fatalf("refresh after RevokeAll err = %v, want ErrInvalidRefreshToken", err)
		}
	}
}

func TestDeleteExpired(t *testing.T) {
	svc, _ := newTestService(t)
	now := time.Now()
	register(t, svc, "alice", "correct horse battery")

	if _, err := svc.Login(context.Background(), now, "alice", "correct horse battery", DeviceContext{}); err != nil {
		t.Fatalf("Login: %v", err)
	}

	// One session from registration, one from the login.
	n, err := svc.DeleteExpired(context.Background(), now.Add(svc.cfg.RefreshTokenTTL+time.Hour))
	if err != nil {
		t.Fatalf("DeleteExpired: %v", err)
	}
	if n != 2 {
		t.Fatalf("DeleteExpired removed %d rows, want 2", n)
	}

	n, err = svc.DeleteExpired(context.Background(), now.Add(svc.cfg.RefreshTokenTTL+time.Hour))
	if err != nil {
		t.Fatalf("second DeleteExpired: %v", err)
	}
	if n != 0 {
		t.Fatalf("second DeleteExpired removed %d rows, want 0", n)
	}
}
