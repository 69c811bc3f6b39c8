package password

import (
	"strings"
	"testing"
)

func TestHashVerify_RoundTrip(t *testing.T) {
	t.Parallel()

	enc, err := Hash("Secret123!", DefaultParams())
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if !strings.HasPrefix(enc, "$argon2id$v=19$") {
		t.Fatalf("unexpected hash format: %q", enc)
	}

	ok, err := Verify("Secret123!", enc)
	if err != nil || !ok {
		t.Fatalf("Verify(correct)=(%v, %v), want (true, nil)", ok, err)
	}

	ok, err = Verify("Secret123?", enc)
	if err != nil || ok {
		t.Fatalf("Verify(wrong)=(%v, %v), want (false, nil)", ok, err)
	}
}

func TestHash_SaltedPerCall(t *testing.T) {
	t.Parallel()

	a, err := Hash("Secret123!", DefaultParams())
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	b, err := Hash("Secret123!", DefaultParams())
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if a == b {
		t.Fatalf("two hashes of the same input must differ")
	}
}

func TestHash_PolicyBounds(t *testing.T) {
	t.Parallel()

	if _, err := Hash("short", DefaultParams()); err != ErrPasswordTooShort {
		t.Fatalf("expected ErrPasswordTooShort, got %v", err)
	}
	if _, err := Hash(strings.Repeat("x", MaxLength+1), DefaultParams()); err != ErrPasswordTooLong {
		t.Fatalf("expected ErrPasswordTooLong, got %v", err)
	}
}

func TestVerify_MalformedNeverPanics(t *testing.T) {
	t.Parallel()

	for _, enc := range []string{
		"",
		"not-a-hash",
		"$argon2id$v=19$m=65536,t=3,p=2$!!$!!",
		"$argon2i$v=19$m=65536,t=3,p=2$c2FsdA$aGFzaA",
		"$argon2id$v=18$m=65536,t=3,p=2$c2FsdA$aGFzaA",
		"$argon2id$v=19$m=0,t=0,p=0$c2FsdA$aGFzaA",
	} {
		ok, err := Verify("anything", enc)
		if ok {
			t.Fatalf("malformed hash %q verified", enc)
		}
		if err != ErrInvalidHash {
			t.Fatalf("Verify(%q) err=%v, want ErrInvalidHash", enc, err)
		}
	}
}

func TestVerify_RejectsPathologicalParams(t *testing.T) {
	t.Parallel()

	// Parameters far above DefaultParams must be refused before any work.
	enc := "$argon2id$v=19$m=4194304,t=64,p=8$c2FsdHNhbHRzYWx0c2FsdA$aGFzaGhhc2hoYXNoaGFzaGhhc2hoYXNoaGFzaGhhc2g"
	ok, err := Verify("anything", enc)
	if ok || err != ErrInvalidHash {
		t.Fatalf("Verify(oversized)=(%v, %v), want (false, ErrInvalidHash)", ok, err)
	}
}
