package token

import "testing"

func TestNewOpaque_UniqueAndURLSafe(t *testing.T) {
	t.Parallel()

	a, err := NewOpaque(32)
	if err != nil {
		t.Fatalf("NewOpaque: %v", err)
	}
	b, err := NewOpaque(32)
	if err != nil {
		t.Fatalf("NewOpaque: %v", err)
	}
	if a == b {
		t.Fatalf("two opaque tokens collided")
	}
	// 32 random bytes -> 43 base64url chars, no padding.
	if len(a) != 43 {
		t.Fatalf("unexpected token length %d", len(a))
	}
}

func TestHashRefreshHex_ModeSelection(t *testing.T) {
	t.Parallel()

	plain := HashRefreshHex("tok", nil)
	if plain != HashSHA256Hex("tok") {
		t.Fatalf("nil key must select SHA-256 mode")
	}

	key := []byte("0123456789abcdef0123456789abcdef")
	keyed := HashRefreshHex("tok", key)
	if keyed != HashHMACSHA256Hex("tok", key) {
		t.Fatalf("keyed mode must select HMAC")
	}
	if keyed == plain {
		t.Fatalf("HMAC and SHA-256 digests must differ")
	}
	if len(keyed) != 64 || len(plain) != 64 {
		t.Fatalf("digests must be 64 hex chars")
	}
}

func TestValidateHMACKey(t *testing.T) {
	t.Parallel()

	if err := ValidateHMACKey(nil); err != nil {
		t.Fatalf("empty key is valid (SHA mode): %v", err)
	}
	if err := ValidateHMACKey([]byte("short")); err != ErrHMACKeyTooShort {
		t.Fatalf("expected ErrHMACKeyTooShort, got %v", err)
	}
	if err := ValidateHMACKey(make([]byte, 32)); err != nil {
		t.Fatalf("32-byte key is valid: %v", err)
	}
}
