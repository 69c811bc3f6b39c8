package session

import "commons/internal/security/token"

// newRefreshToken mints an opaque refresh token and the hash it is stored
// under. Only the hash ever touches the database.
func newRefreshToken(nBytes int, hmacKey []byte) (plain, hashHex string, err error) {
	plain, err = token.NewOpaque(nBytes)
	if err != nil {
		return "", "", err
	}
	return plain, token.HashRefreshHex(plain, hmacKey), nil
}

// maxRefreshTokenLen bounds the length of client-supplied refresh tokens
// before they are hashed, so junk input cannot cost us work.
const maxRefreshTokenLen = 512
