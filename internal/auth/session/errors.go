package session

import "errors"

var (
	// ErrConfig is returned for invalid configuration.
	ErrConfig = errors.New("invalid config")

	// ErrInvalidToken is returned when an access token fails signature or
	// structural validation.
	ErrInvalidToken = errors.New("invalid token")

	// ErrTokenExpired is returned when an otherwise well-signed access token
	// is past its expiry. Kept distinct from ErrInvalidToken so the
	// middleware can attempt a silent refresh only where it makes sense.
	ErrTokenExpired = errors.New("token expired")

	// ErrUsernameTaken is returned by Register when the username exists.
	ErrUsernameTaken = errors.New("username taken")

	// ErrInvalidCredentials is the single login failure. Unknown username and
	// wrong password produce this exact error so callers cannot enumerate
	// accounts.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrInvalidRefreshToken is the uniform refresh failure covering missing,
	// expired, revoked and reused credentials. The finer distinctions exist
	// only for the audit log.
	ErrInvalidRefreshToken = errors.New("invalid or expired refresh token")

	// ErrRefreshReuseDetected is returned when a rotated (replaced) refresh
	// credential is presented again. All of the principal's sessions have
	// been revoked by the time the caller sees it.
	ErrRefreshReuseDetected = errors.New("refresh token reuse detected")

	// ErrSessionNotFound is the store-level miss for a refresh hash lookup.
	ErrSessionNotFound = errors.New("session not found")
)
