// Package session implements the credential lifecycle: short-lived signed
// access tokens, long-lived opaque refresh credentials stored hashed at rest,
// issuance at registration/login, refresh rotation with reuse detection, and
// server-side revocation.
package session
