// Package api exposes the credential lifecycle over HTTP: registration,
// login, refresh rotation, logout, and the session middleware the rest of
// the server mounts protected routes behind.
//
// Tokens ride in cookies by default. The access token cookie is sent on
// every request; the refresh token cookie is path-scoped to /auth so the
// long-lived credential only travels to the endpoints that need it. A
// bearer Authorization header is accepted as a fallback for non-browser
// clients.
package api
