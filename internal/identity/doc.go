// Package identity holds the Principal model and its persistence boundary.
//
// A Principal is a registered user: unique case-sensitive username, Argon2id
// password hash, display attributes, and a role (user or admin). Principals
// are created at registration and never deleted by this subsystem.
package identity
