package domain

import "time"

// Session binds an opaque browser token to a user. Only the fingerprint of
// the token is stored.
type Session struct {
	ID        string
	TokenHash string // deterministic fingerprint (base64url SHA-256)
	UserID    string
	CreatedAt time.Time
	ExpiresAt time.Time // absolute
}

// Expired reports whether the session is no longer valid at now.
func (s Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
