package models

import "time"

// RefreshToken is a persisted refresh-token record. Only the SHA-256 digest
// of the opaque token is stored.
type RefreshToken struct {
	ID        string
	UserID    string
	TokenHash string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Expired reports whether the record is no longer redeemable at now.
func (t *RefreshToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}
