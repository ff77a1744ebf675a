// Package models defines server-side data models persisted in the database.
package models

import (
	"strings"
	"time"
)

// User is the principal a token is issued for. The service reads users,
// it only creates them from the development CLI.
type User struct {
	ID        string
	Email     string
	CreatedAt time.Time
}

// NormalizeEmail is the form emails are stored and looked up in.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
