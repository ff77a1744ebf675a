// Package auth implements the magic-link token codec: a signed, expiring
// claim set carried as an HS256 JWT.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Purpose tells what a token may be used for.
type Purpose string

const (
	// PurposeAuth grants a general session.
	PurposeAuth Purpose = "auth"
	// PurposeEntry additionally binds the session to one resource (a prompt).
	PurposeEntry Purpose = "entry"
)

func (p Purpose) Valid() bool {
	return p == PurposeAuth || p == PurposeEntry
}

// ErrInvalidClaims is returned by Encode for a claim set that breaks the
// purpose/resource rules below.
var ErrInvalidClaims = errors.New("invalid claim set")

// Claims is the decoded token payload.
type Claims struct {
	Subject         string
	Purpose         Purpose
	BoundResourceID string

	// Set by the codec.
	ID        string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Validate checks the claim-set invariant: an entry token carries a bound
// resource, an auth token carries none, and purpose is always explicit.
func (c Claims) Validate() error {
	switch {
	case c.Subject == "":
		return errors.New("subject is empty")
	case !c.Purpose.Valid():
		return errors.New("unknown purpose")
	case c.Purpose == PurposeEntry && c.BoundResourceID == "":
		return errors.New("entry token without bound resource")
	case c.Purpose == PurposeAuth && c.BoundResourceID != "":
		return errors.New("auth token with bound resource")
	}
	return nil
}

// tokenClaims is the JWT wire shape.
type tokenClaims struct {
	Purpose         Purpose `json:"purpose"`
	BoundResourceID string  `json:"rid,omitempty"`
	jwt.RegisteredClaims
}

// Validate is called by the jwt parser after the registered claims pass.
func (t tokenClaims) Validate() error {
	return t.claims().Validate()
}

func (t tokenClaims) claims() Claims {
	c := Claims{
		Subject:         t.Subject,
		Purpose:         t.Purpose,
		BoundResourceID: t.BoundResourceID,
		ID:              t.ID,
	}
	if t.IssuedAt != nil {
		c.IssuedAt = t.IssuedAt.Time
	}
	if t.ExpiresAt != nil {
		c.ExpiresAt = t.ExpiresAt.Time
	}
	return c
}
