// Package refreshtokens declares the server-side repository contract for
// persisted refresh tokens. Tokens are addressed by the SHA-256 digest of
// their opaque value (see common.HashToken).
package refreshtokens

import (
	"context"
	"time"

	"github.com/dmitrijs2005/magiclink/internal/server/models"
)

// Repository defines storage operations for refresh-token records.
type Repository interface {
	// Create stores a new record. ID, UserID, TokenHash and ExpiresAt must be set.
	Create(ctx context.Context, token *models.RefreshToken) error

	// Consume deletes the record for tokenHash and returns what was deleted.
	// When the row is already gone (including when a concurrent caller won)
	// it returns common.ErrorNotFound.
	Consume(ctx context.Context, tokenHash string) (*models.RefreshToken, error)

	// Delete removes the record for tokenHash and reports whether a row was deleted.
	Delete(ctx context.Context, tokenHash string) (bool, error)

	// DeleteExpired removes every record whose expiry is at or before now.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
