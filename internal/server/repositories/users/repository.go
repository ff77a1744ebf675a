// Package users declares the user directory the service reads principals from.
package users

import (
	"context"

	"github.com/dmitrijs2005/magiclink/internal/server/models"
)

// Repository looks users up by normalized email or id. Absent users are
// reported as common.ErrorNotFound.
type Repository interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	Delete(ctx context.Context, id string) error
}
