package services

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/magiclink/internal/server/models"
	"github.com/dmitrijs2005/magiclink/internal/server/repositories/repomanager"
)

// Directory is the user lookup the issuer and validator depend on.
// Missing users are reported as common.ErrorNotFound.
type Directory interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type repoDirectory struct {
	db    *sql.DB
	repos repomanager.RepositoryManager
}

// NewRepositoryDirectory serves Directory lookups from the users repository.
func NewRepositoryDirectory(db *sql.DB, repos repomanager.RepositoryManager) Directory {
	return &repoDirectory{db: db, repos: repos}
}

func (d *repoDirectory) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return d.repos.Users(d.db).FindByEmail(ctx, email)
}

func (d *repoDirectory) FindByID(ctx context.Context, id string) (*models.User, error) {
	return d.repos.Users(d.db).FindByID(ctx, id)
}
