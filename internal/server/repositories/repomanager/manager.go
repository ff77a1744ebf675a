package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/magiclink/internal/dbx"
	"github.com/dmitrijs2005/magiclink/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/magiclink/internal/server/repositories/users"
)

// RepositoryManager vends repositories bound to a DBTX, so the same code
// path works on the pool and inside a transaction.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	RefreshTokens(db dbx.DBTX) refreshtokens.Repository
}
