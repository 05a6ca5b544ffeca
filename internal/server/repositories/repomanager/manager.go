package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/cyclesync/internal/dbx"
	"github.com/dmitrijs2005/cyclesync/internal/server/repositories/documents"
	"github.com/dmitrijs2005/cyclesync/internal/server/repositories/profiles"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Documents(db dbx.DBTX) documents.Repository
	Profiles(db dbx.DBTX) profiles.Repository
}
