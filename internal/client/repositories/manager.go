// Package repositories vends the local store repositories bound to a DBTX,
// so a single transaction can span records, the operation queue and
// metadata.
package repositories

import (
	"github.com/dmitrijs2005/cyclesync/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/cyclesync/internal/client/repositories/pendingops"
	"github.com/dmitrijs2005/cyclesync/internal/client/repositories/records"
	"github.com/dmitrijs2005/cyclesync/internal/dbx"
)

type Manager interface {
	Records(db dbx.DBTX) records.Repository
	PendingOps(db dbx.DBTX) pendingops.Repository
	Metadata(db dbx.DBTX) metadata.Repository
}

// SQLiteManager vends SQLite-backed repositories.
type SQLiteManager struct{}

func NewSQLiteManager() *SQLiteManager { return &SQLiteManager{} }

func (SQLiteManager) Records(db dbx.DBTX) records.Repository {
	return records.NewSQLiteRepository(db)
}

func (SQLiteManager) PendingOps(db dbx.DBTX) pendingops.Repository {
	return pendingops.NewSQLiteRepository(db)
}

func (SQLiteManager) Metadata(db dbx.DBTX) metadata.Repository {
	return metadata.NewSQLiteRepository(db)
}
