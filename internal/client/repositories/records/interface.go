// Package records persists Records in the local SQLite store.
package records

import (
	"context"

	"github.com/dmitrijs2005/cyclesync/internal/client/models"
)

// Repository describes record persistence. Reads that find nothing return
// common.ErrorNotFound.
type Repository interface {
	// Upsert inserts r or replaces the row with the same (UserID, ID).
	Upsert(ctx context.Context, r *models.Record) error

	Get(ctx context.Context, userID, id string) (*models.Record, error)

	// GetByDate returns the most recently updated record of collection for date.
	GetByDate(ctx context.Context, userID string, c models.Collection, date models.Date) (*models.Record, error)

	// GetRange returns records with start <= date <= end, newest date first.
	GetRange(ctx context.Context, userID string, c models.Collection, start, end models.Date) ([]*models.Record, error)

	// Delete removes the row and reports whether it existed.
	Delete(ctx context.Context, userID, id string) (bool, error)

	// MarkSynced flips the row to SYNCED. When updatedAt is non-zero the
	// row is only touched if its updated_at still equals it.
	MarkSynced(ctx context.Context, userID, id string, updatedAt, remoteUpdatedAt int64) (bool, error)
}
