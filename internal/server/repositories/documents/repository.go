package documents

import (
	"context"

	"github.com/dmitrijs2005/cyclesync/internal/server/models"
)

type Repository interface {
	Upsert(ctx context.Context, d *models.Document) (bool, error)
	Get(ctx context.Context, userID, collection, docID string) (*models.Document, error)
	Delete(ctx context.Context, userID, collection, docID string) error
	SelectByDateRange(ctx context.Context, userID, collection string, fromDay, toDay int64) ([]*models.Document, error)
	SelectUpdatedSince(ctx context.Context, userID string, since int64) ([]*models.Document, error)
}
