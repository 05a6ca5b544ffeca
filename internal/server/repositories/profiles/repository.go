package profiles

import (
	"context"

	"github.com/dmitrijs2005/cyclesync/internal/server/models"
)

type Repository interface {
	Get(ctx context.Context, userID string) (*models.Profile, error)
	Upsert(ctx context.Context, p *models.Profile) error
}
