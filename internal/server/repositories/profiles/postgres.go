// Package profiles stores the per-user root document.
package profiles

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/cyclesync/internal/common"
	"github.com/dmitrijs2005/cyclesync/internal/dbx"
	"github.com/dmitrijs2005/cyclesync/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Get returns the profile of userID or common.ErrorNotFound.
func (r *PostgresRepository) Get(ctx context.Context, userID string) (*models.Profile, error) {
	query := `SELECT user_id, data, updated_at FROM profiles WHERE user_id = $1`

	p := &models.Profile{}
	if err := r.db.QueryRowContext(ctx, query, userID).Scan(&p.UserID, &p.Data, &p.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return p, nil
}

// Upsert replaces the profile unless the stored one is strictly newer.
func (r *PostgresRepository) Upsert(ctx context.Context, p *models.Profile) error {
	query := `
		INSERT INTO profiles (user_id, data, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id)
		DO UPDATE SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at
			WHERE profiles.updated_at <= EXCLUDED.updated_at;
	`
	if _, err := r.db.ExecContext(ctx, query, p.UserID, p.Data, p.UpdatedAt); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
