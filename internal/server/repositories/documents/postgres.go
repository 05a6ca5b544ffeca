// Package documents provides the PostgreSQL-backed document repository.
package documents

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/cyclesync/internal/common"
	"github.com/dmitrijs2005/cyclesync/internal/dbx"
	"github.com/dmitrijs2005/cyclesync/internal/server/models"
)

// PostgresRepository implements document storage over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const columns = `user_id, collection, doc_id, data, created_at, updated_at, date_epoch_days, v`

// Upsert writes d unless the stored copy has a strictly newer updated_at.
// It reports whether a row was written; a replayed or stale write returns
// false with no error.
func (r *PostgresRepository) Upsert(ctx context.Context, d *models.Document) (bool, error) {
	query := `
		INSERT INTO documents (` + columns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (user_id, collection, doc_id)
		DO UPDATE SET
			data = EXCLUDED.data,
			created_at = EXCLUDED.created_at,
			updated_at = EXCLUDED.updated_at,
			date_epoch_days = EXCLUDED.date_epoch_days,
			v = EXCLUDED.v
			WHERE documents.updated_at <= EXCLUDED.updated_at;
	`
	res, err := r.db.ExecContext(ctx, query,
		d.UserID, d.Collection, d.DocID, d.Data, d.CreatedAt, d.UpdatedAt, d.DateEpochDays, d.V)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected error: %w", err)
	}
	switch n {
	case 1:
		return true, nil
	case 0:
		return false, nil
	default:
		return false, fmt.Errorf("unexpected rows affected: %d", n)
	}
}

// Get returns one document or common.ErrorNotFound.
func (r *PostgresRepository) Get(ctx context.Context, userID, collection, docID string) (*models.Document, error) {
	query := `SELECT ` + columns + ` FROM documents
		WHERE user_id = $1 AND collection = $2 AND doc_id = $3`

	d, err := scanDocument(r.db.QueryRowContext(ctx, query, userID, collection, docID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return d, nil
}

// Delete removes one document. A missing document is common.ErrorNotFound.
func (r *PostgresRepository) Delete(ctx context.Context, userID, collection, docID string) error {
	query := `DELETE FROM documents WHERE user_id = $1 AND collection = $2 AND doc_id = $3`

	res, err := r.db.ExecContext(ctx, query, userID, collection, docID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

// SelectByDateRange returns the collection's documents dated within
// [fromDay, toDay], newest date first.
func (r *PostgresRepository) SelectByDateRange(ctx context.Context, userID, collection string, fromDay, toDay int64) ([]*models.Document, error) {
	query := `SELECT ` + columns + ` FROM documents
		WHERE user_id = $1 AND collection = $2 AND date_epoch_days BETWEEN $3 AND $4
		ORDER BY date_epoch_days DESC, doc_id`

	return r.selectMany(ctx, query, userID, collection, fromDay, toDay)
}

// SelectUpdatedSince returns every document of userID with updated_at >
// since, oldest change first.
func (r *PostgresRepository) SelectUpdatedSince(ctx context.Context, userID string, since int64) ([]*models.Document, error) {
	query := `SELECT ` + columns + ` FROM documents
		WHERE user_id = $1 AND updated_at > $2
		ORDER BY updated_at, collection, doc_id`

	return r.selectMany(ctx, query, userID, since)
}

func (r *PostgresRepository) selectMany(ctx context.Context, query string, args ...any) ([]*models.Document, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select documents: %w", err)
	}
	defer rows.Close()

	var result []*models.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(s scanner) (*models.Document, error) {
	var d models.Document
	if err := s.Scan(&d.UserID, &d.Collection, &d.DocID, &d.Data, &d.CreatedAt, &d.UpdatedAt, &d.DateEpochDays, &d.V); err != nil {
		return nil, err
	}
	return &d, nil
}
