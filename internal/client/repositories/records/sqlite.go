package records

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/cyclesync/internal/client/models"
	"github.com/dmitrijs2005/cyclesync/internal/common"
	"github.com/dmitrijs2005/cyclesync/internal/dbx"
)

const selectColumns = `user_id, id, collection, date_epoch_days, created_at, updated_at, payload, status, remote_updated_at`

// SQLiteRepository implements Repository using a DBTX (either *sql.DB or *sql.Tx).
type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Upsert(ctx context.Context, rec *models.Record) error {
	payload, err := models.EncodePayload(rec.Payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	query := `INSERT INTO records (user_id, id, collection, date_epoch_days, created_at, updated_at, payload, status, remote_updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, id) DO UPDATE SET
			collection = excluded.collection,
			date_epoch_days = excluded.date_epoch_days,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at,
			payload = excluded.payload,
			status = excluded.status,
			remote_updated_at = excluded.remote_updated_at`
	_, err = r.db.ExecContext(ctx, query,
		rec.UserID, rec.ID, string(rec.Collection), int64(rec.Date), rec.CreatedAt, rec.UpdatedAt,
		string(payload), string(rec.Status), rec.RemoteUpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert record: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (*models.Record, error) {
	var (
		rec        models.Record
		collection string
		date       int64
		payload    string
		status     string
	)
	if err := s.Scan(&rec.UserID, &rec.ID, &collection, &date, &rec.CreatedAt, &rec.UpdatedAt, &payload, &status, &rec.RemoteUpdatedAt); err != nil {
		return nil, err
	}
	rec.Collection = models.Collection(collection)
	rec.Date = models.Date(date)
	rec.Status = models.SyncStatus(status)

	p, err := models.DecodePayload(rec.Collection, []byte(payload))
	if err != nil {
		return nil, fmt.Errorf("decode payload of %s: %w", rec.ID, err)
	}
	rec.Payload = p
	return &rec, nil
}

func (r *SQLiteRepository) queryOne(ctx context.Context, query string, args ...any) (*models.Record, error) {
	rec, err := scanRecord(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select record: %w", err)
	}
	return rec, nil
}

func (r *SQLiteRepository) Get(ctx context.Context, userID, id string) (*models.Record, error) {
	return r.queryOne(ctx, `SELECT `+selectColumns+` FROM records WHERE user_id = ? AND id = ?`, userID, id)
}

func (r *SQLiteRepository) GetByDate(ctx context.Context, userID string, c models.Collection, date models.Date) (*models.Record, error) {
	return r.queryOne(ctx, `SELECT `+selectColumns+` FROM records
		WHERE user_id = ? AND collection = ? AND date_epoch_days = ?
		ORDER BY updated_at DESC, id LIMIT 1`, userID, string(c), int64(date))
}

func (r *SQLiteRepository) GetRange(ctx context.Context, userID string, c models.Collection, start, end models.Date) ([]*models.Record, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+selectColumns+` FROM records
		WHERE user_id = ? AND collection = ? AND date_epoch_days BETWEEN ? AND ?
		ORDER BY date_epoch_days DESC, updated_at DESC, id`, userID, string(c), int64(start), int64(end))
	if err != nil {
		return nil, fmt.Errorf("select records: %w", err)
	}
	defer rows.Close()

	var result []*models.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, userID, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM records WHERE user_id = ? AND id = ?`, userID, id)
	if err != nil {
		return false, fmt.Errorf("delete record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

func (r *SQLiteRepository) MarkSynced(ctx context.Context, userID, id string, updatedAt, remoteUpdatedAt int64) (bool, error) {
	query := `UPDATE records SET status = ?, remote_updated_at = ? WHERE user_id = ? AND id = ?`
	args := []any{string(models.StatusSynced), remoteUpdatedAt, userID, id}
	if updatedAt != 0 {
		query += ` AND updated_at = ?`
		args = append(args, updatedAt)
	}
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("mark synced: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}
