package pendingops

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/cyclesync/internal/client/models"
	"github.com/dmitrijs2005/cyclesync/internal/common"
	"github.com/dmitrijs2005/cyclesync/internal/dbx"
)

const selectColumns = `id, user_id, record_id, collection, kind, seq, attempts, next_attempt_at, last_error, created_at`

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func toMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOperation(s scanner) (*models.PendingOperation, error) {
	var (
		op         models.PendingOperation
		collection string
		kind       string
		next       sql.NullInt64
		created    int64
	)
	if err := s.Scan(&op.ID, &op.UserID, &op.RecordID, &collection, &kind, &op.Seq, &op.Attempts, &next, &op.LastError, &created); err != nil {
		return nil, err
	}
	op.Collection = models.Collection(collection)
	op.Kind = models.OpKind(kind)
	op.CreatedAt = time.UnixMilli(created)
	if next.Valid {
		t := time.UnixMilli(next.Int64)
		op.NextAttemptAt = &t
	}
	return &op, nil
}

func (r *SQLiteRepository) Enqueue(ctx context.Context, op *models.PendingOperation) (*models.PendingOperation, error) {
	query := `INSERT INTO pending_operations (id, user_id, record_id, collection, kind, seq, attempts, next_attempt_at, last_error, created_at)
		VALUES (?, ?, ?, ?, ?, 1, 0, ?, '', ?)
		ON CONFLICT(user_id, record_id) DO UPDATE SET
			collection = excluded.collection,
			kind = excluded.kind,
			seq = pending_operations.seq + 1,
			attempts = 0,
			next_attempt_at = excluded.next_attempt_at,
			last_error = ''`
	_, err := r.db.ExecContext(ctx, query,
		op.ID, op.UserID, op.RecordID, string(op.Collection), string(op.Kind),
		toMillis(op.NextAttemptAt), op.CreatedAt.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("enqueue operation: %w", err)
	}
	return r.Get(ctx, op.UserID, op.RecordID)
}

func (r *SQLiteRepository) Get(ctx context.Context, userID, recordID string) (*models.PendingOperation, error) {
	op, err := scanOperation(r.db.QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM pending_operations WHERE user_id = ? AND record_id = ?`, userID, recordID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select operation: %w", err)
	}
	return op, nil
}

func (r *SQLiteRepository) list(ctx context.Context, query string, args ...any) ([]*models.PendingOperation, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select operations: %w", err)
	}
	defer rows.Close()

	var ops []*models.PendingOperation
	for rows.Next() {
		op, err := scanOperation(rows)
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ops, nil
}

func (r *SQLiteRepository) Due(ctx context.Context, userID string, now time.Time, limit int) ([]*models.PendingOperation, error) {
	if limit <= 0 {
		limit = -1
	}
	return r.list(ctx, `SELECT `+selectColumns+` FROM pending_operations
		WHERE user_id = ? AND next_attempt_at IS NOT NULL AND next_attempt_at <= ?
		ORDER BY created_at, id LIMIT ?`, userID, now.UnixMilli(), limit)
}

func (r *SQLiteRepository) All(ctx context.Context, userID string) ([]*models.PendingOperation, error) {
	return r.list(ctx, `SELECT `+selectColumns+` FROM pending_operations
		WHERE user_id = ? ORDER BY created_at, id`, userID)
}

func (r *SQLiteRepository) Count(ctx context.Context, userID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pending_operations WHERE user_id = ?`, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count operations: %w", err)
	}
	return n, nil
}

func affected(res sql.Result, err error) (bool, error) {
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

func (r *SQLiteRepository) DeleteIfSeq(ctx context.Context, userID, recordID string, seq int64) (bool, error) {
	ok, err := affected(r.db.ExecContext(ctx,
		`DELETE FROM pending_operations WHERE user_id = ? AND record_id = ? AND seq = ?`, userID, recordID, seq))
	if err != nil {
		return false, fmt.Errorf("delete operation: %w", err)
	}
	return ok, nil
}

func (r *SQLiteRepository) UpdateRetry(ctx context.Context, userID, recordID string, seq int64, attempts int, next *time.Time, lastErr string) (bool, error) {
	ok, err := affected(r.db.ExecContext(ctx, `UPDATE pending_operations
		SET attempts = ?, next_attempt_at = ?, last_error = ?
		WHERE user_id = ? AND record_id = ? AND seq = ?`,
		attempts, toMillis(next), lastErr, userID, recordID, seq))
	if err != nil {
		return false, fmt.Errorf("update retry state: %w", err)
	}
	return ok, nil
}

func (r *SQLiteRepository) Revive(ctx context.Context, userID string, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE pending_operations
		SET attempts = 0, next_attempt_at = ?
		WHERE user_id = ? AND next_attempt_at IS NULL`, now.UnixMilli(), userID)
	if err != nil {
		return 0, fmt.Errorf("revive operations: %w", err)
	}
	return res.RowsAffected()
}
