// Package pendingops persists the queue of saves and deletes that still
// need remote acknowledgement. The queue lives in SQLite so it survives
// restarts.
package pendingops

import (
	"context"
	"time"

	"github.com/dmitrijs2005/cyclesync/internal/client/models"
)

type Repository interface {
	// Enqueue stores op, or coalesces it into the existing operation for the
	// same record: kind and collection are replaced, Seq is bumped and the
	// retry state is reset. The stored operation is returned.
	Enqueue(ctx context.Context, op *models.PendingOperation) (*models.PendingOperation, error)

	// Get returns common.ErrorNotFound when the record has no operation.
	Get(ctx context.Context, userID, recordID string) (*models.PendingOperation, error)

	// Due lists operations whose next attempt is at or before now, oldest first.
	Due(ctx context.Context, userID string, now time.Time, limit int) ([]*models.PendingOperation, error)

	All(ctx context.Context, userID string) ([]*models.PendingOperation, error)
	Count(ctx context.Context, userID string) (int, error)

	// DeleteIfSeq removes the operation only if it was not re-enqueued
	// since seq was read.
	DeleteIfSeq(ctx context.Context, userID, recordID string, seq int64) (bool, error)

	// UpdateRetry stores the outcome of a failed attempt if seq still
	// matches. A nil next marks the operation exhausted.
	UpdateRetry(ctx context.Context, userID, recordID string, seq int64, attempts int, next *time.Time, lastErr string) (bool, error)

	// Revive makes every exhausted operation due at now with a fresh
	// attempt budget.
	Revive(ctx context.Context, userID string, now time.Time) (int64, error)
}
