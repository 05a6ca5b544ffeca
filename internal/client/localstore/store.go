// Package localstore is the on-device copy of every record plus the queue of
// operations still owed to the remote store. Each write and its queue entry
// commit in one SQLite transaction.
package localstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/cyclesync/internal/client/migrations"
	"github.com/dmitrijs2005/cyclesync/internal/client/models"
	"github.com/dmitrijs2005/cyclesync/internal/client/repositories"
	"github.com/dmitrijs2005/cyclesync/internal/common"
	"github.com/dmitrijs2005/cyclesync/internal/dbx"
	"github.com/google/uuid"

	_ "modernc.org/sqlite"
)

const lastPulledKey = "last_pulled_at:"

type Store struct {
	db    *sql.DB
	repos repositories.Manager
}

// Open opens (creating if needed) the SQLite database at path and migrates
// it. Use ":memory:" for a throwaway store.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open local store: %w", err)
	}
	// SQLite has a single writer; one connection keeps transactions from
	// tripping over SQLITE_BUSY and keeps :memory: databases alive.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, storageError("open", fmt.Errorf("%s: %w", pragma, err))
		}
	}

	if err := migrations.Up(ctx, db); err != nil {
		_ = db.Close()
		return nil, storageError("migrate", err)
	}
	return New(db, repositories.NewSQLiteManager()), nil
}

// New wraps an already migrated database.
func New(db *sql.DB, repos repositories.Manager) *Store {
	return &Store{db: db, repos: repos}
}

func (s *Store) Close() error {
	return s.db.Close()
}

// storageError wraps err as a LocalStorageError. ErrorNotFound passes through.
func storageError(op string, err error) error {
	if err == nil || errors.Is(err, common.ErrorNotFound) {
		return err
	}
	return &common.LocalStorageError{Op: op, Err: dbx.ClassifySQLite(err)}
}

func (s *Store) tx(ctx context.Context, op string, fn func(ctx context.Context, tx dbx.DBTX) error) error {
	return storageError(op, dbx.WithTx(ctx, s.db, nil, fn))
}

func newOperation(userID, recordID string, c models.Collection, kind models.OpKind, now time.Time) *models.PendingOperation {
	return &models.PendingOperation{
		ID:            uuid.NewString(),
		UserID:        userID,
		RecordID:      recordID,
		Collection:    c,
		Kind:          kind,
		NextAttemptAt: &now,
		CreatedAt:     now,
	}
}

// Save upserts rec as PENDING and queues a save due at now.
func (s *Store) Save(ctx context.Context, rec *models.Record, now time.Time) (*models.PendingOperation, error) {
	var op *models.PendingOperation
	err := s.tx(ctx, "save", func(ctx context.Context, tx dbx.DBTX) error {
		rec.Status = models.StatusPending
		if err := s.repos.Records(tx).Upsert(ctx, rec); err != nil {
			return err
		}
		var err error
		op, err = s.repos.PendingOps(tx).Enqueue(ctx, newOperation(rec.UserID, rec.ID, rec.Collection, models.OpSave, now))
		return err
	})
	if err != nil {
		return nil, err
	}
	return op, nil
}

// Delete removes the row and queues a remote delete. A missing row is still
// queued since the remote copy may exist.
func (s *Store) Delete(ctx context.Context, userID, id string, c models.Collection, now time.Time) (*models.PendingOperation, error) {
	var op *models.PendingOperation
	err := s.tx(ctx, "delete", func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := s.repos.Records(tx).Delete(ctx, userID, id); err != nil {
			return err
		}
		var err error
		op, err = s.repos.PendingOps(tx).Enqueue(ctx, newOperation(userID, id, c, models.OpDelete, now))
		return err
	})
	if err != nil {
		return nil, err
	}
	return op, nil
}

func (s *Store) Get(ctx context.Context, userID, id string) (*models.Record, error) {
	rec, err := s.repos.Records(s.db).Get(ctx, userID, id)
	return rec, storageError("get", err)
}

func (s *Store) GetByDate(ctx context.Context, userID string, c models.Collection, date models.Date) (*models.Record, error) {
	rec, err := s.repos.Records(s.db).GetByDate(ctx, userID, c, date)
	return rec, storageError("get by date", err)
}

func (s *Store) GetRange(ctx context.Context, userID string, c models.Collection, start, end models.Date) ([]*models.Record, error) {
	recs, err := s.repos.Records(s.db).GetRange(ctx, userID, c, start, end)
	return recs, storageError("get range", err)
}

// MarkSynced records a remote acknowledgement regardless of the local
// updatedAt.
func (s *Store) MarkSynced(ctx context.Context, userID, id string, remoteUpdatedAt int64) error {
	_, err := s.repos.Records(s.db).MarkSynced(ctx, userID, id, 0, remoteUpdatedAt)
	return storageError("mark synced", err)
}

// ApplyResolved stores a conflict winner as the single SYNCED row for its id
// and, when drop is given, removes that queued operation. Nothing is written
// if the row already holds a strictly newer version, which protects local
// edits made while the winner was being chosen. It reports whether rec was
// stored.
func (s *Store) ApplyResolved(ctx context.Context, rec *models.Record, drop *models.PendingOperation) (bool, error) {
	var applied bool
	err := s.tx(ctx, "apply resolved", func(ctx context.Context, tx dbx.DBTX) error {
		cur, err := s.repos.Records(tx).Get(ctx, rec.UserID, rec.ID)
		switch {
		case errors.Is(err, common.ErrorNotFound):
		case err != nil:
			return err
		case cur.UpdatedAt > rec.UpdatedAt:
			return nil
		}

		rec.Status = models.StatusSynced
		rec.RemoteUpdatedAt = rec.UpdatedAt
		if err := s.repos.Records(tx).Upsert(ctx, rec); err != nil {
			return err
		}
		applied = true
		if drop != nil {
			_, err = s.repos.PendingOps(tx).DeleteIfSeq(ctx, drop.UserID, drop.RecordID, drop.Seq)
		}
		return err
	})
	return applied, err
}

// Requeue flips a SYNCED row back to PENDING and queues a save for it, so
// the remote store converges on the local version. It does nothing (nil op)
// when the row changed since rec was read.
func (s *Store) Requeue(ctx context.Context, rec *models.Record, now time.Time) (*models.PendingOperation, error) {
	var op *models.PendingOperation
	err := s.tx(ctx, "requeue", func(ctx context.Context, tx dbx.DBTX) error {
		cur, err := s.repos.Records(tx).Get(ctx, rec.UserID, rec.ID)
		if errors.Is(err, common.ErrorNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if cur.UpdatedAt != rec.UpdatedAt {
			return nil
		}
		cur.Status = models.StatusPending
		if err := s.repos.Records(tx).Upsert(ctx, cur); err != nil {
			return err
		}
		op, err = s.repos.PendingOps(tx).Enqueue(ctx, newOperation(cur.UserID, cur.ID, cur.Collection, models.OpSave, now))
		return err
	})
	return op, err
}

// CompletePush applies a remote acknowledgement of op. The operation is
// removed only if it was not re-enqueued meanwhile, and the row is marked
// SYNCED only if it still carries pushedUpdatedAt. It reports whether the
// operation was removed.
func (s *Store) CompletePush(ctx context.Context, op *models.PendingOperation, pushedUpdatedAt int64) (bool, error) {
	var removed bool
	err := s.tx(ctx, "complete push", func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		removed, err = s.repos.PendingOps(tx).DeleteIfSeq(ctx, op.UserID, op.RecordID, op.Seq)
		if err != nil {
			return err
		}
		if op.Kind == models.OpSave {
			_, err = s.repos.Records(tx).MarkSynced(ctx, op.UserID, op.RecordID, pushedUpdatedAt, pushedUpdatedAt)
		}
		return err
	})
	return removed, err
}

func (s *Store) PendingCount(ctx context.Context, userID string) (int, error) {
	n, err := s.repos.PendingOps(s.db).Count(ctx, userID)
	return n, storageError("pending count", err)
}

// PendingOperation returns the queued operation for a record, or nil.
func (s *Store) PendingOperation(ctx context.Context, userID, recordID string) (*models.PendingOperation, error) {
	op, err := s.repos.PendingOps(s.db).Get(ctx, userID, recordID)
	if errors.Is(err, common.ErrorNotFound) {
		return nil, nil
	}
	return op, storageError("pending operation", err)
}

func (s *Store) DueOperations(ctx context.Context, userID string, now time.Time, limit int) ([]*models.PendingOperation, error) {
	ops, err := s.repos.PendingOps(s.db).Due(ctx, userID, now, limit)
	return ops, storageError("due operations", err)
}

func (s *Store) AllOperations(ctx context.Context, userID string) ([]*models.PendingOperation, error) {
	ops, err := s.repos.PendingOps(s.db).All(ctx, userID)
	return ops, storageError("all operations", err)
}

// RecordFailure stores a failed attempt. next == nil marks op exhausted.
func (s *Store) RecordFailure(ctx context.Context, op *models.PendingOperation, attempts int, next *time.Time, cause error) (bool, error) {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	ok, err := s.repos.PendingOps(s.db).UpdateRetry(ctx, op.UserID, op.RecordID, op.Seq, attempts, next, msg)
	return ok, storageError("record failure", err)
}

// DropOperation removes op unless it was re-enqueued meanwhile.
func (s *Store) DropOperation(ctx context.Context, op *models.PendingOperation) (bool, error) {
	ok, err := s.repos.PendingOps(s.db).DeleteIfSeq(ctx, op.UserID, op.RecordID, op.Seq)
	return ok, storageError("drop operation", err)
}

// ReviveExhausted makes exhausted operations due again at now.
func (s *Store) ReviveExhausted(ctx context.Context, userID string, now time.Time) (int64, error) {
	n, err := s.repos.PendingOps(s.db).Revive(ctx, userID, now)
	return n, storageError("revive operations", err)
}

// LastPulledAt is the highest remote updatedAt merged by incremental pull.
func (s *Store) LastPulledAt(ctx context.Context, userID string) (int64, error) {
	v, err := s.repos.Metadata(s.db).GetInt64(ctx, lastPulledKey+userID)
	return v, storageError("last pulled", err)
}

func (s *Store) SetLastPulledAt(ctx context.Context, userID string, ts int64) error {
	return storageError("set last pulled", s.repos.Metadata(s.db).SetInt64(ctx, lastPulledKey+userID, ts))
}
