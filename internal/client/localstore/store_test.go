package localstore

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/cyclesync/internal/client/models"
	"github.com/dmitrijs2005/cyclesync/internal/client/repositories"
	"github.com/dmitrijs2005/cyclesync/internal/client/repositories/pendingops"
	"github.com/dmitrijs2005/cyclesync/internal/common"
	"github.com/dmitrijs2005/cyclesync/internal/dbx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func record(id string, date models.Date, updated int64) *models.Record {
	return &models.Record{
		UserID: "u1", ID: id, Collection: models.CollectionDailyLogs, Date: date,
		CreatedAt: updated, UpdatedAt: updated,
		Payload: models.DailyLog{Flow: models.FlowMedium},
	}
}

func TestSave_PersistsPendingAndQueues(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	now := time.UnixMilli(1_000)

	op, err := s.Save(ctx, record("A", 20371, 100), now)
	require.NoError(t, err)
	assert.Equal(t, models.OpSave, op.Kind)
	assert.Equal(t, int64(1), op.Seq)

	got, err := s.Get(ctx, "u1", "A")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, got.Status)

	byDate, err := s.GetByDate(ctx, "u1", models.CollectionDailyLogs, 20371)
	require.NoError(t, err)
	assert.Equal(t, "A", byDate.ID)

	n, err := s.PendingCount(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// A second save before the push finishes coalesces into the same op.
	op2, err := s.Save(ctx, record("A", 20371, 101), now)
	require.NoError(t, err)
	assert.Equal(t, op.ID, op2.ID)
	assert.Equal(t, int64(2), op2.Seq)
}

func TestCompletePush_GuardsSeqAndUpdatedAt(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	now := time.UnixMilli(1_000)

	op, err := s.Save(ctx, record("A", 20371, 100), now)
	require.NoError(t, err)

	// Edit lands while the first push is in flight.
	_, err = s.Save(ctx, record("A", 20371, 105), now)
	require.NoError(t, err)

	removed, err := s.CompletePush(ctx, op, 100)
	require.NoError(t, err)
	assert.False(t, removed)

	got, err := s.Get(ctx, "u1", "A")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, got.Status, "newer local edit stays pending")

	cur, err := s.PendingOperation(ctx, "u1", "A")
	require.NoError(t, err)
	require.NotNil(t, cur)

	removed, err = s.CompletePush(ctx, cur, 105)
	require.NoError(t, err)
	assert.True(t, removed)

	got, err = s.Get(ctx, "u1", "A")
	require.NoError(t, err)
	assert.Equal(t, models.StatusSynced, got.Status)
	assert.Equal(t, int64(105), got.RemoteUpdatedAt)

	cur, err = s.PendingOperation(ctx, "u1", "A")
	require.NoError(t, err)
	assert.Nil(t, cur)
}

func TestDelete_QueuesEvenWhenMissing(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	now := time.UnixMilli(1_000)

	_, err := s.Save(ctx, record("C", 20371, 100), now)
	require.NoError(t, err)

	op, err := s.Delete(ctx, "u1", "C", models.CollectionDailyLogs, now)
	require.NoError(t, err)
	assert.Equal(t, models.OpDelete, op.Kind)

	_, err = s.Get(ctx, "u1", "C")
	assert.ErrorIs(t, err, common.ErrorNotFound)

	op, err = s.Delete(ctx, "u1", "ghost", models.CollectionCycles, now)
	require.NoError(t, err)
	assert.Equal(t, models.CollectionCycles, op.Collection)

	n, err := s.PendingCount(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestRetryBookkeeping(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	now := time.UnixMilli(10_000)

	op, err := s.Save(ctx, record("A", 1, 100), now)
	require.NoError(t, err)

	next := now.Add(2 * time.Second)
	ok, err := s.RecordFailure(ctx, op, 1, &next, errors.New("unavailable"))
	require.NoError(t, err)
	assert.True(t, ok)

	due, err := s.DueOperations(ctx, "u1", now, 10)
	require.NoError(t, err)
	assert.Empty(t, due)

	due, err = s.DueOperations(ctx, "u1", next, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "unavailable", due[0].LastError)

	_, err = s.RecordFailure(ctx, op, 5, nil, errors.New("unavailable"))
	require.NoError(t, err)
	due, err = s.DueOperations(ctx, "u1", next.Add(time.Hour), 10)
	require.NoError(t, err)
	assert.Empty(t, due, "exhausted ops wait for revival")

	n, err := s.ReviveExhausted(ctx, "u1", next)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	all, err := s.AllOperations(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Zero(t, all[0].Attempts)

	ok, err = s.DropOperation(ctx, all[0])
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestApplyResolvedAndRequeue(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	applied, err := s.ApplyResolved(ctx, record("B", 20371, 200), nil)
	require.NoError(t, err)
	assert.True(t, applied)

	got, err := s.Get(ctx, "u1", "B")
	require.NoError(t, err)
	assert.Equal(t, models.StatusSynced, got.Status)
	assert.Equal(t, int64(200), got.RemoteUpdatedAt)

	op, err := s.Requeue(ctx, got, time.UnixMilli(1))
	require.NoError(t, err)
	require.NotNil(t, op)
	assert.Equal(t, "B", op.RecordID)

	got, err = s.Get(ctx, "u1", "B")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, got.Status)
	assert.Equal(t, int64(200), got.UpdatedAt)

	stale := got.Clone()
	stale.UpdatedAt = 150
	op, err = s.Requeue(ctx, stale, time.UnixMilli(2))
	require.NoError(t, err)
	assert.Nil(t, op, "row changed since it was read")

	require.NoError(t, s.MarkSynced(ctx, "u1", "B", 200))
	got, err = s.Get(ctx, "u1", "B")
	require.NoError(t, err)
	assert.Equal(t, models.StatusSynced, got.Status)
}

func TestApplyResolved_NeverRegresses(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	op, err := s.Save(ctx, record("A", 1, 300), time.UnixMilli(1))
	require.NoError(t, err)

	applied, err := s.ApplyResolved(ctx, record("A", 1, 200), op)
	require.NoError(t, err)
	assert.False(t, applied)

	got, err := s.Get(ctx, "u1", "A")
	require.NoError(t, err)
	assert.Equal(t, int64(300), got.UpdatedAt)
	assert.Equal(t, models.StatusPending, got.Status)

	cur, err := s.PendingOperation(ctx, "u1", "A")
	require.NoError(t, err)
	assert.NotNil(t, cur, "operation kept when nothing was applied")

	// Equal timestamps: the remote copy replaces the local one and the
	// queued save goes away.
	applied, err = s.ApplyResolved(ctx, record("A", 1, 300), cur)
	require.NoError(t, err)
	assert.True(t, applied)

	cur, err = s.PendingOperation(ctx, "u1", "A")
	require.NoError(t, err)
	assert.Nil(t, cur)
}

func TestLastPulledAt(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	ts, err := s.LastPulledAt(ctx, "u1")
	require.NoError(t, err)
	assert.Zero(t, ts)

	require.NoError(t, s.SetLastPulledAt(ctx, "u1", 300))
	ts, err = s.LastPulledAt(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(300), ts)

	ts, err = s.LastPulledAt(ctx, "u2")
	require.NoError(t, err)
	assert.Zero(t, ts)
}

func TestSave_StorageFullIsSurfaced(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	_, err := s.db.ExecContext(ctx, `PRAGMA max_page_count = 1`)
	require.NoError(t, err)

	rec := record("big", 1, 1)
	rec.Payload = models.DailyLog{Flow: models.FlowNone, Notes: strings.Repeat("x", 256*1024)}

	_, err = s.Save(ctx, rec, time.UnixMilli(1))
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrStorageFull)

	var lse *common.LocalStorageError
	require.ErrorAs(t, err, &lse)
	assert.Equal(t, "save", lse.Op)

	_, err = s.Get(ctx, "u1", "big")
	assert.ErrorIs(t, err, common.ErrorNotFound, "nothing half-written")
}

type failingOps struct {
	pendingops.Repository
}

func (failingOps) Enqueue(context.Context, *models.PendingOperation) (*models.PendingOperation, error) {
	return nil, errors.New("queue write failed")
}

type failingManager struct {
	repositories.SQLiteManager
}

func (failingManager) PendingOps(dbx.DBTX) pendingops.Repository { return failingOps{} }

func TestSave_IsAtomic(t *testing.T) {
	base := openStore(t)
	s := New(base.db, failingManager{})
	ctx := context.Background()

	_, err := s.Save(ctx, record("A", 1, 1), time.UnixMilli(1))
	require.Error(t, err)

	_, err = base.Get(ctx, "u1", "A")
	assert.ErrorIs(t, err, common.ErrorNotFound, "record write rolled back with the queue write")
}

func TestOpen_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "local.db")
	ctx := context.Background()

	s, err := Open(ctx, path)
	require.NoError(t, err)
	_, err = s.Save(ctx, record("A", 1, 1), time.UnixMilli(1))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(ctx, path)
	require.NoError(t, err)
	defer s.Close()

	n, err := s.PendingCount(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, n, "queue survives restarts")
}
