package pendingops

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/dmitrijs2005/cyclesync/internal/client/migrations"
	"github.com/dmitrijs2005/cyclesync/internal/client/models"
	"github.com/dmitrijs2005/cyclesync/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, migrations.Up(context.Background(), db))
	return db
}

func newOp(id, record string, kind models.OpKind, at time.Time) *models.PendingOperation {
	return &models.PendingOperation{
		ID: id, UserID: "u1", RecordID: record, Collection: models.CollectionDailyLogs,
		Kind: kind, NextAttemptAt: &at, CreatedAt: at,
	}
}

func TestEnqueue_CoalescesPerRecord(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()
	now := time.UnixMilli(1_000_000)

	op, err := r.Enqueue(ctx, newOp("op1", "A", models.OpSave, now))
	require.NoError(t, err)
	assert.Equal(t, int64(1), op.Seq)

	_, err = r.UpdateRetry(ctx, "u1", "A", 1, 3, nil, "boom")
	require.NoError(t, err)

	op, err = r.Enqueue(ctx, newOp("op2", "A", models.OpDelete, now.Add(time.Second)))
	require.NoError(t, err)
	assert.Equal(t, "op1", op.ID)
	assert.Equal(t, models.OpDelete, op.Kind)
	assert.Equal(t, int64(2), op.Seq)
	assert.Zero(t, op.Attempts)
	assert.Empty(t, op.LastError)
	require.NotNil(t, op.NextAttemptAt)

	n, err := r.Count(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestDue_AndExhausted(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()
	now := time.UnixMilli(5_000_000)

	_, err := r.Enqueue(ctx, newOp("1", "A", models.OpSave, now.Add(-time.Second)))
	require.NoError(t, err)
	_, err = r.Enqueue(ctx, newOp("2", "B", models.OpSave, now.Add(time.Minute)))
	require.NoError(t, err)
	_, err = r.Enqueue(ctx, newOp("3", "C", models.OpSave, now))
	require.NoError(t, err)
	_, err = r.UpdateRetry(ctx, "u1", "C", 1, 5, nil, "gave up")
	require.NoError(t, err)

	due, err := r.Due(ctx, "u1", now, 0)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "A", due[0].RecordID)

	all, err := r.All(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, all, 3)

	c, err := r.Get(ctx, "u1", "C")
	require.NoError(t, err)
	assert.True(t, c.Exhausted())
	assert.Equal(t, 5, c.Attempts)

	n, err := r.Revive(ctx, "u1", now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	due, err = r.Due(ctx, "u1", now, 10)
	require.NoError(t, err)
	assert.Len(t, due, 2)
}

func TestDeleteIfSeq(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()
	now := time.UnixMilli(1)

	_, err := r.Enqueue(ctx, newOp("1", "A", models.OpSave, now))
	require.NoError(t, err)
	_, err = r.Enqueue(ctx, newOp("1", "A", models.OpSave, now))
	require.NoError(t, err)

	ok, err := r.DeleteIfSeq(ctx, "u1", "A", 1)
	require.NoError(t, err)
	assert.False(t, ok, "re-enqueued operation must survive an old acknowledgement")

	ok, err = r.UpdateRetry(ctx, "u1", "A", 1, 1, &now, "x")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = r.DeleteIfSeq(ctx, "u1", "A", 2)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = r.Get(ctx, "u1", "A")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}
