package records

import (
	"context"
	"database/sql"
	"testing"

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

func dailyLog(id string, date models.Date, updated int64) *models.Record {
	return &models.Record{
		UserID: "u1", ID: id, Collection: models.CollectionDailyLogs, Date: date,
		CreatedAt: updated, UpdatedAt: updated,
		Payload: models.DailyLog{Flow: models.FlowLight, Symptoms: []string{"cramps"}},
		Status:  models.StatusPending,
	}
}

func TestUpsertAndGet(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	rec := dailyLog("A", 20371, 100)
	require.NoError(t, r.Upsert(ctx, rec))

	got, err := r.Get(ctx, "u1", "A")
	require.NoError(t, err)
	assert.Equal(t, rec, got)

	rec.UpdatedAt = 200
	rec.Payload = models.DailyLog{Flow: models.FlowHeavy}
	require.NoError(t, r.Upsert(ctx, rec))

	got, err = r.Get(ctx, "u1", "A")
	require.NoError(t, err)
	assert.Equal(t, int64(200), got.UpdatedAt)
	assert.Equal(t, models.DailyLog{Flow: models.FlowHeavy}, got.Payload)

	_, err = r.Get(ctx, "u2", "A")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestGetByDateAndRange(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	for i, id := range []string{"A", "B", "C", "D"} {
		require.NoError(t, r.Upsert(ctx, dailyLog(id, models.Date(20370+i), int64(100+i))))
	}
	insight := &models.Record{
		UserID: "u1", ID: "I", Collection: models.CollectionInsights, Date: 20371,
		CreatedAt: 1, UpdatedAt: 1, Payload: models.Insight{Title: "t"}, Status: models.StatusSynced,
	}
	require.NoError(t, r.Upsert(ctx, insight))

	got, err := r.GetByDate(ctx, "u1", models.CollectionDailyLogs, 20371)
	require.NoError(t, err)
	assert.Equal(t, "B", got.ID)

	_, err = r.GetByDate(ctx, "u1", models.CollectionDailyLogs, 1)
	assert.ErrorIs(t, err, common.ErrorNotFound)

	list, err := r.GetRange(ctx, "u1", models.CollectionDailyLogs, 20371, 20373)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []string{"D", "C", "B"}, []string{list[0].ID, list[1].ID, list[2].ID})
}

func TestDeleteAndMarkSynced(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	require.NoError(t, r.Upsert(ctx, dailyLog("A", 20371, 100)))

	ok, err := r.MarkSynced(ctx, "u1", "A", 99, 99)
	require.NoError(t, err)
	assert.False(t, ok, "stale updatedAt must not mark synced")

	ok, err = r.MarkSynced(ctx, "u1", "A", 100, 100)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := r.Get(ctx, "u1", "A")
	require.NoError(t, err)
	assert.Equal(t, models.StatusSynced, got.Status)
	assert.Equal(t, int64(100), got.RemoteUpdatedAt)

	ok, err = r.Delete(ctx, "u1", "A")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = r.Delete(ctx, "u1", "A")
	require.NoError(t, err)
	assert.False(t, ok)
}
