package cli

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/cyclesync/internal/client/connectivity"
	"github.com/dmitrijs2005/cyclesync/internal/client/localstore"
	"github.com/dmitrijs2005/cyclesync/internal/client/models"
	"github.com/dmitrijs2005/cyclesync/internal/client/remote"
	"github.com/dmitrijs2005/cyclesync/internal/client/syncer"
	"github.com/dmitrijs2005/cyclesync/internal/logging"
	"github.com/dmitrijs2005/cyclesync/internal/rpc/rpctest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testApp struct {
	*App
	mem *rpctest.Memory
	out *bytes.Buffer
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	ctx := context.Background()

	mem := rpctest.NewMemory()
	conn := rpctest.Serve(t, mem)
	svc := remote.NewGRPCService(conn, "tok", time.Second)

	store, err := localstore.Open(ctx, ":memory:")
	require.NoError(t, err)

	now := time.Date(2025, 10, 10, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	mon := connectivity.NewMonitor(nil)
	coord := syncer.New(store, svc, mon, func() string { return "u1" }, syncer.Options{Clock: clock, PullInterval: -1})
	t.Cleanup(func() {
		coord.Close()
		_ = store.Close()
	})

	out := &bytes.Buffer{}
	a := &App{
		log:     logging.Nop{},
		userID:  "u1",
		store:   store,
		account: svc,
		monitor: mon,
		gate:    connectivity.NewGate(mon),
		sync:    coord,
		http:    http.DefaultClient,
		reader:  bufio.NewReader(strings.NewReader("")),
		out:     out,
		now:     clock,
	}
	return &testApp{App: a, mem: mem, out: out}
}

func (a *testApp) input(lines ...string) {
	a.reader = bufio.NewReader(strings.NewReader(strings.Join(lines, "\n") + "\n"))
}

func (a *testApp) online()  { a.monitor.Report(connectivity.Report{Level: connectivity.LevelFull}) }
func (a *testApp) offline() { a.monitor.Report(connectivity.Report{Level: connectivity.LevelNone}) }

func TestLogDay_CreatesThenEdits(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()
	a.offline()

	a.input("light", "cramps, headache", "calm", "36.6", "first line", "")
	require.NoError(t, a.LogDay(ctx, []string{"2025-10-10"}))

	rec, err := a.store.GetByDate(ctx, "u1", models.CollectionDailyLogs, 20371)
	require.NoError(t, err)
	entry := rec.Payload.(models.DailyLog)
	assert.Equal(t, models.FlowLight, entry.Flow)
	assert.Equal(t, []string{"cramps", "headache"}, entry.Symptoms)
	assert.Equal(t, "calm", entry.Mood)
	require.NotNil(t, entry.Temperature)
	assert.InDelta(t, 36.6, *entry.Temperature, 1e-9)
	assert.Equal(t, "first line", entry.Notes)

	// Empty answers keep values; '-' clears the temperature. No date
	// argument means today.
	a.input("", "", "", "-", "")
	require.NoError(t, a.LogDay(ctx, nil))

	edited, err := a.store.Get(ctx, "u1", rec.ID)
	require.NoError(t, err)
	entry = edited.Payload.(models.DailyLog)
	assert.Equal(t, models.FlowLight, entry.Flow)
	assert.Equal(t, "calm", entry.Mood)
	assert.Nil(t, entry.Temperature)
	assert.Greater(t, edited.UpdatedAt, rec.UpdatedAt)

	n, err := a.sync.PendingSyncCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestLogDay_RejectsBadInput(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()
	a.offline()

	a.input("gushing", "", "", "", "")
	assert.Error(t, a.LogDay(ctx, []string{"2025-10-10"}))

	a.input("light", "", "", "warm", "")
	assert.Error(t, a.LogDay(ctx, []string{"2025-10-10"}))

	assert.Error(t, a.LogDay(ctx, []string{"10/10/2025"}))
}

func TestCycleRangeShowDeletePending(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()
	a.offline()

	require.NoError(t, a.LogCycle(ctx, []string{"2025-10-01", "2025-10-05"}))
	assert.ErrorIs(t, a.LogCycle(ctx, nil), errUsage)

	a.out.Reset()
	require.NoError(t, a.Range(ctx, []string{"2025-09-01", "2025-10-31", "cycles"}))
	assert.Contains(t, a.out.String(), "2025-10-01 .. 2025-10-05")
	id := strings.Fields(a.out.String())[0]

	a.out.Reset()
	require.NoError(t, a.Show(ctx, []string{id}))
	assert.Contains(t, a.out.String(), "PENDING")
	assert.ErrorIs(t, a.Show(ctx, nil), errUsage)

	require.NoError(t, a.Delete(ctx, []string{id}))

	a.out.Reset()
	require.NoError(t, a.Pending(ctx))
	assert.Contains(t, a.out.String(), "delete")
	assert.Contains(t, a.out.String(), "cycles/"+id)

	a.out.Reset()
	require.NoError(t, a.Day(ctx, []string{"2025-10-01"}))
	assert.Contains(t, a.out.String(), "nothing logged")
}

func TestStatus_ShowsGate(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()
	a.offline()

	require.NoError(t, a.Status(ctx))
	out := a.out.String()
	assert.Contains(t, out, "connectivity: OFFLINE")
	assert.Contains(t, out, "pending: 0")
	assert.Regexp(t, `export\s+unavailable`, out)
	assert.Regexp(t, `insights\s+available \(stale\)`, out)
	assert.Regexp(t, `log_entry\s+available\n`, out)
}

func TestSync(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()
	a.offline()

	require.NoError(t, a.LogCycle(ctx, []string{"2025-10-01"}))
	assert.ErrorIs(t, a.Sync(ctx), errOffline)

	a.online()
	require.NoError(t, a.Sync(ctx))
	assert.Contains(t, a.out.String(), "sync complete, 0 pending")
	assert.Equal(t, 1, a.mem.Len())
}

func TestExport(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()

	var (
		gotMethod string
		gotBody   []byte
	)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()
	a.mem.ExportURL = ts.URL
	a.http = ts.Client()

	a.offline()
	require.NoError(t, a.LogCycle(ctx, []string{"2025-10-01"}))
	assert.ErrorIs(t, a.Export(ctx, []string{"2025-10-01", "2025-10-31"}), errOffline)

	a.online()
	require.NoError(t, a.Export(ctx, []string{"2025-10-01", "2025-10-31"}))
	assert.Equal(t, http.MethodPut, gotMethod)

	var doc struct {
		UserID  string `json:"userId"`
		Records []struct {
			Collection string `json:"collection"`
			Date       string `json:"date"`
		} `json:"records"`
	}
	require.NoError(t, json.Unmarshal(gotBody, &doc))
	assert.Equal(t, "u1", doc.UserID)
	require.Len(t, doc.Records, 1)
	assert.Equal(t, "cycles", doc.Records[0].Collection)
	assert.Equal(t, "2025-10-01", doc.Records[0].Date)
	assert.Contains(t, a.out.String(), "exports/test.json")
}

func TestProfile(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()

	a.offline()
	assert.ErrorIs(t, a.Profile(ctx, nil), errOffline)

	a.online()
	require.NoError(t, a.Profile(ctx, nil))
	assert.Contains(t, a.out.String(), "(not set)")

	a.input("Ana", "29", "5", "c")
	require.NoError(t, a.Profile(ctx, []string{"set"}))

	a.out.Reset()
	require.NoError(t, a.Profile(ctx, nil))
	assert.Contains(t, a.out.String(), "name: Ana")
	assert.Contains(t, a.out.String(), "cycle length: 29")
	assert.Contains(t, a.out.String(), "temperature unit: C")

	assert.ErrorIs(t, a.Profile(ctx, []string{"drop"}), errUsage)
}

func TestGetStatus(t *testing.T) {
	a := newTestApp(t)
	assert.Equal(t, "(u1 UNKNOWN)", a.getStatus())
	a.online()
	assert.Equal(t, "(u1 ONLINE)", a.getStatus())
	assert.Equal(t, "", (&App{}).getStatus())
}
