package connectivity

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	grpcconn "google.golang.org/grpc/connectivity"
)

func TestClassify(t *testing.T) {
	assert.Equal(t, StateOnline, Classify(Report{Level: LevelFull}))
	assert.Equal(t, StateOnline, Classify(Report{Level: LevelLimited, Reachable: true}))
	assert.Equal(t, StateOffline, Classify(Report{Level: LevelLimited}))
	assert.Equal(t, StateOffline, Classify(Report{Level: LevelNone, Reachable: true}))
}

func recv(t *testing.T, ch <-chan Transition) Transition {
	t.Helper()
	select {
	case tr := <-ch:
		return tr
	case <-time.After(time.Second):
		t.Fatal("no transition")
		return Transition{}
	}
}

func TestMonitor_EmitsOnlyOnChange(t *testing.T) {
	m := NewMonitor(nil)
	assert.Equal(t, StateUnknown, m.Current())

	ch, cancel := m.Subscribe()
	defer cancel()

	m.Report(Report{Level: LevelNone})
	m.Report(Report{Level: LevelNone})
	m.Report(Report{Level: LevelLimited})
	m.Report(Report{Level: LevelFull})
	m.Report(Report{Level: LevelLimited, Reachable: true})

	tr := recv(t, ch)
	assert.Equal(t, StateUnknown, tr.From)
	assert.Equal(t, StateOffline, tr.To)

	tr = recv(t, ch)
	assert.Equal(t, StateOffline, tr.From)
	assert.Equal(t, StateOnline, tr.To)
	assert.Equal(t, LevelFull, tr.Level)

	select {
	case extra := <-ch:
		t.Fatalf("unexpected transition %+v", extra)
	default:
	}
	assert.Equal(t, StateOnline, m.Current())
	assert.Equal(t, LevelLimited, m.Level())
}

func TestMonitor_SlowSubscriberKeepsNewest(t *testing.T) {
	m := NewMonitor(nil)
	ch, cancel := m.Subscribe()
	defer cancel()

	for i := 0; i < subscriberBuffer*3; i++ {
		if i%2 == 0 {
			m.Report(Report{Level: LevelFull})
		} else {
			m.Report(Report{Level: LevelNone})
		}
	}

	var last Transition
	for len(ch) > 0 {
		last = <-ch
	}
	assert.Equal(t, m.Current(), last.To)
}

func TestMonitor_UnsubscribeCloses(t *testing.T) {
	m := NewMonitor(nil)
	ch, cancel := m.Subscribe()
	cancel()
	cancel()

	_, ok := <-ch
	assert.False(t, ok)

	m.Report(Report{Level: LevelFull})

	ch2, _ := m.Subscribe()
	m.Close()
	_, ok = <-ch2
	assert.False(t, ok)
}

type togglePinger struct {
	mu   sync.Mutex
	fail bool
}

func (p *togglePinger) set(fail bool) {
	p.mu.Lock()
	p.fail = fail
	p.mu.Unlock()
}

func (p *togglePinger) Ping(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errors.New("unreachable")
	}
	return nil
}

func TestPingSource_DrivesMonitor(t *testing.T) {
	p := &togglePinger{fail: true}
	m := NewMonitor(nil)
	ch, cancel := m.Subscribe()
	defer cancel()

	ctx, stop := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- m.Run(ctx, &PingSource{Pinger: p, Interval: 10 * time.Millisecond, Timeout: time.Second})
	}()

	assert.Equal(t, StateOffline, recv(t, ch).To)
	p.set(false)
	assert.Equal(t, StateOnline, recv(t, ch).To)
	p.set(true)
	assert.Equal(t, StateOffline, recv(t, ch).To)

	stop()
	require.NoError(t, <-done)
}

type fakeConn struct {
	states   []grpcconn.State
	i        int
	connects atomic.Int32
}

func (f *fakeConn) GetState() grpcconn.State { return f.states[f.i] }

func (f *fakeConn) WaitForStateChange(ctx context.Context, _ grpcconn.State) bool {
	if f.i+1 >= len(f.states) {
		<-ctx.Done()
		return false
	}
	f.i++
	return true
}

func (f *fakeConn) Connect() { f.connects.Add(1) }

func TestConnStateSource(t *testing.T) {
	conn := &fakeConn{states: []grpcconn.State{
		grpcconn.Idle, grpcconn.Connecting, grpcconn.Ready, grpcconn.Idle,
		grpcconn.TransientFailure, grpcconn.Connecting,
	}}

	var got []Report
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := (&ConnStateSource{Conn: conn}).Run(ctx, func(r Report) { got = append(got, r) })
	require.NoError(t, err)

	want := []State{StateOffline, StateOffline, StateOnline, StateOnline, StateOffline, StateOffline}
	require.Len(t, got, len(want))
	for i, r := range got {
		assert.Equal(t, want[i], Classify(r), "report %d", i)
	}
	assert.Equal(t, int32(2), conn.connects.Load())
}

func TestGate(t *testing.T) {
	m := NewMonitor(nil)
	g := NewGate(m)

	check := func(f Feature, allowed, stale bool) {
		t.Helper()
		a := g.Availability(f)
		assert.Equal(t, allowed, a.Allowed, "%s allowed", f)
		assert.Equal(t, stale, a.Stale, "%s stale", f)
	}

	// UNKNOWN behaves like offline.
	check(FeatureLogEntry, true, false)
	check(FeatureInsights, true, true)
	check(FeatureExport, false, false)

	m.Report(Report{Level: LevelFull})
	check(FeatureReadLocal, true, false)
	check(FeatureReports, true, false)
	check(FeatureShare, true, false)

	m.Report(Report{Level: LevelNone})
	snap := g.Snapshot()
	require.Len(t, snap, len(Features()))
	assert.Equal(t, AlwaysAvailable, snap[FeatureSettings].Class)
	assert.True(t, snap[FeatureSettings].Allowed)
	assert.Equal(t, DegradedOffline, snap[FeatureInsights].Class)
	assert.True(t, snap[FeatureInsights].Stale)
	assert.Equal(t, RequiresOnline, snap[FeatureExport].Class)
	assert.False(t, snap[FeatureExport].Allowed)

	assert.Equal(t, RequiresOnline, ClassOf("teleport"))
}
