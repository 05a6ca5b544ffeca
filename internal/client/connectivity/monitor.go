// Package connectivity turns raw reachability reports into an observable
// OFFLINE/ONLINE state and tells the app which features are usable.
package connectivity

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/cyclesync/internal/logging"
)

type State string

const (
	StateUnknown State = "UNKNOWN"
	StateOffline State = "OFFLINE"
	StateOnline  State = "ONLINE"
)

// Level is the raw reachability class reported by a Source.
type Level string

const (
	LevelNone    Level = "none"
	LevelLimited Level = "limited"
	LevelFull    Level = "full"
)

// Report is one observation from a Source. Reachable tells whether the
// last probe of the server succeeded; it decides how LevelLimited is read.
type Report struct {
	Level     Level
	Reachable bool
}

// Classify maps a report to a State.
func Classify(r Report) State {
	switch r.Level {
	case LevelFull:
		return StateOnline
	case LevelLimited:
		if r.Reachable {
			return StateOnline
		}
		return StateOffline
	default:
		return StateOffline
	}
}

// Source produces reports until ctx is done.
type Source interface {
	Run(ctx context.Context, report func(Report)) error
}

// Transition is emitted whenever the state changes.
type Transition struct {
	From  State
	To    State
	Level Level
	At    time.Time
}

const subscriberBuffer = 8

// Monitor holds the current state and fans transitions out to subscribers.
type Monitor struct {
	mu     sync.RWMutex
	state  State
	level  Level
	subs   map[int]chan Transition
	nextID int

	log logging.Logger
	now func() time.Time
}

func NewMonitor(log logging.Logger) *Monitor {
	if log == nil {
		log = logging.Nop{}
	}
	return &Monitor{
		state: StateUnknown,
		subs:  map[int]chan Transition{},
		log:   log.With("module", "connectivity"),
		now:   time.Now,
	}
}

// Current returns the latest state without blocking on the network.
func (m *Monitor) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Level returns the latest raw level.
func (m *Monitor) Level() Level {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.level
}

// Subscribe returns a channel of transitions and a function that ends the
// subscription. A slow subscriber loses its oldest undelivered transitions,
// never the newest.
func (m *Monitor) Subscribe() (<-chan Transition, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextID
	m.nextID++
	ch := make(chan Transition, subscriberBuffer)
	m.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			if c, ok := m.subs[id]; ok {
				delete(m.subs, id)
				close(c)
			}
		})
	}
}

// Report applies a raw observation. Subscribers hear about it only when the
// state actually changes.
func (m *Monitor) Report(r Report) {
	next := Classify(r)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.level = r.Level
	if next == m.state {
		return
	}
	t := Transition{From: m.state, To: next, Level: r.Level, At: m.now()}
	m.state = next

	m.log.Info(context.Background(), "connectivity changed", "from", t.From, "to", t.To, "level", t.Level)

	for _, ch := range m.subs {
		select {
		case ch <- t:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- t
		}
	}
}

// Run feeds reports from src until ctx is done.
func (m *Monitor) Run(ctx context.Context, src Source) error {
	return src.Run(ctx, m.Report)
}

// Close ends every subscription.
func (m *Monitor) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, ch := range m.subs {
		delete(m.subs, id)
		close(ch)
	}
}
