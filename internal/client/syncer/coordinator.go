// Package syncer keeps the local store and the remote document store in
// agreement. Writes land locally first and are pushed in the background;
// reads merge the remote copy when online using last-writer-wins.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/cyclesync/internal/backoff"
	"github.com/dmitrijs2005/cyclesync/internal/client/connectivity"
	"github.com/dmitrijs2005/cyclesync/internal/client/models"
	"github.com/dmitrijs2005/cyclesync/internal/client/remote"
	"github.com/dmitrijs2005/cyclesync/internal/common"
	"github.com/dmitrijs2005/cyclesync/internal/logging"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// LocalStore is the part of localstore.Store the coordinator uses.
type LocalStore interface {
	Save(ctx context.Context, rec *models.Record, now time.Time) (*models.PendingOperation, error)
	Delete(ctx context.Context, userID, id string, c models.Collection, now time.Time) (*models.PendingOperation, error)
	Get(ctx context.Context, userID, id string) (*models.Record, error)
	GetByDate(ctx context.Context, userID string, c models.Collection, date models.Date) (*models.Record, error)
	GetRange(ctx context.Context, userID string, c models.Collection, start, end models.Date) ([]*models.Record, error)

	ApplyResolved(ctx context.Context, rec *models.Record, drop *models.PendingOperation) (bool, error)
	Requeue(ctx context.Context, rec *models.Record, now time.Time) (*models.PendingOperation, error)
	CompletePush(ctx context.Context, op *models.PendingOperation, pushedUpdatedAt int64) (bool, error)

	PendingCount(ctx context.Context, userID string) (int, error)
	PendingOperation(ctx context.Context, userID, recordID string) (*models.PendingOperation, error)
	DueOperations(ctx context.Context, userID string, now time.Time, limit int) ([]*models.PendingOperation, error)
	AllOperations(ctx context.Context, userID string) ([]*models.PendingOperation, error)
	RecordFailure(ctx context.Context, op *models.PendingOperation, attempts int, next *time.Time, cause error) (bool, error)
	DropOperation(ctx context.Context, op *models.PendingOperation) (bool, error)
	ReviveExhausted(ctx context.Context, userID string, now time.Time) (int64, error)

	LastPulledAt(ctx context.Context, userID string) (int64, error)
	SetLastPulledAt(ctx context.Context, userID string, ts int64) error
}

// Connectivity is the part of connectivity.Monitor the coordinator uses.
type Connectivity interface {
	Current() connectivity.State
	Subscribe() (<-chan connectivity.Transition, func())
}

// Options tune the coordinator. Zero values take the defaults below.
type Options struct {
	Policy backoff.Policy
	// BatchSize caps how many saves go into one BatchSave call.
	BatchSize int
	// RetryInterval is how often due operations are looked for.
	RetryInterval time.Duration
	// PullInterval is how often an incremental pull runs while online.
	// Negative disables periodic pulls.
	PullInterval time.Duration
	Clock        func() time.Time
	Logger       logging.Logger
}

const (
	DefaultBatchSize     = 20
	DefaultRetryInterval = time.Second
	DefaultPullInterval  = time.Minute
)

func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.RetryInterval <= 0 {
		o.RetryInterval = DefaultRetryInterval
	}
	if o.PullInterval == 0 {
		o.PullInterval = DefaultPullInterval
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	if o.Logger == nil {
		o.Logger = logging.Nop{}
	}
	return o
}

// Coordinator owns one sync session for the signed-in user.
type Coordinator struct {
	store  LocalStore
	remote remote.Service
	conn   Connectivity
	user   func() string

	policy    backoff.Policy
	batchSize int
	retryIvl  time.Duration
	pullIvl   time.Duration
	now       func() time.Time
	log       logging.Logger

	// writeMu serializes local writes so UpdatedAt grows per record.
	writeMu sync.Mutex
	// session serializes push passes and pull merges.
	session sync.Mutex
	flights singleflight.Group

	events chan Event

	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// New builds a coordinator. user returns the authenticated user id, or ""
// when nobody is signed in.
func New(store LocalStore, rs remote.Service, conn Connectivity, user func() string, opts Options) *Coordinator {
	opts = opts.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		store:     store,
		remote:    rs,
		conn:      conn,
		user:      user,
		policy:    opts.Policy,
		batchSize: opts.BatchSize,
		retryIvl:  opts.RetryInterval,
		pullIvl:   opts.PullInterval,
		now:       opts.Clock,
		log:       opts.Logger.With("module", "syncer"),
		events:    make(chan Event, eventBuffer),
		ctx:       ctx,
		cancel:    cancel,
	}
}

func (c *Coordinator) currentUser() (string, error) {
	if c.user == nil {
		return "", common.ErrNoUser
	}
	uid := c.user()
	if uid == "" {
		return "", common.ErrNoUser
	}
	return uid, nil
}

// authorize checks that userID is the signed-in user.
func (c *Coordinator) authorize(userID string) (string, error) {
	if userID == "" {
		return "", common.ErrNoUser
	}
	uid, err := c.currentUser()
	if err != nil {
		return "", err
	}
	if uid != userID {
		return "", fmt.Errorf("%w: session belongs to another user", common.ErrorPermission)
	}
	return uid, nil
}

// goSession runs fn in the background until Close.
func (c *Coordinator) goSession(fn func(ctx context.Context)) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		fn(c.ctx)
	}()
	return true
}

func (c *Coordinator) online() bool {
	return c.conn.Current() == connectivity.StateOnline
}

// localGet returns nil instead of ErrorNotFound.
func (c *Coordinator) localGet(ctx context.Context, uid, id string) (*models.Record, error) {
	rec, err := c.store.Get(ctx, uid, id)
	if errors.Is(err, common.ErrorNotFound) {
		return nil, nil
	}
	return rec, err
}

// SaveRecord stores rec locally and schedules a push. It assigns rec.ID
// when empty, keeps CreatedAt of an existing copy and stamps UpdatedAt with
// the clock, always above the previous local value. Only local failures
// are returned; remote outcomes arrive on Events.
func (c *Coordinator) SaveRecord(ctx context.Context, rec *models.Record) error {
	if rec == nil {
		return fmt.Errorf("%w: nil record", common.ErrorValidation)
	}
	uid, err := c.authorize(rec.UserID)
	if err != nil {
		return err
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Collection == "" && rec.Payload != nil {
		rec.Collection = rec.Payload.Collection()
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	now := c.now()
	ts := now.Unix()
	prev, err := c.localGet(ctx, uid, rec.ID)
	if err != nil {
		return err
	}
	if prev != nil {
		if prev.Collection != rec.Collection {
			return fmt.Errorf("%w: record %s belongs to %s", common.ErrorValidation, rec.ID, prev.Collection)
		}
		rec.CreatedAt = prev.CreatedAt
		if ts <= prev.UpdatedAt {
			ts = prev.UpdatedAt + 1
		}
	} else if rec.CreatedAt == 0 || rec.CreatedAt > ts {
		rec.CreatedAt = ts
	}
	rec.UpdatedAt = ts

	if err := rec.Validate(); err != nil {
		return fmt.Errorf("%w: %v", common.ErrorValidation, err)
	}

	op, err := c.store.Save(ctx, rec, now)
	if err != nil {
		c.log.Error(ctx, "local save failed", "record_id", rec.ID, "error", err)
		return err
	}
	c.log.Debug(ctx, "record saved", "record_id", rec.ID, "updated_at", rec.UpdatedAt, "seq", op.Seq)
	c.schedulePush(uid, rec.ID)
	return nil
}

// DeleteRecord removes the local copy and queues a remote delete.
func (c *Coordinator) DeleteRecord(ctx context.Context, userID, id string) error {
	uid, err := c.authorize(userID)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	var coll models.Collection
	local, err := c.localGet(ctx, uid, id)
	if err != nil {
		return err
	}
	if local != nil {
		coll = local.Collection
	} else {
		op, err := c.store.PendingOperation(ctx, uid, id)
		if err != nil {
			return err
		}
		if op == nil {
			return common.ErrorNotFound
		}
		coll = op.Collection
	}

	if _, err := c.store.Delete(ctx, uid, id, coll, c.now()); err != nil {
		c.log.Error(ctx, "local delete failed", "record_id", id, "error", err)
		return err
	}
	c.log.Debug(ctx, "record deleted", "record_id", id)
	c.schedulePush(uid, id)
	return nil
}

// GetRecord returns the record with id. When online the remote copy is
// fetched and merged first; remote failures fall back to the local copy.
func (c *Coordinator) GetRecord(ctx context.Context, userID, id string) (*models.Record, error) {
	uid, err := c.authorize(userID)
	if err != nil {
		return nil, err
	}
	local, err := c.localGet(ctx, uid, id)
	if err != nil {
		return nil, err
	}
	if !c.online() {
		return found(local)
	}

	var colls []models.Collection
	switch op, err := c.store.PendingOperation(ctx, uid, id); {
	case err != nil:
		return nil, err
	case local != nil:
		colls = []models.Collection{local.Collection}
	case op != nil:
		colls = []models.Collection{op.Collection}
	default:
		colls = []models.Collection{models.CollectionDailyLogs, models.CollectionCycles, models.CollectionInsights}
	}

	var rem *models.Record
	for _, coll := range colls {
		r, err := c.remote.Get(ctx, uid, coll, id)
		if remote.IsNotFound(err) {
			continue
		}
		if err != nil {
			c.log.Warn(ctx, "remote read failed, using local copy", "record_id", id, "error", err)
			return found(local)
		}
		rem = r
		break
	}

	c.session.Lock()
	defer c.session.Unlock()
	rec, err := c.mergeLocked(ctx, uid, id, rem)
	if err != nil {
		return nil, err
	}
	return found(rec)
}

// GetRecordByDate returns the most recently updated record of collection c
// dated date.
func (c *Coordinator) GetRecordByDate(ctx context.Context, userID string, coll models.Collection, date models.Date) (*models.Record, error) {
	uid, err := c.authorize(userID)
	if err != nil {
		return nil, err
	}
	if !coll.Valid() {
		return nil, fmt.Errorf("%w: unknown collection %q", common.ErrorValidation, coll)
	}

	if c.online() {
		rem, err := c.remote.GetByDate(ctx, uid, coll, date)
		switch {
		case remote.IsNotFound(err):
		case err != nil:
			c.log.Warn(ctx, "remote read failed, using local copy", "collection", coll, "date", date, "error", err)
		default:
			if err := c.merge(ctx, uid, []*models.Record{rem}); err != nil {
				return nil, err
			}
		}
	}
	return c.store.GetByDate(ctx, uid, coll, date)
}

// GetRecordsInRange returns records of collection c dated start..end
// inclusive, newest date first.
func (c *Coordinator) GetRecordsInRange(ctx context.Context, userID string, coll models.Collection, start, end models.Date) ([]*models.Record, error) {
	uid, err := c.authorize(userID)
	if err != nil {
		return nil, err
	}
	if !coll.Valid() {
		return nil, fmt.Errorf("%w: unknown collection %q", common.ErrorValidation, coll)
	}
	if end < start {
		return nil, fmt.Errorf("%w: range end %s before start %s", common.ErrorValidation, end, start)
	}

	if c.online() {
		recs, err := c.remote.GetRange(ctx, uid, coll, start, end)
		if err != nil {
			c.log.Warn(ctx, "remote range read failed, using local copies", "collection", coll, "error", err)
		} else if err := c.merge(ctx, uid, recs); err != nil {
			return nil, err
		}
	}
	return c.store.GetRange(ctx, uid, coll, start, end)
}

func (c *Coordinator) CurrentConnectivityState() connectivity.State {
	return c.conn.Current()
}

// PendingSyncCount is the number of queued operations for the signed-in
// user.
func (c *Coordinator) PendingSyncCount(ctx context.Context) (int, error) {
	uid, err := c.currentUser()
	if err != nil {
		return 0, err
	}
	return c.store.PendingCount(ctx, uid)
}

// SyncNow revives exhausted operations, pushes every queued operation and
// pulls remote changes.
func (c *Coordinator) SyncNow(ctx context.Context) error {
	uid, err := c.currentUser()
	if err != nil {
		return err
	}
	if _, err := c.store.ReviveExhausted(ctx, uid, c.now()); err != nil {
		return err
	}
	pushErr := c.flush(ctx, uid, true)
	_, pullErr := c.Pull(ctx)
	return errors.Join(pushErr, pullErr)
}

// Run drives background sync until ctx is done or Close is called:
// retrying due operations, resuming on reconnect and pulling periodically.
func (c *Coordinator) Run(ctx context.Context) error {
	transitions, unsubscribe := c.conn.Subscribe()
	return c.run(ctx, transitions, unsubscribe)
}

func (c *Coordinator) run(ctx context.Context, transitions <-chan connectivity.Transition, unsubscribe func()) error {
	defer unsubscribe()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(c.ctx, cancel)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return c.every(ctx, c.retryIvl, func(ctx context.Context) error {
			uid, err := c.currentUser()
			if err != nil {
				return nil
			}
			return c.flush(ctx, uid, false)
		})
	})
	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case tr, ok := <-transitions:
				if !ok {
					return nil
				}
				if tr.To != connectivity.StateOnline {
					continue
				}
				c.log.Info(ctx, "connectivity restored, resuming sync", "from", tr.From)
				if err := c.SyncNow(ctx); err != nil && ctx.Err() == nil && !errors.Is(err, common.ErrNoUser) {
					c.log.Warn(ctx, "resume sync failed", "error", err)
				}
			}
		}
	})
	if c.pullIvl > 0 {
		g.Go(func() error {
			return c.every(ctx, c.pullIvl, func(ctx context.Context) error {
				if !c.online() {
					return nil
				}
				if _, err := c.currentUser(); err != nil {
					return nil
				}
				_, err := c.Pull(ctx)
				return err
			})
		})
	}
	return g.Wait()
}

// every calls fn on each tick. Errors are logged, never fatal.
func (c *Coordinator) every(ctx context.Context, d time.Duration, fn func(ctx context.Context) error) error {
	t := time.NewTicker(d)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if err := fn(ctx); err != nil && ctx.Err() == nil {
				c.log.Warn(ctx, "background sync step failed", "error", err)
			}
		}
	}
}

// Start runs Run in the background; Close waits for it.
// Transitions that happen after Start returns are never missed.
func (c *Coordinator) Start(ctx context.Context) {
	transitions, unsubscribe := c.conn.Subscribe()
	ok := c.goSession(func(sctx context.Context) {
		if err := c.run(ctx, transitions, unsubscribe); err != nil {
			c.log.Error(sctx, "sync session stopped", "error", err)
		}
	})
	if !ok {
		unsubscribe()
	}
}

// Close cancels the session and waits for in-flight work. Interrupted
// pushes stay queued.
func (c *Coordinator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()
}

func found(rec *models.Record) (*models.Record, error) {
	if rec == nil {
		return nil, common.ErrorNotFound
	}
	return rec, nil
}
