package syncer

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/cyclesync/internal/client/connectivity"
	"github.com/dmitrijs2005/cyclesync/internal/client/models"
	"github.com/dmitrijs2005/cyclesync/internal/client/remote"
	"github.com/dmitrijs2005/cyclesync/internal/common"
)

// schedulePush pushes one record in the background. Nothing is attempted
// while offline; the operation stays due for the reconnect pass.
func (c *Coordinator) schedulePush(uid, id string) {
	if !c.reachable() {
		return
	}
	c.goSession(func(ctx context.Context) {
		if err := c.pushRecord(ctx, uid, id); err != nil && ctx.Err() == nil {
			c.log.Warn(ctx, "push failed", "record_id", id, "error", err)
		}
	})
}

// flush pushes queued operations: the due ones, or all of them when all is
// set. Saves are sent in batches when more than one is queued.
func (c *Coordinator) flush(ctx context.Context, uid string, all bool) error {
	if !all && !c.reachable() {
		return nil
	}

	var (
		ops []*models.PendingOperation
		err error
	)
	if all {
		ops, err = c.store.AllOperations(ctx, uid)
	} else {
		ops, err = c.store.DueOperations(ctx, uid, c.now(), 0)
	}
	if err != nil {
		return err
	}

	var saves, deletes []*models.PendingOperation
	for _, op := range ops {
		if op.Kind == models.OpDelete {
			deletes = append(deletes, op)
		} else {
			saves = append(saves, op)
		}
	}

	var errs []error
	if len(saves) > 1 && c.batchSize > 1 {
		for start := 0; start < len(saves); start += c.batchSize {
			end := min(start+c.batchSize, len(saves))
			errs = append(errs, c.pushBatch(ctx, uid, saves[start:end]))
		}
		saves = nil
	}
	for _, op := range append(saves, deletes...) {
		if ctx.Err() != nil {
			break
		}
		errs = append(errs, c.pushRecord(ctx, uid, op.RecordID))
	}
	return errors.Join(errs...)
}

func (c *Coordinator) reachable() bool {
	return c.conn.Current() != connectivity.StateOffline
}

// pushRecord sends the current local state of one record. Concurrent
// callers for the same id share a single push.
func (c *Coordinator) pushRecord(ctx context.Context, uid, id string) error {
	_, err, _ := c.flights.Do(id, func() (any, error) {
		return nil, c.push(ctx, uid, id)
	})
	return err
}

func (c *Coordinator) push(ctx context.Context, uid, id string) error {
	c.session.Lock()
	defer c.session.Unlock()

	for {
		op, err := c.store.PendingOperation(ctx, uid, id)
		if err != nil || op == nil {
			return err
		}

		var (
			pushed int64
			rerr   error
		)
		if op.Kind == models.OpDelete {
			rerr = c.remote.Delete(ctx, uid, op.Collection, id)
		} else {
			rec, err := c.store.Get(ctx, uid, id)
			if errors.Is(err, common.ErrorNotFound) {
				_, err = c.store.DropOperation(ctx, op)
				return err
			}
			if err != nil {
				return err
			}
			pushed = rec.UpdatedAt
			rerr = c.remote.Save(ctx, rec)
		}

		again, err := c.settle(ctx, op, pushed, rerr)
		if err != nil || !again {
			return err
		}
	}
}

// pushBatch sends a chunk of saves in one call. A permanent batch failure
// is reported once and each record is then pushed on its own, so one bad
// document cannot take the others down with it.
func (c *Coordinator) pushBatch(ctx context.Context, uid string, ops []*models.PendingOperation) error {
	again, permanent, err := c.sendBatch(ctx, uid, ops)
	if err != nil {
		return err
	}
	if permanent {
		again = again[:0]
		for _, op := range ops {
			again = append(again, op.RecordID)
		}
	}
	var errs []error
	for _, id := range again {
		errs = append(errs, c.pushRecord(ctx, uid, id))
	}
	return errors.Join(errs...)
}

// sendBatch returns the ids that need another push.
func (c *Coordinator) sendBatch(ctx context.Context, uid string, ops []*models.PendingOperation) (again []string, permanent bool, err error) {
	c.session.Lock()
	defer c.session.Unlock()

	var (
		live []*models.PendingOperation
		recs []*models.Record
	)
	for _, op := range ops {
		cur, err := c.store.PendingOperation(ctx, uid, op.RecordID)
		if err != nil {
			return nil, false, err
		}
		if cur == nil || cur.Kind != models.OpSave {
			continue
		}
		rec, err := c.store.Get(ctx, uid, cur.RecordID)
		if errors.Is(err, common.ErrorNotFound) {
			if _, err := c.store.DropOperation(ctx, cur); err != nil {
				return nil, false, err
			}
			continue
		}
		if err != nil {
			return nil, false, err
		}
		live = append(live, cur)
		recs = append(recs, rec)
	}

	switch len(recs) {
	case 0:
		return nil, false, nil
	case 1:
		return []string{recs[0].ID}, false, nil
	}

	rerr := c.remote.BatchSave(ctx, recs)
	if rerr != nil && !remote.IsTransient(rerr) {
		c.log.Warn(ctx, "batch rejected, pushing records one by one", "count", len(recs), "error", rerr)
		c.emit(ctx, Event{Type: EventBatchFailed, Err: rerr, Count: len(recs)})
		return nil, true, nil
	}
	for i, op := range live {
		more, err := c.settle(ctx, op, recs[i].UpdatedAt, rerr)
		if err != nil {
			return nil, false, err
		}
		if more {
			again = append(again, op.RecordID)
		}
	}
	if rerr == nil {
		c.log.Info(ctx, "batch pushed", "count", len(recs))
	}
	return again, false, nil
}

// settle records the outcome of one push attempt. It reports whether the
// operation was re-enqueued meanwhile and needs another push.
func (c *Coordinator) settle(ctx context.Context, op *models.PendingOperation, pushed int64, rerr error) (bool, error) {
	// Bookkeeping must land even when the session is being cancelled.
	ctx = context.WithoutCancel(ctx)

	if rerr == nil {
		removed, err := c.store.CompletePush(ctx, op, pushed)
		if err != nil {
			return false, err
		}
		c.log.Debug(ctx, "push acknowledged", "record_id", op.RecordID, "kind", op.Kind, "updated_at", pushed)
		c.emit(ctx, Event{Type: EventPushSucceeded, RecordID: op.RecordID, UpdatedAt: pushed})
		return !removed, nil
	}

	if !remote.IsTransient(rerr) {
		dropped, err := c.store.DropOperation(ctx, op)
		if err != nil || !dropped {
			return !dropped, err
		}
		c.log.Error(ctx, "push rejected", "record_id", op.RecordID, "kind", op.Kind, "error", rerr)
		c.emit(ctx, Event{Type: EventPushFailed, RecordID: op.RecordID, Err: rerr, Attempts: op.Attempts + 1})
		return false, nil
	}

	attempts := op.Attempts + 1
	ev := Event{Type: EventPushExhausted, RecordID: op.RecordID, Err: rerr, Attempts: attempts}
	nextAt := c.now().Add(c.policy.Delay(attempts))
	nextPtr := &nextAt
	// The first attempt is not a retry.
	if c.policy.Exhausted(attempts - 1) {
		nextPtr = nil
	} else {
		ev.Type, ev.NextAttemptAt = EventPushRetryScheduled, nextAt
	}

	stored, err := c.store.RecordFailure(ctx, op, attempts, nextPtr, rerr)
	if err != nil || !stored {
		return !stored, err
	}
	if nextPtr == nil {
		c.log.Warn(ctx, "push retries exhausted, waiting for reconnect", "record_id", op.RecordID, "attempts", attempts, "error", rerr)
	} else {
		c.log.Debug(ctx, "push failed, retry scheduled", "record_id", op.RecordID, "attempts", attempts, "next_attempt_at", nextAt, "error", rerr)
	}
	c.emit(ctx, ev)
	return false, nil
}
