package syncer

import (
	"context"

	"github.com/dmitrijs2005/cyclesync/internal/client/models"
	"github.com/dmitrijs2005/cyclesync/internal/client/remote"
)

// Pull merges every remote change since the last pull and advances the
// watermark to the newest remote UpdatedAt seen. Transient remote failures
// are retried with the shared policy. It returns the number of remote
// records merged.
func (c *Coordinator) Pull(ctx context.Context) (int, error) {
	uid, err := c.currentUser()
	if err != nil {
		return 0, err
	}
	since, err := c.store.LastPulledAt(ctx, uid)
	if err != nil {
		return 0, err
	}

	var recs []*models.Record
	err = c.policy.Do(ctx, func(ctx context.Context) error {
		var err error
		recs, err = c.remote.GetChangedSince(ctx, uid, since)
		return err
	}, remote.IsTransient)
	if err != nil {
		c.log.Warn(ctx, "pull failed", "since", since, "error", err)
		return 0, err
	}

	c.session.Lock()
	defer c.session.Unlock()

	// The cursor is the writer's updatedAt, not a server receipt time, so a
	// late push carrying an older timestamp is not returned here. Online reads
	// still resolve it against the remote copy.
	watermark := since
	for _, r := range recs {
		if _, err := c.mergeLocked(ctx, uid, r.ID, r); err != nil {
			return 0, err
		}
		watermark = max(watermark, r.UpdatedAt)
	}
	if watermark > since {
		if err := c.store.SetLastPulledAt(ctx, uid, watermark); err != nil {
			return 0, err
		}
	}

	c.log.Info(ctx, "pull completed", "count", len(recs), "since", since, "watermark", watermark)
	c.emit(ctx, Event{Type: EventPullCompleted, Count: len(recs)})
	return len(recs), nil
}

func (c *Coordinator) merge(ctx context.Context, uid string, recs []*models.Record) error {
	c.session.Lock()
	defer c.session.Unlock()
	for _, r := range recs {
		if _, err := c.mergeLocked(ctx, uid, r.ID, r); err != nil {
			return err
		}
	}
	return nil
}

// mergeLocked resolves the local row of id against rem (nil when the
// remote store has none) and stores the outcome. It returns the local row
// afterwards, or nil. Callers hold the session lock.
func (c *Coordinator) mergeLocked(ctx context.Context, uid, id string, rem *models.Record) (*models.Record, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	local, err := c.localGet(ctx, uid, id)
	if err != nil {
		return nil, err
	}
	op, err := c.store.PendingOperation(ctx, uid, id)
	if err != nil {
		return nil, err
	}

	// An unpushed delete hides the remote copy until it is sent.
	if op != nil && op.Kind == models.OpDelete {
		if rem != nil {
			c.report(ctx, Decision{
				RecordID: id, Winner: WinnerLocal, Reason: ReasonPendingDelete,
				RemoteUpdatedAt: rem.UpdatedAt,
			})
		}
		return nil, nil
	}

	winner, d := Resolve(local, rem)
	if winner == nil {
		return nil, nil
	}
	d.RecordID = id
	c.report(ctx, d)

	if d.Winner == WinnerRemote {
		if _, err := c.store.ApplyResolved(ctx, rem.Clone(), op); err != nil {
			return nil, err
		}
		return c.localGet(ctx, uid, id)
	}

	// A newer local copy the remote store never saw is pushed again.
	if rem != nil && local.Status == models.StatusSynced && local.UpdatedAt > rem.UpdatedAt {
		requeued, err := c.store.Requeue(ctx, local, c.now())
		if err != nil {
			return nil, err
		}
		if requeued != nil {
			c.schedulePush(uid, id)
			return c.localGet(ctx, uid, id)
		}
	}
	return local, nil
}

func (c *Coordinator) report(ctx context.Context, d Decision) {
	args := []any{
		"record_id", d.RecordID,
		"winner", d.Winner,
		"reason", d.Reason,
		"local_updated_at", d.LocalUpdatedAt,
		"remote_updated_at", d.RemoteUpdatedAt,
	}
	if d.Reason == ReasonRemoteMissing || d.Reason == ReasonLocalMissing {
		c.log.Debug(ctx, "conflict resolved", args...)
	} else {
		c.log.Info(ctx, "conflict resolved", args...)
	}
	c.emit(ctx, Event{Type: EventConflictResolved, RecordID: d.RecordID, Decision: &d})
}
