package syncer

import (
	"context"
	"time"
)

type EventType string

const (
	EventConflictResolved   EventType = "conflict_resolved"
	EventPushSucceeded      EventType = "push_succeeded"
	EventPushRetryScheduled EventType = "push_retry_scheduled"
	EventPushExhausted      EventType = "push_exhausted"
	EventPushFailed         EventType = "push_failed"
	EventBatchFailed        EventType = "batch_failed"
	EventPullCompleted      EventType = "pull_completed"
)

// Event reports something the coordinator did in the background. Only the
// fields relevant to Type are set.
type Event struct {
	Type     EventType
	At       time.Time
	RecordID string

	// UpdatedAt is the version acknowledged by a successful push.
	UpdatedAt int64

	Decision *Decision

	Attempts      int
	NextAttemptAt time.Time
	Err           error

	// Count is the number of records in a pull or a failed batch.
	Count int
}

const eventBuffer = 64

// emit never blocks; when nobody drains Events the newest events are
// dropped.
func (c *Coordinator) emit(ctx context.Context, e Event) {
	e.At = c.now()
	select {
	case c.events <- e:
	default:
		c.log.Debug(ctx, "event dropped", "type", e.Type, "record_id", e.RecordID)
	}
}

// Events streams background sync outcomes: conflict decisions, push
// results and completed pulls.
func (c *Coordinator) Events() <-chan Event {
	return c.events
}
