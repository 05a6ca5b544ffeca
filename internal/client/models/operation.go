package models

import "time"

// OpKind is the intent of a queued operation.
type OpKind string

const (
	OpSave   OpKind = "save"
	OpDelete OpKind = "delete"
)

// PendingOperation is a queued save or delete waiting for remote
// acknowledgement. There is at most one per (UserID, RecordID); a newer
// local write replaces the intent and bumps Seq.
type PendingOperation struct {
	ID         string
	UserID     string
	RecordID   string
	Collection Collection
	Kind       OpKind
	Seq        int64
	Attempts   int
	// NextAttemptAt is nil once automatic retries are exhausted; the
	// operation then waits for connectivity to come back.
	NextAttemptAt *time.Time
	LastError     string
	CreatedAt     time.Time
}

func (o *PendingOperation) Exhausted() bool { return o.NextAttemptAt == nil }

// Due reports whether the operation may be attempted at now.
func (o *PendingOperation) Due(now time.Time) bool {
	return o.NextAttemptAt != nil && !o.NextAttemptAt.After(now)
}
