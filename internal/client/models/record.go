// Package models defines the records synchronized by cyclesync, their typed
// payloads and the pending operation queue entries.
package models

import (
	"errors"
	"fmt"
)

// Collection names a remote document collection.
type Collection string

const (
	CollectionCycles    Collection = "cycles"
	CollectionDailyLogs Collection = "dailyLogs"
	CollectionInsights  Collection = "insights"
)

func (c Collection) Valid() bool {
	switch c {
	case CollectionCycles, CollectionDailyLogs, CollectionInsights:
		return true
	}
	return false
}

// SyncStatus tracks whether the local copy is confirmed remotely.
type SyncStatus string

const (
	StatusPending SyncStatus = "PENDING"
	StatusSynced  SyncStatus = "SYNCED"
)

// SchemaVersion is the document format version written by this build.
const SchemaVersion = 1

var (
	ErrInvalidRecord      = errors.New("invalid record")
	ErrUnsupportedVersion = errors.New("unsupported document version")
)

// Record is one user-authored dated entry. CreatedAt and UpdatedAt are
// epoch seconds; UpdatedAt is the sync version marker.
type Record struct {
	UserID     string
	ID         string
	Collection Collection
	Date       Date
	CreatedAt  int64
	UpdatedAt  int64
	Payload    Payload

	// Local bookkeeping, never sent to the remote store.
	Status          SyncStatus
	RemoteUpdatedAt int64
}

// Validate checks identity, timestamps and the payload.
func (r *Record) Validate() error {
	switch {
	case r.UserID == "":
		return fmt.Errorf("%w: empty user id", ErrInvalidRecord)
	case r.ID == "":
		return fmt.Errorf("%w: empty id", ErrInvalidRecord)
	case !r.Collection.Valid():
		return fmt.Errorf("%w: unknown collection %q", ErrInvalidRecord, r.Collection)
	case r.UpdatedAt < r.CreatedAt:
		return fmt.Errorf("%w: updatedAt %d before createdAt %d", ErrInvalidRecord, r.UpdatedAt, r.CreatedAt)
	case r.Payload == nil:
		return fmt.Errorf("%w: missing payload", ErrInvalidRecord)
	case r.Payload.Collection() != r.Collection:
		return fmt.Errorf("%w: %s payload in %s", ErrInvalidRecord, r.Payload.Collection(), r.Collection)
	}
	if err := r.Payload.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	return nil
}

// Clone returns a shallow copy; payloads are values.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}
