package syncer

import "github.com/dmitrijs2005/cyclesync/internal/client/models"

// Winner names the side a conflict decision kept.
type Winner string

const (
	WinnerLocal  Winner = "local"
	WinnerRemote Winner = "remote"
	WinnerNone   Winner = "none"
)

// Reasons attached to a Decision.
const (
	ReasonRemoteMissing = "remote_missing"
	ReasonLocalMissing  = "local_missing"
	ReasonBothMissing   = "both_missing"
	ReasonRemoteNewer   = "remote_newer"
	ReasonLocalNewer    = "local_newer"
	ReasonTie           = "tie_remote"
	ReasonPendingDelete = "pending_delete"
)

// Decision describes one conflict resolution. Timestamps are zero for a
// missing side.
type Decision struct {
	RecordID        string
	Winner          Winner
	Reason          string
	LocalUpdatedAt  int64
	RemoteUpdatedAt int64
}

// Resolve picks between the local and remote copy of one record by
// last-writer-wins on UpdatedAt. Equal timestamps go to the remote copy so
// every device converges on the same winner.
func Resolve(local, remote *models.Record) (*models.Record, Decision) {
	var d Decision
	if local != nil {
		d.RecordID = local.ID
		d.LocalUpdatedAt = local.UpdatedAt
	}
	if remote != nil {
		d.RecordID = remote.ID
		d.RemoteUpdatedAt = remote.UpdatedAt
	}

	switch {
	case local == nil && remote == nil:
		d.Winner, d.Reason = WinnerNone, ReasonBothMissing
		return nil, d
	case remote == nil:
		d.Winner, d.Reason = WinnerLocal, ReasonRemoteMissing
		return local, d
	case local == nil:
		d.Winner, d.Reason = WinnerRemote, ReasonLocalMissing
		return remote, d
	case remote.UpdatedAt > local.UpdatedAt:
		d.Winner, d.Reason = WinnerRemote, ReasonRemoteNewer
		return remote, d
	case remote.UpdatedAt == local.UpdatedAt:
		d.Winner, d.Reason = WinnerRemote, ReasonTie
		return remote, d
	default:
		d.Winner, d.Reason = WinnerLocal, ReasonLocalNewer
		return local, d
	}
}
