// Package models holds the server's storage-level representations.
package models

// SchemaVersion is the newest document schema the server accepts.
const SchemaVersion = 1

// Document is one stored document under
// users/{UserID}/{Collection}/{DocID}. Data is the full JSON object as the
// client sent it; the remaining fields are copies of its header kept in
// columns for indexing.
type Document struct {
	UserID        string `db:"user_id"`
	Collection    string `db:"collection"`
	DocID         string `db:"doc_id"`
	Data          []byte `db:"data"`
	CreatedAt     int64  `db:"created_at"`
	UpdatedAt     int64  `db:"updated_at"`
	DateEpochDays int64  `db:"date_epoch_days"`
	V             int    `db:"v"`
}

// Profile is the users/{UserID} root document.
type Profile struct {
	UserID    string `db:"user_id"`
	Data      []byte `db:"data"`
	UpdatedAt int64  `db:"updated_at"`
}
