// Package docpath builds and parses remote document paths of the form
// users/{userId}/{collection}/{docId}. Client and server both go through
// this package so every writer agrees on the layout.
package docpath

import (
	"errors"
	"fmt"
	"strings"
)

const usersRoot = "users"

// Document field names shared by every collection.
const (
	FieldID            = "id"
	FieldCollection    = "collection"
	FieldCreatedAt     = "createdAt"
	FieldUpdatedAt     = "updatedAt"
	FieldDateEpochDays = "dateEpochDays"
	FieldVersion       = "v"
)

// Collection names.
const (
	Cycles    = "cycles"
	DailyLogs = "dailyLogs"
	Insights  = "insights"
)

var ErrInvalidPath = errors.New("invalid document path")

// Collections lists every collection in a stable order.
func Collections() []string {
	return []string{Cycles, DailyLogs, Insights}
}

// KnownCollection reports whether name is one of Collections.
func KnownCollection(name string) bool {
	switch name {
	case Cycles, DailyLogs, Insights:
		return true
	}
	return false
}

// Path is a parsed document path. Collection and DocID are empty for the
// user root document.
type Path struct {
	UserID     string
	Collection string
	DocID      string
}

func (p Path) IsUserRoot() bool { return p.Collection == "" }

func (p Path) String() string {
	if p.IsUserRoot() {
		return usersRoot + "/" + p.UserID
	}
	return strings.Join([]string{usersRoot, p.UserID, p.Collection, p.DocID}, "/")
}

func checkSegment(name, v string) error {
	if v == "" {
		return fmt.Errorf("%w: empty %s", ErrInvalidPath, name)
	}
	if strings.Contains(v, "/") {
		return fmt.Errorf("%w: %s %q contains '/'", ErrInvalidPath, name, v)
	}
	return nil
}

// User returns users/{userId}.
func User(userID string) (string, error) {
	if err := checkSegment("user id", userID); err != nil {
		return "", err
	}
	return Path{UserID: userID}.String(), nil
}

// Collection returns users/{userId}/{collection}, the parent used by queries.
func Collection(userID, collection string) (string, error) {
	if err := checkSegment("user id", userID); err != nil {
		return "", err
	}
	if !KnownCollection(collection) {
		return "", fmt.Errorf("%w: unknown collection %q", ErrInvalidPath, collection)
	}
	return usersRoot + "/" + userID + "/" + collection, nil
}

// Document returns users/{userId}/{collection}/{docId}.
func Document(userID, collection, docID string) (string, error) {
	p := Path{UserID: userID, Collection: collection, DocID: docID}
	if err := p.Validate(); err != nil {
		return "", err
	}
	return p.String(), nil
}

// Validate checks every segment of a document (non-root) path.
func (p Path) Validate() error {
	if err := checkSegment("user id", p.UserID); err != nil {
		return err
	}
	if !KnownCollection(p.Collection) {
		return fmt.Errorf("%w: unknown collection %q", ErrInvalidPath, p.Collection)
	}
	return checkSegment("document id", p.DocID)
}

// Parse accepts users/{userId}, users/{userId}/{collection} and
// users/{userId}/{collection}/{docId}.
func Parse(s string) (Path, error) {
	parts := strings.Split(s, "/")
	if len(parts) < 2 || len(parts) > 4 || parts[0] != usersRoot {
		return Path{}, fmt.Errorf("%w: %q", ErrInvalidPath, s)
	}
	p := Path{UserID: parts[1]}
	if err := checkSegment("user id", p.UserID); err != nil {
		return Path{}, err
	}
	if len(parts) >= 3 {
		p.Collection = parts[2]
		if !KnownCollection(p.Collection) {
			return Path{}, fmt.Errorf("%w: unknown collection %q", ErrInvalidPath, p.Collection)
		}
	}
	if len(parts) == 4 {
		p.DocID = parts[3]
		if err := checkSegment("document id", p.DocID); err != nil {
			return Path{}, err
		}
	}
	return p, nil
}
