package services

import (
	"encoding/json"
	"fmt"

	"github.com/dmitrijs2005/cyclesync/internal/common"
	"github.com/dmitrijs2005/cyclesync/internal/docpath"
	"github.com/dmitrijs2005/cyclesync/internal/rpc"
	"github.com/dmitrijs2005/cyclesync/internal/server/models"
	"google.golang.org/protobuf/types/known/structpb"
)

// header is the part of every document the server reads. Pointers tell a
// missing field from a zero one.
type header struct {
	ID            *string `json:"id"`
	Collection    *string `json:"collection"`
	CreatedAt     *int64  `json:"createdAt"`
	UpdatedAt     *int64  `json:"updatedAt"`
	DateEpochDays *int64  `json:"dateEpochDays"`
	V             *int    `json:"v"`
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", common.ErrorValidation, fmt.Sprintf(format, args...))
}

// ownedPath parses path and checks that it belongs to userID. Only
// users/{userId}/{collection}/{docId} paths are accepted.
func ownedPath(userID, path string) (docpath.Path, error) {
	p, err := docpath.Parse(path)
	if err != nil {
		return docpath.Path{}, invalid("%v", err)
	}
	if p.DocID == "" {
		return docpath.Path{}, invalid("%q is not a document path", path)
	}
	if err := checkOwner(userID, p.UserID); err != nil {
		return docpath.Path{}, err
	}
	return p, nil
}

func checkOwner(userID, owner string) error {
	if userID == "" {
		return common.ErrorUnauthorized
	}
	if owner != userID {
		return fmt.Errorf("%w: user %q may not access %q", common.ErrorPermission, userID, owner)
	}
	return nil
}

func checkVersion(v *int) error {
	if v == nil {
		return invalid("missing %q", docpath.FieldVersion)
	}
	if *v < 1 || *v > models.SchemaVersion {
		return invalid("unsupported schema version %d", *v)
	}
	return nil
}

// documentFromWrite validates w and converts it to its stored form.
func documentFromWrite(userID string, w rpc.Write) (*models.Document, error) {
	p, err := ownedPath(userID, w.Path)
	if err != nil {
		return nil, err
	}
	raw, err := rpc.DocumentJSON(w.Document)
	if err != nil {
		return nil, invalid("%v", err)
	}

	var h header
	if err := json.Unmarshal(raw, &h); err != nil {
		return nil, invalid("%s: %v", w.Path, err)
	}
	for _, f := range []struct {
		name    string
		missing bool
	}{
		{docpath.FieldID, h.ID == nil},
		{docpath.FieldCollection, h.Collection == nil},
		{docpath.FieldCreatedAt, h.CreatedAt == nil},
		{docpath.FieldUpdatedAt, h.UpdatedAt == nil},
		{docpath.FieldDateEpochDays, h.DateEpochDays == nil},
	} {
		if f.missing {
			return nil, invalid("%s: missing %q", w.Path, f.name)
		}
	}
	if err := checkVersion(h.V); err != nil {
		return nil, err
	}
	if *h.ID != p.DocID || *h.Collection != p.Collection {
		return nil, invalid("%s: id/collection do not match the path", w.Path)
	}
	if *h.UpdatedAt < *h.CreatedAt {
		return nil, invalid("%s: updatedAt before createdAt", w.Path)
	}

	return &models.Document{
		UserID:        p.UserID,
		Collection:    p.Collection,
		DocID:         p.DocID,
		Data:          raw,
		CreatedAt:     *h.CreatedAt,
		UpdatedAt:     *h.UpdatedAt,
		DateEpochDays: *h.DateEpochDays,
		V:             *h.V,
	}, nil
}

// profileFromStruct validates a users/{userId} root document.
func profileFromStruct(owner string, doc *structpb.Struct) (*models.Profile, error) {
	raw, err := rpc.DocumentJSON(doc)
	if err != nil {
		return nil, invalid("%v", err)
	}
	var h header
	if err := json.Unmarshal(raw, &h); err != nil {
		return nil, invalid("profile: %v", err)
	}
	if err := checkVersion(h.V); err != nil {
		return nil, err
	}
	if h.UpdatedAt == nil {
		return nil, invalid("profile: missing %q", docpath.FieldUpdatedAt)
	}
	return &models.Profile{UserID: owner, Data: raw, UpdatedAt: *h.UpdatedAt}, nil
}
