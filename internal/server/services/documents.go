// Package services implements the document server's business logic on top
// of the repositories: ownership checks, document validation, batch
// transactions and export upload URLs.
package services

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/cyclesync/internal/dbx"
	"github.com/dmitrijs2005/cyclesync/internal/docpath"
	"github.com/dmitrijs2005/cyclesync/internal/logging"
	"github.com/dmitrijs2005/cyclesync/internal/rpc"
	"github.com/dmitrijs2005/cyclesync/internal/server/models"
	"github.com/dmitrijs2005/cyclesync/internal/server/repositories/repomanager"
	"google.golang.org/protobuf/types/known/structpb"
)

// MaxBatchSize bounds the number of writes in one BatchSave.
const MaxBatchSize = 500

// DocumentService serves documents of the authenticated user. Every method
// takes the caller's user id (from the access token) and rejects paths
// owned by anyone else.
type DocumentService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	logger      logging.Logger
}

func NewDocumentService(db *sql.DB, repomanager repomanager.RepositoryManager, logger logging.Logger) *DocumentService {
	return &DocumentService{
		db:          db,
		repomanager: repomanager,
		logger:      logger.With("module", "documents"),
	}
}

// Save overwrites one document. A write older than the stored copy is
// accepted and ignored, so replays are harmless.
func (s *DocumentService) Save(ctx context.Context, userID string, w rpc.Write) error {
	d, err := documentFromWrite(userID, w)
	if err != nil {
		return err
	}
	written, err := s.repomanager.Documents(s.db).Upsert(ctx, d)
	if err != nil {
		return fmt.Errorf("save %s: %w", w.Path, err)
	}
	if !written {
		s.logger.Debug(ctx, "stale write ignored", "path", w.Path, "updated_at", d.UpdatedAt)
	}
	return nil
}

// BatchSave applies every write in one transaction: all of them or none.
func (s *DocumentService) BatchSave(ctx context.Context, userID string, writes []rpc.Write) error {
	if len(writes) > MaxBatchSize {
		return invalid("batch of %d exceeds %d writes", len(writes), MaxBatchSize)
	}
	docs := make([]*models.Document, 0, len(writes))
	for _, w := range writes {
		d, err := documentFromWrite(userID, w)
		if err != nil {
			return err
		}
		docs = append(docs, d)
	}
	if len(docs) == 0 {
		return nil
	}

	var stale int
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Documents(tx)
		for _, d := range docs {
			written, err := repo.Upsert(ctx, d)
			if err != nil {
				return err
			}
			if !written {
				stale++
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("batch save: %w", err)
	}
	s.logger.Info(ctx, "batch saved", "user_id", userID, "writes", len(docs), "stale", stale)
	return nil
}

func (s *DocumentService) Get(ctx context.Context, userID, path string) (*models.Document, error) {
	p, err := ownedPath(userID, path)
	if err != nil {
		return nil, err
	}
	return s.repomanager.Documents(s.db).Get(ctx, p.UserID, p.Collection, p.DocID)
}

// Delete removes one document; a missing one is common.ErrorNotFound.
func (s *DocumentService) Delete(ctx context.Context, userID, path string) error {
	p, err := ownedPath(userID, path)
	if err != nil {
		return err
	}
	return s.repomanager.Documents(s.db).Delete(ctx, p.UserID, p.Collection, p.DocID)
}

// Query returns the documents of one collection dated within
// [q.FromDay, q.ToDay], newest date first.
func (s *DocumentService) Query(ctx context.Context, userID string, q rpc.Query) ([]*models.Document, error) {
	p, err := docpath.Parse(q.Parent)
	if err != nil {
		return nil, invalid("%v", err)
	}
	if p.Collection == "" || p.DocID != "" {
		return nil, invalid("%q is not a collection path", q.Parent)
	}
	if err := checkOwner(userID, p.UserID); err != nil {
		return nil, err
	}
	if q.ToDay < q.FromDay {
		return nil, invalid("range ends before it starts")
	}
	return s.repomanager.Documents(s.db).SelectByDateRange(ctx, p.UserID, p.Collection, q.FromDay, q.ToDay)
}

// ChangedSince returns every document of owner updated after since, oldest
// change first.
func (s *DocumentService) ChangedSince(ctx context.Context, userID, owner string, since int64) ([]*models.Document, error) {
	if err := checkOwner(userID, owner); err != nil {
		return nil, err
	}
	return s.repomanager.Documents(s.db).SelectUpdatedSince(ctx, owner, since)
}

func (s *DocumentService) GetProfile(ctx context.Context, userID, owner string) (*models.Profile, error) {
	if err := checkOwner(userID, owner); err != nil {
		return nil, err
	}
	return s.repomanager.Profiles(s.db).Get(ctx, owner)
}

func (s *DocumentService) SaveProfile(ctx context.Context, userID, owner string, doc *structpb.Struct) error {
	if err := checkOwner(userID, owner); err != nil {
		return err
	}
	p, err := profileFromStruct(owner, doc)
	if err != nil {
		return err
	}
	return s.repomanager.Profiles(s.db).Upsert(ctx, p)
}
