// Package remote is the typed client of the remote document store. Every
// failure comes back as *Error, classified as transient or permanent.
package remote

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/dmitrijs2005/cyclesync/internal/client/models"
	"github.com/dmitrijs2005/cyclesync/internal/common"
	"github.com/dmitrijs2005/cyclesync/internal/docpath"
	"github.com/dmitrijs2005/cyclesync/internal/rpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"
)

// DefaultTimeout bounds every remote call when none is configured.
const DefaultTimeout = 10 * time.Second

// Service is what the sync coordinator needs from the remote store.
type Service interface {
	// Save overwrites the whole document of r.
	Save(ctx context.Context, r *models.Record) error
	// Get fails with KindNotFound when the document does not exist.
	Get(ctx context.Context, userID string, c models.Collection, id string) (*models.Record, error)
	// GetByDate fails with KindNotFound when no document has that date.
	GetByDate(ctx context.Context, userID string, c models.Collection, date models.Date) (*models.Record, error)
	// GetRange returns documents with start <= date <= end, newest date first.
	GetRange(ctx context.Context, userID string, c models.Collection, start, end models.Date) ([]*models.Record, error)
	// GetChangedSince returns documents of every collection with
	// updatedAt > since, oldest change first.
	GetChangedSince(ctx context.Context, userID string, since int64) ([]*models.Record, error)
	Delete(ctx context.Context, userID string, c models.Collection, id string) error
	// BatchSave writes all records or none of them.
	BatchSave(ctx context.Context, recs []*models.Record) error
	Ping(ctx context.Context) error
}

// GRPCService implements Service over the DocumentService gRPC API.
type GRPCService struct {
	client  *rpc.Client
	token   string
	timeout time.Duration
}

// Dial opens a client connection to addr. The connection is lazy; nothing
// is sent until the first call.
func Dial(addr string, opts ...grpc.DialOption) (*grpc.ClientConn, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return conn, nil
}

// NewGRPCService wraps cc. token is sent as the access token on every call;
// timeout <= 0 means DefaultTimeout.
func NewGRPCService(cc grpc.ClientConnInterface, token string, timeout time.Duration) *GRPCService {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &GRPCService{client: rpc.NewClient(cc), token: token, timeout: timeout}
}

func withAccessToken(ctx context.Context, token string) context.Context {
	if token == "" {
		return ctx
	}
	md, _ := metadata.FromOutgoingContext(ctx)
	md = md.Copy()
	md.Set(common.AccessTokenHeaderName, token)
	return metadata.NewOutgoingContext(ctx, md)
}

// call runs fn with a bounded timeout and the access token, converting any
// failure, panics included, into *Error.
func (s *GRPCService) call(ctx context.Context, op string, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = &Error{Kind: KindUnknown, Op: op, Err: fmt.Errorf("panic: %v", p)}
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	return wrap(op, fn(withAccessToken(ctx, s.token)))
}

func (s *GRPCService) Ping(ctx context.Context) error {
	return s.call(ctx, "ping", func(ctx context.Context) error {
		return s.client.Ping(ctx)
	})
}

func (s *GRPCService) Save(ctx context.Context, r *models.Record) error {
	return s.call(ctx, "save", func(ctx context.Context) error {
		w, err := toWrite(r)
		if err != nil {
			return err
		}
		return s.client.Save(ctx, w)
	})
}

func toWrite(r *models.Record) (rpc.Write, error) {
	path, err := Path(r)
	if err != nil {
		return rpc.Write{}, err
	}
	doc, err := EncodeRecord(r)
	if err != nil {
		return rpc.Write{}, err
	}
	return rpc.Write{Path: path, Document: doc}, nil
}

func (s *GRPCService) Get(ctx context.Context, userID string, c models.Collection, id string) (*models.Record, error) {
	var rec *models.Record
	err := s.call(ctx, "get", func(ctx context.Context) error {
		path, err := docpath.Document(userID, string(c), id)
		if err != nil {
			return err
		}
		doc, err := s.client.Get(ctx, path)
		if err != nil {
			return err
		}
		rec, err = DecodeRecord(userID, doc)
		return err
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *GRPCService) query(ctx context.Context, op, userID string, c models.Collection, start, end models.Date) ([]*models.Record, error) {
	var recs []*models.Record
	err := s.call(ctx, op, func(ctx context.Context) error {
		parent, err := docpath.Collection(userID, string(c))
		if err != nil {
			return err
		}
		docs, err := s.client.Query(ctx, rpc.Query{Parent: parent, FromDay: int64(start), ToDay: int64(end)})
		if err != nil {
			return err
		}
		recs, err = decodeAll(userID, docs)
		return err
	})
	if err != nil {
		return nil, err
	}
	return recs, nil
}

func (s *GRPCService) GetByDate(ctx context.Context, userID string, c models.Collection, date models.Date) (*models.Record, error) {
	recs, err := s.query(ctx, "get by date", userID, c, date, date)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, &Error{Kind: KindNotFound, Op: "get by date", Err: common.ErrorNotFound}
	}
	sort.SliceStable(recs, func(i, j int) bool { return recs[i].UpdatedAt > recs[j].UpdatedAt })
	return recs[0], nil
}

func (s *GRPCService) GetRange(ctx context.Context, userID string, c models.Collection, start, end models.Date) ([]*models.Record, error) {
	return s.query(ctx, "get range", userID, c, start, end)
}

func (s *GRPCService) GetChangedSince(ctx context.Context, userID string, since int64) ([]*models.Record, error) {
	var recs []*models.Record
	err := s.call(ctx, "changed since", func(ctx context.Context) error {
		docs, err := s.client.ChangedSince(ctx, userID, since)
		if err != nil {
			return err
		}
		recs, err = decodeAll(userID, docs)
		return err
	})
	if err != nil {
		return nil, err
	}
	return recs, nil
}

func (s *GRPCService) Delete(ctx context.Context, userID string, c models.Collection, id string) error {
	return s.call(ctx, "delete", func(ctx context.Context) error {
		path, err := docpath.Document(userID, string(c), id)
		if err != nil {
			return err
		}
		return s.client.Delete(ctx, path)
	})
}

func (s *GRPCService) BatchSave(ctx context.Context, recs []*models.Record) error {
	return s.call(ctx, "batch save", func(ctx context.Context) error {
		writes := make([]rpc.Write, 0, len(recs))
		for _, r := range recs {
			w, err := toWrite(r)
			if err != nil {
				return err
			}
			writes = append(writes, w)
		}
		return s.client.BatchSave(ctx, writes)
	})
}

// CreateExport asks the server for a presigned upload URL.
func (s *GRPCService) CreateExport(ctx context.Context) (rpc.Export, error) {
	var exp rpc.Export
	err := s.call(ctx, "create export", func(ctx context.Context) error {
		var err error
		exp, err = s.client.CreateExport(ctx)
		return err
	})
	return exp, err
}

// GetProfile fetches the users/{userId} root document.
func (s *GRPCService) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	var p models.Profile
	err := s.call(ctx, "get profile", func(ctx context.Context) error {
		doc, err := s.client.GetProfile(ctx, userID)
		if err != nil {
			return err
		}
		return rpc.DecodeDocument(doc, &p)
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *GRPCService) SaveProfile(ctx context.Context, userID string, p *models.Profile) error {
	return s.call(ctx, "save profile", func(ctx context.Context) error {
		doc, err := rpc.EncodeDocument(p)
		if err != nil {
			return err
		}
		return s.client.SaveProfile(ctx, userID, doc)
	})
}

func decodeAll(userID string, docs []*structpb.Struct) ([]*models.Record, error) {
	out := make([]*models.Record, 0, len(docs))
	for _, d := range docs {
		r, err := DecodeRecord(userID, d)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}
