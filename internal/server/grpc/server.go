// Package grpc exposes the document services over the DocumentService gRPC
// contract with access-token authentication.
package grpc

import (
	"context"
	"net"

	"github.com/dmitrijs2005/cyclesync/internal/logging"
	"github.com/dmitrijs2005/cyclesync/internal/rpc"
	"github.com/dmitrijs2005/cyclesync/internal/server/models"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

type documentSvc interface {
	Save(ctx context.Context, userID string, w rpc.Write) error
	BatchSave(ctx context.Context, userID string, writes []rpc.Write) error
	Get(ctx context.Context, userID, path string) (*models.Document, error)
	Delete(ctx context.Context, userID, path string) error
	Query(ctx context.Context, userID string, q rpc.Query) ([]*models.Document, error)
	ChangedSince(ctx context.Context, userID, owner string, since int64) ([]*models.Document, error)
	GetProfile(ctx context.Context, userID, owner string) (*models.Profile, error)
	SaveProfile(ctx context.Context, userID, owner string, doc *structpb.Struct) error
}

type exportSvc interface {
	CreateExport(ctx context.Context, userID string) (key string, url string, err error)
}

type GRPCServer struct {
	address   string
	documents documentSvc
	exports   exportSvc
	logger    logging.Logger
	jwtSecret []byte
}

var _ rpc.DocumentServer = (*GRPCServer)(nil)

func NewGRPCServer(a string, l logging.Logger, ds documentSvc, es exportSvc, secretKey string) *GRPCServer {
	return &GRPCServer{
		address:   a,
		logger:    l.With("module", "grpc_server"),
		documents: ds,
		exports:   es,
		jwtSecret: []byte(secretKey),
	}
}

// ServerOptions returns the options every DocumentService server needs.
func (s *GRPCServer) ServerOptions() []grpc.ServerOption {
	return []grpc.ServerOption{grpc.ChainUnaryInterceptor(s.accessTokenInterceptor)}
}

// Run serves on the configured address until ctx is done, then stops
// gracefully.
func (s *GRPCServer) Run(ctx context.Context) error {

	// announces address
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	srv := grpc.NewServer(s.ServerOptions()...)
	rpc.RegisterDocumentServer(srv, s)

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", s.address)

	// starts accepting incoming connections
	if err := srv.Serve(listen); err != nil {
		return err
	}

	return nil
}
