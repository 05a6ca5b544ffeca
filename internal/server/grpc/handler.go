package grpc

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/cyclesync/internal/common"
	"github.com/dmitrijs2005/cyclesync/internal/rpc"
	"github.com/dmitrijs2005/cyclesync/internal/server/models"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

func (s *GRPCServer) Ping(ctx context.Context) error {
	return nil
}

func (s *GRPCServer) Save(ctx context.Context, w rpc.Write) error {
	return s.mapError(ctx, "Save", s.documents.Save(ctx, userIDFromContext(ctx), w))
}

func (s *GRPCServer) BatchSave(ctx context.Context, writes []rpc.Write) error {
	return s.mapError(ctx, "BatchSave", s.documents.BatchSave(ctx, userIDFromContext(ctx), writes))
}

func (s *GRPCServer) Get(ctx context.Context, path string) (*structpb.Struct, error) {
	d, err := s.documents.Get(ctx, userIDFromContext(ctx), path)
	if err != nil {
		return nil, s.mapError(ctx, "Get", err)
	}
	doc, err := rpc.StructFromJSON(d.Data)
	if err != nil {
		return nil, s.mapError(ctx, "Get", err)
	}
	return doc, nil
}

func (s *GRPCServer) Delete(ctx context.Context, path string) error {
	return s.mapError(ctx, "Delete", s.documents.Delete(ctx, userIDFromContext(ctx), path))
}

func (s *GRPCServer) Query(ctx context.Context, q rpc.Query) ([]*structpb.Struct, error) {
	docs, err := s.documents.Query(ctx, userIDFromContext(ctx), q)
	if err != nil {
		return nil, s.mapError(ctx, "Query", err)
	}
	return s.structs(ctx, "Query", docs)
}

func (s *GRPCServer) ChangedSince(ctx context.Context, userID string, since int64) ([]*structpb.Struct, error) {
	docs, err := s.documents.ChangedSince(ctx, userIDFromContext(ctx), userID, since)
	if err != nil {
		return nil, s.mapError(ctx, "ChangedSince", err)
	}
	return s.structs(ctx, "ChangedSince", docs)
}

func (s *GRPCServer) GetProfile(ctx context.Context, userID string) (*structpb.Struct, error) {
	p, err := s.documents.GetProfile(ctx, userIDFromContext(ctx), userID)
	if err != nil {
		return nil, s.mapError(ctx, "GetProfile", err)
	}
	doc, err := rpc.StructFromJSON(p.Data)
	if err != nil {
		return nil, s.mapError(ctx, "GetProfile", err)
	}
	return doc, nil
}

func (s *GRPCServer) SaveProfile(ctx context.Context, userID string, doc *structpb.Struct) error {
	return s.mapError(ctx, "SaveProfile", s.documents.SaveProfile(ctx, userIDFromContext(ctx), userID, doc))
}

func (s *GRPCServer) CreateExport(ctx context.Context) (rpc.Export, error) {
	key, url, err := s.exports.CreateExport(ctx, userIDFromContext(ctx))
	if err != nil {
		return rpc.Export{}, s.mapError(ctx, "CreateExport", err)
	}
	s.logger.Info(ctx, "export URL issued", "key", key)
	return rpc.Export{Key: key, URL: url}, nil
}

func (s *GRPCServer) structs(ctx context.Context, method string, docs []*models.Document) ([]*structpb.Struct, error) {
	out := make([]*structpb.Struct, 0, len(docs))
	for _, d := range docs {
		doc, err := rpc.StructFromJSON(d.Data)
		if err != nil {
			return nil, s.mapError(ctx, method, err)
		}
		out = append(out, doc)
	}
	return out, nil
}

// mapError converts service errors into gRPC statuses. Unexpected errors are
// logged and reported as Internal without details.
func (s *GRPCServer) mapError(ctx context.Context, method string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, common.ErrorValidation):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, common.ErrorPermission):
		return status.Error(codes.PermissionDenied, err.Error())
	case errors.Is(err, common.ErrorUnauthorized):
		return status.Error(codes.Unauthenticated, "unauthorized")
	case errors.Is(err, common.ErrorNotFound):
		return status.Error(codes.NotFound, "not found")
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	}
	s.logger.Error(ctx, "request failed", "method", method, "error", err)
	return status.Error(codes.Internal, "internal error")
}
