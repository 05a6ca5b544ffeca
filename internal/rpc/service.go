// Package rpc defines the DocumentService gRPC contract shared by the sync
// client and the document server. Messages are protobuf well-known types
// (Struct, ListValue, StringValue, Empty), so no generated code is needed.
package rpc

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const ServiceName = "cyclesync.v1.DocumentService"

const (
	MethodPing         = "/" + ServiceName + "/Ping"
	MethodSave         = "/" + ServiceName + "/Save"
	MethodGet          = "/" + ServiceName + "/Get"
	MethodDelete       = "/" + ServiceName + "/Delete"
	MethodQuery        = "/" + ServiceName + "/Query"
	MethodChangedSince = "/" + ServiceName + "/ChangedSince"
	MethodBatchSave    = "/" + ServiceName + "/BatchSave"
	MethodGetProfile   = "/" + ServiceName + "/GetProfile"
	MethodSaveProfile  = "/" + ServiceName + "/SaveProfile"
	MethodCreateExport = "/" + ServiceName + "/CreateExport"
)

// Write is a full-document overwrite of Path.
type Write struct {
	Path     string
	Document *structpb.Struct
}

// Query selects documents under Parent (users/{userId}/{collection}) whose
// dateEpochDays lies in [FromDay, ToDay]. Results are ordered by
// dateEpochDays descending.
type Query struct {
	Parent  string
	FromDay int64
	ToDay   int64
}

// Export is a presigned upload target for a user data export.
type Export struct {
	Key string
	URL string
}

// DocumentServer is the server side of DocumentService.
type DocumentServer interface {
	Ping(ctx context.Context) error
	Save(ctx context.Context, w Write) error
	Get(ctx context.Context, path string) (*structpb.Struct, error)
	Delete(ctx context.Context, path string) error
	Query(ctx context.Context, q Query) ([]*structpb.Struct, error)
	ChangedSince(ctx context.Context, userID string, since int64) ([]*structpb.Struct, error)
	BatchSave(ctx context.Context, writes []Write) error
	GetProfile(ctx context.Context, userID string) (*structpb.Struct, error)
	SaveProfile(ctx context.Context, userID string, doc *structpb.Struct) error
	CreateExport(ctx context.Context) (Export, error)
}

func writeToStruct(w Write) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"path":     structpb.NewStringValue(w.Path),
		"document": structpb.NewStructValue(w.Document),
	}}
}

func writeFromStruct(s *structpb.Struct) (Write, error) {
	path, err := stringField(s, "path")
	if err != nil {
		return Write{}, err
	}
	doc, err := structField(s, "document")
	if err != nil {
		return Write{}, err
	}
	return Write{Path: path, Document: doc}, nil
}

func queryToStruct(q Query) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"parent":  structpb.NewStringValue(q.Parent),
		"fromDay": structpb.NewNumberValue(float64(q.FromDay)),
		"toDay":   structpb.NewNumberValue(float64(q.ToDay)),
	}}
}

func queryFromStruct(s *structpb.Struct) (Query, error) {
	var (
		q   Query
		err error
	)
	if q.Parent, err = stringField(s, "parent"); err != nil {
		return q, err
	}
	if q.FromDay, err = intField(s, "fromDay"); err != nil {
		return q, err
	}
	if q.ToDay, err = intField(s, "toDay"); err != nil {
		return q, err
	}
	return q, nil
}

func listOfStructs(docs []*structpb.Struct) *structpb.ListValue {
	l := &structpb.ListValue{Values: make([]*structpb.Value, 0, len(docs))}
	for _, d := range docs {
		l.Values = append(l.Values, structpb.NewStructValue(d))
	}
	return l
}

func structsOfList(l *structpb.ListValue) ([]*structpb.Struct, error) {
	out := make([]*structpb.Struct, 0, len(l.GetValues()))
	for i, v := range l.GetValues() {
		s := v.GetStructValue()
		if s == nil {
			return nil, fmt.Errorf("%w: list item %d is not an object", ErrMalformed, i)
		}
		out = append(out, s)
	}
	return out, nil
}

// malformedStatus turns request decoding failures into InvalidArgument.
func malformedStatus(err error) error {
	if _, ok := status.FromError(err); ok {
		return err
	}
	if errors.Is(err, ErrMalformed) {
		return status.Error(codes.InvalidArgument, err.Error())
	}
	return err
}

// unary builds a MethodDesc whose handler decodes Req and forwards to call.
func unary[Req proto.Message](name string, newReq func() Req, call func(context.Context, DocumentServer, Req) (proto.Message, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := newReq()
			if err := dec(in); err != nil {
				return nil, err
			}
			ds := srv.(DocumentServer)
			invoke := func(ctx context.Context, req Req) (any, error) {
				out, err := call(ctx, ds, req)
				if err != nil {
					return nil, malformedStatus(err)
				}
				return out, nil
			}
			if interceptor == nil {
				return invoke(ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + name}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return invoke(ctx, req.(Req))
			})
		},
	}
}

func newEmpty() *emptypb.Empty           { return &emptypb.Empty{} }
func newStruct() *structpb.Struct        { return &structpb.Struct{} }
func newList() *structpb.ListValue       { return &structpb.ListValue{} }
func newString() *wrapperspb.StringValue { return &wrapperspb.StringValue{} }

// ServiceDesc describes DocumentService for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*DocumentServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("Ping", newEmpty, func(ctx context.Context, s DocumentServer, _ *emptypb.Empty) (proto.Message, error) {
			return &emptypb.Empty{}, s.Ping(ctx)
		}),
		unary("Save", newStruct, func(ctx context.Context, s DocumentServer, in *structpb.Struct) (proto.Message, error) {
			w, err := writeFromStruct(in)
			if err != nil {
				return nil, err
			}
			return &emptypb.Empty{}, s.Save(ctx, w)
		}),
		unary("Get", newString, func(ctx context.Context, s DocumentServer, in *wrapperspb.StringValue) (proto.Message, error) {
			return s.Get(ctx, in.GetValue())
		}),
		unary("Delete", newString, func(ctx context.Context, s DocumentServer, in *wrapperspb.StringValue) (proto.Message, error) {
			return &emptypb.Empty{}, s.Delete(ctx, in.GetValue())
		}),
		unary("Query", newStruct, func(ctx context.Context, s DocumentServer, in *structpb.Struct) (proto.Message, error) {
			q, err := queryFromStruct(in)
			if err != nil {
				return nil, err
			}
			docs, err := s.Query(ctx, q)
			if err != nil {
				return nil, err
			}
			return listOfStructs(docs), nil
		}),
		unary("ChangedSince", newStruct, func(ctx context.Context, s DocumentServer, in *structpb.Struct) (proto.Message, error) {
			user, err := stringField(in, "user")
			if err != nil {
				return nil, err
			}
			since, err := intField(in, "since")
			if err != nil {
				return nil, err
			}
			docs, err := s.ChangedSince(ctx, user, since)
			if err != nil {
				return nil, err
			}
			return listOfStructs(docs), nil
		}),
		unary("BatchSave", newList, func(ctx context.Context, s DocumentServer, in *structpb.ListValue) (proto.Message, error) {
			items, err := structsOfList(in)
			if err != nil {
				return nil, err
			}
			writes := make([]Write, 0, len(items))
			for _, it := range items {
				w, err := writeFromStruct(it)
				if err != nil {
					return nil, err
				}
				writes = append(writes, w)
			}
			return &emptypb.Empty{}, s.BatchSave(ctx, writes)
		}),
		unary("GetProfile", newString, func(ctx context.Context, s DocumentServer, in *wrapperspb.StringValue) (proto.Message, error) {
			return s.GetProfile(ctx, in.GetValue())
		}),
		unary("SaveProfile", newStruct, func(ctx context.Context, s DocumentServer, in *structpb.Struct) (proto.Message, error) {
			user, err := stringField(in, "user")
			if err != nil {
				return nil, err
			}
			doc, err := structField(in, "document")
			if err != nil {
				return nil, err
			}
			return &emptypb.Empty{}, s.SaveProfile(ctx, user, doc)
		}),
		unary("CreateExport", newEmpty, func(ctx context.Context, s DocumentServer, _ *emptypb.Empty) (proto.Message, error) {
			e, err := s.CreateExport(ctx)
			if err != nil {
				return nil, err
			}
			return &structpb.Struct{Fields: map[string]*structpb.Value{
				"key": structpb.NewStringValue(e.Key),
				"url": structpb.NewStringValue(e.URL),
			}}, nil
		}),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "cyclesync/v1/documents",
}

// RegisterDocumentServer registers srv on r.
func RegisterDocumentServer(r grpc.ServiceRegistrar, srv DocumentServer) {
	r.RegisterService(&ServiceDesc, srv)
}
