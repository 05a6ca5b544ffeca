package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Client is a thin DocumentService stub over any grpc.ClientConnInterface.
// Errors are returned as gRPC status errors.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) Ping(ctx context.Context, opts ...grpc.CallOption) error {
	return c.cc.Invoke(ctx, MethodPing, &emptypb.Empty{}, &emptypb.Empty{}, opts...)
}

func (c *Client) Save(ctx context.Context, w Write, opts ...grpc.CallOption) error {
	return c.cc.Invoke(ctx, MethodSave, writeToStruct(w), &emptypb.Empty{}, opts...)
}

func (c *Client) Get(ctx context.Context, path string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := &structpb.Struct{}
	if err := c.cc.Invoke(ctx, MethodGet, wrapperspb.String(path), out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Delete(ctx context.Context, path string, opts ...grpc.CallOption) error {
	return c.cc.Invoke(ctx, MethodDelete, wrapperspb.String(path), &emptypb.Empty{}, opts...)
}

func (c *Client) Query(ctx context.Context, q Query, opts ...grpc.CallOption) ([]*structpb.Struct, error) {
	out := &structpb.ListValue{}
	if err := c.cc.Invoke(ctx, MethodQuery, queryToStruct(q), out, opts...); err != nil {
		return nil, err
	}
	return structsOfList(out)
}

func (c *Client) ChangedSince(ctx context.Context, userID string, since int64, opts ...grpc.CallOption) ([]*structpb.Struct, error) {
	in := &structpb.Struct{Fields: map[string]*structpb.Value{
		"user":  structpb.NewStringValue(userID),
		"since": structpb.NewNumberValue(float64(since)),
	}}
	out := &structpb.ListValue{}
	if err := c.cc.Invoke(ctx, MethodChangedSince, in, out, opts...); err != nil {
		return nil, err
	}
	return structsOfList(out)
}

func (c *Client) BatchSave(ctx context.Context, writes []Write, opts ...grpc.CallOption) error {
	in := &structpb.ListValue{Values: make([]*structpb.Value, 0, len(writes))}
	for _, w := range writes {
		in.Values = append(in.Values, structpb.NewStructValue(writeToStruct(w)))
	}
	return c.cc.Invoke(ctx, MethodBatchSave, in, &emptypb.Empty{}, opts...)
}

func (c *Client) GetProfile(ctx context.Context, userID string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := &structpb.Struct{}
	if err := c.cc.Invoke(ctx, MethodGetProfile, wrapperspb.String(userID), out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) SaveProfile(ctx context.Context, userID string, doc *structpb.Struct, opts ...grpc.CallOption) error {
	in := &structpb.Struct{Fields: map[string]*structpb.Value{
		"user":     structpb.NewStringValue(userID),
		"document": structpb.NewStructValue(doc),
	}}
	return c.cc.Invoke(ctx, MethodSaveProfile, in, &emptypb.Empty{}, opts...)
}

func (c *Client) CreateExport(ctx context.Context, opts ...grpc.CallOption) (Export, error) {
	out := &structpb.Struct{}
	if err := c.cc.Invoke(ctx, MethodCreateExport, &emptypb.Empty{}, out, opts...); err != nil {
		return Export{}, err
	}
	key, err := stringField(out, "key")
	if err != nil {
		return Export{}, err
	}
	url, err := stringField(out, "url")
	if err != nil {
		return Export{}, err
	}
	return Export{Key: key, URL: url}, nil
}
