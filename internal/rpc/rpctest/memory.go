// Package rpctest provides an in-memory DocumentService and a bufconn dialer
// for tests that need a real gRPC round trip without a database.
package rpctest

import (
	"context"
	"net"
	"sort"
	"sync"
	"testing"

	"github.com/dmitrijs2005/cyclesync/internal/docpath"
	"github.com/dmitrijs2005/cyclesync/internal/rpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// Memory is a DocumentServer keeping documents in a map. Fail, when set,
// is consulted before every call and may return an error to inject.
type Memory struct {
	mu       sync.Mutex
	docs     map[string]*structpb.Struct
	profiles map[string]*structpb.Struct
	calls    map[string]int

	Fail func(method string) error
	// ExportURL is returned by CreateExport when set.
	ExportURL string
}

func NewMemory() *Memory {
	return &Memory{
		docs:     map[string]*structpb.Struct{},
		profiles: map[string]*structpb.Struct{},
		calls:    map[string]int{},
	}
}

func (m *Memory) enter(method string) error {
	m.mu.Lock()
	m.calls[method]++
	fail := m.Fail
	m.mu.Unlock()
	if fail != nil {
		return fail(method)
	}
	return nil
}

// Calls returns how many times method was invoked.
func (m *Memory) Calls(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[method]
}

// SetFail replaces the failure injector.
func (m *Memory) SetFail(f func(method string) error) {
	m.mu.Lock()
	m.Fail = f
	m.mu.Unlock()
}

// Put stores a document directly, bypassing RPC.
func (m *Memory) Put(path string, doc *structpb.Struct) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[path] = proto.Clone(doc).(*structpb.Struct)
}

// Doc returns a copy of the stored document, or nil.
func (m *Memory) Doc(path string) *structpb.Struct {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[path]
	if !ok {
		return nil
	}
	return proto.Clone(d).(*structpb.Struct)
}

// Len returns the number of stored documents.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.docs)
}

func number(d *structpb.Struct, field string) int64 {
	return int64(d.GetFields()[field].GetNumberValue())
}

func (m *Memory) Ping(context.Context) error { return m.enter("Ping") }

func (m *Memory) Save(_ context.Context, w rpc.Write) error {
	if err := m.enter("Save"); err != nil {
		return err
	}
	if _, err := docpath.Parse(w.Path); err != nil {
		return status.Error(codes.InvalidArgument, err.Error())
	}
	m.store(w)
	return nil
}

// store applies w unless the stored copy is strictly newer, so replays of
// an older write never regress the document.
func (m *Memory) store(w rpc.Write) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.docs[w.Path]; ok && number(cur, docpath.FieldUpdatedAt) > number(w.Document, docpath.FieldUpdatedAt) {
		return
	}
	m.docs[w.Path] = proto.Clone(w.Document).(*structpb.Struct)
}

func (m *Memory) Get(_ context.Context, path string) (*structpb.Struct, error) {
	if err := m.enter("Get"); err != nil {
		return nil, err
	}
	d := m.Doc(path)
	if d == nil {
		return nil, status.Error(codes.NotFound, "not found")
	}
	return d, nil
}

func (m *Memory) Delete(_ context.Context, path string) error {
	if err := m.enter("Delete"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[path]; !ok {
		return status.Error(codes.NotFound, "not found")
	}
	delete(m.docs, path)
	return nil
}

func (m *Memory) Query(_ context.Context, q rpc.Query) ([]*structpb.Struct, error) {
	if err := m.enter("Query"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*structpb.Struct
	for p, d := range m.docs {
		parsed, err := docpath.Parse(p)
		if err != nil {
			continue
		}
		parent, _ := docpath.Collection(parsed.UserID, parsed.Collection)
		day := number(d, docpath.FieldDateEpochDays)
		if parent == q.Parent && day >= q.FromDay && day <= q.ToDay {
			out = append(out, proto.Clone(d).(*structpb.Struct))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return number(out[i], docpath.FieldDateEpochDays) > number(out[j], docpath.FieldDateEpochDays)
	})
	return out, nil
}

func (m *Memory) ChangedSince(_ context.Context, userID string, since int64) ([]*structpb.Struct, error) {
	if err := m.enter("ChangedSince"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*structpb.Struct
	for p, d := range m.docs {
		parsed, err := docpath.Parse(p)
		if err != nil || parsed.UserID != userID {
			continue
		}
		if number(d, docpath.FieldUpdatedAt) > since {
			out = append(out, proto.Clone(d).(*structpb.Struct))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return number(out[i], docpath.FieldUpdatedAt) < number(out[j], docpath.FieldUpdatedAt)
	})
	return out, nil
}

func (m *Memory) BatchSave(_ context.Context, writes []rpc.Write) error {
	if err := m.enter("BatchSave"); err != nil {
		return err
	}
	for _, w := range writes {
		if _, err := docpath.Parse(w.Path); err != nil {
			return status.Error(codes.InvalidArgument, err.Error())
		}
	}
	for _, w := range writes {
		m.store(w)
	}
	return nil
}

func (m *Memory) GetProfile(_ context.Context, userID string) (*structpb.Struct, error) {
	if err := m.enter("GetProfile"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[userID]
	if !ok {
		return nil, status.Error(codes.NotFound, "not found")
	}
	return proto.Clone(p).(*structpb.Struct), nil
}

func (m *Memory) SaveProfile(_ context.Context, userID string, doc *structpb.Struct) error {
	if err := m.enter("SaveProfile"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles[userID] = proto.Clone(doc).(*structpb.Struct)
	return nil
}

func (m *Memory) CreateExport(context.Context) (rpc.Export, error) {
	if err := m.enter("CreateExport"); err != nil {
		return rpc.Export{}, err
	}
	url := m.ExportURL
	if url == "" {
		url = "http://localhost/upload"
	}
	return rpc.Export{Key: "exports/test.json", URL: url}, nil
}

// Serve starts srv on an in-memory listener and returns a connected client
// conn. Everything is torn down with t.Cleanup.
func Serve(t testing.TB, srv rpc.DocumentServer, opts ...grpc.ServerOption) *grpc.ClientConn {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	gs := grpc.NewServer(opts...)
	rpc.RegisterDocumentServer(gs, srv)
	go func() { _ = gs.Serve(lis) }()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial bufconn: %v", err)
	}
	t.Cleanup(func() {
		_ = conn.Close()
		gs.Stop()
		_ = lis.Close()
	})
	return conn
}
