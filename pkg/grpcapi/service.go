package grpcapi

import (
	"context"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/recordsplit/recordsplit/pkg/budget"
	"github.com/recordsplit/recordsplit/pkg/kvs"
	"github.com/recordsplit/recordsplit/pkg/memkv"
	"github.com/recordsplit/recordsplit/pkg/recordstore"
	"github.com/recordsplit/recordsplit/pkg/stats"
	"github.com/recordsplit/recordsplit/pkg/telemetry"
)

// ServiceName is the name this service registers under with grpc.Server,
// standing in for the package path a .proto file would normally assign.
const ServiceName = "recordsplit.RecordStore"

// RecordStoreServer is the interface a gRPC server registers against
// ServiceDesc. Every request and response travels as a single
// wrapperspb.BytesValue whose raw bytes are one of this package's packed
// field encodings (see wire.go), mirroring the single opaque-message
// shape a protoc-gen-go-grpc server interface would otherwise expose as
// distinct generated request/response types.
type RecordStoreServer interface {
	Save(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error)
	Read(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error)
	Exists(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error)
	Delete(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error)
	Scan(*wrapperspb.BytesValue, RecordStore_ScanServer) error
}

// RecordStore_ScanServer is the server-side stream handle a Scan
// implementation writes results to, shaped like the streaming server
// interfaces protoc-gen-go-grpc emits.
type RecordStore_ScanServer interface {
	Send(*wrapperspb.BytesValue) error
	grpc.ServerStream
}

type recordStoreScanServer struct {
	grpc.ServerStream
}

func (x *recordStoreScanServer) Send(m *wrapperspb.BytesValue) error {
	return x.ServerStream.SendMsg(m)
}

func _RecordStore_Save_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RecordStoreServer).Save(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ServiceName + "/Save"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(RecordStoreServer).Save(ctx, req.(*wrapperspb.BytesValue))
	}
	return interceptor(ctx, in, info, handler)
}

func _RecordStore_Read_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RecordStoreServer).Read(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ServiceName + "/Read"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(RecordStoreServer).Read(ctx, req.(*wrapperspb.BytesValue))
	}
	return interceptor(ctx, in, info, handler)
}

func _RecordStore_Exists_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RecordStoreServer).Exists(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ServiceName + "/Exists"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(RecordStoreServer).Exists(ctx, req.(*wrapperspb.BytesValue))
	}
	return interceptor(ctx, in, info, handler)
}

func _RecordStore_Delete_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RecordStoreServer).Delete(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ServiceName + "/Delete"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(RecordStoreServer).Delete(ctx, req.(*wrapperspb.BytesValue))
	}
	return interceptor(ctx, in, info, handler)
}

func _RecordStore_Scan_Handler(srv interface{}, stream grpc.ServerStream) error {
	in := new(wrapperspb.BytesValue)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(RecordStoreServer).Scan(in, &recordStoreScanServer{stream})
}

// ServiceDesc is the grpc.ServiceDesc a protoc-gen-go-grpc _grpc.pb.go file
// would otherwise generate from a .proto service block.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*RecordStoreServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Save", Handler: _RecordStore_Save_Handler},
		{MethodName: "Read", Handler: _RecordStore_Read_Handler},
		{MethodName: "Exists", Handler: _RecordStore_Exists_Handler},
		{MethodName: "Delete", Handler: _RecordStore_Delete_Handler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "Scan", Handler: _RecordStore_Scan_Handler, ServerStreams: true},
	},
	Metadata: "recordsplit.proto",
}

// Server implements RecordStoreServer against a kvs.Store, running every
// call in its own auto-committed transaction.
type Server struct {
	store     kvs.Store
	writer    *recordstore.Writer
	reader    *recordstore.SingleKeyReader
	opts      recordstore.ReaderOptions
	rowCap    int
	byteCap   int64
	telemetry telemetry.Telemetry
}

// NewServer builds a Server backed by store, applying defaultOpts to
// every Save/Read/Delete/Scan call and bounding every Scan with
// defaultRowLimit/defaultByteLimit when a request doesn't override them.
// tel may be nil, in which case no span or telemetry counter is recorded
// for any call.
func NewServer(store kvs.Store, defaultOpts recordstore.ReaderOptions, defaultRowLimit int, defaultByteLimit int64, metrics stats.Collector, tel telemetry.Telemetry) *Server {
	writer := recordstore.NewWriterWithMetrics(metrics)
	reader := recordstore.NewSingleKeyReaderWithMetrics(defaultOpts, metrics)
	if tel != nil {
		writer = recordstore.NewWriterWithOptions(recordstore.WithTelemetry(tel))
		writer.Metrics = metrics
		reader.WithReaderTelemetry(tel)
	}
	return &Server{
		store:     store,
		writer:    writer,
		reader:    reader,
		opts:      defaultOpts,
		rowCap:    defaultRowLimit,
		byteCap:   defaultByteLimit,
		telemetry: tel,
	}
}

func toStatus(err error) error {
	if err == nil {
		return nil
	}
	return status.Error(codes.InvalidArgument, err.Error())
}

// Save unpacks a (prefix, value) pair and writes it, autocommitting.
func (s *Server) Save(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	fields, err := unpackFields(in.GetValue(), 2)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	prefix, payload := fields[0], fields[1]

	tx, err := s.store.BeginTransaction(ctx)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	result, err := s.writer.Save(ctx, tx, prefix, payload, recordstore.NoVersion, recordstore.SaveOptions{SplitLongRecords: s.opts.SplitLongRecords})
	if err != nil {
		return nil, toStatus(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	out := packFields(packInt64(result.Sizes.TotalBytes()), boolByte(result.Sizes.Split))
	return wrapperspb.Bytes(out), nil
}

// Read unpacks a prefix and returns the reassembled value, or an empty
// envelope with a false found flag.
func (s *Server) Read(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	prefix := in.GetValue()

	tx, err := s.store.BeginTransaction(ctx)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	rec, err := s.reader.Read(ctx, tx, prefix)
	if err != nil {
		return nil, toStatus(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	if rec == nil {
		return wrapperspb.Bytes(packFields(boolByte(false), nil)), nil
	}
	return wrapperspb.Bytes(packFields(boolByte(true), rec.Value)), nil
}

// Exists unpacks a prefix and reports whether a record is stored there.
func (s *Server) Exists(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	prefix := in.GetValue()

	tx, err := s.store.BeginTransaction(ctx)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	ok, err := s.reader.Exists(ctx, tx, prefix)
	if err != nil {
		return nil, toStatus(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return wrapperspb.Bytes(boolByte(ok)), nil
}

// Delete unpacks a prefix and removes whatever record is stored there.
func (s *Server) Delete(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	prefix := in.GetValue()

	tx, err := s.store.BeginTransaction(ctx)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	result, err := s.writer.Delete(ctx, tx, prefix, recordstore.DeleteOptions{SplitLongRecords: s.opts.SplitLongRecords})
	if err != nil {
		return nil, toStatus(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return wrapperspb.Bytes(boolByte(result.Existed)), nil
}

// Scan unpacks an optional prefix and streams every matching record to
// stream, bounded by the server's default row/byte budget unless the
// request carries its own (a zero value in either field falls back to
// the server default).
func (s *Server) Scan(in *wrapperspb.BytesValue, stream RecordStore_ScanServer) error {
	fields, err := unpackFields(in.GetValue(), 3)
	if err != nil {
		return status.Error(codes.InvalidArgument, err.Error())
	}
	prefix := fields[0]
	rowLimit := s.rowCap
	if n, err := unpackInt64(fields[1]); err == nil && n > 0 {
		rowLimit = int(n)
	}
	byteLimit := s.byteCap
	if n, err := unpackInt64(fields[2]); err == nil && n > 0 {
		byteLimit = n
	}

	ctx := stream.Context()
	tx, err := s.store.BeginTransaction(ctx)
	if err != nil {
		return status.Error(codes.Internal, err.Error())
	}

	begin := prefix
	end := recordstore.RangeEnd(prefix)
	cur := tx.GetRange(ctx, begin, end, false, -1)
	reader := recordstore.NewStreamingReader(tx, cur, s.opts, false, budget.New(rowLimit, byteLimit))
	if s.telemetry != nil {
		reader.WithStreamTelemetry(s.telemetry)
	}

	for {
		rec, err := reader.Next(ctx)
		if err != nil {
			return toStatus(err)
		}
		if rec == nil {
			break
		}
		if err := stream.Send(wrapperspb.Bytes(packFields(rec.Prefix, rec.Value))); err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
	}
	return tx.Commit(ctx)
}

var _ kvs.Store = (*memkv.Store)(nil)
