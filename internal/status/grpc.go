package status

import (
	"Go2Mgen/internal/mgenerr"
	"context"
	"errors"
	"log"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the gRPC service the status view is served as. Messages are
// the well-known Empty and Struct types, so clients need no generated code.
const ServiceName = "mgen.status.v1.Status"

const (
	methodGetSession = "/" + ServiceName + "/GetSession"
	methodListFlows  = "/" + ServiceName + "/ListFlows"
	methodGetFlow    = "/" + ServiceName + "/GetFlow"
)

// StatusServer is the gRPC face of the status view.
type StatusServer interface {
	GetSession(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	ListFlows(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	// GetFlow expects a Struct with a numeric "id" field.
	GetFlow(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// statusServiceDesc is written the way protoc-gen-go-grpc would emit it.
var statusServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*StatusServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetSession", Handler: unaryHandler(methodGetSession, StatusServer.GetSession)},
		{MethodName: "ListFlows", Handler: unaryHandler(methodListFlows, StatusServer.ListFlows)},
		{MethodName: "GetFlow", Handler: unaryHandler(methodGetFlow, StatusServer.GetFlow)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "mgen/status/v1/status.proto",
}

type methodHandler = func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error)

func unaryHandler[Req any, PReq interface {
	*Req
}](fullMethod string, call func(StatusServer, context.Context, PReq) (*structpb.Struct, error)) methodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := PReq(new(Req))
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(StatusServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(StatusServer), ctx, req.(PReq))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// RegisterStatusServer registers srv on s.
func RegisterStatusServer(s grpc.ServiceRegistrar, srv StatusServer) {
	s.RegisterService(&statusServiceDesc, srv)
}

// GRPCService serves a Source over gRPC.
type GRPCService struct {
	source Source
}

// NewGRPCService wraps source.
func NewGRPCService(source Source) *GRPCService {
	return &GRPCService{source: source}
}

func (s *GRPCService) GetSession(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	return structpb.NewStruct(sessionValue(s.source))
}

func (s *GRPCService) ListFlows(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	return structpb.NewStruct(flowsValue(s.source))
}

func (s *GRPCService) GetFlow(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	v, ok := req.GetFields()["id"]
	if !ok {
		return nil, grpcstatus.Error(codes.InvalidArgument, "missing flow id")
	}
	num, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok || num.NumberValue != float64(int(num.NumberValue)) {
		return nil, grpcstatus.Error(codes.InvalidArgument, "flow id must be an integer")
	}
	f, err := s.source.GetFlow(int(num.NumberValue))
	if errors.Is(err, mgenerr.ErrNotFound) {
		return nil, grpcstatus.Error(codes.NotFound, err.Error())
	}
	if err != nil {
		return nil, grpcstatus.Error(codes.Internal, err.Error())
	}
	return structpb.NewStruct(flowValue(f))
}

// GRPCServer runs the gRPC status service until Shutdown.
type GRPCServer struct {
	addr   string
	server *grpc.Server
}

// NewGRPCServer creates a gRPC status server listening on addr.
func NewGRPCServer(addr string, source Source) *GRPCServer {
	s := grpc.NewServer()
	RegisterStatusServer(s, NewGRPCService(source))
	return &GRPCServer{addr: addr, server: s}
}

// Start listens and serves in the background.
func (s *GRPCServer) Start() error {
	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	go func() {
		log.Printf("gRPC status server starting on %s", s.addr)
		if err := s.server.Serve(lis); err != nil {
			log.Printf("gRPC status server on %s failed: %v", s.addr, err)
		}
	}()
	return nil
}

// Shutdown waits for in-flight calls to finish.
func (s *GRPCServer) Shutdown() {
	s.server.GracefulStop()
}

// StatusClient calls the status service on a connection.
type StatusClient struct {
	cc grpc.ClientConnInterface
}

// NewStatusClient wraps cc.
func NewStatusClient(cc grpc.ClientConnInterface) *StatusClient {
	return &StatusClient{cc: cc}
}

func (c *StatusClient) GetSession(ctx context.Context) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, methodGetSession, &emptypb.Empty{}, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *StatusClient) ListFlows(ctx context.Context) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, methodListFlows, &emptypb.Empty{}, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *StatusClient) GetFlow(ctx context.Context, id int) (*structpb.Struct, error) {
	req, err := structpb.NewStruct(map[string]any{"id": id})
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, methodGetFlow, req, out); err != nil {
		return nil, err
	}
	return out, nil
}
