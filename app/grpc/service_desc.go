package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name declared in
// proto/transactions.proto. Requests and responses are google.protobuf.Struct
// documents with the same JSON shapes as the HTTP API.
const ServiceName = "transactions.TransactionsService"

type TransactionsServiceServer interface {
	Health(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Initiate(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Verify(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Inquire(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	GetSession(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ListSessions(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

type unaryMethod func(TransactionsServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

var TransactionsServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*TransactionsServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Health", Handler: unaryHandler("Health", TransactionsServiceServer.Health)},
		{MethodName: "Initiate", Handler: unaryHandler("Initiate", TransactionsServiceServer.Initiate)},
		{MethodName: "Verify", Handler: unaryHandler("Verify", TransactionsServiceServer.Verify)},
		{MethodName: "Inquire", Handler: unaryHandler("Inquire", TransactionsServiceServer.Inquire)},
		{MethodName: "GetSession", Handler: unaryHandler("GetSession", TransactionsServiceServer.GetSession)},
		{MethodName: "ListSessions", Handler: unaryHandler("ListSessions", TransactionsServiceServer.ListSessions)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "proto/transactions.proto",
}

func RegisterTransactionsServiceServer(s grpc.ServiceRegistrar, srv TransactionsServiceServer) {
	s.RegisterService(&TransactionsServiceDesc, srv)
}

func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

func unaryHandler(method string, call unaryMethod) grpc.MethodHandler {
	fullMethod := FullMethod(method)
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		server := srv.(TransactionsServiceServer)
		if interceptor == nil {
			return call(server, ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(server, ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// TransactionsServiceClient calls TransactionsService over a client connection.
type TransactionsServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewTransactionsServiceClient(cc grpc.ClientConnInterface) *TransactionsServiceClient {
	return &TransactionsServiceClient{cc: cc}
}

func (c *TransactionsServiceClient) Call(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, FullMethod(method), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
