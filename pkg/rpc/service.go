package rpc

import (
	"context"

	"google.golang.org/grpc"

	"github.com/JoshuaRamirez/ACS-sub014/pkg/types"
)

// Full method names for the tenant worker service
const (
	ServiceName   = "acs.TenantWorker"
	MethodExecute = "/acs.TenantWorker/Execute"
	MethodHealth  = "/acs.TenantWorker/Health"
)

// WorkerServer is implemented by the worker-side RPC handler
type WorkerServer interface {
	Execute(ctx context.Context, env *types.CommandEnvelope) (*types.CommandResult, error)
	Health(ctx context.Context, req *types.HealthRequest) (*types.HealthStatus, error)
}

// RegisterWorkerServer registers srv on a gRPC server
func RegisterWorkerServer(s *grpc.Server, srv WorkerServer) {
	s.RegisterService(&workerServiceDesc, srv)
}

// workerServiceDesc is written by hand: the service has two unary methods
// with msgpack-encoded messages, so generated protobuf stubs would add a
// build step for no benefit.
var workerServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*WorkerServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Execute",
			Handler:    executeHandler,
		},
		{
			MethodName: "Health",
			Handler:    healthHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "acs/tenantworker",
}

func executeHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(types.CommandEnvelope)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(WorkerServer).Execute(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: MethodExecute,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(WorkerServer).Execute(ctx, req.(*types.CommandEnvelope))
	}
	return interceptor(ctx, in, info, handler)
}

func healthHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(types.HealthRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(WorkerServer).Health(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: MethodHealth,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(WorkerServer).Health(ctx, req.(*types.HealthRequest))
	}
	return interceptor(ctx, in, info, handler)
}
