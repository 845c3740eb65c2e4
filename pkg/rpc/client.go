package rpc

import (
	"context"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/JoshuaRamirez/ACS-sub014/pkg/types"
)

// WorkerClient is a typed client for the acs.TenantWorker service
type WorkerClient struct {
	cc *grpc.ClientConn
}

// NewWorkerClient wraps an existing connection
func NewWorkerClient(cc *grpc.ClientConn) *WorkerClient {
	return &WorkerClient{cc: cc}
}

// Execute sends a command envelope to the worker
func (c *WorkerClient) Execute(ctx context.Context, env *types.CommandEnvelope) (*types.CommandResult, error) {
	out := new(types.CommandResult)
	if err := c.cc.Invoke(ctx, MethodExecute, env, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Health probes the worker's health endpoint
func (c *WorkerClient) Health(ctx context.Context, req *types.HealthRequest) (*types.HealthStatus, error) {
	out := new(types.HealthStatus)
	if err := c.cc.Invoke(ctx, MethodHealth, req, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Dial opens a connection to a worker endpoint. Workers listen on loopback
// only, so plaintext transport is acceptable here.
func Dial(endpoint string) (*grpc.ClientConn, error) {
	return grpc.NewClient(dialTarget(endpoint),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(CodecName)),
	)
}

// dialTarget strips the http:// scheme catalog entries carry
func dialTarget(endpoint string) string {
	return strings.TrimPrefix(endpoint, "http://")
}
