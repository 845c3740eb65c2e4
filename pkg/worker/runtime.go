package worker

import (
	"context"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"google.golang.org/grpc"

	"github.com/JoshuaRamirez/ACS-sub014/pkg/buffer"
	"github.com/JoshuaRamirez/ACS-sub014/pkg/correlation"
	"github.com/JoshuaRamirez/ACS-sub014/pkg/encryption"
	"github.com/JoshuaRamirez/ACS-sub014/pkg/errdefs"
	"github.com/JoshuaRamirez/ACS-sub014/pkg/graph"
	"github.com/JoshuaRamirez/ACS-sub014/pkg/log"
	"github.com/JoshuaRamirez/ACS-sub014/pkg/rpc"
	"github.com/JoshuaRamirez/ACS-sub014/pkg/types"
)

// Options configures a worker runtime
type Options struct {
	TenantID       string
	Port           int
	Engine         *encryption.Engine
	BufferSize     int
	EnqueueTimeout time.Duration
}

// Runtime is one tenant's worker process state
type Runtime struct {
	tenantID  string
	port      int
	graph     *graph.Graph
	engine    *encryption.Engine
	buf       *buffer.Buffer
	handlers  map[string]handlerFunc
	startedAt time.Time

	server *grpc.Server
	active int64
}

// NewRuntime creates a worker runtime for one tenant
func NewRuntime(opts Options) *Runtime {
	r := &Runtime{
		tenantID:  opts.TenantID,
		port:      opts.Port,
		graph:     graph.New(opts.TenantID),
		engine:    opts.Engine,
		buf:       buffer.New(opts.BufferSize, opts.EnqueueTimeout),
		startedAt: time.Now().UTC(),
	}
	r.handlers = r.handlerTable()
	return r
}

// Execute runs one command through the buffer. Domain failures are reported
// inside the CommandResult, never as RPC errors.
func (r *Runtime) Execute(ctx context.Context, env *types.CommandEnvelope) (*types.CommandResult, error) {
	atomic.AddInt64(&r.active, 1)
	defer atomic.AddInt64(&r.active, -1)

	corr := correlation.FromContext(ctx)
	if env.CorrelationID != "" {
		corr.CorrelationID = env.CorrelationID
	}
	corr.TenantID = r.tenantID
	ctx = correlation.Install(ctx, corr)

	h, ok := r.handlers[env.CommandType]
	if !ok {
		return failure(env, errdefs.New(errdefs.KindUnknownCommandType,
			"unknown command type %q", env.CommandType)), nil
	}

	completion, err := r.buf.Enqueue(ctx, env.CommandType, func(taskCtx context.Context) ([]byte, error) {
		return h(taskCtx, env.CommandData)
	})
	if err != nil {
		return failure(env, err), nil
	}

	data, err := completion.Await(ctx)
	if err != nil {
		return failure(env, err), nil
	}
	return &types.CommandResult{
		Success:       true,
		ResultData:    data,
		CorrelationID: env.CorrelationID,
	}, nil
}

// Health reports the worker's self-assessed health
func (r *Runtime) Health(ctx context.Context, _ *types.HealthRequest) (*types.HealthStatus, error) {
	stats := r.buf.Stats()
	return &types.HealthStatus{
		Healthy:           true,
		UptimeSeconds:     int64(time.Since(r.startedAt).Seconds()),
		ActiveConnections: int32(atomic.LoadInt64(&r.active)),
		CommandsProcessed: stats.CommandsProcessed,
	}, nil
}

func failure(env *types.CommandEnvelope, err error) *types.CommandResult {
	return &types.CommandResult{
		Success:       false,
		ErrorMessage:  err.Error(),
		ErrorKind:     string(errdefs.KindOf(err)),
		CorrelationID: env.CorrelationID,
	}
}

// Start launches the command buffer consumer. Serve calls it; tests that
// drive Execute directly call it themselves.
func (r *Runtime) Start() {
	r.buf.Start()
}

// Serve starts the buffer consumer and the RPC server, blocking until the
// listener fails or Stop is called.
func (r *Runtime) Serve() error {
	addr := fmt.Sprintf("127.0.0.1:%d", r.port)
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	r.Start()
	r.server = grpc.NewServer()
	rpc.RegisterWorkerServer(r.server, r)

	logger := log.WithWorker(r.tenantID, r.port)
	logger.Info().Msg("worker serving")
	return r.server.Serve(lis)
}

// Stop drains the RPC server and the command buffer. The grace period
// bounds how long in-flight RPCs may take to finish.
func (r *Runtime) Stop(grace time.Duration) {
	if r.server != nil {
		done := make(chan struct{})
		go func() {
			r.server.GracefulStop()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(grace):
			logger := log.WithWorker(r.tenantID, r.port)
			logger.Warn().Msg("graceful stop timed out, forcing")
			r.server.Stop()
		}
	}
	r.buf.Stop()
}
