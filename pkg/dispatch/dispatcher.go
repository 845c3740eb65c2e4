package dispatch

import (
	"context"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/JoshuaRamirez/ACS-sub014/pkg/correlation"
	"github.com/JoshuaRamirez/ACS-sub014/pkg/errdefs"
	"github.com/JoshuaRamirez/ACS-sub014/pkg/events"
	"github.com/JoshuaRamirez/ACS-sub014/pkg/log"
	"github.com/JoshuaRamirez/ACS-sub014/pkg/manager"
	"github.com/JoshuaRamirez/ACS-sub014/pkg/metrics"
	"github.com/JoshuaRamirez/ACS-sub014/pkg/rpc"
	"github.com/JoshuaRamirez/ACS-sub014/pkg/types"
)

// Dispatcher routes commands from the gateway to tenant workers. It owns
// serialization of the command across the RPC boundary and the one retry
// the gateway performs when a worker's channel has gone stale.
type Dispatcher struct {
	registry *Registry
	manager  *manager.Manager
	channels *rpc.ChannelPool
	broker   *events.Broker
	deadline time.Duration
}

// NewDispatcher creates a dispatcher
func NewDispatcher(registry *Registry, mgr *manager.Manager, channels *rpc.ChannelPool, broker *events.Broker, deadline time.Duration) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		manager:  mgr,
		channels: channels,
		broker:   broker,
		deadline: deadline,
	}
}

// Registry exposes the command registry, for payload decoding at the HTTP edge
func (d *Dispatcher) Registry() *Registry {
	return d.registry
}

// Dispatch sends a command to the tenant's worker and decodes the result.
// Void commands return a nil result. A transport failure triggers a forced
// health check and exactly one retry before surfacing WorkerUnavailable.
func (d *Dispatcher) Dispatch(ctx context.Context, tenantID, typeID string, cmd interface{}) (interface{}, error) {
	if !d.registry.Known(typeID) {
		return nil, errdefs.New(errdefs.KindUnknownCommandType, "unknown command type %q", typeID)
	}

	payload, err := msgpack.Marshal(cmd)
	if err != nil {
		return nil, errdefs.Wrap(err, errdefs.KindBadCommandPayload,
			"failed to encode %s command", typeID)
	}

	corr := correlation.FromContext(ctx)
	env := &types.CommandEnvelope{
		CommandType:   typeID,
		CommandData:   payload,
		CorrelationID: corr.CorrelationID,
	}

	res, err := d.execute(ctx, tenantID, env)
	if err != nil && errdefs.KindOf(err) == errdefs.KindWorkerUnavailable {
		// The worker may have died since its channel was cached. Force a
		// health check so the manager retires it, then try once more
		// against a fresh worker.
		_ = d.manager.CheckHealth(ctx, tenantID)
		res, err = d.execute(ctx, tenantID, env)
	}
	if err != nil {
		metrics.CommandsDispatched.WithLabelValues(typeID, "error").Inc()
		return nil, errdefs.WithCorrelation(err, corr.CorrelationID)
	}

	if !res.Success {
		metrics.CommandsDispatched.WithLabelValues(typeID, "failure").Inc()
		d.broker.Publish(&events.Event{
			Type:          events.EventCommandFailed,
			TenantID:      tenantID,
			CorrelationID: corr.CorrelationID,
			Message:       res.ErrorMessage,
			Metadata:      map[string]string{"command_type": typeID},
		})
		return nil, errdefs.FromWire(res.ErrorKind, res.ErrorMessage, res.CorrelationID)
	}
	metrics.CommandsDispatched.WithLabelValues(typeID, "success").Inc()

	result, err := d.registry.NewResult(typeID)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, nil
	}
	if err := msgpack.Unmarshal(res.ResultData, result); err != nil {
		return nil, errdefs.Wrap(err, errdefs.KindInternal,
			"failed to decode %s result", typeID)
	}
	return result, nil
}

func (d *Dispatcher) execute(ctx context.Context, tenantID string, env *types.CommandEnvelope) (*types.CommandResult, error) {
	w, err := d.manager.GetOrStart(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	conn, err := d.channels.GetOrCreate(w.Endpoint())
	if err != nil {
		return nil, errdefs.Wrap(err, errdefs.KindWorkerUnavailable,
			"failed to reach worker for tenant %s", tenantID)
	}

	rpcCtx, cancel := context.WithTimeout(ctx, d.deadline)
	defer cancel()

	res, err := rpc.NewWorkerClient(conn).Execute(rpcCtx, env)
	if err != nil {
		logger := log.WithTenantID(tenantID)
		logger.Debug().
			Err(err).
			Str("command_type", env.CommandType).
			Msg("worker RPC failed")
		if ctx.Err() != nil {
			return nil, errdefs.Wrap(ctx.Err(), errdefs.KindCancelled, "command dispatch cancelled")
		}
		return nil, errdefs.Wrap(err, errdefs.KindWorkerUnavailable,
			"worker for tenant %s did not answer", tenantID)
	}
	return res, nil
}
