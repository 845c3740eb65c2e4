package manager

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/JoshuaRamirez/ACS-sub014/pkg/config"
	"github.com/JoshuaRamirez/ACS-sub014/pkg/errdefs"
	"github.com/JoshuaRamirez/ACS-sub014/pkg/events"
	"github.com/JoshuaRamirez/ACS-sub014/pkg/log"
	"github.com/JoshuaRamirez/ACS-sub014/pkg/metrics"
	"github.com/JoshuaRamirez/ACS-sub014/pkg/rpc"
	"github.com/JoshuaRamirez/ACS-sub014/pkg/types"
)

// Environment variables passed to worker subprocesses. The command-line
// flags carry the same values; the env form survives exec wrappers.
const (
	EnvTenantID = "TENANT_ID"
	EnvRPCPort  = "RPC_PORT"
)

var healthPollInterval = time.Second

// livenessWindow is how old a health observation may be before a worker
// handed out by GetOrStart is re-probed in the background.
const livenessWindow = 30 * time.Second

// shutdownConcurrency bounds how many workers are stopped in parallel
const shutdownConcurrency = 4

// Worker tracks one tenant's subprocess
type Worker struct {
	TenantID  string
	Port      int
	PID       int
	State     types.WorkerState
	StartedAt time.Time
	LastProbe time.Time

	cmd         *exec.Cmd
	ready       chan struct{} // closed when startup resolves, success or failure
	done        chan struct{} // closed after the subprocess is reaped
	err         error         // startup error, written before ready closes
	healthyOnce bool
	released    bool
}

// Endpoint returns the worker's RPC address
func (w *Worker) Endpoint() string {
	return fmt.Sprintf("127.0.0.1:%d", w.Port)
}

// Info returns the externally visible view of the worker
func (w *Worker) Info() types.WorkerInfo {
	return types.WorkerInfo{
		TenantID:        w.TenantID,
		Port:            w.Port,
		Endpoint:        w.Endpoint(),
		State:           w.State,
		PID:             w.PID,
		StartTime:       w.StartedAt,
		IsHealthy:       w.State == types.WorkerStateHealthy,
		LastHealthCheck: w.LastProbe,
	}
}

// Manager starts, monitors, and stops tenant worker subprocesses. Workers
// are started lazily: the first command dispatched to a tenant spawns its
// worker, and a dead or degraded worker is replaced on the next dispatch.
type Manager struct {
	binary   string
	extraEnv []string
	pool     *PortPool
	channels *rpc.ChannelPool
	broker   *events.Broker
	timeouts config.Timeouts
	logger   zerolog.Logger
	prober   func(*Worker) error

	mu      sync.Mutex
	workers map[string]*Worker
}

// New creates a manager. binary is the executable spawned for workers; empty
// selects the current executable. extraEnv entries (KEY=value) are appended
// to every worker's environment, on top of the gateway's own.
func New(binary string, extraEnv []string, pool *PortPool, channels *rpc.ChannelPool, broker *events.Broker, timeouts config.Timeouts) *Manager {
	if binary == "" {
		binary = os.Args[0]
	}
	m := &Manager{
		binary:   binary,
		extraEnv: extraEnv,
		pool:     pool,
		channels: channels,
		broker:   broker,
		timeouts: timeouts,
		logger:   log.WithComponent("worker-manager"),
		workers:  make(map[string]*Worker),
	}
	m.prober = m.probe
	return m
}

// GetOrStart returns the healthy worker for tenantID, starting one if none
// is running. Concurrent callers for the same tenant share one startup.
func (m *Manager) GetOrStart(ctx context.Context, tenantID string) (*Worker, error) {
	for {
		m.mu.Lock()
		w, ok := m.workers[tenantID]
		if ok && (w.State == types.WorkerStateStarting || w.State == types.WorkerStateHealthy) {
			stale := w.State == types.WorkerStateHealthy &&
				time.Since(w.LastProbe) > livenessWindow
			m.mu.Unlock()
			if stale {
				// Best-effort re-check; a failure marks the worker degraded
				// so the next dispatch replaces it.
				go m.refreshHealth(w)
			}
			return m.awaitStartup(ctx, w)
		}
		if ok {
			// Degraded worker: retire it and start fresh
			w.State = types.WorkerStateStopped
			delete(m.workers, tenantID)
			m.mu.Unlock()
			go m.stopProcess(w, false)
			continue
		}

		port, err := m.pool.Allocate()
		if err != nil {
			m.mu.Unlock()
			return nil, err
		}
		w = &Worker{
			TenantID:  tenantID,
			Port:      port,
			State:     types.WorkerStateStarting,
			StartedAt: time.Now().UTC(),
			ready:     make(chan struct{}),
			done:      make(chan struct{}),
		}
		m.workers[tenantID] = w
		m.mu.Unlock()

		go m.start(w)
		return m.awaitStartup(ctx, w)
	}
}

func (m *Manager) awaitStartup(ctx context.Context, w *Worker) (*Worker, error) {
	select {
	case <-w.ready:
		if w.err != nil {
			return nil, w.err
		}
		return w, nil
	case <-ctx.Done():
		return nil, errdefs.Wrap(ctx.Err(), errdefs.KindCancelled,
			"gave up waiting for worker %s to start", w.TenantID)
	}
}

// start spawns the subprocess and polls its health endpoint until it reports
// healthy or the startup timeout elapses.
func (m *Manager) start(w *Worker) {
	defer close(w.ready)

	logger := log.WithWorker(w.TenantID, w.Port)
	logger.Info().Str("binary", m.binary).Msg("starting tenant worker")

	cmd := exec.Command(m.binary, "worker",
		"--tenant", w.TenantID,
		"--port", fmt.Sprintf("%d", w.Port),
	)
	cmd.Env = append(os.Environ(), m.extraEnv...)
	cmd.Env = append(cmd.Env,
		fmt.Sprintf("%s=%s", EnvTenantID, w.TenantID),
		fmt.Sprintf("%s=%d", EnvRPCPort, w.Port),
	)
	cmd.Stdout = &logWriter{logger: logger, level: zerolog.InfoLevel}
	cmd.Stderr = &logWriter{logger: logger, level: zerolog.ErrorLevel}

	if err := cmd.Start(); err != nil {
		w.err = errdefs.Wrap(err, errdefs.KindWorkerUnavailable,
			"failed to spawn worker for tenant %s", w.TenantID)
		m.retire(w)
		metrics.WorkerStartsTotal.WithLabelValues("failure").Inc()
		logger.Error().Err(err).Msg("failed to spawn tenant worker")
		return
	}
	w.cmd = cmd
	w.PID = cmd.Process.Pid
	go m.monitor(w)

	if err := m.waitForHealthy(w); err != nil {
		w.err = err
		m.mu.Lock()
		w.State = types.WorkerStateStopped
		m.mu.Unlock()
		m.stopProcess(w, false)
		metrics.WorkerStartsTotal.WithLabelValues("failure").Inc()
		logger.Error().Err(err).Msg("tenant worker failed to become healthy")
		return
	}

	m.mu.Lock()
	w.State = types.WorkerStateHealthy
	w.healthyOnce = true
	w.LastProbe = time.Now().UTC()
	m.mu.Unlock()

	metrics.WorkersRunning.Inc()
	metrics.WorkerStartsTotal.WithLabelValues("success").Inc()
	m.broker.Publish(&events.Event{
		Type:     events.EventWorkerStarted,
		TenantID: w.TenantID,
		Message:  fmt.Sprintf("worker started on port %d", w.Port),
		Metadata: map[string]string{"pid": fmt.Sprintf("%d", w.PID)},
	})
	logger.Info().Int("pid", w.PID).Msg("tenant worker healthy")
}

func (m *Manager) waitForHealthy(w *Worker) error {
	timeout := time.NewTimer(m.timeouts.StartupTimeout)
	defer timeout.Stop()
	ticker := time.NewTicker(healthPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := m.prober(w); err == nil {
				return nil
			}
		case <-w.done:
			return errdefs.New(errdefs.KindWorkerUnavailable,
				"worker for tenant %s exited during startup", w.TenantID)
		case <-timeout.C:
			return errdefs.New(errdefs.KindWorkerStartupTimeout,
				"worker for tenant %s did not become healthy within %s",
				w.TenantID, m.timeouts.StartupTimeout)
		}
	}
}

// probe performs one health RPC against the worker
func (m *Manager) probe(w *Worker) error {
	conn, err := m.channels.GetOrCreate(w.Endpoint())
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), m.timeouts.HealthProbe)
	defer cancel()

	status, err := rpc.NewWorkerClient(conn).Health(ctx, &types.HealthRequest{})
	if err != nil {
		return err
	}
	if !status.Healthy {
		return fmt.Errorf("worker %s reports unhealthy", w.TenantID)
	}
	return nil
}

// CheckHealth force-probes a tenant's worker. On failure the worker is
// marked degraded so the next dispatch replaces it.
func (m *Manager) CheckHealth(ctx context.Context, tenantID string) error {
	m.mu.Lock()
	w, ok := m.workers[tenantID]
	m.mu.Unlock()
	if !ok {
		return errdefs.New(errdefs.KindWorkerUnavailable, "no worker for tenant %s", tenantID)
	}

	err := m.refreshHealth(w)
	if err != nil {
		m.broker.Publish(&events.Event{
			Type:     events.EventWorkerUnhealthy,
			TenantID: tenantID,
			Message:  err.Error(),
		})
		return errdefs.Wrap(err, errdefs.KindWorkerUnavailable,
			"worker for tenant %s failed health check", tenantID)
	}
	return nil
}

// refreshHealth probes a worker and records the observation. A failed probe
// demotes a healthy worker to degraded.
func (m *Manager) refreshHealth(w *Worker) error {
	err := m.prober(w)

	m.mu.Lock()
	w.LastProbe = time.Now().UTC()
	if err != nil && w.State == types.WorkerStateHealthy {
		w.State = types.WorkerStateDegraded
	}
	m.mu.Unlock()
	return err
}

// monitor reaps the subprocess. It is the single place ports and channels
// are released for workers whose process ever started.
func (m *Manager) monitor(w *Worker) {
	err := w.cmd.Wait()
	close(w.done)

	m.mu.Lock()
	expected := w.State == types.WorkerStateStopped
	w.State = types.WorkerStateStopped
	wasHealthy := w.healthyOnce
	m.releaseLocked(w)
	if m.workers[w.TenantID] == w {
		delete(m.workers, w.TenantID)
	}
	m.mu.Unlock()

	if wasHealthy {
		metrics.WorkersRunning.Dec()
	}
	if expected {
		return
	}
	logger := log.WithWorker(w.TenantID, w.Port)
	logger.Warn().Err(err).Msg("tenant worker exited unexpectedly")
	m.broker.Publish(&events.Event{
		Type:     events.EventWorkerUnhealthy,
		TenantID: w.TenantID,
		Message:  "worker process exited unexpectedly",
	})
}

// StopTenant gracefully stops a tenant's worker. Stopping an absent worker
// is a no-op.
func (m *Manager) StopTenant(tenantID string) error {
	m.mu.Lock()
	w, ok := m.workers[tenantID]
	if ok {
		w.State = types.WorkerStateStopped
		delete(m.workers, tenantID)
	}
	m.mu.Unlock()
	if !ok {
		return nil
	}

	m.stopProcess(w, true)
	m.broker.Publish(&events.Event{
		Type:     events.EventWorkerStopped,
		TenantID: tenantID,
		Message:  "worker stopped",
	})
	return nil
}

// stopProcess terminates the subprocess: SIGTERM, a grace period, then
// SIGKILL. It returns once the monitor goroutine has reaped the process.
func (m *Manager) stopProcess(w *Worker, graceful bool) {
	if w.cmd == nil || w.cmd.Process == nil {
		m.retire(w)
		return
	}
	if graceful {
		if err := w.cmd.Process.Signal(syscall.SIGTERM); err == nil {
			select {
			case <-w.done:
				return
			case <-time.After(m.timeouts.GracefulStop):
				logger := log.WithWorker(w.TenantID, w.Port)
				logger.Warn().Msg("worker ignored SIGTERM, killing")
			}
		}
	}
	_ = w.cmd.Process.Kill()
	<-w.done
}

// retire releases resources for a worker whose process never started
func (m *Manager) retire(w *Worker) {
	m.mu.Lock()
	w.State = types.WorkerStateStopped
	m.releaseLocked(w)
	if m.workers[w.TenantID] == w {
		delete(m.workers, w.TenantID)
	}
	m.mu.Unlock()
}

// releaseLocked returns the worker's port and drops its RPC channel. Safe to
// call more than once.
func (m *Manager) releaseLocked(w *Worker) {
	if w.released {
		return
	}
	w.released = true
	m.pool.Release(w.Port)
	m.channels.Remove(w.Endpoint())
}

// List returns the current view of all workers
func (m *Manager) List() []types.WorkerInfo {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]types.WorkerInfo, 0, len(m.workers))
	for _, w := range m.workers {
		out = append(out, w.Info())
	}
	return out
}

// Shutdown stops all workers with bounded concurrency
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	tenants := make([]string, 0, len(m.workers))
	for id := range m.workers {
		tenants = append(tenants, id)
	}
	m.mu.Unlock()

	sem := make(chan struct{}, shutdownConcurrency)
	var wg sync.WaitGroup
	for _, id := range tenants {
		wg.Add(1)
		sem <- struct{}{}
		go func(tenantID string) {
			defer wg.Done()
			defer func() { <-sem }()
			if err := m.StopTenant(tenantID); err != nil {
				m.logger.Error().Err(err).Str("tenant_id", tenantID).Msg("failed to stop worker")
			}
		}(id)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		m.logger.Warn().Msg("shutdown deadline reached with workers still stopping")
	}
	m.channels.CloseAll()
}
