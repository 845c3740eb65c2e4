package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Gateway metrics
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "acs_http_requests_total",
			Help: "Total number of HTTP requests by method, route, status and tenant",
		},
		[]string{"method", "route", "status", "tenant"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "acs_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	SlowRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "acs_http_slow_requests_total",
			Help: "Total number of HTTP requests slower than one second",
		},
		[]string{"route", "tenant"},
	)

	// Worker lifecycle metrics
	WorkersRunning = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "acs_workers_running",
			Help: "Number of tenant worker processes currently running",
		},
	)

	WorkerStartsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "acs_worker_starts_total",
			Help: "Total number of worker starts by outcome",
		},
		[]string{"outcome"},
	)

	PortsInUse = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "acs_ports_in_use",
			Help: "Number of ports currently allocated from the pool",
		},
	)

	// Command metrics
	CommandsDispatched = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "acs_commands_dispatched_total",
			Help: "Total number of commands dispatched to workers by type and outcome",
		},
		[]string{"command_type", "outcome"},
	)

	CommandsProcessed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "acs_commands_processed_total",
			Help: "Total number of commands processed by this worker",
		},
	)

	CommandQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "acs_command_queue_depth",
			Help: "Current depth of the worker command buffer",
		},
	)

	CommandDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "acs_command_duration_seconds",
			Help:    "Command handler execution duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"command_type"},
	)

	// Encryption metrics
	KeyRotationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "acs_key_rotations_total",
			Help: "Total number of tenant key rotations",
		},
	)
)

func init() {
	prometheus.MustRegister(HTTPRequestsTotal)
	prometheus.MustRegister(HTTPRequestDuration)
	prometheus.MustRegister(SlowRequestsTotal)
	prometheus.MustRegister(WorkersRunning)
	prometheus.MustRegister(WorkerStartsTotal)
	prometheus.MustRegister(PortsInUse)
	prometheus.MustRegister(CommandsDispatched)
	prometheus.MustRegister(CommandsProcessed)
	prometheus.MustRegister(CommandQueueDepth)
	prometheus.MustRegister(CommandDuration)
	prometheus.MustRegister(KeyRotationsTotal)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
