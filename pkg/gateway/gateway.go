package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/JoshuaRamirez/ACS-sub014/pkg/auth"
	"github.com/JoshuaRamirez/ACS-sub014/pkg/config"
	"github.com/JoshuaRamirez/ACS-sub014/pkg/correlation"
	"github.com/JoshuaRamirez/ACS-sub014/pkg/dispatch"
	"github.com/JoshuaRamirez/ACS-sub014/pkg/encryption"
	"github.com/JoshuaRamirez/ACS-sub014/pkg/errdefs"
	"github.com/JoshuaRamirez/ACS-sub014/pkg/events"
	"github.com/JoshuaRamirez/ACS-sub014/pkg/keystore"
	"github.com/JoshuaRamirez/ACS-sub014/pkg/log"
	"github.com/JoshuaRamirez/ACS-sub014/pkg/manager"
	"github.com/JoshuaRamirez/ACS-sub014/pkg/metrics"
	"github.com/JoshuaRamirez/ACS-sub014/pkg/registry"
	"github.com/JoshuaRamirez/ACS-sub014/pkg/resolver"
)

// Server is the HTTP gateway
type Server struct {
	cfg        *config.Config
	registry   *registry.Registry
	resolver   *resolver.Resolver
	dispatcher *dispatch.Dispatcher
	manager    *manager.Manager
	engine     *encryption.Engine
	store      *keystore.Store
	auth       *auth.Authenticator
	broker     *events.Broker
	limiter    *ipLimiter
	logger     zerolog.Logger

	router *mux.Router
	http   *http.Server
}

// Deps carries the collaborators the gateway routes requests to
type Deps struct {
	Config     *config.Config
	Registry   *registry.Registry
	Resolver   *resolver.Resolver
	Dispatcher *dispatch.Dispatcher
	Manager    *manager.Manager
	Engine     *encryption.Engine
	Keystore   *keystore.Store
	Auth       *auth.Authenticator
	Broker     *events.Broker
}

// New creates the gateway and wires its routes
func New(deps Deps) *Server {
	s := &Server{
		cfg:        deps.Config,
		registry:   deps.Registry,
		resolver:   deps.Resolver,
		dispatcher: deps.Dispatcher,
		manager:    deps.Manager,
		engine:     deps.Engine,
		store:      deps.Keystore,
		auth:       deps.Auth,
		broker:     deps.Broker,
		limiter:    newIPLimiter(deps.Config.RateLimit.RequestsPerSecond, deps.Config.RateLimit.Burst),
		logger:     log.WithComponent("gateway"),
	}
	s.router = s.routes()
	s.http = &http.Server{
		Addr:         deps.Config.Listen,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}
	return s
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.correlationMiddleware)
	r.Use(s.rateLimitMiddleware)
	r.Use(s.authMiddleware)
	r.Use(s.metricsMiddleware)

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	r.HandleFunc("/auth/login", s.handleLogin).Methods(http.MethodPost)
	r.HandleFunc("/auth/refresh", s.handleRefresh).Methods(http.MethodPost)

	r.HandleFunc("/commands", s.handleCommand).Methods(http.MethodPost)
	r.HandleFunc("/tenants/{tenant}/commands", s.handleCommand).Methods(http.MethodPost)

	r.HandleFunc("/tenants", s.handleListTenants).Methods(http.MethodGet)
	r.HandleFunc("/tenants", s.handleCreateTenant).Methods(http.MethodPost)
	r.HandleFunc("/tenants/{tenant}", s.handleGetTenant).Methods(http.MethodGet)
	r.HandleFunc("/tenants/{tenant}", s.handleUpdateTenant).Methods(http.MethodPut)
	r.HandleFunc("/tenants/{tenant}", s.handleDeleteTenant).Methods(http.MethodDelete)

	r.HandleFunc("/workers", s.handleListWorkers).Methods(http.MethodGet)
	r.HandleFunc("/workers/{tenant}", s.handleStopWorker).Methods(http.MethodDelete)

	r.HandleFunc("/tenants/{tenant}/keys", s.handleListKeys).Methods(http.MethodGet)
	r.HandleFunc("/tenants/{tenant}/keys/rotate", s.handleRotateKeys).Methods(http.MethodPost)
	r.HandleFunc("/tenants/{tenant}/keys/backup", s.handleBackupKeys).Methods(http.MethodPost)
	r.HandleFunc("/tenants/{tenant}/keys/restore", s.handleRestoreKeys).Methods(http.MethodPost)

	return r
}

// Start begins serving. It blocks until the listener fails or Shutdown is
// called.
func (s *Server) Start() error {
	s.logger.Info().Str("listen", s.cfg.Listen).Msg("gateway listening")
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests, then stops all workers
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.http.Shutdown(ctx)
	s.manager.Shutdown(ctx)
	return err
}

// Router exposes the handler tree, used by tests
func (s *Server) Router() http.Handler {
	return s.router
}

func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tmpl, err := route.GetPathTemplate(); err == nil {
			return tmpl
		}
	}
	return r.URL.Path
}

// errorBody is the uniform JSON error shape
type errorBody struct {
	Error         string `json:"error"`
	Message       string `json:"message"`
	CorrelationID string `json:"correlationId,omitempty"`
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	corr := correlation.FromContext(r.Context())
	err = errdefs.WithCorrelation(err, corr.CorrelationID)

	body := errorBody{
		Error:         string(errdefs.KindOf(err)),
		Message:       err.Error(),
		CorrelationID: errdefs.CorrelationOf(err),
	}
	s.writeJSON(w, errdefs.HTTPStatus(err), body)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		if err := json.NewEncoder(w).Encode(body); err != nil {
			s.logger.Error().Err(err).Msg("failed to encode response")
		}
	}
}
