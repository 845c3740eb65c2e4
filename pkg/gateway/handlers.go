package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/JoshuaRamirez/ACS-sub014/pkg/correlation"
	"github.com/JoshuaRamirez/ACS-sub014/pkg/errdefs"
	"github.com/JoshuaRamirez/ACS-sub014/pkg/events"
	"github.com/JoshuaRamirez/ACS-sub014/pkg/metrics"
	"github.com/JoshuaRamirez/ACS-sub014/pkg/resolver"
	"github.com/JoshuaRamirez/ACS-sub014/pkg/types"
)

// commandRequest is the HTTP shape of a command submission
type commandRequest struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// commandResponse wraps a command result for HTTP
type commandResponse struct {
	Result        interface{} `json:"result,omitempty"`
	CorrelationID string      `json:"correlationId"`
}

// handleCommand resolves the tenant, authorizes the caller, and dispatches
// the command to the tenant's worker.
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())

	tenantID, err := s.resolver.Resolve(r, claims)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := resolver.Authorize(claims, tenantID); err != nil {
		s.writeError(w, r, err)
		return
	}

	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, errdefs.Wrap(err, errdefs.KindBadCommandPayload, "malformed request body"))
		return
	}
	cmd, err := s.dispatcher.Registry().DecodeJSON(req.Type, req.Payload)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	// The resolved tenant becomes part of the request's correlation snapshot;
	// the snapshot itself is immutable, so derive and re-install.
	corr := correlation.FromContext(r.Context()).WithTenant(tenantID)
	ctx := correlation.Install(r.Context(), corr)

	result, err := s.dispatcher.Dispatch(ctx, tenantID, req.Type, cmd)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, commandResponse{
		Result:        result,
		CorrelationID: corr.CorrelationID,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	workers := s.manager.List()
	healthy := 0
	for _, wi := range workers {
		if wi.IsHealthy {
			healthy++
		}
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "ok",
		"tenants":        len(s.registry.List()),
		"workers":        len(workers),
		"workersHealthy": healthy,
	})
}

// loginRequest is the /auth/login body
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, errdefs.Wrap(err, errdefs.KindBadCommandPayload, "malformed request body"))
		return
	}
	pair, err := s.auth.Login(req.Username, req.Password)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, pair)
}

// refreshRequest is the /auth/refresh body
type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, errdefs.Wrap(err, errdefs.KindBadCommandPayload, "malformed request body"))
		return
	}
	pair, err := s.auth.Refresh(req.RefreshToken)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, pair)
}

func (s *Server) handleListTenants(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.registry.List())
}

func (s *Server) handleCreateTenant(w http.ResponseWriter, r *http.Request) {
	var t types.TenantDescriptor
	if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
		s.writeError(w, r, errdefs.Wrap(err, errdefs.KindBadCommandPayload, "malformed request body"))
		return
	}
	if err := s.registry.Add(&t); err != nil {
		s.writeError(w, r, err)
		return
	}
	// Provision the tenant's first key so encryption works from the start
	if _, err := s.engine.GenerateTenantKey(t.TenantID); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.broker.Publish(&events.Event{
		Type:          events.EventTenantCreated,
		TenantID:      t.TenantID,
		CorrelationID: correlation.FromContext(r.Context()).CorrelationID,
		Message:       "tenant created",
	})
	s.writeJSON(w, http.StatusCreated, t)
}

func (s *Server) handleGetTenant(w http.ResponseWriter, r *http.Request) {
	t, err := s.registry.Get(mux.Vars(r)["tenant"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleUpdateTenant(w http.ResponseWriter, r *http.Request) {
	var t types.TenantDescriptor
	if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
		s.writeError(w, r, errdefs.Wrap(err, errdefs.KindBadCommandPayload, "malformed request body"))
		return
	}
	t.TenantID = mux.Vars(r)["tenant"]
	if err := s.registry.Update(&t); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleDeleteTenant(w http.ResponseWriter, r *http.Request) {
	tenantID := mux.Vars(r)["tenant"]
	if err := s.manager.StopTenant(tenantID); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.registry.Delete(tenantID); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.broker.Publish(&events.Event{
		Type:          events.EventTenantDeleted,
		TenantID:      tenantID,
		CorrelationID: correlation.FromContext(r.Context()).CorrelationID,
		Message:       "tenant deleted",
	})
	s.writeJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleListWorkers(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.manager.List())
}

func (s *Server) handleStopWorker(w http.ResponseWriter, r *http.Request) {
	if err := s.manager.StopTenant(mux.Vars(r)["tenant"]); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleListKeys(w http.ResponseWriter, r *http.Request) {
	versions, err := s.store.ListVersions(mux.Vars(r)["tenant"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"versions": versions})
}

func (s *Server) handleRotateKeys(w http.ResponseWriter, r *http.Request) {
	tenantID := mux.Vars(r)["tenant"]
	version, err := s.engine.RotateKeys(tenantID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	metrics.KeyRotationsTotal.Inc()
	s.broker.Publish(&events.Event{
		Type:          events.EventKeyRotated,
		TenantID:      tenantID,
		CorrelationID: correlation.FromContext(r.Context()).CorrelationID,
		Message:       "encryption key rotated",
		Metadata:      map[string]string{"version": version},
	})
	s.writeJSON(w, http.StatusOK, map[string]string{"version": version})
}

func (s *Server) handleBackupKeys(w http.ResponseWriter, r *http.Request) {
	dir, err := s.store.Backup(mux.Vars(r)["tenant"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"backup": dir})
}

func (s *Server) handleRestoreKeys(w http.ResponseWriter, r *http.Request) {
	tenantID := mux.Vars(r)["tenant"]
	if err := s.store.Restore(tenantID); err != nil {
		s.writeError(w, r, err)
		return
	}
	// Cached keys may now be stale
	s.engine.InvalidateTenant(tenantID)
	s.broker.Publish(&events.Event{
		Type:          events.EventKeyRestored,
		TenantID:      tenantID,
		CorrelationID: correlation.FromContext(r.Context()).CorrelationID,
		Message:       "encryption keys restored from backup",
	})
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "restored"})
}
