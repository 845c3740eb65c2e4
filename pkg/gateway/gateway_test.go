package gateway

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/JoshuaRamirez/ACS-sub014/pkg/auth"
	"github.com/JoshuaRamirez/ACS-sub014/pkg/config"
	"github.com/JoshuaRamirez/ACS-sub014/pkg/correlation"
	"github.com/JoshuaRamirez/ACS-sub014/pkg/dispatch"
	"github.com/JoshuaRamirez/ACS-sub014/pkg/encryption"
	"github.com/JoshuaRamirez/ACS-sub014/pkg/events"
	"github.com/JoshuaRamirez/ACS-sub014/pkg/keystore"
	"github.com/JoshuaRamirez/ACS-sub014/pkg/manager"
	"github.com/JoshuaRamirez/ACS-sub014/pkg/registry"
	"github.com/JoshuaRamirez/ACS-sub014/pkg/resolver"
	"github.com/JoshuaRamirez/ACS-sub014/pkg/rpc"
	"github.com/JoshuaRamirez/ACS-sub014/pkg/types"
)

func testServer(t *testing.T) *Server {
	t.Helper()

	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	cfg.KeyDir = t.TempDir()
	cfg.JWTSecret = "test-secret"
	cfg.DevTenant = ""
	cfg.Accounts = []config.Account{
		{Username: "root", Password: "admin", Roles: []string{auth.RoleSystemAdministrator}},
		{Username: "alice", Password: "s3cret", TenantID: "acme", Roles: []string{"Operator"}},
	}

	reg, err := registry.Open(cfg.DataDir)
	if err != nil {
		t.Fatalf("registry.Open() error = %v", err)
	}
	t.Cleanup(func() { reg.Close() })
	for _, id := range []string{"acme", "globex"} {
		if err := reg.Add(&types.TenantDescriptor{TenantID: id, IsActive: true}); err != nil {
			t.Fatalf("Add(%s) error = %v", id, err)
		}
	}

	store, err := keystore.NewStore(cfg.KeyDir, make([]byte, 32))
	if err != nil {
		t.Fatalf("keystore.NewStore() error = %v", err)
	}
	engine := encryption.NewEngine(store)

	broker := events.NewBroker()
	broker.Start()
	t.Cleanup(broker.Stop)

	channels := rpc.NewChannelPool()
	mgr := manager.New("/nonexistent/acs-worker", nil, manager.NewPortPool(cfg.Ports.Min, cfg.Ports.Max), channels, broker, cfg.Timeouts)

	return New(Deps{
		Config:     cfg,
		Registry:   reg,
		Resolver:   resolver.New(reg, cfg.DevTenant),
		Dispatcher: dispatch.NewDispatcher(dispatch.DefaultRegistry(), mgr, channels, broker, cfg.Timeouts.RPCDeadline),
		Manager:    mgr,
		Engine:     engine,
		Keystore:   store,
		Auth:       auth.New(cfg.JWTSecret, cfg.Accounts),
		Broker:     broker,
	})
}

func do(t *testing.T, s *Server, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body != "" {
		reader = strings.NewReader(body)
	} else {
		reader = strings.NewReader("")
	}
	req := httptest.NewRequest(method, path, reader)
	req.RemoteAddr = "127.0.0.1:54321"
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func login(t *testing.T, s *Server, username, password string) string {
	t.Helper()
	rec := do(t, s, http.MethodPost, "/auth/login", "", `{"username":"`+username+`","password":"`+password+`"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("login as %s: status = %d, body = %s", username, rec.Code, rec.Body.String())
	}
	var pair auth.TokenPair
	if err := json.Unmarshal(rec.Body.Bytes(), &pair); err != nil {
		t.Fatalf("failed to decode token pair: %v", err)
	}
	return pair.AccessToken
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode error body %q: %v", rec.Body.String(), err)
	}
	return body
}

func TestHealthIsPublic(t *testing.T) {
	s := testServer(t)
	rec := do(t, s, http.MethodGet, "/health", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /health = %d, want 200", rec.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode health body: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("health status = %v, want ok", body["status"])
	}
	if body["tenants"] != float64(2) {
		t.Errorf("health tenants = %v, want 2", body["tenants"])
	}
}

func TestProtectedRouteRequiresToken(t *testing.T) {
	s := testServer(t)

	rec := do(t, s, http.MethodGet, "/tenants", "", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("GET /tenants without token = %d, want 401", rec.Code)
	}
	body := decodeError(t, rec)
	if body.Error != "Unauthenticated" {
		t.Errorf("error = %q, want Unauthenticated", body.Error)
	}
	if body.CorrelationID == "" {
		t.Error("error body missing correlationId")
	}

	rec = do(t, s, http.MethodGet, "/tenants", "not.a.token", "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("GET /tenants with garbage token = %d, want 401", rec.Code)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	s := testServer(t)
	rec := do(t, s, http.MethodPost, "/auth/login", "", `{"username":"root","password":"wrong"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("bad login = %d, want 401", rec.Code)
	}
}

func TestLoginAndListTenants(t *testing.T) {
	s := testServer(t)
	token := login(t, s, "root", "admin")

	rec := do(t, s, http.MethodGet, "/tenants", token, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /tenants = %d, body = %s", rec.Code, rec.Body.String())
	}
	var tenants []types.TenantDescriptor
	if err := json.Unmarshal(rec.Body.Bytes(), &tenants); err != nil {
		t.Fatalf("failed to decode tenant list: %v", err)
	}
	if len(tenants) != 2 {
		t.Errorf("tenants = %d, want 2", len(tenants))
	}
}

func TestRefreshFlow(t *testing.T) {
	s := testServer(t)
	rec := do(t, s, http.MethodPost, "/auth/login", "", `{"username":"alice","password":"s3cret"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("login = %d", rec.Code)
	}
	var pair auth.TokenPair
	if err := json.Unmarshal(rec.Body.Bytes(), &pair); err != nil {
		t.Fatalf("failed to decode token pair: %v", err)
	}

	rec = do(t, s, http.MethodPost, "/auth/refresh", "", `{"refreshToken":"`+pair.RefreshToken+`"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("refresh = %d, body = %s", rec.Code, rec.Body.String())
	}
}

func TestCorrelationHeaderEcho(t *testing.T) {
	s := testServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.RemoteAddr = "127.0.0.1:54321"
	req.Header.Set(correlation.HeaderCorrelationID, "corr-from-client")
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if got := rec.Header().Get(correlation.HeaderCorrelationID); got != "corr-from-client" {
		t.Errorf("correlation echo = %q, want corr-from-client", got)
	}

	// Without a client-supplied ID the gateway mints one
	rec = do(t, s, http.MethodGet, "/health", "", "")
	if rec.Header().Get(correlation.HeaderCorrelationID) == "" {
		t.Error("gateway did not mint a correlation id")
	}
}

func TestTenantLifecycle(t *testing.T) {
	s := testServer(t)
	token := login(t, s, "root", "admin")

	rec := do(t, s, http.MethodPost, "/tenants", token, `{"tenantId":"initech","displayName":"Initech","isActive":true}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create tenant = %d, body = %s", rec.Code, rec.Body.String())
	}

	// Creation provisions the first encryption key
	rec = do(t, s, http.MethodGet, "/tenants/initech/keys", token, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list keys = %d, body = %s", rec.Code, rec.Body.String())
	}
	var keys struct {
		Versions []string `json:"versions"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &keys); err != nil {
		t.Fatalf("failed to decode key versions: %v", err)
	}
	if len(keys.Versions) != 1 || keys.Versions[0] != "1" {
		t.Errorf("key versions after create = %v, want [1]", keys.Versions)
	}

	rec = do(t, s, http.MethodGet, "/tenants/initech", token, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get tenant = %d", rec.Code)
	}

	rec = do(t, s, http.MethodPut, "/tenants/initech", token, `{"displayName":"Initech Inc","isActive":true}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("update tenant = %d, body = %s", rec.Code, rec.Body.String())
	}

	rec = do(t, s, http.MethodDelete, "/tenants/initech", token, "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete tenant = %d, body = %s", rec.Code, rec.Body.String())
	}
	rec = do(t, s, http.MethodGet, "/tenants/initech", token, "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("get deleted tenant = %d, want 404", rec.Code)
	}
}

func TestCreateTenantRejectsBadID(t *testing.T) {
	s := testServer(t)
	token := login(t, s, "root", "admin")

	rec := do(t, s, http.MethodPost, "/tenants", token, `{"tenantId":"../etc"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("create tenant with traversal id = %d, want 400", rec.Code)
	}
}

func TestCommandUnknownType(t *testing.T) {
	s := testServer(t)
	token := login(t, s, "alice", "s3cret")

	req := httptest.NewRequest(http.MethodPost, "/commands", strings.NewReader(`{"type":"Explode","payload":{}}`))
	req.RemoteAddr = "127.0.0.1:54321"
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set(resolver.HeaderTenantID, "acme")
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown command = %d, body = %s", rec.Code, rec.Body.String())
	}
	if body := decodeError(t, rec); body.Error != "UnknownCommandType" {
		t.Errorf("error = %q, want UnknownCommandType", body.Error)
	}
}

func TestCommandCrossTenantDenied(t *testing.T) {
	s := testServer(t)
	token := login(t, s, "alice", "s3cret")

	req := httptest.NewRequest(http.MethodPost, "/commands", strings.NewReader(`{"type":"GetUsers"}`))
	req.RemoteAddr = "127.0.0.1:54321"
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set(resolver.HeaderTenantID, "globex")
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("cross-tenant command = %d, want 403", rec.Code)
	}
	if body := decodeError(t, rec); body.Error != "CrossTenantDenied" {
		t.Errorf("error = %q, want CrossTenantDenied", body.Error)
	}
}

func TestCommandUnknownTenant(t *testing.T) {
	s := testServer(t)
	token := login(t, s, "root", "admin")

	req := httptest.NewRequest(http.MethodPost, "/commands", strings.NewReader(`{"type":"GetUsers"}`))
	req.RemoteAddr = "127.0.0.1:54321"
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set(resolver.HeaderTenantID, "ghost")
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown tenant command = %d, want 404", rec.Code)
	}
}

func TestKeyRotation(t *testing.T) {
	s := testServer(t)
	token := login(t, s, "root", "admin")

	rec := do(t, s, http.MethodPost, "/tenants", token, `{"tenantId":"hooli","isActive":true}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create tenant = %d", rec.Code)
	}

	rec = do(t, s, http.MethodPost, "/tenants/hooli/keys/rotate", token, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("rotate = %d, body = %s", rec.Code, rec.Body.String())
	}
	var out map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("failed to decode rotate response: %v", err)
	}
	if out["version"] != "2" {
		t.Errorf("rotated version = %q, want 2", out["version"])
	}

	rec = do(t, s, http.MethodPost, "/tenants/hooli/keys/backup", token, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("backup = %d, body = %s", rec.Code, rec.Body.String())
	}
	rec = do(t, s, http.MethodPost, "/tenants/hooli/keys/restore", token, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("restore = %d, body = %s", rec.Code, rec.Body.String())
	}
}

func TestListWorkersEmpty(t *testing.T) {
	s := testServer(t)
	token := login(t, s, "root", "admin")

	rec := do(t, s, http.MethodGet, "/workers", token, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /workers = %d", rec.Code)
	}
	var workers []types.WorkerInfo
	if err := json.Unmarshal(rec.Body.Bytes(), &workers); err != nil {
		t.Fatalf("failed to decode workers: %v", err)
	}
	if len(workers) != 0 {
		t.Errorf("workers = %d, want 0", len(workers))
	}
}
