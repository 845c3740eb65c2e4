package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/JoshuaRamirez/ACS-sub014/pkg/auth"
	"github.com/JoshuaRamirez/ACS-sub014/pkg/errdefs"
	"github.com/JoshuaRamirez/ACS-sub014/pkg/types"
)

const requestTimeout = 10 * time.Second

// Client wraps the gateway REST API for easy CLI usage
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// New creates an unauthenticated client. Call Login before using endpoints
// that require a token.
func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: requestTimeout},
	}
}

// NewWithToken creates a client that sends the given bearer token
func NewWithToken(baseURL, token string) *Client {
	c := New(baseURL)
	c.token = token
	return c
}

// Token returns the bearer token the client currently holds
func (c *Client) Token() string {
	return c.token
}

// Login authenticates and stores the access token for later calls
func (c *Client) Login(username, password string) (*auth.TokenPair, error) {
	var pair auth.TokenPair
	err := c.do(http.MethodPost, "/auth/login", map[string]string{
		"username": username,
		"password": password,
	}, &pair)
	if err != nil {
		return nil, err
	}
	c.token = pair.AccessToken
	return &pair, nil
}

// Health returns the gateway's health summary
func (c *Client) Health() (map[string]interface{}, error) {
	var out map[string]interface{}
	if err := c.do(http.MethodGet, "/health", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateTenant registers a tenant and provisions its first encryption key
func (c *Client) CreateTenant(t *types.TenantDescriptor) (*types.TenantDescriptor, error) {
	var out types.TenantDescriptor
	if err := c.do(http.MethodPost, "/tenants", t, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListTenants returns all registered tenants
func (c *Client) ListTenants() ([]*types.TenantDescriptor, error) {
	var out []*types.TenantDescriptor
	if err := c.do(http.MethodGet, "/tenants", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetTenant returns one tenant descriptor
func (c *Client) GetTenant(tenantID string) (*types.TenantDescriptor, error) {
	var out types.TenantDescriptor
	if err := c.do(http.MethodGet, "/tenants/"+tenantID, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteTenant removes a tenant, stopping its worker first
func (c *Client) DeleteTenant(tenantID string) error {
	return c.do(http.MethodDelete, "/tenants/"+tenantID, nil, nil)
}

// ListWorkers returns the running worker processes
func (c *Client) ListWorkers() ([]types.WorkerInfo, error) {
	var out []types.WorkerInfo
	if err := c.do(http.MethodGet, "/workers", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// StopWorker stops a tenant's worker process
func (c *Client) StopWorker(tenantID string) error {
	return c.do(http.MethodDelete, "/workers/"+tenantID, nil, nil)
}

// commandRequest mirrors the gateway's command submission shape
type commandRequest struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// commandResponse mirrors the gateway's command result shape
type commandResponse struct {
	Result        json.RawMessage `json:"result"`
	CorrelationID string          `json:"correlationId"`
}

// SendCommand submits a command for the tenant and decodes the result into
// out, which may be nil for void commands.
func (c *Client) SendCommand(tenantID, commandType string, payload, out interface{}) (string, error) {
	var resp commandResponse
	path := fmt.Sprintf("/tenants/%s/commands", tenantID)
	if err := c.do(http.MethodPost, path, commandRequest{Type: commandType, Payload: payload}, &resp); err != nil {
		return "", err
	}
	if out != nil && len(resp.Result) > 0 {
		if err := json.Unmarshal(resp.Result, out); err != nil {
			return resp.CorrelationID, fmt.Errorf("failed to decode command result: %w", err)
		}
	}
	return resp.CorrelationID, nil
}

// ListKeys returns the tenant's encryption key versions, newest first
func (c *Client) ListKeys(tenantID string) ([]string, error) {
	var out struct {
		Versions []string `json:"versions"`
	}
	if err := c.do(http.MethodGet, "/tenants/"+tenantID+"/keys", nil, &out); err != nil {
		return nil, err
	}
	return out.Versions, nil
}

// RotateKeys activates a new key version for the tenant
func (c *Client) RotateKeys(tenantID string) (string, error) {
	var out map[string]string
	if err := c.do(http.MethodPost, "/tenants/"+tenantID+"/keys/rotate", nil, &out); err != nil {
		return "", err
	}
	return out["version"], nil
}

// BackupKeys writes a point-in-time copy of the tenant's keys
func (c *Client) BackupKeys(tenantID string) (string, error) {
	var out map[string]string
	if err := c.do(http.MethodPost, "/tenants/"+tenantID+"/keys/backup", nil, &out); err != nil {
		return "", err
	}
	return out["backup"], nil
}

// RestoreKeys replaces the tenant's keys with the most recent backup
func (c *Client) RestoreKeys(tenantID string) error {
	return c.do(http.MethodPost, "/tenants/"+tenantID+"/keys/restore", nil, nil)
}

// errorBody mirrors the gateway's uniform error shape
type errorBody struct {
	Error         string `json:"error"`
	Message       string `json:"message"`
	CorrelationID string `json:"correlationId"`
}

func (c *Client) do(method, path string, body, out interface{}) error {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach gateway: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var e errorBody
		if json.NewDecoder(resp.Body).Decode(&e) == nil && e.Error != "" {
			return errdefs.FromWire(e.Error, e.Message, e.CorrelationID)
		}
		return fmt.Errorf("gateway returned status %d", resp.StatusCode)
	}

	if out != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}
