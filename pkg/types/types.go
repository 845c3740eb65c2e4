package types

import (
	"regexp"
	"time"
)

// TenantIDPattern constrains tenant identifiers: they appear in file paths,
// subdomains, and environment variables, so the character set is deliberately
// narrow.
var TenantIDPattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_-]*$`)

// TenantDescriptor describes one tenant in the catalog
type TenantDescriptor struct {
	TenantID                 string            `json:"tenantId" yaml:"tenantId"`
	DisplayName              string            `json:"displayName" yaml:"displayName"`
	DatabaseConnectionString string            `json:"databaseConnectionString,omitempty" yaml:"databaseConnectionString,omitempty"`
	IsActive                 bool              `json:"isActive" yaml:"isActive"`
	CreatedAt                time.Time         `json:"createdAt" yaml:"createdAt"`
	Settings                 map[string]string `json:"settings,omitempty" yaml:"settings,omitempty"`
}

// WorkerState represents the lifecycle state of a tenant worker process
type WorkerState string

const (
	WorkerStateStarting WorkerState = "starting"
	WorkerStateHealthy  WorkerState = "healthy"
	WorkerStateDegraded WorkerState = "degraded"
	WorkerStateStopped  WorkerState = "stopped"
)

// WorkerInfo is the externally visible view of a tenant worker
type WorkerInfo struct {
	TenantID        string      `json:"tenantId"`
	Port            int         `json:"port"`
	Endpoint        string      `json:"endpoint"`
	State           WorkerState `json:"state"`
	PID             int         `json:"pid"`
	StartTime       time.Time   `json:"startTime"`
	IsHealthy       bool        `json:"isHealthy"`
	LastHealthCheck time.Time   `json:"lastHealthCheck"`
}

// TenantKey is a versioned per-tenant data key. KeyMaterial is only ever
// present in memory; at rest the key document is wrapped with the master key.
type TenantKey struct {
	TenantID    string    `json:"-"`
	Version     string    `json:"keyId"`
	KeyMaterial []byte    `json:"key"`
	Algorithm   string    `json:"algorithm"`
	CreatedAt   time.Time `json:"createdAt"`
	ExpiresAt   time.Time `json:"expiresAt"`
	IsActive    bool      `json:"isActive"`
}

// KeyAlgorithm is the only algorithm the engine produces
const KeyAlgorithm = "AES-256-GCM"

// EncryptedField is a field-level ciphertext with enough metadata to decrypt
// it after key rotation and to detect storage corruption.
type EncryptedField struct {
	EntityID    string    `json:"entityId" msgpack:"entityId"`
	FieldName   string    `json:"fieldName" msgpack:"fieldName"`
	Ciphertext  string    `json:"ciphertext" msgpack:"ciphertext"`
	IV          string    `json:"iv" msgpack:"iv"`
	KeyVersion  string    `json:"keyVersion" msgpack:"keyVersion"`
	Algorithm   string    `json:"algorithm" msgpack:"algorithm"`
	EncryptedAt time.Time `json:"encryptedAt" msgpack:"encryptedAt"`
	Checksum    string    `json:"checksum" msgpack:"checksum"`
}

// CommandEnvelope is the unit of work sent from the gateway to a worker
type CommandEnvelope struct {
	CommandType   string `msgpack:"commandType"`
	CommandData   []byte `msgpack:"commandData"`
	CorrelationID string `msgpack:"correlationId"`
}

// CommandResult is the worker's reply to a CommandEnvelope
type CommandResult struct {
	Success       bool   `msgpack:"success"`
	ResultData    []byte `msgpack:"resultData"`
	ErrorMessage  string `msgpack:"errorMessage"`
	ErrorKind     string `msgpack:"errorKind"`
	CorrelationID string `msgpack:"correlationId"`
}

// HealthRequest is the (empty) health probe request
type HealthRequest struct{}

// HealthStatus is a worker's self-reported health
type HealthStatus struct {
	Healthy           bool  `msgpack:"healthy"`
	UptimeSeconds     int64 `msgpack:"uptimeSeconds"`
	ActiveConnections int32 `msgpack:"activeConnections"`
	CommandsProcessed int64 `msgpack:"commandsProcessed"`
}
