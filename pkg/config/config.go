package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/JoshuaRamirez/ACS-sub014/pkg/types"
)

// Environment variables that override file-based secrets. Secrets should not
// live in config files that end up in version control.
const (
	EnvMasterKey = "ACS_MASTER_KEY"
	EnvJWTSecret = "ACS_JWT_SECRET"
	EnvKeyDir    = "ACS_KEY_DIR"
)

// Account is a login account the gateway can mint tokens for
type Account struct {
	Username          string   `yaml:"username"`
	Password          string   `yaml:"password"`
	TenantID          string   `yaml:"tenantId"`
	Roles             []string `yaml:"roles"`
	AccessibleTenants []string `yaml:"accessibleTenants"`
	CrossTenantAccess string   `yaml:"crossTenantAccess"`
}

// PortRange bounds the port pool workers are allocated from
type PortRange struct {
	Min int `yaml:"min"`
	Max int `yaml:"max"`
}

// Timeouts groups the deadlines the spec leaves configuration-driven.
// Zero values are replaced with defaults by Load.
type Timeouts struct {
	RPCDeadline    time.Duration `yaml:"rpcDeadline"`
	EnqueueTimeout time.Duration `yaml:"enqueueTimeout"`
	HealthProbe    time.Duration `yaml:"healthProbe"`
	GracefulStop   time.Duration `yaml:"gracefulStop"`
	StartupTimeout time.Duration `yaml:"startupTimeout"`
}

// RateLimit configures the per-client token bucket on management endpoints
type RateLimit struct {
	RequestsPerSecond float64 `yaml:"requestsPerSecond"`
	Burst             int     `yaml:"burst"`
}

// Config is the gateway configuration
type Config struct {
	Listen     string    `yaml:"listen"`
	LogLevel   string    `yaml:"logLevel"`
	LogJSON    bool      `yaml:"logJson"`
	DataDir    string    `yaml:"dataDir"`
	KeyDir     string    `yaml:"keyDir"`
	MasterKey  string    `yaml:"masterKey"` // base64, 32 bytes decoded
	JWTSecret  string    `yaml:"jwtSecret"`
	WorkerBin  string    `yaml:"workerBinary"`
	Ports      PortRange `yaml:"ports"`
	Timeouts   Timeouts  `yaml:"timeouts"`
	RateLimit  RateLimit `yaml:"rateLimit"`
	DevTenant  string    `yaml:"devDefaultTenant"`
	BufferSize int       `yaml:"commandBufferSize"`

	Tenants  []types.TenantDescriptor `yaml:"tenants"`
	Accounts []Account                `yaml:"accounts"`
}

// Load reads and validates a gateway configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyDefaults()
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a configuration with all defaults applied and no tenants.
// Used by tests and by the worker process, which only needs key settings.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	cfg.applyEnvOverrides()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Listen == "" {
		c.Listen = "127.0.0.1:8080"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.DataDir == "" {
		c.DataDir = "./acs-data"
	}
	if c.KeyDir == "" {
		c.KeyDir = "./acs-data/keys"
	}
	if c.Ports.Min == 0 {
		c.Ports.Min = 5001
	}
	if c.Ports.Max == 0 {
		c.Ports.Max = 5100
	}
	if c.Timeouts.RPCDeadline == 0 {
		c.Timeouts.RPCDeadline = 30 * time.Second
	}
	if c.Timeouts.EnqueueTimeout == 0 {
		c.Timeouts.EnqueueTimeout = 5 * time.Second
	}
	if c.Timeouts.HealthProbe == 0 {
		c.Timeouts.HealthProbe = 5 * time.Second
	}
	if c.Timeouts.GracefulStop == 0 {
		c.Timeouts.GracefulStop = 5 * time.Second
	}
	if c.Timeouts.StartupTimeout == 0 {
		c.Timeouts.StartupTimeout = 30 * time.Second
	}
	if c.RateLimit.RequestsPerSecond == 0 {
		c.RateLimit.RequestsPerSecond = 50
	}
	if c.RateLimit.Burst == 0 {
		c.RateLimit.Burst = 100
	}
	if c.BufferSize == 0 {
		c.BufferSize = 10000
	}
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(EnvMasterKey); v != "" {
		c.MasterKey = v
	}
	if v := os.Getenv(EnvJWTSecret); v != "" {
		c.JWTSecret = v
	}
	if v := os.Getenv(EnvKeyDir); v != "" {
		c.KeyDir = v
	}
}

// Validate checks invariants that would otherwise surface as runtime faults
func (c *Config) Validate() error {
	if c.Ports.Min > c.Ports.Max {
		return fmt.Errorf("invalid port range %d-%d", c.Ports.Min, c.Ports.Max)
	}
	if c.MasterKey != "" {
		if _, err := c.DecodeMasterKey(); err != nil {
			return err
		}
	}
	for _, t := range c.Tenants {
		if !types.TenantIDPattern.MatchString(t.TenantID) {
			return fmt.Errorf("invalid tenant id %q in config", t.TenantID)
		}
	}
	return nil
}

// DecodeMasterKey decodes and length-checks the configured master key
func (c *Config) DecodeMasterKey() ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(c.MasterKey)
	if err != nil {
		return nil, fmt.Errorf("master key is not valid base64: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("master key must be 32 bytes, got %d", len(key))
	}
	return key, nil
}
