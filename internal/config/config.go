// Package config loads and validates the YAML configuration for the
// connection pool, transaction manager, and their ambient stack, and
// exposes a Redis-backed store for hot-reloading the pool's tuning knobs
// without a restart.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration loaded from YAML.
type Config struct {
	Database DatabaseConfig    `yaml:"database"`
	Pool     PoolConfig        `yaml:"pool"`
	Breaker  BreakerConfig     `yaml:"circuit_breaker"`
	TLS      TLSProfilesConfig `yaml:"tls"`
	Redis    RedisConfig       `yaml:"redis"`
	Admin    AdminConfig       `yaml:"admin"`
	Logging  LoggingConfig     `yaml:"logging"`
}

// DatabaseConfig resolves the write primary and the read replicas. There
// is no health scoring of replicas; a bad one simply produces a Connector
// whose first query fails and is evicted like any other.
type DatabaseConfig struct {
	Primary  EndpointConfig   `yaml:"primary"`
	Replicas []EndpointConfig `yaml:"replicas"`
	Charset  string           `yaml:"charset"`
	Timeout  time.Duration    `yaml:"timeout"`
}

// EndpointConfig is one MySQL host.
type EndpointConfig struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	User       string `yaml:"user"`
	Password   string `yaml:"password"`
	Database   string `yaml:"database"`
	TLSProfile string `yaml:"tls_profile"`
}

// PoolConfig mirrors pool.Config, expressed the way an operator tunes it
// from YAML or the admin API.
type PoolConfig struct {
	Size                int           `yaml:"size"`
	MaxSleepTime        time.Duration `yaml:"max_sleep_time"`
	MaxExecCount        int64         `yaml:"max_exec_count"`
	ReaperInterval      time.Duration `yaml:"reaper_interval"`
	OverflowFactor      int           `yaml:"overflow_factor"`
	MaxWaitTimeoutCount int           `yaml:"max_wait_timeout_count"`
}

// BreakerConfig tunes the connect-failure circuit breaker guarding the
// pool's grow path.
type BreakerConfig struct {
	MaxFailures         int           `yaml:"max_failures"`
	Timeout             time.Duration `yaml:"timeout"`
	MaxHalfOpenRequests int           `yaml:"max_half_open_requests"`
}

// TLSProfilesConfig is a named set of TLS profiles a Connector's DSN may
// reference.
type TLSProfilesConfig map[string]TLSProfileConfig

// TLSProfileConfig configures one named TLS profile.
type TLSProfileConfig struct {
	CertFile   string `yaml:"cert_file"`
	KeyFile    string `yaml:"key_file"`
	CAFile     string `yaml:"ca_file"`
	ServerName string `yaml:"server_name"`
	SkipVerify bool   `yaml:"skip_verify"`
}

// RedisConfig is the connection used for pool-tuning hot reload.
type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	Database int    `yaml:"database"`
	PoolSize int    `yaml:"pool_size"`
}

// AdminConfig is the Gin admin HTTP surface.
type AdminConfig struct {
	Host   string `yaml:"host"`
	Port   int    `yaml:"port"`
	APIKey string `yaml:"api_key"`
}

// LoggingConfig controls the slog-based logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads and validates a YAML config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the invariants the pool and connector need to start.
func (c *Config) Validate() error {
	if c.Database.Primary.Host == "" {
		return fmt.Errorf("database.primary.host is required")
	}
	if c.Pool.Size <= 0 {
		return fmt.Errorf("pool.size must be positive")
	}
	if c.Pool.OverflowFactor < 1 {
		return fmt.Errorf("pool.overflow_factor must be >= 1")
	}
	return nil
}
