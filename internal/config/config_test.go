package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const sampleYAML = `
database:
  primary:
    host: primary.internal
    port: 3306
    user: app
    password: secret
    database: app_db
    tls_profile: default
  replicas:
    - host: replica-a.internal
      port: 3306
      user: app
      password: secret
      database: app_db
    - host: replica-b.internal
      port: 3306
      user: app
      password: secret
      database: app_db
  charset: utf8mb4
  timeout: 5s
pool:
  size: 10
  max_sleep_time: 1h
  max_exec_count: 10000
  reaper_interval: 30s
  overflow_factor: 2
  max_wait_timeout_count: 3
circuit_breaker:
  max_failures: 5
  timeout: 30s
  max_half_open_requests: 1
tls:
  default:
    ca_file: /etc/ssl/ca.pem
    server_name: primary.internal
redis:
  host: localhost
  port: 6379
  database: 0
  pool_size: 10
admin:
  host: 0.0.0.0
  port: 9090
  api_key: topsecret
logging:
  level: INFO
  format: json
`

func writeTempConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadParsesFullConfig(t *testing.T) {
	path := writeTempConfig(t, sampleYAML)

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Database.Primary.Host != "primary.internal" {
		t.Fatalf("unexpected primary host: %q", cfg.Database.Primary.Host)
	}
	if len(cfg.Database.Replicas) != 2 {
		t.Fatalf("expected 2 replicas, got %d", len(cfg.Database.Replicas))
	}
	if cfg.Pool.Size != 10 || cfg.Pool.OverflowFactor != 2 {
		t.Fatalf("unexpected pool tuning: %+v", cfg.Pool)
	}
	if cfg.Breaker.MaxFailures != 5 {
		t.Fatalf("unexpected breaker config: %+v", cfg.Breaker)
	}
	profile, ok := cfg.TLS["default"]
	if !ok || profile.CAFile != "/etc/ssl/ca.pem" {
		t.Fatalf("expected a default TLS profile, got %+v", cfg.TLS)
	}
	if cfg.Admin.Port != 9090 || cfg.Admin.APIKey != "topsecret" {
		t.Fatalf("unexpected admin config: %+v", cfg.Admin)
	}
}

func TestLoadMissingFileFails(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected an error for a missing config file")
	}
}

func TestValidateRejectsMissingPrimaryHost(t *testing.T) {
	cfg := &Config{Pool: PoolConfig{Size: 1, OverflowFactor: 1}}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation to fail without a primary host")
	}
}

func TestValidateRejectsNonPositivePoolSize(t *testing.T) {
	cfg := &Config{
		Database: DatabaseConfig{Primary: EndpointConfig{Host: "db"}},
		Pool:     PoolConfig{Size: 0, OverflowFactor: 1},
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation to fail with a zero pool size")
	}
}

func TestValidateRejectsOverflowFactorBelowOne(t *testing.T) {
	cfg := &Config{
		Database: DatabaseConfig{Primary: EndpointConfig{Host: "db"}},
		Pool:     PoolConfig{Size: 1, OverflowFactor: 0},
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation to fail with overflow_factor < 1")
	}
}

func TestDSNCarriesSharedDatabaseSettings(t *testing.T) {
	cfg := &Config{
		Database: DatabaseConfig{Charset: "utf8mb4", Timeout: 2 * time.Second},
	}
	dsn := cfg.DSN(EndpointConfig{Host: "h", Port: 3306, User: "u", Password: "p", Database: "d", TLSProfile: "default"})

	if dsn.Charset != "utf8mb4" || dsn.Timeout != 2*time.Second {
		t.Fatalf("DSN did not inherit shared database settings: %+v", dsn)
	}
	if dsn.Host != "h" || dsn.TLSProfile != "default" {
		t.Fatalf("DSN did not carry endpoint fields: %+v", dsn)
	}
}

func TestClusterBuilderIncludesAllReplicas(t *testing.T) {
	path := writeTempConfig(t, sampleYAML)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	cb := cfg.ClusterBuilder()
	if cb == nil {
		t.Fatal("expected a non-nil cluster builder")
	}
	if len(cb.Replicas) != 2 {
		t.Fatalf("expected 2 replicas in the cluster builder, got %d", len(cb.Replicas))
	}
}

func TestPoolConfigConversion(t *testing.T) {
	path := writeTempConfig(t, sampleYAML)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	pc := cfg.PoolConfig()
	if pc.Size != 10 || pc.MaxIdleSeconds != time.Hour || pc.MaxExecCount != 10000 {
		t.Fatalf("unexpected pool.Config conversion: %+v", pc)
	}
	if pc.Breaker.MaxFailures != 5 || pc.Breaker.MaxRequests != 1 {
		t.Fatalf("unexpected breaker conversion: %+v", pc.Breaker)
	}
}
