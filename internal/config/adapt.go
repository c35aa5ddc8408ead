package config

import (
	"github.com/tasksql/taskdb/internal/circuitbreaker"
	"github.com/tasksql/taskdb/internal/connector"
	"github.com/tasksql/taskdb/internal/pool"
)

// DSN converts one endpoint into a connector.DSN, carrying the database's
// shared charset/timeout.
func (c *Config) DSN(e EndpointConfig) connector.DSN {
	return connector.DSN{
		Host:       e.Host,
		Port:       e.Port,
		User:       e.User,
		Password:   e.Password,
		Database:   e.Database,
		Charset:    c.Database.Charset,
		Timeout:    c.Database.Timeout,
		TLSProfile: e.TLSProfile,
	}
}

// ClusterBuilder builds a connector.ClusterBuilder for the configured
// primary and replicas.
func (c *Config) ClusterBuilder() *connector.ClusterBuilder {
	replicas := make([]connector.DSN, len(c.Database.Replicas))
	for i, r := range c.Database.Replicas {
		replicas[i] = c.DSN(r)
	}
	return connector.NewClusterBuilder(c.DSN(c.Database.Primary), replicas...)
}

// PoolConfig converts the YAML pool tuning into pool.Config.
func (c *Config) PoolConfig() pool.Config {
	return pool.Config{
		Size:                c.Pool.Size,
		MaxIdleSeconds:      c.Pool.MaxSleepTime,
		MaxExecCount:        c.Pool.MaxExecCount,
		ReaperInterval:      c.Pool.ReaperInterval,
		OverflowFactor:      c.Pool.OverflowFactor,
		MaxWaitTimeoutCount: c.Pool.MaxWaitTimeoutCount,
		Breaker:             c.BreakerConfig(),
	}
}

// BreakerConfig converts the YAML breaker tuning into circuitbreaker.Config.
func (c *Config) BreakerConfig() circuitbreaker.Config {
	return circuitbreaker.Config{
		MaxFailures: c.Breaker.MaxFailures,
		Timeout:     c.Breaker.Timeout,
		MaxRequests: c.Breaker.MaxHalfOpenRequests,
	}
}
