// Package metrics exposes the Prometheus collectors the pool, transaction
// manager, and admin API report against.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PoolActive tracks connectors currently checked out, by role.
	PoolActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "taskdb_pool_active",
			Help: "Number of connectors currently checked out of the pool",
		},
		[]string{"role"}, // read, write
	)

	// PoolIdle tracks connectors sitting in the idle channel, by role.
	PoolIdle = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "taskdb_pool_idle",
			Help: "Number of idle connectors waiting in the pool",
		},
		[]string{"role"},
	)

	// ConnectTotal counts dial attempts against the backing MySQL driver.
	ConnectTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskdb_connect_total",
			Help: "Total number of connector dial attempts",
		},
		[]string{"role", "status"}, // success, error
	)

	// AcquireWaitSeconds tracks how long Get() blocked waiting on an idle
	// connector or the overflow ceiling.
	AcquireWaitSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "taskdb_acquire_wait_seconds",
			Help:    "Time spent waiting to acquire a connector from the pool",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"role"},
	)

	// WaitTimeoutTotal counts pool acquisitions that hit the ceiling and
	// timed out before a connector became available.
	WaitTimeoutTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskdb_wait_timeout_total",
			Help: "Total number of pool acquisitions that timed out against the overflow ceiling",
		},
		[]string{"role"},
	)

	// BreakerState reports the circuit breaker's state as a gauge: 0
	// closed, 1 open, 2 half-open.
	BreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "taskdb_circuit_breaker_state",
			Help: "Connect-failure circuit breaker state (0=closed, 1=open, 2=half-open)",
		},
	)

	// CommandDuration tracks query/exec latency observed by the
	// transaction manager.
	CommandDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "taskdb_command_duration_seconds",
			Help:    "Command execution duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"model"}, // read, write
	)

	// CommandTotal counts commands run through the transaction manager.
	CommandTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskdb_command_total",
			Help: "Total number of commands executed through the transaction manager",
		},
		[]string{"model", "status"}, // success, error
	)

	// TransactionTotal counts explicit and implicit transaction outcomes.
	TransactionTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskdb_transaction_total",
			Help: "Total number of transactions completed",
		},
		[]string{"kind", "outcome"}, // kind: explicit, implicit; outcome: commit, rollback
	)
)

// SetPoolStats updates the active/idle gauges for one role in one call, the
// shape the admin API's stats snapshot naturally produces.
func SetPoolStats(role string, active, idle int) {
	PoolActive.WithLabelValues(role).Set(float64(active))
	PoolIdle.WithLabelValues(role).Set(float64(idle))
}

// RecordConnect records the outcome of one dial attempt.
func RecordConnect(role string, err error) {
	if err != nil {
		ConnectTotal.WithLabelValues(role, "error").Inc()
		return
	}
	ConnectTotal.WithLabelValues(role, "success").Inc()
}

// RecordCommand records one completed command's duration and outcome.
func RecordCommand(model string, durationSeconds float64, err error) {
	CommandDuration.WithLabelValues(model).Observe(durationSeconds)
	if err != nil {
		CommandTotal.WithLabelValues(model, "error").Inc()
		return
	}
	CommandTotal.WithLabelValues(model, "success").Inc()
}

// RecordTransaction records one transaction's completion.
func RecordTransaction(implicit bool, committed bool) {
	kind := "explicit"
	if implicit {
		kind = "implicit"
	}
	outcome := "rollback"
	if committed {
		outcome = "commit"
	}
	TransactionTotal.WithLabelValues(kind, outcome).Inc()
}
