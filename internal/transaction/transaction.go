// Package transaction implements the per-task transaction state machine:
// acquire a Connector from a Pool, route commands to it, commit or roll
// back, and always release it back to the Pool.
package transaction

import (
	"context"
	"sync"
	"time"

	"github.com/tasksql/taskdb/internal/connector"
	"github.com/tasksql/taskdb/internal/metrics"
	"github.com/tasksql/taskdb/internal/pool"
	"github.com/tasksql/taskdb/internal/taskctx"
)

// ExecInfo is the bookkeeping snapshot taken from the Connector after every
// command: the driver's last-insert-id, affected-row count, and error
// state.
type ExecInfo struct {
	InsertID     int64
	AffectedRows int64
	ErrorNo      int
	Error        string
}

// state is the task-scoped record backing one logical transaction. It is
// never touched directly by two tasks at once: taskctx.Store keys it by
// task identity.
type state struct {
	mu       sync.Mutex
	conn     *connector.Connector
	running  bool
	implicit bool
	model    connector.Role
	lastExec ExecInfo
}

// Manager is shared process-wide; all of its mutable per-transaction state
// lives in TaskContext, so one Manager safely serves many concurrent
// tasks.
type Manager struct {
	pool  *pool.Pool
	store *taskctx.Store[state]
}

// New creates a Manager drawing connections from p.
func New(p *pool.Pool) *Manager {
	return &Manager{pool: p, store: taskctx.NewStore[state]()}
}

func (m *Manager) get(ctx context.Context) (*state, error) {
	return m.store.GetOrCreate(ctx)
}

// IsRunning reports whether ctx's task currently has a transaction open.
func (m *Manager) IsRunning(ctx context.Context) bool {
	s, err := m.get(ctx)
	if err != nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Begin starts a transaction for ctx's task. Calling Begin while already
// running is a no-op success (idempotent). implicit suppresses the wire
// BEGIN for transactions opened automatically around a single command.
func (m *Manager) Begin(ctx context.Context, model connector.Role, implicit bool) error {
	s, err := m.get(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	conn, err := m.pool.Get(ctx, model)
	if err != nil {
		return &TransactionError{Cause: err}
	}

	s.mu.Lock()
	s.conn = conn
	s.model = model
	s.running = true
	s.implicit = implicit
	s.lastExec = ExecInfo{}
	s.mu.Unlock()

	if implicit {
		return nil
	}
	if err := conn.Begin(ctx); err != nil {
		s.mu.Lock()
		m.releaseLocked(s)
		s.mu.Unlock()
		return err
	}
	return nil
}

// Command runs sql/params on the task's held Connector. If no transaction
// is running, it opens one implicitly around this single statement,
// inferring the model from the SQL, and commits (or force-rolls-back on
// failure) before returning.
func (m *Manager) Command(ctx context.Context, sqlText string, params []any) (*connector.Result, error) {
	s, err := m.get(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	running := s.running
	s.mu.Unlock()

	if !running {
		model := inferModel(sqlText)
		if err := m.Begin(ctx, model, true); err != nil {
			return nil, err
		}
		result, cmdErr := m.runCommand(ctx, s, sqlText, params)
		if cmdErr != nil {
			m.Rollback(ctx)
			return result, cmdErr
		}
		if _, commitErr := m.Commit(ctx, true); commitErr != nil {
			return result, commitErr
		}
		return result, nil
	}

	return m.runCommand(ctx, s, sqlText, params)
}

func (m *Manager) runCommand(ctx context.Context, s *state, sqlText string, params []any) (*connector.Result, error) {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return nil, ErrModelLocked // unreachable in practice; running implies conn != nil
	}

	start := time.Now()
	result, err := conn.Query(ctx, sqlText, params, 0)
	metrics.RecordCommand(s.model.String(), time.Since(start).Seconds(), err)

	s.mu.Lock()
	if err != nil {
		code, msg := conn.LastError()
		s.lastExec = ExecInfo{ErrorNo: code, Error: msg}
	} else {
		var insertID, affected int64
		if result != nil {
			insertID, affected = result.LastInsertID, result.AffectedRows
		}
		s.lastExec = ExecInfo{InsertID: insertID, AffectedRows: affected}
	}
	s.mu.Unlock()

	return result, err
}

// Commit ends the running transaction. Failing to send an explicit COMMIT
// triggers an automatic rollback; commit is a no-op success when no
// transaction is running.
func (m *Manager) Commit(ctx context.Context, implicit bool) (bool, error) {
	s, err := m.get(ctx)
	if err != nil {
		return true, nil
	}

	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return true, nil
	}
	conn := s.conn
	s.mu.Unlock()

	if !implicit {
		if err := conn.Commit(); err != nil {
			m.Rollback(ctx)
			return false, err
		}
	}

	s.mu.Lock()
	metrics.RecordTransaction(s.implicit, true)
	m.releaseLocked(s)
	s.mu.Unlock()
	return true, nil
}

// Rollback ends the running transaction, sending ROLLBACK best-effort. It
// always reports success, matching a fire-and-forget cleanup call.
func (m *Manager) Rollback(ctx context.Context) bool {
	s, err := m.get(ctx)
	if err != nil {
		return true
	}

	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return true
	}
	conn := s.conn
	s.mu.Unlock()

	conn.Rollback()

	s.mu.Lock()
	metrics.RecordTransaction(s.implicit, false)
	m.releaseLocked(s)
	s.mu.Unlock()
	return true
}

// releaseLocked returns the connector to the pool and resets running
// state, including the model. Callers must hold s.mu.
func (m *Manager) releaseLocked(s *state) {
	if s.conn != nil {
		m.pool.Put(s.conn)
	}
	s.conn = nil
	s.running = false
	s.model = connector.RoleRead
}

// SetModel records the model for ctx's task, which Model then reports.
// Every Begin (implicit ones included) overwrites it with the model it was
// given, and it returns to RoleRead when a transaction ends. It fails with
// ErrModelLocked while a transaction is running.
func (m *Manager) SetModel(ctx context.Context, model connector.Role) error {
	s, err := m.get(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrModelLocked
	}
	s.model = model
	return nil
}

// Model returns ctx's task's current model: the running transaction's
// model while one runs, otherwise the value last set by SetModel since the
// last transaction ended, or RoleRead.
func (m *Manager) Model(ctx context.Context) connector.Role {
	s, err := m.get(ctx)
	if err != nil {
		return connector.RoleRead
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.model
}

// LastInsertID, LastErrorNo, LastError, AffectedRows report the bookkeeping
// from the most recently run command in ctx's task.
func (m *Manager) LastInsertID(ctx context.Context) int64 {
	return m.snapshot(ctx).InsertID
}

func (m *Manager) LastErrorNo(ctx context.Context) int {
	return m.snapshot(ctx).ErrorNo
}

func (m *Manager) LastError(ctx context.Context) string {
	return m.snapshot(ctx).Error
}

func (m *Manager) AffectedRows(ctx context.Context) int64 {
	return m.snapshot(ctx).AffectedRows
}

func (m *Manager) snapshot(ctx context.Context) ExecInfo {
	s, err := m.get(ctx)
	if err != nil {
		return ExecInfo{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastExec
}

// Release drops ctx's task-local state from the Manager, rolling back
// first if a transaction was left running. Callers that drive tasks to
// completion should call this (directly or via WithTransaction) so the
// Manager's store does not grow without bound.
func (m *Manager) Release(ctx context.Context) {
	m.Rollback(ctx)
	m.store.Release(ctx)
}
