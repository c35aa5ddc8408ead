// Package connector implements a single physical MySQL session: connect,
// query, prepare+execute, transaction control, and reconnect-on-transient-
// error. It is the leaf the Pool (internal/pool) grows and shrinks.
package connector

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// DSN holds everything needed to dial one MySQL endpoint.
type DSN struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	Timeout  time.Duration
	Charset  string
	// TLSProfile names a profile previously registered with
	// mysql.RegisterTLSConfig by internal/tlsprofile. Empty means plaintext.
	TLSProfile string
}

func (d DSN) String() string {
	charset := d.Charset
	if charset == "" {
		charset = "utf8mb4"
	}
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=true&timeout=%s",
		d.User, d.Password, d.Host, d.Port, d.Database, charset, timeout)
	if d.TLSProfile != "" {
		dsn += "&tls=" + d.TLSProfile
	}
	return dsn
}

// key is the stable identity two DSNs with the same host/port/db/user
// share, used by the Pool registry to deduplicate singletons.
func (d DSN) key() string {
	return fmt.Sprintf("%s@%s:%d/%s", d.User, d.Host, d.Port, d.Database)
}

// Result is what a query/exec call hands back: rows for a read, or
// insert-id/affected-rows bookkeeping for a write.
type Result struct {
	Columns      []string
	Rows         []map[string]any
	LastInsertID int64
	AffectedRows int64
}

// Driver is the live session behind a Connector. The production
// implementation (driver_mysql.go) wraps database/sql and
// go-sql-driver/mysql; tests inject fakes that never touch the network.
type Driver interface {
	Ping(ctx context.Context) error
	// Run executes sqlText, choosing the prepare+execute path when params
	// is non-empty, and returns either rows or exec bookkeeping depending
	// on whether sqlText looks like a SELECT.
	Run(ctx context.Context, sqlText string, params []any) (*Result, error)
	Begin(ctx context.Context) error
	Commit() error
	Rollback() error
	Close() error
}

// Dialer produces a fresh Driver for a DSN. It is called once when a
// Connector first connects and again every time it needs to reconnect
// after a transient failure.
type Dialer func(ctx context.Context, dsn DSN) (Driver, error)

// Connector is one live (or closed) MySQL session. It is not safe for
// concurrent use by more than one task at a time — the Pool enforces that
// by construction (a Connector is only ever handed to one task between
// Get and Put).
type Connector struct {
	mu    sync.Mutex
	dsn   DSN
	role  Role
	dial  Dialer
	d     Driver

	inTransaction  bool
	execCount      int64
	lastExecTime   time.Time
	lastExpendTime time.Duration
	peakExpendTime time.Duration
	lastErrorCode  int
	lastErrorText  string
}

// New creates a Connector bound to dsn/role, dialing a real MySQL session
// via go-sql-driver/mysql on first Connect.
func New(dsn DSN, role Role) *Connector {
	return &Connector{dsn: dsn, role: role, dial: dialMySQL}
}

// NewWithDialer creates a Connector whose Driver is produced by dial
// instead of the real MySQL dialer. Used by tests that exercise pool and
// transaction logic without a live database.
func NewWithDialer(dsn DSN, role Role, dial Dialer) *Connector {
	return &Connector{dsn: dsn, role: role, dial: dial}
}

func (c *Connector) Role() Role { return c.role }

// Connect is idempotent: calling it on an already-open Connector is a
// no-op success.
func (c *Connector) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.d != nil {
		return nil
	}
	d, err := c.dial(ctx, c.dsn)
	if err != nil {
		code, msg := classify(err)
		return NewConnectError(code, msg)
	}
	if err := d.Ping(ctx); err != nil {
		d.Close()
		code, msg := classify(err)
		return NewConnectError(code, msg)
	}
	c.d = d
	return nil
}

// Close releases the session and resets counters except the peak, which
// describes the connector's lifetime worst case for operators.
func (c *Connector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var err error
	if c.d != nil {
		err = c.d.Close()
		c.d = nil
	}
	c.inTransaction = false
	c.execCount = 0
	c.lastErrorCode = 0
	c.lastErrorText = ""
	return err
}

// ExecCount is the number of statements run since Connect (or the last
// Close), used by the Pool's health check against maxExecCount.
func (c *Connector) ExecCount() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.execCount
}

// LastExecTime is when the last statement completed (successfully or
// not), used by the Pool's idle-age health check.
func (c *Connector) LastExecTime() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastExecTime
}

// PeakExpendTime is the slowest single statement this connector has run.
func (c *Connector) PeakExpendTime() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.peakExpendTime
}

// InTransaction reports whether BEGIN has been sent without a matching
// COMMIT/ROLLBACK yet.
func (c *Connector) InTransaction() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inTransaction
}

// LastError returns the most recent failure's code and message, or (0, "")
// if the last statement succeeded.
func (c *Connector) LastError() (int, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErrorCode, c.lastErrorText
}

// firstKeyword extracts the leading token of a SQL statement, used by
// IsSelectLike to classify a statement as returning rows or not.
func firstKeyword(sqlText string) string {
	trimmed := strings.TrimLeft(sqlText, " \t\r\n(")
	end := strings.IndexAny(trimmed, " \t\r\n(")
	if end < 0 {
		end = len(trimmed)
	}
	return strings.ToLower(trimmed[:end])
}

// IsSelectLike reports whether sqlText looks like it returns rows.
func IsSelectLike(sqlText string) bool {
	switch firstKeyword(sqlText) {
	case "select", "show", "describe", "desc", "explain":
		return true
	default:
		return false
	}
}

// Query runs sqlText with params against the live session. On a transient
// transport error while not inside a transaction, the Connector reconnects
// once and retries exactly once.
func (c *Connector) Query(ctx context.Context, sqlText string, params []any, timeout time.Duration) (*Result, error) {
	if timeout <= 0 {
		timeout = 180 * time.Second
	}
	qctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	result, err := c.runOnce(qctx, sqlText, params)
	if err != nil {
		code, _ := classify(err)
		c.mu.Lock()
		inTx := c.inTransaction
		c.mu.Unlock()
		if !inTx && IsTransient(code) {
			if rerr := c.reconnect(ctx); rerr == nil {
				result, err = c.runOnce(qctx, sqlText, params)
			}
		}
	}
	c.recordExec(start, err)
	return result, err
}

func (c *Connector) runOnce(ctx context.Context, sqlText string, params []any) (*Result, error) {
	c.mu.Lock()
	d := c.d
	c.mu.Unlock()
	if d == nil {
		return nil, NewConnectError(ErrnoServerGone, "connector is not connected")
	}
	result, err := d.Run(ctx, sqlText, params)
	if err != nil {
		return nil, classifyAsConnectOrDB(err)
	}
	return result, nil
}

func (c *Connector) recordExec(start time.Time, err error) {
	expend := time.Since(start)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.execCount++
	c.lastExecTime = time.Now()
	c.lastExpendTime = expend
	if expend > c.peakExpendTime {
		c.peakExpendTime = expend
	}
	if err != nil {
		c.lastErrorCode, c.lastErrorText = classify(err)
	} else {
		c.lastErrorCode, c.lastErrorText = 0, ""
	}
}

func (c *Connector) reconnect(ctx context.Context) error {
	c.mu.Lock()
	if c.d != nil {
		c.d.Close()
		c.d = nil
	}
	c.mu.Unlock()
	return c.Connect(ctx)
}

// Begin sends BEGIN and flips in_transaction.
func (c *Connector) Begin(ctx context.Context) error {
	c.mu.Lock()
	d := c.d
	c.mu.Unlock()
	if d == nil {
		return NewConnectError(ErrnoServerGone, "connector is not connected")
	}
	if err := d.Begin(ctx); err != nil {
		return classifyAsConnectOrDB(err)
	}
	c.mu.Lock()
	c.inTransaction = true
	c.mu.Unlock()
	return nil
}

// Commit sends COMMIT and flips in_transaction off regardless of outcome.
func (c *Connector) Commit() error {
	c.mu.Lock()
	d := c.d
	c.inTransaction = false
	c.mu.Unlock()
	if d == nil {
		return nil
	}
	if err := d.Commit(); err != nil {
		return classifyAsConnectOrDB(err)
	}
	return nil
}

// Rollback sends ROLLBACK best-effort and flips in_transaction off.
func (c *Connector) Rollback() error {
	c.mu.Lock()
	d := c.d
	c.inTransaction = false
	c.mu.Unlock()
	if d == nil {
		return nil
	}
	return d.Rollback()
}

func classifyAsConnectOrDB(err error) error {
	code, msg := classify(err)
	if IsTransient(code) {
		return NewConnectError(code, msg)
	}
	return NewDBError(code, msg)
}
