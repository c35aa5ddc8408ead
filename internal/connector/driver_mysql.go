package connector

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"net"
	"strings"
	"sync"

	mysqldriver "github.com/go-sql-driver/mysql"
)

// dialMySQL is the production Dialer: one Connector, one *sql.DB capped to
// a single physical connection, talking to MySQL through
// go-sql-driver/mysql. Pool owns the bounded-channel multi-connection
// pooling; database/sql here is just a single live session.
func dialMySQL(ctx context.Context, dsn DSN) (Driver, error) {
	db, err := sql.Open("mysql", dsn.String())
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	return &mysqlDriver{db: db}, nil
}

type mysqlDriver struct {
	db *sql.DB
	mu sync.Mutex
	tx *sql.Tx
}

func (m *mysqlDriver) Ping(ctx context.Context) error {
	return m.db.PingContext(ctx)
}

type querier interface {
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (m *mysqlDriver) Run(ctx context.Context, sqlText string, params []any) (*Result, error) {
	m.mu.Lock()
	var q querier = m.db
	if m.tx != nil {
		q = m.tx
	}
	m.mu.Unlock()

	if IsSelectLike(sqlText) {
		rows, err := runQuery(ctx, q, sqlText, params)
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		return scanRows(rows)
	}
	return runExec(ctx, q, sqlText, params)
}

func runQuery(ctx context.Context, q querier, sqlText string, params []any) (*sql.Rows, error) {
	if len(params) > 0 {
		stmt, err := q.PrepareContext(ctx, sqlText)
		if err != nil {
			return nil, err
		}
		defer stmt.Close()
		return stmt.QueryContext(ctx, params...)
	}
	return q.QueryContext(ctx, sqlText)
}

func runExec(ctx context.Context, q querier, sqlText string, params []any) (*Result, error) {
	var res sql.Result
	var err error
	if len(params) > 0 {
		var stmt *sql.Stmt
		stmt, err = q.PrepareContext(ctx, sqlText)
		if err != nil {
			return nil, err
		}
		defer stmt.Close()
		res, err = stmt.ExecContext(ctx, params...)
	} else {
		res, err = q.ExecContext(ctx, sqlText)
	}
	if err != nil {
		return nil, err
	}
	lastID, _ := res.LastInsertId()
	affected, _ := res.RowsAffected()
	return &Result{LastInsertID: lastID, AffectedRows: affected}, nil
}

func scanRows(rows *sql.Rows) (*Result, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	result := &Result{Columns: cols}
	for rows.Next() {
		values := make([]any, len(cols))
		pointers := make([]any, len(cols))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return nil, err
		}
		row := make(map[string]any, len(cols))
		for i, col := range cols {
			row[col] = normalize(values[i])
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// normalize turns driver byte-slice text columns into strings so callers
// get plain Go values instead of []byte.
func normalize(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

func (m *mysqlDriver) Begin(ctx context.Context) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.tx = tx
	m.mu.Unlock()
	return nil
}

func (m *mysqlDriver) Commit() error {
	m.mu.Lock()
	tx := m.tx
	m.tx = nil
	m.mu.Unlock()
	if tx == nil {
		return nil
	}
	return tx.Commit()
}

func (m *mysqlDriver) Rollback() error {
	m.mu.Lock()
	tx := m.tx
	m.tx = nil
	m.mu.Unlock()
	if tx == nil {
		return nil
	}
	return tx.Rollback()
}

func (m *mysqlDriver) Close() error {
	return m.db.Close()
}

// classify maps whatever database/sql and go-sql-driver/mysql surface into
// the classic MySQL client error numbering this library's retry policy is
// built on. go-sql-driver/mysql does not reproduce the C client's CR_*
// constants, so this is a best-effort translation from the Go-idiomatic
// error values it does return: a *mysql.MySQLError carries the real
// server-side errno (e.g. 1040); this package's own ConnectError/DBError
// keep the code they already carry; anything else is classified from the
// shape of the Go error (bad/invalid connection, timeout, dial failure).
func classify(err error) (int, string) {
	if err == nil {
		return 0, ""
	}
	var ce *ConnectError
	if errors.As(err, &ce) {
		return ce.Code, ce.Message
	}
	var de *DBError
	if errors.As(err, &de) {
		return de.Code, de.Message
	}
	var myErr *mysqldriver.MySQLError
	if errors.As(err, &myErr) {
		return int(myErr.Number), myErr.Message
	}
	if errors.Is(err, mysqldriver.ErrInvalidConn) || errors.Is(err, driver.ErrBadConn) {
		return ErrnoServerGone, err.Error()
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return ErrnoServerLost, err.Error()
		}
		return ErrnoConnectionError, err.Error()
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "connection refused"), strings.Contains(msg, "no such host"):
		return ErrnoConnectionError, msg
	case strings.Contains(msg, "broken pipe"), strings.Contains(msg, "connection reset"), strings.Contains(msg, "EOF"):
		return ErrnoServerGone, msg
	case strings.Contains(msg, "i/o timeout"), strings.Contains(msg, "context deadline exceeded"):
		return ErrnoServerLost, msg
	default:
		return 0, msg
	}
}
