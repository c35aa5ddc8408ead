// Package query is the thin fluent façade over a Builder and a Transaction
// manager: it compiles builder state into SQL, routes it through the
// transaction manager, and exposes list/one/column/page/execute.
package query

import (
	"context"
	"errors"

	"github.com/tasksql/taskdb/internal/connector"
	"github.com/tasksql/taskdb/internal/sqlbuilder"
	"github.com/tasksql/taskdb/internal/transaction"
)

// Query is a fluent query façade bound to one table. It may be shared
// across tasks; all of its mutable predicate state lives in the Builder,
// task-scoped.
type Query struct {
	table   string
	builder *sqlbuilder.Builder
	tx      *transaction.Manager
}

// New creates a Query against table, compiling through builder and
// executing through tx.
func New(table string, builder *sqlbuilder.Builder, tx *transaction.Manager) *Query {
	return &Query{table: table, builder: builder, tx: tx}
}

func (q *Query) ensure(ctx context.Context) {
	q.builder.Table(ctx, q.table)
}

// Where appends a predicate fragment for ctx's task. Returns q for
// chaining.
func (q *Query) Where(ctx context.Context, expr string, args ...any) *Query {
	q.ensure(ctx)
	q.builder.Where(ctx, expr, args...)
	return q
}

// Fields sets the SELECT column list for ctx's task.
func (q *Query) Fields(ctx context.Context, expr string) *Query {
	q.ensure(ctx)
	q.builder.Fields(ctx, expr)
	return q
}

// Order sets the ORDER BY clause body for ctx's task.
func (q *Query) Order(ctx context.Context, expr string) *Query {
	q.ensure(ctx)
	q.builder.Order(ctx, expr)
	return q
}

// Group sets the GROUP BY clause body for ctx's task.
func (q *Query) Group(ctx context.Context, expr string) *Query {
	q.ensure(ctx)
	q.builder.Group(ctx, expr)
	return q
}

// Limit sets the row limit for ctx's task.
func (q *Query) Limit(ctx context.Context, n int) *Query {
	q.ensure(ctx)
	q.builder.Limit(ctx, n)
	return q
}

// Offset sets the row offset for ctx's task.
func (q *Query) Offset(ctx context.Context, n int) *Query {
	q.ensure(ctx)
	q.builder.Offset(ctx, n)
	return q
}

// Reset clears one builder section, or everything with an empty string.
func (q *Query) Reset(ctx context.Context, section string) *Query {
	q.builder.Reset(ctx, section)
	return q
}

func (q *Query) runSelect(ctx context.Context) (*connector.Result, error) {
	q.ensure(ctx)
	sqlText, params, err := q.builder.Compile(ctx)
	if err != nil {
		return nil, err
	}
	result, err := q.tx.Command(ctx, sqlText, params)
	if err != nil {
		return nil, q.wrapError(ctx, err)
	}
	return result, nil
}

// List compiles the builder state, executes it, and returns every row.
func (q *Query) List(ctx context.Context) ([]map[string]any, error) {
	result, err := q.runSelect(ctx)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, nil
	}
	return result.Rows, nil
}

// One forces LIMIT 1 and returns the first row, or ErrNoRows if the query
// matched nothing. The builder's limit/offset are restored afterward.
func (q *Query) One(ctx context.Context) (map[string]any, error) {
	q.ensure(ctx)
	q.builder.Stash(ctx)
	q.builder.Limit(ctx, 1)
	result, err := q.runSelect(ctx)
	q.builder.StashApply(ctx)
	if err != nil {
		return nil, err
	}
	if result == nil || len(result.Rows) == 0 {
		return nil, ErrNoRows
	}
	return result.Rows[0], nil
}

// Column returns the first column of the first row, or "" if no rows
// matched. The builder's limit/offset are restored afterward.
func (q *Query) Column(ctx context.Context) (any, error) {
	q.ensure(ctx)
	q.builder.Stash(ctx)
	q.builder.Limit(ctx, 1)
	result, err := q.runSelect(ctx)
	q.builder.StashApply(ctx)
	if err != nil {
		return nil, err
	}
	if result == nil || len(result.Columns) == 0 || len(result.Rows) == 0 {
		return "", nil
	}
	return result.Rows[0][result.Columns[0]], nil
}

// Page runs a COUNT(*) sub-query, then (unless the count is zero) the
// original page query, returning both. The builder state seen by the data
// query is restored to exactly what the caller set before Page rewrote
// fields/limit/offset for the count — this is the stash/restore contract
// §4.4 requires so concurrent tasks sharing a Query never see each
// other's page parameters.
func (q *Query) Page(ctx context.Context) (total int64, rows []map[string]any, err error) {
	q.ensure(ctx)
	q.builder.Stash(ctx)
	q.builder.Fields(ctx, "count(*) as cnt")
	q.builder.Reset(ctx, "limit")
	q.builder.Reset(ctx, "offset")

	countResult, countErr := q.runSelect(ctx)
	q.builder.StashApply(ctx)
	if countErr != nil {
		return 0, nil, countErr
	}
	total = extractCount(countResult)
	if total == 0 {
		return 0, nil, nil
	}

	dataResult, dataErr := q.runSelect(ctx)
	if dataErr != nil {
		return total, nil, dataErr
	}
	if dataResult != nil {
		rows = dataResult.Rows
	}
	return total, rows, nil
}

func extractCount(result *connector.Result) int64 {
	if result == nil || len(result.Rows) == 0 {
		return 0
	}
	row := result.Rows[0]
	for _, v := range row {
		switch n := v.(type) {
		case int64:
			return n
		case int:
			return int64(n)
		case string:
			var parsed int64
			for _, c := range n {
				if c < '0' || c > '9' {
					return 0
				}
				parsed = parsed*10 + int64(c-'0')
			}
			return parsed
		}
	}
	return 0
}

// Execute runs preSql/params directly if preSql is non-empty, else
// compiles and runs the builder state.
func (q *Query) Execute(ctx context.Context, preSql string, params []any) (*connector.Result, error) {
	var sqlText string
	if preSql == "" {
		q.ensure(ctx)
		compiled, compiledParams, err := q.builder.Compile(ctx)
		if err != nil {
			return nil, err
		}
		sqlText, params = compiled, compiledParams
	} else {
		sqlText, params = q.builder.PrepareSQL(preSql, params)
	}

	result, err := q.tx.Command(ctx, sqlText, params)
	if err != nil {
		return nil, q.wrapError(ctx, err)
	}
	return result, nil
}

// SetModel validates m and forwards it to the transaction manager.
func (q *Query) SetModel(ctx context.Context, m connector.Role) error {
	if m != connector.RoleRead && m != connector.RoleWrite {
		return ErrInvalidModel
	}
	return q.tx.SetModel(ctx, m)
}

// Begin starts an explicit transaction using the task's current model (see
// transaction.Manager.Model): the one last set by SetModel, read by
// default; every transaction that ends, implicit ones included, resets it
// to read.
func (q *Query) Begin(ctx context.Context) error {
	return q.tx.Begin(ctx, q.tx.Model(ctx), false)
}

// Commit ends the running transaction explicitly.
func (q *Query) Commit(ctx context.Context) (bool, error) {
	return q.tx.Commit(ctx, false)
}

// Rollback ends the running transaction, best-effort.
func (q *Query) Rollback(ctx context.Context) bool {
	return q.tx.Rollback(ctx)
}

func (q *Query) LastInsertID(ctx context.Context) int64   { return q.tx.LastInsertID(ctx) }
func (q *Query) LastErrorNo(ctx context.Context) int       { return q.tx.LastErrorNo(ctx) }
func (q *Query) LastError(ctx context.Context) string      { return q.tx.LastError(ctx) }
func (q *Query) AffectedRows(ctx context.Context) int64    { return q.tx.AffectedRows(ctx) }

func (q *Query) wrapError(ctx context.Context, err error) error {
	var ce *connector.ConnectError
	if errors.As(err, &ce) {
		return err
	}
	var te *transaction.TransactionError
	if errors.As(err, &te) {
		return err
	}
	if errors.Is(err, transaction.ErrModelLocked) {
		return err
	}
	return connector.NewDBError(q.tx.LastErrorNo(ctx), q.tx.LastError(ctx))
}
