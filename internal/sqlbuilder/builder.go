// Package sqlbuilder is the default fluent WHERE/LIMIT/OFFSET/FIELDS
// compiler satisfying the query façade's Builder contract. All mutable
// state lives in a per-task container, so a Builder shared across many
// concurrently scheduled tasks never mixes up their predicates.
package sqlbuilder

import (
	"context"
	"fmt"
	"strings"

	"github.com/tasksql/taskdb/internal/taskctx"
)

type whereClause struct {
	expr string
	args []any
}

// state is one task's fluent-query state. The zero value is a builder with
// no WHERE/LIMIT/etc set.
type state struct {
	table  string
	fields string
	wheres []whereClause
	order  string
	group  string
	limit  int
	offset int
	hasLim bool
	hasOff bool
	stash  *snapshot
}

type snapshot struct {
	fields string
	wheres []whereClause
	order  string
	group  string
	limit  int
	offset int
	hasLim bool
	hasOff bool
}

// Builder is the task-scoped fluent compiler. One Builder may be shared
// across many tasks; their state never collides.
type Builder struct {
	store *taskctx.Store[state]
}

// New creates a Builder with no task state yet allocated.
func New() *Builder {
	return &Builder{store: taskctx.NewStore[state]()}
}

func (b *Builder) get(ctx context.Context) *state {
	s, err := b.store.GetOrCreate(ctx)
	if err != nil {
		// Callers that never called taskctx.Begin get a fresh throwaway
		// state on every call instead of a panic: nothing they set
		// persists to the next call, so Compile reports ErrNoTable.
		return &state{}
	}
	return s
}

// Table sets the FROM target. Required before Compile.
func (b *Builder) Table(ctx context.Context, name string) {
	b.get(ctx).table = name
}

// Fields sets the SELECT column list, e.g. "id, name". Defaults to "*".
func (b *Builder) Fields(ctx context.Context, expr string) {
	b.get(ctx).fields = expr
}

// Where appends a predicate fragment, joined with the others by AND.
func (b *Builder) Where(ctx context.Context, expr string, args ...any) {
	s := b.get(ctx)
	s.wheres = append(s.wheres, whereClause{expr: expr, args: args})
}

// Order sets the ORDER BY clause body (without the keywords).
func (b *Builder) Order(ctx context.Context, expr string) {
	b.get(ctx).order = expr
}

// Group sets the GROUP BY clause body (without the keywords).
func (b *Builder) Group(ctx context.Context, expr string) {
	b.get(ctx).group = expr
}

// Limit sets the row limit.
func (b *Builder) Limit(ctx context.Context, n int) {
	s := b.get(ctx)
	s.limit = n
	s.hasLim = true
}

// Offset sets the row offset.
func (b *Builder) Offset(ctx context.Context, n int) {
	s := b.get(ctx)
	s.offset = n
	s.hasOff = true
}

// Reset clears one section ("fields", "where", "order", "group", "limit",
// "offset") or, with an empty string, the whole builder state except the
// table.
func (b *Builder) Reset(ctx context.Context, section string) {
	s := b.get(ctx)
	switch section {
	case "fields":
		s.fields = ""
	case "where":
		s.wheres = nil
	case "order":
		s.order = ""
	case "group":
		s.group = ""
	case "limit":
		s.limit, s.hasLim = 0, false
	case "offset":
		s.offset, s.hasOff = 0, false
	case "":
		table := s.table
		*s = state{table: table}
	}
}

// Compile renders the accumulated state into a parameterized SELECT.
func (b *Builder) Compile(ctx context.Context) (string, []any, error) {
	s := b.get(ctx)
	if s.table == "" {
		return "", nil, ErrNoTable
	}

	fields := s.fields
	if fields == "" {
		fields = "*"
	}

	var sb strings.Builder
	var params []any
	fmt.Fprintf(&sb, "SELECT %s FROM %s", fields, s.table)

	if len(s.wheres) > 0 {
		sb.WriteString(" WHERE ")
		parts := make([]string, len(s.wheres))
		for i, w := range s.wheres {
			parts[i] = w.expr
			params = append(params, w.args...)
		}
		sb.WriteString(strings.Join(parts, " AND "))
	}
	if s.group != "" {
		fmt.Fprintf(&sb, " GROUP BY %s", s.group)
	}
	if s.order != "" {
		fmt.Fprintf(&sb, " ORDER BY %s", s.order)
	}
	if s.hasLim {
		fmt.Fprintf(&sb, " LIMIT %d", s.limit)
	}
	if s.hasOff {
		fmt.Fprintf(&sb, " OFFSET %d", s.offset)
	}
	return sb.String(), params, nil
}

// PrepareSQL passes a caller-supplied statement and its params through
// unchanged; it exists so Query.Execute has one call shape whether the SQL
// comes from the builder or from the caller directly.
func (b *Builder) PrepareSQL(sqlText string, params []any) (string, []any) {
	return sqlText, params
}

// RawSQL renders the compiled statement with parameters interpolated
// inline, for logging only — it is never executed as-is.
func (b *Builder) RawSQL(ctx context.Context) string {
	sqlText, params, err := b.Compile(ctx)
	if err != nil {
		return ""
	}
	for _, p := range params {
		placeholder := fmt.Sprintf("%v", p)
		if _, ok := p.(string); ok {
			placeholder = "'" + placeholder + "'"
		}
		sqlText = strings.Replace(sqlText, "?", placeholder, 1)
	}
	return sqlText
}

// Stash snapshots the current fields/where/order/group/limit/offset so the
// caller can mutate them for a sub-query (e.g. a COUNT(*) query) and
// restore afterward with StashApply.
func (b *Builder) Stash(ctx context.Context) {
	s := b.get(ctx)
	s.stash = &snapshot{
		fields: s.fields,
		wheres: append([]whereClause(nil), s.wheres...),
		order:  s.order,
		group:  s.group,
		limit:  s.limit,
		offset: s.offset,
		hasLim: s.hasLim,
		hasOff: s.hasOff,
	}
}

// StashApply restores the snapshot taken by the most recent Stash. It is a
// no-op if Stash was never called.
func (b *Builder) StashApply(ctx context.Context) {
	s := b.get(ctx)
	if s.stash == nil {
		return
	}
	snap := s.stash
	s.fields = snap.fields
	s.wheres = snap.wheres
	s.order = snap.order
	s.group = snap.group
	s.limit = snap.limit
	s.offset = snap.offset
	s.hasLim = snap.hasLim
	s.hasOff = snap.hasOff
	s.stash = nil
}
