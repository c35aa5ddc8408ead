package sqlbuilder

import (
	"context"
	"testing"

	"github.com/tasksql/taskdb/internal/taskctx"
)

func TestCompileWithoutTableFails(t *testing.T) {
	b := New()
	ctx := taskctx.Begin(context.Background())
	if _, _, err := b.Compile(ctx); err != ErrNoTable {
		t.Fatalf("expected ErrNoTable, got %v", err)
	}
}

func TestCompileRendersWhereLimitOffset(t *testing.T) {
	b := New()
	ctx := taskctx.Begin(context.Background())
	b.Table(ctx, "users")
	b.Where(ctx, "id = ?", 1)
	b.Limit(ctx, 10)
	b.Offset(ctx, 20)

	sqlText, params, err := b.Compile(ctx)
	if err != nil {
		t.Fatal(err)
	}
	want := "SELECT * FROM users WHERE id = ? LIMIT 10 OFFSET 20"
	if sqlText != want {
		t.Fatalf("got %q, want %q", sqlText, want)
	}
	if len(params) != 1 || params[0] != 1 {
		t.Fatalf("got params %v", params)
	}
}

func TestStashApplyRestoresState(t *testing.T) {
	b := New()
	ctx := taskctx.Begin(context.Background())
	b.Table(ctx, "users")
	b.Where(ctx, "x = 1")
	b.Limit(ctx, 10)
	b.Offset(ctx, 20)

	b.Stash(ctx)
	b.Reset(ctx, "fields")
	b.Fields(ctx, "count(*) as cnt")
	b.Reset(ctx, "limit")
	b.Reset(ctx, "offset")

	countSQL, _, err := b.Compile(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if countSQL != "SELECT count(*) as cnt FROM users WHERE x = 1" {
		t.Fatalf("unexpected count query: %q", countSQL)
	}

	b.StashApply(ctx)
	pageSQL, _, err := b.Compile(ctx)
	if err != nil {
		t.Fatal(err)
	}
	want := "SELECT * FROM users WHERE x = 1 LIMIT 10 OFFSET 20"
	if pageSQL != want {
		t.Fatalf("got %q, want %q", pageSQL, want)
	}
}

func TestBuilderStateIsolatedAcrossTasks(t *testing.T) {
	b := New()
	b.Table(taskctx.Begin(context.Background()), "users") // no-op, separate task

	ctxA := taskctx.Begin(context.Background())
	ctxB := taskctx.Begin(context.Background())
	b.Table(ctxA, "users")
	b.Table(ctxB, "users")
	b.Where(ctxA, "a = 1")
	b.Where(ctxB, "b = 2")

	sqlA, _, _ := b.Compile(ctxA)
	sqlB, _, _ := b.Compile(ctxB)
	if sqlA == sqlB {
		t.Fatalf("expected distinct predicates, both rendered as %q", sqlA)
	}
	if sqlA != "SELECT * FROM users WHERE a = 1" {
		t.Fatalf("unexpected sqlA: %q", sqlA)
	}
	if sqlB != "SELECT * FROM users WHERE b = 2" {
		t.Fatalf("unexpected sqlB: %q", sqlB)
	}
}

func TestResetWithNoSectionClearsEverythingButTable(t *testing.T) {
	b := New()
	ctx := taskctx.Begin(context.Background())
	b.Table(ctx, "users")
	b.Where(ctx, "a = 1")
	b.Limit(ctx, 5)

	b.Reset(ctx, "")

	sqlText, params, err := b.Compile(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if sqlText != "SELECT * FROM users" || len(params) != 0 {
		t.Fatalf("expected a bare select after full reset, got %q %v", sqlText, params)
	}
}
