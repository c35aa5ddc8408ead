package taskctx

import (
	"context"
	"sync"
	"testing"
)

type state struct {
	where string
}

func TestGetOrCreateIsolatesTasks(t *testing.T) {
	store := NewStore[state]()

	ctxA := Begin(context.Background())
	ctxB := Begin(context.Background())

	a, err := store.GetOrCreate(ctxA)
	if err != nil {
		t.Fatalf("GetOrCreate(a): %v", err)
	}
	a.where = "a=1"

	b, err := store.GetOrCreate(ctxB)
	if err != nil {
		t.Fatalf("GetOrCreate(b): %v", err)
	}
	b.where = "b=2"

	got, _ := store.Get(ctxA)
	if got.where != "a=1" {
		t.Fatalf("task A state leaked: got %q", got.where)
	}
	got, _ = store.Get(ctxB)
	if got.where != "b=2" {
		t.Fatalf("task B state leaked: got %q", got.where)
	}
}

func TestWithoutBeginFails(t *testing.T) {
	store := NewStore[state]()
	if _, err := store.GetOrCreate(context.Background()); err != ErrNoTask {
		t.Fatalf("expected ErrNoTask, got %v", err)
	}
}

func TestReleaseRemovesEntry(t *testing.T) {
	store := NewStore[state]()
	ctx := Begin(context.Background())

	if _, err := store.GetOrCreate(ctx); err != nil {
		t.Fatal(err)
	}
	if store.Len() != 1 {
		t.Fatalf("expected 1 tracked task, got %d", store.Len())
	}

	store.Release(ctx)
	if store.Len() != 0 {
		t.Fatalf("expected 0 tracked tasks after release, got %d", store.Len())
	}
}

func TestConcurrentTasksDoNotRace(t *testing.T) {
	store := NewStore[state]()
	var wg sync.WaitGroup

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			ctx := Begin(context.Background())
			v, err := store.GetOrCreate(ctx)
			if err != nil {
				t.Error(err)
				return
			}
			v.where = "x"
			if got, _ := store.Get(ctx); got.where != "x" {
				t.Errorf("task %d observed foreign state", n)
			}
			store.Release(ctx)
		}(i)
	}
	wg.Wait()
}
