package transaction

import (
	"context"

	"github.com/tasksql/taskdb/internal/connector"
)

// WithTransaction begins a transaction for model, runs fn, and guarantees
// the transaction is resolved before returning: a nil return from fn
// commits; an error from fn, a canceled ctx, or a panic rolls back, and the
// panic is re-raised after cleanup. ctx must already carry a task identity (see taskctx.Begin).
func WithTransaction(ctx context.Context, m *Manager, model connector.Role, fn func(ctx context.Context) error) (err error) {
	if err = m.Begin(ctx, model, false); err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			m.Rollback(ctx)
			panic(r)
		}
	}()

	if err = fn(ctx); err != nil {
		m.Rollback(ctx)
		return err
	}

	if ctx.Err() != nil {
		m.Rollback(ctx)
		return ctx.Err()
	}

	if _, commitErr := m.Commit(ctx, false); commitErr != nil {
		return commitErr
	}
	return nil
}
