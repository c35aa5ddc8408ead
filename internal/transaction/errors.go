package transaction

import "errors"

// ErrModelLocked is returned by SetModel when called on a transaction that
// is currently running; the model cannot change mid-flight.
var ErrModelLocked = errors.New("transaction: model is locked while running")

// TransactionError wraps a failure to begin: the Pool could not hand back a
// Connector for the requested model.
type TransactionError struct {
	Cause error
}

func (e *TransactionError) Error() string {
	return "transaction: begin failed: " + e.Cause.Error()
}

func (e *TransactionError) Unwrap() error { return e.Cause }
