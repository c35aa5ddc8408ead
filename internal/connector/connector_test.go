package connector

import (
	"context"
	"errors"
	"testing"
	"time"
)

// fakeDriver is an in-memory stand-in for a live MySQL session, letting
// tests exercise reconnect/retry and transaction bookkeeping without a
// database.
type fakeDriver struct {
	pingErr   error
	runErr    error
	runResult *Result
	runCalls  int
	closed    bool
	beginErr  error
	commitErr error
}

func (f *fakeDriver) Ping(ctx context.Context) error { return f.pingErr }

func (f *fakeDriver) Run(ctx context.Context, sqlText string, params []any) (*Result, error) {
	f.runCalls++
	if f.runErr != nil {
		err := f.runErr
		f.runErr = nil // the real driver succeeds once reconnected
		return nil, err
	}
	if f.runResult != nil {
		return f.runResult, nil
	}
	return &Result{AffectedRows: 1}, nil
}

func (f *fakeDriver) Begin(ctx context.Context) error    { return f.beginErr }
func (f *fakeDriver) Commit() error                      { return f.commitErr }
func (f *fakeDriver) Rollback() error                    { return nil }
func (f *fakeDriver) Close() error                       { f.closed = true; return nil }

func newFakeConnector(d *fakeDriver) *Connector {
	dial := func(ctx context.Context, dsn DSN) (Driver, error) { return d, nil }
	return NewWithDialer(DSN{Host: "localhost", Port: 3306}, RoleWrite, dial)
}

func TestConnectIsIdempotent(t *testing.T) {
	d := &fakeDriver{}
	c := newFakeConnector(d)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("second Connect should be a no-op success, got %v", err)
	}
}

func TestQueryRetriesOnceOnTransientError(t *testing.T) {
	d := &fakeDriver{runErr: NewConnectError(ErrnoServerGone, "server has gone away")}
	c := newFakeConnector(d)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}

	result, err := c.Query(context.Background(), "SELECT 1", nil, 0)
	if err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if result == nil {
		t.Fatal("expected a result")
	}
	if d.runCalls != 2 {
		t.Fatalf("expected exactly one retry (2 calls), got %d", d.runCalls)
	}
}

func TestQueryDoesNotRetryInsideTransaction(t *testing.T) {
	d := &fakeDriver{}
	c := newFakeConnector(d)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := c.Begin(context.Background()); err != nil {
		t.Fatal(err)
	}

	d.runErr = NewConnectError(ErrnoServerGone, "server has gone away")
	_, err := c.Query(context.Background(), "UPDATE t SET a=1", nil, 0)
	if err == nil {
		t.Fatal("expected error, reconnect must not happen inside a transaction")
	}
	if d.runCalls != 1 {
		t.Fatalf("expected no retry inside transaction, got %d calls", d.runCalls)
	}
}

func TestQueryDoesNotRetryOnSemanticError(t *testing.T) {
	d := &fakeDriver{runErr: errors.New("syntax error near 'FROM'")}
	c := newFakeConnector(d)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	_, err := c.Query(context.Background(), "SELECT * FROM", nil, 0)
	if err == nil {
		t.Fatal("expected error")
	}
	if d.runCalls != 1 {
		t.Fatalf("semantic errors must never be retried, got %d calls", d.runCalls)
	}
}

func TestBeginCommitTogglesInTransaction(t *testing.T) {
	d := &fakeDriver{}
	c := newFakeConnector(d)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	if c.InTransaction() {
		t.Fatal("should not be in transaction before Begin")
	}
	if err := c.Begin(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !c.InTransaction() {
		t.Fatal("should be in transaction after Begin")
	}
	if err := c.Commit(); err != nil {
		t.Fatal(err)
	}
	if c.InTransaction() {
		t.Fatal("should not be in transaction after Commit")
	}
}

func TestCloseResetsCountersButNotPeak(t *testing.T) {
	d := &fakeDriver{}
	c := newFakeConnector(d)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Query(context.Background(), "SELECT 1", nil, 0); err != nil {
		t.Fatal(err)
	}
	if c.ExecCount() != 1 {
		t.Fatalf("expected execCount 1, got %d", c.ExecCount())
	}
	peakBefore := c.PeakExpendTime()

	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
	if c.ExecCount() != 0 {
		t.Fatalf("expected execCount reset to 0 after Close, got %d", c.ExecCount())
	}
	if c.PeakExpendTime() != peakBefore {
		t.Fatalf("peak expend time must survive Close")
	}
}

func TestIsSelectLikeClassification(t *testing.T) {
	cases := map[string]bool{
		"SELECT * FROM t":       true,
		"  select 1":            true,
		"show tables":           true,
		"INSERT INTO t VALUES":  false,
		"update t set a=1":      false,
		"delete from t":         false,
	}
	for sqlText, want := range cases {
		if got := IsSelectLike(sqlText); got != want {
			t.Errorf("IsSelectLike(%q) = %v, want %v", sqlText, got, want)
		}
	}
}

// deadlineDriver records the deadline the Connector put on the query's
// context.
type deadlineDriver struct {
	fakeDriver
	deadline    time.Time
	hasDeadline bool
}

func (d *deadlineDriver) Run(ctx context.Context, sqlText string, params []any) (*Result, error) {
	d.deadline, d.hasDeadline = ctx.Deadline()
	return &Result{}, nil
}

func TestQueryTimeoutDefaultsTo180Seconds(t *testing.T) {
	// Regression guard: a zero timeout must not mean "no timeout".
	d := &deadlineDriver{}
	dial := func(ctx context.Context, dsn DSN) (Driver, error) { return d, nil }
	c := NewWithDialer(DSN{Host: "localhost", Port: 3306}, RoleWrite, dial)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	start := time.Now()
	if _, err := c.Query(context.Background(), "SELECT 1", nil, 0); err != nil {
		t.Fatal(err)
	}
	if time.Since(start) > time.Second {
		t.Fatal("query should not have blocked meaningfully against a fake driver")
	}
	if !d.hasDeadline {
		t.Fatal("a zero timeout must still put a deadline on the query")
	}
	if got := d.deadline.Sub(start); got < 179*time.Second || got > 181*time.Second {
		t.Fatalf("expected a 180s default deadline, got %v", got)
	}
}
