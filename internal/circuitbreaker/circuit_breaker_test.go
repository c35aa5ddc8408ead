package circuitbreaker

import (
	"errors"
	"testing"
	"time"
)

func TestInitialState(t *testing.T) {
	b := New(DefaultConfig())
	if b.State() != StateClosed {
		t.Errorf("expected initial state CLOSED, got %s", b.State())
	}
	if b.IsOpen() {
		t.Error("breaker should not be open initially")
	}
}

func TestOpensAfterMaxFailures(t *testing.T) {
	cfg := Config{MaxFailures: 3, Timeout: time.Second, MaxRequests: 2}
	b := New(cfg)

	for i := 0; i < 3; i++ {
		if err := b.Call(func() error { return errors.New("dial failed") }); err == nil {
			t.Error("expected error from failing function")
		}
	}

	if b.State() != StateOpen {
		t.Fatalf("expected OPEN after %d failures, got %s", cfg.MaxFailures, b.State())
	}

	err := b.Call(func() error {
		t.Error("fn should not run while circuit is open")
		return nil
	})
	if err != ErrOpen {
		t.Errorf("expected ErrOpen, got %v", err)
	}

	stats := b.GetStats()
	if stats.TotalRejections != 1 {
		t.Errorf("expected 1 rejection, got %d", stats.TotalRejections)
	}
}

func TestHalfOpenRecovers(t *testing.T) {
	cfg := Config{MaxFailures: 1, Timeout: 20 * time.Millisecond, MaxRequests: 1}
	b := New(cfg)

	b.Call(func() error { return errors.New("fail") })
	if b.State() != StateOpen {
		t.Fatal("expected OPEN")
	}

	time.Sleep(30 * time.Millisecond)

	if err := b.Call(func() error { return nil }); err != nil {
		t.Fatalf("expected half-open probe to run, got %v", err)
	}
	if b.State() != StateClosed {
		t.Fatalf("expected CLOSED after successful probe, got %s", b.State())
	}
}

func TestHalfOpenFailureReopens(t *testing.T) {
	cfg := Config{MaxFailures: 1, Timeout: 20 * time.Millisecond, MaxRequests: 2}
	b := New(cfg)

	b.Call(func() error { return errors.New("fail") })
	time.Sleep(30 * time.Millisecond)

	b.Call(func() error { return errors.New("still down") })
	if b.State() != StateOpen {
		t.Fatalf("expected re-open after half-open failure, got %s", b.State())
	}
}
