package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errBackend = errors.New("backend failure")

func testConfig() Config {
	return Config{
		FailureThreshold:    3,
		SuccessThreshold:    2,
		Timeout:             20 * time.Millisecond,
		MaxRequestsHalfOpen: 2,
	}
}

func fail(cb *CircuitBreaker) error {
	return cb.Execute(context.Background(), func() error { return errBackend })
}

func succeed(cb *CircuitBreaker) error {
	return cb.Execute(context.Background(), func() error { return nil })
}

func TestExecute_PassesThroughWhenClosed(t *testing.T) {
	cb := New(testConfig())

	if err := succeed(cb); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cb.GetState() != StateClosed {
		t.Errorf("expected closed, got %v", cb.GetState())
	}
}

func TestExecute_OpensAfterThreshold(t *testing.T) {
	cb := New(testConfig())

	for i := 0; i < 3; i++ {
		if err := fail(cb); !errors.Is(err, errBackend) {
			t.Fatalf("expected wrapped backend error, got: %v", err)
		}
	}
	if cb.GetState() != StateOpen {
		t.Fatalf("expected open after threshold, got %v", cb.GetState())
	}

	ran := false
	err := cb.Execute(context.Background(), func() error {
		ran = true
		return nil
	})
	if !errors.Is(err, ErrOpen) {
		t.Errorf("expected ErrOpen, got: %v", err)
	}
	if ran {
		t.Error("function should not run while open")
	}
}

func TestExecute_SuccessResetsFailureCount(t *testing.T) {
	cb := New(testConfig())

	fail(cb)
	fail(cb)
	succeed(cb)
	fail(cb)
	fail(cb)

	if cb.GetState() != StateClosed {
		t.Errorf("interleaved successes should keep the circuit closed, got %v", cb.GetState())
	}
}

func TestHalfOpen_ClosesAfterSuccesses(t *testing.T) {
	cb := New(testConfig())

	for i := 0; i < 3; i++ {
		fail(cb)
	}
	time.Sleep(25 * time.Millisecond)

	if err := succeed(cb); err != nil {
		t.Fatalf("probe should be allowed after timeout: %v", err)
	}
	if cb.GetState() != StateHalfOpen {
		t.Fatalf("expected half-open, got %v", cb.GetState())
	}

	if err := succeed(cb); err != nil {
		t.Fatalf("second probe failed: %v", err)
	}
	if cb.GetState() != StateClosed {
		t.Errorf("expected closed after success threshold, got %v", cb.GetState())
	}
}

func TestHalfOpen_FailureReopens(t *testing.T) {
	cb := New(testConfig())

	for i := 0; i < 3; i++ {
		fail(cb)
	}
	time.Sleep(25 * time.Millisecond)

	fail(cb)
	if cb.GetState() != StateOpen {
		t.Errorf("failed probe should reopen the circuit, got %v", cb.GetState())
	}
}

func TestReset(t *testing.T) {
	cb := New(testConfig())

	for i := 0; i < 3; i++ {
		fail(cb)
	}
	cb.Reset()

	if cb.GetState() != StateClosed {
		t.Errorf("expected closed after reset, got %v", cb.GetState())
	}
	if err := succeed(cb); err != nil {
		t.Errorf("unexpected error after reset: %v", err)
	}
}
