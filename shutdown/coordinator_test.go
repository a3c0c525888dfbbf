package shutdown

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/swarmlearn/swarmlearn/errors"
)

// orderRecorder collects handler completion order.
type orderRecorder struct {
	mu    sync.Mutex
	order []string
}

func (r *orderRecorder) handler(name string) HandlerFunc {
	return func(ctx context.Context) error {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.order = append(r.order, name)
		return nil
	}
}

func newCoordinator(t *testing.T, cfg Config) *Coordinator {
	t.Helper()
	c, err := NewCoordinator(cfg)
	if err != nil {
		t.Fatalf("NewCoordinator failed: %v", err)
	}
	return c
}

func TestPhaseOrdering(t *testing.T) {
	c := newCoordinator(t, DefaultConfig())
	rec := &orderRecorder{}

	if err := c.RegisterPhase("store", rec.handler("store"), PhaseStorage); err != nil {
		t.Fatalf("RegisterPhase failed: %v", err)
	}
	if err := c.RegisterPhase("orchestrator", rec.handler("orchestrator"), PhaseScheduling); err != nil {
		t.Fatalf("RegisterPhase failed: %v", err)
	}
	if err := c.RegisterPhase("bus", rec.handler("bus"), PhaseTransport); err != nil {
		t.Fatalf("RegisterPhase failed: %v", err)
	}
	if err := c.RegisterPhase("environment", rec.handler("environment"), PhaseLearning); err != nil {
		t.Fatalf("RegisterPhase failed: %v", err)
	}

	if err := c.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}

	want := []string{"orchestrator", "environment", "bus", "store"}
	if len(rec.order) != len(want) {
		t.Fatalf("Expected %d steps, got %v", len(want), rec.order)
	}
	for i, name := range want {
		if rec.order[i] != name {
			t.Errorf("Step %d: expected %s, got %s", i, name, rec.order[i])
		}
	}
}

func TestSamePhaseRunsConcurrently(t *testing.T) {
	c := newCoordinator(t, DefaultConfig())

	gate := make(chan struct{})
	blocked := func(ctx context.Context) error {
		<-gate
		return nil
	}
	release := func(ctx context.Context) error {
		close(gate)
		return nil
	}

	// If the phase ran serially, the first handler would deadlock
	// waiting for the second.
	if err := c.RegisterPhase("blocked", HandlerFunc(blocked), PhaseTransport); err != nil {
		t.Fatalf("RegisterPhase failed: %v", err)
	}
	if err := c.RegisterPhase("release", HandlerFunc(release), PhaseTransport); err != nil {
		t.Fatalf("RegisterPhase failed: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- c.Shutdown(context.Background()) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Shutdown failed: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Same-phase handlers did not run concurrently")
	}
}

func TestContinueOnError(t *testing.T) {
	c := newCoordinator(t, Config{Timeout: time.Second, ContinueOnError: true})
	rec := &orderRecorder{}

	failing := func(ctx context.Context) error { return fmt.Errorf("flush failed") }
	c.RegisterFunc("bus", PhaseTransport, failing)
	c.RegisterFunc("store", PhaseStorage, rec.handler("store"))

	err := c.Shutdown(context.Background())
	if errors.CodeOf(err) != errors.ErrCodeInternal {
		t.Errorf("Expected INTERNAL code, got %v", err)
	}
	if len(rec.order) != 1 || rec.order[0] != "store" {
		t.Errorf("Later phases should still run, got %v", rec.order)
	}

	report := c.ShutdownReport()
	if report == nil {
		t.Fatal("Expected a report after completion")
	}
	if failed := report.FailedSteps(); len(failed) != 1 || failed[0] != "bus" {
		t.Errorf("Expected bus to be the failed step, got %v", failed)
	}
}

func TestStopOnError(t *testing.T) {
	c := newCoordinator(t, Config{Timeout: time.Second})
	rec := &orderRecorder{}

	c.RegisterFunc("bus", PhaseTransport, func(ctx context.Context) error {
		return fmt.Errorf("flush failed")
	})
	c.RegisterFunc("store", PhaseStorage, rec.handler("store"))

	if err := c.Shutdown(context.Background()); err == nil {
		t.Error("Expected error")
	}
	if len(rec.order) != 0 {
		t.Errorf("Later phases should not run, got %v", rec.order)
	}
}

func TestDeadlineAbortsRemainingPhases(t *testing.T) {
	c := newCoordinator(t, DefaultConfig())
	rec := &orderRecorder{}

	c.RegisterFunc("slow", PhaseScheduling, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	c.RegisterFunc("store", PhaseStorage, rec.handler("store"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := c.Shutdown(ctx)
	if errors.CodeOf(err) != errors.ErrCodeTimeout {
		t.Errorf("Expected TIMEOUT code, got %v", err)
	}
	if len(rec.order) != 0 {
		t.Errorf("Phases past the deadline should not run, got %v", rec.order)
	}
}

func TestShutdownOnce(t *testing.T) {
	c := newCoordinator(t, DefaultConfig())
	count := 0
	c.RegisterFunc("counter", PhaseDefault, func(ctx context.Context) error {
		count++
		return nil
	})

	if err := c.Shutdown(context.Background()); err != nil {
		t.Fatalf("First shutdown failed: %v", err)
	}
	if err := c.Shutdown(context.Background()); err != nil {
		t.Fatalf("Repeat shutdown should return the recorded result: %v", err)
	}
	if count != 1 {
		t.Errorf("Handlers should run once, ran %d times", count)
	}

	if err := c.Register("late", HandlerFunc(func(ctx context.Context) error { return nil })); err == nil {
		t.Error("Registration after shutdown should fail")
	}
}

func TestRegisterValidation(t *testing.T) {
	c := newCoordinator(t, DefaultConfig())

	if err := c.Register("", HandlerFunc(func(ctx context.Context) error { return nil })); err == nil {
		t.Error("Empty name should be rejected")
	}
	if err := c.Register("nil", nil); err == nil {
		t.Error("Nil handler should be rejected")
	}
}

func TestTriggerStartsShutdown(t *testing.T) {
	c := newCoordinator(t, Config{Timeout: time.Second, ContinueOnError: true})
	c.RegisterFunc("noop", PhaseDefault, func(ctx context.Context) error { return nil })

	c.NotifySignals()
	c.Trigger()

	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("Trigger should start shutdown")
	}
	if c.Err() != nil {
		t.Errorf("Expected clean shutdown, got %v", c.Err())
	}
}

func TestErrNilBeforeCompletion(t *testing.T) {
	c := newCoordinator(t, DefaultConfig())
	if c.Err() != nil {
		t.Error("Err should be nil before shutdown")
	}
	if c.ShutdownReport() != nil {
		t.Error("Report should be nil before shutdown")
	}
}

func TestInvalidConfig(t *testing.T) {
	if _, err := NewCoordinator(Config{Timeout: -time.Second}); err == nil {
		t.Error("Negative timeout should be rejected")
	}
}
