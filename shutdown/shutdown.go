package shutdown

import (
	"context"
	"time"

	"github.com/swarmlearn/swarmlearn/errors"
)

// Teardown phases. Lower phases shut down first.
const (
	// PhaseScheduling stops the orchestrator so no new tasks are assigned.
	PhaseScheduling = 10

	// PhaseLearning interrupts episodes and ends training sessions.
	PhaseLearning = 20

	// PhaseTransport closes event buses and broadcasters.
	PhaseTransport = 30

	// PhaseStorage closes record stores after everything above has
	// flushed its final writes.
	PhaseStorage = 40

	// PhaseDefault is used by Register when no phase is given.
	PhaseDefault = 100
)

// Handler is implemented by components that need graceful teardown.
// The context is cancelled when the shutdown deadline is reached.
type Handler interface {
	Shutdown(ctx context.Context) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context) error

// Shutdown implements Handler.
func (f HandlerFunc) Shutdown(ctx context.Context) error {
	return f(ctx)
}

// StepReport records the outcome of one handler's teardown.
type StepReport struct {
	Name    string
	Phase   int
	Elapsed time.Duration
	Err     error
}

// Report records the outcome of a full teardown.
type Report struct {
	Elapsed time.Duration
	Steps   []StepReport
	Err     error
}

// FailedSteps returns the names of handlers that returned an error.
func (r *Report) FailedSteps() []string {
	var failed []string
	for _, s := range r.Steps {
		if s.Err != nil {
			failed = append(failed, s.Name)
		}
	}
	return failed
}

// Config controls coordinator behavior.
type Config struct {
	// Timeout bounds the whole teardown when ShutdownWithTimeout or
	// signal handling initiates it.
	Timeout time.Duration

	// ContinueOnError keeps running later phases after a handler fails.
	ContinueOnError bool
}

// DefaultConfig returns the default coordinator configuration.
func DefaultConfig() Config {
	return Config{
		Timeout:         30 * time.Second,
		ContinueOnError: true,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Timeout < 0 {
		return errors.Config("shutdown timeout must not be negative")
	}
	return nil
}

// registration pairs a handler with its name and phase.
type registration struct {
	name    string
	handler Handler
	phase   int
}
