package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/swarmlearn/swarmlearn/errors"
	"github.com/swarmlearn/swarmlearn/logging"
)

// Coordinator runs registered handlers in phase order during teardown.
type Coordinator struct {
	config Config
	logger *logging.Logger

	mu      sync.Mutex
	regs    []registration
	started bool

	once    sync.Once
	done    chan struct{}
	err     error
	report  *Report
	signals chan os.Signal
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger used for step reporting.
func WithLogger(l *logging.Logger) Option {
	return func(c *Coordinator) {
		c.logger = l
	}
}

// NewCoordinator creates a shutdown coordinator.
func NewCoordinator(cfg Config, opts ...Option) (*Coordinator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	c := &Coordinator{
		config:  cfg,
		logger:  logging.New().WithComponent("shutdown"),
		done:    make(chan struct{}),
		signals: make(chan os.Signal, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Register adds a handler at PhaseDefault.
func (c *Coordinator) Register(name string, h Handler) error {
	return c.RegisterPhase(name, h, PhaseDefault)
}

// RegisterFunc adds a function handler at the given phase.
func (c *Coordinator) RegisterFunc(name string, phase int, fn func(ctx context.Context) error) error {
	return c.RegisterPhase(name, HandlerFunc(fn), phase)
}

// RegisterPhase adds a handler at the given phase. Registration is
// rejected once teardown has begun.
func (c *Coordinator) RegisterPhase(name string, h Handler, phase int) error {
	if name == "" {
		return errors.Validation("handler name must not be empty")
	}
	if h == nil {
		return errors.Validation("handler must not be nil")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return errors.IllegalState("shutdown already initiated")
	}
	c.regs = append(c.regs, registration{name: name, handler: h, phase: phase})
	return nil
}

// Shutdown runs all registered handlers. The first call performs the
// teardown; once complete, subsequent calls return its error. A call
// made while teardown is in flight fails immediately.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	ran := false
	c.once.Do(func() {
		ran = true
		c.err = c.run(ctx)
		close(c.done)
	})
	if ran {
		return c.err
	}

	select {
	case <-c.done:
		return c.err
	default:
		return errors.IllegalState("shutdown already initiated")
	}
}

// ShutdownWithTimeout runs Shutdown bounded by the given timeout,
// falling back to the configured timeout when zero.
func (c *Coordinator) ShutdownWithTimeout(timeout time.Duration) error {
	if timeout == 0 {
		timeout = c.config.Timeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return c.Shutdown(ctx)
}

// NotifySignals starts teardown when SIGTERM or SIGINT arrives.
func (c *Coordinator) NotifySignals() {
	signal.Notify(c.signals, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		<-c.signals
		_ = c.ShutdownWithTimeout(c.config.Timeout)
	}()
}

// Trigger injects a synthetic signal. No-op when nothing listens.
func (c *Coordinator) Trigger() {
	select {
	case c.signals <- syscall.SIGTERM:
	default:
	}
}

// Done is closed when teardown has completed.
func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}

// Err returns the teardown error, or nil before completion.
func (c *Coordinator) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

// ShutdownReport returns the detailed report, or nil before completion.
func (c *Coordinator) ShutdownReport() *Report {
	select {
	case <-c.done:
		return c.report
	default:
		return nil
	}
}

func (c *Coordinator) run(ctx context.Context) error {
	start := time.Now()

	c.mu.Lock()
	c.started = true
	regs := make([]registration, len(c.regs))
	copy(regs, c.regs)
	c.mu.Unlock()

	sort.SliceStable(regs, func(i, j int) bool {
		return regs[i].phase < regs[j].phase
	})

	report := &Report{Steps: make([]StepReport, 0, len(regs))}
	var overall error

	for _, group := range groupByPhase(regs) {
		select {
		case <-ctx.Done():
			report.Err = errors.Timeout("shutdown deadline exceeded")
			report.Elapsed = time.Since(start)
			c.report = report
			return report.Err
		default:
		}

		steps := c.runPhase(ctx, group)
		report.Steps = append(report.Steps, steps...)

		for _, s := range steps {
			if s.Err == nil {
				continue
			}
			if overall == nil {
				overall = errors.Internal("one or more shutdown steps failed",
					errors.WithCause(s.Err))
			}
			if !c.config.ContinueOnError {
				report.Err = overall
				report.Elapsed = time.Since(start)
				c.report = report
				return overall
			}
		}
	}

	report.Err = overall
	report.Elapsed = time.Since(start)
	c.report = report
	return overall
}

// runPhase executes every handler in the group concurrently.
func (c *Coordinator) runPhase(ctx context.Context, group []registration) []StepReport {
	steps := make([]StepReport, len(group))
	var wg sync.WaitGroup

	for i, reg := range group {
		wg.Add(1)
		go func(idx int, r registration) {
			defer wg.Done()

			begin := time.Now()
			err := r.handler.Shutdown(ctx)
			step := StepReport{
				Name:    r.name,
				Phase:   r.phase,
				Elapsed: time.Since(begin),
				Err:     err,
			}
			steps[idx] = step

			fields := map[string]interface{}{
				"handler": r.name,
				"phase":   r.phase,
				"elapsed": step.Elapsed.String(),
			}
			if err != nil {
				fields["error"] = err.Error()
				c.logger.Error("Shutdown step failed", fields)
			} else {
				c.logger.Debug("Shutdown step complete", fields)
			}
		}(i, reg)
	}

	wg.Wait()
	return steps
}

func groupByPhase(regs []registration) [][]registration {
	var groups [][]registration
	for _, r := range regs {
		n := len(groups)
		if n == 0 || groups[n-1][0].phase != r.phase {
			groups = append(groups, []registration{r})
			continue
		}
		groups[n-1] = append(groups[n-1], r)
	}
	return groups
}
