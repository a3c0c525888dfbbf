package scheduler

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/swarmlearn/swarmlearn/errors"
	"github.com/swarmlearn/swarmlearn/events"
	"github.com/swarmlearn/swarmlearn/logging"
	"github.com/swarmlearn/swarmlearn/registry"
	"github.com/swarmlearn/swarmlearn/store"
	"github.com/swarmlearn/swarmlearn/telemetry"
)

// Config configures an Orchestrator.
type Config struct {
	// TickInterval is the scheduling tick period.
	// Default: 1s
	TickInterval time.Duration `toml:"tick_interval"`

	// ExecutionTimeout bounds one strategy execution.
	// Default: 60s
	ExecutionTimeout time.Duration `toml:"execution_timeout"`

	// StuckThreshold is how long a task may run before its worker is
	// flagged by the health check.
	// Default: 30s
	StuckThreshold time.Duration `toml:"stuck_threshold"`

	// Capabilities maps task types to the capability tags a worker
	// needs at least one of. Submissions of unmapped types are rejected.
	Capabilities map[TaskType][]string `toml:"capabilities"`
}

// DefaultConfig returns configuration with sensible defaults. The
// capability map starts empty; callers declare their task types.
func DefaultConfig() Config {
	return Config{
		TickInterval:     time.Second,
		ExecutionTimeout: 60 * time.Second,
		StuckThreshold:   30 * time.Second,
		Capabilities:     make(map[TaskType][]string),
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.TickInterval <= 0 {
		return errors.Config("tick_interval must be positive")
	}
	if c.ExecutionTimeout <= 0 {
		return errors.Config("execution_timeout must be positive")
	}
	if c.StuckThreshold <= 0 {
		return errors.Config("stuck_threshold must be positive")
	}
	for taskType, caps := range c.Capabilities {
		if len(caps) == 0 {
			return errors.Config("task type " + string(taskType) + " maps to no capabilities")
		}
	}
	return nil
}

// Orchestrator owns the task queue and drives the scheduling tick.
type Orchestrator struct {
	config     Config
	registry   registry.Registry
	strategies *StrategyRegistry
	bus        events.Bus
	records    store.RecordStore
	logger     *logging.Logger
	tracer     *telemetry.Tracer

	mu      sync.Mutex
	queue   *taskQueue
	tasks   map[string]*Task
	flagged map[string]bool // task IDs already reported by the health check

	running atomic.Bool
	stop    chan struct{}
	wg      sync.WaitGroup
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(logger *logging.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger.WithComponent("orchestrator")
	}
}

// WithEventBus publishes task lifecycle events.
func WithEventBus(bus events.Bus) Option {
	return func(o *Orchestrator) {
		o.bus = bus
	}
}

// WithRecordStore writes task and worker audit records. The scheduler
// never reads this store back; it exists for observability.
func WithRecordStore(s store.RecordStore) Option {
	return func(o *Orchestrator) {
		o.records = s
	}
}

// New creates an orchestrator over a worker registry and a strategy
// registry.
func New(cfg Config, reg registry.Registry, strategies *StrategyRegistry, opts ...Option) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if reg == nil {
		return nil, errors.Validation("registry must not be nil")
	}
	if strategies == nil {
		return nil, errors.Validation("strategy registry must not be nil")
	}

	o := &Orchestrator{
		config:     cfg,
		registry:   reg,
		strategies: strategies,
		tracer:     telemetry.GetTracer(),
		queue:      newTaskQueue(),
		tasks:      make(map[string]*Task),
		flagged:    make(map[string]bool),
		stop:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// SubmitTask validates and enqueues a task, returning its ID. Unknown
// task types and priorities are rejected and never enqueued.
func (o *Orchestrator) SubmitTask(taskType TaskType, priority Priority, input json.RawMessage) (string, error) {
	if !priority.Valid() {
		return "", errors.Validation("unknown priority " + string(priority))
	}
	if _, ok := o.config.Capabilities[taskType]; !ok {
		return "", errors.Validation("unknown task type " + string(taskType))
	}

	task := &Task{
		ID:       uuid.NewString(),
		Type:     taskType,
		Priority: priority,
		Status:   StatusPending,
		Input:    input,
		Created:  time.Now(),
	}

	o.mu.Lock()
	o.tasks[task.ID] = task
	o.queue.push(task)
	o.mu.Unlock()

	if o.logger != nil {
		o.logger.TaskSubmitted(task.ID, string(taskType), string(priority))
	}
	o.publish(&events.Event{
		Kind:      events.KindTaskSubmitted,
		TaskID:    task.ID,
		Timestamp: time.Now(),
		Detail: map[string]interface{}{
			"type":     string(taskType),
			"priority": string(priority),
		},
	})
	o.audit(task)

	return task.ID, nil
}

// Start launches the recurring scheduling tick.
func (o *Orchestrator) Start() error {
	if o.running.Swap(true) {
		return errors.IllegalState("orchestrator already running")
	}

	o.wg.Add(1)
	go o.loop()
	return nil
}

// Stop halts the tick loop and waits for in-flight executions.
func (o *Orchestrator) Stop() {
	if !o.running.Swap(false) {
		return
	}
	close(o.stop)
	o.wg.Wait()
}

// loop drives Tick and the health check until stopped.
func (o *Orchestrator) loop() {
	defer o.wg.Done()

	ticker := time.NewTicker(o.config.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-o.stop:
			return
		case <-ticker.C:
			o.Tick(context.Background())
			o.healthCheck()
		}
	}
}

// Tick runs one scheduling pass: for each idle worker, assign the
// highest-priority pending task whose required capabilities the worker
// overlaps. Returns the number of assignments made. No compatible task
// for a worker (or no idle worker for a task) is not an error; the task
// stays pending until a later tick.
func (o *Orchestrator) Tick(ctx context.Context) int {
	tctx, span := o.tracer.StartTickSpan(ctx)

	idle, err := o.registry.Idle()
	if err != nil {
		if o.logger != nil {
			o.logger.Error("idle worker lookup failed", map[string]interface{}{"error": err.Error()})
		}
		o.tracer.EndTickSpan(span, telemetry.TickSpanOptions{})
		return 0
	}

	assigned := 0
	for _, worker := range idle {
		task := o.assign(worker)
		if task == nil {
			continue
		}
		assigned++

		if o.logger != nil {
			o.logger.TaskAssigned(task.ID, worker.ID)
		}
		o.publish(&events.Event{
			Kind:      events.KindTaskAssigned,
			TaskID:    task.ID,
			WorkerID:  worker.ID,
			Timestamp: time.Now(),
		})

		o.wg.Add(1)
		go o.execute(tctx, task, worker)
	}

	o.mu.Lock()
	pending := o.queue.len()
	o.mu.Unlock()

	o.tracer.EndTickSpan(span, telemetry.TickSpanOptions{
		Pending:  pending,
		Idle:     len(idle),
		Assigned: assigned,
	})
	return assigned
}

// assign atomically picks a compatible pending task for a worker and
// flips the worker to busy. The queue read, the cancellation check, and
// the busy flip happen under one lock so a worker can never be handed
// two tasks and a cancelled task can never be committed.
func (o *Orchestrator) assign(worker registry.WorkerInfo) *Task {
	o.mu.Lock()
	defer o.mu.Unlock()

	task := o.queue.pop(func(t *Task) bool {
		if t.Status != StatusPending {
			return false
		}
		required := o.config.Capabilities[t.Type]
		return registry.HasAnyCapability(worker, required)
	})
	if task == nil {
		return nil
	}

	err := o.registry.Update(worker.ID, func(info *registry.WorkerInfo) error {
		if info.Status != registry.StatusIdle {
			return errors.Conflict("worker no longer idle", errors.WithWorkerID(info.ID))
		}
		info.Status = registry.StatusBusy
		info.CurrentTaskID = task.ID
		info.Performance.CurrentLoad++
		return nil
	})
	if err != nil {
		// Worker vanished or raced to busy; the task goes back.
		o.queue.push(task)
		return nil
	}

	task.Status = StatusAssigned
	task.AssignedWorker = worker.ID
	return task
}

// execute runs one task through its worker's strategy. Failures and
// panics are recorded on the task and never propagate.
func (o *Orchestrator) execute(ctx context.Context, task *Task, worker registry.WorkerInfo) {
	defer o.wg.Done()

	tctx, span := o.tracer.StartTaskSpan(ctx, string(task.Type))
	start := time.Now()

	var output json.RawMessage
	var err error

	func() {
		defer func() {
			if r := recover(); r != nil {
				err = errors.Newf(errors.ErrCodePanic, "strategy panicked: %v", r)
			}
		}()

		o.mu.Lock()
		terr := task.Transition(StatusRunning)
		if terr == nil {
			task.Started = time.Now()
			start = task.Started
		}
		o.mu.Unlock()
		if terr != nil {
			// Cancelled between assignment and start.
			return
		}

		strategy, ok := o.strategies.Get(worker.Type)
		if !ok {
			err = errors.Execution(task.ID, "no strategy for worker type "+worker.Type,
				errors.WithWorkerID(worker.ID))
			return
		}

		cctx, cancel := context.WithTimeout(tctx, o.config.ExecutionTimeout)
		defer cancel()

		output, err = strategy.Execute(cctx, task)
		if err != nil && errors.Is(err, context.DeadlineExceeded) {
			err = errors.Timeout("task execution timed out",
				errors.WithTaskID(task.ID), errors.WithWorkerID(worker.ID), errors.WithCause(err))
		}
	}()

	o.finish(task, worker, output, err, time.Since(start), span)
}

// finish commits the execution result, releases the worker, and emits
// the completion notification. A task cancelled mid-run keeps its
// cancelled status and the result is discarded.
func (o *Orchestrator) finish(task *Task, worker registry.WorkerInfo, output json.RawMessage, execErr error, duration time.Duration, span trace.Span) {
	o.mu.Lock()
	success := false
	switch {
	case task.Status == StatusCancelled:
		// Result discarded; counted as an unsuccessful attempt.
	case execErr != nil:
		task.Status = StatusFailed
		task.Output = failureOutput(execErr)
		task.Completed = time.Now()
	case task.Status == StatusRunning:
		task.Status = StatusCompleted
		task.Output = output
		task.Completed = time.Now()
		success = true
	}
	delete(o.flagged, task.ID)
	o.mu.Unlock()

	// Releasing the worker also clears a health-check error flag: the
	// worker reported back.
	err := o.registry.Update(worker.ID, func(info *registry.WorkerInfo) error {
		info.Status = registry.StatusIdle
		info.CurrentTaskID = ""
		if info.Performance.CurrentLoad > 0 {
			info.Performance.CurrentLoad--
		}
		info.Performance.RecordExecution(duration, success)
		return nil
	})
	if err != nil && o.logger != nil {
		o.logger.Warn("worker release failed", map[string]interface{}{
			"worker": worker.ID,
			"error":  err.Error(),
		})
	}

	o.notifyFinished(task, worker.ID, execErr, duration)
	o.audit(task)
	o.auditWorker(worker.ID)

	o.tracer.EndTaskSpan(span, telemetry.TaskSpanOptions{
		TaskID:   task.ID,
		TaskType: string(task.Type),
		Priority: string(task.Priority),
		WorkerID: worker.ID,
		Duration: duration,
		Output:   string(output),
	}, execErr)
}

// notifyFinished logs and publishes the terminal event for a finished
// execution.
func (o *Orchestrator) notifyFinished(task *Task, workerID string, execErr error, duration time.Duration) {
	o.mu.Lock()
	status := task.Status
	o.mu.Unlock()

	switch status {
	case StatusCompleted:
		if o.logger != nil {
			o.logger.TaskCompleted(task.ID, workerID, duration)
		}
		o.publish(&events.Event{
			Kind:      events.KindTaskCompleted,
			TaskID:    task.ID,
			WorkerID:  workerID,
			Timestamp: time.Now(),
			Detail:    map[string]interface{}{"duration_ms": duration.Milliseconds()},
		})
	case StatusFailed:
		if o.logger != nil {
			o.logger.TaskFailed(task.ID, workerID, execErr)
		}
		detail := map[string]interface{}{"duration_ms": duration.Milliseconds()}
		if execErr != nil {
			detail["error"] = execErr.Error()
		}
		o.publish(&events.Event{
			Kind:      events.KindTaskFailed,
			TaskID:    task.ID,
			WorkerID:  workerID,
			Timestamp: time.Now(),
			Detail:    detail,
		})
	}
}

// auditWorker writes the worker's performance record to the store.
func (o *Orchestrator) auditWorker(workerID string) {
	if o.records == nil {
		return
	}
	info, err := o.registry.Get(workerID)
	if err != nil {
		return
	}
	if err := store.PutJSON(o.records, store.PrefixWorker+workerID, info); err != nil && o.logger != nil {
		o.logger.Warn("worker audit write failed", map[string]interface{}{
			"worker": workerID,
			"error":  err.Error(),
		})
	}
}

// failureOutput packs an error description into the task output payload.
func failureOutput(err error) json.RawMessage {
	data, merr := json.Marshal(map[string]string{"error": err.Error()})
	if merr != nil {
		return json.RawMessage(`{"error":"execution failed"}`)
	}
	return data
}

// CancelTask cancels a task. Returns true if the cancellation changed
// state; cancelling an already-terminal task returns false with no
// state change. Safe to call concurrently with Tick.
func (o *Orchestrator) CancelTask(id string) (bool, error) {
	o.mu.Lock()
	task, ok := o.tasks[id]
	if !ok {
		o.mu.Unlock()
		return false, errors.NotFound("unknown task", errors.WithTaskID(id))
	}
	if task.Status.Terminal() {
		o.mu.Unlock()
		return false, nil
	}

	o.queue.remove(id)
	task.Status = StatusCancelled
	task.Completed = time.Now()
	o.mu.Unlock()

	if o.logger != nil {
		o.logger.TaskCancelled(id)
	}
	o.publish(&events.Event{
		Kind:      events.KindTaskCancelled,
		TaskID:    id,
		Timestamp: time.Now(),
	})
	o.audit(task)
	return true, nil
}

// GetTask returns a copy of a task.
func (o *Orchestrator) GetTask(id string) (*Task, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	task, ok := o.tasks[id]
	if !ok {
		return nil, errors.NotFound("unknown task", errors.WithTaskID(id))
	}
	return task.clone(), nil
}

// ListTasks returns copies of tasks, optionally filtered by status.
// Empty status means all tasks.
func (o *Orchestrator) ListTasks(status Status) []*Task {
	o.mu.Lock()
	defer o.mu.Unlock()

	var out []*Task
	for _, task := range o.tasks {
		if status == "" || task.Status == status {
			out = append(out, task.clone())
		}
	}
	return out
}

// PendingCount returns the number of queued tasks.
func (o *Orchestrator) PendingCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.queue.len()
}

// healthCheck flags workers whose task has been running past the stuck
// threshold. Flagged workers move to error status and are excluded from
// matching; the in-flight strategy is not preempted.
func (o *Orchestrator) healthCheck() {
	now := time.Now()

	o.mu.Lock()
	type stuck struct {
		taskID   string
		workerID string
		running  time.Duration
	}
	var found []stuck
	for id, task := range o.tasks {
		if task.Status != StatusRunning || o.flagged[id] {
			continue
		}
		if elapsed := now.Sub(task.Started); elapsed > o.config.StuckThreshold {
			o.flagged[id] = true
			found = append(found, stuck{taskID: id, workerID: task.AssignedWorker, running: elapsed})
		}
	}
	o.mu.Unlock()

	for _, s := range found {
		err := o.registry.Update(s.workerID, func(info *registry.WorkerInfo) error {
			info.Status = registry.StatusError
			return nil
		})
		if err != nil && o.logger != nil {
			o.logger.Warn("stuck worker flag failed", map[string]interface{}{
				"worker": s.workerID,
				"error":  err.Error(),
			})
		}
		if o.logger != nil {
			o.logger.WorkerStuck(s.workerID, s.taskID, s.running)
		}
		o.publish(&events.Event{
			Kind:      events.KindWorkerStuck,
			TaskID:    s.taskID,
			WorkerID:  s.workerID,
			Timestamp: time.Now(),
			Detail:    map[string]interface{}{"running_ms": s.running.Milliseconds()},
		})
	}
}

// publish sends an event, dropping it if the bus is absent or failing.
func (o *Orchestrator) publish(ev *events.Event) {
	if o.bus == nil {
		return
	}
	if err := o.bus.Publish(events.SubjectTasks, ev); err != nil && o.logger != nil {
		o.logger.Warn("event publish failed", map[string]interface{}{"error": err.Error()})
	}
}

// audit writes the task's current state to the record store.
func (o *Orchestrator) audit(task *Task) {
	if o.records == nil {
		return
	}
	o.mu.Lock()
	snapshot := task.clone()
	o.mu.Unlock()
	if err := store.PutJSON(o.records, store.PrefixTask+task.ID, snapshot); err != nil && o.logger != nil {
		o.logger.Warn("task audit write failed", map[string]interface{}{
			"task":  task.ID,
			"error": err.Error(),
		})
	}
}
