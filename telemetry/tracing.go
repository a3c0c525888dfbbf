// OpenTelemetry tracing support for scheduler and learning observability.
package telemetry

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// Tracer wraps OpenTelemetry tracing with orchestration-specific helpers.
type Tracer struct {
	tracer trace.Tracer
	debug  bool // When true, include payloads in span attributes
}

var (
	globalTracer *Tracer
	tracerMu     sync.RWMutex
)

// SetGlobalTracer sets the global tracer instance.
func SetGlobalTracer(t *Tracer) {
	tracerMu.Lock()
	defer tracerMu.Unlock()
	globalTracer = t
}

// GetTracer returns the global tracer, or a no-op tracer if not set.
func GetTracer() *Tracer {
	tracerMu.RLock()
	defer tracerMu.RUnlock()
	if globalTracer == nil {
		return &Tracer{tracer: trace.NewNoopTracerProvider().Tracer("")}
	}
	return globalTracer
}

// NewTracer creates a new tracer with the given name.
func NewTracer(name string, debug bool) *Tracer {
	return &Tracer{
		tracer: otel.Tracer(name),
		debug:  debug,
	}
}

// SetDebug enables or disables debug mode (payloads in spans).
func (t *Tracer) SetDebug(debug bool) {
	t.debug = debug
}

// Debug returns whether debug mode is enabled.
func (t *Tracer) Debug() bool {
	return t.debug
}

// StartSpan starts a new span with the given name.
func (t *Tracer) StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, opts...)
}

// --- Task Spans ---

// TaskSpanOptions contains options for task execution spans.
type TaskSpanOptions struct {
	TaskID   string
	TaskType string
	Priority string
	WorkerID string
	Duration time.Duration
	Output   string // Only included if debug=true
}

// StartTaskSpan starts a span covering one task's execution.
func (t *Tracer) StartTaskSpan(ctx context.Context, taskType string) (context.Context, trace.Span) {
	ctx, span := t.tracer.Start(ctx, "task."+taskType, trace.WithSpanKind(trace.SpanKindInternal))
	span.SetAttributes(attribute.String("task.type", taskType))
	return ctx, span
}

// EndTaskSpan ends a task span with attributes.
func (t *Tracer) EndTaskSpan(span trace.Span, opts TaskSpanOptions, err error) {
	attrs := []attribute.KeyValue{
		attribute.String("task.id", opts.TaskID),
		attribute.String("task.priority", opts.Priority),
		attribute.String("task.worker", opts.WorkerID),
		attribute.Int64("task.duration_ms", opts.Duration.Milliseconds()),
	}

	if t.debug && opts.Output != "" {
		attrs = append(attrs, attribute.String("task.output", truncate(opts.Output, 4000)))
	}

	span.SetAttributes(attrs...)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}

	span.End()
}

// --- Tick Spans ---

// TickSpanOptions contains options for scheduler tick spans.
type TickSpanOptions struct {
	Pending  int
	Idle     int
	Assigned int
}

// StartTickSpan starts a span for one scheduler tick.
func (t *Tracer) StartTickSpan(ctx context.Context) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "scheduler.tick", trace.WithSpanKind(trace.SpanKindInternal))
}

// EndTickSpan ends a tick span with attributes.
func (t *Tracer) EndTickSpan(span trace.Span, opts TickSpanOptions) {
	span.SetAttributes(
		attribute.Int("tick.pending", opts.Pending),
		attribute.Int("tick.idle", opts.Idle),
		attribute.Int("tick.assigned", opts.Assigned),
	)
	span.SetStatus(codes.Ok, "")
	span.End()
}

// --- Learning Spans ---

// StepSpanOptions contains options for environment step spans.
type StepSpanOptions struct {
	AgentID string
	Action  string
	Step    int
	Reward  float64
	Done    bool
}

// StartStepSpan starts a span for one environment step.
func (t *Tracer) StartStepSpan(ctx context.Context, agentID string) (context.Context, trace.Span) {
	ctx, span := t.tracer.Start(ctx, "learning.step", trace.WithSpanKind(trace.SpanKindInternal))
	span.SetAttributes(attribute.String("agent.id", agentID))
	return ctx, span
}

// EndStepSpan ends a step span with attributes.
func (t *Tracer) EndStepSpan(span trace.Span, opts StepSpanOptions, err error) {
	span.SetAttributes(
		attribute.String("step.action", opts.Action),
		attribute.Int("step.number", opts.Step),
		attribute.Float64("step.reward", opts.Reward),
		attribute.Bool("step.done", opts.Done),
	)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}

	span.End()
}

// SessionSpanOptions contains options for training session spans.
type SessionSpanOptions struct {
	SessionID   string
	Episodes    int
	Improvement float64
	Converged   bool
}

// StartSessionSpan starts a span covering one training session.
func (t *Tracer) StartSessionSpan(ctx context.Context) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "learning.session", trace.WithSpanKind(trace.SpanKindInternal))
}

// EndSessionSpan ends a session span with attributes.
func (t *Tracer) EndSessionSpan(span trace.Span, opts SessionSpanOptions) {
	span.SetAttributes(
		attribute.String("session.id", opts.SessionID),
		attribute.Int("session.episodes", opts.Episodes),
		attribute.Float64("session.improvement", opts.Improvement),
		attribute.Bool("session.converged", opts.Converged),
	)
	span.SetStatus(codes.Ok, "")
	span.End()
}

// --- Context Propagation ---

// InjectContext injects trace context into a carrier for cross-process propagation.
func InjectContext(ctx context.Context, carrier propagation.TextMapCarrier) {
	otel.GetTextMapPropagator().Inject(ctx, carrier)
}

// ExtractContext extracts trace context from a carrier.
func ExtractContext(ctx context.Context, carrier propagation.TextMapCarrier) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}

// MapCarrier is a simple map-based TextMapCarrier for context propagation.
type MapCarrier map[string]string

func (c MapCarrier) Get(key string) string {
	return c[key]
}

func (c MapCarrier) Set(key, value string) {
	c[key] = value
}

func (c MapCarrier) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	return keys
}

// --- Helpers ---

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
