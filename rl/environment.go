package rl

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/swarmlearn/swarmlearn/errors"
	"github.com/swarmlearn/swarmlearn/events"
	"github.com/swarmlearn/swarmlearn/logging"
	"github.com/swarmlearn/swarmlearn/reward"
	"github.com/swarmlearn/swarmlearn/store"
	"github.com/swarmlearn/swarmlearn/telemetry"
)

// Mode selects how a step's reward is distributed to non-acting agents.
type Mode string

const (
	// ModeCooperative copies the full reward to every other agent.
	ModeCooperative Mode = "cooperative"
	// ModeCompetitive attenuates the reward for other agents.
	ModeCompetitive Mode = "competitive"
)

// competitiveFactor scales rewards delivered to non-acting agents in
// competitive mode.
const competitiveFactor = 0.3

// Feature names the environment's derived metrics read.
const (
	FeatureComplexity = "complexity"
	FeatureAccuracy   = "accuracy"
	FeatureEfficiency = "efficiency"
)

// EnvConfig configures an environment.
type EnvConfig struct {
	// MaxSteps ends the episode after this many steps.
	// Default: 100
	MaxSteps int `toml:"max_steps"`

	// Deterministic disables feature noise when true.
	// Default: true
	Deterministic bool `toml:"deterministic"`

	// NoiseAmplitude bounds the uniform noise injected into numeric
	// features when the environment is non-deterministic.
	// Default: 0.05
	NoiseAmplitude float64 `toml:"noise_amplitude"`

	// Mode is the multi-agent reward distribution mode.
	// Default: cooperative
	Mode Mode `toml:"mode"`

	// GoalPerformance ends the episode once overall performance
	// reaches this threshold. 0 disables the check.
	// Default: 0.95
	GoalPerformance float64 `toml:"goal_performance"`

	// RewardTarget ends the episode once the acting agent's average
	// reward reaches this threshold. 0 disables the check.
	RewardTarget float64 `toml:"reward_target"`

	// Reward configures the reward calculator.
	Reward reward.Config `toml:"reward"`
}

// DefaultEnvConfig returns configuration with sensible defaults.
func DefaultEnvConfig() EnvConfig {
	return EnvConfig{
		MaxSteps:        100,
		Deterministic:   true,
		NoiseAmplitude:  0.05,
		Mode:            ModeCooperative,
		GoalPerformance: 0.95,
		Reward:          reward.DefaultConfig(),
	}
}

// Validate checks the configuration.
func (c EnvConfig) Validate() error {
	if c.MaxSteps <= 0 {
		return errors.Config("max_steps must be positive")
	}
	if c.NoiseAmplitude < 0 {
		return errors.Config("noise_amplitude must not be negative")
	}
	if c.Mode != ModeCooperative && c.Mode != ModeCompetitive {
		return errors.Config("mode must be cooperative or competitive")
	}
	return nil
}

// StepResult is the outcome of one environment step.
type StepResult struct {
	NextState AgentState             `json:"next_state"`
	Reward    reward.Reward          `json:"reward"`
	Done      bool                   `json:"done"`
	Info      map[string]interface{} `json:"info,omitempty"`
}

// TrainingSession aggregates an episode run. Returned by
// EndTrainingSession, not retained by the environment.
type TrainingSession struct {
	ID               string    `json:"id"`
	Started          time.Time `json:"started"`
	Ended            time.Time `json:"ended"`
	Episodes         int       `json:"episodes"`
	Steps            int       `json:"steps"`
	CumulativeReward float64   `json:"cumulative_reward"`
	Improvement      float64   `json:"improvement"`
	Convergence      float64   `json:"convergence"`
	Converged        bool      `json:"converged"`

	baseline float64
}

// Environment drives episodes: it applies action effects, computes
// rewards, forwards experiences to agents, and distributes rewards
// across the agent pool.
type Environment struct {
	config   EnvConfig
	actions  []reward.Action
	effects  map[string]map[string]float64
	calc     *reward.Calculator
	logger   *logging.Logger
	bus      events.Bus
	records  store.RecordStore
	tracer   *telemetry.Tracer
	exporter telemetry.Exporter

	mu          sync.Mutex
	rng         *rand.Rand
	agents      map[string]*Agent
	order       []string
	active      bool
	done        bool
	interrupted bool
	stepCount   int
	session     *TrainingSession
	sessionSpan trace.Span
}

// EnvOption configures an Environment.
type EnvOption func(*Environment)

// WithEnvLogger sets the logger.
func WithEnvLogger(logger *logging.Logger) EnvOption {
	return func(e *Environment) {
		e.logger = logger.WithComponent("environment")
	}
}

// WithEnvSeed seeds the noise source for reproducible runs.
func WithEnvSeed(seed int64) EnvOption {
	return func(e *Environment) {
		e.rng = rand.New(rand.NewSource(seed))
	}
}

// WithEventBus publishes episode and session lifecycle events.
func WithEventBus(bus events.Bus) EnvOption {
	return func(e *Environment) {
		e.bus = bus
	}
}

// WithRecordStore writes reward and session audit records.
func WithRecordStore(s store.RecordStore) EnvOption {
	return func(e *Environment) {
		e.records = s
	}
}

// WithMetricsExporter emits episode and session metric samples.
func WithMetricsExporter(exp telemetry.Exporter) EnvOption {
	return func(e *Environment) {
		e.exporter = exp
	}
}

// NewEnvironment creates an environment over a fixed action space.
// effects maps action IDs to feature deltas; actions without an entry
// only stamp the state timestamp.
func NewEnvironment(cfg EnvConfig, actions []reward.Action, effects map[string]map[string]float64, opts ...EnvOption) (*Environment, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(actions) == 0 {
		return nil, errors.Validation("action space must not be empty")
	}

	e := &Environment{
		config:  cfg,
		actions: append([]reward.Action(nil), actions...),
		effects: effects,
		calc:    reward.NewCalculator(cfg.Reward),
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
		agents:  make(map[string]*Agent),
		tracer:  telemetry.GetTracer(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Actions returns the environment's action space in configured order.
func (e *Environment) Actions() []reward.Action {
	return append([]reward.Action(nil), e.actions...)
}

// RegisterAgent adds an agent to the pool.
func (e *Environment) RegisterAgent(a *Agent) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.agents[a.ID()]; ok {
		return errors.Conflict("agent already registered", errors.WithAgentID(a.ID()))
	}
	e.agents[a.ID()] = a
	e.order = append(e.order, a.ID())
	return nil
}

// StartEpisode transitions inactive -> active and starts an episode on
// every registered agent.
func (e *Environment) StartEpisode() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.active {
		return errors.IllegalState("episode already active")
	}
	if len(e.agents) == 0 {
		return errors.IllegalState("no agents registered")
	}

	for _, id := range e.order {
		if err := e.agents[id].StartEpisode(); err != nil {
			return err
		}
	}
	e.active = true
	e.done = false
	e.interrupted = false
	e.stepCount = 0
	return nil
}

// Step applies one action for one agent. Only valid while an episode is
// active. The caller owns currentState; Step never mutates it.
func (e *Environment) Step(agentID string, action reward.Action, current AgentState) (*StepResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.active {
		return nil, errors.IllegalState("no active episode")
	}
	if e.done {
		return nil, errors.IllegalState("episode already finished")
	}
	agent, ok := e.agents[agentID]
	if !ok {
		return nil, errors.NotFound("unknown agent", errors.WithAgentID(agentID))
	}

	_, span := e.tracer.StartStepSpan(context.Background(), agentID)

	started := time.Now()
	next := e.transition(current, action)
	perf := performanceOf(next)

	outcome := e.outcomeFor(next, perf, started)
	r := e.calc.Calculate(action, current.View(), next.View(), outcome, nil)

	e.stepCount++
	done, reason := e.termination(agent, perf)

	exp := Experience{
		State:     current,
		Action:    action,
		Reward:    r.Value,
		NextState: next,
		Done:      done,
		Timestamp: time.Now(),
	}
	if err := agent.Learn(exp); err != nil {
		e.tracer.EndStepSpan(span, telemetry.StepSpanOptions{
			AgentID: agentID,
			Action:  action.ID,
			Step:    e.stepCount,
		}, err)
		return nil, err
	}
	agent.ReceiveReward(r.Value)
	e.distribute(agentID, r.Value)

	if e.session != nil {
		e.session.Steps++
		e.session.CumulativeReward += r.Value
	}
	if done {
		e.done = true
	}

	if e.logger != nil {
		e.logger.StepComplete(agentID, e.stepCount, r.Value, done)
	}
	if e.records != nil {
		key := store.PrefixReward + agentID + "." + uuid.NewString()
		if err := store.PutJSON(e.records, key, r); err != nil && e.logger != nil {
			e.logger.Warn("reward audit write failed", map[string]interface{}{"error": err.Error()})
		}
	}

	info := map[string]interface{}{
		"step":        e.stepCount,
		"load":        next.SystemLoad,
		"performance": perf,
	}
	if reason != "" {
		info["reason"] = reason
	}

	e.tracer.EndStepSpan(span, telemetry.StepSpanOptions{
		AgentID: agentID,
		Action:  action.ID,
		Step:    e.stepCount,
		Reward:  r.Value,
		Done:    done,
	}, nil)

	return &StepResult{NextState: next, Reward: r, Done: done, Info: info}, nil
}

// Interrupt flags the episode for termination at the next step. Safe to
// call at any time.
func (e *Environment) Interrupt() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.interrupted = true
}

// EndEpisode transitions active -> inactive, ends the episode on every
// agent, and publishes one episode_ended event per agent.
func (e *Environment) EndEpisode() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.active {
		return errors.IllegalState("no active episode")
	}
	e.active = false
	e.done = false

	if e.session != nil {
		e.session.Episodes++
	}

	for _, id := range e.order {
		p, err := e.agents[id].EndEpisode()
		if err != nil {
			return err
		}
		e.publish(events.SubjectLearning, &events.Event{
			Kind:      events.KindEpisodeEnded,
			AgentID:   id,
			Timestamp: time.Now(),
			Detail: map[string]interface{}{
				"episode":     p.Episode,
				"reward":      p.Reward,
				"exploration": p.Exploration,
				"steps":       e.stepCount,
			},
		})
		if e.exporter != nil {
			m := telemetry.Metric{
				AgentID:     id,
				Name:        "episode_reward",
				Value:       p.Reward,
				Episode:     p.Episode,
				Step:        e.stepCount,
				Exploration: p.Exploration,
			}
			if e.session != nil {
				m.SessionID = e.session.ID
			}
			e.exporter.LogMetric(m)
		}
	}
	return nil
}

// StartTrainingSession begins aggregate bookkeeping over a run of
// episodes. The baseline is the current mean agent reward.
func (e *Environment) StartTrainingSession() (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session != nil {
		return "", errors.IllegalState("training session already active")
	}

	e.session = &TrainingSession{
		ID:       uuid.NewString(),
		Started:  time.Now(),
		baseline: e.meanAgentReward(),
	}
	_, e.sessionSpan = e.tracer.StartSessionSpan(context.Background())
	return e.session.ID, nil
}

// EndTrainingSession computes the improvement score and convergence flag
// and returns the completed session. The environment retains nothing.
func (e *Environment) EndTrainingSession() (*TrainingSession, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session == nil {
		return nil, errors.IllegalState("no active training session")
	}

	s := e.session
	e.session = nil
	s.Ended = time.Now()
	s.Improvement = e.meanAgentReward() - s.baseline

	var conv float64
	for _, id := range e.order {
		conv += e.agents[id].Metrics().Convergence
	}
	if len(e.order) > 0 {
		conv /= float64(len(e.order))
	}
	s.Convergence = conv
	s.Converged = conv > 0.8

	e.publish(events.SubjectLearning, &events.Event{
		Kind:      events.KindSessionEnded,
		Timestamp: time.Now(),
		Detail: map[string]interface{}{
			"session":     s.ID,
			"episodes":    s.Episodes,
			"improvement": s.Improvement,
			"converged":   s.Converged,
		},
	})
	if e.records != nil {
		if err := store.PutJSON(e.records, store.PrefixSession+s.ID, s); err != nil && e.logger != nil {
			e.logger.Warn("session audit write failed", map[string]interface{}{"error": err.Error()})
		}
	}
	if e.logger != nil {
		e.logger.SessionEnd(s.ID, s.Episodes, s.Improvement, s.Converged)
	}
	if e.sessionSpan != nil {
		e.tracer.EndSessionSpan(e.sessionSpan, telemetry.SessionSpanOptions{
			SessionID:   s.ID,
			Episodes:    s.Episodes,
			Improvement: s.Improvement,
			Converged:   s.Converged,
		})
		e.sessionSpan = nil
	}
	if e.exporter != nil {
		e.exporter.LogMetric(telemetry.Metric{
			SessionID: s.ID,
			Name:      "session_improvement",
			Value:     s.Improvement,
			Episode:   s.Episodes,
			Extra: map[string]interface{}{
				"convergence": s.Convergence,
				"converged":   s.Converged,
			},
		})
	}
	return s, nil
}

// transition applies the action's effect transform and recomputes the
// derived metrics. Unrecognized actions only stamp the timestamp.
func (e *Environment) transition(current AgentState, action reward.Action) AgentState {
	next := current.Clone()
	next.Timestamp = time.Now()

	if deltas, ok := e.effects[action.ID]; ok {
		if next.Features == nil {
			next.Features = make(map[string]float64, len(deltas))
		}
		for k, d := range deltas {
			next.Features[k] += d
		}
	}

	if !e.config.Deterministic && e.config.NoiseAmplitude > 0 {
		for k := range next.Features {
			next.Features[k] += (e.rng.Float64()*2 - 1) * e.config.NoiseAmplitude
		}
	}

	// Derived system load blends task complexity and inaccuracy.
	complexity := next.Features[FeatureComplexity]
	accuracy := next.Features[FeatureAccuracy]
	next.SystemLoad = clamp01(0.6*complexity + 0.4*(1-accuracy))

	next.RecordAction(action.ID)
	return next
}

// outcomeFor derives a task outcome from the post-step state.
func (e *Environment) outcomeFor(next AgentState, perf float64, started time.Time) *reward.Outcome {
	o := &reward.Outcome{Elapsed: time.Since(started)}
	if acc, ok := next.Features[FeatureAccuracy]; ok {
		o.Accuracy = acc
		o.HasAccuracy = true
	}
	switch {
	case next.ErrorFlag:
		o.Failure = true
	case e.config.GoalPerformance > 0 && perf >= e.config.GoalPerformance:
		o.Success = true
	case perf > 0:
		o.Partial = true
	}
	return o
}

// termination evaluates the episode end conditions. Caller holds e.mu.
func (e *Environment) termination(agent *Agent, perf float64) (bool, string) {
	switch {
	case e.interrupted:
		return true, "interrupted"
	case e.stepCount >= e.config.MaxSteps:
		return true, "max_steps"
	case e.config.GoalPerformance > 0 && perf >= e.config.GoalPerformance:
		return true, "goal_reached"
	case e.config.RewardTarget > 0 && agent.AverageReward() >= e.config.RewardTarget:
		return true, "reward_target"
	}
	return false, ""
}

// distribute delivers the acting agent's reward to the rest of the pool.
// Distribution is bookkeeping only and never triggers a new step.
func (e *Environment) distribute(actorID string, value float64) {
	share := value
	if e.config.Mode == ModeCompetitive {
		share = value * competitiveFactor
	}
	for _, id := range e.order {
		if id == actorID {
			continue
		}
		e.agents[id].ReceiveReward(share)
	}
}

// meanAgentReward averages the agents' running average rewards.
// Caller holds e.mu.
func (e *Environment) meanAgentReward() float64 {
	if len(e.order) == 0 {
		return 0
	}
	var sum float64
	for _, id := range e.order {
		sum += e.agents[id].AverageReward()
	}
	return sum / float64(len(e.order))
}

// publish sends an event, dropping it if the bus is absent or failing.
func (e *Environment) publish(subject string, ev *events.Event) {
	if e.bus == nil {
		return
	}
	if err := e.bus.Publish(subject, ev); err != nil && e.logger != nil {
		e.logger.Warn("event publish failed", map[string]interface{}{
			"subject": subject,
			"error":   err.Error(),
		})
	}
}

// performanceOf blends accuracy, efficiency, and complexity into an
// overall performance score in [0, 1].
func performanceOf(s AgentState) float64 {
	return clamp01(0.4*s.Features[FeatureAccuracy] +
		0.3*s.Features[FeatureEfficiency] +
		0.3*(1-s.Features[FeatureComplexity]))
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
