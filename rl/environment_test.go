package rl

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/swarmlearn/swarmlearn/errors"
	"github.com/swarmlearn/swarmlearn/events"
	"github.com/swarmlearn/swarmlearn/telemetry"
)

func testEffects() map[string]map[string]float64 {
	return map[string]map[string]float64{
		"optimize": {FeatureAccuracy: 0.1, FeatureComplexity: -0.05},
		"retry":    {FeatureComplexity: 0.1},
	}
}

func newTestEnv(t *testing.T, cfg EnvConfig, opts ...EnvOption) (*Environment, *Agent) {
	t.Helper()

	env, err := NewEnvironment(cfg, testActions(), testEffects(), opts...)
	if err != nil {
		t.Fatalf("NewEnvironment failed: %v", err)
	}

	agent, err := NewAgent("learner", testActions(), greedyConfig())
	if err != nil {
		t.Fatalf("NewAgent failed: %v", err)
	}
	if err := env.RegisterAgent(agent); err != nil {
		t.Fatalf("RegisterAgent failed: %v", err)
	}
	return env, agent
}

func startState() AgentState {
	return AgentState{
		Timestamp: time.Now(),
		Features: map[string]float64{
			FeatureAccuracy:   0.5,
			FeatureComplexity: 0.5,
			FeatureEfficiency: 0.5,
		},
	}
}

func TestStepRequiresActiveEpisode(t *testing.T) {
	env, _ := newTestEnv(t, DefaultEnvConfig())

	_, err := env.Step("learner", testActions()[0], startState())
	if errors.CodeOf(err) != errors.ErrCodeIllegalState {
		t.Errorf("Expected illegal state before StartEpisode, got %v", err)
	}
}

func TestStepUnknownAgent(t *testing.T) {
	env, _ := newTestEnv(t, DefaultEnvConfig())
	env.StartEpisode()

	_, err := env.Step("ghost", testActions()[0], startState())
	if errors.CodeOf(err) != errors.ErrCodeNotFound {
		t.Errorf("Expected not found for unknown agent, got %v", err)
	}
}

func TestStepAppliesEffects(t *testing.T) {
	env, _ := newTestEnv(t, DefaultEnvConfig())
	env.StartEpisode()

	res, err := env.Step("learner", testActions()[0], startState())
	if err != nil {
		t.Fatalf("Step failed: %v", err)
	}

	if got := res.NextState.Features[FeatureAccuracy]; math.Abs(got-0.6) > 1e-12 {
		t.Errorf("Expected accuracy 0.6 after optimize, got %f", got)
	}
	if got := res.NextState.Features[FeatureComplexity]; math.Abs(got-0.45) > 1e-12 {
		t.Errorf("Expected complexity 0.45 after optimize, got %f", got)
	}
	if len(res.NextState.RecentActions) != 1 || res.NextState.RecentActions[0] != "optimize" {
		t.Errorf("Action not recorded: %v", res.NextState.RecentActions)
	}

	// load = 0.6*complexity + 0.4*(1-accuracy) = 0.6*0.45 + 0.4*0.4 = 0.43.
	if math.Abs(res.NextState.SystemLoad-0.43) > 1e-9 {
		t.Errorf("Expected load 0.43, got %f", res.NextState.SystemLoad)
	}
}

func TestStepUnrecognizedActionStampsTimestampOnly(t *testing.T) {
	env, _ := newTestEnv(t, DefaultEnvConfig())
	env.StartEpisode()

	initial := startState()
	res, err := env.Step("learner", testActions()[2], initial) // escalate has no effect entry
	if err != nil {
		t.Fatalf("Step failed: %v", err)
	}

	for k, v := range initial.Features {
		if res.NextState.Features[k] != v {
			t.Errorf("Feature %s changed without an effect: %f -> %f", k, v, res.NextState.Features[k])
		}
	}
	if !res.NextState.Timestamp.After(initial.Timestamp) {
		t.Error("Timestamp should be stamped")
	}
}

func TestStepFeedsAgent(t *testing.T) {
	env, agent := newTestEnv(t, DefaultEnvConfig())
	env.StartEpisode()

	res, err := env.Step("learner", testActions()[0], startState())
	if err != nil {
		t.Fatalf("Step failed: %v", err)
	}

	exps := agent.Experiences()
	if len(exps) != 1 {
		t.Fatalf("Expected one experience, got %d", len(exps))
	}
	if exps[0].Reward != res.Reward.Value {
		t.Errorf("Experience reward %f != step reward %f", exps[0].Reward, res.Reward.Value)
	}
	if got := agent.AverageReward(); got != res.Reward.Value {
		t.Errorf("ReceiveReward not applied: %f", got)
	}
}

func TestMaxStepsTermination(t *testing.T) {
	cfg := DefaultEnvConfig()
	cfg.MaxSteps = 2
	cfg.GoalPerformance = 0 // never reach the goal

	env, _ := newTestEnv(t, cfg)
	env.StartEpisode()

	state := startState()
	res, _ := env.Step("learner", testActions()[1], state)
	if res.Done {
		t.Fatal("First step should not terminate")
	}

	res, _ = env.Step("learner", testActions()[1], res.NextState)
	if !res.Done {
		t.Fatal("Second step should hit max_steps")
	}
	if res.Info["reason"] != "max_steps" {
		t.Errorf("Expected reason max_steps, got %v", res.Info["reason"])
	}

	_, err := env.Step("learner", testActions()[1], res.NextState)
	if errors.CodeOf(err) != errors.ErrCodeIllegalState {
		t.Errorf("Steps after termination should be illegal, got %v", err)
	}
}

func TestGoalPerformanceTermination(t *testing.T) {
	cfg := DefaultEnvConfig()
	cfg.GoalPerformance = 0.5

	env, _ := newTestEnv(t, cfg)
	env.StartEpisode()

	// Starting blend: 0.4*0.5 + 0.3*0.5 + 0.3*0.5 = 0.5, at the goal
	// already, so one step terminates with goal_reached.
	res, err := env.Step("learner", testActions()[2], startState())
	if err != nil {
		t.Fatalf("Step failed: %v", err)
	}
	if !res.Done || res.Info["reason"] != "goal_reached" {
		t.Errorf("Expected goal_reached, got done=%v reason=%v", res.Done, res.Info["reason"])
	}
}

func TestInterrupt(t *testing.T) {
	cfg := DefaultEnvConfig()
	cfg.GoalPerformance = 0

	env, _ := newTestEnv(t, cfg)
	env.StartEpisode()
	env.Interrupt()

	res, err := env.Step("learner", testActions()[0], startState())
	if err != nil {
		t.Fatalf("Step failed: %v", err)
	}
	if !res.Done || res.Info["reason"] != "interrupted" {
		t.Errorf("Expected interrupted termination, got done=%v reason=%v", res.Done, res.Info["reason"])
	}
}

func TestNoiseBounded(t *testing.T) {
	cfg := DefaultEnvConfig()
	cfg.Deterministic = false
	cfg.NoiseAmplitude = 0.05
	cfg.GoalPerformance = 0

	env, _ := newTestEnv(t, cfg, WithEnvSeed(7))
	env.StartEpisode()

	res, err := env.Step("learner", testActions()[2], startState()) // no effect deltas
	if err != nil {
		t.Fatalf("Step failed: %v", err)
	}
	for k, v := range startState().Features {
		got := res.NextState.Features[k]
		if math.Abs(got-v) > cfg.NoiseAmplitude {
			t.Errorf("Noise on %s exceeded the amplitude: %f -> %f", k, v, got)
		}
	}
}

func TestCooperativeDistribution(t *testing.T) {
	env, _ := newTestEnv(t, DefaultEnvConfig())

	peer, _ := NewAgent("peer", testActions(), greedyConfig())
	env.RegisterAgent(peer)
	env.StartEpisode()

	res, err := env.Step("learner", testActions()[0], startState())
	if err != nil {
		t.Fatalf("Step failed: %v", err)
	}
	if got := peer.AverageReward(); got != res.Reward.Value {
		t.Errorf("Cooperative peer should receive the full reward %f, got %f", res.Reward.Value, got)
	}
	if len(peer.Experiences()) != 0 {
		t.Error("Peers receive bookkeeping only, never experiences")
	}
}

func TestCompetitiveDistribution(t *testing.T) {
	cfg := DefaultEnvConfig()
	cfg.Mode = ModeCompetitive

	env, _ := newTestEnv(t, cfg)
	peer, _ := NewAgent("peer", testActions(), greedyConfig())
	env.RegisterAgent(peer)
	env.StartEpisode()

	res, err := env.Step("learner", testActions()[0], startState())
	if err != nil {
		t.Fatalf("Step failed: %v", err)
	}
	want := res.Reward.Value * competitiveFactor
	if got := peer.AverageReward(); math.Abs(got-want) > 1e-12 {
		t.Errorf("Competitive peer should receive %f, got %f", want, got)
	}
}

func TestEndEpisodePublishesEvents(t *testing.T) {
	bus := events.NewMemoryBus(events.DefaultConfig())
	defer bus.Close()

	sub, err := bus.Subscribe(events.SubjectLearning)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	env, _ := newTestEnv(t, DefaultEnvConfig(), WithEventBus(bus))
	env.StartEpisode()
	env.Step("learner", testActions()[0], startState())
	if err := env.EndEpisode(); err != nil {
		t.Fatalf("EndEpisode failed: %v", err)
	}

	select {
	case ev := <-sub.Events():
		if ev.Kind != events.KindEpisodeEnded {
			t.Errorf("Expected episode_ended, got %s", ev.Kind)
		}
		if ev.AgentID != "learner" {
			t.Errorf("Expected agent learner, got %s", ev.AgentID)
		}
	case <-time.After(time.Second):
		t.Fatal("Timed out waiting for episode_ended")
	}
}

func TestTrainingSession(t *testing.T) {
	cfg := DefaultEnvConfig()
	cfg.MaxSteps = 3
	cfg.GoalPerformance = 0

	env, _ := newTestEnv(t, cfg)

	id, err := env.StartTrainingSession()
	if err != nil {
		t.Fatalf("StartTrainingSession failed: %v", err)
	}
	if id == "" {
		t.Fatal("Session ID must not be empty")
	}
	if _, err := env.StartTrainingSession(); errors.CodeOf(err) != errors.ErrCodeIllegalState {
		t.Errorf("Double session start should be illegal, got %v", err)
	}

	for ep := 0; ep < 2; ep++ {
		if err := env.StartEpisode(); err != nil {
			t.Fatalf("StartEpisode failed: %v", err)
		}
		state := startState()
		for {
			res, err := env.Step("learner", testActions()[0], state)
			if err != nil {
				t.Fatalf("Step failed: %v", err)
			}
			state = res.NextState
			if res.Done {
				break
			}
		}
		if err := env.EndEpisode(); err != nil {
			t.Fatalf("EndEpisode failed: %v", err)
		}
	}

	session, err := env.EndTrainingSession()
	if err != nil {
		t.Fatalf("EndTrainingSession failed: %v", err)
	}
	if session.Episodes != 2 {
		t.Errorf("Expected 2 episodes, got %d", session.Episodes)
	}
	if session.Steps != 6 {
		t.Errorf("Expected 6 steps, got %d", session.Steps)
	}
	if session.Ended.Before(session.Started) {
		t.Error("Session end precedes start")
	}

	if _, err := env.EndTrainingSession(); errors.CodeOf(err) != errors.ErrCodeIllegalState {
		t.Errorf("Ending a finished session should be illegal, got %v", err)
	}
}

// captureExporter records metric samples for assertions.
type captureExporter struct {
	mu      sync.Mutex
	metrics []telemetry.Metric
}

func (c *captureExporter) LogEvent(name string, data map[string]interface{}) {}
func (c *captureExporter) LogMetric(m telemetry.Metric) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metrics = append(c.metrics, m)
}
func (c *captureExporter) Flush() error { return nil }
func (c *captureExporter) Close() error { return nil }

func TestMetricsExporter(t *testing.T) {
	exp := &captureExporter{}
	cfg := DefaultEnvConfig()
	cfg.MaxSteps = 2
	env, _ := newTestEnv(t, cfg, WithMetricsExporter(exp))

	sessionID, err := env.StartTrainingSession()
	if err != nil {
		t.Fatalf("StartTrainingSession failed: %v", err)
	}

	env.StartEpisode()
	state := startState()
	for {
		res, err := env.Step("learner", testActions()[0], state)
		if err != nil {
			t.Fatalf("Step failed: %v", err)
		}
		state = res.NextState
		if res.Done {
			break
		}
	}
	if err := env.EndEpisode(); err != nil {
		t.Fatalf("EndEpisode failed: %v", err)
	}
	if _, err := env.EndTrainingSession(); err != nil {
		t.Fatalf("EndTrainingSession failed: %v", err)
	}

	if len(exp.metrics) != 2 {
		t.Fatalf("Expected episode and session metrics, got %d", len(exp.metrics))
	}
	ep := exp.metrics[0]
	if ep.Name != "episode_reward" || ep.AgentID != "learner" || ep.SessionID != sessionID {
		t.Errorf("Unexpected episode metric: %+v", ep)
	}
	if ep.Step != 2 {
		t.Errorf("Expected 2 steps in episode metric, got %d", ep.Step)
	}
	sm := exp.metrics[1]
	if sm.Name != "session_improvement" || sm.SessionID != sessionID {
		t.Errorf("Unexpected session metric: %+v", sm)
	}
	if sm.Extra["converged"] == nil {
		t.Error("Session metric should carry convergence extras")
	}
}
