package rl

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/swarmlearn/swarmlearn/errors"
	"github.com/swarmlearn/swarmlearn/logging"
	"github.com/swarmlearn/swarmlearn/reward"
	"github.com/swarmlearn/swarmlearn/store"
)

// Status represents the agent lifecycle state.
type Status string

const (
	// StatusIdle means no episode is in progress.
	StatusIdle Status = "idle"
	// StatusLearning means an episode is in progress and updates apply.
	StatusLearning Status = "learning"
	// StatusActive means the agent serves its policy without updates.
	StatusActive Status = "active"
	// StatusEvaluating means the agent is being measured without updates.
	StatusEvaluating Status = "evaluating"
)

// convergenceEpsilon guards the convergence score against a zero mean.
const convergenceEpsilon = 1e-6

// Config configures a learning agent.
type Config struct {
	// LearningRate is the Bellman update step size (alpha).
	// Default: 0.1
	LearningRate float64 `toml:"learning_rate"`

	// DiscountFactor weights future rewards (gamma).
	// Default: 0.9
	DiscountFactor float64 `toml:"discount_factor"`

	// ExplorationRate is the initial epsilon for epsilon-greedy selection.
	// Default: 1.0
	ExplorationRate float64 `toml:"exploration_rate"`

	// ExplorationDecay multiplies the exploration rate at episode end.
	// Default: 0.995
	ExplorationDecay float64 `toml:"exploration_decay"`

	// MinExploration is the exploration rate floor.
	// Default: 0.01
	MinExploration float64 `toml:"min_exploration"`

	// DefaultQ is the Q-value read for unseen (state, action) pairs.
	// Default: 0
	DefaultQ float64 `toml:"default_q"`

	// MaxStates soft-caps the Q-table's distinct states. 0 disables.
	// Default: 0
	MaxStates int `toml:"max_states"`

	// ExperienceBufferSize bounds the retained experience buffer.
	// Default: 10000
	ExperienceBufferSize int `toml:"experience_buffer_size"`

	// EventLogSize bounds the retained agent event log.
	// Default: 1000
	EventLogSize int `toml:"event_log_size"`

	// ProgressSize bounds the retained learning-progress history.
	// Default: 100
	ProgressSize int `toml:"progress_size"`
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		LearningRate:         0.1,
		DiscountFactor:       0.9,
		ExplorationRate:      1.0,
		ExplorationDecay:     0.995,
		MinExploration:       0.01,
		ExperienceBufferSize: 10000,
		EventLogSize:         1000,
		ProgressSize:         100,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.LearningRate <= 0 || c.LearningRate > 1 {
		return errors.Config("learning_rate must be in (0, 1]")
	}
	if c.DiscountFactor < 0 || c.DiscountFactor >= 1 {
		return errors.Config("discount_factor must be in [0, 1)")
	}
	if c.ExplorationRate < 0 || c.ExplorationRate > 1 {
		return errors.Config("exploration_rate must be in [0, 1]")
	}
	if c.ExplorationDecay <= 0 || c.ExplorationDecay > 1 {
		return errors.Config("exploration_decay must be in (0, 1]")
	}
	if c.MinExploration < 0 || c.MinExploration > c.ExplorationRate {
		return errors.Config("min_exploration must be in [0, exploration_rate]")
	}
	if c.MaxStates < 0 {
		return errors.Config("max_states must not be negative")
	}
	return nil
}

// Experience is one learning sample. Immutable once produced.
type Experience struct {
	State     AgentState    `json:"state"`
	Action    reward.Action `json:"action"`
	Reward    float64       `json:"reward"`
	NextState AgentState    `json:"next_state"`
	Done      bool          `json:"done"`
	Timestamp time.Time     `json:"timestamp"`
}

// Progress is one entry in the learning-progress history.
type Progress struct {
	Episode     int       `json:"episode"`
	Reward      float64   `json:"reward"`
	Exploration float64   `json:"exploration"`
	Timestamp   time.Time `json:"timestamp"`
}

// Metrics summarizes agent performance.
type Metrics struct {
	Episodes        int     `json:"episodes"`
	TotalReward     float64 `json:"total_reward"`
	AverageReward   float64 `json:"average_reward"`
	Variance        float64 `json:"variance"`
	SuccessRate     float64 `json:"success_rate"`
	Convergence     float64 `json:"convergence"`
	Efficiency      float64 `json:"efficiency"`
	ExplorationRate float64 `json:"exploration_rate"`
	KnownStates     int     `json:"known_states"`
}

// AgentEvent is one entry in the bounded agent event log.
type AgentEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Kind      string    `json:"kind"`
	Detail    string    `json:"detail,omitempty"`
}

// Agent is the Q-learning core. It owns its Q-table and bounded buffers
// and is fed experiences by the environment.
type Agent struct {
	id      string
	config  Config
	actions []reward.Action
	qtable  *QTable
	logger  *logging.Logger

	mu            sync.Mutex
	rng           *rand.Rand
	status        Status
	exploration   float64
	episodes      int
	episodeReward float64
	totalReward   float64
	rewardCount   int
	averageReward float64
	experiences   []Experience
	progress      []Progress
	events        []AgentEvent
	metrics       Metrics
}

// AgentOption configures an Agent.
type AgentOption func(*Agent)

// WithLogger sets the logger.
func WithLogger(logger *logging.Logger) AgentOption {
	return func(a *Agent) {
		a.logger = logger.WithComponent("agent." + a.id)
	}
}

// WithSeed seeds the agent's random source for reproducible runs.
func WithSeed(seed int64) AgentOption {
	return func(a *Agent) {
		a.rng = rand.New(rand.NewSource(seed))
	}
}

// NewAgent creates a learning agent over a fixed action space.
func NewAgent(id string, actions []reward.Action, cfg Config, opts ...AgentOption) (*Agent, error) {
	if id == "" {
		return nil, errors.Validation("agent id must not be empty")
	}
	if len(actions) == 0 {
		return nil, errors.Validation("action space must not be empty", errors.WithAgentID(id))
	}
	if cfg.ExperienceBufferSize <= 0 {
		cfg.ExperienceBufferSize = DefaultConfig().ExperienceBufferSize
	}
	if cfg.EventLogSize <= 0 {
		cfg.EventLogSize = DefaultConfig().EventLogSize
	}
	if cfg.ProgressSize <= 0 {
		cfg.ProgressSize = DefaultConfig().ProgressSize
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &Agent{
		id:          id,
		config:      cfg,
		actions:     append([]reward.Action(nil), actions...),
		qtable:      NewQTable(cfg.DefaultQ, cfg.MaxStates),
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
		status:      StatusIdle,
		exploration: cfg.ExplorationRate,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// ID returns the agent ID.
func (a *Agent) ID() string {
	return a.id
}

// Status returns the current lifecycle status.
func (a *Agent) Status() Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status
}

// Actions returns the agent's action space in configured order.
func (a *Agent) Actions() []reward.Action {
	return append([]reward.Action(nil), a.actions...)
}

// Exploration returns the current exploration rate.
func (a *Agent) Exploration() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.exploration
}

// QTable exposes the agent's value table for inspection.
func (a *Agent) QTable() *QTable {
	return a.qtable
}

// SelectAction picks an action for a state via epsilon-greedy: with
// probability epsilon a uniformly random action, otherwise the action
// with the highest Q-value, ties broken by action-space order.
func (a *Agent) SelectAction(state AgentState) (reward.Action, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.rng.Float64() < a.exploration {
		return a.actions[a.rng.Intn(len(a.actions))], nil
	}

	bestID, _ := a.qtable.ArgMax(state.Hash(), a.actionIDs())
	for _, action := range a.actions {
		if action.ID == bestID {
			return action, nil
		}
	}
	return a.actions[0], nil
}

// Learn appends an experience to the bounded buffer and applies the
// Bellman update:
//
//	Q(s,a) <- Q(s,a) + alpha * (r + gamma * max_a' Q(s',a') - Q(s,a))
//
// The max term is treated as 0 for terminal experiences. When the agent
// is in active or evaluating status the policy is frozen and Learn only
// records the experience.
func (a *Agent) Learn(exp Experience) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.experiences = append(a.experiences, exp)
	if len(a.experiences) > a.config.ExperienceBufferSize {
		a.experiences = a.experiences[len(a.experiences)-a.config.ExperienceBufferSize:]
	}

	if a.status == StatusActive || a.status == StatusEvaluating {
		return nil
	}

	stateHash := exp.State.Hash()
	current := a.qtable.Get(stateHash, exp.Action.ID)

	var maxNext float64
	if !exp.Done {
		maxNext = a.qtable.MaxOver(exp.NextState.Hash(), a.actionIDs())
	}

	updated := current + a.config.LearningRate*(exp.Reward+a.config.DiscountFactor*maxNext-current)
	a.qtable.Set(stateHash, exp.Action.ID, updated)
	return nil
}

// ReceiveReward accumulates reward bookkeeping without a Q-update. It
// lets shared multi-agent rewards reach an agent that did not act.
func (a *Agent) ReceiveReward(value float64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.episodeReward += value
	a.totalReward += value
	a.rewardCount++
	a.averageReward = (a.averageReward*float64(a.rewardCount-1) + value) / float64(a.rewardCount)
}

// AverageReward returns the running average of all received rewards.
func (a *Agent) AverageReward() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.averageReward
}

// StartEpisode transitions idle -> learning.
func (a *Agent) StartEpisode() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.status == StatusLearning {
		return errors.IllegalState("episode already in progress", errors.WithAgentID(a.id))
	}
	a.status = StatusLearning
	a.episodeReward = 0
	a.recordEvent("episode_started", "")
	return nil
}

// EndEpisode transitions learning -> idle, applies exploration decay,
// appends to the progress history, and recomputes performance metrics.
func (a *Agent) EndEpisode() (Progress, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.status != StatusLearning {
		return Progress{}, errors.IllegalState("no episode in progress", errors.WithAgentID(a.id))
	}

	a.episodes++
	// Computed from the episode count so N episodes yield exactly
	// max(minExploration, initialRate * decay^N).
	a.exploration = math.Max(a.config.MinExploration,
		a.config.ExplorationRate*math.Pow(a.config.ExplorationDecay, float64(a.episodes)))

	p := Progress{
		Episode:     a.episodes,
		Reward:      a.episodeReward,
		Exploration: a.exploration,
		Timestamp:   time.Now(),
	}
	a.progress = append(a.progress, p)
	if len(a.progress) > a.config.ProgressSize {
		a.progress = a.progress[len(a.progress)-a.config.ProgressSize:]
	}

	a.recomputeMetrics()
	a.status = StatusIdle
	a.recordEvent("episode_ended", "")

	if a.logger != nil {
		a.logger.EpisodeEnd(a.id, a.episodes, p.Reward, a.exploration)
	}
	return p, nil
}

// SetStatus switches the agent into a non-learning mode (active or
// evaluating) or back to idle. Learning episodes are entered through
// StartEpisode only.
func (a *Agent) SetStatus(status Status) error {
	if status != StatusIdle && status != StatusActive && status != StatusEvaluating {
		return errors.Validation("status must be idle, active, or evaluating", errors.WithAgentID(a.id))
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.status == StatusLearning {
		return errors.IllegalState("cannot switch status during an episode", errors.WithAgentID(a.id))
	}
	a.status = status
	return nil
}

// Reset clears all learned state and restores the initial exploration rate.
func (a *Agent) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.qtable.Reset()
	a.exploration = a.config.ExplorationRate
	a.episodes = 0
	a.episodeReward = 0
	a.totalReward = 0
	a.rewardCount = 0
	a.averageReward = 0
	a.experiences = nil
	a.progress = nil
	a.metrics = Metrics{ExplorationRate: a.exploration}
	a.status = StatusIdle
	a.recordEvent("reset", "")
}

// Metrics returns the current performance metrics.
func (a *Agent) Metrics() Metrics {
	a.mu.Lock()
	defer a.mu.Unlock()

	m := a.metrics
	m.Episodes = a.episodes
	m.TotalReward = a.totalReward
	m.AverageReward = a.averageReward
	m.ExplorationRate = a.exploration
	m.KnownStates = a.qtable.States()
	return m
}

// Progress returns a copy of the learning-progress history, oldest first.
func (a *Agent) Progress() []Progress {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Progress(nil), a.progress...)
}

// Events returns a copy of the bounded agent event log, oldest first.
func (a *Agent) Events() []AgentEvent {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]AgentEvent(nil), a.events...)
}

// Experiences returns a copy of the retained experience buffer.
func (a *Agent) Experiences() []Experience {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Experience(nil), a.experiences...)
}

// knowledge is the serialized form of an agent's learned state.
type knowledge struct {
	AgentID     string                        `json:"agent_id"`
	QValues     map[string]map[string]float64 `json:"q_values"`
	Exploration float64                       `json:"exploration"`
	Episodes    int                           `json:"episodes"`
	Metrics     Metrics                       `json:"metrics"`
	ExportedAt  time.Time                     `json:"exported_at"`
}

// ExportKnowledge serializes the Q-table and performance snapshot to the
// record store under the knowledge prefix.
func (a *Agent) ExportKnowledge(s store.RecordStore) error {
	a.mu.Lock()
	snap := knowledge{
		AgentID:     a.id,
		QValues:     a.qtable.Snapshot(),
		Exploration: a.exploration,
		Episodes:    a.episodes,
		Metrics:     a.metrics,
		ExportedAt:  time.Now(),
	}
	a.recordEvent("knowledge_exported", "")
	a.mu.Unlock()

	return store.PutJSON(s, store.PrefixKnowledge+a.id, snap)
}

// ImportKnowledge restores a previously exported snapshot.
func (a *Agent) ImportKnowledge(s store.RecordStore) error {
	var snap knowledge
	if err := store.GetJSON(s, store.PrefixKnowledge+a.id, &snap); err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.qtable.Restore(snap.QValues)
	a.exploration = snap.Exploration
	a.episodes = snap.Episodes
	a.metrics = snap.Metrics
	a.recordEvent("knowledge_imported", "")
	return nil
}

// actionIDs returns the action IDs in configured order.
// Callers must hold a.mu or rely on actions being immutable.
func (a *Agent) actionIDs() []string {
	ids := make([]string, len(a.actions))
	for i, action := range a.actions {
		ids[i] = action.ID
	}
	return ids
}

// recordEvent appends to the bounded event log. Caller holds a.mu.
func (a *Agent) recordEvent(kind, detail string) {
	a.events = append(a.events, AgentEvent{Timestamp: time.Now(), Kind: kind, Detail: detail})
	if len(a.events) > a.config.EventLogSize {
		a.events = a.events[len(a.events)-a.config.EventLogSize:]
	}
}

// recomputeMetrics derives variance, success rate, convergence, and
// efficiency from the progress history. Caller holds a.mu.
func (a *Agent) recomputeMetrics() {
	n := len(a.progress)
	if n == 0 {
		return
	}

	var sum float64
	successes := 0
	for _, p := range a.progress {
		sum += p.Reward
		if p.Reward > 0 {
			successes++
		}
	}
	mean := sum / float64(n)

	var variance float64
	for _, p := range a.progress {
		d := p.Reward - mean
		variance += d * d
	}
	variance /= float64(n)

	recent := a.progress
	if len(recent) > 10 {
		recent = recent[len(recent)-10:]
	}
	var recentSum float64
	for _, p := range recent {
		recentSum += p.Reward
	}

	a.metrics.Variance = variance
	a.metrics.SuccessRate = float64(successes) / float64(n)
	a.metrics.Convergence = math.Max(0, 1-variance/math.Abs(mean+convergenceEpsilon))
	a.metrics.Efficiency = recentSum / float64(len(recent))
}
