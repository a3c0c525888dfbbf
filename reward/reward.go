package reward

import (
	"math"
	"sync"
	"time"
)

// Value bounds. The final reward is always clamped into [MinValue, MaxValue].
const (
	MinValue = -5.0
	MaxValue = 5.0
)

// elapsedScale is the execution time (ms) beyond which the speed bonus
// in the efficiency component reaches zero.
const elapsedScale = 10000.0

// Source names for the dominant contributing component.
const (
	SourceTaskCompletion   = "task_completion"
	SourceUserSatisfaction = "user_satisfaction"
	SourceEfficiency       = "efficiency"
	SourceAccuracy         = "accuracy"
)

// Action describes the action being rewarded.
type Action struct {
	// ID identifies the action within the environment's action space.
	ID string `json:"id"`

	// Name is a human-readable label.
	Name string `json:"name"`

	// Cost penalizes expensive actions in the efficiency component.
	Cost float64 `json:"cost,omitempty"`
}

// StateView is the slice of agent state the calculator reads.
// The environment builds these from its full state snapshots.
type StateView struct {
	// Load is the system load in [0, 1].
	Load float64

	// ErrorFlag signals the state carries an error condition.
	ErrorFlag bool

	// RecentActionIDs holds the last recorded action IDs, newest last,
	// bounded to 10 entries by the producer.
	RecentActionIDs []string
}

// Outcome is the task result being rewarded. A nil Outcome contributes
// nothing to the completion and accuracy components.
type Outcome struct {
	// Success marks a fully successful task.
	Success bool

	// Partial marks a partially successful task. Ignored when Success.
	Partial bool

	// Failure marks an explicit failure.
	Failure bool

	// Accuracy in [0, 1], negative when not measured.
	Accuracy float64

	// HasAccuracy indicates Accuracy was measured.
	HasAccuracy bool

	// Elapsed is the execution duration.
	Elapsed time.Duration
}

// Feedback is an optional 1-5 user rating.
type Feedback struct {
	Rating int
}

// Breakdown itemizes the reward components before weighting.
type Breakdown struct {
	TaskCompletion   float64 `json:"task_completion"`
	UserSatisfaction float64 `json:"user_satisfaction"`
	Efficiency       float64 `json:"efficiency"`
	Accuracy         float64 `json:"accuracy"`
	Penalty          float64 `json:"penalty"`
}

// Reward is the calculated signal.
type Reward struct {
	// Value is the final reward, clamped to [MinValue, MaxValue].
	Value float64 `json:"value"`

	// Source is the dominant positive component by absolute magnitude.
	Source string `json:"source"`

	// Breakdown itemizes the raw components.
	Breakdown Breakdown `json:"breakdown"`

	// Timestamp is when the reward was calculated.
	Timestamp time.Time `json:"timestamp"`

	// Context carries optional calculator annotations (matched rules).
	Context map[string]interface{} `json:"context,omitempty"`
}

// Weights configure the per-source contribution to the weighted sum.
type Weights struct {
	TaskCompletion   float64 `toml:"task_completion"`
	UserSatisfaction float64 `toml:"user_satisfaction"`
	Efficiency       float64 `toml:"efficiency"`
	Accuracy         float64 `toml:"accuracy"`
}

// Rule is a conditional bonus multiplier or penalty amount. Condition is
// an expression over the fields documented in Eval.
type Rule struct {
	// Name labels the rule in reward context annotations.
	Name string `toml:"name"`

	// Condition is the expression source, e.g.
	// "task_completion > 0 && system_load < 0.5".
	Condition string `toml:"condition"`

	// Multiplier scales the reward when the rule is a bonus.
	Multiplier float64 `toml:"multiplier"`

	// Amount is subtracted when the rule is a penalty.
	Amount float64 `toml:"amount"`

	expr *Expr
}

// Config configures a Calculator.
type Config struct {
	Weights   Weights `toml:"weights"`
	Bonuses   []Rule  `toml:"bonuses"`
	Penalties []Rule  `toml:"penalties"`

	// HistorySize bounds the retained reward history.
	// Default: 1000
	HistorySize int `toml:"history_size"`
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Weights: Weights{
			TaskCompletion:   0.4,
			UserSatisfaction: 0.3,
			Efficiency:       0.15,
			Accuracy:         0.15,
		},
		HistorySize: 1000,
	}
}

// Calculator computes rewards and retains a bounded history.
type Calculator struct {
	config Config

	mu      sync.Mutex
	history []Reward
}

// NewCalculator creates a calculator. Rule conditions are parsed up front;
// a rule that fails to parse is kept but never matches (fails closed).
func NewCalculator(cfg Config) *Calculator {
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = DefaultConfig().HistorySize
	}

	for i := range cfg.Bonuses {
		if expr, err := Parse(cfg.Bonuses[i].Condition); err == nil {
			cfg.Bonuses[i].expr = expr
		}
	}
	for i := range cfg.Penalties {
		if expr, err := Parse(cfg.Penalties[i].Condition); err == nil {
			cfg.Penalties[i].expr = expr
		}
	}

	return &Calculator{config: cfg}
}

// Calculate computes the reward for one state transition.
func (c *Calculator) Calculate(action Action, current, next StateView, outcome *Outcome, feedback *Feedback) Reward {
	b := Breakdown{
		TaskCompletion:   completionComponent(outcome),
		UserSatisfaction: satisfactionComponent(feedback),
		Efficiency:       efficiencyComponent(action, current, next, outcome),
		Accuracy:         accuracyComponent(outcome),
		Penalty:          penaltyComponent(action, next),
	}

	w := c.config.Weights
	value := b.TaskCompletion*w.TaskCompletion +
		b.UserSatisfaction*w.UserSatisfaction +
		b.Efficiency*w.Efficiency +
		b.Accuracy*w.Accuracy -
		b.Penalty

	env := ruleEnv(b, action, next, value)

	var matched []string
	for _, rule := range c.config.Bonuses {
		if rule.expr != nil && rule.expr.EvalBool(env) {
			value *= rule.Multiplier
			matched = append(matched, rule.Name)
		}
	}
	for _, rule := range c.config.Penalties {
		if rule.expr != nil && rule.expr.EvalBool(env) {
			value -= rule.Amount
			matched = append(matched, rule.Name)
		}
	}

	value = clamp(value, MinValue, MaxValue)

	r := Reward{
		Value:     value,
		Source:    dominantSource(b),
		Breakdown: b,
		Timestamp: time.Now(),
	}
	if len(matched) > 0 {
		r.Context = map[string]interface{}{"matched_rules": matched}
	}

	c.record(r)
	return r
}

// History returns a copy of the retained reward history, oldest first.
func (c *Calculator) History() []Reward {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Reward, len(c.history))
	copy(out, c.history)
	return out
}

// record appends to the bounded history.
func (c *Calculator) record(r Reward) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.history = append(c.history, r)
	if len(c.history) > c.config.HistorySize {
		c.history = c.history[len(c.history)-c.config.HistorySize:]
	}
}

// completionComponent scores the task outcome.
func completionComponent(outcome *Outcome) float64 {
	switch {
	case outcome == nil:
		return 0
	case outcome.Success:
		return 1.0
	case outcome.Partial:
		return 0.5
	case outcome.Failure:
		return -0.5
	default:
		return 0
	}
}

// satisfactionComponent maps a 1-5 rating to roughly [-1, 1].
func satisfactionComponent(feedback *Feedback) float64 {
	if feedback == nil {
		return 0
	}
	return (float64(feedback.Rating) - 3) / 2
}

// efficiencyComponent rewards load reduction and fast, cheap execution.
func efficiencyComponent(action Action, current, next StateView, outcome *Outcome) float64 {
	var elapsedMS float64
	if outcome != nil {
		elapsedMS = float64(outcome.Elapsed.Milliseconds())
	}

	v := 0.1*(current.Load-next.Load) -
		0.05*action.Cost +
		0.2*math.Max(0, 1-elapsedMS/elapsedScale)

	return clamp(v, -1, 1)
}

// accuracyComponent is a stepped lookup on measured accuracy.
func accuracyComponent(outcome *Outcome) float64 {
	if outcome == nil || !outcome.HasAccuracy {
		return 0
	}
	switch a := outcome.Accuracy; {
	case a >= 0.9:
		return 1.0
	case a >= 0.8:
		return 0.7
	case a >= 0.7:
		return 0.4
	case a >= 0.6:
		return 0.1
	default:
		return -0.2
	}
}

// penaltyComponent accumulates error, overload, and looping penalties.
func penaltyComponent(action Action, next StateView) float64 {
	var p float64
	if next.ErrorFlag {
		p += 0.5
	}
	if next.Load > 0.9 {
		p += 0.3
	}

	// Anti-looping: discourage repeating the same action.
	recent := next.RecentActionIDs
	if len(recent) > 10 {
		recent = recent[len(recent)-10:]
	}
	repeats := 0
	for _, id := range recent {
		if id == action.ID {
			repeats++
		}
	}
	if repeats > 2 {
		p += 0.1 * float64(repeats)
	}

	return p
}

// dominantSource picks the positive component with the largest magnitude.
func dominantSource(b Breakdown) string {
	components := []struct {
		name  string
		value float64
	}{
		{SourceTaskCompletion, b.TaskCompletion},
		{SourceUserSatisfaction, b.UserSatisfaction},
		{SourceEfficiency, b.Efficiency},
		{SourceAccuracy, b.Accuracy},
	}

	source := components[0].name
	best := math.Abs(components[0].value)
	for _, c := range components[1:] {
		if v := math.Abs(c.value); v > best {
			source, best = c.name, v
		}
	}
	return source
}

// ruleEnv exposes the named fields rule conditions may reference.
func ruleEnv(b Breakdown, action Action, next StateView, value float64) map[string]float64 {
	errFlag := 0.0
	if next.ErrorFlag {
		errFlag = 1.0
	}
	return map[string]float64{
		"task_completion":   b.TaskCompletion,
		"user_satisfaction": b.UserSatisfaction,
		"efficiency":        b.Efficiency,
		"accuracy":          b.Accuracy,
		"penalty":           b.Penalty,
		"action_cost":       action.Cost,
		"system_load":       next.Load,
		"error_flag":        errFlag,
		"reward":            value,
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
