package reward

import (
	"math"
	"testing"
	"time"
)

func TestCompletionComponent(t *testing.T) {
	tests := []struct {
		name    string
		outcome *Outcome
		want    float64
	}{
		{"nil outcome", nil, 0},
		{"success", &Outcome{Success: true}, 1.0},
		{"partial", &Outcome{Partial: true}, 0.5},
		{"failure", &Outcome{Failure: true}, -0.5},
		{"none", &Outcome{}, 0},
	}

	for _, tt := range tests {
		if got := completionComponent(tt.outcome); got != tt.want {
			t.Errorf("%s: expected %f, got %f", tt.name, tt.want, got)
		}
	}
}

func TestSatisfactionComponent(t *testing.T) {
	if got := satisfactionComponent(nil); got != 0 {
		t.Errorf("No feedback should be 0, got %f", got)
	}
	if got := satisfactionComponent(&Feedback{Rating: 5}); got != 1.0 {
		t.Errorf("Rating 5 should be 1.0, got %f", got)
	}
	if got := satisfactionComponent(&Feedback{Rating: 1}); got != -1.0 {
		t.Errorf("Rating 1 should be -1.0, got %f", got)
	}
	if got := satisfactionComponent(&Feedback{Rating: 3}); got != 0 {
		t.Errorf("Rating 3 should be 0, got %f", got)
	}
}

func TestAccuracyComponentSteps(t *testing.T) {
	steps := []struct {
		accuracy float64
		want     float64
	}{
		{0.95, 1.0},
		{0.9, 1.0},
		{0.85, 0.7},
		{0.75, 0.4},
		{0.65, 0.1},
		{0.3, -0.2},
	}

	for _, tt := range steps {
		o := &Outcome{Accuracy: tt.accuracy, HasAccuracy: true}
		if got := accuracyComponent(o); got != tt.want {
			t.Errorf("Accuracy %f: expected %f, got %f", tt.accuracy, tt.want, got)
		}
	}

	if got := accuracyComponent(&Outcome{}); got != 0 {
		t.Errorf("Unmeasured accuracy should be 0, got %f", got)
	}
}

func TestEfficiencyClamped(t *testing.T) {
	// Very expensive action drives the component far negative; it must
	// be clamped to -1.
	action := Action{ID: "a", Cost: 100}
	got := efficiencyComponent(action, StateView{}, StateView{}, &Outcome{Elapsed: time.Minute})
	if got != -1 {
		t.Errorf("Expected clamp to -1, got %f", got)
	}
}

func TestPenaltyAntiLooping(t *testing.T) {
	action := Action{ID: "retry"}
	next := StateView{
		RecentActionIDs: []string{"retry", "retry", "retry", "other"},
	}

	got := penaltyComponent(action, next)
	want := 0.1 * 3
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("Expected %f looping penalty, got %f", want, got)
	}

	// Two occurrences is under the threshold.
	next.RecentActionIDs = []string{"retry", "retry"}
	if got := penaltyComponent(action, next); got != 0 {
		t.Errorf("Two repeats should not be penalized, got %f", got)
	}
}

func TestPenaltyErrorAndOverload(t *testing.T) {
	got := penaltyComponent(Action{ID: "a"}, StateView{ErrorFlag: true, Load: 0.95})
	if math.Abs(got-0.8) > 1e-9 {
		t.Errorf("Expected 0.8 (error + overload), got %f", got)
	}
}

func TestRewardClampBound(t *testing.T) {
	// Heavy bonus multipliers cannot push the value past the bounds.
	cfg := DefaultConfig()
	cfg.Bonuses = []Rule{{Name: "amplify", Condition: "task_completion > 0", Multiplier: 1000}}
	calc := NewCalculator(cfg)

	r := calc.Calculate(Action{ID: "a"}, StateView{}, StateView{}, &Outcome{Success: true}, &Feedback{Rating: 5})
	if math.Abs(r.Value) > MaxValue {
		t.Errorf("Reward %f escaped the clamp", r.Value)
	}
	if r.Value != MaxValue {
		t.Errorf("Expected clamp at %f, got %f", MaxValue, r.Value)
	}
}

func TestRewardDeterministic(t *testing.T) {
	calc := NewCalculator(DefaultConfig())
	outcome := &Outcome{Success: true, Accuracy: 0.92, HasAccuracy: true, Elapsed: 500 * time.Millisecond}

	r1 := calc.Calculate(Action{ID: "a"}, StateView{Load: 0.5}, StateView{Load: 0.4}, outcome, nil)
	r2 := calc.Calculate(Action{ID: "a"}, StateView{Load: 0.5}, StateView{Load: 0.4}, outcome, nil)

	if r1.Value != r2.Value {
		t.Errorf("Same inputs produced %f and %f", r1.Value, r2.Value)
	}
	if r1.Source != r2.Source {
		t.Errorf("Dominant source differs: %s vs %s", r1.Source, r2.Source)
	}
}

func TestDominantSource(t *testing.T) {
	b := Breakdown{TaskCompletion: 0.2, UserSatisfaction: -0.9, Efficiency: 0.1, Accuracy: 0.3}
	if got := dominantSource(b); got != SourceUserSatisfaction {
		t.Errorf("Expected user_satisfaction (largest magnitude), got %s", got)
	}
}

func TestBonusAndPenaltyRules(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Bonuses = []Rule{{Name: "double-good", Condition: "task_completion > 0 && system_load < 0.5", Multiplier: 2}}
	cfg.Penalties = []Rule{{Name: "overload-tax", Condition: "system_load > 0.9", Amount: 1}}
	calc := NewCalculator(cfg)

	base := NewCalculator(DefaultConfig()).Calculate(
		Action{ID: "a"}, StateView{}, StateView{Load: 0.2}, &Outcome{Success: true}, nil)

	boosted := calc.Calculate(Action{ID: "a"}, StateView{}, StateView{Load: 0.2}, &Outcome{Success: true}, nil)
	if math.Abs(boosted.Value-base.Value*2) > 1e-9 {
		t.Errorf("Expected doubled reward, got %f (base %f)", boosted.Value, base.Value)
	}
	if boosted.Context == nil {
		t.Error("Expected matched rule annotation")
	}

	taxed := calc.Calculate(Action{ID: "a"}, StateView{}, StateView{Load: 0.95}, &Outcome{Success: true}, nil)
	if taxed.Value >= boosted.Value {
		t.Errorf("Penalty rule did not reduce reward: %f", taxed.Value)
	}
}

func TestMalformedRuleFailsClosed(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Bonuses = []Rule{{Name: "broken", Condition: "task_completion >>> oops", Multiplier: 100}}
	calc := NewCalculator(cfg)

	r := calc.Calculate(Action{ID: "a"}, StateView{}, StateView{}, &Outcome{Success: true}, nil)
	plain := NewCalculator(DefaultConfig()).Calculate(
		Action{ID: "a"}, StateView{}, StateView{}, &Outcome{Success: true}, nil)

	if r.Value != plain.Value {
		t.Errorf("Broken rule changed the reward: %f vs %f", r.Value, plain.Value)
	}
}

func TestHistoryBounded(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HistorySize = 5
	calc := NewCalculator(cfg)

	for i := 0; i < 10; i++ {
		calc.Calculate(Action{ID: "a"}, StateView{}, StateView{}, &Outcome{Success: true}, nil)
	}

	if got := len(calc.History()); got != 5 {
		t.Errorf("Expected history bounded to 5, got %d", got)
	}
}
