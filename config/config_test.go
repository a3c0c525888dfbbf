package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/swarmlearn/swarmlearn/errors"
	"github.com/swarmlearn/swarmlearn/rl"
	"github.com/swarmlearn/swarmlearn/scheduler"
)

const sampleConfig = `
log_level = "DEBUG"

[orchestrator]
tick_interval = "250ms"
execution_timeout = "2m"
stuck_threshold = "45s"

[orchestrator.capabilities]
run_tests = ["testing"]
analyze_architecture = ["architecture_analysis", "component_detection"]

[learning]
learning_rate = 0.2
discount_factor = 0.95
exploration_rate = 0.8
exploration_decay = 0.99
min_exploration = 0.05

[environment]
max_steps = 50
deterministic = false
noise_amplitude = 0.02
mode = "competitive"
goal_performance = 0.9

[environment.reward]
history_size = 500

[environment.reward.weights]
task_completion = 0.5
user_satisfaction = 0.2
efficiency = 0.2
accuracy = 0.1

[[environment.reward.bonuses]]
name = "fast_finish"
condition = "elapsed_ms < 1000"
amount = 0.5

[events]
backend = "nats"
url = "nats://localhost:4222"
buffer_size = 512

[store]
backend = "memory"

[telemetry]
exporter = "file"
exporter_endpoint = "/tmp/metrics.jsonl"
tracing = true
service_name = "swarmlearn-dev"
protocol = "grpc"
batch_timeout = "5s"
`

func TestParseSample(t *testing.T) {
	cfg, err := Parse(sampleConfig)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if cfg.LogLevel != "DEBUG" {
		t.Errorf("Expected log level DEBUG, got %s", cfg.LogLevel)
	}

	sched := cfg.Orchestrator.SchedulerConfig()
	if sched.TickInterval != 250*time.Millisecond {
		t.Errorf("Expected 250ms tick, got %v", sched.TickInterval)
	}
	if sched.ExecutionTimeout != 2*time.Minute {
		t.Errorf("Expected 2m timeout, got %v", sched.ExecutionTimeout)
	}
	caps := sched.Capabilities[scheduler.TaskType("analyze_architecture")]
	if len(caps) != 2 || caps[0] != "architecture_analysis" {
		t.Errorf("Unexpected capabilities: %v", caps)
	}

	if cfg.Learning.LearningRate != 0.2 {
		t.Errorf("Expected learning rate 0.2, got %f", cfg.Learning.LearningRate)
	}
	if cfg.Learning.DefaultQ != rl.DefaultConfig().DefaultQ {
		t.Error("Unset fields should keep defaults")
	}

	if cfg.Environment.Mode != rl.ModeCompetitive {
		t.Errorf("Expected competitive mode, got %s", cfg.Environment.Mode)
	}
	if cfg.Environment.Reward.Weights.TaskCompletion != 0.5 {
		t.Errorf("Expected completion weight 0.5, got %f", cfg.Environment.Reward.Weights.TaskCompletion)
	}
	if len(cfg.Environment.Reward.Bonuses) != 1 || cfg.Environment.Reward.Bonuses[0].Name != "fast_finish" {
		t.Errorf("Unexpected bonuses: %+v", cfg.Environment.Reward.Bonuses)
	}

	if cfg.Events.Backend != "nats" || cfg.Events.BufferSize != 512 {
		t.Errorf("Unexpected events config: %+v", cfg.Events)
	}
	if cfg.Telemetry.Exporter != "file" {
		t.Errorf("Expected file exporter, got %s", cfg.Telemetry.Exporter)
	}
	if cfg.Telemetry.ProviderConfig().BatchTimeout != 5*time.Second {
		t.Error("Batch timeout should map through to the provider config")
	}
}

func TestDefaultsValidate(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default config should validate: %v", err)
	}
}

func TestParseRejectsBadValues(t *testing.T) {
	cases := []struct {
		name string
		doc  string
	}{
		{"bad duration", "[orchestrator]\ntick_interval = \"soon\""},
		{"bad events backend", "[events]\nbackend = \"kafka\""},
		{"nats without url", "[events]\nbackend = \"nats\""},
		{"bad learning rate", "[learning]\nlearning_rate = 1.5"},
		{"bad exporter", "[telemetry]\nexporter = \"statsd\""},
	}
	for _, tc := range cases {
		if _, err := Parse(tc.doc); err == nil {
			t.Errorf("%s: expected error", tc.name)
		}
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		t.Fatalf("Writing config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Store.Backend != "memory" {
		t.Errorf("Expected memory store, got %s", cfg.Store.Backend)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Error("Expected error for missing file")
	} else if errors.CodeOf(err) != errors.ErrCodeConfig {
		t.Errorf("Expected CONFIG code, got %s", errors.CodeOf(err))
	}
}

func TestDurationRoundTrip(t *testing.T) {
	var d Duration
	if err := d.UnmarshalText([]byte("1m30s")); err != nil {
		t.Fatalf("UnmarshalText failed: %v", err)
	}
	if d.Std() != 90*time.Second {
		t.Errorf("Expected 90s, got %v", d.Std())
	}
	text, err := d.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText failed: %v", err)
	}
	if string(text) != "1m30s" {
		t.Errorf("Expected 1m30s, got %s", text)
	}
}
