// Package config loads the TOML configuration file and maps it onto the
// component configurations.
package config

import (
	"time"

	"github.com/BurntSushi/toml"

	"github.com/swarmlearn/swarmlearn/errors"
	"github.com/swarmlearn/swarmlearn/events"
	"github.com/swarmlearn/swarmlearn/reward"
	"github.com/swarmlearn/swarmlearn/rl"
	"github.com/swarmlearn/swarmlearn/scheduler"
	"github.com/swarmlearn/swarmlearn/telemetry"
)

// Duration wraps time.Duration so TOML files can use "30s" notation.
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Orchestrator is the [orchestrator] section.
type Orchestrator struct {
	TickInterval     Duration            `toml:"tick_interval"`
	ExecutionTimeout Duration            `toml:"execution_timeout"`
	StuckThreshold   Duration            `toml:"stuck_threshold"`
	Capabilities     map[string][]string `toml:"capabilities"`
}

// SchedulerConfig maps the section onto scheduler.Config. Zero fields
// keep the scheduler defaults.
func (o Orchestrator) SchedulerConfig() scheduler.Config {
	cfg := scheduler.DefaultConfig()
	if o.TickInterval > 0 {
		cfg.TickInterval = o.TickInterval.Std()
	}
	if o.ExecutionTimeout > 0 {
		cfg.ExecutionTimeout = o.ExecutionTimeout.Std()
	}
	if o.StuckThreshold > 0 {
		cfg.StuckThreshold = o.StuckThreshold.Std()
	}
	for taskType, caps := range o.Capabilities {
		cfg.Capabilities[scheduler.TaskType(taskType)] = caps
	}
	return cfg
}

// Events is the [events] section.
type Events struct {
	// Backend is "memory" or "nats".
	Backend string `toml:"backend"`

	// BufferSize for subscription channels.
	BufferSize int `toml:"buffer_size"`

	// URL is the NATS server URL when Backend is "nats".
	URL string `toml:"url"`

	// Name is the NATS client name.
	Name string `toml:"name"`
}

// Store is the [store] section.
type Store struct {
	// Backend is "memory" or "nats".
	Backend string `toml:"backend"`

	// URL is the NATS server URL when Backend is "nats".
	URL string `toml:"url"`

	// Bucket is the JetStream KV bucket name.
	Bucket string `toml:"bucket"`
}

// Telemetry is the [telemetry] section.
type Telemetry struct {
	// Exporter is "noop", "file", or "http".
	Exporter string `toml:"exporter"`

	// ExporterEndpoint is the file path or HTTP endpoint.
	ExporterEndpoint string `toml:"exporter_endpoint"`

	// Tracing enables the OTLP trace provider.
	Tracing bool `toml:"tracing"`

	ServiceName    string            `toml:"service_name"`
	ServiceVersion string            `toml:"service_version"`
	Endpoint       string            `toml:"endpoint"`
	Protocol       string            `toml:"protocol"`
	Insecure       bool              `toml:"insecure"`
	Debug          bool              `toml:"debug"`
	Headers        map[string]string `toml:"headers"`
	BatchTimeout   Duration          `toml:"batch_timeout"`
	ExportTimeout  Duration          `toml:"export_timeout"`
}

// ProviderConfig maps the section onto telemetry.ProviderConfig.
func (t Telemetry) ProviderConfig() telemetry.ProviderConfig {
	return telemetry.ProviderConfig{
		ServiceName:    t.ServiceName,
		ServiceVersion: t.ServiceVersion,
		Endpoint:       t.Endpoint,
		Protocol:       t.Protocol,
		Insecure:       t.Insecure,
		Debug:          t.Debug,
		Headers:        t.Headers,
		BatchTimeout:   t.BatchTimeout.Std(),
		ExportTimeout:  t.ExportTimeout.Std(),
	}
}

// Config is the full configuration file.
type Config struct {
	Orchestrator Orchestrator `toml:"orchestrator"`
	Learning     rl.Config    `toml:"learning"`
	Environment  rl.EnvConfig `toml:"environment"`
	Events       Events       `toml:"events"`
	Store        Store        `toml:"store"`
	Telemetry    Telemetry    `toml:"telemetry"`

	// LogLevel is the minimum console log level.
	LogLevel string `toml:"log_level"`
}

// Default returns a configuration with every component's defaults.
func Default() Config {
	return Config{
		Learning:    rl.DefaultConfig(),
		Environment: rl.DefaultEnvConfig(),
		Events: Events{
			Backend:    "memory",
			BufferSize: events.DefaultConfig().BufferSize,
		},
		Store:     Store{Backend: "memory"},
		Telemetry: Telemetry{Exporter: "noop"},
		LogLevel:  "INFO",
	}
}

// Load reads and validates a TOML configuration file. Missing fields
// keep their defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, errors.Config("loading config file", errors.WithCause(err))
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Parse decodes a TOML document from a string. Missing fields keep
// their defaults.
func Parse(data string) (Config, error) {
	cfg := Default()
	if _, err := toml.Decode(data, &cfg); err != nil {
		return Config{}, errors.Config("parsing config", errors.WithCause(err))
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the full configuration.
func (c Config) Validate() error {
	if err := c.Orchestrator.SchedulerConfig().Validate(); err != nil {
		return err
	}
	if err := c.Learning.Validate(); err != nil {
		return err
	}
	if err := c.Environment.Validate(); err != nil {
		return err
	}
	switch c.Events.Backend {
	case "memory", "nats":
	default:
		return errors.Config("events backend must be memory or nats")
	}
	if c.Events.Backend == "nats" && c.Events.URL == "" {
		return errors.Config("events backend nats requires a url")
	}
	switch c.Store.Backend {
	case "memory", "nats":
	default:
		return errors.Config("store backend must be memory or nats")
	}
	if c.Store.Backend == "nats" && c.Store.URL == "" {
		return errors.Config("store backend nats requires a url")
	}
	switch c.Telemetry.Exporter {
	case "", "noop", "file", "http":
	default:
		return errors.Config("telemetry exporter must be noop, file, or http")
	}
	return nil
}

// RewardConfig returns the environment's reward section.
func (c Config) RewardConfig() reward.Config {
	return c.Environment.Reward
}
