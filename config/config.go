// Package config loads refinery configuration from YAML files, .env files
// and the process environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hupe1980/refinery/logging"
	"github.com/hupe1980/refinery/loop"
	"github.com/hupe1980/refinery/steps"
)

// Supported model providers.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderMock      = "mock"
)

// Config is the root configuration document.
type Config struct {
	Model    ModelConfig    `yaml:"model"`
	Loop     LoopConfig     `yaml:"loop"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Runner   RunnerConfig   `yaml:"runner"`
	Events   EventsConfig   `yaml:"events"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ModelConfig selects and tunes the model provider.
type ModelConfig struct {
	Provider    string  `yaml:"provider"`
	Name        string  `yaml:"name"`
	APIKey      string  `yaml:"api_key"`
	BaseURL     string  `yaml:"base_url"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int64   `yaml:"max_tokens"`
	// MaxCalls caps model calls per process; 0 means unlimited.
	MaxCalls  int  `yaml:"max_calls"`
	Streaming bool `yaml:"streaming"`
}

// RetryConfig mirrors loop.RetryPolicy.
type RetryConfig struct {
	MaxRetries int           `yaml:"max_retries"`
	BaseDelay  time.Duration `yaml:"base_delay"`
	MaxDelay   time.Duration `yaml:"max_delay"`
	Multiplier float64       `yaml:"multiplier"`
	Jitter     bool          `yaml:"jitter"`
}

// LoopConfig configures the refinement loop.
type LoopConfig struct {
	MaxIterations int           `yaml:"max_iterations"`
	Sentinel      string        `yaml:"sentinel"`
	Interval      time.Duration `yaml:"interval"`
	StepTimeout   time.Duration `yaml:"step_timeout"`
	Retry         RetryConfig   `yaml:"retry"`
}

// PipelineConfig configures the draft stage and prompt overrides.
type PipelineConfig struct {
	DefaultTopic       string `yaml:"default_topic"`
	WriterInstruction  string `yaml:"writer_instruction"`
	CriticInstruction  string `yaml:"critic_instruction"`
	RefinerInstruction string `yaml:"refiner_instruction"`
}

// RunnerConfig configures run execution.
type RunnerConfig struct {
	MaxConcurrentRuns int `yaml:"max_concurrent_runs"`
}

// NATSConfig configures the NATS event sink.
type NATSConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

// EventsConfig configures event sinks.
type EventsConfig struct {
	NATS NATSConfig `yaml:"nats"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
	Path    string `yaml:"path"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"`
	AddSource bool   `yaml:"add_source"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Model: ModelConfig{
			Provider:    ProviderOpenAI,
			Temperature: 0.7,
			MaxTokens:   4096,
		},
		Loop: LoopConfig{
			MaxIterations: loop.DefaultMaxIterations,
			Sentinel:      loop.DefaultSentinel,
			StepTimeout:   2 * time.Minute,
			Retry: RetryConfig{
				MaxRetries: 2,
				BaseDelay:  time.Second,
				MaxDelay:   30 * time.Second,
				Multiplier: 2,
				Jitter:     true,
			},
		},
		Pipeline: PipelineConfig{DefaultTopic: steps.DefaultTopic},
		Runner:   RunnerConfig{MaxConcurrentRuns: 4},
		Events: EventsConfig{NATS: NATSConfig{
			URL:           "${NATS_URL:-nats://127.0.0.1:4222}",
			SubjectPrefix: "refinery.runs",
		}},
		Metrics: MetricsConfig{Addr: ":9090", Path: "/metrics"},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

// Load reads the YAML file at path over the defaults, expands environment
// references in every string value and validates the result. An empty path
// yields the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		cfg := Default()
		cfg.expand()
		return cfg, cfg.Validate()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults, expands environment references and
// validates the result.
func Parse(data []byte) (*Config, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("failed to parse yaml: %w", err)
	}

	cfg := Default()
	if len(root.Content) > 0 {
		expandNode(&root)
		if err := root.Decode(cfg); err != nil {
			return nil, fmt.Errorf("failed to decode yaml: %w", err)
		}
	}
	cfg.expand()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// expand resolves environment references left in defaults.
func (c *Config) expand() {
	c.Events.NATS.URL = ExpandEnv(c.Events.NATS.URL)
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var errs []error

	switch c.Model.Provider {
	case ProviderOpenAI, ProviderAnthropic, ProviderMock:
	default:
		errs = append(errs, fmt.Errorf("model.provider: unsupported provider %q", c.Model.Provider))
	}
	if c.Model.MaxTokens < 0 {
		errs = append(errs, errors.New("model.max_tokens: must not be negative"))
	}
	if c.Model.MaxCalls < 0 {
		errs = append(errs, errors.New("model.max_calls: must not be negative"))
	}
	if c.Loop.MaxIterations < 1 {
		errs = append(errs, fmt.Errorf("loop.max_iterations: %w", loop.ErrInvalidMaxIterations))
	}
	if c.Loop.Sentinel == "" {
		errs = append(errs, errors.New("loop.sentinel: must not be empty"))
	}
	if c.Loop.Interval < 0 || c.Loop.StepTimeout < 0 {
		errs = append(errs, errors.New("loop: durations must not be negative"))
	}
	if c.Loop.Retry.MaxRetries < 0 {
		errs = append(errs, errors.New("loop.retry.max_retries: must not be negative"))
	}
	if c.Runner.MaxConcurrentRuns < 1 {
		errs = append(errs, errors.New("runner.max_concurrent_runs: must be at least 1"))
	}
	if c.Events.NATS.Enabled && c.Events.NATS.URL == "" {
		errs = append(errs, errors.New("events.nats.url: required when nats is enabled"))
	}
	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		errs = append(errs, errors.New("metrics.addr: required when metrics are enabled"))
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, fmt.Errorf("logging.level: %w", err))
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format: unsupported format %q", c.Logging.Format))
	}

	return errors.Join(errs...)
}

// RetryPolicy converts the retry section into a loop.RetryPolicy.
func (c LoopConfig) RetryPolicy() loop.RetryPolicy {
	return loop.RetryPolicy{
		MaxRetries:        c.Retry.MaxRetries,
		BaseDelay:         c.Retry.BaseDelay,
		MaxDelay:          c.Retry.MaxDelay,
		BackoffMultiplier: c.Retry.Multiplier,
		Jitter:            c.Retry.Jitter,
	}
}

// Options converts the section into loop options.
func (c LoopConfig) Options() []loop.Option {
	return []loop.Option{
		loop.WithMaxIterations(c.MaxIterations),
		loop.WithInterval(c.Interval),
		loop.WithStepTimeout(c.StepTimeout),
		loop.WithRetry(c.RetryPolicy()),
	}
}
