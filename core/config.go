package core

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config holds the directory roots and timing knobs every worker loop
// needs. Per the runtime's process interface, directory roots and MCP
// endpoints are the only environment inputs the core consumes — no
// credentials live here.
//
// Configuration priority, low to high: defaults, environment variables,
// functional options.
type Config struct {
	// Root is the filesystem root all stage directories are resolved
	// against.
	Root string `json:"root" env:"TASKFORGE_ROOT" default:"."`

	// PollInterval is how often idle worker loops re-scan their input
	// directory.
	PollInterval time.Duration `json:"poll_interval" env:"TASKFORGE_POLL_INTERVAL" default:"2s"`

	// SchedulerTick is the scheduler loop's tick interval (spec: ~30s).
	SchedulerTick time.Duration `json:"scheduler_tick" env:"TASKFORGE_SCHEDULER_TICK" default:"30s"`

	// Logging configures the process-wide logger.
	Logging LoggingConfig `json:"logging"`

	// ServiceName identifies this process in logs and audit events.
	ServiceName string `json:"service_name" env:"TASKFORGE_SERVICE_NAME" default:"taskforge"`

	logger Logger `json:"-"`
}

// Option mutates a Config during construction.
type Option func(*Config) error

// WithRoot sets the filesystem root.
func WithRoot(root string) Option {
	return func(c *Config) error {
		if root == "" {
			return fmt.Errorf("%w: root cannot be empty", ErrInvalidConfiguration)
		}
		c.Root = root
		return nil
	}
}

// WithPollInterval overrides the idle poll interval.
func WithPollInterval(d time.Duration) Option {
	return func(c *Config) error {
		if d <= 0 {
			return fmt.Errorf("%w: poll interval must be positive", ErrInvalidConfiguration)
		}
		c.PollInterval = d
		return nil
	}
}

// WithLogger injects an explicit logger, bypassing ProductionLogger
// construction.
func WithLogger(logger Logger) Option {
	return func(c *Config) error {
		c.logger = logger
		return nil
	}
}

// WithServiceName sets the service name attached to log lines.
func WithServiceName(name string) Option {
	return func(c *Config) error {
		c.ServiceName = name
		return nil
	}
}

// DefaultConfig returns a Config populated with defaults only.
func DefaultConfig() *Config {
	return &Config{
		Root:          ".",
		PollInterval:  2 * time.Second,
		SchedulerTick: 30 * time.Second,
		ServiceName:   "taskforge",
		Logging: LoggingConfig{
			Level:  "info",
			Output: "stdout",
		},
	}
}

// loadEnv overlays environment variables onto defaults.
func (c *Config) loadEnv() error {
	if v := os.Getenv("TASKFORGE_ROOT"); v != "" {
		c.Root = v
	}
	if v := os.Getenv("TASKFORGE_POLL_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%w: TASKFORGE_POLL_INTERVAL: %v", ErrInvalidConfiguration, err)
		}
		c.PollInterval = d
	}
	if v := os.Getenv("TASKFORGE_SCHEDULER_TICK"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%w: TASKFORGE_SCHEDULER_TICK: %v", ErrInvalidConfiguration, err)
		}
		c.SchedulerTick = d
	}
	if v := os.Getenv("TASKFORGE_SERVICE_NAME"); v != "" {
		c.ServiceName = v
	}
	if v := os.Getenv("TASKFORGE_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("TASKFORGE_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
	if v := os.Getenv("TASKFORGE_LOG_OUTPUT"); v != "" {
		c.Logging.Output = v
	}
	if v := os.Getenv("TASKFORGE_DEBUG"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil && b {
			c.Logging.Level = "debug"
		}
	}
	return nil
}

// NewConfig builds a Config applying defaults, then environment
// variables, then functional options, then validates the result.
func NewConfig(opts ...Option) (*Config, error) {
	cfg := DefaultConfig()
	if err := cfg.loadEnv(); err != nil {
		return nil, err
	}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}
	if cfg.logger == nil {
		cfg.logger = NewProductionLogger(cfg.Logging, cfg.ServiceName)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks invariants that must hold before a Config is used.
func (c *Config) Validate() error {
	if c.Root == "" {
		return fmt.Errorf("%w: root cannot be empty", ErrInvalidConfiguration)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("%w: poll_interval must be positive", ErrInvalidConfiguration)
	}
	return nil
}

// Logger returns the configured logger, constructing a NoOpLogger if
// none was ever set.
func (c *Config) Logger() Logger {
	if c.logger == nil {
		return NoOpLogger{}
	}
	return c.logger
}

// Dir resolves a stage directory name against Root.
func (c *Config) Dir(parts ...string) string {
	all := append([]string{c.Root}, parts...)
	return filepath.Join(all...)
}
