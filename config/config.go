// Package config loads the kernel configuration from YAML.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"golang.org/x/time/rate"
	"gopkg.in/yaml.v3"

	"github.com/hupe1980/agentkernel/core"
	"github.com/hupe1980/agentkernel/logging"
)

// Config is the complete kernel configuration.
type Config struct {
	Spool        SpoolConfig   `yaml:"spool"`
	Budget       core.Budget   `yaml:"budget"`
	AllowedTools []string      `yaml:"allowed_tools,omitempty"`
	Hooks        HooksConfig   `yaml:"hooks,omitempty"`
	Logging      LoggingConfig `yaml:"logging"`
}

// SpoolConfig defines worker pool settings shared by dispatch rounds and
// standalone spool batches.
type SpoolConfig struct {
	Concurrency int           `yaml:"concurrency"`
	Deadline    time.Duration `yaml:"deadline,omitempty"`
	StartRate   float64       `yaml:"start_rate,omitempty"` // task starts per second, 0 = unlimited
	StartBurst  int           `yaml:"start_burst,omitempty"`
}

// HooksConfig declares built-in policy handlers.
type HooksConfig struct {
	DenyTools  []string `yaml:"deny_tools,omitempty"`
	DenyReason string   `yaml:"deny_reason,omitempty"`
	AuditLimit int      `yaml:"audit_limit,omitempty"`
}

// LoggingConfig defines log output settings.
type LoggingConfig struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"`
	AddSource bool   `yaml:"add_source,omitempty"`
}

// Default returns the baseline configuration.
func Default() *Config {
	return &Config{
		Spool: SpoolConfig{Concurrency: 4},
		Hooks: HooksConfig{DenyReason: "tool denied by configuration"},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads and parses the configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return cfg, nil
}

// Parse decodes YAML over the defaults and validates the result.
// ${VAR} references are expanded from the environment before decoding;
// unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(bytes.NewReader([]byte(os.ExpandEnv(string(data)))))
	dec.KnownFields(true)

	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate reports the first invalid setting as *core.InvalidConfigError.
func (c *Config) Validate() error {
	if c.Spool.Concurrency < 1 {
		return core.NewInvalidConfigError("spool.concurrency", fmt.Sprintf("must be >= 1, got %d", c.Spool.Concurrency))
	}
	if c.Spool.Deadline < 0 {
		return core.NewInvalidConfigError("spool.deadline", "must not be negative")
	}
	if c.Spool.StartRate < 0 {
		return core.NewInvalidConfigError("spool.start_rate", "must not be negative")
	}
	if c.Spool.StartRate > 0 && c.Spool.StartBurst < 1 {
		return core.NewInvalidConfigError("spool.start_burst", "must be >= 1 when start_rate is set")
	}

	if err := c.Budget.Validate(); err != nil {
		return err
	}

	for i, name := range c.AllowedTools {
		if strings.TrimSpace(name) == "" {
			return core.NewInvalidConfigError(fmt.Sprintf("allowed_tools[%d]", i), "must not be empty")
		}
	}
	if c.Hooks.AuditLimit < 0 {
		return core.NewInvalidConfigError("hooks.audit_limit", "must not be negative")
	}

	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return core.NewInvalidConfigError("logging.level", err.Error())
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		return core.NewInvalidConfigError("logging.format", fmt.Sprintf("must be json or text, got %q", c.Logging.Format))
	}

	return nil
}

// Limit returns the start rate as a rate.Limit.
func (s SpoolConfig) Limit() rate.Limit { return rate.Limit(s.StartRate) }

// LoggerConfig converts the logging section for logging.NewLogger.
// A nil out writes to stderr.
func (c *Config) LoggerConfig(out io.Writer) *logging.LoggerConfig {
	level, _ := logging.ParseLevel(c.Logging.Level)
	return &logging.LoggerConfig{
		Level:     level,
		Format:    c.Logging.Format,
		Output:    out,
		AddSource: c.Logging.AddSource,
	}
}
