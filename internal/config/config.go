package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// CustomAttribute is a span attribute computed from an expression over the
// correlation key of a completed range.
type CustomAttribute struct {
	Name       string
	Expression string
}

// Config holds the settings of the send command.
type Config struct {
	// Target is the host:port to connect to
	Target string
	// Count is the number of frames to send
	Count int
	// Operation is the func_name tag written into each frame
	Operation string
	// Direction is the rpc_type tag written into each frame
	Direction string
	// PayloadSize is the number of opaque payload bytes after the tags
	PayloadSize int
	// Interval is the pause between frames
	Interval time.Duration
	// Untagged sends frames without identity tags
	Untagged bool
	// NoOTEL disables span export; results are only logged and counted
	NoOTEL bool
	// CustomAttributes are extra span attributes
	CustomAttributes []CustomAttribute
}

// Validate checks the send settings.
func (c *Config) Validate() error {
	if c.Target == "" {
		return fmt.Errorf("no target specified")
	}
	if c.Count < 1 {
		return fmt.Errorf("count must be positive, got %d", c.Count)
	}
	if c.PayloadSize < 0 {
		return fmt.Errorf("payload size cannot be negative, got %d", c.PayloadSize)
	}
	if !c.Untagged && c.Operation == "" {
		return fmt.Errorf("operation name cannot be empty")
	}
	if c.Direction != "request" && c.Direction != "response" {
		return fmt.Errorf("direction must be request or response, got %q", c.Direction)
	}
	return nil
}

// ParseAttribute parses a NAME=EXPR flag value. Only the first '=' splits;
// the expression may contain more.
func ParseAttribute(s string) (CustomAttribute, error) {
	name, expression, ok := strings.Cut(s, "=")
	if !ok {
		return CustomAttribute{}, fmt.Errorf("invalid attribute format %q: expected NAME=EXPR", s)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return CustomAttribute{}, fmt.Errorf("invalid attribute %q: name cannot be empty", s)
	}
	if strings.TrimSpace(expression) == "" {
		return CustomAttribute{}, fmt.Errorf("invalid attribute %q: expression cannot be empty", s)
	}
	return CustomAttribute{Name: name, Expression: expression}, nil
}

// ParseAttributes parses every NAME=EXPR value in order.
func ParseAttributes(values []string) ([]CustomAttribute, error) {
	attrs := make([]CustomAttribute, 0, len(values))
	for _, v := range values {
		attr, err := ParseAttribute(v)
		if err != nil {
			return nil, err
		}
		attrs = append(attrs, attr)
	}
	return attrs, nil
}

// RuntimeConfig holds tuning knobs read from the environment.
type RuntimeConfig struct {
	PollInterval time.Duration `env:"WIRESTAMP_POLL_INTERVAL" envDefault:"10ms"`
	DrainTimeout time.Duration `env:"WIRESTAMP_DRAIN_TIMEOUT" envDefault:"2s"`
	MetricsAddr  string        `env:"WIRESTAMP_METRICS_ADDR" envDefault:""`
	// PeerHints are extra endpoint strings scanned for peer names
	PeerHints []string `env:"WIRESTAMP_PEER_HINTS" envSeparator:","`
}

// ParseRuntimeConfig parses runtime configuration from environment variables
func ParseRuntimeConfig() (*RuntimeConfig, error) {
	var cfg RuntimeConfig
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse runtime config: %w", err)
	}
	if cfg.PollInterval <= 0 {
		return nil, fmt.Errorf("WIRESTAMP_POLL_INTERVAL must be positive, got %s", cfg.PollInterval)
	}
	if cfg.DrainTimeout < 0 {
		return nil, fmt.Errorf("WIRESTAMP_DRAIN_TIMEOUT cannot be negative, got %s", cfg.DrainTimeout)
	}
	return &cfg, nil
}
