package config

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
	"go.opentelemetry.io/otel/attribute"
)

// DefaultOTLPEndpoint is the OTLP/HTTP collector address used when no
// endpoint variable is set.
const DefaultOTLPEndpoint = "localhost:4318"

// OTELConfig holds OpenTelemetry configuration from environment variables
type OTELConfig struct {
	ServiceName        string `env:"OTEL_SERVICE_NAME" envDefault:"wirestamp"`
	ResourceAttributes string `env:"OTEL_RESOURCE_ATTRIBUTES" envDefault:""`
	ExporterEndpoint   string `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:""`
	TracesEndpoint     string `env:"OTEL_EXPORTER_OTLP_TRACES_ENDPOINT" envDefault:""`
	Headers            string `env:"OTEL_EXPORTER_OTLP_HEADERS" envDefault:""`
}

// ParseOTELConfig parses OTEL configuration from environment variables
func ParseOTELConfig() (*OTELConfig, error) {
	var cfg OTELConfig
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse OTEL config: %w", err)
	}
	return &cfg, nil
}

// GetEndpoint returns the host:port traces are exported to.
// Priority: OTEL_EXPORTER_OTLP_TRACES_ENDPOINT > OTEL_EXPORTER_OTLP_ENDPOINT > default.
// A URL scheme, if present, is stripped since the exporter takes a bare
// endpoint.
func (c *OTELConfig) GetEndpoint() string {
	endpoint := DefaultOTLPEndpoint
	switch {
	case c.TracesEndpoint != "":
		endpoint = c.TracesEndpoint
	case c.ExporterEndpoint != "":
		endpoint = c.ExporterEndpoint
	}

	for _, scheme := range []string{"http://", "https://"} {
		endpoint = strings.TrimPrefix(endpoint, scheme)
	}
	return strings.TrimSuffix(endpoint, "/")
}

// ParseResourceAttributes parses OTEL_RESOURCE_ATTRIBUTES
// (key1=value1,key2=value2). Malformed pairs are skipped.
func (c *OTELConfig) ParseResourceAttributes() []attribute.KeyValue {
	pairs := parsePairs(c.ResourceAttributes)
	if len(pairs) == 0 {
		return nil
	}

	attrs := make([]attribute.KeyValue, 0, len(pairs))
	for _, kv := range pairs {
		attrs = append(attrs, attribute.String(kv[0], kv[1]))
	}
	return attrs
}

// ParseHeaders parses OTEL_EXPORTER_OTLP_HEADERS (key1=value1,key2=value2).
func (c *OTELConfig) ParseHeaders() map[string]string {
	pairs := parsePairs(c.Headers)
	if len(pairs) == 0 {
		return nil
	}

	headers := make(map[string]string, len(pairs))
	for _, kv := range pairs {
		headers[kv[0]] = kv[1]
	}
	return headers
}

// parsePairs splits a comma-separated key=value list in order.
func parsePairs(s string) [][2]string {
	if s == "" {
		return nil
	}

	var pairs [][2]string
	for _, pair := range strings.Split(s, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(pair), "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			continue
		}
		pairs = append(pairs, [2]string{key, strings.TrimSpace(value)})
	}
	return pairs
}
