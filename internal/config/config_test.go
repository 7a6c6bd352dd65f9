package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// unsetEnv removes keys for the duration of the test.
func unsetEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
}

func validConfig() *Config {
	return &Config{
		Target:    "127.0.0.1:50051",
		Count:     1,
		Operation: "SayHello",
		Direction: "request",
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"missing target", func(c *Config) { c.Target = "" }, "no target specified"},
		{"zero count", func(c *Config) { c.Count = 0 }, "count must be positive"},
		{"negative payload", func(c *Config) { c.PayloadSize = -1 }, "payload size cannot be negative"},
		{"empty operation", func(c *Config) { c.Operation = "" }, "operation name cannot be empty"},
		{"empty operation untagged", func(c *Config) { c.Operation = ""; c.Untagged = true }, ""},
		{"bad direction", func(c *Config) { c.Direction = "sideways" }, "direction must be request or response"},
		{"response direction", func(c *Config) { c.Direction = "response" }, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseAttribute(t *testing.T) {
	attr, err := ParseAttribute(`method=operation + "/" + direction`)
	require.NoError(t, err)
	assert.Equal(t, "method", attr.Name)
	assert.Equal(t, `operation + "/" + direction`, attr.Expression)
}

func TestParseAttribute_WithEquals(t *testing.T) {
	attr, err := ParseAttribute(`is_req=direction=="request"`)
	require.NoError(t, err)
	assert.Equal(t, "is_req", attr.Name)
	assert.Equal(t, `direction=="request"`, attr.Expression)
}

func TestParseAttribute_Errors(t *testing.T) {
	tests := []struct {
		input   string
		wantErr []string
	}{
		{"invalid_no_equals", []string{"invalid attribute format", "NAME=EXPR"}},
		{"=value", []string{"name cannot be empty"}},
		{"name=", []string{"expression cannot be empty"}},
		{"name=   ", []string{"expression cannot be empty"}},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			_, err := ParseAttribute(tt.input)
			require.Error(t, err)
			for _, want := range tt.wantErr {
				assert.Contains(t, err.Error(), want)
			}
		})
	}
}

func TestParseAttributes(t *testing.T) {
	attrs, err := ParseAttributes([]string{"a=identity", "b=peer"})
	require.NoError(t, err)
	require.Len(t, attrs, 2)
	assert.Equal(t, "a", attrs[0].Name)
	assert.Equal(t, "b", attrs[1].Name)

	_, err = ParseAttributes([]string{"a=identity", "broken"})
	assert.Error(t, err)

	attrs, err = ParseAttributes(nil)
	require.NoError(t, err)
	assert.Empty(t, attrs)
}

func TestParseRuntimeConfig_Defaults(t *testing.T) {
	unsetEnv(t, "WIRESTAMP_POLL_INTERVAL", "WIRESTAMP_DRAIN_TIMEOUT", "WIRESTAMP_METRICS_ADDR", "WIRESTAMP_PEER_HINTS")

	cfg, err := ParseRuntimeConfig()
	require.NoError(t, err)
	assert.Equal(t, 10*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, 2*time.Second, cfg.DrainTimeout)
	assert.Empty(t, cfg.MetricsAddr)
	assert.Empty(t, cfg.PeerHints)
}

func TestParseRuntimeConfig_FromEnv(t *testing.T) {
	t.Setenv("WIRESTAMP_POLL_INTERVAL", "1ms")
	t.Setenv("WIRESTAMP_DRAIN_TIMEOUT", "500ms")
	t.Setenv("WIRESTAMP_METRICS_ADDR", ":9464")
	t.Setenv("WIRESTAMP_PEER_HINTS", "greeter.example.com:50051,10.0.0.5")

	cfg, err := ParseRuntimeConfig()
	require.NoError(t, err)
	assert.Equal(t, []string{"greeter.example.com:50051", "10.0.0.5"}, cfg.PeerHints)
	assert.Equal(t, time.Millisecond, cfg.PollInterval)
	assert.Equal(t, 500*time.Millisecond, cfg.DrainTimeout)
	assert.Equal(t, ":9464", cfg.MetricsAddr)
}

func TestParseRuntimeConfig_Invalid(t *testing.T) {
	t.Setenv("WIRESTAMP_POLL_INTERVAL", "0s")
	_, err := ParseRuntimeConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be positive")

	t.Setenv("WIRESTAMP_POLL_INTERVAL", "soon")
	_, err = ParseRuntimeConfig()
	assert.Error(t, err)
}

func TestOTELConfig_GetEndpoint(t *testing.T) {
	tests := []struct {
		name string
		cfg  OTELConfig
		want string
	}{
		{"default", OTELConfig{}, DefaultOTLPEndpoint},
		{"exporter endpoint", OTELConfig{ExporterEndpoint: "collector:4318"}, "collector:4318"},
		{"traces endpoint wins", OTELConfig{ExporterEndpoint: "a:1", TracesEndpoint: "b:2"}, "b:2"},
		{"scheme stripped", OTELConfig{ExporterEndpoint: "http://collector:4318/"}, "collector:4318"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cfg.GetEndpoint())
		})
	}
}

func TestOTELConfig_ParseResourceAttributes(t *testing.T) {
	cfg := OTELConfig{ResourceAttributes: "env=prod, team = wire ,broken,=skip"}

	attrs := cfg.ParseResourceAttributes()
	require.Len(t, attrs, 2)
	assert.Equal(t, "env", string(attrs[0].Key))
	assert.Equal(t, "prod", attrs[0].Value.AsString())
	assert.Equal(t, "team", string(attrs[1].Key))
	assert.Equal(t, "wire", attrs[1].Value.AsString())

	assert.Nil(t, (&OTELConfig{}).ParseResourceAttributes())
}

func TestOTELConfig_ParseHeaders(t *testing.T) {
	cfg := OTELConfig{Headers: "authorization=Bearer abc=, x-tenant=wire"}

	assert.Equal(t, map[string]string{
		"authorization": "Bearer abc=",
		"x-tenant":      "wire",
	}, cfg.ParseHeaders())
	assert.Nil(t, (&OTELConfig{}).ParseHeaders())
}

func TestParseOTELConfig(t *testing.T) {
	unsetEnv(t, "OTEL_SERVICE_NAME", "OTEL_EXPORTER_OTLP_TRACES_ENDPOINT")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "collector:4318")

	cfg, err := ParseOTELConfig()
	require.NoError(t, err)
	assert.Equal(t, "wirestamp", cfg.ServiceName)
	assert.Equal(t, "collector:4318", cfg.GetEndpoint())
}
