// Package otel provides OpenTelemetry tracer provider initialization and management.
package otel

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/mrzor/wirestamp/internal/config"

	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

// logProxyConfig logs the proxy settings the OTLP/HTTP client will honor.
func logProxyConfig() {
	httpProxy := os.Getenv("HTTP_PROXY")
	if httpProxy == "" {
		httpProxy = os.Getenv("http_proxy")
	}
	httpsProxy := os.Getenv("HTTPS_PROXY")
	if httpsProxy == "" {
		httpsProxy = os.Getenv("https_proxy")
	}

	if httpProxy != "" || httpsProxy != "" {
		log.Printf("Proxy configuration: HTTP_PROXY=%q HTTPS_PROXY=%q", httpProxy, httpsProxy)
	}
}

// buildResource assembles the service resource from cfg.
func buildResource(ctx context.Context, cfg *config.OTELConfig, version string) (*resource.Resource, error) {
	attrs := []resource.Option{
		resource.WithAttributes(semconv.ServiceName(cfg.ServiceName)),
	}
	if version != "" {
		attrs = append(attrs, resource.WithAttributes(semconv.ServiceVersion(version)))
	}

	// Add custom resource attributes from environment
	if customAttrs := cfg.ParseResourceAttributes(); len(customAttrs) > 0 {
		attrs = append(attrs, resource.WithAttributes(customAttrs...))
	}

	res, err := resource.New(ctx, attrs...)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}
	return res, nil
}

// InitProvider creates a tracer provider exporting over OTLP/HTTP.
//
// Note: The HTTP client automatically honors HTTP_PROXY, HTTPS_PROXY, and
// NO_PROXY environment variables through Go's standard net/http transport.
func InitProvider(cfg *config.OTELConfig, version string) (*sdktrace.TracerProvider, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	endpoint := cfg.GetEndpoint()

	log.Printf("OTEL Configuration:")
	log.Printf("  Service Name: %s", cfg.ServiceName)
	log.Printf("  Endpoint: %s", endpoint)
	if cfg.ResourceAttributes != "" {
		log.Printf("  Resource Attributes: %s", cfg.ResourceAttributes)
	}
	logProxyConfig()

	exporterOpts := []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(endpoint),
		otlptracehttp.WithInsecure(),
		otlptracehttp.WithTimeout(10 * time.Second),
	}
	if headers := cfg.ParseHeaders(); len(headers) > 0 {
		exporterOpts = append(exporterOpts, otlptracehttp.WithHeaders(headers))
	}

	exporter, err := otlptracehttp.New(ctx, exporterOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP trace exporter: %w", err)
	}

	res, err := buildResource(ctx, cfg, version)
	if err != nil {
		return nil, err
	}

	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	), nil
}

// InitStdoutProvider creates a tracer provider that pretty-prints every
// span to w as it ends.
func InitStdoutProvider(cfg *config.OTELConfig, version string, w io.Writer) (*sdktrace.TracerProvider, error) {
	exporter, err := stdouttrace.New(
		stdouttrace.WithWriter(w),
		stdouttrace.WithPrettyPrint(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout trace exporter: %w", err)
	}

	res, err := buildResource(context.Background(), cfg, version)
	if err != nil {
		return nil, err
	}

	return sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exporter),
		sdktrace.WithResource(res),
	), nil
}

// ShutdownProvider gracefully shuts down the tracer provider, flushing any remaining spans.
func ShutdownProvider(ctx context.Context, tp *sdktrace.TracerProvider) error {
	if tp == nil {
		return nil
	}

	if err := tp.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown tracer provider: %w", err)
	}

	return nil
}
