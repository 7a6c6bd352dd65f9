package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/mrzor/wirestamp/internal/config"
	"github.com/mrzor/wirestamp/internal/eventstream"
	"github.com/mrzor/wirestamp/internal/ledger"
	"github.com/mrzor/wirestamp/internal/metrics"
	"github.com/mrzor/wirestamp/internal/otel"
	"github.com/mrzor/wirestamp/internal/output"
	"github.com/mrzor/wirestamp/internal/peername"
	"github.com/mrzor/wirestamp/internal/transport"
)

// sendOptions are the send flags that do not belong in config.Config.
type sendOptions struct {
	attributes  []string
	traceIDExpr string
	stdoutSpans bool
}

func newSendCmd() *cobra.Command {
	cfg := &config.Config{}
	opts := &sendOptions{}

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send tagged frames to a target and report their transmit timestamps",
		Example: `  wirestamp send --target 10.0.0.5:50051 --func SayHello --count 10
  wirestamp send --target localhost:9000 --no-otel -a route='operation + "@" + peer'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			attrs, err := config.ParseAttributes(opts.attributes)
			if err != nil {
				return err
			}
			cfg.CustomAttributes = attrs
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runSend(ctx, cmd, cfg, opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&cfg.Target, "target", "t", "", "host:port to connect to")
	f.IntVarP(&cfg.Count, "count", "n", 1, "number of frames to send")
	f.StringVar(&cfg.Operation, "func", "Ping", "operation name written as func_name")
	f.StringVar(&cfg.Direction, "direction", "request", "rpc_type written into each frame (request or response)")
	f.IntVar(&cfg.PayloadSize, "payload-size", 512, "opaque payload bytes after the tags")
	f.DurationVar(&cfg.Interval, "interval", 0, "pause between frames")
	f.BoolVar(&cfg.Untagged, "untagged", false, "send frames without identity tags")
	f.BoolVar(&cfg.NoOTEL, "no-otel", false, "do not export spans")
	f.BoolVar(&opts.stdoutSpans, "stdout-spans", false, "print spans to stdout instead of exporting over OTLP")
	f.StringVar(&opts.traceIDExpr, "trace-id-expr", "", "expression computing the trace ID source (default: the identity)")
	f.StringArrayVarP(&opts.attributes, "attribute", "a", nil, "custom span attribute as NAME=EXPR (repeatable)")
	_ = cmd.MarkFlagRequired("target") //nolint:errcheck // Flag is defined above

	return cmd
}

// setupTracing returns the tracer spans are exported with and a cleanup
// function flushing it. A nil tracer disables span export.
func setupTracing(cmd *cobra.Command, cfg *config.Config, opts *sendOptions) (trace.Tracer, func(), error) {
	if cfg.NoOTEL {
		return nil, func() {}, nil
	}

	otelCfg, err := config.ParseOTELConfig()
	if err != nil {
		return nil, nil, err
	}

	versionInfo := fmt.Sprintf("%s (%s)", version, commit)
	var tp *sdktrace.TracerProvider
	if opts.stdoutSpans {
		tp, err = otel.InitStdoutProvider(otelCfg, versionInfo, cmd.OutOrStdout())
	} else {
		tp, err = otel.InitProvider(otelCfg, versionInfo)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("ABORT: failed to initialize OTEL provider: %w", err)
	}

	cleanup := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otel.ShutdownProvider(shutdownCtx, tp); err != nil {
			log.Printf("Error shutting down OTEL provider: %v", err)
		}
	}
	return tp.Tracer("wirestamp"), cleanup, nil
}

// serveMetrics exposes reg on addr until ctx is done.
func serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		_ = srv.Close() //nolint:errcheck // Best-effort shutdown
	}()
	go func() {
		log.Printf("Serving metrics on %s/metrics", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("Metrics server stopped: %v", err)
		}
	}()
}

func runSend(ctx context.Context, cmd *cobra.Command, cfg *config.Config, opts *sendOptions) error {
	rt, err := config.ParseRuntimeConfig()
	if err != nil {
		return err
	}

	log.Printf("Starting wirestamp %s (commit: %s, built: %s)", version, commit, date)

	tracer, cleanupTracing, err := setupTracing(cmd, cfg, opts)
	if err != nil {
		return err
	}
	defer cleanupTracing()

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	if rt.MetricsAddr != "" {
		metricsCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		serveMetrics(metricsCtx, rt.MetricsAddr, reg)
	}

	resolver := peername.New()
	resolver.IngestEndpoints(cfg.Target)
	resolver.IngestEndpoints(rt.PeerHints...)

	reporter, err := output.NewReporter(output.Options{
		Tracer:            tracer,
		Resolver:          resolver,
		Metrics:           m,
		CustomAttributes:  cfg.CustomAttributes,
		TraceIDExpression: opts.traceIDExpr,
		Writer:            cmd.OutOrStdout(),
	})
	if err != nil {
		return err
	}

	callbacks := ledger.NewRegistry()
	callbacks.Register(reporter.Handle)

	conn, err := transport.Dial(ctx, cfg.Target, callbacks)
	if err != nil {
		return err
	}
	if !conn.Timestamping() {
		fmt.Fprintln(cmd.ErrOrStderr(), "transmit timestamps unavailable; writes are not tracked")
	}

	stream := eventstream.New(conn, rt.PollInterval)
	if err := stream.Start(ctx); err != nil {
		_ = conn.Close(err) //nolint:errcheck // Best-effort cleanup in error path
		return err
	}

	sendErr := sendFrames(ctx, conn, cfg)

	drainCtx, cancel := context.WithTimeout(ctx, rt.DrainTimeout)
	defer cancel()
	drainErr := conn.AwaitDrain(drainCtx, rt.PollInterval)
	if drainErr != nil {
		log.Printf("%d ranges still pending after drain: %v", conn.Pending(), drainErr)
	}

	if err := stream.Stop(); err != nil {
		log.Printf("Error stopping stream: %v", err)
	}

	var reason error
	if drainErr != nil {
		reason = fmt.Errorf("drain incomplete: %w", errors.Join(drainErr, transport.ErrConnClosed))
	}
	if err := conn.Close(reason); err != nil {
		log.Printf("Error closing connection: %v", err)
	}

	return sendErr
}

// sendFrames writes cfg.Count frames, each with a fresh identity.
func sendFrames(ctx context.Context, conn *transport.Conn, cfg *config.Config) error {
	for i := 0; i < cfg.Count; i++ {
		frame := buildFrame(cfg, uuid.NewString())
		if _, err := conn.Write(frame); err != nil {
			return fmt.Errorf("writing frame %d: %w", i, err)
		}

		if cfg.Interval <= 0 || i == cfg.Count-1 {
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(cfg.Interval):
		}
	}
	return nil
}
