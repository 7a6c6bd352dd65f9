package output

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"log"
	"sync"

	"github.com/mrzor/wirestamp/internal/attributes"
	"github.com/mrzor/wirestamp/internal/config"
	"github.com/mrzor/wirestamp/internal/correlation"
	"github.com/mrzor/wirestamp/internal/ledger"
	"github.com/mrzor/wirestamp/internal/metrics"
	"github.com/mrzor/wirestamp/internal/peername"
	"github.com/mrzor/wirestamp/internal/timesync"
	"github.com/mrzor/wirestamp/internal/transport"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// SpanName is the name of every range span.
const SpanName = "rpc.wire"

// Options configures a Reporter. Every field is optional.
type Options struct {
	// Tracer receives one span per range; nil disables spans
	Tracer trace.Tracer
	// Resolver names peers for the net.peer.name attribute
	Resolver *peername.Resolver
	// Metrics records outcomes and delays
	Metrics *metrics.Metrics
	// CustomAttributes are evaluated against each range's correlation key
	CustomAttributes []config.CustomAttribute
	// TraceIDExpression overrides the identity as trace ID source
	TraceIDExpression string
	// Writer receives one FormatLine line per range
	Writer io.Writer
	// Clock ends spans of ranges that were never acknowledged
	Clock timesync.Clock
}

// Reporter is a ledger callback that exports every reported range.
type Reporter struct {
	tracer    trace.Tracer
	resolver  *peername.Resolver
	metrics   *metrics.Metrics
	evaluator *attributes.Evaluator
	traceIDs  *attributes.TraceIDEvaluator
	clock     timesync.Clock

	mu     sync.Mutex
	writer io.Writer
}

// NewReporter creates a Reporter, compiling every expression up front.
func NewReporter(opts Options) (*Reporter, error) {
	evaluator, err := attributes.NewEvaluator(opts.CustomAttributes)
	if err != nil {
		return nil, err
	}
	traceIDs, err := attributes.NewTraceIDEvaluator(opts.TraceIDExpression)
	if err != nil {
		return nil, err
	}

	r := &Reporter{
		tracer:    opts.Tracer,
		resolver:  opts.Resolver,
		metrics:   opts.Metrics,
		evaluator: evaluator,
		traceIDs:  traceIDs,
		clock:     opts.Clock,
		writer:    opts.Writer,
	}
	if r.tracer == nil {
		r.tracer = noop.NewTracerProvider().Tracer("")
	}
	if r.clock == nil {
		r.clock = timesync.SystemClock{}
	}
	return r, nil
}

// Handle implements ledger.Callback.
func (r *Reporter) Handle(ctx any, ts *ledger.Timestamps, err error) {
	if ts == nil {
		r.handleShutdown(ctx, err)
		return
	}

	r.metrics.ObserveRange(ts, err)
	r.exportSpan(ctx, ts, err)

	if r.writer != nil {
		r.mu.Lock()
		_, _ = fmt.Fprintln(r.writer, FormatLine(ctx, ts, err)) //nolint:errcheck // Report output is best-effort
		r.mu.Unlock()
	}
}

func (r *Reporter) handleShutdown(ctx any, err error) {
	r.metrics.ObserveShutdown()
	if ctx != nil {
		log.Printf("ledger shut down (%s): %v", describe(ctx), err)
		return
	}
	log.Printf("ledger shut down: %v", err)
}

func (r *Reporter) exportSpan(ctx any, ts *ledger.Timestamps, err error) {
	key, _ := ctx.(*correlation.Key)

	parent := context.Background()
	traceID, warnings, traceErr := r.traceIDs.TraceID(key)
	if traceErr != nil {
		warnings = append(warnings, attribute.String("_tracing_error_0", traceErr.Error()))
	} else if traceID.IsValid() {
		parent = trace.ContextWithRemoteSpanContext(parent, rpcSpanContext(traceID, key.Identity))
	}

	start := ts.Enqueued
	if start.IsZero() {
		start = r.clock.Now()
	}
	end := ts.Acknowledged
	if end.IsZero() {
		end = r.clock.Now()
	}

	_, span := r.tracer.Start(parent, SpanName,
		trace.WithSpanKind(spanKind(key)),
		trace.WithTimestamp(start),
	)

	for _, kind := range []ledger.EventKind{ledger.Scheduled, ledger.Sent, ledger.Acknowledged} {
		if ts.Observed(kind) {
			span.AddEvent(kind.String(), trace.WithTimestamp(ts.At(kind)))
		}
	}

	span.SetAttributes(r.rangeAttributes(ctx, ts)...)
	if key != nil {
		span.SetAttributes(r.evaluator.Evaluate(key)...)
	}
	if len(warnings) > 0 {
		span.SetAttributes(warnings...)
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "Acknowledged")
	}

	span.End(trace.WithTimestamp(end))
}

// rangeAttributes returns the attributes common to every range span.
func (r *Reporter) rangeAttributes(ctx any, ts *ledger.Timestamps) []attribute.KeyValue {
	var (
		peer      string
		seq, size uint32
		attrs     []attribute.KeyValue
	)

	switch c := ctx.(type) {
	case *correlation.Key:
		peer, seq, size = c.Peer, c.Seq, c.Size
		attrs = append(attrs,
			attribute.String("rpc.uuid", c.Identity),
			attribute.String("rpc.type", c.Direction),
			attribute.String("rpc.method", c.Operation),
		)
	case *transport.BareRange:
		peer, seq, size = c.Peer, c.Seq, c.Size
	}

	attrs = append(attrs,
		attribute.String("net.transport", "tcp"),
		attribute.Int64("wire.seq", int64(seq)),
		attribute.Int64("wire.size", int64(size)),
		attribute.Int64("wire.delay.scheduled_ns", int64(timesync.Delay(ts.Enqueued, ts.Scheduled))),
		attribute.Int64("wire.delay.sent_ns", int64(timesync.Delay(ts.Enqueued, ts.Sent))),
		attribute.Int64("wire.delay.acknowledged_ns", int64(timesync.Delay(ts.Enqueued, ts.Acknowledged))),
	)
	if peer != "" {
		attrs = append(attrs, attribute.String("net.peer.address", peer))
		if r.resolver != nil {
			if name := r.resolver.LookupPeer(peer); name != "" {
				attrs = append(attrs, attribute.String("net.peer.name", name))
			}
		}
	}
	return attrs
}

func spanKind(key *correlation.Key) trace.SpanKind {
	if key == nil {
		return trace.SpanKindInternal
	}
	switch key.Direction {
	case correlation.DirectionRequest:
		return trace.SpanKindClient
	case correlation.DirectionResponse:
		return trace.SpanKindServer
	default:
		return trace.SpanKindInternal
	}
}

// rpcSpanContext is the synthetic parent shared by every range of one RPC.
// Its span ID is derived from the identity so request and response ranges
// hang off the same node.
func rpcSpanContext(traceID trace.TraceID, identity string) trace.SpanContext {
	hash := sha256.Sum256([]byte("span:" + identity))
	var spanID trace.SpanID
	copy(spanID[:], hash[:8])
	if !spanID.IsValid() {
		spanID[7] = 1
	}
	return trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
		Remote:     true,
	})
}
