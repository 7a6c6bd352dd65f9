package attributes

import (
	"crypto/sha256"
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/mrzor/wirestamp/internal/correlation"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// TraceIDEvaluator derives trace IDs from correlation keys.
type TraceIDEvaluator struct {
	program *vm.Program
}

// NewTraceIDEvaluator creates a new trace ID evaluator.
// If exprStr is empty, the key's identity is used.
func NewTraceIDEvaluator(exprStr string) (*TraceIDEvaluator, error) {
	if exprStr == "" {
		return &TraceIDEvaluator{}, nil
	}

	program, err := expr.Compile(exprStr, expr.Env(typeEnv()))
	if err != nil {
		return nil, fmt.Errorf("failed to compile trace-id expression: %w", err)
	}

	return &TraceIDEvaluator{program: program}, nil
}

// TraceID returns the trace ID for key and any warnings to attach to the
// span. A nil key yields the zero trace ID, leaving the choice to the SDK.
func (e *TraceIDEvaluator) TraceID(key *correlation.Key) (trace.TraceID, []attribute.KeyValue, error) {
	if key == nil {
		return trace.TraceID{}, nil, nil
	}

	source := key.Identity
	if e.program != nil {
		output, err := expr.Run(e.program, keyEnv(key))
		if err != nil {
			return trace.TraceID{}, nil, fmt.Errorf("failed to evaluate trace-id expression: %w", err)
		}
		source = fmt.Sprint(output)
	}

	if source == "" {
		return trace.TraceID{}, nil, nil
	}

	// UUIDs are 32 hex characters once the dashes are gone
	if hexStr := strings.ReplaceAll(source, "-", ""); len(hexStr) == 32 {
		if traceID, err := trace.TraceIDFromHex(strings.ToLower(hexStr)); err == nil {
			return traceID, nil, nil
		}
	}

	hash := sha256.Sum256([]byte(source))
	var traceID trace.TraceID
	copy(traceID[:], hash[:16])

	warnings := []attribute.KeyValue{
		attribute.String("_trace_id_source", source),
	}
	return traceID, warnings, nil
}
