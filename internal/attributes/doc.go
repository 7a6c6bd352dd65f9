// Package attributes evaluates expressions over the correlation key of a
// completed range.
//
// Expressions use the expr language and see the key's fields as
// identity, direction, operation, peer, seq and size.
//
// Two evaluators:
//   - Evaluator: Evaluates custom span attribute expressions
//   - TraceIDEvaluator: Derives the trace ID a range's span is filed under
//
// By default the trace ID comes from the identity, so the request and the
// response of one RPC land in the same trace. Results that are not 32 hex
// characters (after removing UUID dashes) are hashed with SHA-256.
package attributes
