// Package output turns ledger callback invocations into reports.
//
// Reporter is the consumer side of the ledger:
//   - Each completed or drained range becomes one OpenTelemetry span
//   - Transmit events become span events at their kernel timestamps
//   - Outcomes and delays are recorded as Prometheus metrics
//   - An optional writer receives one text line per range
//
// It does NOT:
//   - Read the socket error queue
//   - Decide when a range is complete
//
// Those belong to transport and ledger. The Reporter only sees what the
// ledger hands to its callback, and is safe to register on a Registry shared
// by several connections.
package output
