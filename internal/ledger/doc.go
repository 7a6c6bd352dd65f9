// Package ledger correlates asynchronous kernel transmit timestamps with the
// byte ranges a transport handed to a socket.
//
// Every range written to a timestamped socket is recorded as a TrackedRange
// keyed by the sequence number of its last byte. The kernel later reports up
// to three events per range, out of order and at different times:
//
//	Scheduled     the kernel queued the send
//	Sent          the bytes left the host stack
//	Acknowledged  the peer acknowledged the bytes (terminal)
//
// MergeTimestamp folds each event into the matching range. When the
// Acknowledged event arrives the registered Callback fires once with the full
// Timestamps and the range is dropped. Shutdown drains whatever is still
// pending, handing the partial Timestamps to the callback together with the
// shutdown error.
//
// A Ledger does no locking. All calls for one ledger must be serialized by
// the owner, typically the connection that owns the socket's write path and
// its error-queue reader. The callback runs inline on the calling goroutine
// and must not call back into the same ledger.
//
// On platforms without kernel transmit timestamping, NewRecorder returns a
// no-op Recorder and Registry.Register only logs that the feature is off.
package ledger
