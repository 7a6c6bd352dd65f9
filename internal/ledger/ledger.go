package ledger

import (
	"errors"
	"time"

	"github.com/mrzor/wirestamp/internal/timesync"
)

// ErrShutdown is returned by Insert once the ledger has been drained.
var ErrShutdown = errors.New("ledger: shut down")

// Stamper is implemented by contexts that want the real sequence number and
// size written into them at insertion time.
type Stamper interface {
	Stamp(seq, size uint32)
}

// TrackedRange is one byte range awaiting its transmit timestamps.
type TrackedRange struct {
	Seq        uint32
	Timestamps Timestamps
	Context    any
}

// Ledger is the ordered set of ranges pending on one socket.
// The zero value is not usable; build one with New.
type Ledger struct {
	registry *Registry
	clock    timesync.Clock
	ranges   []*TrackedRange
	closed   bool
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock overrides the clock used to stamp enqueue times.
func WithClock(c timesync.Clock) Option {
	return func(l *Ledger) {
		l.clock = c
	}
}

// New creates an empty ledger that reports completions through reg.
// A nil registry behaves like one with no callback registered.
func New(reg *Registry, opts ...Option) *Ledger {
	l := &Ledger{
		registry: reg,
		clock:    timesync.SystemClock{},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Insert starts tracking the range whose last byte has sequence number seq.
//
// The enqueue time is taken from the ledger's clock; the other timestamps
// start unobserved. If ctx implements Stamper it receives seq and size
// before being stored. Inserting a sequence number that is already tracked
// is tolerated: both entries are then updated together by MergeTimestamp.
func (l *Ledger) Insert(seq, size uint32, ctx any) error {
	if l.closed {
		return ErrShutdown
	}

	if s, ok := ctx.(Stamper); ok {
		s.Stamp(seq, size)
	}

	l.ranges = append(l.ranges, &TrackedRange{
		Seq:        seq,
		Timestamps: Timestamps{Enqueued: l.clock.Now()},
		Context:    ctx,
	})
	return nil
}

// MergeTimestamp records an event reported by the kernel for seq.
//
// Every tracked range with that sequence number is updated, not only the
// first. Scheduled and Sent just fill their field. Acknowledged fills its
// field, fires the callback with a nil error and drops the range. Events for
// sequence numbers that are not tracked are ignored.
//
// An unknown kind panics with *ContractViolation.
func (l *Ledger) MergeTimestamp(seq uint32, kind EventKind, at time.Time) {
	if !kind.Valid() {
		panic(&ContractViolation{Seq: seq, Kind: kind})
	}

	var completed []*TrackedRange
	kept := l.ranges[:0]
	for _, r := range l.ranges {
		if r.Seq != seq {
			kept = append(kept, r)
			continue
		}

		switch kind {
		case Scheduled:
			r.Timestamps.Scheduled = at
			kept = append(kept, r)
		case Sent:
			r.Timestamps.Sent = at
			kept = append(kept, r)
		case Acknowledged:
			r.Timestamps.Acknowledged = at
			completed = append(completed, r)
		}
	}
	l.truncate(len(kept))

	// Callbacks run only once the ledger is consistent again.
	cb := l.registry.Callback()
	if cb == nil {
		return
	}
	for _, r := range completed {
		ts := r.Timestamps
		cb(r.Context, &ts, nil)
	}
}

// DeleteEntry stops tracking every range with sequence number seq without
// notifying the callback. Unknown sequence numbers are ignored.
func (l *Ledger) DeleteEntry(seq uint32) {
	kept := l.ranges[:0]
	for _, r := range l.ranges {
		if r.Seq != seq {
			kept = append(kept, r)
		}
	}
	l.truncate(len(kept))
}

// Shutdown force-completes every pending range, in insertion order, by
// passing its partial timestamps and err to the callback. If remaining is
// non-nil the callback is then invoked once more with remaining, nil
// timestamps and err. Afterwards the ledger is empty and Insert fails with
// ErrShutdown.
func (l *Ledger) Shutdown(remaining any, err error) {
	cb := l.registry.Callback()
	pending := l.ranges
	l.ranges = nil
	l.closed = true

	for _, r := range pending {
		if cb != nil {
			ts := r.Timestamps
			cb(r.Context, &ts, err)
		}
	}
	if remaining != nil && cb != nil {
		cb(remaining, nil, err)
	}
}

// Len returns the number of pending ranges.
func (l *Ledger) Len() int {
	return len(l.ranges)
}

// Pending returns the sequence numbers of pending ranges in insertion order.
func (l *Ledger) Pending() []uint32 {
	seqs := make([]uint32, len(l.ranges))
	for i, r := range l.ranges {
		seqs[i] = r.Seq
	}
	return seqs
}

// truncate shortens the backing slice to n and clears the dropped tail so
// removed ranges can be collected.
func (l *Ledger) truncate(n int) {
	clear(l.ranges[n:])
	l.ranges = l.ranges[:n]
}
