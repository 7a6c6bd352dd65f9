package ledger

import (
	"fmt"
	"time"
)

// EventKind identifies which transmit timestamp the kernel reported.
type EventKind uint8

// Event kinds in the order the kernel normally produces them.
const (
	Scheduled EventKind = iota + 1
	Sent
	Acknowledged
)

// String returns the lower-case event name.
func (k EventKind) String() string {
	switch k {
	case Scheduled:
		return "scheduled"
	case Sent:
		return "sent"
	case Acknowledged:
		return "acknowledged"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

// Valid reports whether k is one of the three known kinds.
func (k EventKind) Valid() bool {
	return k >= Scheduled && k <= Acknowledged
}

// Timestamps is the set of instants collected for one tracked range.
//
// Fields that were never reported hold the zero time.Time. The zero value
// sorts before every real instant but callers must not use it to decide
// completeness: a non-nil error passed alongside the set is what marks it
// as partial.
type Timestamps struct {
	Enqueued     time.Time
	Scheduled    time.Time
	Sent         time.Time
	Acknowledged time.Time
}

// At returns the timestamp recorded for kind, or the zero time.
func (ts *Timestamps) At(kind EventKind) time.Time {
	switch kind {
	case Scheduled:
		return ts.Scheduled
	case Sent:
		return ts.Sent
	case Acknowledged:
		return ts.Acknowledged
	default:
		return time.Time{}
	}
}

// Observed reports whether the timestamp for kind was recorded.
func (ts *Timestamps) Observed(kind EventKind) bool {
	return !ts.At(kind).IsZero()
}

// ContractViolation is the panic value raised when an event of unknown kind
// is merged.
type ContractViolation struct {
	Seq  uint32
	Kind EventKind
}

func (e *ContractViolation) Error() string {
	return fmt.Sprintf("ledger: unknown timestamp event kind %d for seq %d", uint8(e.Kind), e.Seq)
}
