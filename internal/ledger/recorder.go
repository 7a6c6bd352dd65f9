package ledger

import "time"

// Recorder is the operation set a transport needs from a ledger. It lets
// callers hold either a real Ledger or the no-op variant without branching
// on the platform.
type Recorder interface {
	Insert(seq, size uint32, ctx any) error
	MergeTimestamp(seq uint32, kind EventKind, at time.Time)
	DeleteEntry(seq uint32)
	Shutdown(remaining any, err error)
	Len() int
}

var (
	_ Recorder = (*Ledger)(nil)
	_ Recorder = nopRecorder{}
)

// NewRecorder returns a Ledger when the platform supports transmit
// timestamping and a Recorder that discards everything otherwise.
func NewRecorder(reg *Registry, opts ...Option) Recorder {
	if !Supported() {
		return nopRecorder{}
	}
	return New(reg, opts...)
}

type nopRecorder struct{}

func (nopRecorder) Insert(uint32, uint32, any) error            { return nil }
func (nopRecorder) MergeTimestamp(uint32, EventKind, time.Time) {}
func (nopRecorder) DeleteEntry(uint32)                          {}
func (nopRecorder) Shutdown(any, error)                         {}
func (nopRecorder) Len() int                                    { return 0 }
