package ledger

import (
	"log"
	"sync"
)

// Callback receives the outcome of one tracked range.
//
// ctx is the opaque context supplied at Insert (or the remaining context
// given to Shutdown). ts is nil only for that remaining-context
// notification. err is nil on normal completion and non-nil when the range
// was forced out by Shutdown. The callback owns ctx from here on.
type Callback func(ctx any, ts *Timestamps, err error)

// Registry holds the completion callback shared by a group of ledgers.
// Register is expected once at startup, before any socket traffic.
type Registry struct {
	mu sync.RWMutex
	fn Callback
}

// DefaultRegistry is the process-wide registry for callers that need only one.
var DefaultRegistry = NewRegistry()

// NewRegistry creates an empty registry. Ledgers built on an empty registry
// still track and remove ranges; they just notify nobody.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register sets the completion callback. The last call wins.
// On platforms without transmit timestamping the call is accepted and only
// logged, since no timestamps will ever be produced.
func (r *Registry) Register(fn Callback) {
	if !Supported() {
		log.Printf("ledger: timestamps callback is not enabled for this platform")
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.fn = fn
}

// Callback returns the registered callback, or nil.
func (r *Registry) Callback() Callback {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.fn
}
