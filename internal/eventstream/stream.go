// Package eventstream runs the background loop that pulls timestamp
// notifications off a socket and hands them to the ledger.
package eventstream

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"
)

// DefaultInterval is how often the error queue is drained when no
// interval is configured.
const DefaultInterval = 10 * time.Millisecond

// Poller drains pending notifications and applies them. It returns how many
// notifications were applied.
type Poller interface {
	Poll() (int, error)
}

// Stream polls a Poller on a fixed interval.
type Stream struct {
	poller   Poller
	interval time.Duration
	stopCh   chan struct{}
	done     chan struct{}

	mu      sync.Mutex
	started bool
	stopped bool
}

// New creates a new Stream for poller. A non-positive interval selects
// DefaultInterval.
func New(poller Poller, interval time.Duration) *Stream {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Stream{
		poller:   poller,
		interval: interval,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start begins polling in a goroutine.
// It returns immediately and keeps polling until the context is cancelled,
// Stop is called, or the poller reports ErrStop. Starting a running stream
// is a no-op; starting a stopped one returns ErrStopped.
func (s *Stream) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return ErrStopped
	}
	if s.started {
		return nil
	}
	s.started = true
	go s.processEvents(ctx)
	return nil
}

// Stop signals the polling goroutine to stop and waits for it to exit.
// It may be called more than once, and before Start.
func (s *Stream) Stop() error {
	s.mu.Lock()
	if !s.stopped {
		s.stopped = true
		close(s.stopCh)
		if !s.started {
			close(s.done)
		}
	}
	s.mu.Unlock()

	<-s.done
	return nil
}

// Done is closed once the polling goroutine has exited.
func (s *Stream) Done() <-chan struct{} {
	return s.done
}

// ErrStop can be returned by a Poller to end the stream quietly, for
// example once its socket is closed.
var ErrStop = errors.New("eventstream: stop")

// ErrStopped is returned by Start once Stop has been called.
var ErrStopped = errors.New("eventstream: stream stopped")

// processEvents is the main loop that drains and applies notifications.
func (s *Stream) processEvents(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			if _, err := s.poller.Poll(); err != nil {
				if errors.Is(err, ErrStop) {
					return
				}
				log.Printf("polling timestamps: %v", err)
			}
		}
	}
}
