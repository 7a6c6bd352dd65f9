// Package transport wraps a TCP connection so that every write is tracked
// until the kernel reports its transmit timestamps.
//
// Conn is the single owner of its ledger: writes insert ranges, Poll merges
// error-queue notifications and Close drains what is left. All three take
// the same mutex, which is the serialization the ledger relies on.
package transport

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"sync"
	"syscall"
	"time"

	"github.com/mrzor/wirestamp/internal/correlation"
	"github.com/mrzor/wirestamp/internal/errqueue"
	"github.com/mrzor/wirestamp/internal/eventstream"
	"github.com/mrzor/wirestamp/internal/ledger"
)

// ErrConnClosed is the shutdown error used when Close is called without a
// reason, and the error returned by writes after Close.
var ErrConnClosed = errors.New("transport: connection closed")

// BareRange is the context tracked for writes that carry no identity tags.
type BareRange struct {
	Peer string
	Seq  uint32
	Size uint32
}

// Stamp records the range's final sequence number and size.
func (r *BareRange) Stamp(seq, size uint32) {
	r.Seq = seq
	r.Size = size
}

// Summary is the remaining context reported once a connection's ledger is
// shut down, after every pending range.
type Summary struct {
	Peer string
	// Sent is the tracked byte counter at close, modulo 2^32
	Sent uint32
	// Pending is the number of ranges drained unacknowledged
	Pending int
}

// Conn is a TCP connection with transmit timestamp tracking.
//
// Lock order: pollMu before mu.
type Conn struct {
	pollMu       sync.Mutex // serializes error-queue reads with their merge
	mu           sync.Mutex
	tcp          *net.TCPConn
	raw          syscall.RawConn
	rec          ledger.Recorder
	peer         string
	sent         uint32 // bytes written since timestamping was enabled
	timestamping bool
	closed       bool
}

// Dial connects to addr over TCP and enables timestamp tracking.
func Dial(ctx context.Context, addr string, reg *ledger.Registry, opts ...ledger.Option) (*Conn, error) {
	var d net.Dialer
	c, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", addr, err)
	}

	conn, err := Wrap(c.(*net.TCPConn), reg, opts...)
	if err != nil {
		_ = c.Close() //nolint:errcheck // Best-effort cleanup in error path
		return nil, err
	}
	return conn, nil
}

// Wrap enables timestamp tracking on an established connection. When the
// kernel refuses SO_TIMESTAMPING the connection still works; writes are
// simply not tracked.
func Wrap(tcp *net.TCPConn, reg *ledger.Registry, opts ...ledger.Option) (*Conn, error) {
	raw, err := tcp.SyscallConn()
	if err != nil {
		return nil, fmt.Errorf("getting raw connection: %w", err)
	}

	c := &Conn{
		tcp:  tcp,
		raw:  raw,
		rec:  ledger.NewRecorder(reg, opts...),
		peer: tcp.RemoteAddr().String(),
	}

	if !ledger.Supported() {
		return c, nil
	}

	var enableErr error
	if err := raw.Control(func(fd uintptr) {
		enableErr = errqueue.Enable(int(fd))
	}); err != nil {
		return nil, fmt.Errorf("accessing socket: %w", err)
	}
	if enableErr != nil {
		log.Printf("transmit timestamps disabled for %s: %v", c.peer, enableErr)
		return c, nil
	}

	c.timestamping = true
	return c, nil
}

// Peer returns the remote address.
func (c *Conn) Peer() string {
	return c.peer
}

// Timestamping reports whether writes are being tracked.
func (c *Conn) Timestamping() bool {
	return c.timestamping
}

// Write sends p and tracks it as one range. If p carries identity tags the
// range context is a *correlation.Key, otherwise a *BareRange.
func (c *Conn) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return 0, ErrConnClosed
	}

	var ctx any = &BareRange{Peer: c.peer}
	if key, ok := correlation.Extract(p); ok {
		key.Peer = c.peer
		ctx = key
	}

	n, err := c.tcp.Write(p)
	if n > 0 && c.timestamping {
		//nolint:gosec // Byte counter wraps like the kernel's OPT_ID counter
		c.sent += uint32(n)
		//nolint:gosec // n is bounded by len(p)
		if insertErr := c.rec.Insert(c.sent-1, uint32(n), ctx); insertErr != nil && err == nil {
			err = insertErr
		}
	}
	return n, err
}

// Read reads from the underlying connection.
func (c *Conn) Read(p []byte) (int, error) {
	return c.tcp.Read(p)
}

// Poll drains the socket error queue and merges every notification into
// the ledger. It returns eventstream.ErrStop once the connection is closed.
//
// Concurrent calls are serialized from read to merge, so the events of one
// range are always merged in the order the kernel queued them.
func (c *Conn) Poll() (int, error) {
	if !c.timestamping {
		return 0, nil
	}

	c.pollMu.Lock()
	defer c.pollMu.Unlock()

	var (
		notes    []errqueue.Notification
		drainErr error
	)
	if err := c.raw.Control(func(fd uintptr) {
		notes, drainErr = errqueue.Drain(int(fd))
	}); err != nil {
		return 0, eventstream.ErrStop
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, eventstream.ErrStop
	}
	for _, n := range notes {
		c.rec.MergeTimestamp(n.Seq, n.Kind, n.At)
	}
	return len(notes), drainErr
}

// Forget stops tracking the range ending at seq without reporting it.
func (c *Conn) Forget(seq uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rec.DeleteEntry(seq)
}

// Pending returns the number of ranges still awaiting acknowledgement.
func (c *Conn) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rec.Len()
}

// AwaitDrain polls until every range is acknowledged or ctx is done.
func (c *Conn) AwaitDrain(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = eventstream.DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := c.Poll(); err != nil {
			if errors.Is(err, eventstream.ErrStop) {
				return ErrConnClosed
			}
			return err
		}
		if c.Pending() == 0 {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Close shuts the ledger down with reason, reporting every unacknowledged
// range to the callback followed by a *Summary of the connection, then
// closes the socket. A nil reason is replaced by ErrConnClosed. Only the
// first call has any effect.
func (c *Conn) Close(reason error) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	if reason == nil {
		reason = ErrConnClosed
	}
	c.rec.Shutdown(&Summary{Peer: c.peer, Sent: c.sent, Pending: c.rec.Len()}, reason)
	c.mu.Unlock()

	if err := c.tcp.Close(); err != nil {
		return fmt.Errorf("closing connection: %w", err)
	}
	return nil
}
