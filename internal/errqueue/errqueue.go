// Package errqueue reads transmit timestamps from a socket's error queue.
//
// With SO_TIMESTAMPING enabled, the kernel queues one message per
// timestamp event on the socket error queue. Each message carries an
// SCM_TIMESTAMPING control message with the instant and an IP_RECVERR (or
// IPV6_RECVERR) sock_extended_err naming the event kind in ee_info and the
// byte counter of the last byte of the range in ee_data.
package errqueue

import (
	"errors"
	"fmt"
	"time"

	"github.com/mrzor/wirestamp/internal/ledger"
)

// ErrUnsupported is returned on platforms without SO_TIMESTAMPING.
var ErrUnsupported = errors.New("errqueue: transmit timestamping not supported on this platform")

// Notification is one decoded timestamp event.
type Notification struct {
	Seq  uint32
	Kind ledger.EventKind
	// Info is the raw ee_info value; it matters when Kind is not valid.
	Info uint32
	At   time.Time
}

func (n Notification) String() string {
	return fmt.Sprintf("seq=%d kind=%s at=%s", n.Seq, n.Kind, n.At.Format(time.RFC3339Nano))
}
