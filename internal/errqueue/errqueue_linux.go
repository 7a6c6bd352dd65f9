//go:build linux

package errqueue

import (
	"encoding/binary"
	"errors"
	"fmt"
	"unsafe"

	"github.com/mrzor/wirestamp/internal/ledger"
	"github.com/mrzor/wirestamp/internal/timesync"

	"golang.org/x/sys/unix"
)

// Kernel ABI values from linux/errqueue.h.
//
//nolint:revive,staticcheck // ALL_CAPS naming matches C/kernel conventions
const (
	SO_EE_ORIGIN_TIMESTAMPING = 4

	SCM_TSTAMP_SND   = 0
	SCM_TSTAMP_SCHED = 1
	SCM_TSTAMP_ACK   = 2
)

// Flags enables software scheduled/sent/acked timestamps, numbered by byte
// offset (OPT_ID) and delivered without a copy of the payload (OPT_TSONLY).
const Flags = unix.SOF_TIMESTAMPING_SOFTWARE |
	unix.SOF_TIMESTAMPING_TX_SCHED |
	unix.SOF_TIMESTAMPING_TX_SOFTWARE |
	unix.SOF_TIMESTAMPING_TX_ACK |
	unix.SOF_TIMESTAMPING_OPT_ID |
	unix.SOF_TIMESTAMPING_OPT_TSONLY

// sockExtendedErrSize is sizeof(struct sock_extended_err).
const sockExtendedErrSize = 16

// oobSize fits one SCM_TIMESTAMPING and one RECVERR message with its
// offender address.
const oobSize = 512

// scmTimestamping matches struct scm_timestamping.
type scmTimestamping struct {
	Ts [3]unix.Timespec
}

// Enable turns on transmit timestamping for fd. Byte counting for OPT_ID
// starts at the moment of this call.
func Enable(fd int) error {
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_TIMESTAMPING, Flags); err != nil {
		return fmt.Errorf("setting SO_TIMESTAMPING: %w", err)
	}
	return nil
}

// Drain reads every message currently queued on fd's error queue without
// blocking and returns the decoded notifications in arrival order.
func Drain(fd int) ([]Notification, error) {
	var out []Notification
	p := make([]byte, 64)
	oob := make([]byte, oobSize)

	for {
		_, oobn, _, _, err := unix.Recvmsg(fd, p, oob, unix.MSG_ERRQUEUE|unix.MSG_DONTWAIT)
		if err != nil {
			if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) {
				return out, nil
			}
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return out, fmt.Errorf("reading error queue: %w", err)
		}

		notes, err := Decode(oob[:oobn])
		if err != nil {
			return out, err
		}
		out = append(out, notes...)
	}
}

// Decode extracts timestamp notifications from the control messages of one
// or more error-queue reads. An SCM_TIMESTAMPING message is paired with the
// timestamping RECVERR message that follows or precedes it; RECVERR
// messages of other origins (ICMP, local errors) are skipped.
func Decode(oob []byte) ([]Notification, error) {
	msgs, err := unix.ParseSocketControlMessage(oob)
	if err != nil {
		return nil, fmt.Errorf("parsing control messages: %w", err)
	}

	var (
		out      []Notification
		ts       scmTimestamping
		serr     *sockExtendedErr
		haveTs   bool
		haveSerr bool
	)

	for _, m := range msgs {
		switch {
		case m.Header.Level == unix.SOL_SOCKET && m.Header.Type == unix.SCM_TIMESTAMPING:
			if len(m.Data) < int(unsafe.Sizeof(ts)) {
				return nil, fmt.Errorf("short SCM_TIMESTAMPING payload: %d bytes", len(m.Data))
			}
			//nolint:gosec // Unsafe required to read the kernel struct layout
			ts = *(*scmTimestamping)(unsafe.Pointer(&m.Data[0]))
			haveTs = true

		case (m.Header.Level == unix.SOL_IP && m.Header.Type == unix.IP_RECVERR) ||
			(m.Header.Level == unix.SOL_IPV6 && m.Header.Type == unix.IPV6_RECVERR):
			e, err := parseSockExtendedErr(m.Data)
			if err != nil {
				return nil, err
			}
			if e.Origin != SO_EE_ORIGIN_TIMESTAMPING {
				continue
			}
			serr = e
			haveSerr = true
		}

		if haveTs && haveSerr {
			// Software timestamps are reported in ts[0].
			sec, nsec := ts.Ts[0].Unix()
			out = append(out, Notification{
				Seq:  serr.Data,
				Kind: kindOf(serr.Info),
				Info: serr.Info,
				At:   timesync.FromTimespec(sec, nsec),
			})
			haveTs, haveSerr = false, false
		}
	}

	return out, nil
}

// sockExtendedErr holds the fields of struct sock_extended_err we use.
type sockExtendedErr struct {
	Errno  uint32
	Origin uint8
	Info   uint32
	Data   uint32
}

func parseSockExtendedErr(b []byte) (*sockExtendedErr, error) {
	if len(b) < sockExtendedErrSize {
		return nil, fmt.Errorf("short sock_extended_err payload: %d bytes", len(b))
	}
	return &sockExtendedErr{
		Errno:  binary.NativeEndian.Uint32(b[0:4]),
		Origin: b[4],
		Info:   binary.NativeEndian.Uint32(b[8:12]),
		Data:   binary.NativeEndian.Uint32(b[12:16]),
	}, nil
}

// kindOf maps ee_info to an event kind. Unknown values map to the zero
// kind, which the ledger rejects.
func kindOf(info uint32) ledger.EventKind {
	switch info {
	case SCM_TSTAMP_SCHED:
		return ledger.Scheduled
	case SCM_TSTAMP_SND:
		return ledger.Sent
	case SCM_TSTAMP_ACK:
		return ledger.Acknowledged
	default:
		return 0
	}
}
