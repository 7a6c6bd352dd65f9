package output

import (
	"fmt"
	"strings"
	"time"

	"github.com/mrzor/wirestamp/internal/correlation"
	"github.com/mrzor/wirestamp/internal/ledger"
	"github.com/mrzor/wirestamp/internal/timesync"
	"github.com/mrzor/wirestamp/internal/transport"
)

// describe renders a range context for logs and text reports.
func describe(ctx any) string {
	switch c := ctx.(type) {
	case *correlation.Key:
		return c.String()
	case *transport.BareRange:
		return fmt.Sprintf("untagged peer=%q seq=%d size=%d", c.Peer, c.Seq, c.Size)
	case *transport.Summary:
		return fmt.Sprintf("connection peer=%q sent=%d pending=%d", c.Peer, c.Sent, c.Pending)
	case nil:
		return "<nil>"
	default:
		return fmt.Sprintf("%v", c)
	}
}

// formatDelay prints d, or "-" when the event was not observed.
func formatDelay(from, to time.Time) string {
	if to.IsZero() {
		return "-"
	}
	return timesync.Delay(from, to).String()
}

// FormatLine renders one reported range as a single line:
//
//	6f1c2b3a-... request SayHello peer="10.0.0.5:50051" seq=511 size=512 sched=12µs sent=30µs ack=210µs
//
// Drained ranges end with err="...".
func FormatLine(ctx any, ts *ledger.Timestamps, err error) string {
	var b strings.Builder
	b.WriteString(describe(ctx))

	if ts != nil {
		fmt.Fprintf(&b, " sched=%s sent=%s ack=%s",
			formatDelay(ts.Enqueued, ts.Scheduled),
			formatDelay(ts.Enqueued, ts.Sent),
			formatDelay(ts.Enqueued, ts.Acknowledged),
		)
	}
	if err != nil {
		fmt.Fprintf(&b, " err=%q", err.Error())
	}
	return b.String()
}
