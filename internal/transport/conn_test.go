package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/mrzor/wirestamp/internal/correlation"
	"github.com/mrzor/wirestamp/internal/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errPeerGone = errors.New("peer gone")

type outcome struct {
	ctx any
	ts  *ledger.Timestamps
	err error
}

func startSink(t *testing.T) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				_, _ = io.Copy(io.Discard, c)
				_ = c.Close()
			}()
		}
	}()

	return ln.Addr().String()
}

func dialTracked(t *testing.T) (*Conn, *[]outcome) {
	t.Helper()
	if !ledger.Supported() {
		t.Skip("transmit timestamping not available on this platform")
	}

	var got []outcome
	reg := ledger.NewRegistry()
	reg.Register(func(ctx any, ts *ledger.Timestamps, err error) {
		got = append(got, outcome{ctx: ctx, ts: ts, err: err})
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	conn, err := Dial(ctx, startSink(t), reg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close(nil) })

	return conn, &got
}

func taggedFrame(id string) []byte {
	frame := correlation.AppendMetadata(nil, &correlation.Key{
		Identity:  id,
		Direction: correlation.DirectionRequest,
		Operation: "SayHello",
	})
	return append(frame, "payload"...)
}

func TestConn_CloseDrainsPending(t *testing.T) {
	conn, got := dialTracked(t)
	conn.timestamping = true

	tagged := taggedFrame("abc")
	bare := []byte("no metadata here")

	_, err := conn.Write(tagged)
	require.NoError(t, err)
	_, err = conn.Write(bare)
	require.NoError(t, err)

	require.NoError(t, conn.Close(errPeerGone))

	require.Len(t, *got, 3)

	first := (*got)[0]
	assert.ErrorIs(t, first.err, errPeerGone)
	require.NotNil(t, first.ts)
	key, ok := first.ctx.(*correlation.Key)
	require.True(t, ok, "ctx = %T, want *correlation.Key", first.ctx)
	assert.Equal(t, "abc", key.Identity)
	assert.Equal(t, conn.Peer(), key.Peer)
	assert.Equal(t, uint32(len(tagged)-1), key.Seq)
	assert.Equal(t, uint32(len(tagged)), key.Size)

	second := (*got)[1]
	br, ok := second.ctx.(*BareRange)
	require.True(t, ok, "ctx = %T, want *BareRange", second.ctx)
	assert.Equal(t, uint32(len(tagged)+len(bare)-1), br.Seq)
	assert.Equal(t, uint32(len(bare)), br.Size)
	assert.Equal(t, conn.Peer(), br.Peer)

	last := (*got)[2]
	assert.Nil(t, last.ts)
	assert.ErrorIs(t, last.err, errPeerGone)
	summary, ok := last.ctx.(*Summary)
	require.True(t, ok, "ctx = %T, want *Summary", last.ctx)
	assert.Equal(t, conn.Peer(), summary.Peer)
	assert.Equal(t, uint32(len(tagged)+len(bare)), summary.Sent)
	assert.Equal(t, 2, summary.Pending)
}

func TestConn_CloseDefaultReason(t *testing.T) {
	conn, got := dialTracked(t)
	conn.timestamping = true

	_, err := conn.Write([]byte("x"))
	require.NoError(t, err)
	require.NoError(t, conn.Close(nil))

	require.Len(t, *got, 2)
	assert.ErrorIs(t, (*got)[0].err, ErrConnClosed)
	assert.ErrorIs(t, (*got)[1].err, ErrConnClosed)

	require.NoError(t, conn.Close(errPeerGone), "second Close is a no-op")
	assert.Len(t, *got, 2)
}

func TestConn_CloseReportsOneSummary(t *testing.T) {
	conn, got := dialTracked(t)

	require.NoError(t, conn.Close(nil))
	require.NoError(t, conn.Close(nil))
	require.NoError(t, conn.Close(errPeerGone))

	var summaries int
	for _, o := range *got {
		if o.ts == nil {
			summaries++
			assert.IsType(t, &Summary{}, o.ctx)
			assert.ErrorIs(t, o.err, ErrConnClosed)
		}
	}
	assert.Equal(t, 1, summaries)
}

func TestConn_WriteAfterClose(t *testing.T) {
	conn, _ := dialTracked(t)
	require.NoError(t, conn.Close(nil))

	_, err := conn.Write([]byte("late"))
	assert.ErrorIs(t, err, ErrConnClosed)
}

func TestConn_Forget(t *testing.T) {
	conn, got := dialTracked(t)
	conn.timestamping = true

	payload := []byte("forget me")
	_, err := conn.Write(payload)
	require.NoError(t, err)
	require.Equal(t, 1, conn.Pending())

	conn.Forget(uint32(len(payload) - 1))
	assert.Equal(t, 0, conn.Pending())

	require.NoError(t, conn.Close(errPeerGone))
	require.Len(t, *got, 1, "only the connection summary is reported")
	assert.Nil(t, (*got)[0].ts)
}

func TestConn_AckRoundTrip(t *testing.T) {
	conn, got := dialTracked(t)
	if !conn.Timestamping() {
		t.Skip("kernel refused SO_TIMESTAMPING")
	}

	_, err := conn.Write(taggedFrame("round-trip"))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := conn.AwaitDrain(ctx, 5*time.Millisecond); err != nil {
		t.Skipf("no acknowledgement timestamps delivered: %v", err)
	}

	require.Len(t, *got, 1)
	o := (*got)[0]
	assert.NoError(t, o.err)
	require.NotNil(t, o.ts)
	assert.True(t, o.ts.Observed(ledger.Acknowledged))
	assert.False(t, o.ts.Acknowledged.Before(o.ts.Enqueued.Add(-time.Second)))

	key, ok := o.ctx.(*correlation.Key)
	require.True(t, ok)
	assert.Equal(t, "round-trip", key.Identity)
}

func TestConn_PollWhenNotTimestamping(t *testing.T) {
	conn, _ := dialTracked(t)
	conn.timestamping = false

	n, err := conn.Poll()
	assert.NoError(t, err)
	assert.Zero(t, n)
}

func TestBareRange_Stamp(t *testing.T) {
	r := &BareRange{Peer: "127.0.0.1:1"}
	r.Stamp(10, 11)
	assert.Equal(t, uint32(10), r.Seq)
	assert.Equal(t, uint32(11), r.Size)
}

func TestConn_ConcurrentPollersKeepEventOrder(t *testing.T) {
	conn, got := dialTracked(t)
	if !conn.Timestamping() {
		t.Skip("kernel refused SO_TIMESTAMPING")
	}

	stop := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				_, _ = conn.Poll()
			}
		}()
	}

	frame := taggedFrame("concurrent")
	for i := 0; i < 5000; i++ {
		_, err := conn.Write(frame)
		require.NoError(t, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = conn.AwaitDrain(ctx, time.Millisecond)

	close(stop)
	wg.Wait()

	var acked, ackedWithoutSent int
	for _, o := range *got {
		if o.ts == nil || o.err != nil {
			continue
		}
		acked++
		if !o.ts.Observed(ledger.Sent) {
			ackedWithoutSent++
		}
	}
	if acked == 0 {
		t.Skip("no acknowledgement timestamps delivered")
	}
	assert.Zero(t, ackedWithoutSent, "%d of %d acknowledged ranges lost their sent timestamp", ackedWithoutSent, acked)
}
