package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
)

func newSinkCmd() *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "sink",
		Short: "Accept connections and discard everything received",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			ln, err := net.Listen("tcp", listen)
			if err != nil {
				return fmt.Errorf("listening on %s: %w", listen, err)
			}
			log.Printf("Discarding connections on %s", ln.Addr())
			return serveSink(ctx, ln)
		},
	}
	cmd.Flags().StringVarP(&listen, "listen", "l", "127.0.0.1:9000", "address to listen on")
	return cmd
}

// serveSink accepts on ln until ctx is done and reads every connection to
// EOF. It closes ln and waits for open connections before returning.
func serveSink(ctx context.Context, ln net.Listener) error {
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		conns = make(map[net.Conn]struct{})
	)

	go func() {
		<-ctx.Done()
		_ = ln.Close() //nolint:errcheck // Unblocks Accept
		mu.Lock()
		for c := range conns {
			_ = c.Close() //nolint:errcheck // Best-effort shutdown
		}
		mu.Unlock()
	}()

	for {
		c, err := ln.Accept()
		if err != nil {
			wg.Wait()
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("accepting: %w", err)
		}

		mu.Lock()
		conns[c] = struct{}{}
		if ctx.Err() != nil {
			_ = c.Close() //nolint:errcheck // Accepted while shutting down
		}
		mu.Unlock()

		wg.Add(1)
		go func() {
			defer wg.Done()
			n, _ := io.Copy(io.Discard, c) //nolint:errcheck // Peer resets are expected
			_ = c.Close()                  //nolint:errcheck // Already drained
			mu.Lock()
			delete(conns, c)
			mu.Unlock()
			log.Printf("Connection from %s closed after %d bytes", c.RemoteAddr(), n)
		}()
	}
}
