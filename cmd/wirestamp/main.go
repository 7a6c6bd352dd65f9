// wirestamp sends metadata-tagged frames over TCP and reports when the
// kernel scheduled, sent, and saw each one acknowledged.
package main

import (
	"log"
	"os"

	"github.com/spf13/cobra"
)

// Version information injected by GoReleaser at build time.
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Printf("Error: %v", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "wirestamp",
		Short: "Measure per-write TCP transmit timing with kernel timestamps",
		Long: `wirestamp tags outgoing frames with an RPC identity, tracks every write
until the kernel reports it scheduled, sent, and acknowledged, and exports
one span per write.`,
		Version:       version + " (" + commit + ", " + date + ")",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newSendCmd(), newExtractCmd(), newSinkCmd())
	return root
}
