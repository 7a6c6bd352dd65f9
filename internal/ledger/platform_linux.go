//go:build linux

package ledger

// Supported reports whether the kernel can report transmit timestamps
// through the socket error queue.
func Supported() bool {
	return true
}
