//go:build !linux

package errqueue

// Enable always fails on this platform.
func Enable(int) error {
	return ErrUnsupported
}

// Drain always fails on this platform.
func Drain(int) ([]Notification, error) {
	return nil, ErrUnsupported
}

// Decode always fails on this platform.
func Decode([]byte) ([]Notification, error) {
	return nil, ErrUnsupported
}
