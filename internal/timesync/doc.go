// Package timesync provides the clock used to stamp enqueue times and the
// conversion from kernel timespec values to wall-clock time.
//
// Transmit timestamps reported through the socket error queue are
// CLOCK_REALTIME values, so the conversion is a direct seconds/nanoseconds
// mapping. The Clock interface exists so tests can pin "now".
package timesync
