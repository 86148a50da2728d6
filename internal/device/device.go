// Package device defines a unified interface for the serial port carrying
// motor frames and sensor lines, and its go.bug.st/serial implementation.
package device

import "time"

// Device is the abstract serial endpoint the transport talks to. Outbound
// traffic is binary frames; inbound traffic is newline-terminated sensor
// lines emitted by the actuator controller.
type Device interface {
	// Write sends b to the device in a single write call.
	Write(b []byte) error

	// ReadLine reads a single line terminated by '\n'.
	// If timeout > 0, it must return after timeout even if no data available.
	ReadLine(timeout time.Duration) (string, error)

	// Close closes the device and releases underlying resources.
	Close() error
}

// Dialer opens a Device. The transport calls it on every reconnect attempt,
// so implementations must be safe to call repeatedly.
type Dialer func() (Device, error)
