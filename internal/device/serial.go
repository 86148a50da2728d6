// Package device implements Device using go.bug.st/serial, which provides
// real serial communication support for the actuator controller link.
package device

import (
	"bufio"
	"errors"
	"fmt"
	"time"

	serial "go.bug.st/serial"
)

// writeTimeout bounds every serial write. A port that stops accepting data
// (flow control, half-dead USB adapter) turns into a write error that drops
// the link instead of blocking the sender forever.
const writeTimeout = 1 * time.Second

// SerialDevice implements Device using go.bug.st/serial.
type SerialDevice struct {
	port serial.Port
	r    *bufio.Reader
}

// OpenSerial opens a serial device with the given path and baudrate.
func OpenSerial(dev string, baud int) (*SerialDevice, error) {
	p, err := serial.Open(dev, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, fmt.Errorf("open serial %s: %w", dev, err)
	}
	return &SerialDevice{port: p, r: bufio.NewReader(p)}, nil
}

// SerialDialer returns a Dialer that opens dev at baud on each call.
func SerialDialer(dev string, baud int) Dialer {
	return func() (Device, error) {
		return OpenSerial(dev, baud)
	}
}

// Write sends b to the serial port in a single write call so frames are
// never interleaved with other writes. The write is bounded by
// writeTimeout; a timeout is reported as a write failure.
func (s *SerialDevice) Write(b []byte) error {
	if s.port == nil {
		return errors.New("serial port not open")
	}

	ch := make(chan error, 1)
	go func() {
		n, err := s.port.Write(b)
		if err == nil && n != len(b) {
			err = fmt.Errorf("short write: %d of %d bytes", n, len(b))
		}
		ch <- err
	}()

	select {
	case err := <-ch:
		return err
	case <-time.After(writeTimeout):
		return errors.New("write timeout")
	}
}

// ReadLine reads a single line from the serial port, blocking until newline
// or timeout.
func (s *SerialDevice) ReadLine(timeout time.Duration) (string, error) {
	if s.port == nil {
		return "", errors.New("serial port not open")
	}

	ch := make(chan struct {
		line string
		err  error
	}, 1)

	go func() {
		line, err := s.r.ReadString('\n')
		ch <- struct {
			line string
			err  error
		}{line, err}
	}()

	if timeout <= 0 {
		res := <-ch
		return res.line, res.err
	}

	select {
	case res := <-ch:
		return res.line, res.err
	case <-time.After(timeout):
		return "", errors.New("read timeout")
	}
}

// Close closes the underlying serial connection.
func (s *SerialDevice) Close() error {
	if s.port == nil {
		return nil
	}
	err := s.port.Close()
	s.port = nil
	return err
}
