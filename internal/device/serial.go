package device

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"time"

	serial "go.bug.st/serial"
)

var (
	// ErrNotOpen is returned by operations on a closed SerialDevice.
	ErrNotOpen = errors.New("serial port not open")
	// ErrTimeout is returned by ReadLine when no full line arrived in time.
	ErrTimeout = errors.New("read timeout")
)

// SerialDevice implements Device using go.bug.st/serial.
// Lines are terminated with CRLF, as NMEA-0183 requires.
type SerialDevice struct {
	port  serial.Port
	buf   []byte
	chunk [256]byte
	dev   string
	baud  int
}

// NewSerialDevice creates and opens a serial device with the given path and baudrate.
func NewSerialDevice(dev string, baud int) (*SerialDevice, error) {
	s := &SerialDevice{dev: dev, baud: baud}
	if err := s.Open(); err != nil {
		return nil, err
	}
	return s, nil
}

// Open ensures that the serial port is ready for use.
func (s *SerialDevice) Open() error {
	if s.port != nil {
		return nil
	}
	p, err := serial.Open(s.dev, &serial.Mode{BaudRate: s.baud})
	if err != nil {
		return fmt.Errorf("open serial %s: %w", s.dev, err)
	}
	s.port = p
	s.buf = s.buf[:0]
	return nil
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

// ReadLine reads a single line from the serial port, blocking until newline
// or timeout. A timeout of zero or less blocks until a line arrives.
func (s *SerialDevice) ReadLine(timeout time.Duration) (string, error) {
	if s.port == nil {
		return "", ErrNotOpen
	}
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	for {
		if i := bytes.IndexByte(s.buf, '\n'); i >= 0 {
			line := string(s.buf[:i+1])
			s.buf = s.buf[i+1:]
			return line, nil
		}
		wait := serial.NoTimeout
		if !deadline.IsZero() {
			if wait = time.Until(deadline); wait <= 0 {
				return "", ErrTimeout
			}
		}
		if err := s.port.SetReadTimeout(wait); err != nil {
			return "", fmt.Errorf("set read timeout: %w", err)
		}
		n, err := s.port.Read(s.chunk[:])
		s.buf = append(s.buf, s.chunk[:n]...)
		if err != nil {
			return "", err
		}
	}
}

// WriteLine writes a single line followed by CRLF to the serial port.
func (s *SerialDevice) WriteLine(line string) error {
	if s.port == nil {
		return ErrNotOpen
	}
	_, err := s.port.Write(append([]byte(line), '\r', '\n'))
	return err
}

// IsPermissionDenied reports whether err came from opening a port the
// process may not access.
func IsPermissionDenied(err error) bool {
	if errors.Is(err, fs.ErrPermission) {
		return true
	}
	var perr *serial.PortError
	if errors.As(err, &perr) {
		return perr.Code() == serial.PermissionDenied
	}
	return false
}
