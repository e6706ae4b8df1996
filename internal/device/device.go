// Package device defines a unified interface for line-oriented communication
// devices such as the serial port a virtual GPS receiver is attached to.
package device

import "time"

// Device defines an abstract interface for communication devices (e.g., Serial).
// Implementations can provide ReadLine/WriteLine operations with optional timeout.
type Device interface {
	// ReadLine reads a single line terminated by '\n'.
	// If timeout > 0, it must return after timeout even if no data available.
	ReadLine(timeout time.Duration) (string, error)

	// WriteLine writes s followed by a line terminator to the device.
	WriteLine(s string) error

	// Close closes the device and releases underlying resources.
	Close() error
}

// Opener opens a Device by path and baudrate.
type Opener func(dev string, baud int) (Device, error)

// OpenSerial is the default Opener backed by go.bug.st/serial.
func OpenSerial(dev string, baud int) (Device, error) {
	return NewSerialDevice(dev, baud)
}
