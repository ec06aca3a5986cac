// internal/protocol/transport.go
package protocol

import (
	"context"
	"errors"
	"time"

	"printer-service/internal/model"
)

// Transport is a byte pipe to the firmware that delivers whole lines
type Transport interface {
	// Connection lifecycle
	Open(ctx context.Context) error
	Close() error
	IsOpen() bool

	// Data communication. ReadLine returns "" with a nil error when no
	// complete line arrived within timeout.
	Write(ctx context.Context, data []byte) error
	ReadLine(ctx context.Context, timeout time.Duration) (string, error)

	// Diagnostics
	PortName() string
	Stats() model.TransportStats
}

var (
	// ErrPortUnavailable is returned when the endpoint cannot be opened
	ErrPortUnavailable = errors.New("port unavailable")
	// ErrWriteTimeout is returned when a write does not complete in time
	ErrWriteTimeout = errors.New("write timeout")
	// ErrIOFailure is returned for any other read or write failure
	ErrIOFailure = errors.New("i/o failure")
	// ErrNotOpen is returned when the transport is used before Open or after Close
	ErrNotOpen = errors.New("transport not open")
)

// SerialConfig represents serial connection configuration
type SerialConfig struct {
	Port         string        `json:"port"`
	BaudRate     int           `json:"baud_rate"`
	DataBits     int           `json:"data_bits"`
	StopBits     int           `json:"stop_bits"`
	Parity       string        `json:"parity"`
	WriteTimeout time.Duration `json:"write_timeout"`
}
