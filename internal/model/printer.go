// internal/model/printer.go
package model

import "time"

// ConnectionState represents the lifecycle stage of the printer connection
type ConnectionState string

const (
	StateClosed     ConnectionState = "closed"
	StateConnecting ConnectionState = "connecting"
	StateConnected  ConnectionState = "connected"
	StateBusy       ConnectionState = "busy"
	StateError      ConnectionState = "error"
)

// String returns the wire name of the state
func (s ConnectionState) String() string {
	return string(s)
}

// IsOpen reports whether a transport handle is held in this state
func (s ConnectionState) IsOpen() bool {
	return s == StateConnected || s == StateBusy
}

// PrinterStatus is the externally visible connection snapshot
type PrinterStatus struct {
	Port         string          `json:"port"`
	BaudRate     int             `json:"baud"`
	State        ConnectionState `json:"state"`
	NextLine     int             `json:"next_line"`
	CommandsSent int64           `json:"commands_sent"`
	Retries      int64           `json:"retries"`
	ConnectedAt  *time.Time      `json:"connected_at,omitempty"`
	// Transport is nil while no port is open
	Transport *TransportStats `json:"transport,omitempty"`
}

// TransportStats provides transport-level statistics
type TransportStats struct {
	BytesWritten int64     `json:"bytes_written"`
	BytesRead    int64     `json:"bytes_read"`
	LinesWritten int64     `json:"lines_written"`
	LinesRead    int64     `json:"lines_read"`
	ErrorCount   int64     `json:"error_count"`
	LastActivity time.Time `json:"last_activity"`
	IsConnected  bool      `json:"is_connected"`
}

// ConnectResult is returned by a successful connect
type ConnectResult struct {
	Port     string    `json:"port"`
	BaudRate int       `json:"baud"`
	Messages []string  `json:"messages"`
	Time     time.Time `json:"time"`
	// Reused is set when the endpoint was already connected and nothing was reopened
	Reused bool `json:"reused,omitempty"`
}

// SerialPort describes an enumerated serial port
type SerialPort struct {
	Name         string `json:"name"`
	IsUSB        bool   `json:"is_usb"`
	VID          string `json:"vid,omitempty"`
	PID          string `json:"pid,omitempty"`
	SerialNumber string `json:"serial_number,omitempty"`
	Product      string `json:"product,omitempty"`

	// Board is set when VID/PID match a known controller board
	Board      string  `json:"board,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
}
