// internal/protocol/serial_connection.go
package protocol

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"
	"go.uber.org/zap"

	"printer-service/internal/model"
)

// readPollInterval bounds a single blocking read so ReadLine can honor ctx
const readPollInterval = 50 * time.Millisecond

// SerialConnection implements Transport over a serial port
type SerialConnection struct {
	config *SerialConfig
	port   serial.Port
	logger *zap.Logger
	mutex  sync.RWMutex
	isOpen bool

	readMu  sync.Mutex
	pending []byte

	statsMu sync.Mutex
	stats   model.TransportStats
}

// NewSerialConnection creates a new serial connection
func NewSerialConnection(config *SerialConfig, logger *zap.Logger) *SerialConnection {
	return &SerialConnection{
		config: config,
		logger: logger.With(
			zap.String("transport", "serial"),
			zap.String("port", config.Port),
		),
	}
}

// Open opens the serial port
func (sc *SerialConnection) Open(ctx context.Context) error {
	sc.mutex.Lock()
	defer sc.mutex.Unlock()

	if sc.isOpen {
		return nil
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	sc.logger.Info("Opening serial port", zap.Int("baud_rate", sc.config.BaudRate))

	mode := &serial.Mode{
		BaudRate: sc.config.BaudRate,
		DataBits: sc.config.DataBits,
		StopBits: stopBits(sc.config.StopBits),
		Parity:   parity(sc.config.Parity),
	}
	if mode.DataBits == 0 {
		mode.DataBits = 8
	}

	port, err := serial.Open(sc.config.Port, mode)
	if err != nil {
		sc.logger.Error("Failed to open serial port", zap.Error(err))
		return fmt.Errorf("%w: %s: %v", ErrPortUnavailable, sc.config.Port, err)
	}

	if err := port.SetReadTimeout(readPollInterval); err != nil {
		port.Close()
		return fmt.Errorf("%w: failed to set read timeout: %v", ErrPortUnavailable, err)
	}

	// Stale bytes from a previous session would be read as replies
	if err := port.ResetInputBuffer(); err != nil {
		sc.logger.Warn("Failed to reset input buffer", zap.Error(err))
	}

	sc.port = port
	sc.isOpen = true
	sc.pending = nil

	sc.statsMu.Lock()
	sc.stats.IsConnected = true
	sc.stats.LastActivity = time.Now()
	sc.statsMu.Unlock()

	sc.logger.Info("Serial port opened successfully")
	return nil
}

// Close closes the serial port
func (sc *SerialConnection) Close() error {
	sc.mutex.Lock()
	defer sc.mutex.Unlock()

	if !sc.isOpen || sc.port == nil {
		return nil
	}

	err := sc.port.Close()
	sc.port = nil
	sc.isOpen = false

	sc.statsMu.Lock()
	sc.stats.IsConnected = false
	sc.statsMu.Unlock()

	if err != nil {
		sc.logger.Error("Failed to close serial port", zap.Error(err))
		return fmt.Errorf("failed to close serial port: %w", err)
	}

	sc.logger.Info("Serial port closed successfully")
	return nil
}

// IsOpen returns whether the port is open
func (sc *SerialConnection) IsOpen() bool {
	sc.mutex.RLock()
	defer sc.mutex.RUnlock()
	return sc.isOpen && sc.port != nil
}

// PortName returns the device path
func (sc *SerialConnection) PortName() string {
	return sc.config.Port
}

// Stats returns a snapshot of the transport statistics
func (sc *SerialConnection) Stats() model.TransportStats {
	sc.statsMu.Lock()
	defer sc.statsMu.Unlock()
	return sc.stats
}

// Write writes one payload. The write is abandoned after the configured write timeout.
func (sc *SerialConnection) Write(ctx context.Context, data []byte) error {
	sc.mutex.RLock()
	port := sc.port
	open := sc.isOpen
	sc.mutex.RUnlock()

	if !open || port == nil {
		return ErrNotOpen
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() {
		n, err := port.Write(data)
		if err == nil && n != len(data) {
			err = fmt.Errorf("incomplete write: wrote %d of %d bytes", n, len(data))
		}
		done <- err
	}()

	timer := time.NewTimer(sc.writeTimeout())
	defer timer.Stop()

	select {
	case err := <-done:
		if err != nil {
			sc.recordError()
			sc.logger.Error("Serial write failed", zap.Error(err))
			return fmt.Errorf("%w: %v", ErrIOFailure, err)
		}
	case <-timer.C:
		sc.recordError()
		return fmt.Errorf("%w after %s", ErrWriteTimeout, sc.writeTimeout())
	case <-ctx.Done():
		return ctx.Err()
	}

	sc.statsMu.Lock()
	sc.stats.BytesWritten += int64(len(data))
	sc.stats.LinesWritten++
	sc.stats.LastActivity = time.Now()
	sc.statsMu.Unlock()

	return nil
}

// ReadLine returns the next complete non-blank line, or "" if none arrived
// within timeout. Partial lines are kept for the next call.
func (sc *SerialConnection) ReadLine(ctx context.Context, timeout time.Duration) (string, error) {
	sc.readMu.Lock()
	defer sc.readMu.Unlock()

	deadline := time.Now().Add(timeout)
	chunk := make([]byte, 256)

	for {
		if line, ok := sc.takeLine(); ok {
			return line, nil
		}

		if err := ctx.Err(); err != nil {
			return "", err
		}
		if !time.Now().Before(deadline) {
			return "", nil
		}

		sc.mutex.RLock()
		port := sc.port
		sc.mutex.RUnlock()
		if port == nil {
			return "", ErrNotOpen
		}

		n, err := port.Read(chunk)
		if err != nil {
			sc.recordError()
			return "", fmt.Errorf("%w: %v", ErrIOFailure, err)
		}
		if n > 0 {
			sc.pending = append(sc.pending, chunk[:n]...)
		}
	}
}

// takeLine pops complete lines off pending until one is not blank.
// A blank line would otherwise read as silence.
func (sc *SerialConnection) takeLine() (string, bool) {
	for {
		i := bytes.IndexByte(sc.pending, '\n')
		if i < 0 {
			return "", false
		}
		raw := sc.pending[:i]
		sc.pending = append([]byte(nil), sc.pending[i+1:]...)
		sc.recordRead(len(raw) + 1)

		if line := DecodeLine(raw); strings.TrimSpace(line) != "" {
			return line, true
		}
	}
}

func (sc *SerialConnection) writeTimeout() time.Duration {
	if sc.config.WriteTimeout <= 0 {
		return time.Second
	}
	return sc.config.WriteTimeout
}

func (sc *SerialConnection) recordRead(n int) {
	sc.statsMu.Lock()
	defer sc.statsMu.Unlock()
	sc.stats.BytesRead += int64(n)
	sc.stats.LinesRead++
	sc.stats.LastActivity = time.Now()
}

func (sc *SerialConnection) recordError() {
	sc.statsMu.Lock()
	defer sc.statsMu.Unlock()
	sc.stats.ErrorCount++
}

func stopBits(n int) serial.StopBits {
	if n == 2 {
		return serial.TwoStopBits
	}
	return serial.OneStopBit
}

func parity(name string) serial.Parity {
	switch name {
	case "odd":
		return serial.OddParity
	case "even":
		return serial.EvenParity
	case "mark":
		return serial.MarkParity
	case "space":
		return serial.SpaceParity
	default:
		return serial.NoParity
	}
}
