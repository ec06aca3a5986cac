// internal/discovery/serial/scanner.go
package serial

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"
	"sort"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
	"go.uber.org/zap"

	"printer-service/internal/model"
)

// Config for the serial port scanner
type Config struct {
	// PortPatterns are glob patterns a port name must match; empty keeps every port
	PortPatterns []string `json:"port_patterns"`
}

// Scanner enumerates serial ports a printer may be attached to
type Scanner struct {
	logger *zap.Logger
	config *Config
	boards *BoardDatabase

	// list is replaceable in tests
	list func() ([]*enumerator.PortDetails, error)
}

// NewScanner creates a new serial scanner
func NewScanner(logger *zap.Logger, config *Config) *Scanner {
	if config == nil {
		config = &Config{PortPatterns: DefaultPortPatterns()}
	}

	return &Scanner{
		logger: logger.With(zap.String("scanner", "serial")),
		config: config,
		boards: NewBoardDatabase(),
		list:   listPorts,
	}
}

// Scan returns the serial ports present on this host, sorted by name
func (s *Scanner) Scan(ctx context.Context) ([]model.SerialPort, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	details, err := s.list()
	if err != nil {
		return nil, fmt.Errorf("failed to get serial ports: %w", err)
	}

	ports := make([]model.SerialPort, 0, len(details))
	for _, d := range details {
		if !s.matches(d.Name) {
			continue
		}
		port := model.SerialPort{
			Name:         d.Name,
			IsUSB:        d.IsUSB,
			VID:          d.VID,
			PID:          d.PID,
			SerialNumber: d.SerialNumber,
			Product:      d.Product,
		}
		if d.IsUSB {
			if board := s.boards.Lookup(d.VID, d.PID); board != nil {
				port.Board = board.Board
				port.Confidence = board.Confidence
			}
		}
		ports = append(ports, port)
	}

	sort.Slice(ports, func(i, j int) bool { return ports[i].Name < ports[j].Name })

	s.logger.Debug("Serial scan completed", zap.Int("ports_found", len(ports)))
	return ports, nil
}

func (s *Scanner) matches(name string) bool {
	if len(s.config.PortPatterns) == 0 {
		return true
	}
	for _, pattern := range s.config.PortPatterns {
		if ok, _ := filepath.Match(pattern, name); ok {
			return true
		}
	}
	return false
}

// listPorts prefers the detailed USB enumeration and falls back to plain names
func listPorts() ([]*enumerator.PortDetails, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err == nil {
		return details, nil
	}

	names, nameErr := serial.GetPortsList()
	if nameErr != nil {
		return nil, err
	}

	details = make([]*enumerator.PortDetails, 0, len(names))
	for _, name := range names {
		details = append(details, &enumerator.PortDetails{Name: name})
	}
	return details, nil
}

// DefaultPortPatterns returns the device names printers usually show up as
func DefaultPortPatterns() []string {
	switch runtime.GOOS {
	case "windows":
		return []string{"COM*"}
	case "darwin":
		return []string{"/dev/cu.*", "/dev/tty.usbmodem*", "/dev/tty.usbserial*"}
	default:
		return []string{"/dev/ttyUSB*", "/dev/ttyACM*", "/dev/ttyS*", "/dev/ttyAMA*", "/dev/rfcomm*"}
	}
}
