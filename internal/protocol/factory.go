// internal/protocol/factory.go
package protocol

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"printer-service/internal/config"
)

// FactoryConfig holds what every transport created by a Factory shares
type FactoryConfig struct {
	// NullPort is the port name prefix that selects the dummy transport
	NullPort     string
	DataBits     int
	StopBits     int
	Parity       string
	WriteTimeout time.Duration
	Dummy        DummyConfig
}

// Factory creates transports by port name
type Factory struct {
	config FactoryConfig
	logger *zap.Logger
}

// NewFactory creates a transport factory
func NewFactory(config FactoryConfig, logger *zap.Logger) *Factory {
	return &Factory{config: config, logger: logger}
}

// NewFactoryFromConfig creates a factory whose null port answers with the
// default reply table bounded by the dummy configuration
func NewFactoryFromConfig(cfg *config.Config, logger *zap.Logger) *Factory {
	bounds := DummyBounds{
		HotendMin:    cfg.Dummy.HotendMin,
		HotendMax:    cfg.Dummy.HotendMax,
		HotendTarget: cfg.Dummy.HotendTarget,
		BedMin:       cfg.Dummy.BedMin,
		BedMax:       cfg.Dummy.BedMax,
		BedTarget:    cfg.Dummy.BedTarget,
		AxisMax:      cfg.Dummy.AxisMax,
	}

	return NewFactory(FactoryConfig{
		NullPort:     cfg.Printer.NullPort,
		DataBits:     cfg.Printer.DataBits,
		StopBits:     cfg.Printer.StopBits,
		Parity:       cfg.Printer.Parity,
		WriteTimeout: cfg.Printer.WriteTimeout,
		Dummy: DummyConfig{
			Responses:    DefaultDummyResponses(bounds),
			DefaultReply: cfg.Dummy.DefaultResponse,
			Banner:       "start\necho: dummy firmware ready\n",
		},
	}, logger)
}

// IsNullPort reports whether port selects the dummy transport
func (f *Factory) IsNullPort(port string) bool {
	return f.config.NullPort != "" && strings.HasPrefix(port, f.config.NullPort)
}

// NullPort returns the configured null port name
func (f *Factory) NullPort() string {
	return f.config.NullPort
}

// Create returns an unopened transport for port
func (f *Factory) Create(port string, baudRate int) (Transport, error) {
	if port == "" {
		return nil, fmt.Errorf("%w: port is required", ErrPortUnavailable)
	}

	if f.IsNullPort(port) {
		dummy := f.config.Dummy
		dummy.Port = port
		return NewDummyConnection(dummy, f.logger), nil
	}

	if baudRate <= 0 {
		return nil, fmt.Errorf("%w: invalid baud rate %d", ErrPortUnavailable, baudRate)
	}

	return NewSerialConnection(&SerialConfig{
		Port:         port,
		BaudRate:     baudRate,
		DataBits:     f.config.DataBits,
		StopBits:     f.config.StopBits,
		Parity:       f.config.Parity,
		WriteTimeout: f.config.WriteTimeout,
	}, f.logger), nil
}
