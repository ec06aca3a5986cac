// internal/service/printer_service.go
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"printer-service/internal/config"
	"printer-service/internal/engine"
	"printer-service/internal/events"
	"printer-service/internal/metrics"
	"printer-service/internal/model"
	"printer-service/internal/protocol"
	"printer-service/internal/repository"
	"printer-service/internal/utils"
	"printer-service/pkg/marlin"
)

var (
	// ErrNotConnected is returned for commands sent without an open connection
	ErrNotConnected = errors.New("printer not connected")
	// ErrInvalidTransition is returned when an operation is not allowed in the current state
	ErrInvalidTransition = errors.New("invalid connection state transition")
)

// PortScanner enumerates serial ports
type PortScanner interface {
	Scan(ctx context.Context) ([]model.SerialPort, error)
}

// TransportFactory creates transports by port name
type TransportFactory interface {
	Create(port string, baudRate int) (protocol.Transport, error)
	IsNullPort(port string) bool
	NullPort() string
}

// Dependencies are the collaborators of a PrinterService. Only Factory is required.
type Dependencies struct {
	Factory    TransportFactory
	Scanner    PortScanner
	Bus        *events.Bus
	Metrics    *metrics.Collector
	Repository repository.CommandRepository
	Audit      *utils.AuditLogger
}

// PrinterService owns the single printer connection: its transport, its
// command queue and its lifecycle state
type PrinterService struct {
	deps   Dependencies
	config *config.PrinterConfig
	logger *utils.ServiceLogger
	trace  *utils.SerialTraceLogger

	mu          sync.Mutex
	state       model.ConnectionState
	transport   protocol.Transport
	queue       *engine.CommandQueue
	port        string
	baudRate    int
	connectedAt time.Time
	pending     int
}

// NewPrinterService creates a printer service in the closed state
func NewPrinterService(deps Dependencies, cfg *config.Config, logger *zap.Logger) *PrinterService {
	if deps.Audit == nil {
		deps.Audit = utils.NewAuditLoggerFrom(zap.NewNop())
	}

	return &PrinterService{
		deps:   deps,
		config: &cfg.Printer,
		logger: utils.NewServiceLogger(logger, "printer-service"),
		trace:  utils.NewSerialTraceLogger(logger, cfg.Logging.TraceSerial),
		state:  model.StateClosed,
	}
}

// Connect opens port at baudRate, drains the startup banner and starts a new
// command queue. Connecting to the endpoint that is already connected reuses it.
func (s *PrinterService) Connect(ctx context.Context, port string, baudRate int) (*model.ConnectResult, error) {
	if port == "" {
		port = s.config.DefaultPort
	}
	if baudRate <= 0 {
		baudRate = s.config.DefaultBaudRate
	}

	s.mu.Lock()
	switch s.state {
	case model.StateConnecting, model.StateBusy:
		state := s.state
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: cannot connect while %s", ErrInvalidTransition, state)

	case model.StateConnected:
		if s.port == port && s.baudRate == baudRate && !s.queue.Halted() {
			result := &model.ConnectResult{
				Port:     port,
				BaudRate: baudRate,
				Messages: []string{},
				Time:     s.connectedAt,
				Reused:   true,
			}
			s.mu.Unlock()
			s.logger.Debug("Connection reused", zap.String("port", port), zap.Int("baud_rate", baudRate))
			return result, nil
		}
		s.closeLocked("endpoint changed")
	}

	s.port = port
	s.baudRate = baudRate
	s.setStateLocked(model.StateConnecting, nil)
	s.mu.Unlock()

	plog := utils.NewPrinterLogger(s.logger.Logger, port, baudRate)
	start := time.Now()

	transport, messages, err := s.open(ctx, port, baudRate)
	if err != nil {
		plog.LogConnection("connect", time.Since(start), err)
		s.mu.Lock()
		if s.state == model.StateConnecting {
			s.setStateLocked(model.StateError, err)
		}
		s.mu.Unlock()
		return nil, err
	}
	plog.LogBanner(messages)

	opts := engine.OptionsFromConfig(s.config)
	opts.Verbatim = s.deps.Factory.IsNullPort(port)
	queue := engine.NewCommandQueue(transport, opts, s.hooks(port), s.logger.Logger.With(
		zap.String("port", port),
	))

	s.mu.Lock()
	if s.state != model.StateConnecting {
		// Closed while the banner was draining
		s.mu.Unlock()
		transport.Close()
		return nil, fmt.Errorf("%w: connection closed while connecting", ErrInvalidTransition)
	}
	s.transport = transport
	s.queue = queue
	s.connectedAt = time.Now()
	s.pending = 0
	s.setStateLocked(model.StateConnected, nil)
	connectedAt := s.connectedAt
	s.mu.Unlock()

	plog.LogConnection("connect", time.Since(start), nil)

	return &model.ConnectResult{
		Port:     port,
		BaudRate: baudRate,
		Messages: messages,
		Time:     connectedAt,
	}, nil
}

// open creates and opens the transport and drains what the firmware prints at startup
func (s *PrinterService) open(ctx context.Context, port string, baudRate int) (protocol.Transport, []string, error) {
	transport, err := s.deps.Factory.Create(port, baudRate)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create transport: %w", err)
	}

	if err := transport.Open(ctx); err != nil {
		return nil, nil, fmt.Errorf("failed to open %s: %w", port, err)
	}

	messages, err := s.drain(ctx, transport)
	if err != nil {
		transport.Close()
		return nil, nil, fmt.Errorf("failed to read startup banner: %w", err)
	}

	return transport, messages, nil
}

// drain reads until DrainQuietReads consecutive reads come back empty or
// DrainMaxDuration has passed
func (s *PrinterService) drain(ctx context.Context, transport protocol.Transport) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.config.DrainMaxDuration)
	defer cancel()

	messages := []string{}
	quiet := 0
	for quiet < s.config.DrainQuietReads {
		line, err := transport.ReadLine(ctx, s.config.DrainReadTimeout)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			return nil, err
		}
		if line == "" {
			quiet++
			continue
		}
		quiet = 0
		messages = append(messages, line)
		s.trace.LogReceived(line, string(marlin.Classify(line).Kind))
	}

	return messages, nil
}

// Disconnect closes the connection and returns the resulting state
func (s *PrinterService) Disconnect(ctx context.Context) (model.ConnectionState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case model.StateClosed, model.StateError:
		return s.state, nil
	case model.StateConnecting, model.StateBusy:
		return s.state, fmt.Errorf("%w: cannot disconnect while %s", ErrInvalidTransition, s.state)
	}

	s.closeLocked("disconnect requested")
	return s.state, nil
}

// Close tears the connection down in any state. Commands still in flight
// fail with an i/o error once their transport is gone.
func (s *PrinterService) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == model.StateClosed {
		return nil
	}
	if s.pending > 0 {
		s.logger.Warn("Closing with commands in flight", zap.Int("pending", s.pending))
	}

	return s.closeLocked("forced close")
}

func (s *PrinterService) closeLocked(reason string) error {
	start := time.Now()
	var err error
	if s.transport != nil {
		err = s.transport.Close()
	}
	s.transport = nil
	s.queue = nil
	s.pending = 0

	utils.NewPrinterLogger(s.logger.Logger, s.port, s.baudRate).
		LogConnection("disconnect", time.Since(start), err)
	s.logger.Debug("Connection closed", zap.String("reason", reason))

	s.setStateLocked(model.StateClosed, nil)
	return err
}

// SendCommand transmits one G-code line and waits for its outcome. The
// connection is busy while at least one command is in flight.
func (s *PrinterService) SendCommand(ctx context.Context, text string, parse bool) (*engine.Result, error) {
	queue, err := s.enter()
	if err != nil {
		return nil, err
	}
	defer s.leave(queue)

	clog := utils.NewCommandLogger(s.logger.Logger, uuid.NewString(), text)
	clog.Start()

	res, err := queue.Send(ctx, text, parse)
	if err != nil {
		clog.Error(err)
		return res, err
	}

	clog.Success(zap.Int("sequence", res.Command.Sequence), zap.Int("retries", res.Retries))
	return res, nil
}

// SetLineNumber makes n the line number of the next command
func (s *PrinterService) SetLineNumber(ctx context.Context, n int) error {
	queue, err := s.enter()
	if err != nil {
		return err
	}
	defer s.leave(queue)

	if _, err := queue.SetLineNumber(ctx, n); err != nil {
		return fmt.Errorf("failed to set line number: %w", err)
	}
	return nil
}

func (s *PrinterService) enter() (*engine.CommandQueue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.state.IsOpen() || s.queue == nil {
		return nil, ErrNotConnected
	}

	s.pending++
	if s.state == model.StateConnected {
		s.setStateLocked(model.StateBusy, nil)
	}
	return s.queue, nil
}

func (s *PrinterService) leave(queue *engine.CommandQueue) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// The connection this command ran on was replaced or closed
	if s.queue != queue {
		return
	}
	s.pending--
	if s.pending == 0 && s.state == model.StateBusy {
		s.setStateLocked(model.StateConnected, nil)
	}
}

// ConnectionState returns the current lifecycle state
func (s *PrinterService) ConnectionState() model.ConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Status returns a snapshot of the connection
func (s *PrinterService) Status() *model.PrinterStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := &model.PrinterStatus{
		Port:     s.port,
		BaudRate: s.baudRate,
		State:    s.state,
	}
	if s.queue != nil {
		status.NextLine = s.queue.NextLineNumber()
		status.CommandsSent = s.queue.CommandsSent()
		status.Retries = s.queue.Retries()
		connectedAt := s.connectedAt
		status.ConnectedAt = &connectedAt
	}
	if s.transport != nil {
		stats := s.transport.Stats()
		status.Transport = &stats
	}
	return status
}

// ListAvailablePorts returns the enumerated serial ports followed by the null port
func (s *PrinterService) ListAvailablePorts(ctx context.Context) ([]model.SerialPort, error) {
	ports := []model.SerialPort{}

	if s.deps.Scanner != nil {
		found, err := s.deps.Scanner.Scan(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list serial ports: %w", err)
		}
		ports = append(ports, found...)
	}

	if null := s.deps.Factory.NullPort(); null != "" {
		ports = append(ports, model.SerialPort{Name: null})
	}
	return ports, nil
}

func (s *PrinterService) setStateLocked(next model.ConnectionState, cause error) {
	prev := s.state
	if prev == next {
		return
	}
	s.state = next

	if s.deps.Metrics != nil {
		s.deps.Metrics.SetState(next)
	}

	data := model.StateChangedData{Previous: prev, Current: next}
	if cause != nil {
		data.Error = cause.Error()
	}
	s.publish(model.EventStateChanged, s.port, data)

	s.logger.Info("Connection state changed",
		zap.String("port", s.port),
		zap.String("from", prev.String()),
		zap.String("to", next.String()),
	)
}

func (s *PrinterService) publish(eventType model.EventType, port string, data interface{}) {
	if s.deps.Bus != nil {
		s.deps.Bus.Publish(model.NewEvent(eventType, port, data))
	}
}
