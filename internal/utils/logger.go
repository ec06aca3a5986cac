// internal/utils/logger.go
package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"printer-service/internal/config"
)

// LoggerManager builds zap loggers from logging configuration
type LoggerManager struct {
	config *config.LoggingConfig
}

// NewLogger creates a new logger instance based on configuration
func NewLogger(cfg *config.LoggingConfig) (*zap.Logger, error) {
	manager := &LoggerManager{
		config: cfg,
	}

	logger, err := manager.createLogger()
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	return logger, nil
}

// createLogger creates the zap logger with proper configuration
func (lm *LoggerManager) createLogger() (*zap.Logger, error) {
	encoderConfig := lm.getEncoderConfig()

	var encoder zapcore.Encoder
	switch lm.config.Format {
	case "console":
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	default:
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	}

	writeSyncer, err := newWriteSyncer(lm.config.Output, "./logs/printer-service.log", rotation{
		maxSize:    lm.config.MaxSize,
		maxBackups: lm.config.MaxBackups,
		maxAge:     lm.config.MaxAge,
		compress:   lm.config.Compress,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create write syncer: %w", err)
	}

	level, err := ParseLevel(lm.config.Level)
	if err != nil {
		return nil, fmt.Errorf("failed to parse log level: %w", err)
	}

	core := zapcore.NewCore(encoder, writeSyncer, level)

	return zap.New(core,
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
	), nil
}

// getEncoderConfig returns encoder configuration based on format
func (lm *LoggerManager) getEncoderConfig() zapcore.EncoderConfig {
	config := zap.NewProductionEncoderConfig()

	config.TimeKey = "timestamp"
	config.EncodeTime = zapcore.TimeEncoderOfLayout(time.RFC3339Nano)
	config.LevelKey = "level"
	config.EncodeLevel = zapcore.LowercaseLevelEncoder
	config.CallerKey = "caller"
	config.EncodeCaller = zapcore.ShortCallerEncoder
	config.MessageKey = "message"
	config.StacktraceKey = "stacktrace"

	if lm.config.Format == "console" {
		config.EncodeLevel = zapcore.CapitalColorLevelEncoder
		config.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05.000")
	}

	return config
}

type rotation struct {
	maxSize    int
	maxBackups int
	maxAge     int
	compress   bool
}

// newWriteSyncer returns stdout, stderr or a rotated file
func newWriteSyncer(output, fallback string, rot rotation) (zapcore.WriteSyncer, error) {
	switch output {
	case "stdout":
		return zapcore.AddSync(os.Stdout), nil
	case "stderr":
		return zapcore.AddSync(os.Stderr), nil
	}

	if output == "" {
		output = fallback
	}

	if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	return zapcore.AddSync(&lumberjack.Logger{
		Filename:   output,
		MaxSize:    rot.maxSize, // MB
		MaxBackups: rot.maxBackups,
		MaxAge:     rot.maxAge, // days
		Compress:   rot.compress,
	}), nil
}

// ParseLevel maps a configured level name to a zap level
func ParseLevel(level string) (zapcore.Level, error) {
	switch level {
	case "debug":
		return zapcore.DebugLevel, nil
	case "info", "":
		return zapcore.InfoLevel, nil
	case "warn":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	case "fatal":
		return zapcore.FatalLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("invalid log level: %s", level)
	}
}

// PrinterLogger wraps zap.Logger with connection-specific fields
type PrinterLogger struct {
	*zap.Logger
}

// NewPrinterLogger creates a logger bound to one serial endpoint
func NewPrinterLogger(baseLogger *zap.Logger, port string, baudRate int) *PrinterLogger {
	return &PrinterLogger{
		Logger: baseLogger.With(
			zap.String("port", port),
			zap.Int("baud_rate", baudRate),
			zap.String("component", "printer"),
		),
	}
}

// LogConnection logs connect and disconnect events
func (pl *PrinterLogger) LogConnection(action string, duration time.Duration, err error) {
	fields := []zap.Field{
		zap.String("action", action),
		zap.Duration("duration", duration),
		zap.Bool("success", err == nil),
	}

	if err != nil {
		pl.Error("Printer connection event", append(fields, zap.Error(err))...)
		return
	}
	pl.Info("Printer connection event", fields...)
}

// LogBanner logs the lines drained after opening the port
func (pl *PrinterLogger) LogBanner(lines []string) {
	pl.Info("Startup banner drained",
		zap.Int("lines", len(lines)),
		zap.Strings("banner", lines),
	)
}

// CommandLogger provides structured logging for a single G-code command
type CommandLogger struct {
	logger    *zap.Logger
	startTime time.Time
}

// NewCommandLogger creates a command-specific logger
func NewCommandLogger(baseLogger *zap.Logger, commandID, text string) *CommandLogger {
	return &CommandLogger{
		logger: baseLogger.With(
			zap.String("command_id", commandID),
			zap.String("gcode", text),
			zap.String("component", "command"),
		),
		startTime: time.Now(),
	}
}

// Start logs command dispatch
func (cl *CommandLogger) Start(fields ...zap.Field) {
	cl.logger.Debug("Command started", fields...)
}

// Success logs successful command completion
func (cl *CommandLogger) Success(fields ...zap.Field) {
	allFields := append([]zap.Field{
		zap.Duration("duration", time.Since(cl.startTime)),
		zap.Bool("success", true),
	}, fields...)

	cl.logger.Debug("Command completed", allFields...)
}

// Error logs command failure
func (cl *CommandLogger) Error(err error, fields ...zap.Field) {
	allFields := append([]zap.Field{
		zap.Duration("duration", time.Since(cl.startTime)),
		zap.Bool("success", false),
		zap.Error(err),
	}, fields...)

	cl.logger.Warn("Command failed", allFields...)
}

// ServiceLogger provides service-level logging functionality
type ServiceLogger struct {
	*zap.Logger
	serviceName string
}

// NewServiceLogger creates a service-specific logger
func NewServiceLogger(baseLogger *zap.Logger, serviceName string) *ServiceLogger {
	logger := baseLogger.With(
		zap.String("service", serviceName),
		zap.String("component", "service"),
	)

	return &ServiceLogger{
		Logger:      logger,
		serviceName: serviceName,
	}
}

// LogServiceStart logs service startup
func (sl *ServiceLogger) LogServiceStart(version string, config interface{}) {
	sl.Info("Service starting",
		zap.String("version", version),
		zap.Any("config", config),
	)
}

// LogServiceStop logs service shutdown
func (sl *ServiceLogger) LogServiceStop(reason string) {
	sl.Info("Service stopping",
		zap.String("reason", reason),
	)
}

// LogAPIRequest logs HTTP API requests
func (sl *ServiceLogger) LogAPIRequest(method, path, userAgent, clientIP string, statusCode int, duration time.Duration) {
	level := zapcore.InfoLevel
	if statusCode >= 400 {
		level = zapcore.WarnLevel
	}
	if statusCode >= 500 {
		level = zapcore.ErrorLevel
	}

	if ce := sl.Check(level, "API request"); ce != nil {
		ce.Write(
			zap.String("method", method),
			zap.String("path", path),
			zap.String("user_agent", userAgent),
			zap.String("client_ip", clientIP),
			zap.Int("status_code", statusCode),
			zap.Duration("duration", duration),
		)
	}
}

// LogDatabaseQuery logs database queries
func (sl *ServiceLogger) LogDatabaseQuery(query string, duration time.Duration, err error) {
	fields := []zap.Field{
		zap.String("query", query),
		zap.Duration("duration", duration),
	}

	if err != nil {
		sl.Error("Database query failed", append(fields, zap.Error(err))...)
		return
	}
	sl.Debug("Database query executed", fields...)
}

// AuditLogger writes the G-code audit trail, one entry per command
type AuditLogger struct {
	logger *zap.Logger
}

// NewAuditLogger creates an audit logger writing to its own rotated file.
// A disabled audit config yields a no-op logger.
func NewAuditLogger(cfg *config.AuditConfig) (*AuditLogger, error) {
	if !cfg.Enabled {
		return &AuditLogger{logger: zap.NewNop()}, nil
	}

	writeSyncer, err := newWriteSyncer(cfg.Output, "./logs/gcode.log", rotation{
		maxSize:    cfg.MaxSize,
		maxBackups: cfg.MaxBackups,
		maxAge:     cfg.MaxAge,
		compress:   cfg.Compress,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create audit log: %w", err)
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout(time.RFC3339Nano)
	encoderConfig.CallerKey = ""
	encoderConfig.StacktraceKey = ""

	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), writeSyncer, zapcore.InfoLevel)
	return &AuditLogger{logger: zap.New(core).With(zap.String("component", "audit"))}, nil
}

// NewAuditLoggerFrom wraps an existing logger, mainly for tests
func NewAuditLoggerFrom(logger *zap.Logger) *AuditLogger {
	return &AuditLogger{logger: logger.With(zap.String("component", "audit"))}
}

// LogCommand records a command accepted for transmission
func (al *AuditLogger) LogCommand(port string, sequence int, text string, at time.Time) {
	al.logger.Info("gcode",
		zap.String("port", port),
		zap.Int("sequence", sequence),
		zap.String("gcode", text),
		zap.Time("sent_at", at),
	)
}

// Sync flushes buffered audit entries
func (al *AuditLogger) Sync() error {
	return al.logger.Sync()
}

// SerialTraceLogger logs raw serial traffic at debug level
type SerialTraceLogger struct {
	logger *zap.Logger
}

// NewSerialTraceLogger creates a trace logger. Disabled tracing yields a no-op logger.
func NewSerialTraceLogger(baseLogger *zap.Logger, enabled bool) *SerialTraceLogger {
	if !enabled {
		return &SerialTraceLogger{logger: zap.NewNop()}
	}
	return &SerialTraceLogger{logger: baseLogger.With(zap.String("component", "serial"))}
}

// LogSent traces one payload written to the device
func (st *SerialTraceLogger) LogSent(sequence int, payload []byte, retransmit bool) {
	st.logger.Debug("serial >>",
		zap.Int("sequence", sequence),
		zap.ByteString("payload", payload),
		zap.Bool("retransmit", retransmit),
	)
}

// LogReceived traces one line read from the device
func (st *SerialTraceLogger) LogReceived(line, kind string) {
	st.logger.Debug("serial <<",
		zap.String("line", line),
		zap.String("kind", kind),
	)
}

// LogError is a helper function for consistent error logging
func LogError(logger *zap.Logger, message string, err error, fields ...zap.Field) {
	allFields := append([]zap.Field{zap.Error(err)}, fields...)
	logger.Error(message, allFields...)
}

// CloseLogger flushes the logger
func CloseLogger(logger *zap.Logger) error {
	return logger.Sync()
}
