// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Security SecurityConfig `mapstructure:"security"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Audit    AuditConfig    `mapstructure:"audit"`
	Printer  PrinterConfig  `mapstructure:"printer"`
	Dummy    DummyConfig    `mapstructure:"dummy"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	App      AppConfig      `mapstructure:"app"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         string        `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// DatabaseConfig represents the optional command audit store
type DatabaseConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	User         string        `mapstructure:"user"`
	Password     string        `mapstructure:"password"`
	DBName       string        `mapstructure:"dbname"`
	SSLMode      string        `mapstructure:"sslmode"`
	MaxOpenConns int           `mapstructure:"max_open_conns"`
	MaxIdleConns int           `mapstructure:"max_idle_conns"`
	MaxLifetime  time.Duration `mapstructure:"max_lifetime"`
	Retention    time.Duration `mapstructure:"retention"`
}

// SecurityConfig represents security configuration
type SecurityConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
	// TraceSerial logs every line sent to and received from the device
	TraceSerial bool `mapstructure:"trace_serial"`
}

// AuditConfig represents the G-code audit log
type AuditConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Output     string `mapstructure:"output"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// PrinterConfig represents the serial protocol engine configuration
type PrinterConfig struct {
	DefaultPort        string        `mapstructure:"default_port"`
	DefaultBaudRate    int           `mapstructure:"default_baud_rate"`
	DataBits           int           `mapstructure:"data_bits"`
	StopBits           int           `mapstructure:"stop_bits"`
	Parity             string        `mapstructure:"parity"`
	NullPort           string        `mapstructure:"null_port"`
	ReadTimeout        time.Duration `mapstructure:"read_timeout"`
	WriteTimeout       time.Duration `mapstructure:"write_timeout"`
	CommandTimeout     time.Duration `mapstructure:"command_timeout"`
	LockTimeout        time.Duration `mapstructure:"lock_timeout"`
	MaxRetries         int           `mapstructure:"max_retries"`
	RetryBackoff       time.Duration `mapstructure:"retry_backoff"`
	PipelineDepth      int           `mapstructure:"pipeline_depth"`
	BusyPolicy         string        `mapstructure:"busy_policy"`
	SingleLinePrefixes []string      `mapstructure:"single_line_prefixes"`
	LineResetThreshold int           `mapstructure:"line_reset_threshold"`
	DrainReadTimeout   time.Duration `mapstructure:"drain_read_timeout"`
	DrainQuietReads    int           `mapstructure:"drain_quiet_reads"`
	DrainMaxDuration   time.Duration `mapstructure:"drain_max_duration"`
}

// DummyConfig represents the reply generator of the dummy transport
type DummyConfig struct {
	HotendMin       float64 `mapstructure:"hotend_min"`
	HotendMax       float64 `mapstructure:"hotend_max"`
	HotendTarget    float64 `mapstructure:"hotend_target"`
	BedMin          float64 `mapstructure:"bed_min"`
	BedMax          float64 `mapstructure:"bed_max"`
	BedTarget       float64 `mapstructure:"bed_target"`
	AxisMax         float64 `mapstructure:"axis_max"`
	DefaultResponse string  `mapstructure:"default_response"`
}

// MetricsConfig represents Prometheus exposition
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// AppConfig represents application metadata
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
	Debug       bool   `mapstructure:"debug"`
}

// Busy reply policies
const (
	BusyPolicyRetry       = "retry"
	BusyPolicyPassthrough = "passthrough"
)

// Load loads configuration from file and environment variables.
// An empty path searches for config.yaml in the working directory and ./config;
// a missing file is not an error and leaves the defaults in place.
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// Environment variable support
	v.SetEnvPrefix("PRINTER_SERVICE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", "8085")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "90s")
	v.SetDefault("server.idle_timeout", "120s")

	// Database defaults
	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "printer_service")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.max_lifetime", "5m")
	v.SetDefault("database.retention", "720h")

	// Security defaults
	v.SetDefault("security.allowed_origins", []string{"*"})

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.max_size", 100)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age", 28)
	v.SetDefault("logging.compress", true)
	v.SetDefault("logging.trace_serial", false)

	// Audit defaults
	v.SetDefault("audit.enabled", true)
	v.SetDefault("audit.output", "./logs/gcode.log")
	v.SetDefault("audit.max_size", 50)
	v.SetDefault("audit.max_backups", 5)
	v.SetDefault("audit.max_age", 28)
	v.SetDefault("audit.compress", true)

	// Printer defaults
	v.SetDefault("printer.default_port", "")
	v.SetDefault("printer.default_baud_rate", 250000)
	v.SetDefault("printer.data_bits", 8)
	v.SetDefault("printer.stop_bits", 1)
	v.SetDefault("printer.parity", "none")
	v.SetDefault("printer.null_port", "dummy")
	v.SetDefault("printer.read_timeout", "800ms")
	v.SetDefault("printer.write_timeout", "800ms")
	v.SetDefault("printer.command_timeout", "60s")
	v.SetDefault("printer.lock_timeout", "60s")
	v.SetDefault("printer.max_retries", 600)
	v.SetDefault("printer.retry_backoff", "100ms")
	v.SetDefault("printer.pipeline_depth", 1)
	v.SetDefault("printer.busy_policy", BusyPolicyRetry)
	v.SetDefault("printer.single_line_prefixes", []string{"G"})
	v.SetDefault("printer.line_reset_threshold", 0)
	v.SetDefault("printer.drain_read_timeout", "500ms")
	v.SetDefault("printer.drain_quiet_reads", 4)
	v.SetDefault("printer.drain_max_duration", "10s")

	// Dummy transport defaults
	v.SetDefault("dummy.hotend_min", 170.0)
	v.SetDefault("dummy.hotend_max", 195.0)
	v.SetDefault("dummy.hotend_target", 190.0)
	v.SetDefault("dummy.bed_min", 20.0)
	v.SetDefault("dummy.bed_max", 35.0)
	v.SetDefault("dummy.bed_target", 24.0)
	v.SetDefault("dummy.axis_max", 200.0)
	v.SetDefault("dummy.default_response", "ok\n")

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	// App defaults
	v.SetDefault("app.name", "printer-service")
	v.SetDefault("app.version", "1.0.0")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.debug", false)
}

// validate validates the configuration
func validate(config *Config) error {
	if config.Server.Port == "" {
		return fmt.Errorf("server.port is required")
	}
	if config.Database.Enabled && config.Database.Host == "" {
		return fmt.Errorf("database.host is required when database.enabled is set")
	}

	validEnvs := []string{"development", "staging", "production", "test"}
	if !slices.Contains(validEnvs, config.App.Environment) {
		return fmt.Errorf("app.environment must be one of: %v", validEnvs)
	}

	validLevels := []string{"debug", "info", "warn", "error", "fatal"}
	if !slices.Contains(validLevels, config.Logging.Level) {
		return fmt.Errorf("logging.level must be one of: %v", validLevels)
	}

	p := config.Printer
	if p.NullPort == "" {
		return fmt.Errorf("printer.null_port is required")
	}
	if p.PipelineDepth < 1 {
		return fmt.Errorf("printer.pipeline_depth must be at least 1")
	}
	if p.MaxRetries < 0 {
		return fmt.Errorf("printer.max_retries must not be negative")
	}
	if p.ReadTimeout <= 0 || p.WriteTimeout <= 0 || p.CommandTimeout <= 0 {
		return fmt.Errorf("printer read, write and command timeouts must be positive")
	}
	if p.DrainQuietReads < 1 {
		return fmt.Errorf("printer.drain_quiet_reads must be at least 1")
	}
	if p.BusyPolicy != BusyPolicyRetry && p.BusyPolicy != BusyPolicyPassthrough {
		return fmt.Errorf("printer.busy_policy must be %q or %q", BusyPolicyRetry, BusyPolicyPassthrough)
	}

	d := config.Dummy
	if d.HotendMin > d.HotendMax || d.BedMin > d.BedMax {
		return fmt.Errorf("dummy temperature bounds are inverted")
	}

	return nil
}

// GetDatabaseDSN returns the database connection string
func (c *Config) GetDatabaseDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host, c.Database.Port, c.Database.User,
		c.Database.Password, c.Database.DBName, c.Database.SSLMode)
}

// GetServerAddr returns the server address
func (c *Config) GetServerAddr() string {
	return fmt.Sprintf("%s:%s", c.Server.Host, c.Server.Port)
}

// IsProduction checks if the environment is production
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// IsDevelopment checks if the environment is development
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}

// IsDebugEnabled checks if debug mode is enabled
func (c *Config) IsDebugEnabled() bool {
	return c.App.Debug || c.IsDevelopment()
}
