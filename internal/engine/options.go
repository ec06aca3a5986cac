// internal/engine/options.go
package engine

import (
	"time"

	"printer-service/internal/config"
)

// BusyPolicy decides how "busy: processing" keep-alives are treated
type BusyPolicy string

const (
	// BusyRetry consumes one retry and keeps waiting, without retransmitting
	BusyRetry BusyPolicy = config.BusyPolicyRetry
	// BusyPassthrough treats the keep-alive as a plain echo line
	BusyPassthrough BusyPolicy = config.BusyPolicyPassthrough
)

// Options configures a RetryEngine and its CommandQueue
type Options struct {
	ReadTimeout        time.Duration
	CommandTimeout     time.Duration
	LockTimeout        time.Duration
	RetryBackoff       time.Duration
	MaxRetries         int
	PipelineDepth      int
	BusyPolicy         BusyPolicy
	SingleLinePrefixes []string
	LineResetThreshold int
	// Verbatim sends text without line number or checksum
	Verbatim bool
}

// DefaultOptions returns the engine defaults
func DefaultOptions() Options {
	return Options{
		ReadTimeout:        800 * time.Millisecond,
		CommandTimeout:     60 * time.Second,
		LockTimeout:        60 * time.Second,
		RetryBackoff:       100 * time.Millisecond,
		MaxRetries:         600,
		PipelineDepth:      1,
		BusyPolicy:         BusyRetry,
		SingleLinePrefixes: []string{"G"},
	}
}

// OptionsFromConfig maps printer configuration to engine options
func OptionsFromConfig(cfg *config.PrinterConfig) Options {
	return Options{
		ReadTimeout:        cfg.ReadTimeout,
		CommandTimeout:     cfg.CommandTimeout,
		LockTimeout:        cfg.LockTimeout,
		RetryBackoff:       cfg.RetryBackoff,
		MaxRetries:         cfg.MaxRetries,
		PipelineDepth:      cfg.PipelineDepth,
		BusyPolicy:         BusyPolicy(cfg.BusyPolicy),
		SingleLinePrefixes: cfg.SingleLinePrefixes,
		LineResetThreshold: cfg.LineResetThreshold,
	}.withDefaults()
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = def.ReadTimeout
	}
	if o.CommandTimeout <= 0 {
		o.CommandTimeout = def.CommandTimeout
	}
	if o.LockTimeout <= 0 {
		o.LockTimeout = def.LockTimeout
	}
	if o.RetryBackoff < 0 {
		o.RetryBackoff = 0
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.PipelineDepth < 1 {
		o.PipelineDepth = 1
	}
	if o.BusyPolicy == "" {
		o.BusyPolicy = def.BusyPolicy
	}
	return o
}
