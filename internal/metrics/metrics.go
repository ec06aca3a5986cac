// internal/metrics/metrics.go
package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"printer-service/internal/engine"
	"printer-service/internal/model"
	"printer-service/internal/protocol"
)

// Collector holds the protocol engine metrics
type Collector struct {
	commands        *prometheus.CounterVec
	commandDuration prometheus.Histogram
	retries         *prometheus.CounterVec
	lines           *prometheus.CounterVec
	bytesSent       prometheus.Counter
	state           *prometheus.GaugeVec
}

var states = []model.ConnectionState{
	model.StateClosed,
	model.StateConnecting,
	model.StateConnected,
	model.StateBusy,
	model.StateError,
}

// NewCollector creates the collectors and registers them with reg
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		commands: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "printer_commands_total",
				Help: "G-code commands by terminal outcome",
			},
			[]string{"outcome"},
		),
		commandDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "printer_command_duration_seconds",
				Help:    "Time from first write to terminal outcome",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
		),
		retries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "printer_command_retries_total",
				Help: "Replies that consumed retry budget, by reply kind",
			},
			[]string{"kind"},
		),
		lines: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "printer_lines_received_total",
				Help: "Firmware lines received, by classification",
			},
			[]string{"kind"},
		),
		bytesSent: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "printer_bytes_sent_total",
				Help: "Payload bytes written to the device, retransmissions included",
			},
		),
		state: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "printer_connection_state",
				Help: "1 for the current connection state, 0 otherwise",
			},
			[]string{"state"},
		),
	}

	reg.MustRegister(c.commands, c.commandDuration, c.retries, c.lines, c.bytesSent, c.state)
	c.SetState(model.StateClosed)
	return c
}

// ObserveSend records one written payload
func (c *Collector) ObserveSend(payload []byte) {
	c.bytesSent.Add(float64(len(payload)))
}

// ObserveLine records one received line
func (c *Collector) ObserveLine(ev model.ResponseEvent) {
	c.lines.WithLabelValues(string(ev.Kind)).Inc()
}

// ObserveRetry records one reply that consumed retry budget
func (c *Collector) ObserveRetry(ev model.ResponseEvent) {
	c.retries.WithLabelValues(string(ev.Kind)).Inc()
}

// ObserveCommand records a terminal outcome
func (c *Collector) ObserveCommand(res *engine.Result, err error) {
	if res != nil {
		c.commandDuration.Observe(res.Duration.Seconds())
	}
	c.commands.WithLabelValues(Outcome(err)).Inc()
}

// SetState marks state as the current connection state
func (c *Collector) SetState(state model.ConnectionState) {
	for _, s := range states {
		v := 0.0
		if s == state {
			v = 1
		}
		c.state.WithLabelValues(string(s)).Set(v)
	}
}

// Outcome maps a command error to a metric label
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, engine.ErrFatalDevice):
		return "fatal"
	case errors.Is(err, engine.ErrTooManyRetries):
		return "too_many_retries"
	case errors.Is(err, engine.ErrReceiveTimeout):
		return "receive_timeout"
	case errors.Is(err, protocol.ErrWriteTimeout):
		return "write_timeout"
	case errors.Is(err, protocol.ErrIOFailure):
		return "io_failure"
	default:
		return "error"
	}
}
