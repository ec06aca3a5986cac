// internal/protocol/dummy_connection.go
package protocol

import (
	"context"
	"fmt"
	"math/rand/v2"
	"regexp"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"printer-service/internal/model"
)

// DummyResponse maps written lines matching Pattern to a reply. Generate takes
// precedence over Reply when set. A reply may hold several newline-separated lines.
type DummyResponse struct {
	Pattern  *regexp.Regexp
	Reply    string
	Generate func(line string) string
}

// DummyConfig configures an in-process firmware double
type DummyConfig struct {
	Port string
	// Responses are tried in order; the first match wins
	Responses []DummyResponse
	// DefaultReply answers writes no pattern matched
	DefaultReply string
	// Banner is queued when the port is opened
	Banner string
}

// DummyBounds bounds the values produced by the default reply table
type DummyBounds struct {
	HotendMin    float64
	HotendMax    float64
	HotendTarget float64
	BedMin       float64
	BedMax       float64
	BedTarget    float64
	AxisMax      float64
}

// DummyConnection implements Transport without hardware. Opening always succeeds.
type DummyConnection struct {
	config DummyConfig
	logger *zap.Logger

	mu      sync.Mutex
	isOpen  bool
	lines   []string
	written []string
	stats   model.TransportStats
	notify  chan struct{}
}

// NewDummyConnection creates a dummy transport
func NewDummyConnection(config DummyConfig, logger *zap.Logger) *DummyConnection {
	if config.DefaultReply == "" {
		config.DefaultReply = "ok\n"
	}
	return &DummyConnection{
		config: config,
		logger: logger.With(
			zap.String("transport", "dummy"),
			zap.String("port", config.Port),
		),
		notify: make(chan struct{}, 1),
	}
}

// Open marks the transport open and queues the banner
func (dc *DummyConnection) Open(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	dc.mu.Lock()
	defer dc.mu.Unlock()

	if dc.isOpen {
		return nil
	}
	dc.isOpen = true
	dc.lines = nil
	dc.stats.IsConnected = true
	dc.stats.LastActivity = time.Now()
	dc.enqueueLocked(dc.config.Banner)

	dc.logger.Debug("Dummy transport opened")
	return nil
}

// Close marks the transport closed
func (dc *DummyConnection) Close() error {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	dc.isOpen = false
	dc.lines = nil
	dc.stats.IsConnected = false

	// wake a blocked reader so it sees the close
	select {
	case dc.notify <- struct{}{}:
	default:
	}
	return nil
}

// IsOpen returns whether the transport is open
func (dc *DummyConnection) IsOpen() bool {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	return dc.isOpen
}

// PortName returns the configured port name
func (dc *DummyConnection) PortName() string {
	return dc.config.Port
}

// Stats returns a snapshot of the transport statistics
func (dc *DummyConnection) Stats() model.TransportStats {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	return dc.stats
}

// Write records data and queues the reply of the first matching pattern
func (dc *DummyConnection) Write(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	line := strings.TrimRight(string(data), "\r\n")

	dc.mu.Lock()
	defer dc.mu.Unlock()

	if !dc.isOpen {
		return ErrNotOpen
	}

	dc.written = append(dc.written, string(data))
	dc.stats.BytesWritten += int64(len(data))
	dc.stats.LinesWritten++
	dc.stats.LastActivity = time.Now()

	dc.enqueueLocked(dc.replyFor(line))
	return nil
}

// ReadLine returns the next queued reply line, or "" once timeout elapses
func (dc *DummyConnection) ReadLine(ctx context.Context, timeout time.Duration) (string, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		dc.mu.Lock()
		if !dc.isOpen {
			dc.mu.Unlock()
			return "", ErrNotOpen
		}
		if len(dc.lines) > 0 {
			line := dc.lines[0]
			dc.lines = dc.lines[1:]
			dc.stats.BytesRead += int64(len(line) + 1)
			dc.stats.LinesRead++
			dc.mu.Unlock()
			return line, nil
		}
		dc.mu.Unlock()

		select {
		case <-dc.notify:
		case <-timer.C:
			return "", nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

// Inject queues unsolicited firmware output
func (dc *DummyConnection) Inject(text string) {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	dc.enqueueLocked(text)
}

// Written returns every payload written so far
func (dc *DummyConnection) Written() []string {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	return append([]string(nil), dc.written...)
}

func (dc *DummyConnection) replyFor(line string) string {
	for _, r := range dc.config.Responses {
		if r.Pattern == nil || !r.Pattern.MatchString(line) {
			continue
		}
		if r.Generate != nil {
			return r.Generate(line)
		}
		return r.Reply
	}
	return dc.config.DefaultReply
}

func (dc *DummyConnection) enqueueLocked(reply string) {
	if reply == "" {
		return
	}
	for _, l := range strings.Split(strings.TrimRight(reply, "\n"), "\n") {
		l = strings.TrimRight(l, "\r")
		if strings.TrimSpace(l) == "" {
			continue
		}
		dc.lines = append(dc.lines, l)
	}
	select {
	case dc.notify <- struct{}{}:
	default:
	}
}

// DefaultDummyResponses is the reply table of the null endpoint
func DefaultDummyResponses(b DummyBounds) []DummyResponse {
	return []DummyResponse{
		{
			Pattern: regexp.MustCompile(`^N?[0-9]*M105`),
			Generate: func(string) string {
				return fmt.Sprintf("ok T:%.2f /%.1f B:%.2f /%.1f @:0 B@:0\n",
					between(b.HotendMin, b.HotendMax), b.HotendTarget,
					between(b.BedMin, b.BedMax), b.BedTarget)
			},
		},
		{
			Pattern: regexp.MustCompile(`^N?[0-9]*M114`),
			Generate: func(string) string {
				return fmt.Sprintf("X:%.2f Y:%.2f Z:%.2f E:%.2f Count X: 2.00 Y:3.00 Z:4.00\nok\n",
					between(0, b.AxisMax), between(0, b.AxisMax),
					between(0, b.AxisMax), between(0, b.AxisMax))
			},
		},
		{
			Pattern: regexp.MustCompile(`^N?[0-9]*M115`),
			Reply:   "FIRMWARE_NAME:DUMMY PROTOCOL_VERSION:1.0 MACHINE_TYPE:dummy EXTRUDER_COUNT:1\nok\n",
		},
		{Pattern: regexp.MustCompile(`^N?[0-9]*G`), Reply: "ok\n"},
		{Pattern: regexp.MustCompile(`^N?[0-9]*M[0-9]+`), Reply: "ok\n"},
		{Pattern: regexp.MustCompile(`^XXX`), Reply: "!!\n"},
	}
}

// Sequence returns a generator that replies with each reply in turn and then
// keeps repeating the last one
func Sequence(replies ...string) func(string) string {
	var mu sync.Mutex
	i := 0
	return func(string) string {
		mu.Lock()
		defer mu.Unlock()
		if len(replies) == 0 {
			return ""
		}
		r := replies[min(i, len(replies)-1)]
		i++
		return r
	}
}

func between(lo, hi float64) float64 {
	if hi <= lo {
		return lo
	}
	return lo + rand.Float64()*(hi-lo)
}
