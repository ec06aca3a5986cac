// internal/engine/queue.go
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"printer-service/internal/model"
	"printer-service/internal/protocol"
	"printer-service/pkg/marlin"
)

// CommandQueue admits commands onto one connection. It owns the line number
// counter, which starts at 1, and allows at most PipelineDepth commands to
// await acknowledgment at once.
type CommandQueue struct {
	engine *RetryEngine
	opts   Options
	logger *zap.Logger

	window *semaphore.Weighted
	seqMu  sync.Mutex
	next   int

	halted  atomic.Bool
	sent    atomic.Int64
	retries atomic.Int64
}

// NewCommandQueue creates a queue and its engine for an open transport
func NewCommandQueue(transport protocol.Transport, opts Options, hooks Hooks, logger *zap.Logger) *CommandQueue {
	opts = opts.withDefaults()
	return &CommandQueue{
		engine: NewRetryEngine(transport, opts, hooks, logger),
		opts:   opts,
		logger: logger.With(zap.String("component", "queue")),
		window: semaphore.NewWeighted(int64(opts.PipelineDepth)),
		next:   1,
	}
}

// Send transmits text and waits for its terminal outcome. The returned result
// is non-nil whenever the command was written, also on error.
func (q *CommandQueue) Send(ctx context.Context, text string, parse bool) (*Result, error) {
	cmd := model.NewCommand(text, parse, q.opts.SingleLinePrefixes)
	if cmd.Text == "" {
		return nil, &CommandError{Text: text, Err: ErrEmptyCommand}
	}
	if q.halted.Load() {
		return nil, &CommandError{Text: cmd.Text, Err: ErrFatalDevice}
	}

	if q.needsLineReset() {
		if _, err := q.SetLineNumber(ctx, 1); err != nil {
			return nil, fmt.Errorf("line number reset before %q: %w", cmd.Text, err)
		}
	}

	if err := q.acquire(ctx, 1); err != nil {
		return nil, &CommandError{Text: cmd.Text, Err: err}
	}
	defer q.window.Release(1)

	if q.halted.Load() {
		return nil, &CommandError{Text: cmd.Text, Err: ErrFatalDevice}
	}

	return q.execute(ctx, cmd, -1)
}

// SetLineNumber makes n the next line number. The whole window is drained
// first; the firmware is told with M110 unless the queue sends verbatim.
func (q *CommandQueue) SetLineNumber(ctx context.Context, n int) (*Result, error) {
	if n < 1 {
		return nil, fmt.Errorf("line number must be at least 1, got %d", n)
	}

	if err := q.acquire(ctx, int64(q.opts.PipelineDepth)); err != nil {
		return nil, err
	}
	defer q.window.Release(int64(q.opts.PipelineDepth))

	if q.opts.Verbatim {
		q.seqMu.Lock()
		q.next = n
		q.seqMu.Unlock()
		return nil, nil
	}

	cmd := model.NewCommand(marlin.SetLineNumber(n), false, nil)
	return q.execute(ctx, cmd, n-1)
}

// NextLineNumber returns the line number the next command will carry
func (q *CommandQueue) NextLineNumber() int {
	q.seqMu.Lock()
	defer q.seqMu.Unlock()
	return q.next
}

// CommandsSent returns the number of commands that reached a terminal outcome
func (q *CommandQueue) CommandsSent() int64 {
	return q.sent.Load()
}

// Retries returns the retry budget consumed across all commands
func (q *CommandQueue) Retries() int64 {
	return q.retries.Load()
}

// Halted reports whether a fatal firmware error stopped the queue
func (q *CommandQueue) Halted() bool {
	return q.halted.Load()
}

// InFlight returns the number of commands awaiting acknowledgment
func (q *CommandQueue) InFlight() int {
	return q.engine.InFlight()
}

// execute writes cmd and awaits it. A non-negative fixed line number overrides
// the counter; the counter then continues after it.
func (q *CommandQueue) execute(ctx context.Context, cmd *model.Command, fixed int) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, q.opts.CommandTimeout)
	defer cancel()

	q.seqMu.Lock()
	seq := q.next
	if fixed >= 0 {
		seq = fixed
	}
	d, err := q.engine.begin(ctx, cmd, seq)
	if err == nil {
		q.next = seq + 1
	}
	q.seqMu.Unlock()

	if err != nil {
		return nil, err
	}

	res, err := q.engine.await(ctx, d)
	q.sent.Add(1)
	q.retries.Add(int64(res.Retries))

	if errors.Is(err, ErrFatalDevice) {
		q.halted.Store(true)
		q.logger.Error("Queue halted after fatal firmware error", zap.String("gcode", cmd.Text))
	}

	return res, err
}

func (q *CommandQueue) acquire(ctx context.Context, weight int64) error {
	ctx, cancel := context.WithTimeout(ctx, q.opts.LockTimeout)
	defer cancel()

	if err := q.window.Acquire(ctx, weight); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return ErrLockTimeout
		}
		return err
	}
	return nil
}

func (q *CommandQueue) needsLineReset() bool {
	if q.opts.LineResetThreshold <= 0 {
		return false
	}
	q.seqMu.Lock()
	defer q.seqMu.Unlock()
	return q.next > q.opts.LineResetThreshold
}
