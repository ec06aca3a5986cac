// internal/engine/retry.go
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"

	"printer-service/internal/model"
	"printer-service/internal/protocol"
	"printer-service/pkg/marlin"
)

// RetryEngine drives commands over a transport until each one is acknowledged,
// fails, or times out. Reads are owned by whichever waiting command holds the
// read token; every line read is routed to the command it belongs to.
type RetryEngine struct {
	transport protocol.Transport
	opts      Options
	hooks     Hooks
	logger    *zap.Logger

	writeMu  sync.Mutex
	readTok  chan struct{}
	inflight *xsync.MapOf[int, *dispatch]

	// owedAcks counts "ok" lines still due for single-line commands that
	// completed on an earlier line
	owedAcks atomic.Int32
}

// NewRetryEngine creates an engine for an open transport
func NewRetryEngine(transport protocol.Transport, opts Options, hooks Hooks, logger *zap.Logger) *RetryEngine {
	return &RetryEngine{
		transport: transport,
		opts:      opts.withDefaults(),
		hooks:     hooks,
		logger:    logger.With(zap.String("component", "engine")),
		readTok:   make(chan struct{}, 1),
		inflight:  xsync.NewMapOf[int, *dispatch](),
	}
}

// InFlight returns the number of commands awaiting acknowledgment
func (e *RetryEngine) InFlight() int {
	return e.inflight.Size()
}

// begin encodes cmd under line number seq and writes it. The caller serializes
// calls to begin so that line numbers reach the wire in order.
func (e *RetryEngine) begin(ctx context.Context, cmd *model.Command, seq int) (*dispatch, error) {
	cmd.Sequence = seq
	if e.opts.Verbatim {
		cmd.Payload = marlin.EncodeRaw(cmd.Text)
	} else {
		cmd.Payload = marlin.Encode(seq, cmd.Text)
	}
	cmd.SentAt = time.Now()

	d := newDispatch(cmd, e.opts.MaxRetries)
	e.track(d)

	if err := e.write(ctx, d, false); err != nil {
		e.untrack(d)
		close(d.done)
		cerr := &CommandError{Text: cmd.Text, Sequence: seq, Err: err}
		e.hooks.complete(d.result(), cerr)
		return nil, cerr
	}

	e.hooks.command(cmd)
	return d, nil
}

// await reads and handles replies until d reaches a terminal outcome
func (e *RetryEngine) await(ctx context.Context, d *dispatch) (res *Result, err error) {
	defer func() {
		e.untrack(d)
		close(d.done)
		res = d.result()
		if err != nil {
			err = &CommandError{Text: d.cmd.Text, Sequence: d.cmd.Sequence, Err: err}
		}
		e.hooks.complete(res, err)
	}()

	for {
		// Deliveries already routed to d take priority over reading
		select {
		case dl := <-d.inbox:
			if done, herr := e.handle(ctx, d, dl); done {
				return nil, herr
			}
			continue
		default:
		}

		select {
		case dl := <-d.inbox:
			if done, herr := e.handle(ctx, d, dl); done {
				return nil, herr
			}

		case e.readTok <- struct{}{}:
			own, silent, rerr := e.readOnce(ctx, d)
			<-e.readTok

			if rerr != nil {
				return nil, rerr
			}
			if silent {
				if !d.spend() {
					return nil, ErrReceiveTimeout
				}
				continue
			}
			if own != nil {
				if done, herr := e.handle(ctx, d, *own); done {
					return nil, herr
				}
			}

		case <-ctx.Done():
			return nil, timeoutErr(ctx)
		}
	}
}

// readOnce reads one line on behalf of reader, routes it, and returns the
// delivery addressed to reader, if any
func (e *RetryEngine) readOnce(ctx context.Context, reader *dispatch) (*delivery, bool, error) {
	line, err := e.transport.ReadLine(ctx, e.opts.ReadTimeout)
	if err != nil {
		if ctx.Err() != nil {
			return nil, false, timeoutErr(ctx)
		}
		if errors.Is(err, protocol.ErrIOFailure) {
			return nil, false, err
		}
		return nil, false, fmt.Errorf("%w: %v", protocol.ErrIOFailure, err)
	}
	if line == "" {
		return nil, true, nil
	}

	ev := marlin.Classify(line)
	e.hooks.receive(line, ev)

	targets := e.route(ev)
	if len(targets) == 0 {
		e.logger.Debug("Unsolicited line", zap.String("line", line))
		return nil, false, nil
	}

	var own *delivery
	for _, r := range targets {
		if r.target == reader {
			dl := r.dl
			own = &dl
			continue
		}
		select {
		case r.target.inbox <- r.dl:
		case <-r.target.done:
		}
	}
	return own, false, nil
}

// handle applies one delivery to d and reports whether d is finished
func (e *RetryEngine) handle(ctx context.Context, d *dispatch, dl delivery) (bool, error) {
	ev := dl.ev

	switch {
	case ev.Kind == model.KindFatalDevice:
		d.events = append(d.events, ev)
		e.logger.Error("Firmware reported a fatal error",
			zap.Int("sequence", d.cmd.Sequence),
			zap.String("line", ev.Raw),
		)
		return true, ErrFatalDevice

	case ev.Kind.IsRetryable():
		if !d.spend() {
			return true, ErrTooManyRetries
		}
		d.retries++
		e.hooks.retry(d.cmd, ev)

		if dl.retransmit {
			e.logger.Debug("Retransmitting",
				zap.Int("sequence", d.cmd.Sequence),
				zap.String("reason", string(ev.Kind)),
			)
			if err := e.write(ctx, d, true); err != nil {
				return true, err
			}
		}
		return e.backoff(ctx)

	case dl.busy:
		d.events = append(d.events, ev)
		if !d.spend() {
			return true, ErrTooManyRetries
		}
		d.retries++
		e.hooks.retry(d.cmd, ev)
		return e.backoff(ctx)
	}

	switch ev.Kind {
	case model.KindTemperature:
		d.lastTemp = ev.Temperature
	case model.KindPosition:
		d.lastPos = ev.Position
	}

	if ev.Kind == model.KindAck {
		d.events = append(d.events, d.fold(ev))
		return true, nil
	}

	d.events = append(d.events, ev)

	// "ok T:..." acknowledges the command as well as reporting temperatures
	if ev.Kind == model.KindTemperature && ev.Temperature != nil && ev.Temperature.Acknowledged {
		d.events = append(d.events, d.fold(model.ResponseEvent{
			Kind: model.KindAck,
			Raw:  ev.Raw,
			Text: "ok",
		}))
	}

	return dl.terminal, nil
}

// fold attaches the latest temperature and position to an acknowledgment
// when the command asked for parsed results
func (d *dispatch) fold(ack model.ResponseEvent) model.ResponseEvent {
	if d.cmd.Parse {
		ack.Temperature = d.lastTemp
		ack.Position = d.lastPos
	}
	return ack
}

func (e *RetryEngine) write(ctx context.Context, d *dispatch, retransmit bool) error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	if err := e.transport.Write(ctx, d.cmd.Payload); err != nil {
		switch {
		case errors.Is(err, protocol.ErrWriteTimeout), errors.Is(err, protocol.ErrIOFailure):
			return err
		case ctx.Err() != nil:
			return timeoutErr(ctx)
		default:
			return fmt.Errorf("%w: %v", protocol.ErrIOFailure, err)
		}
	}

	e.hooks.send(d.cmd, d.cmd.Payload, retransmit)
	return nil
}

func (e *RetryEngine) backoff(ctx context.Context) (bool, error) {
	if e.opts.RetryBackoff <= 0 {
		return false, nil
	}

	timer := time.NewTimer(e.opts.RetryBackoff)
	defer timer.Stop()

	select {
	case <-timer.C:
		return false, nil
	case <-ctx.Done():
		return true, timeoutErr(ctx)
	}
}

func timeoutErr(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ErrReceiveTimeout
	}
	return ctx.Err()
}
