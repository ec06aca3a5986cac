// internal/engine/inflight.go
package engine

import (
	"time"

	"go.uber.org/zap"

	"printer-service/internal/model"
	"printer-service/pkg/marlin"
)

// delivery is a classified line addressed to one in-flight command
type delivery struct {
	ev         model.ResponseEvent
	terminal   bool
	retransmit bool
	busy       bool
}

// dispatch tracks one command between its first write and its terminal outcome.
// Only the goroutine awaiting the command touches its mutable fields.
type dispatch struct {
	cmd   *model.Command
	inbox chan delivery
	done  chan struct{}

	events   []model.ResponseEvent
	retries  int
	lastTemp *model.Temperature
	lastPos  *model.Position
	started  time.Time
}

func newDispatch(cmd *model.Command, budget int) *dispatch {
	cmd.RetriesRemaining = budget
	return &dispatch{
		cmd:     cmd,
		inbox:   make(chan delivery, 16),
		done:    make(chan struct{}),
		started: time.Now(),
	}
}

// spend consumes one unit of the command's retry budget
func (d *dispatch) spend() bool {
	if d.cmd.RetriesRemaining <= 0 {
		return false
	}
	d.cmd.RetriesRemaining--
	return true
}

func (d *dispatch) result() *Result {
	return &Result{
		Command:  d.cmd,
		Events:   d.events,
		Retries:  d.retries,
		Duration: time.Since(d.started),
	}
}

type routed struct {
	target *dispatch
	dl     delivery
}

func (e *RetryEngine) track(d *dispatch) {
	e.inflight.Store(d.cmd.Sequence, d)
}

// untrack removes d if it is still registered under its line number
func (e *RetryEngine) untrack(d *dispatch) bool {
	removed := false
	e.inflight.Compute(d.cmd.Sequence, func(old *dispatch, loaded bool) (*dispatch, bool) {
		if loaded && old == d {
			removed = true
			return nil, true
		}
		return old, !loaded
	})
	return removed
}

// oldest returns the in-flight command with the lowest line number
func (e *RetryEngine) oldest() *dispatch {
	var found *dispatch
	e.inflight.Range(func(seq int, d *dispatch) bool {
		if found == nil || seq < found.cmd.Sequence {
			found = d
		}
		return true
	})
	return found
}

// route decides which in-flight command a line belongs to. Terminal lines
// unregister their target here so the next line cannot be routed to it.
//
// Acknowledgments and informational lines belong to the oldest outstanding
// command. A resend belongs to the line it names. A fatal line ends every
// outstanding command.
func (e *RetryEngine) route(ev model.ResponseEvent) []routed {
	if ev.Kind == model.KindFatalDevice {
		var all []routed
		e.inflight.Range(func(_ int, d *dispatch) bool {
			all = append(all, routed{target: d, dl: delivery{ev: ev, terminal: true}})
			return true
		})
		for _, r := range all {
			e.untrack(r.target)
		}
		return all
	}

	// A single-line command that ended early still has its "ok" coming
	if ev.Kind == model.KindAck && e.owedAcks.Load() > 0 {
		e.owedAcks.Add(-1)
		e.logger.Debug("Late acknowledgment dropped", zap.String("line", ev.Raw))
		return nil
	}

	single := e.opts.PipelineDepth == 1
	oldest := e.oldest()

	switch {
	case ev.Kind == model.KindResend:
		target := oldest
		retransmit := true
		if ev.ResendLine != nil {
			if d, ok := e.inflight.Load(*ev.ResendLine); ok {
				target = d
			} else if !single {
				// Named line is not outstanding; charge the oldest without resending
				retransmit = false
			}
		}
		if target == nil {
			return nil
		}
		return []routed{{target: target, dl: delivery{ev: ev, retransmit: retransmit}}}

	case ev.Kind == model.KindLineNumberError || ev.Kind == model.KindChecksumError:
		if oldest == nil {
			return nil
		}
		// With several lines outstanding only an explicit resend names the line to repeat
		return []routed{{target: oldest, dl: delivery{ev: ev, retransmit: single}}}
	}

	if oldest == nil {
		return nil
	}

	dl := delivery{ev: ev}
	switch {
	case ev.Kind == model.KindAck:
		dl.terminal = true
	case ev.Kind == model.KindTemperature && ev.Temperature != nil && ev.Temperature.Acknowledged:
		dl.terminal = true
	case e.opts.BusyPolicy == BusyRetry && marlin.IsBusy(ev):
		dl.busy = true
	case oldest.cmd.SingleLine && !ev.Kind.IsError():
		dl.terminal = true
		if !e.opts.Verbatim {
			e.owedAcks.Add(1)
		}
	}

	if dl.terminal {
		e.untrack(oldest)
	}
	return []routed{{target: oldest, dl: dl}}
}
