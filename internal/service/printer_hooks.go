// internal/service/printer_hooks.go
package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"printer-service/internal/engine"
	"printer-service/internal/metrics"
	"printer-service/internal/model"
)

const recordTimeout = 5 * time.Second

// hooks connects the engine of one connection to the audit log, the serial
// trace, metrics, the event bus and the command store
func (s *PrinterService) hooks(port string) engine.Hooks {
	return engine.Hooks{
		OnCommand: func(cmd *model.Command) {
			s.deps.Audit.LogCommand(port, cmd.Sequence, cmd.Text, cmd.SentAt)
		},
		OnSend: func(cmd *model.Command, payload []byte, retransmit bool) {
			s.trace.LogSent(cmd.Sequence, payload, retransmit)
			if s.deps.Metrics != nil {
				s.deps.Metrics.ObserveSend(payload)
			}
			s.publish(model.EventSerialTrace, port, model.SerialTraceData{
				Direction:  "tx",
				Sequence:   cmd.Sequence,
				Line:       string(payload),
				Retransmit: retransmit,
			})
		},
		OnReceive: func(line string, ev model.ResponseEvent) {
			s.trace.LogReceived(line, string(ev.Kind))
			if s.deps.Metrics != nil {
				s.deps.Metrics.ObserveLine(ev)
			}
			s.publish(model.EventSerialTrace, port, model.SerialTraceData{Direction: "rx", Line: line})
			s.publish(model.EventResponse, port, ev)
		},
		OnRetry: func(cmd *model.Command, ev model.ResponseEvent) {
			if s.deps.Metrics != nil {
				s.deps.Metrics.ObserveRetry(ev)
			}
		},
		OnComplete: func(res *engine.Result, err error) {
			if s.deps.Metrics != nil {
				s.deps.Metrics.ObserveCommand(res, err)
			}
			if res == nil || res.Command == nil {
				return
			}

			data := model.CommandCompletedData{
				CommandID:  res.Command.ID,
				Gcode:      res.Command.Text,
				Sequence:   res.Command.Sequence,
				Retries:    res.Retries,
				DurationMS: res.Duration.Milliseconds(),
				Events:     res.Events,
			}
			if err != nil {
				data.Error = err.Error()
			}
			s.publish(model.EventCommandCompleted, port, data)

			if s.deps.Repository != nil {
				go s.record(newCommandRecord(port, res, err))
			}
		},
	}
}

// record persists a command outcome off the engine goroutine
func (s *PrinterService) record(rec *model.CommandRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()

	if err := s.deps.Repository.Create(ctx, rec); err != nil {
		s.logger.Warn("Failed to persist command record",
			zap.String("gcode", rec.Gcode),
			zap.Error(err),
		)
	}
}

func newCommandRecord(port string, res *engine.Result, err error) *model.CommandRecord {
	rec := &model.CommandRecord{
		ID:         uuid.New(),
		Port:       port,
		Sequence:   res.Command.Sequence,
		Gcode:      res.Command.Text,
		Outcome:    metrics.Outcome(err),
		Retries:    res.Retries,
		DurationMs: res.Duration.Milliseconds(),
		SentAt:     res.Command.SentAt,
	}
	if err != nil {
		msg := err.Error()
		rec.Error = &msg
	}
	return rec
}

// PruneCommandLog deletes stored command records older than retention
func (s *PrinterService) PruneCommandLog(ctx context.Context, retention time.Duration) (int64, error) {
	if s.deps.Repository == nil {
		return 0, errors.New("command store disabled")
	}
	return s.deps.Repository.DeleteOlderThan(ctx, time.Now().Add(-retention))
}

// RecentCommands returns the newest stored commands for the current port
func (s *PrinterService) RecentCommands(ctx context.Context, limit int) ([]*model.CommandRecord, error) {
	if s.deps.Repository == nil {
		return []*model.CommandRecord{}, nil
	}
	s.mu.Lock()
	port := s.port
	s.mu.Unlock()
	return s.deps.Repository.ListRecent(ctx, port, limit)
}
