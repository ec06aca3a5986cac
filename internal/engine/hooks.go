// internal/engine/hooks.go
package engine

import (
	"time"

	"printer-service/internal/model"
)

// Result is the outcome of one command
type Result struct {
	Command  *model.Command        `json:"command"`
	Events   []model.ResponseEvent `json:"events"`
	Retries  int                   `json:"retries"`
	Duration time.Duration         `json:"duration"`
}

// Hooks observe the engine. Every hook is optional and runs synchronously on
// the goroutine that triggered it, so implementations must not block.
type Hooks struct {
	// OnCommand runs once per command after its first successful write
	OnCommand func(cmd *model.Command)
	// OnSend runs for every payload written, retransmissions included
	OnSend func(cmd *model.Command, payload []byte, retransmit bool)
	// OnReceive runs for every non-empty line read
	OnReceive func(line string, ev model.ResponseEvent)
	// OnRetry runs each time a reply consumes retry budget
	OnRetry func(cmd *model.Command, ev model.ResponseEvent)
	// OnComplete runs once per command with its terminal outcome
	OnComplete func(res *Result, err error)
}

func (h Hooks) command(cmd *model.Command) {
	if h.OnCommand != nil {
		h.OnCommand(cmd)
	}
}

func (h Hooks) send(cmd *model.Command, payload []byte, retransmit bool) {
	if h.OnSend != nil {
		h.OnSend(cmd, payload, retransmit)
	}
}

func (h Hooks) receive(line string, ev model.ResponseEvent) {
	if h.OnReceive != nil {
		h.OnReceive(line, ev)
	}
}

func (h Hooks) retry(cmd *model.Command, ev model.ResponseEvent) {
	if h.OnRetry != nil {
		h.OnRetry(cmd, ev)
	}
}

func (h Hooks) complete(res *Result, err error) {
	if h.OnComplete != nil {
		h.OnComplete(res, err)
	}
}
