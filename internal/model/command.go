// internal/model/command.go
package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Command is one G-code line submitted for transmission
type Command struct {
	ID         uuid.UUID `json:"id"`
	Text       string    `json:"gcode"`
	Parse      bool      `json:"parse"`
	SingleLine bool      `json:"single_line"`

	// Set on dispatch
	Sequence         int       `json:"sequence"`
	Payload          []byte    `json:"-"`
	RetriesRemaining int       `json:"retries_remaining"`
	SentAt           time.Time `json:"sent_at"`
}

// NewCommand creates a command. Text starting with one of singleLinePrefixes
// is completed by the first non-error reply line.
func NewCommand(text string, parse bool, singleLinePrefixes []string) *Command {
	text = strings.TrimSpace(text)

	single := false
	for _, prefix := range singleLinePrefixes {
		if prefix != "" && strings.HasPrefix(strings.ToUpper(text), strings.ToUpper(prefix)) {
			single = true
			break
		}
	}

	return &Command{
		ID:         uuid.New(),
		Text:       text,
		Parse:      parse,
		SingleLine: single,
	}
}

// CommandRecord is one persisted entry of the command audit store
type CommandRecord struct {
	ID         uuid.UUID `json:"id" db:"id"`
	Port       string    `json:"port" db:"port"`
	Sequence   int       `json:"sequence" db:"sequence"`
	Gcode      string    `json:"gcode" db:"gcode"`
	Outcome    string    `json:"outcome" db:"outcome"`
	Retries    int       `json:"retries" db:"retries"`
	DurationMs int64     `json:"duration_ms" db:"duration_ms"`
	Error      *string   `json:"error,omitempty" db:"error"`
	SentAt     time.Time `json:"sent_at" db:"sent_at"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}
