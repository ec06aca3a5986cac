// internal/engine/errors.go
package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrReceiveTimeout is returned when no acknowledgment arrived within the
	// command timeout or the retry budget ran out on silence
	ErrReceiveTimeout = errors.New("receive timeout")
	// ErrTooManyRetries is returned when resend, line number or checksum
	// errors exhausted the retry budget
	ErrTooManyRetries = errors.New("too many retries")
	// ErrFatalDevice is returned when the firmware reported a fatal error ("!!").
	// The queue refuses further commands until the next connect.
	ErrFatalDevice = errors.New("fatal device error")
	// ErrLockTimeout is returned when a command could not be admitted in time
	ErrLockTimeout = errors.New("timed out waiting for the send lock")
	// ErrEmptyCommand is returned for blank command text
	ErrEmptyCommand = errors.New("empty command")
)

// CommandError reports a failed command together with its text and line number
type CommandError struct {
	Text     string
	Sequence int
	Err      error
}

func (e *CommandError) Error() string {
	if e.Sequence > 0 {
		return fmt.Sprintf("command %q (N%d): %v", e.Text, e.Sequence, e.Err)
	}
	return fmt.Sprintf("command %q: %v", e.Text, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}
