// internal/model/response.go
package model

import (
	"github.com/shopspring/decimal"
)

// EventKind identifies the class of a classified firmware line
type EventKind string

const (
	KindAck             EventKind = "ack"
	KindResend          EventKind = "resend"
	KindEcho            EventKind = "echo"
	KindLineNumberError EventKind = "line_number_error"
	KindChecksumError   EventKind = "checksum_error"
	KindTemperature     EventKind = "temperature"
	KindPosition        EventKind = "position"
	KindFirmwareInfo    EventKind = "firmware_info"
	KindStartupBanner   EventKind = "startup_banner"
	KindFatalDevice     EventKind = "fatal_device"
	KindGenericError    EventKind = "error"
	KindUnrecognized    EventKind = "unrecognized"
)

// IsRetryable reports whether the kind asks for a retransmission
func (k EventKind) IsRetryable() bool {
	return k == KindResend || k == KindLineNumberError || k == KindChecksumError
}

// IsError reports whether the kind signals a firmware error line
func (k EventKind) IsError() bool {
	switch k {
	case KindLineNumberError, KindChecksumError, KindGenericError, KindFatalDevice:
		return true
	default:
		return false
	}
}

// ResponseEvent is one classified line received from the firmware
type ResponseEvent struct {
	Kind EventKind `json:"type"`
	Raw  string    `json:"raw"`
	Text string    `json:"text,omitempty"`

	// ResendLine is the line number named by a resend request; nil means the most recent line
	ResendLine  *int         `json:"resend_line,omitempty"`
	Temperature *Temperature `json:"temperature,omitempty"`
	Position    *Position    `json:"position,omitempty"`
}

// Temperature is a hotend/bed temperature report
type Temperature struct {
	Hotend       decimal.Decimal     `json:"hotend"`
	HotendTarget decimal.NullDecimal `json:"hotend_target"`
	Bed          decimal.NullDecimal `json:"bed"`
	BedTarget    decimal.NullDecimal `json:"bed_target"`
	// Acknowledged is set for "ok T:" replies which also acknowledge the command
	Acknowledged bool `json:"acknowledged"`
}

// Position is an axis position report
type Position struct {
	X decimal.Decimal `json:"x"`
	Y decimal.Decimal `json:"y"`
	Z decimal.Decimal `json:"z"`
	E decimal.Decimal `json:"e"`
}
