// pkg/marlin/classifier.go
package marlin

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"printer-service/internal/model"
)

var (
	hotendPattern   = regexp.MustCompile(`T(\d*): ?([\d.]+) ?/?([\d.]+)?`)
	bedPattern      = regexp.MustCompile(`B: ?([\d.]+) ?/?([\d.]+)?`)
	axisPattern     = regexp.MustCompile(`(?i)([XYZE]):\s*(-?[\d.]+)`)
	trailingInteger = regexp.MustCompile(`(\d+)\s*$`)
)

// Classify maps one firmware line to a ResponseEvent. The first matching rule wins:
//
//	!!                       fatal
//	resend / rs              resend request, optional trailing line number
//	echo:                    echo
//	line number              line number error
//	checksum                 checksum error
//	ok T: / T: / ok B: / B:  temperature report
//	X:                       position report
//	FIRMWARE_NAME:           firmware info
//	start                    startup banner
//	ok                       acknowledgment
//	error                    generic error
//
// Anything else is Unrecognized. Classify never fails.
func Classify(line string) model.ResponseEvent {
	text := strings.TrimSpace(line)
	lower := strings.ToLower(text)

	ev := model.ResponseEvent{Raw: text, Text: text}

	switch {
	case strings.HasPrefix(text, "!!"):
		ev.Kind = model.KindFatalDevice

	case strings.Contains(lower, "resend") || strings.HasPrefix(text, "rs"):
		ev.Kind = model.KindResend
		if m := trailingInteger.FindStringSubmatch(text); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil {
				ev.ResendLine = &n
			}
		}

	case strings.HasPrefix(text, "echo:"):
		ev.Kind = model.KindEcho
		ev.Text = strings.TrimSpace(strings.TrimPrefix(text, "echo:"))

	case strings.Contains(lower, "line number"):
		ev.Kind = model.KindLineNumberError

	case strings.Contains(lower, "checksum"):
		ev.Kind = model.KindChecksumError

	case isTemperatureLine(text):
		ev.Kind = model.KindTemperature
		ev.Temperature = parseTemperature(text)

	case strings.HasPrefix(text, "X:"):
		ev.Kind = model.KindPosition
		ev.Position = parsePosition(text)

	case strings.Contains(text, "FIRMWARE_NAME:"):
		ev.Kind = model.KindFirmwareInfo

	case strings.HasPrefix(text, "start"):
		ev.Kind = model.KindStartupBanner

	case strings.HasPrefix(lower, "ok"):
		ev.Kind = model.KindAck

	case strings.HasPrefix(lower, "error"):
		ev.Kind = model.KindGenericError

	default:
		ev.Kind = model.KindUnrecognized
	}

	return ev
}

// IsBusy reports whether ev is a firmware keep-alive such as "echo:busy: processing"
func IsBusy(ev model.ResponseEvent) bool {
	switch ev.Kind {
	case model.KindEcho, model.KindUnrecognized:
		return strings.HasPrefix(strings.ToLower(ev.Text), "busy:")
	default:
		return false
	}
}

func isTemperatureLine(text string) bool {
	return strings.Contains(text, "ok T:") || strings.HasPrefix(text, "T:") ||
		strings.Contains(text, "ok B:") || strings.HasPrefix(text, "B:")
}

func parseTemperature(text string) *model.Temperature {
	t := &model.Temperature{
		Acknowledged: strings.HasPrefix(strings.ToLower(text), "ok"),
	}

	if m := hotendPattern.FindStringSubmatch(text); m != nil {
		if v, err := decimal.NewFromString(m[2]); err == nil {
			t.Hotend = v
		}
		t.HotendTarget = optionalDecimal(m[3])
	}

	if m := bedPattern.FindStringSubmatch(text); m != nil {
		t.Bed = optionalDecimal(m[1])
		t.BedTarget = optionalDecimal(m[2])
	}

	return t
}

func parsePosition(text string) *model.Position {
	p := &model.Position{}
	seen := make(map[byte]bool, 4)

	for _, m := range axisPattern.FindAllStringSubmatch(text, 4) {
		axis := strings.ToUpper(m[1])[0]
		if seen[axis] {
			continue
		}
		v, err := decimal.NewFromString(m[2])
		if err != nil {
			continue
		}
		seen[axis] = true

		switch axis {
		case 'X':
			p.X = v
		case 'Y':
			p.Y = v
		case 'Z':
			p.Z = v
		case 'E':
			p.E = v
		}
	}

	return p
}

func optionalDecimal(s string) decimal.NullDecimal {
	if s == "" {
		return decimal.NullDecimal{}
	}
	v, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: v, Valid: true}
}
