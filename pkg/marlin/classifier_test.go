package marlin

import (
	"testing"

	"github.com/stretchr/testify/require"

	"printer-service/internal/model"
)

func TestClassifyKinds(t *testing.T) {
	tests := []struct {
		line string
		kind model.EventKind
	}{
		{"ok", model.KindAck},
		{"OK\r\n", model.KindAck},
		{"ok N12 P15 B3", model.KindAck},
		{"!! kill() called", model.KindFatalDevice},
		{"Resend: 5", model.KindResend},
		{"rs N5", model.KindResend},
		{"echo:SD card ok", model.KindEcho},
		{"Error:Line Number is not Last Line Number+1, Last Line: 4", model.KindLineNumberError},
		{"Error:checksum mismatch, Last Line: 4", model.KindChecksumError},
		{"ok T:201.3 /210.0 B:60.0 /60.0 @:0 B@:0", model.KindTemperature},
		{"T:190.0 /190.0", model.KindTemperature},
		{"B:24.5 /24.0", model.KindTemperature},
		{"X:10.00 Y:20.00 Z:5.00 E:0.00 Count X: 800 Y:1600 Z:2000", model.KindPosition},
		{"FIRMWARE_NAME:Marlin 2.1.2 SOURCE_CODE_URL:github.com/MarlinFirmware/Marlin", model.KindFirmwareInfo},
		{"start", model.KindStartupBanner},
		{"Error:Printer halted", model.KindGenericError},
		{"wait", model.KindUnrecognized},
		{"", model.KindUnrecognized},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			require.Equal(t, tt.kind, Classify(tt.line).Kind)
		})
	}
}

func TestClassifyRuleOrder(t *testing.T) {
	require := require.New(t)

	// a resend request mentioning the line number is still a resend
	require.Equal(model.KindResend, Classify("Resend: line number 7").Kind)
	// fatal wins over everything
	require.Equal(model.KindFatalDevice, Classify("!! resend").Kind)
	// echo wins over checksum
	require.Equal(model.KindEcho, Classify("echo:checksum enabled").Kind)
}

func TestClassifyResendLine(t *testing.T) {
	require := require.New(t)

	ev := Classify("Resend: 5")
	require.NotNil(ev.ResendLine)
	require.Equal(5, *ev.ResendLine)

	ev = Classify("resend 17\r\n")
	require.NotNil(ev.ResendLine)
	require.Equal(17, *ev.ResendLine)

	ev = Classify("Resend")
	require.Equal(model.KindResend, ev.Kind)
	require.Nil(ev.ResendLine)
}

func TestClassifyEchoText(t *testing.T) {
	require := require.New(t)

	ev := Classify("echo: Active Extruder: 0")
	require.Equal(model.KindEcho, ev.Kind)
	require.Equal("Active Extruder: 0", ev.Text)
	require.Equal("echo: Active Extruder: 0", ev.Raw)
}

func TestClassifyTemperature(t *testing.T) {
	require := require.New(t)

	ev := Classify("ok T:201.3 /210.0 B:60.5 /61.0 @:0 B@:0")
	require.NotNil(ev.Temperature)

	temp := ev.Temperature
	require.True(temp.Acknowledged)
	require.Equal("201.3", temp.Hotend.String())
	require.True(temp.HotendTarget.Valid)
	require.Equal("210", temp.HotendTarget.Decimal.String())
	require.True(temp.Bed.Valid)
	require.Equal("60.5", temp.Bed.Decimal.String())
	require.True(temp.BedTarget.Valid)
	require.Equal("61", temp.BedTarget.Decimal.String())
}

func TestClassifyTemperatureWithoutTargets(t *testing.T) {
	require := require.New(t)

	ev := Classify("T:185.2")
	require.Equal(model.KindTemperature, ev.Kind)
	require.False(ev.Temperature.Acknowledged)
	require.Equal("185.2", ev.Temperature.Hotend.String())
	require.False(ev.Temperature.HotendTarget.Valid)
	require.False(ev.Temperature.Bed.Valid)
	require.False(ev.Temperature.BedTarget.Valid)
}

func TestClassifyPosition(t *testing.T) {
	require := require.New(t)

	ev := Classify("X:10.00Y:20.50Z:5.00E:-1.25 Count X: 2.00Y:3.00Z:4.00")
	require.Equal(model.KindPosition, ev.Kind)
	require.NotNil(ev.Position)
	require.Equal("10", ev.Position.X.String())
	require.Equal("20.5", ev.Position.Y.String())
	require.Equal("5", ev.Position.Z.String())
	require.Equal("-1.25", ev.Position.E.String())
}

func TestIsBusy(t *testing.T) {
	require := require.New(t)

	require.True(IsBusy(Classify("echo:busy: processing")))
	require.True(IsBusy(Classify("busy: paused for user")))
	require.False(IsBusy(Classify("echo:SD init fail")))
	require.False(IsBusy(Classify("ok")))
}
