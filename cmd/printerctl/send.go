package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"printer-service/internal/engine"
	"printer-service/internal/service"
)

var parseReplies bool

var sendCmd = &cobra.Command{
	Use:   "send <gcode>...",
	Short: "Connect, send each G-code line in order and print the replies",
	Long: `Connect to the printer, send every argument as one G-code line and print
what the firmware answered. Sending stops at the first failed command.

Example:
  printerctl send --port /dev/ttyACM0 G28 "G1 X10 Y10" M114`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSend,
}

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.Flags().BoolVar(&parseReplies, "parse", true, "fold temperature and position reports into the acknowledgment")
}

func runSend(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	s, err := connect(ctx, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer s.Close()

	for _, gcode := range args {
		res, err := s.SendCommand(ctx, gcode, parseReplies)
		printResult(cmd.OutOrStdout(), gcode, res)
		if err != nil {
			return err
		}
	}
	return nil
}

// connect opens the selected port and prints the startup banner
func connect(ctx context.Context, out io.Writer) (*service.PrinterService, error) {
	s, _, err := newPrinterService()
	if err != nil {
		return nil, err
	}

	result, err := s.Connect(ctx, portName, baudRate)
	if err != nil {
		return nil, err
	}

	fmt.Fprintf(out, "connected to %s at %d baud\n", result.Port, result.BaudRate)
	for _, m := range result.Messages {
		fmt.Fprintf(out, "  %s\n", m)
	}
	return s, nil
}

func printResult(out io.Writer, gcode string, res *engine.Result) {
	if res == nil {
		return
	}

	fmt.Fprintf(out, "> %s (N%d, %d retries, %s)\n", gcode, res.Command.Sequence, res.Retries, res.Duration.Round(time.Millisecond))
	for _, ev := range res.Events {
		line := ev.Raw
		if line == "" {
			line = string(ev.Kind)
		}
		fmt.Fprintf(out, "< %s\n", strings.TrimSpace(line))

		if ev.Temperature != nil {
			fmt.Fprintf(out, "  hotend %s bed %s\n", ev.Temperature.Hotend, ev.Temperature.Bed.Decimal)
		}
		if ev.Position != nil {
			fmt.Fprintf(out, "  X %s Y %s Z %s E %s\n", ev.Position.X, ev.Position.Y, ev.Position.Z, ev.Position.E)
		}
	}
}
