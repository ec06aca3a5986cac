package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"printer-service/internal/engine"
)

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Interactive G-code console",
	Long: `Read G-code lines from stdin and send them one at a time.

Console commands:
  :status    print the connection status
  :line <n>  make <n> the next line number
  :quit      disconnect and exit`,
	RunE: runConsole,
}

func init() {
	rootCmd.AddCommand(consoleCmd)
}

func runConsole(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	s, err := connect(ctx, out)
	if err != nil {
		return err
	}
	defer s.Close()

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Fprint(out, "gcode> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}

		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue

		case line == ":quit" || line == ":q":
			return nil

		case line == ":status":
			st := s.Status()
			fmt.Fprintf(out, "%s %s@%d next N%d, %d commands\n", st.State, st.Port, st.BaudRate, st.NextLine, st.CommandsSent)

		case strings.HasPrefix(line, ":line "):
			var n int
			if _, err := fmt.Sscanf(line, ":line %d", &n); err != nil {
				fmt.Fprintf(out, "usage: :line <n>\n")
				continue
			}
			if err := s.SetLineNumber(ctx, n); err != nil {
				fmt.Fprintf(out, "error: %v\n", err)
			}

		default:
			res, err := s.SendCommand(ctx, line, true)
			printResult(out, line, res)
			if err != nil {
				fmt.Fprintf(out, "error: %v\n", err)
				if errors.Is(err, engine.ErrFatalDevice) {
					return err
				}
			}
		}
	}
}
