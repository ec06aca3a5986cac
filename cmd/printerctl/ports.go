package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List serial ports a printer may be attached to",
	RunE:  runPorts,
}

func init() {
	rootCmd.AddCommand(portsCmd)
}

func runPorts(cmd *cobra.Command, args []string) error {
	s, _, err := newPrinterService()
	if err != nil {
		return err
	}

	ports, err := s.ListAvailablePorts(cmd.Context())
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PORT\tUSB\tVID:PID\tPRODUCT\tBOARD")
	for _, p := range ports {
		ids := ""
		if p.IsUSB {
			ids = p.VID + ":" + p.PID
		}
		fmt.Fprintf(w, "%s\t%t\t%s\t%s\t%s\n", p.Name, p.IsUSB, ids, p.Product, p.Board)
	}
	return w.Flush()
}
