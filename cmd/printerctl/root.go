package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"printer-service/internal/config"
	serialscan "printer-service/internal/discovery/serial"
	"printer-service/internal/protocol"
	"printer-service/internal/service"
	"printer-service/internal/utils"
)

var (
	configPath string
	portName   string
	baudRate   int
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:           "printerctl",
	Short:         "Talk to a Marlin printer over its serial port",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to the configuration file")
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "serial port (defaults to printer.default_port)")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 0, "baud rate (defaults to printer.default_baud_rate)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log serial traffic to stderr")
}

// newPrinterService builds a standalone printer service from configuration
func newPrinterService() (*service.PrinterService, *config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := zap.NewNop()
	if verbose {
		cfg.Logging.Level = "debug"
		cfg.Logging.Format = "console"
		cfg.Logging.Output = "stderr"
		cfg.Logging.TraceSerial = true
		if logger, err = utils.NewLogger(&cfg.Logging); err != nil {
			return nil, nil, err
		}
	}

	s := service.NewPrinterService(service.Dependencies{
		Factory: protocol.NewFactoryFromConfig(cfg, logger),
		Scanner: serialscan.NewScanner(logger, nil),
	}, cfg, logger)

	return s, cfg, nil
}
