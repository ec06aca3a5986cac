// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"printer-service/internal/config"
	"printer-service/internal/database"
	serialscan "printer-service/internal/discovery/serial"
	"printer-service/internal/events"
	"printer-service/internal/metrics"
	"printer-service/internal/protocol"
	"printer-service/internal/repository"
	"printer-service/internal/routes"
	"printer-service/internal/service"
	"printer-service/internal/utils"
)

// Application represents the main application
type Application struct {
	config   *config.Config
	logger   *zap.Logger
	server   *http.Server
	database *database.DB

	bus      *events.Bus
	registry *prometheus.Registry
	audit    *utils.AuditLogger

	commandRepo    repository.CommandRepository
	printerService *service.PrinterService

	cancel context.CancelFunc
}

func main() {
	var configPath string

	root := &cobra.Command{
		Use:           "printer-service",
		Short:         "Marlin printer control service",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := NewApplication(configPath)
			if err != nil {
				return fmt.Errorf("failed to initialize application: %w", err)
			}
			return app.Start()
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to the configuration file")
	root.AddCommand(newMigrateCommand(&configPath))

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// NewApplication creates a new application instance
func NewApplication(configPath string) (*Application, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := utils.NewLogger(&cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	serviceLogger := utils.NewServiceLogger(logger, "printer-service")
	serviceLogger.LogServiceStart(cfg.App.Version, cfg)

	app := &Application{
		config: cfg,
		logger: logger,
	}

	if err := app.initializeDatabase(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := app.initializeServices(); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	if err := app.initializeServer(); err != nil {
		return nil, fmt.Errorf("failed to initialize server: %w", err)
	}

	return app, nil
}

// initializeDatabase connects the optional command store and runs migrations
func (app *Application) initializeDatabase() error {
	if !app.config.Database.Enabled {
		app.logger.Info("Command store disabled")
		return nil
	}

	db, err := database.NewConnection(&app.config.Database, app.logger)
	if err != nil {
		return fmt.Errorf("failed to create database connection: %w", err)
	}
	app.database = db

	migrator := database.NewMigrator(db, app.logger)
	if err := migrator.Up(); err != nil {
		return fmt.Errorf("failed to run database migrations: %w", err)
	}

	app.commandRepo = repository.NewCommandRepository(db, app.logger)

	app.logger.Info("Database initialized successfully")
	return nil
}

// initializeServices creates the event bus, metrics and the printer service
func (app *Application) initializeServices() error {
	app.bus = events.NewBus(app.logger)

	app.registry = prometheus.NewRegistry()
	app.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(app.registry)

	audit, err := utils.NewAuditLogger(&app.config.Audit)
	if err != nil {
		return err
	}
	app.audit = audit

	deps := service.Dependencies{
		Factory: protocol.NewFactoryFromConfig(app.config, app.logger),
		Scanner: serialscan.NewScanner(app.logger, nil),
		Bus:     app.bus,
		Metrics: collector,
		Audit:   audit,
	}
	if app.commandRepo != nil {
		deps.Repository = app.commandRepo
	}

	app.printerService = service.NewPrinterService(deps, app.config, app.logger)

	app.logger.Info("Services initialized successfully")
	return nil
}

// initializeServer sets up HTTP server and routes
func (app *Application) initializeServer() error {
	routerManager := routes.NewRouter(
		app.config,
		app.logger,
		app.database,
		app.bus,
		app.registry,
		app.printerService,
	)

	router := routerManager.SetupRouter()

	app.server = &http.Server{
		Addr:         app.config.GetServerAddr(),
		Handler:      router,
		ReadTimeout:  app.config.Server.ReadTimeout,
		WriteTimeout: app.config.Server.WriteTimeout,
		IdleTimeout:  app.config.Server.IdleTimeout,
	}

	app.logger.Info("HTTP server initialized",
		zap.String("address", app.config.GetServerAddr()),
	)

	return nil
}

// startBackgroundServices starts background services
func (app *Application) startBackgroundServices(ctx context.Context) {
	go app.bus.Run(ctx)

	if app.config.Printer.DefaultPort != "" {
		go app.connectDefaultPort(ctx)
	}

	if app.commandRepo != nil {
		go app.startCleanupService(ctx)
	}

	app.logger.Info("Background services started")
}

// connectDefaultPort opens the configured printer port at startup
func (app *Application) connectDefaultPort(ctx context.Context) {
	port := app.config.Printer.DefaultPort
	if _, err := app.printerService.Connect(ctx, port, app.config.Printer.DefaultBaudRate); err != nil {
		utils.LogError(app.logger, "Failed to connect default printer port", err, zap.String("port", port))
	}
}

// startCleanupService prunes the command store once an hour
func (app *Application) startCleanupService(ctx context.Context) {
	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()

	app.logger.Info("Cleanup service started",
		zap.Duration("retention", app.config.Database.Retention),
	)

	for {
		select {
		case <-ticker.C:
			cleanupCtx, cancel := context.WithTimeout(ctx, 10*time.Minute)
			deleted, err := app.printerService.PruneCommandLog(cleanupCtx, app.config.Database.Retention)
			cancel()

			if err != nil {
				app.logger.Error("Failed to clean up command log", zap.Error(err))
			} else if deleted > 0 {
				app.logger.Info("Cleaned up command log", zap.Int64("deleted", deleted))
			}

		case <-ctx.Done():
			return
		}
	}
}

// waitForShutdown waits for shutdown signal and performs graceful shutdown
func (app *Application) waitForShutdown() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	sig := <-quit
	app.logger.Info("Received shutdown signal", zap.String("signal", sig.String()))

	app.shutdown()
}

// shutdown performs graceful shutdown
func (app *Application) shutdown() {
	serviceLogger := utils.NewServiceLogger(app.logger, "printer-service")
	serviceLogger.LogServiceStop("shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("HTTP server shutdown error", zap.Error(err))
	} else {
		app.logger.Info("HTTP server stopped")
	}

	if err := app.printerService.Close(); err != nil {
		app.logger.Warn("Printer close error", zap.Error(err))
	}

	if app.cancel != nil {
		app.cancel()
	}

	if app.database != nil {
		if err := app.database.Close(); err != nil {
			app.logger.Error("Database close error", zap.Error(err))
		} else {
			app.logger.Info("Database connection closed")
		}
	}

	if err := app.audit.Sync(); err != nil {
		app.logger.Debug("Audit log sync error", zap.Error(err))
	}

	app.logger.Info("Application shutdown completed")

	if err := utils.CloseLogger(app.logger); err != nil {
		fmt.Printf("Logger close error: %v\n", err)
	}
}

// Start serves HTTP until a shutdown signal arrives
func (app *Application) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	app.cancel = cancel

	go func() {
		app.logger.Info("Starting HTTP server",
			zap.String("address", app.server.Addr),
		)

		if err := app.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.logger.Fatal("Failed to start HTTP server", zap.Error(err))
		}
	}()

	app.startBackgroundServices(ctx)

	app.waitForShutdown()

	return nil
}
