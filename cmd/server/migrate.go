// cmd/server/migrate.go
package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"printer-service/internal/config"
	"printer-service/internal/database"
	"printer-service/internal/utils"
)

// newMigrateCommand manages the command store schema outside of serving
func newMigrateCommand(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the command store schema",
	}

	run := func(action func(m *database.Migrator, logger *zap.Logger) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			if !cfg.Database.Enabled {
				return errors.New("command store is disabled in configuration")
			}

			logger, err := utils.NewLogger(&cfg.Logging)
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			defer utils.CloseLogger(logger)

			db, err := database.NewConnection(&cfg.Database, logger)
			if err != nil {
				return fmt.Errorf("failed to create database connection: %w", err)
			}
			defer db.Close()

			return action(database.NewMigrator(db, logger), logger)
		}
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			RunE: run(func(m *database.Migrator, _ *zap.Logger) error {
				return m.Up()
			}),
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back all migrations",
			RunE: run(func(m *database.Migrator, _ *zap.Logger) error {
				return m.Down()
			}),
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the applied migration version",
			RunE: run(func(m *database.Migrator, logger *zap.Logger) error {
				version, dirty, err := m.Version()
				if err != nil {
					return err
				}
				logger.Info("Migration version", zap.Uint("version", version), zap.Bool("dirty", dirty))
				fmt.Printf("version=%d dirty=%t\n", version, dirty)
				return nil
			}),
		},
	)
	return cmd
}
