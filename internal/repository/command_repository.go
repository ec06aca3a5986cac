// internal/repository/command_repository.go
package repository

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"printer-service/internal/database"
	"printer-service/internal/model"
	"printer-service/internal/utils"
)

const maxListLimit = 1000

// commandRepository implements CommandRepository on Postgres
type commandRepository struct {
	db     *database.DB
	logger *utils.ServiceLogger
}

// NewCommandRepository creates a new command repository
func NewCommandRepository(db *database.DB, logger *zap.Logger) CommandRepository {
	return &commandRepository{
		db:     db,
		logger: utils.NewServiceLogger(logger, "command-repository"),
	}
}

// Create stores one command outcome
func (r *commandRepository) Create(ctx context.Context, record *model.CommandRecord) error {
	query := `
		INSERT INTO command_log (
			id, port, sequence, gcode, outcome, retries, duration_ms, error, sent_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	start := time.Now()
	_, err := r.db.ExecContext(ctx, query,
		record.ID, record.Port, record.Sequence, record.Gcode, record.Outcome,
		record.Retries, record.DurationMs, record.Error, record.SentAt,
	)
	r.logger.LogDatabaseQuery("insert command_log", time.Since(start), err)
	if err != nil {
		r.logger.Debug("Command record rejected", zap.String("gcode", record.Gcode))
		return fmt.Errorf("failed to create command record: %w", err)
	}

	return nil
}

// ListRecent returns the newest records, optionally restricted to one port
func (r *commandRepository) ListRecent(ctx context.Context, port string, limit int) ([]*model.CommandRecord, error) {
	limit = clampLimit(limit)

	query := `
		SELECT id, port, sequence, gcode, outcome, retries, duration_ms, error, sent_at, created_at
		FROM command_log
		WHERE ($1 = '' OR port = $1)
		ORDER BY sent_at DESC
		LIMIT $2
	`

	start := time.Now()
	rows, err := r.db.QueryContext(ctx, query, port, limit)
	r.logger.LogDatabaseQuery("select command_log", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("failed to list command records: %w", err)
	}
	defer rows.Close()

	var records []*model.CommandRecord
	for rows.Next() {
		rec := &model.CommandRecord{}
		if err := rows.Scan(
			&rec.ID, &rec.Port, &rec.Sequence, &rec.Gcode, &rec.Outcome,
			&rec.Retries, &rec.DurationMs, &rec.Error, &rec.SentAt, &rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan command record: %w", err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate command records: %w", err)
	}

	return records, nil
}

// DeleteOlderThan removes records sent before olderThan
func (r *commandRepository) DeleteOlderThan(ctx context.Context, olderThan time.Time) (int64, error) {
	start := time.Now()
	result, err := r.db.ExecContext(ctx, `DELETE FROM command_log WHERE sent_at < $1`, olderThan)
	r.logger.LogDatabaseQuery("delete command_log", time.Since(start), err)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old command records: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return deleted, nil
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return 100
	case limit > maxListLimit:
		return maxListLimit
	default:
		return limit
	}
}
