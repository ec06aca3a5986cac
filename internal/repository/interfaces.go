// internal/repository/interfaces.go
package repository

import (
	"context"
	"time"

	"printer-service/internal/model"
)

// CommandRepository defines command audit data access operations
type CommandRepository interface {
	Create(ctx context.Context, record *model.CommandRecord) error
	ListRecent(ctx context.Context, port string, limit int) ([]*model.CommandRecord, error)

	// Cleanup
	DeleteOlderThan(ctx context.Context, olderThan time.Time) (int64, error)
}
