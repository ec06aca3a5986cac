// internal/handler/health_handler.go
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"printer-service/internal/config"
	"printer-service/internal/database"
	"printer-service/internal/model"
	"printer-service/internal/service"
	"printer-service/internal/utils"
)

// HealthHandler handles health check requests
type HealthHandler struct {
	db             *database.DB
	migrator       *database.Migrator
	printerService *service.PrinterService
	config         *config.Config
	logger         *utils.ServiceLogger
	startedAt      time.Time
}

// NewHealthHandler creates a new health handler. db may be nil when the
// command store is disabled.
func NewHealthHandler(db *database.DB, printerService *service.PrinterService, config *config.Config, logger *zap.Logger) *HealthHandler {
	h := &HealthHandler{
		db:             db,
		printerService: printerService,
		config:         config,
		logger:         utils.NewServiceLogger(logger, "health-handler"),
		startedAt:      time.Now(),
	}
	if db != nil {
		h.migrator = database.NewMigrator(db, logger)
	}
	return h
}

// RegisterRoutes registers health check routes
func (h *HealthHandler) RegisterRoutes(router gin.IRoutes) {
	router.GET("/health", h.HealthCheck)
	router.GET("/ready", h.ReadinessCheck)
	router.GET("/live", h.LivenessCheck)
}

// HealthCheck reports the printer connection and, when enabled, the command store
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	health := &HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
		Service:   h.config.App.Name,
		Version:   h.config.App.Version,
		Uptime:    time.Since(h.startedAt).String(),
		Checks:    make(map[string]CheckResult),
	}

	status := h.printerService.Status()
	printerCheck := CheckResult{
		Status: "healthy",
		Data: map[string]interface{}{
			"port":          status.Port,
			"baud":          status.BaudRate,
			"state":         status.State,
			"next_line":     status.NextLine,
			"commands_sent": status.CommandsSent,
		},
	}
	if status.State == model.StateError {
		// A failed connect degrades the printer check but not the service
		printerCheck.Status = "degraded"
		printerCheck.Message = "last connect attempt failed"
	}
	health.Checks["printer"] = printerCheck

	if h.db != nil {
		if err := h.dbHealth(c.Request.Context()); err != nil {
			health.Status = "unhealthy"
			health.Checks["database"] = CheckResult{Status: "unhealthy", Message: err.Error()}
		} else {
			stats := h.db.Stats()
			health.Checks["database"] = CheckResult{
				Status:  "healthy",
				Message: "Database connection OK",
				Data: map[string]interface{}{
					"open_connections": stats.OpenConnections,
					"in_use":           stats.InUse,
					"idle":             stats.Idle,
				},
			}
		}
	}

	statusCode := http.StatusOK
	if health.Status == "unhealthy" {
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, health)
}

// ReadinessCheck for Kubernetes readiness probe
func (h *HealthHandler) ReadinessCheck(c *gin.Context) {
	if h.db != nil {
		if err := h.dbHealth(c.Request.Context()); err != nil {
			h.logger.Warn("Readiness check failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "not ready",
				"reason": "database not available",
			})
			return
		}
	}

	resp := gin.H{
		"status":    "ready",
		"timestamp": time.Now(),
	}
	if h.migrator != nil {
		version, dirty, err := h.migrator.Version()
		if err != nil {
			h.logger.Warn("Migration version check failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "not ready",
				"reason": "migration state unknown",
			})
			return
		}
		if dirty {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":            "not ready",
				"reason":            "database migration dirty",
				"migration_version": version,
			})
			return
		}
		resp["migration_version"] = version
	}

	c.JSON(http.StatusOK, resp)
}

// LivenessCheck for Kubernetes liveness probe
func (h *HealthHandler) LivenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "alive",
		"timestamp": time.Now(),
	})
}

func (h *HealthHandler) dbHealth(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return h.db.Health(ctx)
}

// HealthResponse represents health check response
type HealthResponse struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Service   string                 `json:"service"`
	Version   string                 `json:"version"`
	Uptime    string                 `json:"uptime"`
	Checks    map[string]CheckResult `json:"checks"`
}

// CheckResult represents individual check result
type CheckResult struct {
	Status  string                 `json:"status"`
	Message string                 `json:"message,omitempty"`
	Data    map[string]interface{} `json:"data,omitempty"`
}
