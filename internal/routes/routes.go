// internal/routes/routes.go
package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"printer-service/internal/config"
	"printer-service/internal/database"
	"printer-service/internal/events"
	"printer-service/internal/handler"
	"printer-service/internal/middleware"
	"printer-service/internal/service"
	"printer-service/internal/utils"
)

// Router holds all dependencies for routing
type Router struct {
	config         *config.Config
	logger         *zap.Logger
	db             *database.DB
	bus            *events.Bus
	gatherer       prometheus.Gatherer
	printerService *service.PrinterService
}

// NewRouter creates a new router instance. db may be nil.
func NewRouter(
	config *config.Config,
	logger *zap.Logger,
	db *database.DB,
	bus *events.Bus,
	gatherer prometheus.Gatherer,
	printerService *service.PrinterService,
) *Router {
	return &Router{
		config:         config,
		logger:         logger,
		db:             db,
		bus:            bus,
		gatherer:       gatherer,
		printerService: printerService,
	}
}

// SetupRouter creates and configures the Gin router
func (r *Router) SetupRouter() *gin.Engine {
	if r.config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	} else if !r.config.IsDebugEnabled() {
		gin.SetMode(gin.TestMode)
	}

	router := gin.New()

	r.addMiddleware(router)
	r.addRoutes(router)

	return router
}

// addMiddleware adds middleware to the router
func (r *Router) addMiddleware(router *gin.Engine) {
	router.Use(middleware.RecoveryMiddleware(r.logger))
	router.Use(middleware.RequestIDMiddleware())

	serviceLogger := utils.NewServiceLogger(r.logger, "http-server")
	router.Use(middleware.LoggingMiddleware(serviceLogger))

	router.Use(middleware.CORSMiddleware(&r.config.Security))
}

// addRoutes sets up all application routes
func (r *Router) addRoutes(router *gin.Engine) {
	healthHandler := handler.NewHealthHandler(r.db, r.printerService, r.config, r.logger)
	rpcHandler := handler.NewJSONRPCHandler(r.printerService, r.logger)
	printerHandler := handler.NewPrinterHandler(r.printerService, r.logger)
	wsHandler := handler.NewWebSocketHandler(r.bus, r.printerService, &r.config.Security, r.logger)

	healthHandler.RegisterRoutes(router)
	rpcHandler.RegisterRoutes(router)

	apiV1 := router.Group("/api/v1")
	printerHandler.RegisterRoutes(apiV1)
	apiV1.GET("/ws/stats", func(c *gin.Context) {
		c.JSON(http.StatusOK, wsHandler.GetConnectionStats())
	})

	wsHandler.RegisterRoutes(router.Group("/ws"))

	if r.config.Metrics.Enabled && r.gatherer != nil {
		router.GET(r.config.Metrics.Path, gin.WrapH(promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{})))
	}

	r.logger.Info("All routes configured successfully")
}
