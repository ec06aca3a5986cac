// internal/handler/printer_handler.go
package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"printer-service/internal/service"
	"printer-service/internal/utils"
)

// PrinterHandler exposes read-only printer views over REST
type PrinterHandler struct {
	printerService *service.PrinterService
	logger         *utils.ServiceLogger
}

// NewPrinterHandler creates a new printer handler
func NewPrinterHandler(printerService *service.PrinterService, logger *zap.Logger) *PrinterHandler {
	return &PrinterHandler{
		printerService: printerService,
		logger:         utils.NewServiceLogger(logger, "printer-handler"),
	}
}

// RegisterRoutes registers printer routes
func (h *PrinterHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/printer", h.GetStatus)
	router.GET("/printer/ports", h.ListPorts)
	router.GET("/printer/commands", h.ListCommands)
}

// GetStatus returns the connection snapshot
func (h *PrinterHandler) GetStatus(c *gin.Context) {
	utils.SuccessResponse(c, http.StatusOK, "Printer status", h.printerService.Status())
}

// ListPorts returns the enumerated serial ports
func (h *PrinterHandler) ListPorts(c *gin.Context) {
	ports, err := h.printerService.ListAvailablePorts(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to list serial ports", zap.Error(err))
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to list serial ports", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Serial ports", ports)
}

// ListCommands returns the newest stored commands
func (h *PrinterHandler) ListCommands(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit < 1 {
		utils.ErrorResponse(c, http.StatusBadRequest, "limit must be a positive integer", err)
		return
	}

	records, err := h.printerService.RecentCommands(c.Request.Context(), limit)
	if err != nil {
		h.logger.Error("Failed to list commands", zap.Error(err))
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to list commands", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Recent commands", records)
}
