// internal/handler/telemetry_handler.go
package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"ffb-control-service/internal/repository"
	"ffb-control-service/internal/service"
	"ffb-control-service/internal/utils"
)

const defaultSampleLimit = 500

// TelemetryRequest turns the torque stream on or off
type TelemetryRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

// TelemetryHandler handles torque stream requests
type TelemetryHandler struct {
	protocol    *service.ProtocolService
	state       *service.DeviceState
	telemetry   *service.TelemetryService
	appSettings repository.SettingsRepository
	logger      *utils.ServiceLogger
}

// NewTelemetryHandler creates a new telemetry handler
func NewTelemetryHandler(
	protocol *service.ProtocolService,
	state *service.DeviceState,
	telemetry *service.TelemetryService,
	appSettings repository.SettingsRepository,
	logger *zap.Logger,
) *TelemetryHandler {
	return &TelemetryHandler{
		protocol:    protocol,
		state:       state,
		telemetry:   telemetry,
		appSettings: appSettings,
		logger:      utils.NewServiceLogger(logger, "telemetry-handler"),
	}
}

// RegisterRoutes registers telemetry routes
func (h *TelemetryHandler) RegisterRoutes(router *gin.RouterGroup) {
	telemetry := router.Group("/telemetry")
	{
		telemetry.POST("", h.SetEnabled)
		telemetry.GET("/stats", h.GetStats)
		telemetry.GET("/samples", h.GetSamples)
		telemetry.POST("/reset", h.Reset)
	}
}

// SetEnabled toggles the torque stream on the wheel and remembers the choice
func (h *TelemetryHandler) SetEnabled(c *gin.Context) {
	var req TelemetryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BindErrorResponse(c, err)
		return
	}
	enabled := *req.Enabled
	ctx := c.Request.Context()

	applied := h.state.Capabilities().SupportsTelemetry && !h.state.IsDemoMode()
	if applied {
		if err := h.protocol.SetTelemetryEnabled(ctx, enabled); err != nil {
			utils.AppErrorResponse(c, "Failed to toggle telemetry", err)
			return
		}
	}

	if settings, err := h.appSettings.Load(ctx); err == nil {
		settings.TelemetryEnabled = enabled
		if err := h.appSettings.Save(ctx, settings); err != nil {
			h.logger.Warn("Failed to remember telemetry preference", zap.Error(err))
		}
	}

	utils.SuccessResponse(c, http.StatusOK, "Telemetry updated", gin.H{
		"applied": applied,
		"enabled": enabled,
	})
}

// GetStats returns torque stream statistics
func (h *TelemetryHandler) GetStats(c *gin.Context) {
	utils.SuccessResponse(c, http.StatusOK, "Telemetry stats", h.telemetry.Stats())
}

// GetSamples returns the most recent torque samples
func (h *TelemetryHandler) GetSamples(c *gin.Context) {
	limit := defaultSampleLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			utils.ValidationErrorResponse(c, map[string]string{"limit": "must be a positive integer"})
			return
		}
		limit = n
	}
	utils.SuccessResponse(c, http.StatusOK, "Telemetry samples", h.telemetry.Samples(limit))
}

// Reset drops the stored samples
func (h *TelemetryHandler) Reset(c *gin.Context) {
	h.telemetry.Reset()
	utils.SuccessResponse(c, http.StatusOK, "Telemetry reset", nil)
}
