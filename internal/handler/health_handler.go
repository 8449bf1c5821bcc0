// internal/handler/health_handler.go
package handler

import (
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"ffb-control-service/internal/config"
	"ffb-control-service/internal/service"
	"ffb-control-service/internal/utils"
)

// HealthHandler handles health check requests
type HealthHandler struct {
	config    *config.Config
	manager   *service.DeviceManager
	state     *service.DeviceState
	settings  *service.SettingsService
	startedAt time.Time
	logger    *utils.ServiceLogger
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(
	config *config.Config,
	manager *service.DeviceManager,
	state *service.DeviceState,
	settings *service.SettingsService,
	logger *zap.Logger,
) *HealthHandler {
	return &HealthHandler{
		config:    config,
		manager:   manager,
		state:     state,
		settings:  settings,
		startedAt: time.Now(),
		logger:    utils.NewServiceLogger(logger, "health-handler"),
	}
}

// RegisterRoutes registers health check routes
func (h *HealthHandler) RegisterRoutes(router gin.IRoutes) {
	router.GET("/health", h.HealthCheck)
	router.GET("/ready", h.ReadinessCheck)
	router.GET("/live", h.LivenessCheck)
}

// HealthCheck reports storage and wheel status. A disconnected wheel is not
// unhealthy; unusable storage is.
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	health := &HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
		Service:   h.config.App.Name,
		Version:   h.config.App.Version,
		Uptime:    time.Since(h.startedAt).Round(time.Second).String(),
		Checks:    make(map[string]CheckResult),
	}

	if err := h.checkStorage(); err != nil {
		health.Status = "unhealthy"
		health.Checks["storage"] = CheckResult{
			Status:  "unhealthy",
			Message: err.Error(),
		}
	} else {
		health.Checks["storage"] = CheckResult{
			Status:  "healthy",
			Message: "Data directory OK",
		}
	}

	wheel := CheckResult{Status: "disconnected"}
	if device := h.state.Current(); device != nil && h.manager.IsConnected() {
		wheel.Status = "connected"
		wheel.Data = map[string]interface{}{
			"port":             device.Port,
			"firmware_version": device.FirmwareVersion,
			"demo":             device.IsDemo,
			"persistence":      h.settings.PersistenceState(),
		}
	}
	health.Checks["wheel"] = wheel

	statusCode := http.StatusOK
	if health.Status == "unhealthy" {
		h.logger.Warn("Health check failed", zap.Any("checks", health.Checks))
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, health)
}

// ReadinessCheck reports whether the service can accept requests
func (h *HealthHandler) ReadinessCheck(c *gin.Context) {
	if err := h.checkStorage(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"reason": "data directory not available",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "ready",
		"timestamp": time.Now(),
	})
}

// LivenessCheck reports that the process is serving requests
func (h *HealthHandler) LivenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "alive",
		"timestamp": time.Now(),
	})
}

func (h *HealthHandler) checkStorage() error {
	dir := h.config.Storage.DataDir
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	_, err := os.Stat(dir)
	return err
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
