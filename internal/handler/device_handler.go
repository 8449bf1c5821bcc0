// internal/handler/device_handler.go
package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"ffb-control-service/internal/service"
	"ffb-control-service/internal/utils"
)

// ConnectRequest selects the port to open. An empty port runs auto-detection.
type ConnectRequest struct {
	Port string `json:"port"`
}

// DeviceHandler handles port and connection requests
type DeviceHandler struct {
	manager  *service.DeviceManager
	state    *service.DeviceState
	settings *service.SettingsService
	resolve  service.ConflictResolver
	logger   *utils.ServiceLogger
}

// NewDeviceHandler creates a new device handler. resolve decides connect-time
// conflicts between the wheel and the last profile.
func NewDeviceHandler(
	manager *service.DeviceManager,
	state *service.DeviceState,
	settings *service.SettingsService,
	resolve service.ConflictResolver,
	logger *zap.Logger,
) *DeviceHandler {
	return &DeviceHandler{
		manager:  manager,
		state:    state,
		settings: settings,
		resolve:  resolve,
		logger:   utils.NewServiceLogger(logger, "device-handler"),
	}
}

// RegisterRoutes registers port and device routes
func (h *DeviceHandler) RegisterRoutes(router *gin.RouterGroup) {
	ports := router.Group("/ports")
	{
		ports.GET("", h.ListPorts)
		ports.POST("/detect", h.DetectPort)
	}

	device := router.Group("/device")
	{
		device.GET("", h.GetDevice)
		device.GET("/capabilities", h.GetCapabilities)
		device.POST("/connect", h.Connect)
		device.POST("/demo", h.ConnectDemo)
		device.POST("/disconnect", h.Disconnect)
	}
}

// ListPorts lists serial ports, USB first
func (h *DeviceHandler) ListPorts(c *gin.Context) {
	ports, err := h.manager.ScanPorts(c.Request.Context())
	if err != nil {
		utils.AppErrorResponse(c, "Port scan failed", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Ports listed", ports)
}

// DetectPort probes the ports for a wheel without staying connected
func (h *DeviceHandler) DetectPort(c *gin.Context) {
	port, err := h.manager.AutoDetect(c.Request.Context())
	if err != nil {
		utils.AppErrorResponse(c, "No wheel detected", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Wheel detected", gin.H{"port": port})
}

// Connect opens the requested port, identifies the wheel and synchronizes
// its configuration with the last profile
func (h *DeviceHandler) Connect(c *gin.Context) {
	var req ConnectRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.BindErrorResponse(c, err)
			return
		}
	}

	ctx := c.Request.Context()
	port := strings.TrimSpace(req.Port)
	if port == "" {
		detected, err := h.manager.AutoDetect(ctx)
		if err != nil {
			utils.AppErrorResponse(c, "No wheel detected", err)
			return
		}
		port = detected
	}

	device, err := h.manager.Connect(ctx, port)
	if err != nil {
		utils.AppErrorResponse(c, "Failed to connect", err)
		return
	}

	if err := h.settings.SyncOnConnect(ctx, h.resolve); err != nil {
		h.logger.Warn("Settings sync after connect failed", zap.String("port", port), zap.Error(err))
	}

	utils.SuccessResponse(c, http.StatusOK, "Device connected", gin.H{
		"device":       device,
		"capabilities": h.state.Capabilities(),
		"persistence":  h.settings.PersistenceSnapshot(),
	})
}

// ConnectDemo activates the demo device
func (h *DeviceHandler) ConnectDemo(c *gin.Context) {
	device := h.manager.ConnectDemo(c.Request.Context())
	utils.SuccessResponse(c, http.StatusOK, "Demo device connected", device)
}

// Disconnect closes the wheel connection
func (h *DeviceHandler) Disconnect(c *gin.Context) {
	h.manager.Disconnect()
	utils.SuccessResponse(c, http.StatusOK, "Device disconnected", nil)
}

// GetDevice returns the active device
func (h *DeviceHandler) GetDevice(c *gin.Context) {
	utils.SuccessResponse(c, http.StatusOK, "Device state", gin.H{
		"connected": h.manager.IsConnected(),
		"demo":      h.state.IsDemoMode(),
		"device":    h.state.Current(),
	})
}

// GetCapabilities returns the effective capabilities of the active device
func (h *DeviceHandler) GetCapabilities(c *gin.Context) {
	device := h.state.Current()
	data := gin.H{
		"capabilities": h.state.Capabilities(),
		"flags":        []string{},
	}
	if device != nil {
		data["flags"] = device.Capabilities.Names()
		data["firmware_version"] = device.FirmwareVersion
	}
	utils.SuccessResponse(c, http.StatusOK, "Device capabilities", data)
}
