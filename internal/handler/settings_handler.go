// internal/handler/settings_handler.go
package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apperrors "ffb-control-service/internal/errors"
	"ffb-control-service/internal/model"
	"ffb-control-service/internal/service"
	"ffb-control-service/internal/utils"
)

// RotationRequest sets the steering range
type RotationRequest struct {
	Degrees int `json:"degrees" binding:"required,min=1"`
}

// SaveToPcRequest names the profile the current configuration is stored as
type SaveToPcRequest struct {
	Name  string   `json:"name" binding:"required"`
	Notes string   `json:"notes"`
	Tags  []string `json:"tags"`
}

// SettingsHandler handles wheel configuration requests
type SettingsHandler struct {
	settings *service.SettingsService
	logger   *utils.ServiceLogger
}

// NewSettingsHandler creates a new settings handler
func NewSettingsHandler(settings *service.SettingsService, logger *zap.Logger) *SettingsHandler {
	return &SettingsHandler{
		settings: settings,
		logger:   utils.NewServiceLogger(logger, "settings-handler"),
	}
}

// RegisterRoutes registers settings routes
func (h *SettingsHandler) RegisterRoutes(router *gin.RouterGroup) {
	settings := router.Group("/settings")
	{
		settings.GET("", h.GetSettings)
		settings.PUT("", h.ApplySettings)
		settings.POST("/load", h.LoadSettings)
		settings.PUT("/rotation", h.SetRotation)
		settings.POST("/center", h.Center)
		settings.POST("/calibrate", h.Calibrate)
		settings.POST("/save-wheel", h.SaveToWheel)
		settings.POST("/save-pc", h.SaveToPc)
		settings.GET("/persistence", h.GetPersistence)
		settings.GET("/backup", h.GetBackup)
		settings.POST("/backup/restore", h.RestoreBackup)
	}
}

// GetSettings returns the current configuration and its persistence state
func (h *SettingsHandler) GetSettings(c *gin.Context) {
	utils.SuccessResponse(c, http.StatusOK, "Current settings", gin.H{
		"config":            h.settings.CurrentConfig(),
		"persistence":       h.settings.PersistenceSnapshot(),
		"can_write":         h.settings.CanUseSerialConfig(),
		"can_save_to_wheel": h.settings.CanSaveToWheel(),
	})
}

// LoadSettings reads the configuration from the wheel
func (h *SettingsHandler) LoadSettings(c *gin.Context) {
	cfg, err := h.settings.LoadFromDevice(c.Request.Context())
	if err != nil {
		utils.AppErrorResponse(c, "Failed to read settings", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Settings loaded", gin.H{
		"applied": cfg != nil,
		"config":  cfg,
	})
}

// ApplySettings writes a full configuration to the wheel
func (h *SettingsHandler) ApplySettings(c *gin.Context) {
	var cfg model.FfbConfig
	if err := c.ShouldBindJSON(&cfg); err != nil {
		utils.BindErrorResponse(c, err)
		return
	}
	if cfg.RotationDeg <= 0 {
		utils.ValidationErrorResponse(c, map[string]string{"rotation_deg": "must be positive"})
		return
	}

	applied := h.settings.CanUseSerialConfig()
	if err := h.settings.ApplyConfig(c.Request.Context(), &cfg); err != nil {
		utils.AppErrorResponse(c, "Failed to apply settings", err)
		return
	}
	h.respondApplied(c, "Settings applied", applied)
}

// SetRotation writes the steering range only
func (h *SettingsHandler) SetRotation(c *gin.Context) {
	var req RotationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BindErrorResponse(c, err)
		return
	}

	applied := h.settings.CanUseSerialConfig()
	if err := h.settings.ApplyRotation(c.Request.Context(), req.Degrees); err != nil {
		utils.AppErrorResponse(c, "Failed to set rotation", err)
		return
	}
	h.respondApplied(c, "Rotation set", applied)
}

// Center makes the current wheel position the center
func (h *SettingsHandler) Center(c *gin.Context) {
	applied := h.settings.CanUseSerialConfig()
	if err := h.settings.Center(c.Request.Context()); err != nil {
		utils.AppErrorResponse(c, "Failed to center wheel", err)
		return
	}
	h.respondApplied(c, "Wheel centered", applied)
}

// Calibrate starts the calibration routine
func (h *SettingsHandler) Calibrate(c *gin.Context) {
	applied := h.settings.CanUseSerialConfig()
	if err := h.settings.Calibrate(c.Request.Context()); err != nil {
		utils.AppErrorResponse(c, "Failed to start calibration", err)
		return
	}
	h.respondApplied(c, "Calibration started", applied)
}

// SaveToWheel persists the active configuration to EEPROM
func (h *SettingsHandler) SaveToWheel(c *gin.Context) {
	applied := h.settings.CanSaveToWheel()
	if err := h.settings.SaveToWheel(c.Request.Context()); err != nil {
		utils.AppErrorResponse(c, "Failed to save to wheel", err)
		return
	}
	h.respondApplied(c, "Saved to wheel", applied)
}

// SaveToPc stores the current configuration as a named profile
func (h *SettingsHandler) SaveToPc(c *gin.Context) {
	var req SaveToPcRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BindErrorResponse(c, err)
		return
	}

	cfg := h.settings.CurrentConfig()
	if cfg == nil {
		utils.AppErrorResponse(c, "Nothing to save", apperrors.New(apperrors.KindInvalidArgument, "no configuration loaded").
			WithAction("Read the settings from the wheel or apply a profile first"))
		return
	}

	profile := &model.Profile{
		Name:   req.Name,
		Notes:  req.Notes,
		Tags:   req.Tags,
		Config: cfg,
	}
	if err := h.settings.SaveToPc(c.Request.Context(), profile); err != nil {
		utils.AppErrorResponse(c, "Failed to save profile", err)
		return
	}

	h.logger.Info("Profile saved", zap.String("profile", profile.Name), zap.Int("version", profile.Version))
	utils.SuccessResponse(c, http.StatusOK, "Saved to PC", gin.H{
		"profile":     profile,
		"persistence": h.settings.PersistenceSnapshot(),
	})
}

// GetPersistence returns the persistence tracker state
func (h *SettingsHandler) GetPersistence(c *gin.Context) {
	utils.SuccessResponse(c, http.StatusOK, "Persistence state", h.settings.PersistenceSnapshot())
}

// GetBackup returns the last pre-save backup
func (h *SettingsHandler) GetBackup(c *gin.Context) {
	backup, err := h.settings.LoadBackup(c.Request.Context())
	if err != nil {
		utils.AppErrorResponse(c, "Failed to read backup", err)
		return
	}
	if backup == nil {
		utils.AppErrorResponse(c, "No backup", apperrors.New(apperrors.KindNotFound, "no backup has been taken yet").
			WithAction("Save to the wheel once to create a backup"))
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Backup", backup)
}

// RestoreBackup applies the last pre-save backup
func (h *SettingsHandler) RestoreBackup(c *gin.Context) {
	applied := h.settings.CanUseSerialConfig()
	restored, err := h.settings.RestoreBackup(c.Request.Context())
	if err != nil {
		utils.AppErrorResponse(c, "Failed to restore backup", err)
		return
	}
	if !restored {
		utils.AppErrorResponse(c, "No backup", apperrors.New(apperrors.KindNotFound, "no backup has been taken yet"))
		return
	}
	h.respondApplied(c, "Backup restored", applied)
}

func (h *SettingsHandler) respondApplied(c *gin.Context, message string, applied bool) {
	if !applied {
		message = "Not supported by the active device, nothing was sent"
	}
	utils.SuccessResponse(c, http.StatusOK, message, gin.H{
		"applied":     applied,
		"config":      h.settings.CurrentConfig(),
		"persistence": h.settings.PersistenceSnapshot(),
	})
}
