// internal/handler/profile_handler.go
package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"ffb-control-service/internal/repository"
	"ffb-control-service/internal/service"
	"ffb-control-service/internal/utils"
)

// ProfileHandler handles PC profile requests
type ProfileHandler struct {
	profiles repository.ProfileRepository
	settings *service.SettingsService
	logger   *utils.ServiceLogger
}

// NewProfileHandler creates a new profile handler
func NewProfileHandler(profiles repository.ProfileRepository, settings *service.SettingsService, logger *zap.Logger) *ProfileHandler {
	return &ProfileHandler{
		profiles: profiles,
		settings: settings,
		logger:   utils.NewServiceLogger(logger, "profile-handler"),
	}
}

// RegisterRoutes registers profile routes
func (h *ProfileHandler) RegisterRoutes(router *gin.RouterGroup) {
	profiles := router.Group("/profiles")
	{
		profiles.GET("", h.ListProfiles)
		profiles.GET("/:name", h.GetProfile)
		profiles.POST("/:name/apply", h.ApplyProfile)
		profiles.DELETE("/:name", h.DeleteProfile)
	}
}

// ListProfiles lists stored profiles by name
func (h *ProfileHandler) ListProfiles(c *gin.Context) {
	profiles, err := h.profiles.List(c.Request.Context())
	if err != nil {
		utils.AppErrorResponse(c, "Failed to list profiles", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Profiles listed", profiles)
}

// GetProfile returns one profile
func (h *ProfileHandler) GetProfile(c *gin.Context) {
	profile, err := h.profiles.GetByName(c.Request.Context(), c.Param("name"))
	if err != nil {
		utils.AppErrorResponse(c, "Profile not found", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Profile", profile)
}

// ApplyProfile writes a stored profile to the wheel
func (h *ProfileHandler) ApplyProfile(c *gin.Context) {
	applied := h.settings.CanUseSerialConfig()
	profile, err := h.settings.ApplyProfile(c.Request.Context(), c.Param("name"))
	if err != nil {
		utils.AppErrorResponse(c, "Failed to apply profile", err)
		return
	}

	message := "Profile applied"
	if !applied {
		message = "Not supported by the active device, nothing was sent"
	}
	utils.SuccessResponse(c, http.StatusOK, message, gin.H{
		"applied":     applied,
		"profile":     profile,
		"persistence": h.settings.PersistenceSnapshot(),
	})
}

// DeleteProfile removes a stored profile
func (h *ProfileHandler) DeleteProfile(c *gin.Context) {
	name := c.Param("name")
	if err := h.profiles.Delete(c.Request.Context(), name); err != nil {
		utils.AppErrorResponse(c, "Failed to delete profile", err)
		return
	}
	h.logger.Info("Profile deleted", zap.String("profile", name))
	utils.SuccessResponse(c, http.StatusOK, "Profile deleted", nil)
}
