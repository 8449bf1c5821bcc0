// internal/handler/snapshot_handler.go
package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	apperrors "ffb-control-service/internal/errors"
	"ffb-control-service/internal/model"
	"ffb-control-service/internal/service"
	"ffb-control-service/internal/utils"
)

const defaultSnapshotLimit = 50

// CreateSnapshotRequest labels a manual snapshot
type CreateSnapshotRequest struct {
	Label   string `json:"label"`
	Profile string `json:"profile"`
}

// SnapshotHandler handles configuration snapshot requests
type SnapshotHandler struct {
	snapshots *service.SnapshotService
	settings  *service.SettingsService
	logger    *utils.ServiceLogger
}

// NewSnapshotHandler creates a new snapshot handler
func NewSnapshotHandler(snapshots *service.SnapshotService, settings *service.SettingsService, logger *zap.Logger) *SnapshotHandler {
	return &SnapshotHandler{
		snapshots: snapshots,
		settings:  settings,
		logger:    utils.NewServiceLogger(logger, "snapshot-handler"),
	}
}

// RegisterRoutes registers snapshot routes
func (h *SnapshotHandler) RegisterRoutes(router *gin.RouterGroup) {
	snapshots := router.Group("/snapshots")
	{
		snapshots.GET("", h.ListSnapshots)
		snapshots.POST("", h.CreateSnapshot)
		snapshots.GET("/diff", h.DiffSnapshots)
		snapshots.GET("/:id", h.GetSnapshot)
	}
}

// ListSnapshots lists snapshots newest first
func (h *SnapshotHandler) ListSnapshots(c *gin.Context) {
	limit := defaultSnapshotLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			utils.ValidationErrorResponse(c, map[string]string{"limit": "must be a positive integer"})
			return
		}
		limit = n
	}

	snapshots, err := h.snapshots.List(c.Request.Context(), limit)
	if err != nil {
		utils.AppErrorResponse(c, "Failed to list snapshots", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Snapshots listed", snapshots)
}

// CreateSnapshot records the current configuration
func (h *SnapshotHandler) CreateSnapshot(c *gin.Context) {
	var req CreateSnapshotRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.BindErrorResponse(c, err)
			return
		}
	}

	snapshot, err := h.snapshots.Capture(c.Request.Context(), model.SnapshotManual, req.Label, h.settings.CurrentConfig(), req.Profile)
	if err != nil {
		utils.AppErrorResponse(c, "Failed to create snapshot", err)
		return
	}
	utils.SuccessResponse(c, http.StatusCreated, "Snapshot created", snapshot)
}

// GetSnapshot returns one snapshot
func (h *SnapshotHandler) GetSnapshot(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.AppErrorResponse(c, "Invalid snapshot ID", apperrors.Wrap(err, apperrors.KindInvalidArgument, "id"))
		return
	}

	snapshot, err := h.snapshots.Get(c.Request.Context(), id)
	if err != nil {
		utils.AppErrorResponse(c, "Snapshot not found", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Snapshot", snapshot)
}

// DiffSnapshots lists the differences between snapshots a and b
func (h *SnapshotHandler) DiffSnapshots(c *gin.Context) {
	a, errA := uuid.Parse(c.Query("a"))
	b, errB := uuid.Parse(c.Query("b"))
	if errA != nil || errB != nil {
		utils.ValidationErrorResponse(c, map[string]string{
			"a": "snapshot ID required",
			"b": "snapshot ID required",
		})
		return
	}

	diff, err := h.snapshots.Diff(c.Request.Context(), a, b)
	if err != nil {
		utils.AppErrorResponse(c, "Failed to diff snapshots", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Snapshot diff", diff)
}
