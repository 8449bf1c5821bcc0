// internal/routes/routes.go
package routes

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"ffb-control-service/internal/config"
	"ffb-control-service/internal/handler"
	"ffb-control-service/internal/middleware"
	"ffb-control-service/internal/repository"
	"ffb-control-service/internal/service"
	"ffb-control-service/internal/utils"
)

// Services bundles what the handlers need
type Services struct {
	Manager     *service.DeviceManager
	State       *service.DeviceState
	Protocol    *service.ProtocolService
	Settings    *service.SettingsService
	Snapshots   *service.SnapshotService
	Telemetry   *service.TelemetryService
	Profiles    repository.ProfileRepository
	AppSettings repository.SettingsRepository
	EventBus    *handler.EventBus
	// Resolve decides connect-time conflicts for connections made through the API
	Resolve service.ConflictResolver
}

// Router holds all dependencies for routing
type Router struct {
	config   *config.Config
	logger   *zap.Logger
	services Services

	websocket *handler.WebSocketHandler
}

// NewRouter creates a new router instance
func NewRouter(config *config.Config, logger *zap.Logger, services Services) *Router {
	if services.Resolve == nil {
		services.Resolve = service.PolicyResolver(config.Device.SyncPolicy)
	}
	return &Router{
		config:   config,
		logger:   logger,
		services: services,
	}
}

// SetupRouter creates and configures the Gin router
func (r *Router) SetupRouter() *gin.Engine {
	if r.config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	} else if r.config.App.Environment == "test" {
		gin.SetMode(gin.TestMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()

	r.addMiddleware(router)
	r.addRoutes(router)

	return router
}

// WebSocket returns the event stream handler. It is nil before SetupRouter.
func (r *Router) WebSocket() *handler.WebSocketHandler {
	return r.websocket
}

// addMiddleware adds middleware to the router
func (r *Router) addMiddleware(router *gin.Engine) {
	router.Use(middleware.RecoveryMiddleware(r.logger))
	router.Use(middleware.RequestIDMiddleware())

	serviceLogger := utils.NewServiceLogger(r.logger, "http-server")
	router.Use(middleware.LoggingMiddleware(serviceLogger, "/health", "/ready", "/live"))

	router.Use(middleware.CORSMiddleware(&r.config.Security))

	r.logger.Info("Middleware configured")
}

// addRoutes sets up all application routes
func (r *Router) addRoutes(router *gin.Engine) {
	s := r.services

	healthHandler := handler.NewHealthHandler(r.config, s.Manager, s.State, s.Settings, r.logger)
	deviceHandler := handler.NewDeviceHandler(s.Manager, s.State, s.Settings, s.Resolve, r.logger)
	settingsHandler := handler.NewSettingsHandler(s.Settings, r.logger)
	profileHandler := handler.NewProfileHandler(s.Profiles, s.Settings, r.logger)
	telemetryHandler := handler.NewTelemetryHandler(s.Protocol, s.State, s.Telemetry, s.AppSettings, r.logger)
	snapshotHandler := handler.NewSnapshotHandler(s.Snapshots, s.Settings, r.logger)
	r.websocket = handler.NewWebSocketHandler(s.EventBus, s.State, s.Settings, r.logger)

	healthHandler.RegisterRoutes(router)

	apiV1 := router.Group("/api/v1")
	deviceHandler.RegisterRoutes(apiV1)
	settingsHandler.RegisterRoutes(apiV1)
	profileHandler.RegisterRoutes(apiV1)
	telemetryHandler.RegisterRoutes(apiV1)
	snapshotHandler.RegisterRoutes(apiV1)

	r.websocket.RegisterRoutes(router.Group("/ws"))

	r.logger.Info("All routes configured successfully")
}
