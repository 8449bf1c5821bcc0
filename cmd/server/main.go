// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ffb-control-service/internal/app"
	"ffb-control-service/internal/config"
	"ffb-control-service/internal/routes"
	"ffb-control-service/internal/utils"
)

const (
	startupConnectTimeout = 15 * time.Second
	shutdownTimeout       = 10 * time.Second
)

// Application represents the main application
type Application struct {
	config *config.Config
	logger *zap.Logger
	server *http.Server
	stack  *app.Stack

	stopStreams context.CancelFunc
}

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "ffb-control-server",
		Short:         "Local control API for the force-feedback wheel",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := NewApplication(configPath)
			if err != nil {
				return fmt.Errorf("failed to initialize application: %w", err)
			}
			if err := application.Start(); err != nil {
				application.logger.Error("Application stopped with error", zap.Error(err))
				return err
			}
			return nil
		},
	}
	rootCmd.Flags().StringVar(&configPath, "config", "", "path to the config file")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// NewApplication creates a new application instance
func NewApplication(configPath string) (*Application, error) {
	cfg, err := config.LoadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := utils.NewLogger(&cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	serviceLogger := utils.NewServiceLogger(logger, "ffb-control-service")
	serviceLogger.LogServiceStart(cfg.App.Version, cfg)

	application := &Application{
		config: cfg,
		logger: logger,
	}

	application.initializeServices()

	if err := application.initializeServer(); err != nil {
		return nil, fmt.Errorf("failed to initialize server: %w", err)
	}

	return application, nil
}

// initializeServices builds the transport, repositories and services
func (a *Application) initializeServices() {
	a.stack = app.New(a.config, a.logger)

	a.logger.Info("Services initialized successfully",
		zap.Bool("simulate", a.config.Device.Simulate),
		zap.Bool("demo_mode", a.config.Device.DemoMode),
	)
}

// initializeServer sets up HTTP server and routes
func (a *Application) initializeServer() error {
	routerManager := routes.NewRouter(a.config, a.logger, a.stack.RouteServices())
	router := routerManager.SetupRouter()

	ctx, cancel := context.WithCancel(context.Background())
	a.stopStreams = cancel
	routerManager.WebSocket().Start(ctx)

	a.server = &http.Server{
		Addr:         a.config.GetServerAddr(),
		Handler:      router,
		ReadTimeout:  a.config.Server.ReadTimeout,
		WriteTimeout: a.config.Server.WriteTimeout,
		IdleTimeout:  a.config.Server.IdleTimeout,
	}

	a.logger.Info("HTTP server initialized",
		zap.String("address", a.config.GetServerAddr()),
		zap.Bool("tls_enabled", a.config.Server.TLS.Enabled),
	)

	return nil
}

// startBackgroundServices starts the event bus and connects the wheel when configured
func (a *Application) startBackgroundServices() {
	a.stack.Start()

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), startupConnectTimeout)
		defer cancel()

		if err := a.stack.ConnectOnStartup(ctx); err != nil {
			a.logger.Warn("Startup connection failed", zap.Error(err))
		}
	}()

	a.logger.Info("Background services started")
}

// Start runs the HTTP server and blocks until a shutdown signal arrives
func (a *Application) Start() error {
	errCh := make(chan error, 1)

	go func() {
		a.logger.Info("Starting HTTP server",
			zap.String("address", a.server.Addr),
		)

		var err error
		if a.config.Server.TLS.Enabled {
			err = a.server.ListenAndServeTLS(
				a.config.Server.TLS.CertFile,
				a.config.Server.TLS.KeyFile,
			)
		} else {
			err = a.server.ListenAndServe()
		}

		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	a.startBackgroundServices()

	return a.waitForShutdown(errCh)
}

// waitForShutdown waits for a shutdown signal or a server failure
func (a *Application) waitForShutdown(errCh <-chan error) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		a.logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
		a.shutdown("shutdown signal received")
		return nil
	case err := <-errCh:
		a.shutdown("server error")
		return err
	}
}

// shutdown performs graceful shutdown
func (a *Application) shutdown(reason string) {
	serviceLogger := utils.NewServiceLogger(a.logger, "ffb-control-service")
	serviceLogger.LogServiceStop(reason)

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := a.server.Shutdown(ctx); err != nil {
		a.logger.Error("HTTP server shutdown error", zap.Error(err))
	} else {
		a.logger.Info("HTTP server stopped")
	}

	a.stopStreams()
	a.stack.Close()

	a.logger.Info("Application shutdown completed")

	if err := utils.CloseLogger(a.logger); err != nil {
		fmt.Printf("Logger close error: %v\n", err)
	}
}
