// Package app wires the transport, repositories and services into one stack
// shared by the HTTP server and the command line tool.
package app

import (
	"context"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"ffb-control-service/internal/config"
	"ffb-control-service/internal/handler"
	"ffb-control-service/internal/model"
	"ffb-control-service/internal/protocol/serial"
	"ffb-control-service/internal/repository"
	"ffb-control-service/internal/routes"
	"ffb-control-service/internal/service"
	"ffb-control-service/internal/simulator"
)

// Stack holds every long-lived component of the service
type Stack struct {
	Config    *config.Config
	Transport *serial.Transport
	// Wheel is the simulated firmware in simulate mode, nil otherwise
	Wheel    *simulator.Wheel
	EventBus *handler.EventBus

	State     *service.DeviceState
	Tracker   *service.PersistenceTracker
	Protocol  *service.ProtocolService
	Telemetry *service.TelemetryService
	Snapshots *service.SnapshotService
	Settings  *service.SettingsService
	Manager   *service.DeviceManager

	Profiles    repository.ProfileRepository
	AppSettings repository.SettingsRepository
	Backups     repository.BackupRepository

	logger *zap.Logger
}

// New builds the stack for cfg. In simulate mode a default simulated wheel
// stands in for the serial port.
func New(cfg *config.Config, logger *zap.Logger) *Stack {
	if cfg.Device.Simulate {
		return NewWithWheel(cfg, simulator.NewWheel(simulator.DefaultOptions()), logger)
	}
	opener := serial.NewDeviceOpener(serial.ConfigFrom(cfg.Serial), logger)
	return build(cfg, opener, serial.NewSystemEnumerator(logger), nil, logger)
}

// NewWithWheel builds the stack on top of a simulated wheel
func NewWithWheel(cfg *config.Config, wheel *simulator.Wheel, logger *zap.Logger) *Stack {
	opener := serial.OpenerFunc(func(ctx context.Context, name string) (serial.Port, error) {
		if name != simulator.PortName {
			return nil, fmt.Errorf("port %s not found", name)
		}
		return wheel.Open(), nil
	})
	return build(cfg, opener, wheel, wheel, logger)
}

func build(cfg *config.Config, opener serial.Opener, enumerator serial.Enumerator, wheel *simulator.Wheel, logger *zap.Logger) *Stack {
	s := &Stack{
		Config:   cfg,
		Wheel:    wheel,
		EventBus: handler.NewEventBus(),
		logger:   logger,
	}
	s.EventBus.SetLogger(logger)

	s.Transport = serial.NewTransport(opener, cfg.Serial.SettleDelay, logger)

	s.Profiles = repository.NewProfileRepository(cfg.Storage.ProfilesDir, logger)
	s.AppSettings = repository.NewSettingsRepository(cfg.Storage.SettingsFile, logger)
	s.Backups = repository.NewBackupRepository(cfg.Storage.BackupFile, logger)
	snapshots := repository.NewSnapshotRepository(snapshotsDir(cfg), logger)

	s.State = service.NewDeviceState()
	s.Tracker = service.NewPersistenceTracker()
	s.Protocol = service.NewProtocolService(s.Transport, cfg.Timeouts, logger)
	s.Telemetry = service.NewTelemetryService(s.EventBus, logger)
	s.Snapshots = service.NewSnapshotService(snapshots, s.State, s.Telemetry, logger)
	s.Settings = service.NewSettingsService(service.SettingsDeps{
		Protocol:    s.Protocol,
		State:       s.State,
		Tracker:     s.Tracker,
		Profiles:    s.Profiles,
		AppSettings: s.AppSettings,
		Backups:     s.Backups,
		Snapshots:   s.Snapshots,
		Events:      s.EventBus,
		Timeouts:    cfg.Timeouts,
	}, logger)
	s.Manager = service.NewDeviceManagerFromConfig(cfg, service.DeviceManagerDeps{
		Link:        s.Transport,
		Protocol:    s.Protocol,
		State:       s.State,
		Enumerator:  enumerator,
		AppSettings: s.AppSettings,
		Telemetry:   s.Telemetry,
		Events:      s.EventBus,
	}, logger)

	s.Transport.OnTelemetry(s.Telemetry.Record)
	s.Transport.OnDisconnect(s.Manager.HandleConnectionLost)
	s.Transport.OnLine(func(line string) {
		s.EventBus.Publish(model.NewEvent(model.EventSerialLine, "transport", map[string]interface{}{
			"line": line,
		}))
	})

	return s
}

func snapshotsDir(cfg *config.Config) string {
	if cfg.Storage.SnapshotsDir != "" {
		return cfg.Storage.SnapshotsDir
	}
	return filepath.Join(cfg.Storage.DataDir, "snapshots")
}

// RouteServices exposes the stack to the HTTP layer
func (s *Stack) RouteServices() routes.Services {
	return routes.Services{
		Manager:     s.Manager,
		State:       s.State,
		Protocol:    s.Protocol,
		Settings:    s.Settings,
		Snapshots:   s.Snapshots,
		Telemetry:   s.Telemetry,
		Profiles:    s.Profiles,
		AppSettings: s.AppSettings,
		EventBus:    s.EventBus,
		Resolve:     service.PolicyResolver(s.Config.Device.SyncPolicy),
	}
}

// Start runs the event bus. It returns immediately.
func (s *Stack) Start() {
	go s.EventBus.Start()
}

// ConnectOnStartup connects according to the device section of the config:
// demo mode, a fixed port, the last used port, or auto-detection. The wheel
// is then synchronized with the last profile.
func (s *Stack) ConnectOnStartup(ctx context.Context) error {
	device := s.Config.Device

	if device.DemoMode {
		s.Manager.ConnectDemo(ctx)
		return s.Settings.SyncOnConnect(ctx, service.PolicyResolver(device.SyncPolicy))
	}

	settings, err := s.AppSettings.Load(ctx)
	if err != nil {
		return err
	}
	if !device.AutoConnect && !settings.AutoConnect {
		return nil
	}

	port := device.Port
	if port == "" && s.Wheel != nil {
		port = simulator.PortName
	}
	if port == "" {
		port = settings.LastPort
	}
	if port == "" {
		if port, err = s.Manager.AutoDetect(ctx); err != nil {
			return err
		}
	}

	if _, err := s.Manager.Connect(ctx, port); err != nil {
		return err
	}
	return s.Settings.SyncOnConnect(ctx, service.PolicyResolver(device.SyncPolicy))
}

// Close disconnects the wheel and stops the event bus
func (s *Stack) Close() {
	s.Manager.Disconnect()
	s.EventBus.Stop()
	s.logger.Info("Service stack closed")
}
