// internal/service/device_manager.go
package service

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"ffb-control-service/internal/capability"
	"ffb-control-service/internal/config"
	apperrors "ffb-control-service/internal/errors"
	"ffb-control-service/internal/model"
	"ffb-control-service/internal/protocol/serial"
	"ffb-control-service/internal/repository"
	"ffb-control-service/internal/utils"
)

const (
	// DemoPort is the port name reported by the demo device
	DemoPort = "DEMO"

	probeTimeout    = 400 * time.Millisecond
	unknownFirmware = "Unknown"
)

// DemoDevice describes the built-in demo wheel
func DemoDevice() *model.DeviceInfo {
	return &model.DeviceInfo{
		Port:                 DemoPort,
		ProductName:          "Arduino FFB Wheel (Demo)",
		FirmwareVersion:      "fw-v250demo",
		Capabilities:         model.CapHasAS5600 | model.CapHasButtonMatrix | model.CapHasHatSwitch,
		SupportsInfoCommand:  true,
		SupportsSerialConfig: true,
		SupportsTelemetry:    true,
		IsDemo:               true,
		ConnectedAt:          time.Now(),
	}
}

// DeviceManagerDeps are the collaborators of DeviceManager
type DeviceManagerDeps struct {
	Link        Link
	Protocol    *ProtocolService
	State       *DeviceState
	Enumerator  serial.Enumerator
	AppSettings repository.SettingsRepository
	Telemetry   *TelemetryService
	Events      EventPublisher
	// EnableTelemetry turns on the torque stream after a successful handshake
	EnableTelemetry bool
}

// DeviceManager scans ports, connects to the wheel and runs the handshake
type DeviceManager struct {
	link            Link
	protocol        *ProtocolService
	state           *DeviceState
	enumerator      serial.Enumerator
	appSettings     repository.SettingsRepository
	telemetry       *TelemetryService
	events          EventPublisher
	enableTelemetry bool

	baseLogger *zap.Logger
	logger     *utils.ServiceLogger

	mutex    sync.Mutex
	stopDemo context.CancelFunc
}

// NewDeviceManager creates a device manager
func NewDeviceManager(deps DeviceManagerDeps, logger *zap.Logger) *DeviceManager {
	return &DeviceManager{
		link:            deps.Link,
		protocol:        deps.Protocol,
		state:           deps.State,
		enumerator:      deps.Enumerator,
		appSettings:     deps.AppSettings,
		telemetry:       deps.Telemetry,
		events:          publisherOrNop(deps.Events),
		enableTelemetry: deps.EnableTelemetry,
		baseLogger:      logger,
		logger:          utils.NewServiceLogger(logger, "device-manager"),
	}
}

// NewDeviceManagerFromConfig is a convenience constructor using the device section of cfg
func NewDeviceManagerFromConfig(cfg *config.Config, deps DeviceManagerDeps, logger *zap.Logger) *DeviceManager {
	deps.EnableTelemetry = cfg.Device.TelemetryEnabled
	return NewDeviceManager(deps, logger)
}

// ScanPorts lists serial ports: known wheel boards first, then other USB ports
func (dm *DeviceManager) ScanPorts(ctx context.Context) ([]model.PortInfo, error) {
	ports, err := dm.enumerator.ListPorts()
	if err != nil {
		dm.logger.Error("Port scan failed", zap.Error(err))
		return nil, apperrors.Wrap(err, apperrors.KindConnection, "port scan")
	}
	sort.SliceStable(ports, func(i, j int) bool {
		return portRank(ports[i]) < portRank(ports[j])
	})
	return ports, nil
}

func portRank(p model.PortInfo) int {
	switch {
	case p.Board != "" && !p.Bootloader:
		return 0
	case p.IsUSB:
		return 1
	default:
		return 2
	}
}

// IsConnected reports whether a wheel or the demo device is active
func (dm *DeviceManager) IsConnected() bool {
	return dm.link.IsConnected() || dm.state.IsDemoMode()
}

// Connect opens port and identifies the wheel. INFO is tried first; older
// firmware falls back to the version and bulk settings commands.
func (dm *DeviceManager) Connect(ctx context.Context, port string) (*model.DeviceInfo, error) {
	if strings.TrimSpace(port) == "" {
		return nil, apperrors.New(apperrors.KindInvalidArgument, "port is required")
	}

	dm.mutex.Lock()
	defer dm.mutex.Unlock()

	dm.stopDemoLocked()
	dm.state.SetDevice(nil)
	dm.link.SetTelemetryEnabled(false)

	if err := dm.link.Connect(ctx, port); err != nil {
		utils.NewDeviceLogger(dm.baseLogger, port, "").LogConnection("connect", false, err)
		return nil, err
	}

	device, cfg := dm.handshake(ctx, port)
	deviceLogger := utils.NewDeviceLogger(dm.baseLogger, port, device.FirmwareVersion)

	if cfg != nil {
		dm.protocol.UpdateEffectsState(cfg.DesktopEffectsByte)
		if dm.telemetry != nil {
			dm.telemetry.SetMaxTorque(cfg.MaxTorque)
		}
		if dm.enableTelemetry && capability.Effective(device).SupportsTelemetry {
			if err := dm.protocol.SetTelemetryEnabled(ctx, true); err != nil {
				deviceLogger.Warn("Failed to enable telemetry", zap.Error(err))
			}
		}
	}

	dm.state.SetDevice(device)
	dm.remember(ctx, device)

	deviceLogger.LogConnection("connect", true, nil)
	deviceLogger.Info("Device connected",
		zap.String("capabilities", capability.Describe(device)),
		zap.Bool("serial_config", device.SupportsSerialConfig),
	)
	dm.events.Publish(model.NewEvent(model.EventDeviceConnected, "device-manager", device))
	return device, nil
}

func (dm *DeviceManager) handshake(ctx context.Context, port string) (*model.DeviceInfo, *model.FfbConfig) {
	info, err := dm.protocol.TryGetInfo(ctx)
	if err != nil {
		dm.logger.Debug("INFO not answered, falling back", zap.String("port", port), zap.Error(err))
		info = nil
	}

	firmware := unknownFirmware
	if info != nil {
		firmware = info.FirmwareVersion
	} else if version, err := dm.protocol.GetFirmwareVersion(ctx); err == nil {
		firmware = version
	} else {
		dm.logger.Warn("Firmware version not detected, continuing in unknown firmware mode", zap.String("port", port), zap.Error(err))
	}

	var cfg *model.FfbConfig
	if info != nil {
		cfg = info.Config
	}
	if cfg == nil {
		if settings, err := dm.protocol.GetAllSettings(ctx); err == nil {
			cfg = settings
		} else {
			dm.logger.Debug("Bulk settings not answered", zap.String("port", port), zap.Error(err))
		}
	}
	supportsSerial := cfg != nil

	device := &model.DeviceInfo{
		Port:                 port,
		FirmwareVersion:      firmware,
		SupportsInfoCommand:  info != nil,
		SupportsSerialConfig: supportsSerial,
		SupportsTelemetry:    supportsSerial,
		ConnectedAt:          time.Now(),
	}
	if info != nil {
		device.CapabilityMask = info.CapabilityMask
		device.Calibration = info.Calibration
	}
	device.Capabilities = capability.Resolve(firmware, device.CapabilityMask)

	dm.describePort(device)
	return device, cfg
}

// describePort attaches USB identity from the port scan
func (dm *DeviceManager) describePort(device *model.DeviceInfo) {
	if dm.enumerator == nil {
		return
	}
	ports, err := dm.enumerator.ListPorts()
	if err != nil {
		dm.logger.Debug("Port details unavailable", zap.Error(err))
		return
	}
	for _, p := range ports {
		if p.Name != device.Port {
			continue
		}
		device.VID = p.VID
		device.PID = p.PID
		device.ProductName = p.Product
		if device.ProductName == "" {
			device.ProductName = p.Board
		}
		device.SerialNumber = p.SerialNumber
		return
	}
}

func (dm *DeviceManager) remember(ctx context.Context, device *model.DeviceInfo) {
	if dm.appSettings == nil {
		return
	}
	settings, err := dm.appSettings.Load(ctx)
	if err != nil {
		dm.logger.Warn("Failed to load app settings", zap.Error(err))
		return
	}
	settings.LastPort = device.Port
	settings.LastDeviceID = device.DeviceID()
	settings.LastDeviceName = device.DisplayName()
	if err := dm.appSettings.Save(ctx, settings); err != nil {
		dm.logger.Warn("Failed to remember device", zap.Error(err))
	}
}

// ConnectDemo activates the demo device. The serial link is closed.
func (dm *DeviceManager) ConnectDemo(ctx context.Context) *model.DeviceInfo {
	dm.mutex.Lock()
	defer dm.mutex.Unlock()

	dm.stopDemoLocked()
	dm.link.Disconnect()
	dm.link.SetTelemetryEnabled(false)

	device := DemoDevice()
	dm.state.SetDemoMode(true, device)

	if dm.telemetry != nil {
		demoCtx, cancel := context.WithCancel(context.Background())
		dm.stopDemo = cancel
		go dm.telemetry.RunDemo(demoCtx)
	}

	dm.logger.Info("Demo device connected")
	dm.events.Publish(model.NewEvent(model.EventDeviceConnected, "device-manager", device))
	return device
}

// Disconnect closes the session and clears the active device
func (dm *DeviceManager) Disconnect() {
	dm.mutex.Lock()
	defer dm.mutex.Unlock()

	device := dm.state.Current()
	dm.stopDemoLocked()
	dm.link.Disconnect()
	dm.link.SetTelemetryEnabled(false)
	dm.state.SetDevice(nil)

	if device != nil {
		utils.NewDeviceLogger(dm.baseLogger, device.Port, device.FirmwareVersion).LogConnection("disconnect", true, nil)
		dm.events.Publish(model.NewEvent(model.EventDeviceDisconnected, "device-manager", map[string]interface{}{
			"port": device.Port,
		}))
	}
}

// HandleConnectionLost is called by the transport when the wheel drops unexpectedly
func (dm *DeviceManager) HandleConnectionLost() {
	device := dm.state.Current()
	dm.state.SetDevice(nil)
	dm.link.SetTelemetryEnabled(false)

	port := dm.link.PortName()
	if device != nil {
		port = device.Port
	}
	dm.logger.Warn("Device connection lost", zap.String("port", port))
	dm.events.Publish(model.NewEvent(model.EventDeviceLost, "device-manager", map[string]interface{}{
		"port":             port,
		"suggested_action": "Check cable and reconnect",
	}))
}

// AutoDetect probes every port with the version command and returns the first
// one answering like the wheel firmware
func (dm *DeviceManager) AutoDetect(ctx context.Context) (string, error) {
	if dm.link.IsConnected() {
		return dm.link.PortName(), nil
	}

	ports, err := dm.ScanPorts(ctx)
	if err != nil {
		return "", err
	}

	dm.mutex.Lock()
	defer dm.mutex.Unlock()

	for _, p := range ports {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if p.Bootloader {
			continue
		}
		if dm.probe(ctx, p.Name) {
			dm.logger.Info("Wheel detected", zap.String("port", p.Name))
			return p.Name, nil
		}
	}
	return "", apperrors.New(apperrors.KindNotFound, "no port answered with a firmware version").
		WithAction("Check the cable and that the wheel firmware is flashed")
}

func (dm *DeviceManager) probe(ctx context.Context, port string) bool {
	if err := dm.link.Connect(ctx, port); err != nil {
		dm.logger.Debug("Probe open failed", zap.String("port", port), zap.Error(err))
		return false
	}
	defer dm.link.Disconnect()

	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	version, err := dm.protocol.GetFirmwareVersion(probeCtx)
	if err != nil {
		dm.logger.Debug("Probe got no version", zap.String("port", port), zap.Error(err))
		return false
	}
	return version != ""
}

func (dm *DeviceManager) stopDemoLocked() {
	if dm.stopDemo != nil {
		dm.stopDemo()
		dm.stopDemo = nil
	}
	if dm.state.IsDemoMode() {
		dm.state.SetDemoMode(false, nil)
		dm.state.SetDevice(nil)
	}
}
