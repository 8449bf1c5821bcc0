package service

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"ffb-control-service/internal/config"
	"ffb-control-service/internal/model"
	"ffb-control-service/internal/protocol/serial"
	"ffb-control-service/internal/repository"
	"ffb-control-service/internal/simulator"
)

type recordingPublisher struct {
	mutex  sync.Mutex
	events []model.Event
}

func (p *recordingPublisher) Publish(event model.Event) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.events = append(p.events, event)
}

func (p *recordingPublisher) Types() []model.EventType {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	types := make([]model.EventType, 0, len(p.events))
	for _, e := range p.events {
		types = append(types, e.Type)
	}
	return types
}

func (p *recordingPublisher) Reset() {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.events = nil
}

func testTimeouts() config.TimeoutConfig {
	return config.TimeoutConfig{
		FieldWrite:      250 * time.Millisecond,
		Rotation:        250 * time.Millisecond,
		Center:          250 * time.Millisecond,
		BulkRead:        250 * time.Millisecond,
		Save:            250 * time.Millisecond,
		Info:            150 * time.Millisecond,
		Version:         150 * time.Millisecond,
		Attempts:        2,
		RetryDelay:      5 * time.Millisecond,
		SuppressSettle:  5 * time.Millisecond,
		RestoreSettle:   2 * time.Millisecond,
		ReloadAfterSave: 5 * time.Millisecond,
	}
}

type harness struct {
	t           *testing.T
	ctx         context.Context
	wheel       *simulator.Wheel
	transport   *serial.Transport
	events      *recordingPublisher
	state       *DeviceState
	tracker     *PersistenceTracker
	protocol    *ProtocolService
	telemetry   *TelemetryService
	snapshots   *SnapshotService
	settings    *SettingsService
	manager     *DeviceManager
	profiles    repository.ProfileRepository
	appSettings repository.SettingsRepository
	backups     repository.BackupRepository
	dir         string
}

func quietOptions() simulator.Options {
	opts := simulator.DefaultOptions()
	opts.TelemetryInterval = 0
	return opts
}

func newHarness(t *testing.T, opts simulator.Options) *harness {
	t.Helper()

	logger := zaptest.NewLogger(t)
	dir := t.TempDir()
	timeouts := testTimeouts()

	h := &harness{
		t:      t,
		ctx:    context.Background(),
		wheel:  simulator.NewWheel(opts),
		events: &recordingPublisher{},
		dir:    dir,
	}

	opener := serial.OpenerFunc(func(ctx context.Context, name string) (serial.Port, error) {
		return h.wheel.Open(), nil
	})
	h.transport = serial.NewTransport(opener, 0, logger)
	h.state = NewDeviceState()
	h.tracker = NewPersistenceTracker()
	h.protocol = NewProtocolService(h.transport, timeouts, logger)
	h.telemetry = NewTelemetryService(h.events, logger)
	h.profiles = repository.NewProfileRepository(filepath.Join(dir, "profiles"), logger)
	h.appSettings = repository.NewSettingsRepository(filepath.Join(dir, "settings.json"), logger)
	h.backups = repository.NewBackupRepository(filepath.Join(dir, "settings-backup.json"), logger)
	h.snapshots = NewSnapshotService(repository.NewSnapshotRepository(filepath.Join(dir, "snapshots"), logger), h.state, h.telemetry, logger)

	h.settings = NewSettingsService(SettingsDeps{
		Protocol:    h.protocol,
		State:       h.state,
		Tracker:     h.tracker,
		Profiles:    h.profiles,
		AppSettings: h.appSettings,
		Backups:     h.backups,
		Snapshots:   h.snapshots,
		Events:      h.events,
		Timeouts:    timeouts,
	}, logger)

	h.manager = NewDeviceManager(DeviceManagerDeps{
		Link:        h.transport,
		Protocol:    h.protocol,
		State:       h.state,
		Enumerator:  h.wheel,
		AppSettings: h.appSettings,
		Telemetry:   h.telemetry,
		Events:      h.events,
	}, logger)

	h.transport.OnTelemetry(h.telemetry.Record)
	h.transport.OnDisconnect(h.manager.HandleConnectionLost)

	t.Cleanup(h.manager.Disconnect)
	return h
}

func (h *harness) connect() *model.DeviceInfo {
	h.t.Helper()
	device, err := h.manager.Connect(h.ctx, simulator.PortName)
	require.NoError(h.t, err)
	h.wheel.ResetReceived()
	h.events.Reset()
	return device
}

func (h *harness) load() *model.FfbConfig {
	h.t.Helper()
	cfg, err := h.settings.LoadFromDevice(h.ctx)
	require.NoError(h.t, err)
	require.NotNil(h.t, cfg)
	h.wheel.ResetReceived()
	h.events.Reset()
	return cfg
}

func tunedConfig(base *model.FfbConfig) *model.FfbConfig {
	cfg := base.Clone()
	cfg.RotationDeg = 900
	cfg.GeneralGain = 90
	cfg.DamperGain = 40
	cfg.FrictionGain = 30
	cfg.InertiaGain = 20
	cfg.SpringGain = 60
	cfg.ConstantGain = 70
	cfg.PeriodicGain = 80
	cfg.CenterGain = 65
	cfg.StopGain = 95
	cfg.MinTorque = 3
	cfg.BrakePressureOrBalance = 120
	return cfg
}
