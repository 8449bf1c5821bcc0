package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"ffb-control-service/internal/config"
	"ffb-control-service/internal/model"
	"ffb-control-service/internal/simulator"
)

func simulateConfig(t *testing.T) *config.Config {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Device.Simulate = true
	cfg.Device.TelemetryEnabled = false
	cfg.Serial.SettleDelay = 0
	cfg.Storage.DataDir = dir
	cfg.Storage.ProfilesDir = filepath.Join(dir, "profiles")
	cfg.Storage.SnapshotsDir = filepath.Join(dir, "snapshots")
	cfg.Storage.SettingsFile = filepath.Join(dir, "settings.json")
	cfg.Storage.BackupFile = filepath.Join(dir, "settings-backup.json")
	return cfg
}

func TestConnectOnStartupSimulated(t *testing.T) {
	cfg := simulateConfig(t)
	cfg.Device.AutoConnect = true

	stack := New(cfg, zaptest.NewLogger(t))
	require.NotNil(t, stack.Wheel)
	stack.Start()
	t.Cleanup(stack.Close)

	events := stack.EventBus.Subscribe(model.EventDeviceConnected)

	require.NoError(t, stack.ConnectOnStartup(context.Background()))

	device := stack.State.Current()
	require.NotNil(t, device)
	assert.Equal(t, simulator.PortName, device.Port)
	assert.Equal(t, model.PersistenceSavedToWheel, stack.Settings.PersistenceState())

	select {
	case event := <-events:
		assert.Equal(t, model.EventDeviceConnected, event.Type)
	case <-time.After(time.Second):
		t.Fatal("device.connected not published")
	}
}

func TestConnectOnStartupDisabled(t *testing.T) {
	cfg := simulateConfig(t)
	stack := New(cfg, zaptest.NewLogger(t))
	t.Cleanup(stack.Close)

	require.NoError(t, stack.ConnectOnStartup(context.Background()))
	assert.Nil(t, stack.State.Current())
}

func TestConnectOnStartupDemo(t *testing.T) {
	cfg := simulateConfig(t)
	cfg.Device.DemoMode = true
	stack := New(cfg, zaptest.NewLogger(t))
	t.Cleanup(stack.Close)

	require.NoError(t, stack.ConnectOnStartup(context.Background()))
	assert.True(t, stack.State.IsDemoMode())
	assert.False(t, stack.Settings.CanUseSerialConfig())
}

func TestSerialLinesArePublished(t *testing.T) {
	cfg := simulateConfig(t)
	cfg.Device.AutoConnect = true
	stack := New(cfg, zaptest.NewLogger(t))
	stack.Start()
	t.Cleanup(stack.Close)

	lines := stack.EventBus.Subscribe(model.EventSerialLine)
	require.NoError(t, stack.ConnectOnStartup(context.Background()))

	stack.Wheel.Emit("Calibration done")

	select {
	case event := <-lines:
		assert.Equal(t, map[string]interface{}{"line": "Calibration done"}, event.Data)
	case <-time.After(time.Second):
		t.Fatal("serial line not published")
	}
}
