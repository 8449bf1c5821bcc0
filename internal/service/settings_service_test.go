package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "ffb-control-service/internal/errors"
	"ffb-control-service/internal/model"
)

func TestLoadFromDeviceMarksSavedToWheel(t *testing.T) {
	h := newHarness(t, quietOptions())
	h.connect()

	cfg, err := h.settings.LoadFromDevice(h.ctx)
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.True(t, model.AreEquivalent(h.wheel.ActiveConfig(), cfg))
	assert.True(t, model.AreEquivalent(cfg, h.settings.CurrentConfig()))
	assert.Equal(t, model.PersistenceSavedToWheel, h.settings.PersistenceState())
	assert.Equal(t, []model.EventType{model.EventSettingsLoaded, model.EventPersistenceChanged}, h.events.Types())
}

func TestLoadFromDeviceRetriesThenFails(t *testing.T) {
	h := newHarness(t, quietOptions())
	h.connect()
	h.wheel.Mute("U", 2)

	cfg, err := h.settings.LoadFromDevice(h.ctx)
	assert.Nil(t, cfg)
	assert.True(t, apperrors.Is(err, apperrors.KindTimeout))
	assert.Equal(t, []string{"U", "U"}, h.wheel.Received())
	assert.Equal(t, model.PersistenceUnknown, h.settings.PersistenceState())
}

func TestApplyConfigWritesFieldsInOrder(t *testing.T) {
	h := newHarness(t, quietOptions())
	h.connect()
	loaded := h.load()

	tuned := tunedConfig(loaded)
	require.NoError(t, h.settings.ApplyConfig(h.ctx, tuned))

	assert.Equal(t, []string{
		"G 900", "FG 90", "FD 40", "FF 30", "FI 20", "FM 60",
		"FC 70", "FS 80", "FA 65", "FB 95", "FJ 3", "B 120",
	}, h.wheel.Received())
	assert.True(t, model.AreEquivalent(tuned, h.wheel.ActiveConfig()))
	assert.True(t, model.AreEquivalent(tuned, h.settings.CurrentConfig()))
	assert.Equal(t, model.PersistenceUnsavedChanges, h.settings.PersistenceState())
	assert.Contains(t, h.events.Types(), model.EventSettingsApplied)

	require.NoError(t, h.settings.ApplyConfig(h.ctx, loaded))
	assert.Equal(t, model.PersistenceSavedToWheel, h.settings.PersistenceState())
}

func TestApplyConfigRetriesFieldOnce(t *testing.T) {
	h := newHarness(t, quietOptions())
	h.connect()
	loaded := h.load()
	h.wheel.Mute("FD", 1)

	require.NoError(t, h.settings.ApplyConfig(h.ctx, tunedConfig(loaded)))

	count := 0
	for _, c := range h.wheel.Received() {
		if c == "FD 40" {
			count++
		}
	}
	assert.Equal(t, 2, count)
}

func TestApplyConfigAbortsOnFieldFailure(t *testing.T) {
	h := newHarness(t, quietOptions())
	h.connect()
	loaded := h.load()
	h.wheel.Mute("FI", 2)

	err := h.settings.ApplyConfig(h.ctx, tunedConfig(loaded))
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindTimeout))
	assert.Contains(t, err.Error(), "Inertia gain")

	received := h.wheel.Received()
	assert.Equal(t, "FI 20", received[len(received)-1])
	assert.NotContains(t, received, "FM 60")
	assert.NotContains(t, received, "B 120")

	assert.True(t, model.AreEquivalent(loaded, h.settings.CurrentConfig()))
	assert.Equal(t, model.PersistenceSavedToWheel, h.settings.PersistenceState())
	assert.Equal(t, 30, h.wheel.ActiveConfig().FrictionGain)
}

func TestApplyConfigStopsOnCancellation(t *testing.T) {
	h := newHarness(t, quietOptions())
	h.connect()
	loaded := h.load()

	ctx, cancel := context.WithCancel(h.ctx)
	cancel()

	err := h.settings.ApplyConfig(ctx, tunedConfig(loaded))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, h.wheel.Received())

	require.NoError(t, h.settings.ApplyRotation(h.ctx, 540))
	assert.Equal(t, 540, h.wheel.ActiveConfig().RotationDeg)
}

func TestApplyRotationUpdatesCurrentConfig(t *testing.T) {
	h := newHarness(t, quietOptions())
	h.connect()
	h.load()

	require.NoError(t, h.settings.ApplyRotation(h.ctx, 540))

	assert.Equal(t, []string{"G 540"}, h.wheel.Received())
	assert.Equal(t, 540, h.settings.CurrentConfig().RotationDeg)
	assert.Equal(t, model.PersistenceUnsavedChanges, h.settings.PersistenceState())

	err := h.settings.ApplyRotation(h.ctx, 0)
	assert.True(t, apperrors.Is(err, apperrors.KindInvalidArgument))
}

func TestCenterAndCalibrate(t *testing.T) {
	h := newHarness(t, quietOptions())
	h.connect()
	h.load()

	require.NoError(t, h.settings.Center(h.ctx))
	require.NoError(t, h.settings.Calibrate(h.ctx))
	assert.Equal(t, []string{"C", "R"}, h.wheel.Received())

	snapshots, err := h.snapshots.List(h.ctx, 0)
	require.NoError(t, err)
	require.Len(t, snapshots, 1)
	assert.Equal(t, model.SnapshotCalibration, snapshots[0].Kind)
}

func TestSaveToWheelBacksUpBeforeSaving(t *testing.T) {
	h := newHarness(t, quietOptions())
	h.connect()
	loaded := h.load()

	tuned := tunedConfig(loaded)
	require.NoError(t, h.settings.ApplyConfig(h.ctx, tuned))
	h.wheel.ResetReceived()
	h.events.Reset()

	require.NoError(t, h.settings.SaveToWheel(h.ctx))

	assert.Equal(t, []string{"U", "A", "U"}, h.wheel.Received())
	assert.True(t, model.AreEquivalent(tuned, h.wheel.SavedConfig()))
	assert.Equal(t, model.PersistenceSavedToWheel, h.settings.PersistenceState())
	assert.Contains(t, h.events.Types(), model.EventSavedToWheel)

	backup, err := h.settings.LoadBackup(h.ctx)
	require.NoError(t, err)
	require.NotNil(t, backup)
	assert.True(t, model.AreEquivalent(tuned, backup.Config))
	assert.Equal(t, h.state.Current().FirmwareVersion, backup.FirmwareVersion)

	snapshots, err := h.snapshots.List(h.ctx, 0)
	require.NoError(t, err)
	require.NotEmpty(t, snapshots)
	assert.Equal(t, model.SnapshotSaveToWheel, snapshots[0].Kind)
}

func TestSaveToWheelSurvivesBackupFailure(t *testing.T) {
	h := newHarness(t, quietOptions())
	h.connect()
	h.load()

	// a directory where the backup file should be makes the write fail
	require.NoError(t, os.MkdirAll(filepath.Join(h.dir, "settings-backup.json", "x"), 0755))

	require.NoError(t, h.settings.SaveToWheel(h.ctx))
	assert.Contains(t, h.wheel.Received(), "A")
	assert.Equal(t, model.PersistenceSavedToWheel, h.settings.PersistenceState())
}

func TestSaveToWheelSkippedWithoutEeprom(t *testing.T) {
	opts := quietOptions()
	opts.FirmwareVersion = "fw-v250p"
	opts.CapabilityMask = nil
	h := newHarness(t, opts)
	h.connect()
	h.load()

	assert.False(t, h.settings.CanSaveToWheel())
	require.NoError(t, h.settings.SaveToWheel(h.ctx))
	assert.Empty(t, h.wheel.Received())
}

func TestSaveToPcDoesNotTouchWheel(t *testing.T) {
	h := newHarness(t, quietOptions())
	h.connect()
	loaded := h.load()

	profile := &model.Profile{Name: "Drift", Config: tunedConfig(loaded)}
	require.NoError(t, h.settings.SaveToPc(h.ctx, profile))

	assert.Empty(t, h.wheel.Received())
	assert.Equal(t, model.PersistenceSavedToPc, h.settings.PersistenceState())
	assert.Equal(t, "Drift", h.tracker.LastPcProfile())
	assert.True(t, model.AreEquivalent(profile.Config, h.settings.CurrentConfig()))

	stored, err := h.profiles.GetByName(h.ctx, "Drift")
	require.NoError(t, err)
	assert.Equal(t, h.state.Current().FirmwareVersion, stored.FirmwareVersion)

	settings, err := h.appSettings.Load(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, "Drift", settings.LastProfileName)
}

func rememberProfile(t *testing.T, h *harness, profile *model.Profile) {
	t.Helper()
	require.NoError(t, h.profiles.Save(h.ctx, profile))
	settings, err := h.appSettings.Load(h.ctx)
	require.NoError(t, err)
	settings.LastProfileName = profile.Name
	require.NoError(t, h.appSettings.Save(h.ctx, settings))
}

func TestSyncOnConnectAppliesProfileOnConflict(t *testing.T) {
	h := newHarness(t, quietOptions())
	h.connect()

	profile := &model.Profile{Name: "Rally", Config: tunedConfig(h.wheel.ActiveConfig())}
	rememberProfile(t, h, profile)

	calls := 0
	resolver := func(ctx context.Context, wheel *model.FfbConfig, p *model.Profile) model.SyncDecision {
		calls++
		assert.Equal(t, "Rally", p.Name)
		return model.SyncApplyProfile
	}

	require.NoError(t, h.settings.SyncOnConnect(h.ctx, resolver))

	assert.Equal(t, 1, calls)
	assert.True(t, model.AreEquivalent(profile.Config, h.wheel.ActiveConfig()))
	assert.Equal(t, model.PersistenceUnsavedChanges, h.settings.PersistenceState())
}

func TestSyncOnConnectKeepsWheelByDefault(t *testing.T) {
	h := newHarness(t, quietOptions())
	h.connect()
	original := h.wheel.ActiveConfig()

	rememberProfile(t, h, &model.Profile{Name: "Rally", Config: tunedConfig(original)})

	require.NoError(t, h.settings.SyncOnConnect(h.ctx, nil))

	assert.Equal(t, []string{"U"}, h.wheel.Received())
	assert.True(t, model.AreEquivalent(original, h.settings.CurrentConfig()))
	assert.Equal(t, model.PersistenceSavedToWheel, h.settings.PersistenceState())
}

func TestSyncOnConnectSkipsResolverWhenEqual(t *testing.T) {
	h := newHarness(t, quietOptions())
	h.connect()
	rememberProfile(t, h, &model.Profile{Name: "Same", Config: h.wheel.ActiveConfig()})

	resolver := func(context.Context, *model.FfbConfig, *model.Profile) model.SyncDecision {
		t.Fatal("resolver must not be called")
		return model.SyncUseWheel
	}
	require.NoError(t, h.settings.SyncOnConnect(h.ctx, resolver))
}

func TestSyncOnConnectFallsBackToProfile(t *testing.T) {
	opts := quietOptions()
	opts.SupportsInfo = false
	opts.SupportsSettings = false
	h := newHarness(t, opts)
	device := h.connect()
	require.False(t, device.SupportsSerialConfig)

	cfg := tunedConfig(h.wheel.ActiveConfig())
	require.NoError(t, h.profiles.Save(h.ctx, &model.Profile{Name: "Only", Config: cfg}))

	require.NoError(t, h.settings.SyncOnConnect(h.ctx, PolicyResolver("profile")))

	assert.Empty(t, h.wheel.Received())
	assert.True(t, model.AreEquivalent(cfg, h.settings.CurrentConfig()))
	assert.Equal(t, model.PersistenceSavedToPc, h.settings.PersistenceState())
	assert.Equal(t, "Only", h.tracker.LastPcProfile())
}

func TestDemoDeviceOperationsAreNoOps(t *testing.T) {
	h := newHarness(t, quietOptions())
	h.manager.ConnectDemo(h.ctx)

	assert.True(t, h.state.Capabilities().SupportsSerialConfig)
	assert.False(t, h.settings.CanUseSerialConfig())

	cfg, err := h.settings.LoadFromDevice(h.ctx)
	assert.NoError(t, err)
	assert.Nil(t, cfg)
	assert.NoError(t, h.settings.ApplyConfig(h.ctx, model.DefaultFfbConfig()))
	assert.NoError(t, h.settings.SaveToWheel(h.ctx))
	assert.NoError(t, h.settings.Center(h.ctx))

	assert.Nil(t, h.settings.CurrentConfig())
	assert.Equal(t, model.PersistenceUnknown, h.settings.PersistenceState())
	assert.Empty(t, h.wheel.Received())
}

func TestOperationsWithoutDeviceAreNoOps(t *testing.T) {
	h := newHarness(t, quietOptions())

	assert.NoError(t, h.settings.ApplyConfig(h.ctx, model.DefaultFfbConfig()))
	assert.NoError(t, h.settings.SyncOnConnect(h.ctx, nil))

	err := h.settings.ApplyConfig(h.ctx, nil)
	assert.True(t, apperrors.Is(err, apperrors.KindInvalidArgument))
}

func TestRestoreBackupAppliesStoredConfig(t *testing.T) {
	h := newHarness(t, quietOptions())
	h.connect()
	loaded := h.load()

	restored, err := h.settings.RestoreBackup(h.ctx)
	require.NoError(t, err)
	assert.False(t, restored)

	require.NoError(t, h.backups.Save(h.ctx, &model.SettingsBackup{Config: tunedConfig(loaded)}))
	restored, err = h.settings.RestoreBackup(h.ctx)
	require.NoError(t, err)
	assert.True(t, restored)
	assert.True(t, model.AreEquivalent(tunedConfig(loaded), h.wheel.ActiveConfig()))
}

func TestApplyProfileRemembersName(t *testing.T) {
	h := newHarness(t, quietOptions())
	h.connect()
	loaded := h.load()
	require.NoError(t, h.profiles.Save(h.ctx, &model.Profile{Name: "GT", Config: tunedConfig(loaded)}))

	profile, err := h.settings.ApplyProfile(h.ctx, "GT")
	require.NoError(t, err)
	assert.Equal(t, "GT", profile.Name)
	assert.Equal(t, 900, h.wheel.ActiveConfig().RotationDeg)

	settings, err := h.appSettings.Load(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, "GT", settings.LastProfileName)

	_, err = h.settings.ApplyProfile(h.ctx, "missing")
	assert.True(t, apperrors.Is(err, apperrors.KindNotFound))
}
