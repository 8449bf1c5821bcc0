package repository

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	apperrors "ffb-control-service/internal/errors"
	"ffb-control-service/internal/model"
)

func TestProfileSaveAndVersioning(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	repo := NewProfileRepository(dir, zaptest.NewLogger(t)).(*profileRepository)

	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	repo.now = func() time.Time { return created }

	cfg := model.DefaultFfbConfig()
	require.NoError(t, repo.Save(ctx, &model.Profile{Name: "Drift", Config: cfg}))

	got, err := repo.GetByName(ctx, "Drift")
	require.NoError(t, err)
	assert.Equal(t, 1, got.Version)
	assert.Equal(t, created, got.CreatedAt)
	assert.True(t, model.AreEquivalent(cfg, got.Config))

	updated := created.Add(time.Hour)
	repo.now = func() time.Time { return updated }
	require.NoError(t, repo.Save(ctx, &model.Profile{Name: "Drift", Config: cfg}))

	got, err = repo.GetByName(ctx, "Drift")
	require.NoError(t, err)
	assert.Equal(t, 2, got.Version)
	assert.Equal(t, created, got.CreatedAt)
	assert.Equal(t, updated, got.UpdatedAt)

	require.NoError(t, repo.Save(ctx, &model.Profile{Name: "Drift", Config: cfg}))
	got, err = repo.GetByName(ctx, "Drift")
	require.NoError(t, err)
	assert.Equal(t, 3, got.Version)
}

func TestProfileNamesAreSanitized(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	repo := NewProfileRepository(dir, zaptest.NewLogger(t))

	require.NoError(t, repo.Save(ctx, &model.Profile{Name: `GT3/Rain:Wet?`, Config: model.DefaultFfbConfig()}))

	_, err := os.Stat(filepath.Join(dir, "GT3_Rain_Wet_.json"))
	require.NoError(t, err)

	got, err := repo.GetByName(ctx, `GT3/Rain:Wet?`)
	require.NoError(t, err)
	assert.Equal(t, `GT3/Rain:Wet?`, got.Name)
}

func TestProfileListSortedAndSkipsCorrupt(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	repo := NewProfileRepository(dir, zaptest.NewLogger(t))

	for _, name := range []string{"rally", "Drift", "GT"} {
		require.NoError(t, repo.Save(ctx, &model.Profile{Name: name, Config: model.DefaultFfbConfig()}))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{not json"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0644))

	profiles, err := repo.List(ctx)
	require.NoError(t, err)

	names := make([]string, 0, len(profiles))
	for _, p := range profiles {
		names = append(names, p.Name)
	}
	assert.Equal(t, []string{"Drift", "GT", "rally"}, names)
}

func TestProfileListMissingDirectory(t *testing.T) {
	repo := NewProfileRepository(filepath.Join(t.TempDir(), "none"), zaptest.NewLogger(t))
	profiles, err := repo.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, profiles)
}

func TestProfileGetAndDeleteMissing(t *testing.T) {
	ctx := context.Background()
	repo := NewProfileRepository(t.TempDir(), zaptest.NewLogger(t))

	_, err := repo.GetByName(ctx, "ghost")
	assert.True(t, apperrors.Is(err, apperrors.KindNotFound))

	err = repo.Delete(ctx, "ghost")
	assert.True(t, apperrors.Is(err, apperrors.KindNotFound))

	err = repo.Save(ctx, &model.Profile{Name: " ", Config: model.DefaultFfbConfig()})
	assert.True(t, apperrors.Is(err, apperrors.KindInvalidArgument))
}

func TestSettingsDefaultsWhenMissingOrCorrupt(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "settings.json")
	repo := NewSettingsRepository(path, zaptest.NewLogger(t))

	settings, err := repo.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, DefaultAppSettings(), settings)

	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0644))
	settings, err = repo.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, DefaultAppSettings(), settings)

	settings.LastPort = "COM7"
	settings.LastProfileName = "Drift"
	require.NoError(t, repo.Save(ctx, settings))

	loaded, err := repo.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "COM7", loaded.LastPort)
	assert.Equal(t, "Drift", loaded.LastProfileName)
}

func TestBackupRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := NewBackupRepository(filepath.Join(t.TempDir(), "backup", "settings-backup.json"), zaptest.NewLogger(t))

	backup, err := repo.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, backup)

	cfg := model.DefaultFfbConfig()
	cfg.DamperGain = 12
	require.NoError(t, repo.Save(ctx, &model.SettingsBackup{Config: cfg, FirmwareVersion: "fw-v250", Timestamp: time.Now()}))

	backup, err = repo.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, backup)
	assert.Equal(t, 12, backup.Config.DamperGain)
	assert.Equal(t, "fw-v250", backup.FirmwareVersion)
}

func TestSnapshotsNewestFirstWithTelemetry(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	repo := NewSnapshotRepository(dir, zaptest.NewLogger(t))

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	older := &model.Snapshot{CreatedAt: base, Kind: model.SnapshotManual, Label: "older", Config: model.DefaultFfbConfig()}
	newer := &model.Snapshot{CreatedAt: base.Add(time.Minute), Kind: model.SnapshotSaveToWheel, Label: "newer", Config: model.DefaultFfbConfig()}

	require.NoError(t, repo.Create(ctx, older, nil))
	require.NoError(t, repo.Create(ctx, newer, []model.TorqueSample{{Value: 5, Timestamp: base}, {Value: -3, Timestamp: base}}))
	assert.NotEqual(t, uuid.Nil, older.ID)

	list, err := repo.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "newer", list[0].Label)
	assert.Equal(t, "older", list[1].Label)

	limited, err := repo.List(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	got, err := repo.GetByID(ctx, older.ID)
	require.NoError(t, err)
	assert.Equal(t, "older", got.Label)

	_, err = repo.GetByID(ctx, uuid.New())
	assert.True(t, apperrors.Is(err, apperrors.KindNotFound))

	matches, err := filepath.Glob(filepath.Join(dir, "*", telemetryFile))
	require.NoError(t, err)
	require.Len(t, matches, 1)
	data, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	assert.Contains(t, string(data), "timestamp,torque")
	assert.Contains(t, string(data), ",-3")
}
