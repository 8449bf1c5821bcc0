// internal/repository/settings_repository.go
package repository

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"ffb-control-service/internal/model"
)

// DefaultAppSettings returns the settings used before anything was saved
func DefaultAppSettings() *model.AppSettings {
	return &model.AppSettings{
		AutoApplyLastProfile: true,
		TelemetryEnabled:     true,
	}
}

type settingsRepository struct {
	mutex  sync.Mutex
	path   string
	logger *zap.Logger
}

// NewSettingsRepository stores app settings in a single JSON file
func NewSettingsRepository(path string, logger *zap.Logger) SettingsRepository {
	return &settingsRepository{path: path, logger: logger}
}

// Load returns the stored settings, or defaults when the file is missing or unreadable
func (r *settingsRepository) Load(ctx context.Context) (*model.AppSettings, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	settings := DefaultAppSettings()
	if err := readJSON(r.path, settings); err != nil {
		if !errors.Is(err, ErrNotFound) {
			r.logger.Warn("App settings unreadable, using defaults", zap.String("path", r.path), zap.Error(err))
		}
		return DefaultAppSettings(), nil
	}
	return settings, nil
}

// Save writes the settings file
func (r *settingsRepository) Save(ctx context.Context, settings *model.AppSettings) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if settings == nil {
		settings = DefaultAppSettings()
	}
	if err := writeJSON(r.path, settings); err != nil {
		r.logger.Error("Failed to save app settings", zap.String("path", r.path), zap.Error(err))
		return err
	}
	return nil
}

type backupRepository struct {
	mutex  sync.Mutex
	path   string
	logger *zap.Logger
}

// NewBackupRepository stores the pre-save backup in a single JSON file
func NewBackupRepository(path string, logger *zap.Logger) BackupRepository {
	return &backupRepository{path: path, logger: logger}
}

// Load returns the stored backup, or nil when none was written yet
func (r *backupRepository) Load(ctx context.Context) (*model.SettingsBackup, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	var backup model.SettingsBackup
	if err := readJSON(r.path, &backup); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if backup.Config == nil {
		return nil, nil
	}
	return &backup, nil
}

// Save overwrites the backup file
func (r *backupRepository) Save(ctx context.Context, backup *model.SettingsBackup) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if err := writeJSON(r.path, backup); err != nil {
		r.logger.Error("Failed to write settings backup", zap.String("path", r.path), zap.Error(err))
		return err
	}
	r.logger.Debug("Settings backup written", zap.String("path", r.path))
	return nil
}
