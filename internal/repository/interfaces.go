// internal/repository/interfaces.go
package repository

import (
	"context"

	"github.com/google/uuid"

	"ffb-control-service/internal/model"
)

// ProfileRepository stores named configurations on the PC
type ProfileRepository interface {
	Save(ctx context.Context, profile *model.Profile) error
	GetByName(ctx context.Context, name string) (*model.Profile, error)
	List(ctx context.Context) ([]*model.Profile, error)
	Delete(ctx context.Context, name string) error
}

// SettingsRepository stores the application settings file
type SettingsRepository interface {
	Load(ctx context.Context) (*model.AppSettings, error)
	Save(ctx context.Context, settings *model.AppSettings) error
}

// BackupRepository stores the pre-save configuration backup
type BackupRepository interface {
	Load(ctx context.Context) (*model.SettingsBackup, error)
	Save(ctx context.Context, backup *model.SettingsBackup) error
}

// SnapshotRepository stores configuration snapshots
type SnapshotRepository interface {
	Create(ctx context.Context, snapshot *model.Snapshot, telemetry []model.TorqueSample) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Snapshot, error)
	List(ctx context.Context, limit int) ([]*model.Snapshot, error)
}
