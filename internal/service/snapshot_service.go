// internal/service/snapshot_service.go
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	apperrors "ffb-control-service/internal/errors"
	"ffb-control-service/internal/model"
	"ffb-control-service/internal/repository"
	"ffb-control-service/internal/utils"
)

// snapshotTelemetrySamples is how many recent torque samples are stored with a snapshot
const snapshotTelemetrySamples = 2000

// SnapshotService records timestamped copies of the wheel configuration
type SnapshotService struct {
	repo      repository.SnapshotRepository
	state     *DeviceState
	telemetry *TelemetryService
	logger    *utils.ServiceLogger
}

// NewSnapshotService creates a snapshot service. telemetry may be nil.
func NewSnapshotService(repo repository.SnapshotRepository, state *DeviceState, telemetry *TelemetryService, logger *zap.Logger) *SnapshotService {
	return &SnapshotService{
		repo:      repo,
		state:     state,
		telemetry: telemetry,
		logger:    utils.NewServiceLogger(logger, "snapshot-service"),
	}
}

// Capture stores cfg together with the active device and recent telemetry
func (s *SnapshotService) Capture(ctx context.Context, kind model.SnapshotKind, label string, cfg *model.FfbConfig, profile string) (*model.Snapshot, error) {
	if cfg == nil {
		return nil, apperrors.New(apperrors.KindInvalidArgument, "no configuration to snapshot")
	}
	if label == "" {
		label = string(kind)
	}

	snapshot := &model.Snapshot{
		ID:          uuid.New(),
		CreatedAt:   time.Now().UTC(),
		Kind:        kind,
		Label:       label,
		ProfileName: profile,
		Config:      cfg.Clone(),
	}
	if device := s.state.Current(); device != nil {
		snapshot.DeviceID = device.DeviceID()
		snapshot.FirmwareVersion = device.FirmwareVersion
	}

	var samples []model.TorqueSample
	if s.telemetry != nil {
		samples = s.telemetry.Samples(snapshotTelemetrySamples)
	}

	if err := s.repo.Create(ctx, snapshot, samples); err != nil {
		return nil, err
	}
	return snapshot, nil
}

// List returns snapshots newest first
func (s *SnapshotService) List(ctx context.Context, limit int) ([]*model.Snapshot, error) {
	return s.repo.List(ctx, limit)
}

// Get returns one snapshot
func (s *SnapshotService) Get(ctx context.Context, id uuid.UUID) (*model.Snapshot, error) {
	return s.repo.GetByID(ctx, id)
}

// Diff lists the differences between two snapshots, firmware first
func (s *SnapshotService) Diff(ctx context.Context, from, to uuid.UUID) (*model.SnapshotDiff, error) {
	a, err := s.repo.GetByID(ctx, from)
	if err != nil {
		return nil, err
	}
	b, err := s.repo.GetByID(ctx, to)
	if err != nil {
		return nil, err
	}

	changes := []string{}
	if a.FirmwareVersion != b.FirmwareVersion {
		changes = append(changes, fmt.Sprintf("Firmware: %s -> %s", a.FirmwareVersion, b.FirmwareVersion))
	}
	changes = append(changes, model.DescribeDifferences(a.Config, b.Config)...)

	return &model.SnapshotDiff{From: from, To: to, Changes: changes}, nil
}
