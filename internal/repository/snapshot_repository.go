// internal/repository/snapshot_repository.go
package repository

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	apperrors "ffb-control-service/internal/errors"
	"ffb-control-service/internal/model"
)

const (
	snapshotFile  = "snapshot.json"
	telemetryFile = "telemetry.csv"
	folderLayout  = "20060102-150405"
)

// snapshotRepository keeps each snapshot in its own folder:
// <dir>/<yyyyMMdd-HHmmss>-<KIND>-<id8>/snapshot.json plus an optional telemetry.csv
type snapshotRepository struct {
	dir    string
	logger *zap.Logger
}

// NewSnapshotRepository creates a snapshot repository rooted at dir
func NewSnapshotRepository(dir string, logger *zap.Logger) SnapshotRepository {
	return &snapshotRepository{dir: dir, logger: logger}
}

func folderName(s *model.Snapshot) string {
	return s.CreatedAt.Local().Format(folderLayout) + "-" + string(s.Kind) + "-" + s.ID.String()[:8]
}

// Create writes a new snapshot and its telemetry samples
func (r *snapshotRepository) Create(ctx context.Context, snapshot *model.Snapshot, telemetry []model.TorqueSample) error {
	if snapshot == nil || snapshot.Config == nil {
		return apperrors.New(apperrors.KindInvalidArgument, "snapshot config is required")
	}
	if snapshot.ID == uuid.Nil {
		snapshot.ID = uuid.New()
	}
	if snapshot.CreatedAt.IsZero() {
		snapshot.CreatedAt = time.Now().UTC()
	}
	if snapshot.Kind == "" {
		snapshot.Kind = model.SnapshotManual
	}

	folder := filepath.Join(r.dir, folderName(snapshot))
	if err := writeJSON(filepath.Join(folder, snapshotFile), snapshot); err != nil {
		r.logger.Error("Failed to write snapshot", zap.String("id", snapshot.ID.String()), zap.Error(err))
		return err
	}

	if len(telemetry) > 0 {
		if err := writeTelemetry(filepath.Join(folder, telemetryFile), telemetry); err != nil {
			r.logger.Warn("Failed to write snapshot telemetry", zap.String("id", snapshot.ID.String()), zap.Error(err))
		}
	}

	r.logger.Info("Snapshot created",
		zap.String("id", snapshot.ID.String()),
		zap.String("kind", string(snapshot.Kind)),
		zap.String("label", snapshot.Label),
	)
	return nil
}

// GetByID finds a snapshot by id
func (r *snapshotRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Snapshot, error) {
	snapshots, err := r.List(ctx, 0)
	if err != nil {
		return nil, err
	}
	for _, s := range snapshots {
		if s.ID == id {
			return s, nil
		}
	}
	return nil, apperrors.Newf(apperrors.KindNotFound, "snapshot %s", id)
}

// List returns snapshots newest first. A limit of zero returns all of them.
func (r *snapshotRepository) List(ctx context.Context, limit int) ([]*model.Snapshot, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []*model.Snapshot{}, nil
		}
		return nil, apperrors.Wrap(err, apperrors.KindStorage, "list snapshots")
	}

	snapshots := make([]*model.Snapshot, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		var s model.Snapshot
		if err := readJSON(filepath.Join(r.dir, entry.Name(), snapshotFile), &s); err != nil {
			r.logger.Debug("Skipping snapshot folder", zap.String("folder", entry.Name()), zap.Error(err))
			continue
		}
		snapshots = append(snapshots, &s)
	}

	sort.Slice(snapshots, func(i, j int) bool {
		return snapshots[i].CreatedAt.After(snapshots[j].CreatedAt)
	})

	if limit > 0 && len(snapshots) > limit {
		snapshots = snapshots[:limit]
	}
	return snapshots, nil
}

func writeTelemetry(path string, samples []model.TorqueSample) error {
	f, err := os.Create(path)
	if err != nil {
		return apperrors.Wrap(err, apperrors.KindStorage, "create telemetry file")
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"timestamp", "torque"}); err != nil {
		return apperrors.Wrap(err, apperrors.KindStorage, "write telemetry")
	}
	for _, s := range samples {
		record := []string{s.Timestamp.UTC().Format(time.RFC3339Nano), strconv.Itoa(s.Value)}
		if err := w.Write(record); err != nil {
			return apperrors.Wrap(err, apperrors.KindStorage, "write telemetry")
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return apperrors.Wrap(err, apperrors.KindStorage, "flush telemetry")
	}
	return nil
}
