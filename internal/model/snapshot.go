// internal/model/snapshot.go
package model

import (
	"time"

	"github.com/google/uuid"
)

// SnapshotKind records what produced a snapshot
type SnapshotKind string

const (
	SnapshotSaveToWheel  SnapshotKind = "SAVE_TO_WHEEL"
	SnapshotApplyProfile SnapshotKind = "APPLY_PROFILE"
	SnapshotCalibration  SnapshotKind = "CALIBRATION"
	SnapshotRevert       SnapshotKind = "REVERT"
	SnapshotManual       SnapshotKind = "MANUAL"
)

// Snapshot is a timestamped copy of the wheel configuration
type Snapshot struct {
	ID              uuid.UUID    `json:"id"`
	CreatedAt       time.Time    `json:"created_at"`
	Kind            SnapshotKind `json:"kind"`
	Label           string       `json:"label"`
	DeviceID        string       `json:"device_id,omitempty"`
	FirmwareVersion string       `json:"firmware_version,omitempty"`
	ProfileName     string       `json:"profile_name,omitempty"`
	Config          *FfbConfig   `json:"config"`
	Notes           string       `json:"notes,omitempty"`
}

// SnapshotDiff compares two snapshots
type SnapshotDiff struct {
	From    uuid.UUID `json:"from"`
	To      uuid.UUID `json:"to"`
	Changes []string  `json:"changes"`
}
