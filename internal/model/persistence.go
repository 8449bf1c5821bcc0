// internal/model/persistence.go
package model

import "time"

// PersistenceState tells whether the wheel configuration is saved, and where
type PersistenceState string

const (
	PersistenceUnknown        PersistenceState = "UNKNOWN"
	PersistenceSavedToWheel   PersistenceState = "SAVED_TO_WHEEL"
	PersistenceUnsavedChanges PersistenceState = "UNSAVED_CHANGES"
	PersistenceSavedToPc      PersistenceState = "SAVED_TO_PC"
)

// PersistenceSnapshot is a point-in-time view of the tracker
type PersistenceSnapshot struct {
	State            PersistenceState `json:"state"`
	LastSavedToWheel *FfbConfig       `json:"last_saved_to_wheel,omitempty"`
	LastApplied      *FfbConfig       `json:"last_applied,omitempty"`
	LastPcProfile    string           `json:"last_pc_profile,omitempty"`
	Pending          []string         `json:"pending,omitempty"`
}

// SettingsBackup is the last configuration read back before a save to the wheel
type SettingsBackup struct {
	Config          *FfbConfig `json:"config"`
	FirmwareVersion string     `json:"firmware_version,omitempty"`
	Timestamp       time.Time  `json:"timestamp"`
}

// Profile is a named configuration stored on the PC
type Profile struct {
	Name            string     `json:"name"`
	Version         int        `json:"version"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	Notes           string     `json:"notes,omitempty"`
	Config          *FfbConfig `json:"config"`
	FirmwareVersion string     `json:"firmware_version,omitempty"`
	Tags            []string   `json:"tags,omitempty"`
}

// AppSettings is the persisted application state
type AppSettings struct {
	LastPort             string `json:"last_port,omitempty"`
	LastDeviceID         string `json:"last_device_id,omitempty"`
	LastDeviceName       string `json:"last_device_name,omitempty"`
	LastProfileName      string `json:"last_profile_name,omitempty"`
	AutoApplyLastProfile bool   `json:"auto_apply_last_profile"`
	AutoConnect          bool   `json:"auto_connect"`
	TelemetryEnabled     bool   `json:"telemetry_enabled"`
}

// SyncDecision is the caller's answer when the wheel and the last profile disagree
type SyncDecision string

const (
	SyncUseWheel     SyncDecision = "USE_WHEEL"
	SyncApplyProfile SyncDecision = "APPLY_PROFILE"
)
