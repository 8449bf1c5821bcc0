// internal/service/persistence_tracker.go
package service

import (
	"sync"

	"ffb-control-service/internal/model"
)

// PersistenceTracker records whether the wheel configuration is saved on the
// wheel, only applied, or saved to a PC profile. It changes only through the
// Mark methods.
type PersistenceTracker struct {
	mutex            sync.RWMutex
	state            model.PersistenceState
	lastSavedToWheel *model.FfbConfig
	lastApplied      *model.FfbConfig
	lastPcProfile    string
}

// NewPersistenceTracker creates a tracker in the UNKNOWN state
func NewPersistenceTracker() *PersistenceTracker {
	return &PersistenceTracker{state: model.PersistenceUnknown}
}

// MarkDeviceLoaded records a configuration read back from the wheel
func (t *PersistenceTracker) MarkDeviceLoaded(cfg *model.FfbConfig) model.PersistenceState {
	return t.markWheel(cfg)
}

// MarkSavedToWheel records a confirmed EEPROM save
func (t *PersistenceTracker) MarkSavedToWheel(cfg *model.FfbConfig) model.PersistenceState {
	return t.markWheel(cfg)
}

func (t *PersistenceTracker) markWheel(cfg *model.FfbConfig) model.PersistenceState {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	t.lastSavedToWheel = cfg.Clone()
	t.lastApplied = cfg.Clone()
	t.state = model.PersistenceSavedToWheel
	return t.state
}

// MarkApplied records a configuration written to the wheel RAM. Applying the
// configuration last saved to the wheel returns to SAVED_TO_WHEEL.
func (t *PersistenceTracker) MarkApplied(cfg *model.FfbConfig) model.PersistenceState {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	t.lastApplied = cfg.Clone()
	if t.lastSavedToWheel != nil && model.AreEquivalent(t.lastSavedToWheel, cfg) {
		t.state = model.PersistenceSavedToWheel
	} else {
		t.state = model.PersistenceUnsavedChanges
	}
	return t.state
}

// MarkSavedToPc records a save to the named PC profile
func (t *PersistenceTracker) MarkSavedToPc(profileName string) model.PersistenceState {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	t.lastPcProfile = profileName
	t.state = model.PersistenceSavedToPc
	return t.state
}

// State returns the current persistence state
func (t *PersistenceTracker) State() model.PersistenceState {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	return t.state
}

// LastSavedToWheel returns a copy of the configuration last known to be in EEPROM
func (t *PersistenceTracker) LastSavedToWheel() *model.FfbConfig {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	return t.lastSavedToWheel.Clone()
}

// LastApplied returns a copy of the configuration last written to the wheel
func (t *PersistenceTracker) LastApplied() *model.FfbConfig {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	return t.lastApplied.Clone()
}

// LastPcProfile returns the name of the last profile saved to the PC
func (t *PersistenceTracker) LastPcProfile() string {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	return t.lastPcProfile
}

// Snapshot returns the tracker state together with the unsaved field changes
func (t *PersistenceTracker) Snapshot() model.PersistenceSnapshot {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	snap := model.PersistenceSnapshot{
		State:            t.state,
		LastSavedToWheel: t.lastSavedToWheel.Clone(),
		LastApplied:      t.lastApplied.Clone(),
		LastPcProfile:    t.lastPcProfile,
	}
	if t.state == model.PersistenceUnsavedChanges && t.lastSavedToWheel != nil {
		snap.Pending = model.DescribeDifferences(t.lastSavedToWheel, t.lastApplied)
	}
	return snap
}
