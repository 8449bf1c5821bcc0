package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"ffb-control-service/internal/model"
)

func TestTrackerTransitions(t *testing.T) {
	tracker := NewPersistenceTracker()
	assert.Equal(t, model.PersistenceUnknown, tracker.State())

	loaded := model.DefaultFfbConfig()
	assert.Equal(t, model.PersistenceSavedToWheel, tracker.MarkDeviceLoaded(loaded))

	changed := loaded.Clone()
	changed.DamperGain = 10
	assert.Equal(t, model.PersistenceUnsavedChanges, tracker.MarkApplied(changed))

	assert.Equal(t, model.PersistenceSavedToWheel, tracker.MarkApplied(loaded.Clone()))

	assert.Equal(t, model.PersistenceUnsavedChanges, tracker.MarkApplied(changed))
	assert.Equal(t, model.PersistenceSavedToWheel, tracker.MarkSavedToWheel(changed))
	assert.True(t, model.AreEquivalent(changed, tracker.LastSavedToWheel()))

	assert.Equal(t, model.PersistenceSavedToPc, tracker.MarkSavedToPc("Drift"))
	assert.Equal(t, "Drift", tracker.LastPcProfile())
}

func TestTrackerSavedToPcFromAnyState(t *testing.T) {
	tracker := NewPersistenceTracker()
	assert.Equal(t, model.PersistenceSavedToPc, tracker.MarkSavedToPc("A"))

	tracker.MarkDeviceLoaded(model.DefaultFfbConfig())
	assert.Equal(t, model.PersistenceSavedToPc, tracker.MarkSavedToPc("B"))

	cfg := model.DefaultFfbConfig()
	cfg.RotationDeg = 540
	tracker.MarkApplied(cfg)
	assert.Equal(t, model.PersistenceSavedToPc, tracker.MarkSavedToPc("C"))
}

func TestTrackerApplyWithoutWheelReferenceIsUnsaved(t *testing.T) {
	tracker := NewPersistenceTracker()
	assert.Equal(t, model.PersistenceUnsavedChanges, tracker.MarkApplied(model.DefaultFfbConfig()))
}

func TestTrackerStoresCopies(t *testing.T) {
	tracker := NewPersistenceTracker()
	cfg := model.DefaultFfbConfig()
	tracker.MarkDeviceLoaded(cfg)

	cfg.GeneralGain = 1
	assert.Equal(t, 100, tracker.LastSavedToWheel().GeneralGain)
	assert.Equal(t, 100, tracker.LastApplied().GeneralGain)

	tracker.LastApplied().GeneralGain = 2
	assert.Equal(t, 100, tracker.LastApplied().GeneralGain)
}

func TestTrackerSnapshotListsPendingChanges(t *testing.T) {
	tracker := NewPersistenceTracker()
	saved := model.DefaultFfbConfig()
	tracker.MarkDeviceLoaded(saved)

	applied := saved.Clone()
	applied.RotationDeg = 900
	applied.StopGain = 80
	tracker.MarkApplied(applied)

	snap := tracker.Snapshot()
	assert.Equal(t, model.PersistenceUnsavedChanges, snap.State)
	assert.Equal(t, []string{"Rotation: 1080 -> 900", "Endstop: 100 -> 80"}, snap.Pending)

	tracker.MarkSavedToWheel(applied)
	assert.Empty(t, tracker.Snapshot().Pending)
}
