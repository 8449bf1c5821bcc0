// internal/service/settings_service.go
package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"ffb-control-service/internal/config"
	apperrors "ffb-control-service/internal/errors"
	"ffb-control-service/internal/model"
	"ffb-control-service/internal/protocol"
	"ffb-control-service/internal/repository"
	"ffb-control-service/internal/utils"
)

// calibrateSettle is how long the wheel is left alone after starting calibration
const calibrateSettle = 200 * time.Millisecond

// ConflictResolver decides what to do when the wheel configuration differs
// from the last used profile at connect time
type ConflictResolver func(ctx context.Context, wheel *model.FfbConfig, profile *model.Profile) model.SyncDecision

// PolicyResolver returns a resolver that always answers according to policy
// ("wheel" or "profile")
func PolicyResolver(policy string) ConflictResolver {
	return func(context.Context, *model.FfbConfig, *model.Profile) model.SyncDecision {
		if policy == "profile" {
			return model.SyncApplyProfile
		}
		return model.SyncUseWheel
	}
}

// SettingsDeps are the collaborators of SettingsService
type SettingsDeps struct {
	Protocol    *ProtocolService
	State       *DeviceState
	Tracker     *PersistenceTracker
	Profiles    repository.ProfileRepository
	AppSettings repository.SettingsRepository
	Backups     repository.BackupRepository
	Snapshots   *SnapshotService
	Events      EventPublisher
	Timeouts    config.TimeoutConfig
}

// SettingsService owns the authoritative wheel configuration. It applies
// configurations one field at a time, saves them to the wheel or to PC
// profiles, and keeps the persistence tracker up to date.
type SettingsService struct {
	protocol    *ProtocolService
	state       *DeviceState
	tracker     *PersistenceTracker
	profiles    repository.ProfileRepository
	appSettings repository.SettingsRepository
	backups     repository.BackupRepository
	snapshots   *SnapshotService
	events      EventPublisher
	timeouts    config.TimeoutConfig
	policy      retryPolicy

	baseLogger  *zap.Logger
	logger      *utils.ServiceLogger
	auditLogger *utils.AuditLogger

	mutex   sync.RWMutex
	current *model.FfbConfig
}

// NewSettingsService creates a settings service
func NewSettingsService(deps SettingsDeps, logger *zap.Logger) *SettingsService {
	tracker := deps.Tracker
	if tracker == nil {
		tracker = NewPersistenceTracker()
	}
	return &SettingsService{
		protocol:    deps.Protocol,
		state:       deps.State,
		tracker:     tracker,
		profiles:    deps.Profiles,
		appSettings: deps.AppSettings,
		backups:     deps.Backups,
		snapshots:   deps.Snapshots,
		events:      publisherOrNop(deps.Events),
		timeouts:    deps.Timeouts,
		policy: retryPolicy{
			attempts: deps.Timeouts.Attempts,
			delay:    deps.Timeouts.RetryDelay,
		},
		baseLogger:  logger,
		logger:      utils.NewServiceLogger(logger, "settings-service"),
		auditLogger: utils.NewAuditLogger(logger),
	}
}

// CanUseSerialConfig reports whether the active device accepts serial configuration commands
func (ss *SettingsService) CanUseSerialConfig() bool {
	return ss.state.Capabilities().SupportsSerialConfig && !ss.state.IsDemoMode()
}

// CanSaveToWheel reports whether the active device can persist to EEPROM
func (ss *SettingsService) CanSaveToWheel() bool {
	caps := ss.state.Capabilities()
	return caps.SupportsSerialConfig && caps.SupportsEepromSave && !ss.state.IsDemoMode()
}

// CurrentConfig returns a copy of the authoritative configuration, or nil
func (ss *SettingsService) CurrentConfig() *model.FfbConfig {
	ss.mutex.RLock()
	defer ss.mutex.RUnlock()
	return ss.current.Clone()
}

// PersistenceState returns the tracker state
func (ss *SettingsService) PersistenceState() model.PersistenceState {
	return ss.tracker.State()
}

// PersistenceSnapshot returns the tracker state with its reference configurations
func (ss *SettingsService) PersistenceSnapshot() model.PersistenceSnapshot {
	return ss.tracker.Snapshot()
}

// LoadFromDevice reads the configuration from the wheel. It returns nil
// without error when the device cannot be read.
func (ss *SettingsService) LoadFromDevice(ctx context.Context) (*model.FfbConfig, error) {
	if !ss.CanUseSerialConfig() {
		return nil, nil
	}

	cfg, err := executeWithRetryValue(ctx, ss.deviceLogger(), ss.policy, "Read settings", ss.timeouts.BulkRead, ss.protocol.GetAllSettings)
	if err != nil {
		return nil, err
	}

	ss.setCurrent(cfg)
	state := ss.tracker.MarkDeviceLoaded(cfg)

	ss.logger.Info("Settings loaded from wheel", zap.String("persistence", string(state)))
	ss.events.Publish(model.NewEvent(model.EventSettingsLoaded, "settings-service", cfg.Clone()))
	ss.publishPersistence()
	return cfg.Clone(), nil
}

type applyStep struct {
	label   string
	timeout time.Duration
	run     func(ctx context.Context) error
}

func (ss *SettingsService) applySteps(cfg *model.FfbConfig) []applyStep {
	steps := []applyStep{{
		label:   "Rotation",
		timeout: ss.timeouts.Rotation,
		run:     func(ctx context.Context) error { return ss.protocol.SetRotation(ctx, cfg.RotationDeg) },
	}}

	gains := map[protocol.Gain]int{
		protocol.GainGeneral:  cfg.GeneralGain,
		protocol.GainDamper:   cfg.DamperGain,
		protocol.GainFriction: cfg.FrictionGain,
		protocol.GainInertia:  cfg.InertiaGain,
		protocol.GainSpring:   cfg.SpringGain,
		protocol.GainConstant: cfg.ConstantGain,
		protocol.GainPeriodic: cfg.PeriodicGain,
		protocol.GainCenter:   cfg.CenterGain,
		protocol.GainStop:     cfg.StopGain,
	}
	for _, gain := range protocol.Gains {
		gain, value := gain, gains[gain]
		steps = append(steps, applyStep{
			label:   gain.String(),
			timeout: ss.timeouts.FieldWrite,
			run:     func(ctx context.Context) error { return ss.protocol.SetGain(ctx, gain, value) },
		})
	}

	return append(steps,
		applyStep{
			label:   "Min torque",
			timeout: ss.timeouts.FieldWrite,
			run:     func(ctx context.Context) error { return ss.protocol.SetMinTorque(ctx, cfg.MinTorque) },
		},
		applyStep{
			label:   "Brake/Bal",
			timeout: ss.timeouts.FieldWrite,
			run:     func(ctx context.Context) error { return ss.protocol.SetBrake(ctx, cfg.BrakePressureOrBalance) },
		},
	)
}

// ApplyConfig writes rotation, the nine gains, min torque and brake in that
// order. The first field that still fails after its retry stops the sequence;
// fields already written are left on the wheel.
func (ss *SettingsService) ApplyConfig(ctx context.Context, cfg *model.FfbConfig) error {
	if cfg == nil {
		return apperrors.New(apperrors.KindInvalidArgument, "config is required")
	}
	if !ss.CanUseSerialConfig() {
		return nil
	}

	cfg = cfg.Clone()
	logger := ss.deviceLogger()
	steps := ss.applySteps(cfg)

	opLogger := utils.NewOperationLogger(ss.baseLogger, "apply", ss.state.Current().DeviceID())
	opLogger.Start(zap.Int("total_fields", len(steps)))

	for i, step := range steps {
		if err := executeWithRetry(ctx, logger, ss.policy, step.label, step.timeout, step.run); err != nil {
			opLogger.Error(err,
				zap.String("field", step.label),
				zap.Int("applied_fields", i),
				zap.Int("total_fields", len(steps)),
			)
			return apperrors.Wrapf(err, apperrors.KindUnknown, "apply stopped at %s after %d of %d fields", step.label, i, len(steps))
		}
		opLogger.Progress("Field applied", float64(i+1)/float64(len(steps)), zap.String("field", step.label))
	}
	opLogger.Success()

	ss.auditLogger.LogConfigChange("apply", model.DescribeDifferences(ss.CurrentConfig(), cfg))
	ss.setCurrent(cfg)
	ss.markApplied(cfg)
	ss.events.Publish(model.NewEvent(model.EventSettingsApplied, "settings-service", cfg.Clone()))
	return nil
}

// ApplyRotation writes only the rotation
func (ss *SettingsService) ApplyRotation(ctx context.Context, deg int) error {
	if deg <= 0 {
		return apperrors.Newf(apperrors.KindInvalidArgument, "rotation must be positive, got %d", deg)
	}
	if !ss.CanUseSerialConfig() {
		return nil
	}

	err := executeWithRetry(ctx, ss.deviceLogger(), ss.policy, "Rotation", ss.timeouts.Rotation, func(ctx context.Context) error {
		return ss.protocol.SetRotation(ctx, deg)
	})
	if err != nil {
		return err
	}

	ss.mutex.Lock()
	var cfg *model.FfbConfig
	if ss.current != nil {
		ss.current.RotationDeg = deg
		cfg = ss.current.Clone()
	}
	ss.mutex.Unlock()

	if cfg != nil {
		ss.auditLogger.LogConfigChange("rotation", []string{"Rotation"})
		ss.markApplied(cfg)
		ss.events.Publish(model.NewEvent(model.EventSettingsApplied, "settings-service", cfg))
	}
	return nil
}

// Center makes the current wheel position the center
func (ss *SettingsService) Center(ctx context.Context) error {
	if !ss.CanUseSerialConfig() {
		return nil
	}
	return executeWithRetry(ctx, ss.deviceLogger(), ss.policy, "Center", ss.timeouts.Center, ss.protocol.Center)
}

// Calibrate starts the calibration routine and gives the wheel a moment to begin
func (ss *SettingsService) Calibrate(ctx context.Context) error {
	if !ss.CanUseSerialConfig() {
		return nil
	}

	ss.captureSnapshot(ctx, model.SnapshotCalibration, "Before calibration", "")

	d, err := ss.protocol.Calibrate(ctx)
	if err != nil {
		return err
	}
	ss.logger.Info("Calibration started", zap.Time("sent_at", d.SentAt))
	return pause(ctx, calibrateSettle)
}

// SaveToWheel backs up the wheel configuration, saves to EEPROM and reads the
// configuration back. The backup is best effort; the save is not.
func (ss *SettingsService) SaveToWheel(ctx context.Context) error {
	if !ss.CanSaveToWheel() {
		return nil
	}

	opLogger := utils.NewOperationLogger(ss.baseLogger, "save_to_wheel", ss.state.Current().DeviceID())
	opLogger.Start()

	ss.backupCurrent(ctx)

	if err := executeWithRetry(ctx, ss.deviceLogger(), ss.policy, "Save EEPROM", ss.timeouts.Save, ss.protocol.Save); err != nil {
		opLogger.Error(err)
		return err
	}

	if cfg := ss.CurrentConfig(); cfg != nil {
		previous := ss.tracker.State()
		state := ss.tracker.MarkSavedToWheel(cfg)
		ss.auditLogger.LogPersistence(string(previous), string(state), "")
		ss.events.Publish(model.NewEvent(model.EventSavedToWheel, "settings-service", cfg))
		ss.publishPersistence()
		ss.captureSnapshot(ctx, model.SnapshotSaveToWheel, "Saved to wheel", "")
	}

	if err := pause(ctx, ss.timeouts.ReloadAfterSave); err != nil {
		return err
	}
	if _, err := ss.LoadFromDevice(ctx); err != nil {
		ss.logger.Warn("Reload after save failed", zap.Error(err))
	}

	opLogger.Success()
	return nil
}

// SaveToPc stores profile on the PC and makes its configuration current.
// The wheel is not touched.
func (ss *SettingsService) SaveToPc(ctx context.Context, profile *model.Profile) error {
	if profile == nil || profile.Config == nil {
		return apperrors.New(apperrors.KindInvalidArgument, "profile with config is required")
	}
	if profile.FirmwareVersion == "" {
		if device := ss.state.Current(); device != nil {
			profile.FirmwareVersion = device.FirmwareVersion
		}
	}

	if err := ss.profiles.Save(ctx, profile); err != nil {
		return err
	}
	ss.rememberProfile(ctx, profile.Name)

	ss.setCurrent(profile.Config)
	previous := ss.tracker.State()
	state := ss.tracker.MarkSavedToPc(profile.Name)
	ss.auditLogger.LogPersistence(string(previous), string(state), profile.Name)

	ss.events.Publish(model.NewEvent(model.EventSavedToPc, "settings-service", map[string]interface{}{
		"profile": profile.Name,
		"version": profile.Version,
	}))
	ss.publishPersistence()
	return nil
}

// ApplyProfile applies a stored profile to the wheel and remembers it as the last profile
func (ss *SettingsService) ApplyProfile(ctx context.Context, name string) (*model.Profile, error) {
	profile, err := ss.profiles.GetByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if profile.Config == nil {
		return nil, apperrors.Newf(apperrors.KindStorage, "profile %q has no config", name)
	}

	ss.captureSnapshot(ctx, model.SnapshotApplyProfile, "Before applying "+profile.Name, profile.Name)

	if err := ss.ApplyConfig(ctx, profile.Config); err != nil {
		return nil, err
	}
	ss.rememberProfile(ctx, profile.Name)
	return profile, nil
}

// LoadBackup returns the last pre-save backup, or nil
func (ss *SettingsService) LoadBackup(ctx context.Context) (*model.SettingsBackup, error) {
	return ss.backups.Load(ctx)
}

// RestoreBackup applies the last pre-save backup. It reports false when no backup exists.
func (ss *SettingsService) RestoreBackup(ctx context.Context) (bool, error) {
	backup, err := ss.backups.Load(ctx)
	if err != nil {
		return false, err
	}
	if backup == nil {
		ss.logger.Warn("No backup found")
		return false, nil
	}

	ss.captureSnapshot(ctx, model.SnapshotRevert, "Before restoring backup", "")

	if err := ss.ApplyConfig(ctx, backup.Config); err != nil {
		return false, err
	}
	ss.logger.Info("Backup settings applied", zap.Time("backup_time", backup.Timestamp))
	return true, nil
}

// SyncOnConnect reconciles the wheel with the last used profile. Readable
// wheels are loaded and, when they differ from the last profile, resolve
// decides which side wins. Otherwise the last profile, or the first one, is
// loaded into memory only.
func (ss *SettingsService) SyncOnConnect(ctx context.Context, resolve ConflictResolver) error {
	device := ss.state.Current()
	if device == nil {
		return nil
	}

	settings, err := ss.appSettings.Load(ctx)
	if err != nil {
		return err
	}

	caps := ss.state.Capabilities()
	if caps.SupportsSettingsRead && !device.IsDemo {
		cfg, err := ss.LoadFromDevice(ctx)
		if err != nil || cfg == nil || settings.LastProfileName == "" {
			return err
		}

		profile, err := ss.profiles.GetByName(ctx, settings.LastProfileName)
		if err != nil {
			if apperrors.Is(err, apperrors.KindNotFound) {
				return nil
			}
			return err
		}
		if model.AreEquivalent(profile.Config, cfg) {
			return nil
		}

		decision := model.SyncUseWheel
		if resolve != nil {
			decision = resolve(ctx, cfg, profile)
		}
		ss.logger.Info("Wheel differs from last profile",
			zap.String("profile", profile.Name),
			zap.String("decision", string(decision)),
			zap.Strings("changes", model.DescribeDifferences(cfg, profile.Config)),
		)
		if decision == model.SyncApplyProfile {
			if err := ss.ApplyConfig(ctx, profile.Config); err != nil {
				return err
			}
			ss.logger.Info("Applied last profile after conflict", zap.String("profile", profile.Name))
		}
		return nil
	}

	profile, err := ss.fallbackProfile(ctx, settings.LastProfileName)
	if err != nil || profile == nil {
		return err
	}

	ss.setCurrent(profile.Config)
	previous := ss.tracker.State()
	state := ss.tracker.MarkSavedToPc(profile.Name)
	ss.auditLogger.LogPersistence(string(previous), string(state), profile.Name)
	ss.publishPersistence()
	if settings.AutoApplyLastProfile {
		ss.logger.Info("Loaded last profile, device settings unavailable", zap.String("profile", profile.Name))
	}
	return nil
}

func (ss *SettingsService) fallbackProfile(ctx context.Context, name string) (*model.Profile, error) {
	if name != "" {
		profile, err := ss.profiles.GetByName(ctx, name)
		if err == nil {
			return profile, nil
		}
		if !apperrors.Is(err, apperrors.KindNotFound) {
			return nil, err
		}
		return nil, nil
	}

	profiles, err := ss.profiles.List(ctx)
	if err != nil || len(profiles) == 0 {
		return nil, err
	}
	return profiles[0], nil
}

// backupCurrent reads the wheel configuration and stores it as the backup.
// Failures are logged and otherwise ignored.
func (ss *SettingsService) backupCurrent(ctx context.Context) {
	if !ss.CanUseSerialConfig() || ss.backups == nil {
		return
	}

	cfg, err := executeWithRetryValue(ctx, ss.deviceLogger(), ss.policy, "Backup read", ss.timeouts.BulkRead, ss.protocol.GetAllSettings)
	if err != nil {
		ss.logger.Warn("Backup failed", zap.Error(err))
		return
	}

	backup := &model.SettingsBackup{
		Config:    cfg,
		Timestamp: time.Now().UTC(),
	}
	if device := ss.state.Current(); device != nil {
		backup.FirmwareVersion = device.FirmwareVersion
	}
	if err := ss.backups.Save(ctx, backup); err != nil {
		ss.logger.Warn("Backup failed", zap.Error(err))
	}
}

func (ss *SettingsService) captureSnapshot(ctx context.Context, kind model.SnapshotKind, label, profile string) {
	if ss.snapshots == nil {
		return
	}
	cfg := ss.CurrentConfig()
	if cfg == nil {
		return
	}
	if _, err := ss.snapshots.Capture(ctx, kind, label, cfg, profile); err != nil {
		ss.logger.Warn("Snapshot failed", zap.String("kind", string(kind)), zap.Error(err))
	}
}

func (ss *SettingsService) rememberProfile(ctx context.Context, name string) {
	settings, err := ss.appSettings.Load(ctx)
	if err != nil {
		ss.logger.Warn("Failed to load app settings", zap.Error(err))
		return
	}
	settings.LastProfileName = name
	if err := ss.appSettings.Save(ctx, settings); err != nil {
		ss.logger.Warn("Failed to remember last profile", zap.String("profile", name), zap.Error(err))
	}
}

func (ss *SettingsService) markApplied(cfg *model.FfbConfig) {
	previous := ss.tracker.State()
	state := ss.tracker.MarkApplied(cfg)
	if previous != state {
		ss.auditLogger.LogPersistence(string(previous), string(state), "")
	}
	ss.publishPersistence()
}

func (ss *SettingsService) setCurrent(cfg *model.FfbConfig) {
	ss.mutex.Lock()
	ss.current = cfg.Clone()
	ss.mutex.Unlock()
}

func (ss *SettingsService) publishPersistence() {
	ss.events.Publish(model.NewEvent(model.EventPersistenceChanged, "settings-service", ss.tracker.Snapshot()))
}

func (ss *SettingsService) deviceLogger() *utils.DeviceLogger {
	device := ss.state.Current()
	if device == nil {
		return utils.NewDeviceLogger(ss.baseLogger, "", "")
	}
	return utils.NewDeviceLogger(ss.baseLogger, device.Port, device.FirmwareVersion)
}
