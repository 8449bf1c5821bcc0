// internal/service/protocol_service.go
package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"ffb-control-service/internal/config"
	apperrors "ffb-control-service/internal/errors"
	"ffb-control-service/internal/model"
	"ffb-control-service/internal/protocol"
	"ffb-control-service/internal/utils"
)

// defaultEffectsState is the desktop effects byte assumed before the wheel reports one
const defaultEffectsState = 1

// Dispatch records a command written without waiting for a reply
type Dispatch struct {
	Command string    `json:"command"`
	SentAt  time.Time `json:"sent_at"`
}

// ProtocolService issues typed commands to the wheel. Write commands run with
// the torque stream paused so their acknowledgements cannot be confused with
// telemetry samples.
type ProtocolService struct {
	link     Link
	timeouts config.TimeoutConfig
	logger   *utils.ServiceLogger

	// exclusive serializes suppressed commands and telemetry toggles so
	// effects byte writes never overlap
	exclusive sync.Mutex

	mutex    sync.RWMutex
	effState int
}

// NewProtocolService creates a protocol service on top of link
func NewProtocolService(link Link, timeouts config.TimeoutConfig, logger *zap.Logger) *ProtocolService {
	return &ProtocolService{
		link:     link,
		timeouts: timeouts,
		logger:   utils.NewServiceLogger(logger, "protocol-service"),
		effState: defaultEffectsState,
	}
}

// EffectsState returns the cached desktop effects byte
func (ps *ProtocolService) EffectsState() int {
	ps.mutex.RLock()
	defer ps.mutex.RUnlock()
	return ps.effState
}

// UpdateEffectsState replaces the cached desktop effects byte
func (ps *ProtocolService) UpdateEffectsState(value int) {
	ps.mutex.Lock()
	ps.effState = value
	ps.mutex.Unlock()
}

// GetFirmwareVersion asks the wheel for its version line
func (ps *ProtocolService) GetFirmwareVersion(ctx context.Context) (string, error) {
	line, err := ps.request(ctx, protocol.Version(), ps.timeouts.Version)
	if err != nil {
		return "", err
	}
	return protocol.ParseVersion(line)
}

// TryGetInfo asks for the extended info line. Firmware without INFO support
// simply times out.
func (ps *ProtocolService) TryGetInfo(ctx context.Context) (*protocol.InfoResponse, error) {
	line, err := ps.request(ctx, protocol.Info(), ps.timeouts.Info)
	if err != nil {
		return nil, err
	}

	info, err := protocol.ParseInfo(line)
	if err != nil {
		return nil, err
	}
	if info.Config != nil {
		ps.UpdateEffectsState(info.Config.DesktopEffectsByte)
	}
	return info, nil
}

// GetAllSettings reads the full configuration from the wheel
func (ps *ProtocolService) GetAllSettings(ctx context.Context) (*model.FfbConfig, error) {
	line, err := ps.request(ctx, protocol.ReadSettings(), ps.timeouts.BulkRead)
	if err != nil {
		return nil, err
	}

	cfg, err := protocol.ParseSettings(line)
	if err != nil {
		return nil, err
	}
	ps.UpdateEffectsState(cfg.DesktopEffectsByte)
	return cfg, nil
}

// SetRotation sets the steering range
func (ps *ProtocolService) SetRotation(ctx context.Context, deg int) error {
	return ps.write(ctx, protocol.SetRotation(deg), ps.timeouts.Rotation)
}

// Center makes the current wheel position the center
func (ps *ProtocolService) Center(ctx context.Context) error {
	return ps.write(ctx, protocol.Center(), ps.timeouts.Center)
}

// Save writes the active configuration to EEPROM. A "0" acknowledgement
// means the firmware refused the save.
func (ps *ProtocolService) Save(ctx context.Context) error {
	var reply string
	err := ps.withTelemetrySuppressed(ctx, func() error {
		var err error
		reply, err = ps.request(ctx, protocol.Save(), ps.timeouts.Save)
		return err
	})
	if err != nil {
		return err
	}
	if strings.TrimSpace(reply) != "1" {
		return apperrors.New(apperrors.KindRejected, "wheel refused the EEPROM save")
	}
	return nil
}

// SetGain sets a single force-feedback gain
func (ps *ProtocolService) SetGain(ctx context.Context, gain protocol.Gain, value int) error {
	return ps.write(ctx, protocol.SetGain(gain, value), ps.timeouts.FieldWrite)
}

// SetMinTorque sets the minimum torque
func (ps *ProtocolService) SetMinTorque(ctx context.Context, value int) error {
	return ps.write(ctx, protocol.SetMinTorque(value), ps.timeouts.FieldWrite)
}

// SetBrake sets the brake pressure or balance
func (ps *ProtocolService) SetBrake(ctx context.Context, value int) error {
	return ps.write(ctx, protocol.SetBrake(value), ps.timeouts.FieldWrite)
}

// Calibrate starts the calibration routine. The wheel does not acknowledge it.
func (ps *ProtocolService) Calibrate(ctx context.Context) (Dispatch, error) {
	return ps.dispatch(protocol.Calibrate())
}

// SetEffects writes the desktop effects byte and caches it. It waits for any
// suppressed command in flight.
func (ps *ProtocolService) SetEffects(ctx context.Context, effState int) (Dispatch, error) {
	ps.exclusive.Lock()
	defer ps.exclusive.Unlock()
	return ps.setEffectsLocked(effState)
}

func (ps *ProtocolService) setEffectsLocked(effState int) (Dispatch, error) {
	d, err := ps.dispatch(protocol.SetEffects(effState))
	if err != nil {
		return d, err
	}
	ps.UpdateEffectsState(effState)
	return d, nil
}

// SetTelemetryEnabled turns the torque stream on or off. A toggle issued while
// a write is suppressed takes effect after the write has restored the stream.
func (ps *ProtocolService) SetTelemetryEnabled(ctx context.Context, enabled bool) error {
	ps.exclusive.Lock()
	defer ps.exclusive.Unlock()

	if _, err := ps.setEffectsLocked(protocol.WithTelemetry(ps.EffectsState(), enabled)); err != nil {
		return err
	}
	ps.link.SetTelemetryEnabled(enabled)
	ps.logger.Info("Telemetry toggled", zap.Bool("enabled", enabled))
	return nil
}

func (ps *ProtocolService) write(ctx context.Context, cmd protocol.Command, timeout time.Duration) error {
	return ps.withTelemetrySuppressed(ctx, func() error {
		_, err := ps.request(ctx, cmd, timeout)
		return err
	})
}

func (ps *ProtocolService) request(ctx context.Context, cmd protocol.Command, timeout time.Duration) (string, error) {
	if cmd.NoWait {
		return "", apperrors.Newf(apperrors.KindInvalidArgument, "%q has no reply to wait for", cmd.String())
	}
	return ps.link.SendAndWait(ctx, cmd.String(), cmd.Expect, commandTimeout(ctx, timeout))
}

func (ps *ProtocolService) dispatch(cmd protocol.Command) (Dispatch, error) {
	if !cmd.NoWait {
		return Dispatch{}, apperrors.Newf(apperrors.KindInvalidArgument, "%q expects a reply", cmd.String())
	}
	d := Dispatch{Command: cmd.String(), SentAt: time.Now()}
	if err := ps.link.SendNoWait(d.Command); err != nil {
		return d, err
	}
	return d, nil
}

// withTelemetrySuppressed clears the telemetry bit, waits for the stream to
// drain, runs fn, then restores the cached effects byte. The restore runs
// even when fn fails.
func (ps *ProtocolService) withTelemetrySuppressed(ctx context.Context, fn func() error) error {
	ps.exclusive.Lock()
	defer ps.exclusive.Unlock()

	if !ps.link.TelemetryEnabled() {
		return fn()
	}

	// the toggles hold exclusive too, so the byte captured here is the one to restore
	restore := ps.EffectsState()
	ps.link.SetTelemetryEnabled(false)
	defer ps.restoreTelemetry(restore)

	if _, err := ps.dispatch(protocol.SetEffects(protocol.WithTelemetry(restore, false))); err != nil {
		return err
	}
	if err := pause(ctx, ps.timeouts.SuppressSettle); err != nil {
		return err
	}
	return fn()
}

func (ps *ProtocolService) restoreTelemetry(effState int) {
	if _, err := ps.dispatch(protocol.SetEffects(effState)); err != nil {
		ps.logger.Debug("Failed to restore effects byte", zap.Error(err))
	}
	if ps.timeouts.RestoreSettle > 0 {
		time.Sleep(ps.timeouts.RestoreSettle)
	}
	ps.link.SetTelemetryEnabled(effState&(1<<protocol.TelemetryEnableBit) != 0)
}
