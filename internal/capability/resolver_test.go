package capability

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"ffb-control-service/internal/model"
)

func u32(v uint32) *uint32 { return &v }

func TestFromFirmware(t *testing.T) {
	tests := []struct {
		name    string
		version string
		want    model.CapabilityFlags
	}{
		{"no letters", "fw-v250", 0},
		{"z index", "fw-v250z", model.CapHasZIndex},
		{"case insensitive", "FW-V250ZP", model.CapHasZIndex | model.CapNoEeprom},
		{"many letters", "fw-v250whtm", model.CapHasAS5600 | model.CapHasHatSwitch | model.CapHasButtonMatrix | model.CapProMicroPins},
		{"prefix letters ignored", "fw-v", 0},
		{"not firmware", "hello wheel", 0},
		{"empty", "", 0},
		{"unknown letters", "fw-v250qy", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FromFirmware(tt.version))
		})
	}
}

func TestEveryLetterMapsToItsBit(t *testing.T) {
	letters := "zwbhsitfekxnrlgpm"
	for i, r := range letters {
		assert.Equal(t, model.CapabilityFlags(1<<i), FromFirmware("fw-v1"+string(r)), "letter %q", r)
	}
}

func TestResolveMaskSupersedesLetters(t *testing.T) {
	assert.Equal(t, model.CapHasZIndex, Resolve("fw-v250z", nil))
	assert.Equal(t, model.CapHasAS5600, Resolve("fw-v250z", u32(uint32(model.CapHasAS5600))))
	assert.Equal(t, model.CapabilityFlags(0), Resolve("fw-v250z", u32(0)))

	// bits above 16 are not feature flags
	assert.Equal(t, model.CapHasZIndex, Resolve("fw-v250", u32(1|1<<20|1<<22)))
}

func TestEffectiveEepromSave(t *testing.T) {
	withP := &model.DeviceInfo{FirmwareVersion: "fw-v250p", Capabilities: FromFirmware("fw-v250p")}
	assert.False(t, Effective(withP).SupportsEepromSave)

	plain := &model.DeviceInfo{FirmwareVersion: "fw-v250", Capabilities: FromFirmware("fw-v250")}
	assert.Equal(t, model.CapabilityFlags(0), plain.Capabilities)
	assert.True(t, Effective(plain).SupportsEepromSave)
}

func TestEffective(t *testing.T) {
	tests := []struct {
		name string
		info *model.DeviceInfo
		want model.DeviceCapabilities
	}{
		{
			name: "legacy firmware",
			info: &model.DeviceInfo{FirmwareVersion: "fw-v230"},
			want: model.DeviceCapabilities{SupportsEepromSave: true},
		},
		{
			name: "serial config",
			info: &model.DeviceInfo{SupportsSerialConfig: true},
			want: model.DeviceCapabilities{
				SupportsSerialConfig:   true,
				SupportsSettingsRead:   true,
				SupportsSettingsWrite:  true,
				SupportsEepromSave:     true,
				SupportsCalibrationSet: true,
			},
		},
		{
			name: "demo implies serial config",
			info: &model.DeviceInfo{IsDemo: true, SupportsTelemetry: true},
			want: model.DeviceCapabilities{
				SupportsSerialConfig:   true,
				SupportsSettingsRead:   true,
				SupportsSettingsWrite:  true,
				SupportsEepromSave:     true,
				SupportsCalibrationSet: true,
				SupportsTelemetry:      true,
			},
		},
		{
			name: "mask bits",
			info: &model.DeviceInfo{CapabilityMask: u32(1<<20 | 1<<21 | 1<<22)},
			want: model.DeviceCapabilities{
				SupportsEepromSave:      true,
				SupportsCalibrationInfo: true,
				SupportsCalibrationSet:  true,
				SupportsTelemetry:       true,
			},
		},
		{
			name: "calibration present",
			info: &model.DeviceInfo{Calibration: &model.CalibrationInfo{Present: true}},
			want: model.DeviceCapabilities{SupportsEepromSave: true, SupportsCalibrationInfo: true},
		},
		{
			name: "calibration block without data",
			info: &model.DeviceInfo{Calibration: &model.CalibrationInfo{Present: false}},
			want: model.DeviceCapabilities{SupportsEepromSave: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Effective(tt.info))
		})
	}
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, "Unknown (INFO unsupported)", Describe(&model.DeviceInfo{}))
	assert.Equal(t, "None reported", Describe(&model.DeviceInfo{SupportsInfoCommand: true}))
	assert.Equal(t, "AS5600, Hat switch, Button matrix", Describe(&model.DeviceInfo{
		Capabilities: model.CapHasAS5600 | model.CapHasButtonMatrix | model.CapHasHatSwitch,
	}))
}
