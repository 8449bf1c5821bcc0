// Package capability derives what a connected wheel can do from its
// firmware version string, its explicit capability mask, and its
// connection flags.
package capability

import (
	"strings"

	"ffb-control-service/internal/model"
)

// FirmwarePrefix starts every firmware version string
const FirmwarePrefix = "fw-v"

var letterFlags = map[rune]model.CapabilityFlags{
	'z': model.CapHasZIndex,
	'w': model.CapHasAS5600,
	'b': model.CapHasTwoFfbAxis,
	'h': model.CapHasHatSwitch,
	's': model.CapHasAds1015,
	'i': model.CapHasAvgInputs,
	't': model.CapHasButtonMatrix,
	'f': model.CapHasXYShifter,
	'e': model.CapHasExtraButtons,
	'k': model.CapHasSplitAxis,
	'x': model.CapHasAnalogFfbAxis,
	'n': model.CapHasShiftRegister,
	'r': model.CapHasSn74,
	'l': model.CapHasLoadCell,
	'g': model.CapHasMcp4725,
	'p': model.CapNoEeprom,
	'm': model.CapProMicroPins,
}

// IsFirmwareVersion reports whether s starts with the firmware prefix, ignoring case
func IsFirmwareVersion(s string) bool {
	return len(s) >= len(FirmwarePrefix) && strings.EqualFold(s[:len(FirmwarePrefix)], FirmwarePrefix)
}

// FromFirmware derives capability flags from the letters after the "fw-v"
// prefix. Strings without the prefix yield no capabilities.
func FromFirmware(version string) model.CapabilityFlags {
	version = strings.TrimSpace(version)
	if !IsFirmwareVersion(version) {
		return 0
	}

	var flags model.CapabilityFlags
	for _, r := range strings.ToLower(version[len(FirmwarePrefix):]) {
		flags |= letterFlags[r]
	}
	return flags
}

// Resolve returns the capability flags for a device. An explicit mask wins
// over letter-derived flags.
func Resolve(version string, mask *uint32) model.CapabilityFlags {
	if mask != nil {
		return model.CapabilityFlags(*mask) & model.CapabilityFlagMask
	}
	return FromFirmware(version)
}

// Effective maps device information onto the operations the application may perform
func Effective(info *model.DeviceInfo) model.DeviceCapabilities {
	if info == nil {
		return model.DeviceCapabilities{SupportsEepromSave: true}
	}

	serialConfig := info.SupportsSerialConfig || info.IsDemo
	calibrationPresent := info.Calibration != nil && info.Calibration.Present

	return model.DeviceCapabilities{
		SupportsSerialConfig:    serialConfig,
		SupportsSettingsRead:    serialConfig,
		SupportsSettingsWrite:   serialConfig,
		SupportsEepromSave:      !info.Capabilities.Has(model.CapNoEeprom),
		SupportsCalibrationInfo: calibrationPresent || maskBit(info.CapabilityMask, model.MaskBitCalibrationInfo),
		SupportsCalibrationSet:  maskBit(info.CapabilityMask, model.MaskBitCalibrationSet) || serialConfig,
		SupportsTelemetry:       info.SupportsTelemetry || maskBit(info.CapabilityMask, model.MaskBitTelemetryStream),
	}
}

func maskBit(mask *uint32, bit uint) bool {
	return mask != nil && *mask&(1<<bit) != 0
}

var featureLabels = []struct {
	flag  model.CapabilityFlags
	label string
}{
	{model.CapHasZIndex, "Z-index"},
	{model.CapHasAS5600, "AS5600"},
	{model.CapHasTwoFfbAxis, "2-FFB axis"},
	{model.CapHasHatSwitch, "Hat switch"},
	{model.CapHasAds1015, "ADS1015"},
	{model.CapHasAvgInputs, "Avg inputs"},
	{model.CapHasButtonMatrix, "Button matrix"},
	{model.CapHasXYShifter, "XY shifter"},
	{model.CapHasExtraButtons, "Extra buttons"},
	{model.CapHasSplitAxis, "Split axis"},
	{model.CapHasAnalogFfbAxis, "Analog FFB axis"},
	{model.CapHasShiftRegister, "Shift register"},
	{model.CapHasSn74, "SN74ALS166"},
	{model.CapHasLoadCell, "Load cell"},
	{model.CapHasMcp4725, "MCP4725"},
	{model.CapNoEeprom, "No EEPROM"},
	{model.CapProMicroPins, "Pro Micro pins"},
}

// Describe renders the hardware features of a device for display
func Describe(info *model.DeviceInfo) string {
	if info == nil {
		return "No device"
	}
	if !info.SupportsInfoCommand && info.Capabilities == 0 {
		return "Unknown (INFO unsupported)"
	}
	if info.Capabilities == 0 {
		return "None reported"
	}

	labels := make([]string, 0, len(featureLabels))
	for _, f := range featureLabels {
		if info.Capabilities.Has(f.flag) {
			labels = append(labels, f.label)
		}
	}
	return strings.Join(labels, ", ")
}
