// internal/model/device.go
package model

import (
	"strings"
	"time"
)

// CapabilityFlags is the bit-set of optional hardware features reported by the firmware
type CapabilityFlags uint32

const (
	CapHasZIndex CapabilityFlags = 1 << iota
	CapHasAS5600
	CapHasTwoFfbAxis
	CapHasHatSwitch
	CapHasAds1015
	CapHasAvgInputs
	CapHasButtonMatrix
	CapHasXYShifter
	CapHasExtraButtons
	CapHasSplitAxis
	CapHasAnalogFfbAxis
	CapHasShiftRegister
	CapHasSn74
	CapHasLoadCell
	CapHasMcp4725
	CapNoEeprom
	CapProMicroPins
)

// CapabilityFlagMask covers every defined capability bit
const CapabilityFlagMask CapabilityFlags = 1<<17 - 1

// Explicit mask bits beyond the feature flags
const (
	MaskBitCalibrationInfo = 20
	MaskBitCalibrationSet  = 21
	MaskBitTelemetryStream = 22
)

var capabilityNames = []struct {
	flag CapabilityFlags
	name string
}{
	{CapHasZIndex, "HasZIndex"},
	{CapHasAS5600, "HasAS5600"},
	{CapHasTwoFfbAxis, "HasTwoFfbAxis"},
	{CapHasHatSwitch, "HasHatSwitch"},
	{CapHasAds1015, "HasAds1015"},
	{CapHasAvgInputs, "HasAvgInputs"},
	{CapHasButtonMatrix, "HasButtonMatrix"},
	{CapHasXYShifter, "HasXYShifter"},
	{CapHasExtraButtons, "HasExtraButtons"},
	{CapHasSplitAxis, "HasSplitAxis"},
	{CapHasAnalogFfbAxis, "HasAnalogFfbAxis"},
	{CapHasShiftRegister, "HasShiftRegister"},
	{CapHasSn74, "HasSn74"},
	{CapHasLoadCell, "HasLoadCell"},
	{CapHasMcp4725, "HasMcp4725"},
	{CapNoEeprom, "NoEeprom"},
	{CapProMicroPins, "ProMicroPins"},
}

// Has reports whether every bit of flag is set
func (f CapabilityFlags) Has(flag CapabilityFlags) bool {
	return f&flag == flag
}

// Names lists the set flags in bit order
func (f CapabilityFlags) Names() []string {
	names := make([]string, 0, len(capabilityNames))
	for _, c := range capabilityNames {
		if f.Has(c.flag) {
			names = append(names, c.name)
		}
	}
	return names
}

func (f CapabilityFlags) String() string {
	if f == 0 {
		return "None"
	}
	return strings.Join(f.Names(), "|")
}

// CalibrationInfo is the raw calibration block reported by INFO
type CalibrationInfo struct {
	Present         bool `json:"present"`
	RotationDeg     int  `json:"rotation_deg"`
	CenterOffsetRaw int  `json:"center_offset_raw"`
	Inverted        bool `json:"inverted"`
}

// DeviceInfo describes the connected wheel
type DeviceInfo struct {
	Port                 string           `json:"port"`
	VID                  string           `json:"vid,omitempty"`
	PID                  string           `json:"pid,omitempty"`
	ProductName          string           `json:"product_name,omitempty"`
	SerialNumber         string           `json:"serial_number,omitempty"`
	FirmwareVersion      string           `json:"firmware_version"`
	Capabilities         CapabilityFlags  `json:"capabilities"`
	CapabilityMask       *uint32          `json:"capability_mask,omitempty"`
	Calibration          *CalibrationInfo `json:"calibration,omitempty"`
	SupportsInfoCommand  bool             `json:"supports_info_command"`
	SupportsSerialConfig bool             `json:"supports_serial_config"`
	SupportsTelemetry    bool             `json:"supports_telemetry"`
	IsDemo               bool             `json:"is_demo"`
	ConnectedAt          time.Time        `json:"connected_at"`
}

// DeviceID returns a stable identifier for snapshots and app settings
func (d *DeviceInfo) DeviceID() string {
	if d == nil {
		return ""
	}
	if d.VID != "" && d.PID != "" {
		return strings.ToUpper(d.VID + ":" + d.PID)
	}
	return d.Port
}

// DisplayName returns the product name, falling back to the port
func (d *DeviceInfo) DisplayName() string {
	if d == nil {
		return ""
	}
	if d.ProductName != "" {
		return d.ProductName
	}
	return d.Port
}

// DeviceCapabilities is the effective set of operations allowed for a device
type DeviceCapabilities struct {
	SupportsSerialConfig    bool `json:"supports_serial_config"`
	SupportsSettingsRead    bool `json:"supports_settings_read"`
	SupportsSettingsWrite   bool `json:"supports_settings_write"`
	SupportsEepromSave      bool `json:"supports_eeprom_save"`
	SupportsCalibrationInfo bool `json:"supports_calibration_info"`
	SupportsCalibrationSet  bool `json:"supports_calibration_set"`
	SupportsTelemetry       bool `json:"supports_telemetry"`
}

// PortInfo describes a serial port found during a scan
type PortInfo struct {
	Name         string `json:"name"`
	IsUSB        bool   `json:"is_usb"`
	VID          string `json:"vid,omitempty"`
	PID          string `json:"pid,omitempty"`
	Product      string `json:"product,omitempty"`
	SerialNumber string `json:"serial_number,omitempty"`
	Board        string `json:"board,omitempty"`
	Bootloader   bool   `json:"bootloader,omitempty"`
}
