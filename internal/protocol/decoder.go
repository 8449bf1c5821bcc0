// internal/protocol/decoder.go
package protocol

import (
	"strconv"
	"strings"

	"ffb-control-service/internal/capability"
	apperrors "ffb-control-service/internal/errors"
	"ffb-control-service/internal/model"
)

// CalibrationFieldCount is the number of tokens in the calibration block
const CalibrationFieldCount = 4

// InfoResponse is the decoded reply to V or I
type InfoResponse struct {
	FirmwareVersion string
	CapabilityMask  *uint32
	Config          *model.FfbConfig
	Calibration     *model.CalibrationInfo
}

// ParseVersion extracts the firmware version token from a V reply
func ParseVersion(line string) (string, error) {
	tokens := strings.Fields(line)
	if len(tokens) == 0 || !capability.IsFirmwareVersion(tokens[0]) {
		return "", apperrors.Newf(apperrors.KindParse, "unexpected version reply %q", line)
	}
	return tokens[0], nil
}

// ParseInfo decodes "fw-v... [mask] <16 config> [<4 calibration>]".
//
// The second token is a capability mask when it parses as an unsigned
// integer, unless the remaining token count is exactly a config block
// (16) or a config plus calibration block (20) without one.
func ParseInfo(line string) (*InfoResponse, error) {
	version, err := ParseVersion(line)
	if err != nil {
		return nil, err
	}

	tokens := strings.Fields(line)
	resp := &InfoResponse{FirmwareVersion: version}

	offset := 1
	remaining := len(tokens) - 1
	// A 20-token tail is always config plus calibration, even when it is
	// really a mask, a config block and a truncated 3-token calibration.
	// Reading any leading uint as a mask once 18 tokens follow would decode
	// that line differently; we keep the count rule and accept the shift.
	if remaining > 0 && remaining != model.FfbConfigFieldCount && remaining != model.FfbConfigFieldCount+CalibrationFieldCount {
		if mask, err := strconv.ParseUint(tokens[1], 10, 32); err == nil {
			m := uint32(mask)
			resp.CapabilityMask = &m
			offset = 2
		}
	}

	cfg, ok := parseConfig(tokens, offset)
	if !ok {
		return resp, nil
	}
	resp.Config = cfg

	if cal, ok := parseCalibration(tokens, offset+model.FfbConfigFieldCount); ok {
		resp.Calibration = cal
	}
	return resp, nil
}

// ParseSettings decodes a U reply
func ParseSettings(line string) (*model.FfbConfig, error) {
	tokens := strings.Fields(line)
	cfg, ok := parseConfig(tokens, 0)
	if !ok {
		return nil, apperrors.Newf(apperrors.KindParse, "unexpected settings response %q", line)
	}
	return cfg, nil
}

// EncodeSettings renders a configuration as a U reply
func EncodeSettings(cfg *model.FfbConfig) string {
	fields := cfg.Fields()
	return joinInts(fields[:])
}

// EncodeInfo renders an I reply. Nil parts are omitted.
func EncodeInfo(version string, mask *uint32, cfg *model.FfbConfig, cal *model.CalibrationInfo) string {
	var b strings.Builder
	b.WriteString(version)
	if mask != nil {
		b.WriteByte(' ')
		b.WriteString(strconv.FormatUint(uint64(*mask), 10))
	}
	if cfg == nil {
		return b.String()
	}
	b.WriteByte(' ')
	b.WriteString(EncodeSettings(cfg))
	if cal != nil {
		b.WriteByte(' ')
		b.WriteString(joinInts([]int{boolInt(cal.Present), cal.CenterOffsetRaw, boolInt(cal.Inverted), cal.RotationDeg}))
	}
	return b.String()
}

// ParseTorque decodes a bare-integer telemetry line
func ParseTorque(line string) (int, bool) {
	v, err := strconv.Atoi(strings.TrimSpace(line))
	return v, err == nil
}

func parseConfig(tokens []string, offset int) (*model.FfbConfig, bool) {
	if len(tokens)-offset < model.FfbConfigFieldCount {
		return nil, false
	}

	var fields [model.FfbConfigFieldCount]int
	for i := range fields {
		v, err := strconv.Atoi(tokens[offset+i])
		if err != nil {
			return nil, false
		}
		fields[i] = v
	}
	return model.FfbConfigFromFields(fields), true
}

func parseCalibration(tokens []string, offset int) (*model.CalibrationInfo, bool) {
	if len(tokens)-offset < CalibrationFieldCount {
		return nil, false
	}

	var values [CalibrationFieldCount]int
	for i := range values {
		v, err := strconv.Atoi(tokens[offset+i])
		if err != nil {
			return nil, false
		}
		values[i] = v
	}

	return &model.CalibrationInfo{
		Present:         values[0] != 0,
		CenterOffsetRaw: values[1],
		Inverted:        values[2] != 0,
		RotationDeg:     values[3],
	}, true
}

func joinInts(values []int) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, " ")
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
