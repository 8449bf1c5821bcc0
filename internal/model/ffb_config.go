// internal/model/ffb_config.go
package model

import "fmt"

// FfbConfigFieldCount is the number of positional fields in the settings dump
const FfbConfigFieldCount = 16

// FfbConfig is the tunable configuration of the wheel, in wire order
type FfbConfig struct {
	RotationDeg            int `json:"rotation_deg"`
	GeneralGain            int `json:"general_gain"`
	DamperGain             int `json:"damper_gain"`
	FrictionGain           int `json:"friction_gain"`
	ConstantGain           int `json:"constant_gain"`
	PeriodicGain           int `json:"periodic_gain"`
	SpringGain             int `json:"spring_gain"`
	InertiaGain            int `json:"inertia_gain"`
	CenterGain             int `json:"center_gain"`
	StopGain               int `json:"stop_gain"`
	MinTorque              int `json:"min_torque"`
	BrakePressureOrBalance int `json:"brake_pressure_or_balance"`
	DesktopEffectsByte     int `json:"desktop_effects_byte"`
	MaxTorque              int `json:"max_torque"`
	EncoderCpr             int `json:"encoder_cpr"`
	PwmState               int `json:"pwm_state"`
}

// DefaultFfbConfig returns the firmware factory defaults
func DefaultFfbConfig() *FfbConfig {
	return &FfbConfig{
		RotationDeg:            1080,
		GeneralGain:            100,
		DamperGain:             50,
		FrictionGain:           50,
		ConstantGain:           100,
		PeriodicGain:           100,
		SpringGain:             100,
		InertiaGain:            50,
		CenterGain:             70,
		StopGain:               100,
		MinTorque:              0,
		BrakePressureOrBalance: 128,
		DesktopEffectsByte:     1,
		MaxTorque:              2047,
		EncoderCpr:             2400,
		PwmState:               9,
	}
}

// Fields returns the configuration in wire order
func (c *FfbConfig) Fields() [FfbConfigFieldCount]int {
	return [FfbConfigFieldCount]int{
		c.RotationDeg,
		c.GeneralGain,
		c.DamperGain,
		c.FrictionGain,
		c.ConstantGain,
		c.PeriodicGain,
		c.SpringGain,
		c.InertiaGain,
		c.CenterGain,
		c.StopGain,
		c.MinTorque,
		c.BrakePressureOrBalance,
		c.DesktopEffectsByte,
		c.MaxTorque,
		c.EncoderCpr,
		c.PwmState,
	}
}

// FfbConfigFromFields builds a configuration from wire-ordered values
func FfbConfigFromFields(f [FfbConfigFieldCount]int) *FfbConfig {
	return &FfbConfig{
		RotationDeg:            f[0],
		GeneralGain:            f[1],
		DamperGain:             f[2],
		FrictionGain:           f[3],
		ConstantGain:           f[4],
		PeriodicGain:           f[5],
		SpringGain:             f[6],
		InertiaGain:            f[7],
		CenterGain:             f[8],
		StopGain:               f[9],
		MinTorque:              f[10],
		BrakePressureOrBalance: f[11],
		DesktopEffectsByte:     f[12],
		MaxTorque:              f[13],
		EncoderCpr:             f[14],
		PwmState:               f[15],
	}
}

// Clone returns an independent copy
func (c *FfbConfig) Clone() *FfbConfig {
	if c == nil {
		return nil
	}
	cp := *c
	return &cp
}

// fieldLabels are the display names used in diffs, in wire order
var fieldLabels = [FfbConfigFieldCount]string{
	"Rotation",
	"General",
	"Damper",
	"Friction",
	"Constant",
	"Periodic",
	"Spring",
	"Inertia",
	"Center",
	"Endstop",
	"MinTorque",
	"Brake/Bal",
	"DesktopEffects",
	"MaxTorque",
	"Encoder CPR",
	"PWM",
}

// AreEquivalent reports whether two configurations match on every field.
// Two nil configurations are equivalent; nil and non-nil are not.
func AreEquivalent(a, b *FfbConfig) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// DescribeDifferences lists "Name: a -> b" for every field that differs
func DescribeDifferences(a, b *FfbConfig) []string {
	if a == nil || b == nil {
		return nil
	}

	fa, fb := a.Fields(), b.Fields()
	var diffs []string
	for i := range fa {
		if fa[i] != fb[i] {
			diffs = append(diffs, fmt.Sprintf("%s: %d -> %d", fieldLabels[i], fa[i], fb[i]))
		}
	}
	return diffs
}
