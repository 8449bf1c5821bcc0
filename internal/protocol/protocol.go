// internal/protocol/protocol.go
package protocol

import (
	"strconv"
	"strings"
)

const (
	// CommandTerminator ends every command written to the wheel
	CommandTerminator = "\r"

	// TelemetryEnableBit is the bit of the desktop effects byte that turns on the torque stream
	TelemetryEnableBit = 4

	// SettingsDumpMinFields is how many tokens make a line look like a bulk settings dump
	SettingsDumpMinFields = 10
)

// Gain names a force-feedback gain addressable with the F command
type Gain string

const (
	GainGeneral  Gain = "G"
	GainDamper   Gain = "D"
	GainFriction Gain = "F"
	GainInertia  Gain = "I"
	GainSpring   Gain = "M"
	GainConstant Gain = "C"
	GainPeriodic Gain = "S"
	GainCenter   Gain = "A"
	GainStop     Gain = "B"
)

// Gains lists every gain in the order they are applied
var Gains = []Gain{
	GainGeneral,
	GainDamper,
	GainFriction,
	GainInertia,
	GainSpring,
	GainConstant,
	GainPeriodic,
	GainCenter,
	GainStop,
}

var gainNames = map[Gain]string{
	GainGeneral:  "General gain",
	GainDamper:   "Damper gain",
	GainFriction: "Friction gain",
	GainInertia:  "Inertia gain",
	GainSpring:   "Spring gain",
	GainConstant: "Constant gain",
	GainPeriodic: "Periodic gain",
	GainCenter:   "Center gain",
	GainStop:     "Endstop gain",
}

// String returns the display name of the gain
func (g Gain) String() string {
	if name, ok := gainNames[g]; ok {
		return name
	}
	return "Gain " + string(g)
}

// Command is a single request to the wheel
type Command struct {
	Code   string
	Args   []int
	Expect ExpectedResponse
	NoWait bool
}

// String renders the command without terminator, e.g. "FG 100"
func (c Command) String() string {
	if len(c.Args) == 0 {
		return c.Code
	}
	parts := make([]string, 0, len(c.Args)+1)
	parts = append(parts, c.Code)
	for _, a := range c.Args {
		parts = append(parts, strconv.Itoa(a))
	}
	return strings.Join(parts, " ")
}

// Version requests the firmware version line
func Version() Command {
	return Command{Code: "V", Expect: VersionLine()}
}

// Info requests the extended info line
func Info() Command {
	return Command{Code: "I", Expect: VersionLine()}
}

// ReadSettings requests the bulk settings dump
func ReadSettings() Command {
	return Command{Code: "U", Expect: FieldDump(SettingsDumpMinFields)}
}

// SetRotation sets the steering range in degrees
func SetRotation(deg int) Command {
	return Command{Code: "G", Args: []int{deg}, Expect: Ack()}
}

// Center sets the current wheel position as center
func Center() Command {
	return Command{Code: "C", Expect: Ack()}
}

// Calibrate starts the firmware calibration routine
func Calibrate() Command {
	return Command{Code: "R", NoWait: true}
}

// Save persists the active configuration to EEPROM
func Save() Command {
	return Command{Code: "A", Expect: Ack()}
}

// SetGain sets one of the force-feedback gains
func SetGain(gain Gain, value int) Command {
	return Command{Code: "F" + string(gain), Args: []int{value}, Expect: AckTrue()}
}

// SetMinTorque sets the minimum torque
func SetMinTorque(value int) Command {
	return Command{Code: "FJ", Args: []int{value}, Expect: AckTrue()}
}

// SetBrake sets the brake pressure or balance
func SetBrake(value int) Command {
	return Command{Code: "B", Args: []int{value}, Expect: AckTrue()}
}

// SetEffects writes the desktop effects byte
func SetEffects(effState int) Command {
	return Command{Code: "E", Args: []int{effState}, NoWait: true}
}

// WithTelemetry returns effState with the telemetry bit set or cleared
func WithTelemetry(effState int, enabled bool) int {
	if enabled {
		return effState | 1<<TelemetryEnableBit
	}
	return effState &^ (1 << TelemetryEnableBit)
}
