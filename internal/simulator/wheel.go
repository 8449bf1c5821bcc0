// Package simulator provides an in-memory wheel that speaks the firmware
// line protocol. It backs the simulate mode of the service and the tests.
package simulator

import (
	"io"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"ffb-control-service/internal/capability"
	"ffb-control-service/internal/model"
	"ffb-control-service/internal/protocol"
)

const (
	// DefaultFirmware is the version string reported by a default wheel
	DefaultFirmware = "fw-v250whtm"

	// PortName is the port the simulated wheel is listed under
	PortName = "SIM0"
)

// Options shape the simulated firmware
type Options struct {
	FirmwareVersion   string
	CapabilityMask    *uint32
	SupportsInfo      bool
	SupportsSettings  bool
	Calibration       *model.CalibrationInfo
	Config            *model.FfbConfig
	TelemetryInterval time.Duration
}

// DefaultOptions describes a current firmware build with every extension
func DefaultOptions() Options {
	mask := uint32(model.CapHasAS5600|model.CapHasHatSwitch|model.CapHasButtonMatrix|model.CapProMicroPins) |
		1<<model.MaskBitCalibrationInfo | 1<<model.MaskBitCalibrationSet | 1<<model.MaskBitTelemetryStream
	return Options{
		FirmwareVersion:   DefaultFirmware,
		CapabilityMask:    &mask,
		SupportsInfo:      true,
		SupportsSettings:  true,
		Calibration:       &model.CalibrationInfo{Present: true, RotationDeg: 1080},
		Config:            model.DefaultFfbConfig(),
		TelemetryInterval: 20 * time.Millisecond,
	}
}

// Wheel is the state of a simulated firmware. Ports opened from it share that state.
type Wheel struct {
	mu       sync.Mutex
	opts     Options
	active   *model.FfbConfig
	eeprom   *model.FfbConfig
	received []string
	muted    map[string]int
	replies  map[string][]string
	conn     *conn
	tick     float64
}

// NewWheel creates a simulated wheel
func NewWheel(opts Options) *Wheel {
	if opts.FirmwareVersion == "" {
		opts.FirmwareVersion = DefaultFirmware
	}
	if opts.Config == nil {
		opts.Config = model.DefaultFfbConfig()
	}
	return &Wheel{
		opts:    opts,
		active:  opts.Config.Clone(),
		eeprom:  opts.Config.Clone(),
		muted:   map[string]int{},
		replies: map[string][]string{},
	}
}

// Open returns a new connection to the wheel, replacing any previous one
func (w *Wheel) Open() io.ReadWriteCloser {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.conn != nil {
		w.conn.shutdown(nil)
	}
	c := &conn{
		wheel:  w,
		out:    make(chan []byte, 256),
		closed: make(chan struct{}),
	}
	w.conn = c
	if w.opts.TelemetryInterval > 0 {
		go c.streamTelemetry(w.opts.TelemetryInterval)
	}
	return c
}

// ListPorts lists the simulated wheel as a USB serial port
func (w *Wheel) ListPorts() ([]model.PortInfo, error) {
	return []model.PortInfo{{
		Name:    PortName,
		IsUSB:   true,
		VID:     "2341",
		PID:     "8036",
		Product: "Arduino Leonardo (simulated)",
		Board:   "Arduino Leonardo",
	}}, nil
}

// Unplug drops the connection as if the cable was pulled
func (w *Wheel) Unplug() {
	w.mu.Lock()
	c := w.conn
	w.conn = nil
	w.mu.Unlock()

	if c != nil {
		c.shutdown(io.ErrUnexpectedEOF)
	}
}

// Mute swallows the replies to the next n commands starting with code
func (w *Wheel) Mute(code string, n int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.muted[code] = n
}

// Reply queues a canned reply for the next command starting with code
func (w *Wheel) Reply(code, line string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.replies[code] = append(w.replies[code], line)
}

// Emit sends an unsolicited line to the host
func (w *Wheel) Emit(line string) {
	w.mu.Lock()
	c := w.conn
	w.mu.Unlock()
	if c != nil {
		c.send(line)
	}
}

// Received returns every command the wheel has seen
func (w *Wheel) Received() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.received...)
}

// ResetReceived clears the command log
func (w *Wheel) ResetReceived() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.received = nil
}

// ActiveConfig returns the configuration in RAM
func (w *Wheel) ActiveConfig() *model.FfbConfig {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.active.Clone()
}

// SavedConfig returns the configuration in EEPROM
func (w *Wheel) SavedConfig() *model.FfbConfig {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.eeprom.Clone()
}

// SetActiveConfig replaces the configuration in RAM
func (w *Wheel) SetActiveConfig(cfg *model.FfbConfig) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.active = cfg.Clone()
}

func (w *Wheel) telemetryOn() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.active.DesktopEffectsByte&(1<<protocol.TelemetryEnableBit) != 0
}

func (w *Wheel) nextTorque() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.tick += 0.05
	return int(float64(w.active.MaxTorque) * 0.6 * math.Sin(w.tick))
}

// handle executes one command and returns the reply lines
func (w *Wheel) handle(command string) []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.received = append(w.received, command)

	fields := strings.Fields(command)
	if len(fields) == 0 {
		return nil
	}
	code := fields[0]
	arg, hasArg := 0, false
	if len(fields) > 1 {
		if v, err := strconv.Atoi(fields[1]); err == nil {
			arg, hasArg = v, true
		}
	}

	reply := w.execute(code, arg, hasArg)

	if canned := w.replies[code]; len(canned) > 0 {
		reply = []string{canned[0]}
		w.replies[code] = canned[1:]
	}
	if n := w.muted[code]; n > 0 {
		w.muted[code] = n - 1
		return nil
	}
	return reply
}

func (w *Wheel) execute(code string, arg int, hasArg bool) []string {
	ack := []string{"1"}

	switch code {
	case "V":
		return []string{w.opts.FirmwareVersion}
	case "I":
		if !w.opts.SupportsInfo {
			return nil
		}
		return []string{protocol.EncodeInfo(w.opts.FirmwareVersion, w.opts.CapabilityMask, w.active, w.opts.Calibration)}
	case "U":
		if !w.opts.SupportsSettings {
			return nil
		}
		return []string{protocol.EncodeSettings(w.active)}
	case "C":
		return ack
	case "R":
		if w.opts.Calibration != nil {
			w.opts.Calibration.Present = true
			w.opts.Calibration.RotationDeg = w.active.RotationDeg
		}
		return nil
	case "A":
		if capability.Resolve(w.opts.FirmwareVersion, w.opts.CapabilityMask).Has(model.CapNoEeprom) {
			return []string{"0"}
		}
		w.eeprom = w.active.Clone()
		return ack
	}

	if !hasArg {
		return nil
	}

	switch code {
	case "G":
		w.active.RotationDeg = arg
	case "FG":
		w.active.GeneralGain = arg
	case "FD":
		w.active.DamperGain = arg
	case "FF":
		w.active.FrictionGain = arg
	case "FI":
		w.active.InertiaGain = arg
	case "FM":
		w.active.SpringGain = arg
	case "FC":
		w.active.ConstantGain = arg
	case "FS":
		w.active.PeriodicGain = arg
	case "FA":
		w.active.CenterGain = arg
	case "FB":
		w.active.StopGain = arg
	case "FJ":
		w.active.MinTorque = arg
	case "B":
		w.active.BrakePressureOrBalance = arg
	case "E":
		w.active.DesktopEffectsByte = arg
		return nil
	default:
		return nil
	}
	return ack
}

// conn is one host connection to the wheel
type conn struct {
	wheel *Wheel

	writeMu sync.Mutex
	partial []byte

	out     chan []byte
	pending []byte

	closeOnce sync.Once
	closed    chan struct{}
	err       error
}

func (c *conn) Read(p []byte) (int, error) {
	if len(c.pending) > 0 {
		n := copy(p, c.pending)
		c.pending = c.pending[n:]
		return n, nil
	}

	select {
	case b := <-c.out:
		n := copy(p, b)
		c.pending = b[n:]
		return n, nil
	case <-c.closed:
		if c.err != nil {
			return 0, c.err
		}
		return 0, io.EOF
	}
}

func (c *conn) Write(p []byte) (int, error) {
	select {
	case <-c.closed:
		return 0, io.ErrClosedPipe
	default:
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	for _, b := range p {
		if b != '\r' && b != '\n' {
			c.partial = append(c.partial, b)
			continue
		}
		command := strings.TrimSpace(string(c.partial))
		c.partial = c.partial[:0]
		if command == "" {
			continue
		}
		for _, line := range c.wheel.handle(command) {
			c.send(line)
		}
	}
	return len(p), nil
}

func (c *conn) Close() error {
	c.shutdown(nil)
	return nil
}

func (c *conn) shutdown(err error) {
	c.closeOnce.Do(func() {
		c.err = err
		close(c.closed)
	})
}

func (c *conn) send(line string) {
	select {
	case c.out <- []byte(line + "\r\n"):
	case <-c.closed:
	}
}

func (c *conn) streamTelemetry(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.closed:
			return
		case <-ticker.C:
			if c.wheel.telemetryOn() {
				c.send(strconv.Itoa(c.wheel.nextTorque()))
			}
		}
	}
}
