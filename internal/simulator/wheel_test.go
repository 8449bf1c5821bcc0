package simulator

import (
	"bufio"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ffb-control-service/internal/protocol"
)

func exchange(t *testing.T, port io.ReadWriter, reader *bufio.Reader, command string) string {
	t.Helper()
	_, err := port.Write([]byte(command + "\r"))
	require.NoError(t, err)

	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	return line
}

func TestWheelAnswersProtocol(t *testing.T) {
	opts := DefaultOptions()
	opts.TelemetryInterval = 0
	wheel := NewWheel(opts)

	port := wheel.Open()
	defer port.Close()
	reader := bufio.NewReader(port)

	assert.Equal(t, DefaultFirmware+"\r\n", exchange(t, port, reader, "V"))
	assert.Equal(t, "1\r\n", exchange(t, port, reader, "G 900"))
	assert.Equal(t, "1\r\n", exchange(t, port, reader, "FM 80"))
	assert.Equal(t, "1\r\n", exchange(t, port, reader, "FJ 5"))

	active := wheel.ActiveConfig()
	assert.Equal(t, 900, active.RotationDeg)
	assert.Equal(t, 80, active.SpringGain)
	assert.Equal(t, 5, active.MinTorque)

	line := exchange(t, port, reader, "U")
	cfg, err := protocol.ParseSettings(line)
	require.NoError(t, err)
	assert.Equal(t, active, cfg)

	assert.NotEqual(t, 900, wheel.SavedConfig().RotationDeg)
	assert.Equal(t, "1\r\n", exchange(t, port, reader, "A"))
	assert.Equal(t, 900, wheel.SavedConfig().RotationDeg)

	info, err := protocol.ParseInfo(exchange(t, port, reader, "I"))
	require.NoError(t, err)
	assert.NotNil(t, info.CapabilityMask)
	assert.Equal(t, active, info.Config)

	assert.Equal(t, []string{"V", "G 900", "FM 80", "FJ 5", "U", "A", "I"}, wheel.Received())
}

func TestWheelNoEepromRefusesSave(t *testing.T) {
	wheel := NewWheel(Options{FirmwareVersion: "fw-v250p", SupportsSettings: true})
	port := wheel.Open()
	defer port.Close()

	assert.Equal(t, "0\r\n", exchange(t, port, bufio.NewReader(port), "A"))
}

func TestWheelMuteAndReply(t *testing.T) {
	wheel := NewWheel(Options{})
	port := wheel.Open()
	defer port.Close()
	reader := bufio.NewReader(port)

	wheel.Reply("C", "0")
	assert.Equal(t, "0\r\n", exchange(t, port, reader, "C"))

	wheel.Mute("C", 1)
	_, err := port.Write([]byte("C\r"))
	require.NoError(t, err)
	wheel.Emit("marker")
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "marker\r\n", line)
}

func TestWheelStreamsTelemetryWhenEnabled(t *testing.T) {
	opts := DefaultOptions()
	opts.TelemetryInterval = 5 * time.Millisecond
	wheel := NewWheel(opts)
	port := wheel.Open()
	defer port.Close()

	_, err := port.Write([]byte("E 17\r"))
	require.NoError(t, err)

	line, err := bufio.NewReader(port).ReadString('\n')
	require.NoError(t, err)
	_, ok := protocol.ParseTorque(line)
	assert.True(t, ok)
}

func TestWheelUnplug(t *testing.T) {
	wheel := NewWheel(Options{})
	port := wheel.Open()

	wheel.Unplug()

	_, err := port.Read(make([]byte, 8))
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}
