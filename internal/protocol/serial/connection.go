// internal/protocol/serial/connection.go
package serial

import (
	"context"
	"fmt"
	"io"

	"go.bug.st/serial"
	"go.uber.org/zap"

	"ffb-control-service/internal/config"
)

// Port is an open byte stream to the wheel
type Port interface {
	io.Reader
	io.Writer
	io.Closer
}

// Opener opens a named port
type Opener interface {
	Open(ctx context.Context, name string) (Port, error)
}

// OpenerFunc adapts a function to Opener
type OpenerFunc func(ctx context.Context, name string) (Port, error)

// Open calls f
func (f OpenerFunc) Open(ctx context.Context, name string) (Port, error) {
	return f(ctx, name)
}

// Config represents serial port configuration
type Config struct {
	BaudRate int    `json:"baud_rate"`
	DataBits int    `json:"data_bits"`
	StopBits int    `json:"stop_bits"`
	Parity   string `json:"parity"`
}

// ConfigFrom converts the application serial settings
func ConfigFrom(cfg config.SerialConfig) *Config {
	return &Config{
		BaudRate: cfg.BaudRate,
		DataBits: cfg.DataBits,
		StopBits: cfg.StopBits,
		Parity:   cfg.Parity,
	}
}

// DeviceOpener opens real serial ports through go.bug.st/serial
type DeviceOpener struct {
	config *Config
	logger *zap.Logger
}

// NewDeviceOpener creates an opener for physical ports
func NewDeviceOpener(config *Config, logger *zap.Logger) *DeviceOpener {
	return &DeviceOpener{
		config: config,
		logger: logger,
	}
}

// Open opens the port with the configured line settings and asserts DTR and RTS.
// Arduino boards with native USB only start talking once DTR is high.
func (o *DeviceOpener) Open(ctx context.Context, name string) (Port, error) {
	if name == "" {
		return nil, fmt.Errorf("port is required")
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	mode := &serial.Mode{
		BaudRate: o.config.BaudRate,
		DataBits: o.config.DataBits,
		StopBits: stopBits(o.config.StopBits),
	}

	switch o.config.Parity {
	case "odd":
		mode.Parity = serial.OddParity
	case "even":
		mode.Parity = serial.EvenParity
	default:
		mode.Parity = serial.NoParity
	}

	port, err := serial.Open(name, mode)
	if err != nil {
		o.logger.Error("Failed to open serial port",
			zap.Error(err),
			zap.String("port", name),
		)
		return nil, fmt.Errorf("failed to open serial port: %w", err)
	}

	if err := port.SetDTR(true); err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to set DTR: %w", err)
	}
	if err := port.SetRTS(true); err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to set RTS: %w", err)
	}
	if err := port.SetReadTimeout(serial.NoTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to set read timeout: %w", err)
	}

	o.logger.Info("Serial port opened successfully",
		zap.String("port", name),
		zap.Int("baud_rate", o.config.BaudRate),
	)

	return port, nil
}

func stopBits(n int) serial.StopBits {
	if n == 2 {
		return serial.TwoStopBits
	}
	return serial.OneStopBit
}
