// internal/service/link.go
package service

import (
	"context"
	"time"

	"ffb-control-service/internal/protocol/serial"
)

// Link is the serial session used by the services. serial.Transport implements it.
type Link interface {
	Connect(ctx context.Context, name string) error
	Disconnect()
	IsConnected() bool
	PortName() string
	SendAndWait(ctx context.Context, command string, matcher serial.Matcher, timeout time.Duration) (string, error)
	SendNoWait(command string) error
	SetTelemetryEnabled(enabled bool)
	TelemetryEnabled() bool
}

var _ Link = (*serial.Transport)(nil)

// pause waits d or until ctx is done
func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// commandTimeout bounds a single command by the context deadline when one is set
func commandTimeout(ctx context.Context, fallback time.Duration) time.Duration {
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining > 0 && (fallback <= 0 || remaining < fallback) {
			return remaining
		}
	}
	return fallback
}
