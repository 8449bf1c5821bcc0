// internal/service/device_state.go
package service

import (
	"sync"

	"ffb-control-service/internal/capability"
	"ffb-control-service/internal/model"
)

// DeviceState holds the active device and the demo flag
type DeviceState struct {
	mutex   sync.RWMutex
	current *model.DeviceInfo
	demo    bool
}

// NewDeviceState creates an empty device state
func NewDeviceState() *DeviceState {
	return &DeviceState{}
}

// SetDevice replaces the active device. Nil clears it.
func (s *DeviceState) SetDevice(info *model.DeviceInfo) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.current = info
	if info == nil {
		s.demo = false
	}
}

// SetDemoMode switches demo mode. Enabling it with a device makes that device active.
func (s *DeviceState) SetDemoMode(enabled bool, demoDevice *model.DeviceInfo) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.demo = enabled
	if enabled && demoDevice != nil {
		s.current = demoDevice
	}
}

// Current returns a copy of the active device, or nil
func (s *DeviceState) Current() *model.DeviceInfo {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	if s.current == nil {
		return nil
	}
	cp := *s.current
	return &cp
}

// IsDemoMode reports whether the active device is the demo device
func (s *DeviceState) IsDemoMode() bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.demo
}

// Capabilities returns the effective capabilities of the active device
func (s *DeviceState) Capabilities() model.DeviceCapabilities {
	return capability.Effective(s.Current())
}
