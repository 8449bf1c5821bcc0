// internal/service/telemetry_service.go
package service

import (
	"context"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"ffb-control-service/internal/model"
	"ffb-control-service/internal/utils"
)

const (
	maxTorqueSamples     = 12000
	statsWindow          = 300
	clippingRatio        = 0.9
	defaultMaxTorque     = 2047
	torquePublishEvery   = 50 * time.Millisecond
	demoTelemetryPeriod  = 20 * time.Millisecond
	expectedTorqueLineHz = 50.0
)

// TelemetryStats summarizes the torque stream
type TelemetryStats struct {
	LatestTorque      int     `json:"latest_torque"`
	SampleCount       int     `json:"sample_count"`
	LineRateHz        float64 `json:"line_rate_hz"`
	PacketLossPercent float64 `json:"packet_loss_percent"`
	ClippingPercent   float64 `json:"clipping_percent"`
	MaxTorque         int     `json:"max_torque"`
}

// TelemetryService collects torque samples reported by the wheel
type TelemetryService struct {
	mutex       sync.RWMutex
	samples     []model.TorqueSample
	maxTorque   int
	lastPublish time.Time

	events EventPublisher
	logger *utils.ServiceLogger
	now    func() time.Time
}

// NewTelemetryService creates a telemetry service
func NewTelemetryService(events EventPublisher, logger *zap.Logger) *TelemetryService {
	return &TelemetryService{
		samples:   make([]model.TorqueSample, 0, 1024),
		maxTorque: defaultMaxTorque,
		events:    publisherOrNop(events),
		logger:    utils.NewServiceLogger(logger, "telemetry-service"),
		now:       time.Now,
	}
}

// Record stores one torque sample. Torque events are published at a bounded rate.
func (ts *TelemetryService) Record(torque int) {
	sample := model.TorqueSample{Value: torque, Timestamp: ts.now()}

	ts.mutex.Lock()
	ts.samples = append(ts.samples, sample)
	if len(ts.samples) > 2*maxTorqueSamples {
		ts.samples = append(ts.samples[:0:0], ts.samples[len(ts.samples)-maxTorqueSamples:]...)
	}
	publish := sample.Timestamp.Sub(ts.lastPublish) >= torquePublishEvery
	if publish {
		ts.lastPublish = sample.Timestamp
	}
	ts.mutex.Unlock()

	if publish {
		ts.events.Publish(model.NewEvent(model.EventTelemetryTorque, "telemetry-service", sample))
	}
}

// SetMaxTorque sets the torque treated as full scale for clipping detection
func (ts *TelemetryService) SetMaxTorque(value int) {
	ts.mutex.Lock()
	defer ts.mutex.Unlock()
	ts.maxTorque = max(1, value)
}

// Samples returns up to limit of the most recent samples, oldest first
func (ts *TelemetryService) Samples(limit int) []model.TorqueSample {
	ts.mutex.RLock()
	defer ts.mutex.RUnlock()

	samples := ts.samples
	if len(samples) > maxTorqueSamples {
		samples = samples[len(samples)-maxTorqueSamples:]
	}
	if limit > 0 && len(samples) > limit {
		samples = samples[len(samples)-limit:]
	}
	return append([]model.TorqueSample(nil), samples...)
}

// Stats computes rate and clipping over the recent samples
func (ts *TelemetryService) Stats() TelemetryStats {
	ts.mutex.RLock()
	defer ts.mutex.RUnlock()

	stats := TelemetryStats{MaxTorque: ts.maxTorque}
	n := len(ts.samples)
	if n == 0 {
		return stats
	}
	stats.SampleCount = min(n, maxTorqueSamples)
	stats.LatestTorque = ts.samples[n-1].Value

	cutoff := ts.now().Add(-time.Second)
	lines := 0
	for i := n - 1; i >= 0 && ts.samples[i].Timestamp.After(cutoff); i-- {
		lines++
	}
	stats.LineRateHz = float64(lines)
	stats.PacketLossPercent = math.Max(0, (expectedTorqueLineHz-stats.LineRateHz)/expectedTorqueLineHz*100)

	window := ts.samples[max(0, n-statsWindow):]
	clipped := 0
	limit := float64(ts.maxTorque) * clippingRatio
	for _, s := range window {
		if math.Abs(float64(s.Value)) >= limit {
			clipped++
		}
	}
	stats.ClippingPercent = float64(clipped) / float64(len(window)) * 100
	return stats
}

// Reset drops every stored sample
func (ts *TelemetryService) Reset() {
	ts.mutex.Lock()
	defer ts.mutex.Unlock()
	ts.samples = ts.samples[:0]
}

// RunDemo feeds a synthetic torque signal until ctx is done
func (ts *TelemetryService) RunDemo(ctx context.Context) {
	ticker := time.NewTicker(demoTelemetryPeriod)
	defer ticker.Stop()

	start := time.Now()
	ts.logger.Debug("Demo telemetry started")
	for {
		select {
		case <-ctx.Done():
			ts.logger.Debug("Demo telemetry stopped")
			return
		case now := <-ticker.C:
			ts.mutex.RLock()
			full := float64(ts.maxTorque)
			ts.mutex.RUnlock()
			ts.Record(int(math.Sin(now.Sub(start).Seconds()*1.8) * full))
		}
	}
}
