package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"

	"ffb-control-service/internal/model"
)

func TestTelemetryStats(t *testing.T) {
	events := &recordingPublisher{}
	ts := NewTelemetryService(events, zaptest.NewLogger(t))

	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	ts.now = func() time.Time { return now }
	ts.SetMaxTorque(1000)

	for i := 0; i < 10; i++ {
		now = now.Add(20 * time.Millisecond)
		value := 100
		if i%2 == 0 {
			value = -950
		}
		ts.Record(value)
	}

	stats := ts.Stats()
	assert.Equal(t, 10, stats.SampleCount)
	assert.Equal(t, 100, stats.LatestTorque)
	assert.Equal(t, 10.0, stats.LineRateHz)
	assert.InDelta(t, 50.0, stats.ClippingPercent, 0.001)
	assert.InDelta(t, 80.0, stats.PacketLossPercent, 0.001)
	assert.Equal(t, 1000, stats.MaxTorque)

	now = now.Add(2 * time.Second)
	assert.Equal(t, 0.0, ts.Stats().LineRateHz)
}

func TestTelemetryPublishesAtBoundedRate(t *testing.T) {
	events := &recordingPublisher{}
	ts := NewTelemetryService(events, zaptest.NewLogger(t))

	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	ts.now = func() time.Time { return now }

	for i := 0; i < 20; i++ {
		now = now.Add(10 * time.Millisecond)
		ts.Record(i)
	}

	assert.Len(t, events.Types(), 4)
	for _, typ := range events.Types() {
		assert.Equal(t, model.EventTelemetryTorque, typ)
	}
}

func TestTelemetrySamplesAreBounded(t *testing.T) {
	ts := NewTelemetryService(nil, zaptest.NewLogger(t))
	for i := 0; i < 2*maxTorqueSamples+10; i++ {
		ts.Record(i)
	}

	all := ts.Samples(0)
	assert.Len(t, all, maxTorqueSamples)
	assert.Equal(t, 2*maxTorqueSamples+9, all[len(all)-1].Value)

	recent := ts.Samples(3)
	assert.Len(t, recent, 3)
	assert.Equal(t, all[len(all)-1], recent[2])

	ts.Reset()
	assert.Empty(t, ts.Samples(0))
	assert.Equal(t, 0, ts.Stats().SampleCount)
}
