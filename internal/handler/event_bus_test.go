package handler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ffb-control-service/internal/model"
)

func receive(t *testing.T, ch <-chan model.Event) model.Event {
	t.Helper()
	select {
	case event, ok := <-ch:
		require.True(t, ok, "channel closed")
		return event
	case <-time.After(time.Second):
		t.Fatal("no event received")
		return model.Event{}
	}
}

func TestEventBusDistributesByType(t *testing.T) {
	bus := NewEventBus()
	go bus.Start()
	defer bus.Stop()

	connected := bus.Subscribe(model.EventDeviceConnected)
	all := bus.SubscribeAll()

	bus.Publish(model.NewEvent(model.EventSettingsApplied, "test", nil))
	bus.Publish(model.NewEvent(model.EventDeviceConnected, "test", nil))

	assert.Equal(t, model.EventSettingsApplied, receive(t, all).Type)
	assert.Equal(t, model.EventDeviceConnected, receive(t, all).Type)
	assert.Equal(t, model.EventDeviceConnected, receive(t, connected).Type)

	select {
	case event := <-connected:
		t.Fatalf("unexpected event %s", event.Type)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestEventBusUnsubscribeAndStop(t *testing.T) {
	bus := NewEventBus()
	go bus.Start()

	ch := bus.SubscribeAll()
	bus.Unsubscribe(ch)
	_, ok := <-ch
	assert.False(t, ok)

	other := bus.Subscribe(model.EventDeviceLost)
	bus.Stop()
	bus.Stop()
	_, ok = <-other
	assert.False(t, ok)

	late := bus.SubscribeAll()
	_, ok = <-late
	assert.False(t, ok)

	bus.Publish(model.NewEvent(model.EventDeviceLost, "test", nil))
}

func TestClientTopics(t *testing.T) {
	client := &Client{}
	assert.True(t, client.Wants(model.EventDeviceConnected))
	assert.False(t, client.Wants(model.EventTelemetryTorque))

	client.Subscribe("telemetry")
	assert.True(t, client.Wants(model.EventTelemetryTorque))
	assert.False(t, client.Wants(model.EventDeviceConnected))

	client.Subscribe("settings.applied")
	assert.True(t, client.Wants(model.EventSettingsApplied))
	assert.False(t, client.Wants(model.EventSettingsLoaded))
	assert.ElementsMatch(t, []string{"telemetry", "settings.applied"}, client.Topics())

	client.Unsubscribe("telemetry")
	client.Unsubscribe("settings.applied")
	assert.True(t, client.Wants(model.EventDeviceLost))
}
