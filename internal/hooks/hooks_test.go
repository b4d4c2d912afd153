package hooks

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/soyeahso/gaia/internal/logging"
)

func testManager() *Manager {
	return NewManager(logging.New(nil, "silent"))
}

func TestEmitOrderAndPayload(t *testing.T) {
	m := testManager()

	var order []string
	var got Payload
	m.On(EventToolExecuted, "first", func(_ context.Context, p Payload) error {
		order = append(order, "first")
		got = p
		return nil
	})
	m.On(EventToolExecuted, "second", func(_ context.Context, _ Payload) error {
		order = append(order, "second")
		return nil
	})

	m.Emit(context.Background(), EventToolExecuted, map[string]any{
		"sessionId": "s1",
		"tool":      "verificar_ciudades_clapzy",
	})
	assert.Equal(t, []string{"first", "second"}, order)
	assert.Equal(t, EventToolExecuted, got.Event)
	assert.False(t, got.Timestamp.IsZero())
	assert.Equal(t, "s1", got.Data["sessionId"])
}

func TestEmitContinuesAfterError(t *testing.T) {
	m := testManager()

	var reached bool
	m.On(EventTurnFailed, "broken", func(context.Context, Payload) error {
		return errors.New("listener broke")
	})
	m.On(EventTurnFailed, "after", func(context.Context, Payload) error {
		reached = true
		return nil
	})

	m.Emit(context.Background(), EventTurnFailed, nil)
	assert.True(t, reached)
}

func TestEmitWithoutListeners(t *testing.T) {
	var nilManager *Manager
	nilManager.Emit(context.Background(), EventTurnReceived, nil)

	testManager().Emit(context.Background(), EventGatewayStop, nil)
}

func TestOff(t *testing.T) {
	tests := []struct {
		name   string
		events []string
		left   map[string]int
	}{
		{"one event", []string{EventSessionReset}, map[string]int{EventSessionReset: 1, EventTurnReceived: 2}},
		{"all events", nil, map[string]int{EventSessionReset: 1, EventTurnReceived: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := testManager()
			noop := func(context.Context, Payload) error { return nil }
			m.OnAll("publisher", noop)
			m.On(EventSessionReset, "console", noop)
			m.On(EventTurnReceived, "console", noop)

			m.Off("publisher", tt.events...)
			for event, want := range tt.left {
				assert.Equal(t, want, m.Count(event), event)
			}
		})
	}
}

func TestOnAllCoversEveryEvent(t *testing.T) {
	m := testManager()

	var seen []string
	m.OnAll("recorder", func(_ context.Context, p Payload) error {
		seen = append(seen, p.Event)
		return nil
	})
	for _, event := range AllEvents {
		m.Emit(context.Background(), event, nil)
	}
	assert.Equal(t, AllEvents, seen)
	assert.Len(t, AllEvents, 8)
}
