// Package hooks fans turn and gateway lifecycle events out to listeners.
// The operator console and the MQTT event publisher both listen here.
package hooks

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/soyeahso/gaia/internal/logging"
)

const (
	EventTurnReceived  = "turn_received"
	EventToolExecuted  = "tool_executed"
	EventTurnCompleted = "turn_completed"
	EventTurnFailed    = "turn_failed"
	EventSessionStart  = "session_start"
	EventSessionReset  = "session_reset"
	EventGatewayStart  = "gateway_start"
	EventGatewayStop   = "gateway_stop"
)

// AllEvents is every event the runner and gateway emit.
var AllEvents = []string{
	EventTurnReceived,
	EventToolExecuted,
	EventTurnCompleted,
	EventTurnFailed,
	EventSessionStart,
	EventSessionReset,
	EventGatewayStart,
	EventGatewayStop,
}

// Payload is what a listener receives.
type Payload struct {
	Event     string         `json:"event"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
}

// Handler reacts to one event. Errors are logged; later listeners still run.
type Handler func(ctx context.Context, p Payload) error

type listener struct {
	owner string
	fn    Handler
}

// Manager keeps listeners per event. Emit on a nil *Manager does nothing,
// so components can be built without hooks.
type Manager struct {
	mu        sync.RWMutex
	listeners map[string][]listener
	log       *logging.Logger
}

func NewManager(log *logging.Logger) *Manager {
	return &Manager{
		listeners: map[string][]listener{},
		log:       log.Sub("hooks"),
	}
}

// On adds a listener owned by owner. Owners are used by Off.
func (m *Manager) On(event, owner string, fn Handler) {
	m.mu.Lock()
	m.listeners[event] = append(m.listeners[event], listener{owner: owner, fn: fn})
	m.mu.Unlock()
	m.log.Debug().Str("event", event).Str("owner", owner).Msg("listener added")
}

// OnAll adds fn to every event in AllEvents.
func (m *Manager) OnAll(owner string, fn Handler) {
	for _, event := range AllEvents {
		m.On(event, owner, fn)
	}
}

// Off drops owner's listeners. With no events given it drops them from
// every event.
func (m *Manager) Off(owner string, events ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(events) == 0 {
		events = AllEvents
	}
	for _, event := range events {
		m.listeners[event] = slices.DeleteFunc(m.listeners[event], func(l listener) bool {
			return l.owner == owner
		})
	}
}

// Emit runs the event's listeners in registration order on the caller's
// goroutine.
func (m *Manager) Emit(ctx context.Context, event string, data map[string]any) {
	if m == nil {
		return
	}
	m.mu.RLock()
	ls := slices.Clone(m.listeners[event])
	m.mu.RUnlock()
	if len(ls) == 0 {
		return
	}

	p := Payload{Event: event, Timestamp: time.Now().UTC(), Data: data}
	for _, l := range ls {
		if err := l.fn(ctx, p); err != nil {
			m.log.Warn().Err(err).Str("event", event).Str("owner", l.owner).Msg("listener failed")
		}
	}
}

// Count reports how many listeners event has.
func (m *Manager) Count(event string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.listeners[event])
}
