// Package hooks lets observers follow agent calls and server lifecycle
// without coupling them to the orchestrator.
package hooks

import (
	"context"
	"sync"
	"time"

	"github.com/HuxJiang/ai-agent-platform/internal/logging"
)

// Event names for the hook system.
const (
	EventAgentCallStart = "agent_call_start"
	EventAgentRound     = "agent_round"
	EventToolDispatched = "tool_dispatched"
	EventAgentCallDone  = "agent_call_done"
	EventServerStart    = "server_start"
	EventServerStop     = "server_stop"
)

// AllEvents lists all known hook event names.
var AllEvents = []string{
	EventAgentCallStart,
	EventAgentRound,
	EventToolDispatched,
	EventAgentCallDone,
	EventServerStart,
	EventServerStop,
}

// CallEvents are the events emitted while an agent call runs.
var CallEvents = []string{
	EventAgentCallStart,
	EventAgentRound,
	EventToolDispatched,
	EventAgentCallDone,
}

// Payload carries event data to hook handlers. CallID is empty for server
// events.
type Payload struct {
	Event  string         `json:"event"`
	CallID string         `json:"callId,omitempty"`
	Time   time.Time      `json:"time"`
	Data   map[string]any `json:"data,omitempty"`
}

// Handler handles a hook event. Returning an error logs the failure but does
// not stop processing.
type Handler func(ctx context.Context, p Payload) error

// Manager manages hook registrations and dispatches events.
type Manager struct {
	mu       sync.RWMutex
	handlers map[string][]namedHandler
	log      *logging.Logger
}

type namedHandler struct {
	name    string
	handler Handler
}

// NewManager creates a hook manager.
func NewManager(log *logging.Logger) *Manager {
	return &Manager{
		handlers: make(map[string][]namedHandler),
		log:      log.Sub("hooks"),
	}
}

// On registers a handler for the given event.
// The name identifies the handler for logging and removal.
func (m *Manager) On(event, name string, handler Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[event] = append(m.handlers[event], namedHandler{name: name, handler: handler})
	m.log.Trace().Str("event", event).Str("handler", name).Msg("hook registered")
}

// Off removes all handlers with the given name from the event.
func (m *Manager) Off(event, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	handlers := m.handlers[event]
	filtered := make([]namedHandler, 0, len(handlers))
	for _, h := range handlers {
		if h.name != name {
			filtered = append(filtered, h)
		}
	}
	if len(filtered) == 0 {
		delete(m.handlers, event)
		return
	}
	m.handlers[event] = filtered
}

// Subscribe registers handler under name for every listed event and returns
// a function that removes those registrations.
func (m *Manager) Subscribe(name string, events []string, handler Handler) (unsubscribe func()) {
	for _, ev := range events {
		m.On(ev, name, handler)
	}
	return func() {
		for _, ev := range events {
			m.Off(ev, name)
		}
	}
}

func (m *Manager) snapshot(event string) []namedHandler {
	m.mu.RLock()
	defer m.mu.RUnlock()
	handlers := make([]namedHandler, len(m.handlers[event]))
	copy(handlers, m.handlers[event])
	return handlers
}

// Emit dispatches an event to all registered handlers synchronously, in
// registration order. Errors are logged and do not stop later handlers.
// A nil Manager drops the event.
func (m *Manager) Emit(ctx context.Context, event, callID string, data map[string]any) {
	if m == nil {
		return
	}
	handlers := m.snapshot(event)
	if len(handlers) == 0 {
		return
	}

	payload := Payload{Event: event, CallID: callID, Time: time.Now(), Data: data}
	for _, h := range handlers {
		m.run(ctx, h, payload, "hook handler error")
	}
}

// EmitAsync dispatches an event to all registered handlers concurrently and
// returns immediately.
func (m *Manager) EmitAsync(ctx context.Context, event, callID string, data map[string]any) {
	if m == nil {
		return
	}
	handlers := m.snapshot(event)
	if len(handlers) == 0 {
		return
	}

	payload := Payload{Event: event, CallID: callID, Time: time.Now(), Data: data}
	for _, h := range handlers {
		go m.run(context.WithoutCancel(ctx), h, payload, "async hook handler error")
	}
}

func (m *Manager) run(ctx context.Context, h namedHandler, p Payload, msg string) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error().Interface("panic", r).Str("event", p.Event).Str("handler", h.name).Msg("hook handler panicked")
		}
	}()
	if err := h.handler(ctx, p); err != nil {
		m.log.Warn().
			Err(err).
			Str("event", p.Event).
			Str("handler", h.name).
			Msg(msg)
	}
}

// Count returns the number of handlers registered for an event.
func (m *Manager) Count(event string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.handlers[event])
}

// Events returns the events that have at least one handler registered.
func (m *Manager) Events() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	events := make([]string, 0, len(m.handlers))
	for event, handlers := range m.handlers {
		if len(handlers) > 0 {
			events = append(events, event)
		}
	}
	return events
}
