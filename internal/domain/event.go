package domain

import (
	"context"
	"encoding/json"
	"time"
)

// EventType identifies the kind of local notification being published.
// These never cross the frame boundary; they coordinate components within
// one process (e.g., a deferred submit waiting on frame load).
type EventType string

const (
	// EventFrameReady fires once an element's frame finished loading.
	EventFrameReady EventType = "frame.ready"
	// EventFrameUnmounted fires when an element tears its frame down.
	EventFrameUnmounted EventType = "frame.unmounted"

	// Backend lifecycle events.
	EventSessionCreated  EventType = "session.created"
	EventSessionExpired  EventType = "session.expired"
	EventMethodCaptured  EventType = "method.captured"
	EventPaymentCreated  EventType = "payment.created"
)

// Event is the envelope published on the local notification bus. URL and
// ElementID scope frame events to one element instance.
type Event struct {
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	URL       string          `json:"url,omitempty"`
	ElementID string          `json:"element_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// EventHandler is a callback invoked when an event is received.
type EventHandler func(ctx context.Context, event Event)

// EventBus provides a publish/subscribe mechanism for local notifications.
type EventBus interface {
	// Publish sends an event to all matching subscribers.
	Publish(ctx context.Context, event Event)
	// Subscribe registers a handler for a specific event type.
	// Returns an unsubscribe function.
	Subscribe(eventType EventType, handler EventHandler) func()
	// SubscribeAll registers a handler that receives every event.
	// Returns an unsubscribe function.
	SubscribeAll(handler EventHandler) func()
	// Close drains in-flight handlers and prevents new publishes.
	Close()
}
