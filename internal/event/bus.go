// Package event provides the in-process notification bus the simulation
// services publish to. The bus handle is passed into each service at
// construction; nothing reaches for a global dispatcher.
package event

import (
	"log/slog"
	"sync"
	"time"
)

// Event type names produced by the simulation core.
const (
	TypePOICreated           = "poi_created"
	TypePOIUpdated           = "poi_updated"
	TypePOIDeleted           = "poi_deleted"
	TypePopulationChanged    = "population_changed"
	TypeStateChanged         = "poi_state_changed"
	TypeInteractionChanged   = "poi_interaction_changed"
	TypeInfluenceEstablished = "faction_influence_established"
	TypeInfluenceChanged     = "faction_influence_changed"
	TypeControlChanged       = "faction_control_changed"
	TypeMigrationGroup       = "migration_group_created"
	TypeMigrationStarted     = "migration_started"
	TypeMigrationArrived     = "migration_arrived"
	TypeMigrationOccurred    = "migration_occurred"
	TypeResourceAdded        = "resource_added"
	TypeResourceConsumed     = "resource_consumed"
	TypeResourceShortage     = "resource_shortage"
	TypeTradeOfferCreated    = "trade_offer_created"
	TypeTradeCompleted       = "trade_completed"
)

// Event is a single notification. Payload contents are event-type specific.
type Event struct {
	Type      string         `json:"type"`
	Payload   map[string]any `json:"payload"`
	Timestamp time.Time      `json:"timestamp"`
}

// Handler consumes events. Handlers must not retain the payload map.
type Handler func(Event)

// Bus is a synchronous fan-out dispatcher. Publish is fire-and-forget from
// the publisher's perspective: a panicking handler is logged and skipped,
// and delivery is never confirmed back to the simulation.
type Bus struct {
	mu       sync.RWMutex
	handlers []Handler
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers a handler for all subsequent events.
func (b *Bus) Subscribe(h Handler) {
	if h == nil {
		return
	}
	b.mu.Lock()
	b.handlers = append(b.handlers, h)
	b.mu.Unlock()
}

// Publish delivers an event to every handler in subscription order.
// Handlers run synchronously, so per-POI causal order matches publish order.
// A nil bus is valid and drops everything, which keeps event emission
// optional in tests.
func (b *Bus) Publish(eventType string, payload map[string]any) {
	if b == nil {
		return
	}
	ev := Event{
		Type:      eventType,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}

	b.mu.RLock()
	handlers := b.handlers
	b.mu.RUnlock()

	for _, h := range handlers {
		b.deliver(h, ev)
	}
}

func (b *Bus) deliver(h Handler, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("event handler panic", "event_type", ev.Type, "panic", r)
		}
	}()
	h(ev)
}
