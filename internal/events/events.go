package events

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// RentEventPayload is the rent snapshot carried by rent_* events.
type RentEventPayload struct {
	RentID       int64     `json:"rent_id"`
	RenterID     int64     `json:"renter_id"`
	CarID        int64     `json:"car_id"`
	State        string    `json:"state"`
	PlannedStart time.Time `json:"planned_start"`
	PlannedEnd   time.Time `json:"planned_end"`
	ActorID      int64     `json:"actor_id,omitempty"`
	TotalCost    *int64    `json:"total_cost,omitempty"`
	ReceiptID    *int64    `json:"receipt_id,omitempty"`
	Reason       string    `json:"reason,omitempty"`
}

// WaitlistEventPayload is carried by waitlist_* events.
type WaitlistEventPayload struct {
	EntryID  int64  `json:"entry_id"`
	UserID   int64  `json:"user_id"`
	CarID    int64  `json:"car_id"`
	Position int64  `json:"position"`
	Status   string `json:"status"`
}

type Event struct {
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// Decode unmarshals the payload into v.
func (e *Event) Decode(v interface{}) error {
	return json.Unmarshal(e.Payload, v)
}

type EventHandler func(event *Event) error

// EventBus is an in-process pub/sub. Handlers run synchronously in subscription order.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
	logger      *zerolog.Logger
}

func NewEventBus(logger *zerolog.Logger) *EventBus {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &EventBus{subscribers: make(map[string][]EventHandler), logger: logger}
}

func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// SubscribeMany registers one handler for several event types.
func (b *EventBus) SubscribeMany(eventTypes []string, handler EventHandler) {
	for _, t := range eventTypes {
		b.Subscribe(t, handler)
	}
}

// Publish delivers the event to every subscriber; a failing handler does not stop the rest.
func (b *EventBus) Publish(event *Event) {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for _, handler := range handlers {
		if err := b.safeCall(handler, event); err != nil {
			b.logger.Warn().Err(err).Str("event", event.Type).Msg("Event handler failed")
		}
	}
}

func (b *EventBus) safeCall(handler EventHandler, event *Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error().Interface("panic", r).Str("event", event.Type).Msg("Event handler panicked")
		}
	}()
	return handler(event)
}

// PublishJSON serializes the payload and publishes an event. A nil bus is a no-op.
func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	b.Publish(&Event{Type: eventType, Payload: raw, CreatedAt: time.Now()})
	return nil
}
