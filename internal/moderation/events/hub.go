// Package events provides the in-process update bus that links lifecycle
// controllers together. Delivery is synchronous and at-least-once; there is
// no persistence, startup recovery covers missed updates across restarts.
package events

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/robalyx/modcase/internal/database/types"
	"go.uber.org/zap"
)

// Event names published on the hub.
const (
	// ModerationIssued fires after a new case has been fully issued.
	ModerationIssued = "moderation.issued"
	// ModerationUpdated fires after an existing case changed state.
	ModerationUpdated = "moderation.updated"
)

// Update carries a changed moderation record to subscribers.
type Update struct {
	ID     string
	Record *types.Moderation
}

// Handler receives published updates. Handlers run synchronously in subscribe
// order on the publisher's goroutine.
type Handler func(ctx context.Context, update Update)

// Hub is a minimal in-process publish/subscribe bus.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string][]Handler
	logger *zap.Logger
}

// NewHub creates an empty hub.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		subs:   make(map[string][]Handler),
		logger: logger.Named("events"),
	}
}

// Subscribe registers a handler for an event name. Not safe to call
// concurrently with itself for ordering guarantees beyond registration order.
func (h *Hub) Subscribe(name string, handler Handler) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.subs[name] = append(h.subs[name], handler)
}

// Publish delivers the record to all subscribers of the event name, in
// subscribe order. A panicking subscriber is logged and skipped.
func (h *Hub) Publish(ctx context.Context, name string, record *types.Moderation) {
	h.mu.RLock()
	handlers := h.subs[name]
	h.mu.RUnlock()

	update := Update{
		ID:     uuid.New().String(),
		Record: record,
	}

	for _, handler := range handlers {
		h.deliver(ctx, name, handler, update)
	}
}

func (h *Hub) deliver(ctx context.Context, name string, handler Handler, update Update) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("Subscriber panicked",
				zap.String("event", name),
				zap.String("update_id", update.ID),
				zap.Any("panic", r))
		}
	}()

	handler(ctx, update)
}
