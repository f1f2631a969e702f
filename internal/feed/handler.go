package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/Shopify/sarama"

	"github.com/printit/orderdesk/pkg/logger"
)

// Change feed event types published by the order store.
const (
	EventOrderCreated = "order_created"
	EventOrderUpdated = "order_updated"
	EventOrderDeleted = "order_deleted"
)

// Event is a change notification from the order store. Only the envelope is
// read; the cache is reloaded from the store rather than patched from the feed.
type Event struct {
	EventType   string    `json:"event_type"`
	EventID     string    `json:"event_id"`
	OrderID     string    `json:"order_id"`
	AggregateID string    `json:"aggregate_id"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// Refresher reloads the order cache.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Handler turns order store change events into cache refreshes.
type Handler struct {
	refresher Refresher
	logger    logger.Logger
	now       func() time.Time

	mu            sync.Mutex
	lastRefreshAt time.Time
}

// NewHandler creates a new Handler
func NewHandler(refresher Refresher, logger logger.Logger) *Handler {
	return &Handler{
		refresher: refresher,
		logger:    logger.With("component", "feed"),
		now:       time.Now,
	}
}

// HandleMessage implements kafka.MessageHandler.
func (h *Handler) HandleMessage(ctx context.Context, msg *sarama.ConsumerMessage) error {
	var event Event
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		// Redelivering a malformed message cannot help.
		h.logger.Error("Dropping malformed change event", "error", err, "offset", msg.Offset)
		return nil
	}

	orderID := event.OrderID
	if orderID == "" {
		orderID = event.AggregateID
	}

	switch event.EventType {
	case EventOrderCreated, EventOrderUpdated, EventOrderDeleted:
	default:
		h.logger.Debug("Ignoring change event", "eventType", event.EventType, "orderID", orderID)
		return nil
	}

	h.mu.Lock()
	covered := !event.OccurredAt.IsZero() && event.OccurredAt.Before(h.lastRefreshAt)
	h.mu.Unlock()

	if covered {
		h.logger.Debug("Change already covered by a later refresh", "eventID", event.EventID, "orderID", orderID)
		return nil
	}

	started := h.now()
	if err := h.refresher.Refresh(ctx); err != nil {
		return fmt.Errorf("refresh after %s on order %s: %w", event.EventType, orderID, err)
	}

	h.mu.Lock()
	if started.After(h.lastRefreshAt) {
		h.lastRefreshAt = started
	}
	h.mu.Unlock()

	h.logger.Info("Refreshed orders from change feed", "eventType", event.EventType, "orderID", orderID)
	return nil
}
