package outbox

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/printit/orderdesk/internal/models"
	"github.com/printit/orderdesk/pkg/logger"
)

// LoggingHandler writes outbox messages to the log. Used when no broker is configured.
type LoggingHandler struct {
	logger logger.Logger
}

// NewLoggingHandler creates a new LoggingHandler
func NewLoggingHandler(logger logger.Logger) *LoggingHandler {
	return &LoggingHandler{
		logger: logger,
	}
}

// HandleMessage handles the outbox message by logging it
func (h *LoggingHandler) HandleMessage(ctx context.Context, message *models.OutboxMessage) error {
	var event models.LifecycleEvent

	if err := json.Unmarshal(message.Payload, &event); err != nil {
		return fmt.Errorf("failed to unmarshal outbox message: %w", err)
	}

	h.logger.Info("Lifecycle event",
		"messageID", message.ID,
		"eventType", event.EventType,
		"eventID", event.EventID,
		"orderID", event.OrderID,
		"from", event.FromState,
		"to", event.ToState,
		"occurredAt", event.OccurredAt)

	return nil
}
