package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/printit/orderdesk/internal/lifecycle"
	"github.com/printit/orderdesk/internal/order"
)

// OutboxStatus represents the status of an outbox message
type OutboxStatus string

const (
	OutboxStatusPending    OutboxStatus = "pending"
	OutboxStatusProcessing OutboxStatus = "processing"
	OutboxStatusCompleted  OutboxStatus = "completed"
	OutboxStatusFailed     OutboxStatus = "failed"
)

// ParseOutboxStatus validates a status taken from user input.
func ParseOutboxStatus(s string) (OutboxStatus, error) {
	switch st := OutboxStatus(s); st {
	case OutboxStatusPending, OutboxStatusProcessing, OutboxStatusCompleted, OutboxStatusFailed:
		return st, nil
	default:
		return "", fmt.Errorf("unknown outbox status %q", s)
	}
}

// Lifecycle event types, one per confirmed intent.
const (
	EventOrderAccepted  = "order_accepted"
	EventOrderRejected  = "order_rejected"
	EventOrderCancelled = "order_cancelled"
	EventOrderQuoted    = "order_quoted"
	EventOrderPaid      = "order_paid"
	EventOrderDeleted   = "order_deleted"
)

// LifecycleEventTypes lists every event type the journal produces.
var LifecycleEventTypes = []string{
	EventOrderAccepted,
	EventOrderRejected,
	EventOrderCancelled,
	EventOrderQuoted,
	EventOrderPaid,
	EventOrderDeleted,
}

var eventTypeByIntent = map[order.IntentKind]string{
	order.IntentAccept:       EventOrderAccepted,
	order.IntentReject:       EventOrderRejected,
	order.IntentCancel:       EventOrderCancelled,
	order.IntentSetQuotation: EventOrderQuoted,
	order.IntentMarkPaid:     EventOrderPaid,
	order.IntentDelete:       EventOrderDeleted,
}

// OutboxMessage represents a journaled lifecycle event waiting to be published
type OutboxMessage struct {
	ID                 int64        `db:"id" json:"id"`
	EventID            string       `db:"event_id" json:"event_id"`
	OrderID            string       `db:"order_id" json:"order_id"`
	EventType          string       `db:"event_type" json:"event_type"`
	Payload            []byte       `db:"payload" json:"payload"`
	CreatedAt          time.Time    `db:"created_at" json:"created_at"`
	ProcessedAt        *time.Time   `db:"processed_at" json:"processed_at,omitempty"`
	ProcessingAttempts int          `db:"processing_attempts" json:"processing_attempts"`
	LastError          *string      `db:"last_error" json:"last_error,omitempty"`
	Status             OutboxStatus `db:"status" json:"status"`
}

// LifecycleEvent is the payload published for every confirmed transition
type LifecycleEvent struct {
	EventType  string       `json:"event_type"`
	EventID    string       `json:"event_id"`
	OrderID    string       `json:"order_id"`
	FromState  string       `json:"from_state"`
	ToState    string       `json:"to_state"`
	OccurredAt time.Time    `json:"occurred_at"`
	Order      *order.Order `json:"order,omitempty"`
}

// NewLifecycleMessage builds the outbox row for a confirmed transition
func NewLifecycleMessage(e lifecycle.Event) (*OutboxMessage, error) {
	eventType, ok := eventTypeByIntent[e.Intent]
	if !ok {
		return nil, fmt.Errorf("no event type for intent %q", e.Intent)
	}

	event := LifecycleEvent{
		EventType:  eventType,
		EventID:    uuid.NewString(),
		OrderID:    e.OrderID,
		FromState:  e.FromState,
		ToState:    e.ToState,
		OccurredAt: e.OccurredAt,
		Order:      e.Order,
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}

	return &OutboxMessage{
		EventID:   event.EventID,
		OrderID:   e.OrderID,
		EventType: eventType,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
		Status:    OutboxStatusPending,
	}, nil
}
