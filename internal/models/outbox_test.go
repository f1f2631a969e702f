package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/printit/orderdesk/internal/lifecycle"
	"github.com/printit/orderdesk/internal/order"
)

func TestNewLifecycleMessage(t *testing.T) {
	occurred := time.Date(2025, 4, 1, 12, 0, 0, 0, time.UTC)
	o := order.Order{ID: "o1", Status: order.StatusAccepted, PaymentStatus: order.PaymentUnpaid}

	msg, err := NewLifecycleMessage(lifecycle.Event{
		OrderID:    "o1",
		Intent:     order.IntentAccept,
		FromState:  "Pending",
		ToState:    "Accepted/Unpaid",
		Order:      &o,
		OccurredAt: occurred,
	})
	require.NoError(t, err)

	assert.Equal(t, EventOrderAccepted, msg.EventType)
	assert.Equal(t, "o1", msg.OrderID)
	assert.Equal(t, OutboxStatusPending, msg.Status)
	_, err = uuid.Parse(msg.EventID)
	assert.NoError(t, err)

	var event LifecycleEvent
	require.NoError(t, json.Unmarshal(msg.Payload, &event))
	assert.Equal(t, msg.EventID, event.EventID)
	assert.Equal(t, "Pending", event.FromState)
	assert.Equal(t, "Accepted/Unpaid", event.ToState)
	assert.True(t, occurred.Equal(event.OccurredAt))
	require.NotNil(t, event.Order)
	assert.Equal(t, order.StatusAccepted, event.Order.Status)
}

func TestNewLifecycleMessageEveryIntentHasAType(t *testing.T) {
	for _, kind := range []order.IntentKind{
		order.IntentAccept, order.IntentReject, order.IntentCancel,
		order.IntentSetQuotation, order.IntentMarkPaid, order.IntentDelete,
	} {
		msg, err := NewLifecycleMessage(lifecycle.Event{OrderID: "o1", Intent: kind})
		require.NoError(t, err, kind)
		assert.Contains(t, LifecycleEventTypes, msg.EventType)
	}

	_, err := NewLifecycleMessage(lifecycle.Event{OrderID: "o1", Intent: "ship"})
	assert.Error(t, err)
}

func TestParseOutboxStatus(t *testing.T) {
	st, err := ParseOutboxStatus("failed")
	require.NoError(t, err)
	assert.Equal(t, OutboxStatusFailed, st)

	_, err = ParseOutboxStatus("lost")
	assert.Error(t, err)
}
