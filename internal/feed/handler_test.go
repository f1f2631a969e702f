package feed

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Shopify/sarama"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/printit/orderdesk/pkg/logger"
)

type countingRefresher struct {
	calls int
	err   error
}

func (r *countingRefresher) Refresh(context.Context) error {
	r.calls++
	return r.err
}

func message(value string) *sarama.ConsumerMessage {
	return &sarama.ConsumerMessage{Topic: "orders", Value: []byte(value)}
}

func TestHandleMessage_RefreshesOnOrderChanges(t *testing.T) {
	r := &countingRefresher{}
	h := NewHandler(r, logger.NewNop())

	for _, et := range []string{EventOrderCreated, EventOrderUpdated, EventOrderDeleted} {
		require.NoError(t, h.HandleMessage(context.Background(), message(`{"event_type":"`+et+`","order_id":"o1"}`)))
	}
	assert.Equal(t, 3, r.calls)
}

func TestHandleMessage_IgnoresOtherEvents(t *testing.T) {
	r := &countingRefresher{}
	h := NewHandler(r, logger.NewNop())

	require.NoError(t, h.HandleMessage(context.Background(), message(`{"event_type":"invoice_sent"}`)))
	require.NoError(t, h.HandleMessage(context.Background(), message(`not json`)))
	assert.Zero(t, r.calls)
}

func TestHandleMessage_SkipsEventsCoveredByLaterRefresh(t *testing.T) {
	r := &countingRefresher{}
	h := NewHandler(r, logger.NewNop())

	now := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	h.now = func() time.Time { return now }

	require.NoError(t, h.HandleMessage(context.Background(),
		message(`{"event_type":"order_updated","order_id":"o1","occurred_at":"2025-05-01T11:59:59Z"}`)))
	require.NoError(t, h.HandleMessage(context.Background(),
		message(`{"event_type":"order_updated","order_id":"o2","occurred_at":"2025-05-01T11:59:58Z"}`)))
	require.NoError(t, h.HandleMessage(context.Background(),
		message(`{"event_type":"order_updated","order_id":"o3","occurred_at":"2025-05-01T12:00:01Z"}`)))

	assert.Equal(t, 2, r.calls)
}

func TestHandleMessage_RefreshErrorIsReturned(t *testing.T) {
	r := &countingRefresher{err: errors.New("store down")}
	h := NewHandler(r, logger.NewNop())

	err := h.HandleMessage(context.Background(), message(`{"event_type":"order_created","aggregate_id":"o1"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "o1")
}
