package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/printit/orderdesk/internal/lifecycle"
	"github.com/printit/orderdesk/internal/models"
	"github.com/printit/orderdesk/internal/order"
	"github.com/printit/orderdesk/pkg/logger"
)

type memoryRepo struct {
	mu       sync.Mutex
	messages map[int64]*models.OutboxMessage
	nextID   int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{messages: map[int64]*models.OutboxMessage{}}
}

func (r *memoryRepo) Create(_ context.Context, m *models.OutboxMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	m.ID = r.nextID
	cp := *m
	r.messages[m.ID] = &cp
	return nil
}

func (r *memoryRepo) GetPendingMessages(_ context.Context, limit int) ([]*models.OutboxMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.OutboxMessage
	for id := int64(1); id <= r.nextID && len(out) < limit; id++ {
		if m, ok := r.messages[id]; ok && m.Status == models.OutboxStatusPending {
			cp := *m
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memoryRepo) set(id int64, fn func(m *models.OutboxMessage)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.messages[id]
	if !ok {
		return errors.New("missing")
	}
	fn(m)
	return nil
}

func (r *memoryRepo) MarkAsProcessing(_ context.Context, id int64) error {
	return r.set(id, func(m *models.OutboxMessage) {
		m.Status = models.OutboxStatusProcessing
		m.ProcessingAttempts++
	})
}

func (r *memoryRepo) MarkAsCompleted(_ context.Context, id int64) error {
	return r.set(id, func(m *models.OutboxMessage) { m.Status = models.OutboxStatusCompleted })
}

func (r *memoryRepo) MarkAsFailed(_ context.Context, id int64, msg string) error {
	return r.set(id, func(m *models.OutboxMessage) {
		m.Status = models.OutboxStatusFailed
		m.LastError = &msg
	})
}

func (r *memoryRepo) MarkForRetry(_ context.Context, id int64, msg string) error {
	return r.set(id, func(m *models.OutboxMessage) {
		m.Status = models.OutboxStatusPending
		m.LastError = &msg
	})
}

func (r *memoryRepo) status(id int64) models.OutboxStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.messages[id].Status
}

type publishedMessage struct {
	topic, key string
	value      []byte
}

type fakePublisher struct {
	mu       sync.Mutex
	fail     int
	messages []publishedMessage
}

func (p *fakePublisher) SendMessage(_ context.Context, topic, key string, value []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail > 0 {
		p.fail--
		return errors.New("broker unavailable")
	}
	p.messages = append(p.messages, publishedMessage{topic, key, value})
	return nil
}

func recordAccept(t *testing.T, repo *memoryRepo, orderID string) {
	t.Helper()
	rec := NewRecorder(repo)
	o := order.Order{ID: orderID, Status: order.StatusAccepted, PaymentStatus: order.PaymentUnpaid}
	require.NoError(t, rec.Record(context.Background(), lifecycle.Event{
		OrderID:    orderID,
		Intent:     order.IntentAccept,
		FromState:  "Pending",
		ToState:    o.State(),
		Order:      &o,
		OccurredAt: time.Now().UTC(),
	}))
}

func newTestProcessor(repo Repository, pub Publisher, maxRetries int) *Processor {
	p := NewProcessor(repo, ProcessorConfig{PollingInterval: 10 * time.Millisecond, MaxRetries: maxRetries}, logger.NewNop())
	h := NewKafkaHandler(pub, "order-lifecycle", logger.NewNop())
	for _, et := range models.LifecycleEventTypes {
		p.RegisterHandler(et, h)
	}
	return p
}

func TestProcessBatch_PublishesKeyedByOrder(t *testing.T) {
	repo := newMemoryRepo()
	recordAccept(t, repo, "o1")
	recordAccept(t, repo, "o2")

	pub := &fakePublisher{}
	p := newTestProcessor(repo, pub, 3)

	require.NoError(t, p.ProcessBatch(context.Background()))

	require.Len(t, pub.messages, 2)
	assert.Equal(t, "order-lifecycle", pub.messages[0].topic)
	assert.Equal(t, "o1", pub.messages[0].key)
	assert.Equal(t, "o2", pub.messages[1].key)

	var event models.LifecycleEvent
	require.NoError(t, json.Unmarshal(pub.messages[0].value, &event))
	assert.Equal(t, models.EventOrderAccepted, event.EventType)

	assert.Equal(t, models.OutboxStatusCompleted, repo.status(1))
	assert.Equal(t, models.OutboxStatusCompleted, repo.status(2))
}

func TestProcessBatch_RetriesThenFails(t *testing.T) {
	repo := newMemoryRepo()
	recordAccept(t, repo, "o1")

	pub := &fakePublisher{fail: 10}
	p := newTestProcessor(repo, pub, 2)

	require.NoError(t, p.ProcessBatch(context.Background()))
	assert.Equal(t, models.OutboxStatusPending, repo.status(1), "first failure goes back to the queue")

	require.NoError(t, p.ProcessBatch(context.Background()))
	assert.Equal(t, models.OutboxStatusFailed, repo.status(1))

	require.NoError(t, p.ProcessBatch(context.Background()))
	assert.Empty(t, pub.messages)
}

func TestProcessBatch_RecoversAfterTransientFailure(t *testing.T) {
	repo := newMemoryRepo()
	recordAccept(t, repo, "o1")

	pub := &fakePublisher{fail: 1}
	p := newTestProcessor(repo, pub, 3)

	require.NoError(t, p.ProcessBatch(context.Background()))
	require.NoError(t, p.ProcessBatch(context.Background()))

	assert.Len(t, pub.messages, 1)
	assert.Equal(t, models.OutboxStatusCompleted, repo.status(1))
}

func TestProcessBatch_UnknownEventTypeFails(t *testing.T) {
	repo := newMemoryRepo()
	require.NoError(t, repo.Create(context.Background(), &models.OutboxMessage{
		OrderID:   "o1",
		EventType: "order_shipped",
		Payload:   []byte(`{}`),
		Status:    models.OutboxStatusPending,
	}))

	p := newTestProcessor(repo, &fakePublisher{}, 3)
	require.NoError(t, p.ProcessBatch(context.Background()))
	assert.Equal(t, models.OutboxStatusFailed, repo.status(1))
}

func TestProcessorStartStop(t *testing.T) {
	repo := newMemoryRepo()
	recordAccept(t, repo, "o1")
	pub := &fakePublisher{}

	p := newTestProcessor(repo, pub, 3)
	p.Start()
	p.Start()

	assert.Eventually(t, func() bool {
		return repo.status(1) == models.OutboxStatusCompleted
	}, time.Second, 10*time.Millisecond)

	p.Stop()
	p.Stop()
}

func TestLoggingHandler(t *testing.T) {
	repo := newMemoryRepo()
	recordAccept(t, repo, "o1")

	h := NewLoggingHandler(logger.NewNop())
	assert.NoError(t, h.HandleMessage(context.Background(), repo.messages[1]))
	assert.Error(t, h.HandleMessage(context.Background(), &models.OutboxMessage{Payload: []byte("nope")}))
}
