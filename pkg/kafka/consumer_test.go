package kafka

import (
	"context"
	"errors"
	"testing"

	"github.com/Shopify/sarama"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/printit/orderdesk/pkg/logger"
)

type fakeSession struct {
	ctx    context.Context
	marked []int64
}

func (s *fakeSession) Claims() map[string][]int32 { return nil }
func (s *fakeSession) MemberID() string { return "member-1" }
func (s *fakeSession) GenerationID() int32 { return 1 }
func (s *fakeSession) MarkOffset(string, int32, int64, string) {}
func (s *fakeSession) Commit() {}
func (s *fakeSession) ResetOffset(string, int32, int64, string) {}
func (s *fakeSession) Context() context.Context { return s.ctx }
func (s *fakeSession) MarkMessage(msg *sarama.ConsumerMessage, _ string) {
	s.marked = append(s.marked, msg.Offset)
}

type fakeClaim struct {
	messages chan *sarama.ConsumerMessage
}

func (c *fakeClaim) Topic() string { return "orders" }
func (c *fakeClaim) Partition() int32 { return 0 }
func (c *fakeClaim) InitialOffset() int64 { return 0 }
func (c *fakeClaim) HighWaterMarkOffset() int64 { return 0 }
func (c *fakeClaim) Messages() <-chan *sarama.ConsumerMessage { return c.messages }

type handlerFunc func(ctx context.Context, msg *sarama.ConsumerMessage) error

func (f handlerFunc) HandleMessage(ctx context.Context, msg *sarama.ConsumerMessage) error {
	return f(ctx, msg)
}

func TestConsumeClaimMarksOnlyHandledMessages(t *testing.T) {
	c := NewConsumerWith(nil, &ConsumerConfig{Topics: []string{"orders"}}, logger.NewNop())

	var seen []int64
	c.RegisterHandler("orders", handlerFunc(func(_ context.Context, msg *sarama.ConsumerMessage) error {
		seen = append(seen, msg.Offset)
		if msg.Offset == 2 {
			return errors.New("store unreachable")
		}
		return nil
	}))

	claim := &fakeClaim{messages: make(chan *sarama.ConsumerMessage, 4)}
	claim.messages <- &sarama.ConsumerMessage{Topic: "orders", Offset: 1}
	claim.messages <- &sarama.ConsumerMessage{Topic: "orders", Offset: 2}
	claim.messages <- &sarama.ConsumerMessage{Topic: "orders", Offset: 3}
	claim.messages <- &sarama.ConsumerMessage{Topic: "unrouted", Offset: 4}
	close(claim.messages)

	session := &fakeSession{ctx: context.Background()}
	require.NoError(t, c.ConsumeClaim(session, claim))

	assert.Equal(t, []int64{1, 2, 3}, seen)
	assert.Equal(t, []int64{1, 3, 4}, session.marked)
}

func TestConsumeClaimStopsWithSession(t *testing.T) {
	c := NewConsumerWith(nil, &ConsumerConfig{Topics: []string{"orders"}}, logger.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	claim := &fakeClaim{messages: make(chan *sarama.ConsumerMessage)}
	assert.NoError(t, c.ConsumeClaim(&fakeSession{ctx: ctx}, claim))
}

func TestStartRequiresTopics(t *testing.T) {
	c := NewConsumerWith(nil, &ConsumerConfig{}, logger.NewNop())
	assert.Error(t, c.Start())
}
