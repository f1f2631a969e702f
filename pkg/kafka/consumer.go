package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Shopify/sarama"

	"github.com/printit/orderdesk/pkg/logger"
)

// MessageHandler is the interface for handling messages from Kafka
type MessageHandler interface {
	HandleMessage(ctx context.Context, msg *sarama.ConsumerMessage) error
}

// ConsumerConfig is the configuration for the Kafka consumer
type ConsumerConfig struct {
	Brokers       []string
	Topics        []string
	ConsumerGroup string
	// RejoinDelay is the pause between consume sessions. Defaults to 1s.
	RejoinDelay time.Duration
}

// Consumer runs a consumer group session loop and dispatches each message to
// the handler registered for its topic. A message is marked only after its
// handler succeeds, so failures are redelivered on the next session.
type Consumer struct {
	group       sarama.ConsumerGroup
	topics      []string
	rejoinDelay time.Duration
	logger      logger.Logger

	mu       sync.RWMutex
	handlers map[string]MessageHandler

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// NewConsumerGroupConfig returns the sarama settings for the order feed. The
// feed only triggers reloads, so a new group starts at the newest offset.
func NewConsumerGroupConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_1_0_0
	cfg.Consumer.Return.Errors = true
	cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	return cfg
}

// NewConsumer creates a new Kafka consumer
func NewConsumer(cfg *ConsumerConfig, logger logger.Logger) (*Consumer, error) {
	group, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.ConsumerGroup, NewConsumerGroupConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer group: %w", err)
	}
	return NewConsumerWith(group, cfg, logger), nil
}

// NewConsumerWith wraps an existing consumer group.
func NewConsumerWith(group sarama.ConsumerGroup, cfg *ConsumerConfig, logger logger.Logger) *Consumer {
	delay := cfg.RejoinDelay
	if delay <= 0 {
		delay = time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Consumer{
		group:       group,
		topics:      cfg.Topics,
		rejoinDelay: delay,
		logger:      logger.With("component", "kafka-consumer"),
		handlers:    make(map[string]MessageHandler),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// RegisterHandler registers a message handler for a specific topic
func (c *Consumer) RegisterHandler(topic string, handler MessageHandler) {
	c.mu.Lock()
	c.handlers[topic] = handler
	c.mu.Unlock()
}

// Start joins the group in the background.
func (c *Consumer) Start() error {
	if len(c.topics) == 0 {
		return errors.New("no topics to consume")
	}

	c.wg.Add(2)
	go c.consumeLoop()
	go c.drainErrors()

	c.logger.Info("Kafka consumer started", "topics", c.topics)
	return nil
}

// Stop leaves the group and waits for the session loop to exit.
func (c *Consumer) Stop() error {
	c.cancel()
	c.wg.Wait()
	return c.group.Close()
}

func (c *Consumer) consumeLoop() {
	defer c.wg.Done()

	for {
		// Consume returns on every rebalance.
		if err := c.group.Consume(c.ctx, c.topics, c); err != nil && !errors.Is(err, sarama.ErrClosedConsumerGroup) {
			c.logger.Error("Kafka consume session failed", "error", err)
		}

		select {
		case <-c.ctx.Done():
			return
		case <-time.After(c.rejoinDelay):
		}
	}
}

func (c *Consumer) drainErrors() {
	defer c.wg.Done()

	for {
		select {
		case <-c.ctx.Done():
			return
		case err, ok := <-c.group.Errors():
			if !ok {
				return
			}
			c.logger.Warn("Kafka consumer group error", "error", err)
		}
	}
}

// Setup implements sarama.ConsumerGroupHandler.
func (c *Consumer) Setup(session sarama.ConsumerGroupSession) error {
	c.logger.Debug("Kafka session started", "member", session.MemberID(), "claims", session.Claims())
	return nil
}

// Cleanup implements sarama.ConsumerGroupHandler.
func (c *Consumer) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

// ConsumeClaim implements sarama.ConsumerGroupHandler.
func (c *Consumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			if c.dispatch(session.Context(), msg) {
				session.MarkMessage(msg, "")
			}
		case <-session.Context().Done():
			return nil
		}
	}
}

// dispatch hands msg to its topic handler and reports whether it may be marked.
// Messages without a handler are marked so they do not block the partition.
func (c *Consumer) dispatch(ctx context.Context, msg *sarama.ConsumerMessage) bool {
	c.mu.RLock()
	handler, ok := c.handlers[msg.Topic]
	c.mu.RUnlock()

	if !ok {
		c.logger.Warn("No handler registered for topic", "topic", msg.Topic)
		return true
	}

	if err := handler.HandleMessage(ctx, msg); err != nil {
		c.logger.Error("Failed to handle message, leaving it unmarked",
			"error", err,
			"topic", msg.Topic,
			"partition", msg.Partition,
			"offset", msg.Offset)
		return false
	}
	return true
}
