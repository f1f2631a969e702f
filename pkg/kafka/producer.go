package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/Shopify/sarama"

	"github.com/printit/orderdesk/pkg/logger"
)

// Producer publishes JSON payloads synchronously.
type Producer struct {
	producer sarama.SyncProducer
	logger   logger.Logger
	now      func() time.Time
}

// NewProducerConfig returns the sarama settings used for lifecycle events.
// Messages are hash-partitioned by key, so every event of one order lands on
// the same partition in the order it was sent.
func NewProducerConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_1_0_0
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Idempotent = true
	cfg.Producer.Partitioner = sarama.NewHashPartitioner
	cfg.Producer.Compression = sarama.CompressionSnappy
	cfg.Producer.Return.Successes = true
	cfg.Producer.Retry.Max = 10
	cfg.Producer.Retry.Backoff = 500 * time.Millisecond
	cfg.Producer.Timeout = 5 * time.Second
	// required by idempotent writes
	cfg.Net.MaxOpenRequests = 1
	return cfg
}

// NewProducer connects a sync producer to brokers.
func NewProducer(brokers []string, logger logger.Logger) (*Producer, error) {
	producer, err := sarama.NewSyncProducer(brokers, NewProducerConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}

	return NewProducerWith(producer, logger), nil
}

// NewProducerWith wraps an existing sync producer.
func NewProducerWith(producer sarama.SyncProducer, logger logger.Logger) *Producer {
	return &Producer{
		producer: producer,
		logger:   logger.With("component", "kafka-producer"),
		now:      time.Now,
	}
}

// SendMessage publishes value to topic under key. An empty key lets the
// partitioner pick any partition.
func (p *Producer) SendMessage(ctx context.Context, topic string, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := &sarama.ProducerMessage{
		Topic:     topic,
		Value:     sarama.ByteEncoder(value),
		Timestamp: p.now(),
		Headers: []sarama.RecordHeader{
			{Key: []byte("content-type"), Value: []byte("application/json")},
		},
	}
	if key != "" {
		msg.Key = sarama.StringEncoder(key)
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		p.logger.Error("Failed to publish message", "error", err, "topic", topic, "key", key)
		return fmt.Errorf("publishing to %s: %w", topic, err)
	}

	p.logger.Debug("Message published", "topic", topic, "key", key, "partition", partition, "offset", offset)
	return nil
}

// Close closes the producer
func (p *Producer) Close() error {
	return p.producer.Close()
}
