package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/IBM/sarama"
)

// Producer publishes auth audit events. Implementations must be safe for
// concurrent use; the auth service calls Publish from request goroutines.
type Producer interface {
	Publish(ctx context.Context, event *Event) error
	Close() error
}

// NopProducer discards events. Used when Kafka is not configured.
type NopProducer struct{}

func (NopProducer) Publish(context.Context, *Event) error { return nil }
func (NopProducer) Close() error                          { return nil }

// KafkaConfig contains configuration for the Kafka audit producer.
type KafkaConfig struct {
	Brokers  []string
	Topic    string
	RetryMax int
	Timeout  time.Duration
}

func DefaultKafkaConfig() *KafkaConfig {
	return &KafkaConfig{
		Brokers:  []string{"localhost:9092"},
		Topic:    "auth-events",
		RetryMax: 3,
		Timeout:  10 * time.Second,
	}
}

// KafkaProducer publishes audit events to a Kafka topic.
type KafkaProducer struct {
	producer sarama.SyncProducer
	topic    string
}

func NewKafkaProducer(cfg *KafkaConfig) (*KafkaProducer, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.Return.Errors = true
	saramaConfig.Producer.RequiredAcks = sarama.WaitForAll
	saramaConfig.Producer.Retry.Max = cfg.RetryMax
	saramaConfig.Producer.Timeout = cfg.Timeout
	saramaConfig.Producer.Idempotent = true
	saramaConfig.Net.MaxOpenRequests = 1

	// Hash partitioner keeps one user's events ordered.
	saramaConfig.Producer.Partitioner = sarama.NewHashPartitioner

	producer, err := sarama.NewSyncProducer(cfg.Brokers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka audit producer: %w", err)
	}

	return &KafkaProducer{producer: producer, topic: cfg.Topic}, nil
}

func (p *KafkaProducer) Publish(ctx context.Context, event *Event) error {
	raw, err := event.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to marshal audit event: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic:     p.topic,
		Key:       sarama.StringEncoder(event.PartitionKey()),
		Value:     sarama.ByteEncoder(raw),
		Timestamp: event.At,
		Headers: []sarama.RecordHeader{
			{Key: []byte("event_id"), Value: []byte(event.ID.String())},
			{Key: []byte("event_type"), Value: []byte(event.Type)},
			{Key: []byte("producer"), Value: []byte("oneflow-auth")},
		},
	}

	if _, _, err := p.producer.SendMessage(message); err != nil {
		return fmt.Errorf("failed to send audit event to Kafka: %w", err)
	}
	return nil
}

func (p *KafkaProducer) Close() error {
	if p.producer != nil {
		if err := p.producer.Close(); err != nil {
			return fmt.Errorf("failed to close Kafka audit producer: %w", err)
		}
	}
	return nil
}
