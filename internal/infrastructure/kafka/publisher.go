package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/IBM/sarama"

	"NewsDigest/internal/domain"
	"NewsDigest/internal/ports"
)

// PublisherConfig holds Kafka producer configuration.
type PublisherConfig struct {
	Brokers  []string
	Topic    string
	ClientID string
}

// Publisher emits every delivery as a JSON event so downstream consumers can fan out.
type Publisher struct {
	producer sarama.SyncProducer
	topic    string
}

var _ ports.Notifier = (*Publisher)(nil)

// NewPublisher connects a synchronous producer to the brokers.
func NewPublisher(cfg PublisherConfig) (*Publisher, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V3_6_0_0
	saramaConfig.ClientID = cfg.ClientID
	saramaConfig.Producer.RequiredAcks = sarama.WaitForAll
	saramaConfig.Producer.Retry.Max = 3
	saramaConfig.Producer.Return.Successes = true

	producer, err := sarama.NewSyncProducer(cfg.Brokers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return NewPublisherWithProducer(producer, cfg.Topic), nil
}

// NewPublisherWithProducer wraps an existing producer.
func NewPublisherWithProducer(producer sarama.SyncProducer, topic string) *Publisher {
	return &Publisher{producer: producer, topic: topic}
}

// Deliver publishes the delivery keyed by digest id.
func (p *Publisher) Deliver(ctx context.Context, delivery domain.Delivery) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	payload, err := json.Marshal(delivery)
	if err != nil {
		return fmt.Errorf("marshal delivery: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(strconv.FormatInt(delivery.DigestID, 10)),
		Value: sarama.ByteEncoder(payload),
	}
	if _, _, err := p.producer.SendMessage(msg); err != nil {
		return fmt.Errorf("publish delivery %d: %w", delivery.DigestID, err)
	}
	return nil
}

// Close flushes and closes the producer.
func (p *Publisher) Close() error {
	return p.producer.Close()
}
