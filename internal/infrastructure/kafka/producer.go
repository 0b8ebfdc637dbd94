package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/IBM/sarama"
)

// Producer publishes outbox payloads to Kafka and waits for broker
// acknowledgement before returning.
type Producer struct {
	producer sarama.SyncProducer
}

// NewProducer creates a sync producer that requires acks from all in-sync
// replicas. sendTimeout bounds how long a single produce waits for the
// broker before failing the attempt.
func NewProducer(brokers []string, sendTimeout time.Duration) (*Producer, error) {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_1_0_0
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Idempotent = true
	cfg.Producer.Return.Successes = true
	cfg.Net.MaxOpenRequests = 1
	cfg.Producer.Timeout = sendTimeout
	cfg.Net.DialTimeout = 10 * time.Second
	cfg.Net.ReadTimeout = sendTimeout + 5*time.Second
	cfg.Net.WriteTimeout = sendTimeout + 5*time.Second

	p, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	return &Producer{producer: p}, nil
}

// Publish sends one message keyed by key and waits for the acknowledgement.
func (p *Producer) Publish(ctx context.Context, topic, key string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	_, _, err := p.producer.SendMessage(&sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(payload),
	})
	if err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

// Close shuts down the underlying producer.
func (p *Producer) Close() error {
	return p.producer.Close()
}
