package notification

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/bnoverseas/payments-service/internal/infrastructure/kafka"
)

// KafkaDispatcher queues emails on a topic consumed by Processor.
type KafkaDispatcher struct {
	producer kafka.KafkaProducer
	topic    string
}

func NewKafkaDispatcher(producer kafka.KafkaProducer, topic string) *KafkaDispatcher {
	return &KafkaDispatcher{producer: producer, topic: topic}
}

func (d *KafkaDispatcher) Send(ctx context.Context, email Email) error {
	if email.To == "" {
		return fmt.Errorf("notification %s has no recipient", email.Type)
	}
	value, err := json.Marshal(email)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}
	if err := d.producer.Send(ctx, d.topic, email.To, value); err != nil {
		return fmt.Errorf("failed to queue notification: %w", err)
	}
	return nil
}
