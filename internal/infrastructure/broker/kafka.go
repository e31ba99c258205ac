// Package broker publishes inventory events to Kafka.
package broker

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// Config of the Kafka publisher.
type Config struct {
	Brokers []string
	Topic   string
}

// Message is one event to publish.
type Message struct {
	// Key orders events: messages with the same key land on the same partition.
	Key       string
	EventType string
	Payload   []byte
	At        time.Time
}

// KafkaPublisher writes messages synchronously, so a returned nil means the
// broker acknowledged them.
type KafkaPublisher struct {
	writer *kafka.Writer
}

// NewKafkaPublisher creates a publisher for cfg.Topic.
func NewKafkaPublisher(cfg Config) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.Topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			BatchTimeout: 10 * time.Millisecond,
			WriteTimeout: 10 * time.Second,
		},
	}
}

// Publish writes msgs in order.
func (p *KafkaPublisher) Publish(ctx context.Context, msgs ...Message) error {
	if len(msgs) == 0 {
		return nil
	}
	out := make([]kafka.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, toKafka(m))
	}
	if err := p.writer.WriteMessages(ctx, out...); err != nil {
		return fmt.Errorf("write to %s: %w", p.writer.Topic, err)
	}
	return nil
}

// Close flushes and closes the writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

func toKafka(m Message) kafka.Message {
	at := m.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	return kafka.Message{
		Key:   []byte(m.Key),
		Value: m.Payload,
		Time:  at,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(m.EventType)},
		},
	}
}
