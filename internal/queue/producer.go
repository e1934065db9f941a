// Package queue is the durable ingestion variant: sends are enqueued as
// persist jobs on Kafka and a consumer group applies them. Delivery is
// at-least-once, so jobs carry a stable message ID and the consumer
// applies them idempotently.
package queue

import (
	"context"
	"encoding/json"
	"time"

	kafkago "github.com/segmentio/kafka-go"
)

// PersistJob is one message awaiting sequence assignment and
// persistence. ID is fixed at enqueue time and becomes the message
// identity, so a redelivered job collapses into the same document.
// The sequence is deliberately absent: it is assigned inside the
// consumer, never before enqueue.
type PersistJob struct {
	ID           string    `json:"id"`
	ChatID       string    `json:"chatId"`
	From         string    `json:"from,omitempty"`
	FromUserName string    `json:"fromUserName"`
	To           string    `json:"to,omitempty"`
	ToUserName   string    `json:"toUserName,omitempty"`
	Content      string    `json:"content"`
	ChatKind     string    `json:"chatKind"`
	Timestamp    time.Time `json:"timestamp"`
}

type Producer struct {
	writer *kafkago.Writer
}

func NewProducer(brokers []string, topic string) *Producer {
	// Hash routes by message key; anything key-oblivious would spread one
	// chat's jobs across partitions and let the consumer group invert
	// their order before sequence assignment.
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
		Async:        false,
	}
	return &Producer{writer: w}
}

// Enqueue submits a persist job. Keyed by chat so one chat's jobs stay
// on one partition and keep their enqueue order.
func (p *Producer) Enqueue(ctx context.Context, job PersistJob) error {
	b, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafkago.Message{
		Key:   []byte(job.ChatID),
		Value: b,
		Time:  job.Timestamp,
	})
}

func (p *Producer) Close() error { return p.writer.Close() }
