package queue

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/juhwano/backend-challenge-chat-server/internal/models"
)

// Processor applies one dequeued message: sequence assignment,
// idempotent persistence and fan-out. The message router implements it.
type Processor interface {
	PersistAndFanOut(ctx context.Context, m *models.Message, chatKind string) error
}

type Consumer struct {
	reader *kafkago.Reader
	proc   Processor
	log    *zap.SugaredLogger
}

func NewConsumer(brokers []string, topic, groupID string, proc Processor, log *zap.SugaredLogger) *Consumer {
	r := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers: brokers,
		Topic:   topic,
		GroupID: groupID,
	})
	return &Consumer{reader: r, proc: proc, log: log}
}

// Run consumes persist jobs until the context is cancelled. A job that
// fails to apply is logged and skipped; the client owns resubmission, the
// queue does not retry on its behalf.
func (c *Consumer) Run(ctx context.Context) {
	for {
		m, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			c.log.Errorw("queue read failed", "err", err)
			time.Sleep(time.Second)
			continue
		}
		if err := c.Apply(ctx, m.Value); err != nil {
			c.log.Errorw("persist job failed", "err", err)
		}
	}
}

// Apply decodes and processes one raw persist job. A redelivered job
// re-runs sequence assignment but the save collapses on the job's stable
// message ID, so the duplicate burns a sequence number without
// duplicating the message.
func (c *Consumer) Apply(ctx context.Context, raw []byte) error {
	var job PersistJob
	if err := json.Unmarshal(raw, &job); err != nil {
		return err
	}
	msg := &models.Message{
		ID:           job.ID,
		ChatID:       job.ChatID,
		From:         job.From,
		FromUserName: job.FromUserName,
		To:           job.To,
		ToUserName:   job.ToUserName,
		Content:      job.Content,
		Timestamp:    job.Timestamp,
	}
	return c.proc.PersistAndFanOut(ctx, msg, job.ChatKind)
}

func (c *Consumer) Close() error { return c.reader.Close() }
