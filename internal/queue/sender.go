package queue

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/juhwano/backend-challenge-chat-server/internal/apperr"
	"github.com/juhwano/backend-challenge-chat-server/internal/models"
	"github.com/juhwano/backend-challenge-chat-server/internal/router"
)

// Sender is the queue-mode variant of the send entry point: validation
// and chat resolution still run synchronously so the client gets
// rejections immediately, then the persist job is enqueued. Sequence
// assignment and fan-out happen in whichever process consumes the job.
type Sender struct {
	router *router.Router
	prod   *Producer
}

func NewSender(r *router.Router, prod *Producer) *Sender {
	return &Sender{router: r, prod: prod}
}

// Send returns the accepted message without a sequence number; the
// number exists only once the consumer has applied the job.
func (s *Sender) Send(ctx context.Context, req router.SendRequest) (*models.Message, error) {
	m, err := s.router.Prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	m.ID = uuid.NewString()

	job := PersistJob{
		ID:           m.ID,
		ChatID:       m.ChatID,
		From:         m.From,
		FromUserName: m.FromUserName,
		To:           m.To,
		ToUserName:   m.ToUserName,
		Content:      m.Content,
		ChatKind:     req.ChatKind,
		Timestamp:    m.Timestamp,
	}
	if err := s.prod.Enqueue(ctx, job); err != nil {
		return nil, fmt.Errorf("enqueue persist job: %w: %v", apperr.ErrStoreUnavailable, err)
	}
	return m, nil
}
