package queue

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/juhwano/backend-challenge-chat-server/internal/models"
)

type fakeProcessor struct {
	applied []*models.Message
	kinds   []string
}

func (p *fakeProcessor) PersistAndFanOut(_ context.Context, m *models.Message, chatKind string) error {
	p.applied = append(p.applied, m)
	p.kinds = append(p.kinds, chatKind)
	return nil
}

func testConsumer(proc Processor) *Consumer {
	return &Consumer{proc: proc, log: zap.NewNop().Sugar()}
}

func TestApplyBuildsMessageFromJob(t *testing.T) {
	proc := &fakeProcessor{}
	c := testConsumer(proc)

	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	raw, _ := json.Marshal(PersistJob{
		ID:           "job-1",
		ChatID:       "chat-1",
		From:         "u1",
		FromUserName: "alice",
		ToUserName:   "bob",
		Content:      "hi",
		ChatKind:     "1:1",
		Timestamp:    ts,
	})

	require.NoError(t, c.Apply(context.Background(), raw))
	require.Len(t, proc.applied, 1)

	m := proc.applied[0]
	require.Equal(t, "job-1", m.ID, "job ID becomes the message identity")
	require.Equal(t, "chat-1", m.ChatID)
	require.Equal(t, "alice", m.FromUserName)
	require.Equal(t, "hi", m.Content)
	require.Equal(t, ts, m.Timestamp)
	require.Zero(t, m.Sequence, "sequence is assigned by the processor, never carried in the job")
	require.Equal(t, []string{"1:1"}, proc.kinds)
}

func TestApplyRedeliveryKeepsMessageIdentity(t *testing.T) {
	proc := &fakeProcessor{}
	c := testConsumer(proc)

	raw, _ := json.Marshal(PersistJob{ID: "job-1", ChatID: "chat-1", Content: "hi"})
	require.NoError(t, c.Apply(context.Background(), raw))
	require.NoError(t, c.Apply(context.Background(), raw))

	require.Len(t, proc.applied, 2)
	require.Equal(t, proc.applied[0].ID, proc.applied[1].ID,
		"redelivered jobs carry the same message ID so the store collapses them")
}

func TestApplyMalformedJob(t *testing.T) {
	c := testConsumer(&fakeProcessor{})
	require.Error(t, c.Apply(context.Background(), []byte("not json")))
}
