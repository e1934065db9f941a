package queue

import (
	"testing"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
)

// One chat's persist jobs must land on one partition: the consumer
// assigns sequence numbers in consumption order, so the writer has to
// route by the chat-ID key, not by partition load.
func TestProducerRoutesByChatKey(t *testing.T) {
	p := NewProducer([]string{"localhost:9092"}, "chat.message.persist")
	defer p.Close()

	balancer, ok := p.writer.Balancer.(*kafkago.Hash)
	require.True(t, ok, "writer must balance by message key, got %T", p.writer.Balancer)

	// same key, same partition, every time
	msg := kafkago.Message{Key: []byte("chat-1")}
	first := balancer.Balance(msg, 0, 1, 2, 3)
	for i := 0; i < 10; i++ {
		require.Equal(t, first, balancer.Balance(msg, 0, 1, 2, 3))
	}
	require.Equal(t, kafkago.RequireAll, p.writer.RequiredAcks)
}
