package bus

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisTransport adapts a go-redis client to the bridge: publishing,
// the subscribe loop, and the presence TTL keys.
type RedisTransport struct {
	client *redis.Client
	log    *zap.SugaredLogger
}

func NewRedisTransport(client *redis.Client, log *zap.SugaredLogger) *RedisTransport {
	return &RedisTransport{client: client, log: log}
}

func (t *RedisTransport) Publish(ctx context.Context, channel string, payload []byte) error {
	return t.client.Publish(ctx, channel, payload).Err()
}

// Consume subscribes to the channel and feeds every event to dispatch
// until the context is cancelled. Reconnection is handled inside
// go-redis; a closed channel ends the loop.
func (t *RedisTransport) Consume(ctx context.Context, channel string, dispatch func([]byte)) {
	sub := t.client.Subscribe(ctx, channel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				t.log.Warn("bus subscription channel closed")
				return
			}
			dispatch([]byte(msg.Payload))
		}
	}
}

// presenceTTL bounds staleness of the fast-path presence keys; there is
// no reconciliation sweep beyond this expiry.
const presenceTTL = time.Hour

// MarkUserActive refreshes the user's fast-path presence key.
func (t *RedisTransport) MarkUserActive(ctx context.Context, userName string) {
	key := "user:" + userName + ":active"
	if err := t.client.Set(ctx, key, "1", presenceTTL).Err(); err != nil {
		t.log.Debugw("presence key set failed", "user", userName, "err", err)
	}
}

// MarkUserInactive drops the user's presence key.
func (t *RedisTransport) MarkUserInactive(ctx context.Context, userName string) {
	key := "user:" + userName + ":active"
	if err := t.client.Del(ctx, key).Err(); err != nil {
		t.log.Debugw("presence key delete failed", "user", userName, "err", err)
	}
}

func (t *RedisTransport) Close() error { return t.client.Close() }
