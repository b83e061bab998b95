package realtime

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	channelPrefix  = "tracker:"
	publishTimeout = 5 * time.Second
)

// RedisBus implements Bus over Redis pub/sub so fan-out works across
// horizontally scaled gateway instances. Frames are published as-is; they
// are already self-describing JSON with a "type" field.
type RedisBus struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisBus creates a Redis-backed broadcast bus.
func NewRedisBus(client *redis.Client, logger *zap.Logger) *RedisBus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisBus{client: client, logger: logger}
}

// Publish sends frame to the group's Redis channel. Delivery to subscribers
// is best-effort; only the publish to Redis itself can fail.
func (b *RedisBus) Publish(ctx context.Context, group string, frame []byte) error {
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := b.client.Publish(ctx, channelPrefix+group, frame).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", group, err)
	}
	return nil
}

// Subscribe listens on the group's Redis channel and calls handler for each
// frame. Returns a cancel function that stops the subscription.
func (b *RedisBus) Subscribe(group string, handler func(frame []byte)) (func(), error) {
	ctx, cancelCtx := context.WithCancel(context.Background())
	pubsub := b.client.Subscribe(ctx, channelPrefix+group)
	if _, err := pubsub.Receive(ctx); err != nil {
		cancelCtx()
		return nil, fmt.Errorf("subscribe %s: %w", group, err)
	}
	ch := pubsub.Channel()
	go func() {
		defer pubsub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				handler([]byte(msg.Payload))
			}
		}
	}()
	return cancelCtx, nil
}
