package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// redisPayload is the message published to Redis for cross-instance delivery.
type redisPayload struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	At    int64           `json:"at"`
}

// RedisPubSub implements RedisPublisher and RedisSubscriber using Redis pub/sub.
type RedisPubSub struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisPubSub creates a Redis pub/sub bridge for session events.
func NewRedisPubSub(client *redis.Client, logger *zap.Logger) *RedisPubSub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisPubSub{client: client, logger: logger}
}

// Publish publishes an event to channel.
func (r *RedisPubSub) Publish(ctx context.Context, channel, event string, payload []byte) error {
	body, err := encodeRelay(event, payload, time.Now())
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, channel, body).Err()
}

// Subscribe subscribes to channel and calls handler for each message.
// Returns a cancel function to stop the subscription.
func (r *RedisPubSub) Subscribe(channel string, handler func(event string, payload []byte)) (cancel func(), err error) {
	ctx, cancelCtx := context.WithCancel(context.Background())
	pubsub := r.client.Subscribe(ctx, channel)
	_, err = pubsub.Receive(ctx)
	if err != nil {
		cancelCtx()
		return nil, fmt.Errorf("subscribe: %w", err)
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
				event, data, err := decodeRelay([]byte(msg.Payload))
				if err != nil {
					r.logger.Debug("invalid relay payload", zap.String("channel", channel), zap.Error(err))
					continue
				}
				handler(event, data)
			}
		}
	}()
	r.logger.Info("subscribed to relay channel", zap.String("channel", channel))
	return cancelCtx, nil
}

func encodeRelay(event string, payload []byte, at time.Time) ([]byte, error) {
	return json.Marshal(redisPayload{Event: event, Data: payload, At: at.UnixMilli()})
}

func decodeRelay(body []byte) (event string, data []byte, err error) {
	var p redisPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return "", nil, err
	}
	if p.Event == "" {
		return "", nil, errors.New("missing event")
	}
	return p.Event, p.Data, nil
}
