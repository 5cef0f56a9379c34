package redisstate

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

// Envelope 是经由 Redis Pub/Sub 中转的事件信封。
// Channel 指 presence 通道名，不是 Redis 频道名。
type Envelope struct {
	Channel string          `json:"channel"`
	Event   string          `json:"event"`
	Data    json.RawMessage `json:"data"`
}

// RedisEventBus 通过 Redis Pub/Sub 在实例间分发通道事件。
// 它同时充当 service.Broadcaster（发布侧）和 hub 的事件来源（订阅侧）。
type RedisEventBus struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisEventBus 创建 RedisEventBus 实例。
func NewRedisEventBus(client *redis.Client, keyPrefix string) *RedisEventBus {
	if client == nil {
		panic("redis client cannot be nil for RedisEventBus")
	}
	if keyPrefix == "" {
		keyPrefix = "cc:"
	}
	return &RedisEventBus{client: client, keyPrefix: keyPrefix}
}

func (b *RedisEventBus) eventChannel(channel string) string {
	return fmt.Sprintf("%sevents:%s", b.keyPrefix, channel)
}

func (b *RedisEventBus) eventPattern() string {
	return b.keyPrefix + "events:*"
}

// Trigger 将事件发布到指定通道，由所有订阅实例的 hub 投递给本地客户端。
func (b *RedisEventBus) Trigger(ctx context.Context, channel, event string, data interface{}) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("redis: marshal event %s payload: %w", event, err)
	}
	env := Envelope{Channel: channel, Event: event, Data: raw}
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("redis: marshal envelope: %w", err)
	}
	if err := b.client.Publish(ctx, b.eventChannel(channel), payload).Err(); err != nil {
		logrus.WithFields(logrus.Fields{
			"channel":      channel,
			"event":        event,
			"payload_size": len(payload),
		}).WithError(err).Error("Redis Publish failed")
		return fmt.Errorf("redis: publish event %s to %s: %w", event, channel, err)
	}
	return nil
}

// Subscribe 订阅所有通道事件并通过回调投递。
// 阻塞直到 ctx 取消；应在独立的 goroutine 中运行。
func (b *RedisEventBus) Subscribe(ctx context.Context, deliver func(Envelope)) error {
	pubsub := b.client.PSubscribe(ctx, b.eventPattern())
	defer pubsub.Close()

	log := logrus.WithField("component", "event_bus")
	log.Infof("Subscribed to %s", b.eventPattern())

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			log.Info("Event bus subscription stopped")
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var env Envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				log.WithError(err).Warnf("Dropping malformed envelope from %s", msg.Channel)
				continue
			}
			if env.Channel == "" {
				// 向后兼容：从 Redis 频道名推回通道名
				env.Channel = strings.TrimPrefix(msg.Channel, b.keyPrefix+"events:")
			}
			deliver(env)
		}
	}
}
