package realtime

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/d60-Lab/community-messaging/pkg/logger"
)

// Deliverer 本实例的投递端，通常是 *Hub
type Deliverer interface {
	Deliver(destination string, payload []byte) error
}

type envelope struct {
	Destination string          `json:"destination"`
	Payload     json.RawMessage `json:"payload"`
}

// RedisBroadcaster 通过 Redis pub/sub 把推送广播到所有实例，
// 每个实例再交给持有该连接的本地 Hub
type RedisBroadcaster struct {
	client  *redis.Client
	channel string
	local   Deliverer
	ready   chan struct{}
}

func NewRedisBroadcaster(client *redis.Client, channel string, local Deliverer) *RedisBroadcaster {
	return &RedisBroadcaster{client: client, channel: channel, local: local, ready: make(chan struct{})}
}

func (b *RedisBroadcaster) Publish(ctx context.Context, destination string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	msg, err := json.Marshal(envelope{Destination: destination, Payload: data})
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, b.channel, msg).Err()
}

// Ready 订阅建立后关闭
func (b *RedisBroadcaster) Ready() <-chan struct{} { return b.ready }

// Run 订阅频道并转发到本地，直到 ctx 结束
func (b *RedisBroadcaster) Run(ctx context.Context) error {
	sub := b.client.Subscribe(ctx, b.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	close(b.ready)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var env envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				logger.Warn("drop malformed push envelope", zap.Error(err))
				continue
			}
			if err := b.local.Deliver(env.Destination, env.Payload); err != nil && !errors.Is(err, ErrNotConnected) {
				logger.Debug("deliver push failed", zap.String("destination", env.Destination), zap.Error(err))
			}
		}
	}
}
