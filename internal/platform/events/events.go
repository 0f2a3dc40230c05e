// Package events carries queue notifications from the services that mutate
// the queue to the WebSocket hub. With Redis configured, events travel over a
// pub/sub channel so every server instance relays them to its own clients.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/clinicq/clinicq/internal/platform/websocket"
)

// DefaultChannel is the Redis channel queue events are published on.
const DefaultChannel = "clinicq:queue"

// Publisher delivers an event to live subscribers.
type Publisher interface {
	Publish(ctx context.Context, event websocket.Event) error
}

// Broadcaster is the local side of delivery, normally *websocket.Hub.
type Broadcaster interface {
	Broadcast(topic string, event websocket.Event)
}

// NewRedisClient parses url, connects, and pings the server.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// RedisBus publishes events to a Redis channel and relays the channel back
// into the local hub.
type RedisBus struct {
	client  redis.UniversalClient
	channel string
	local   Broadcaster
	logger  zerolog.Logger

	mu     sync.Mutex
	pubsub *redis.PubSub
	cancel context.CancelFunc
	done   chan struct{}
}

func NewRedisBus(client redis.UniversalClient, channel string, local Broadcaster, logger zerolog.Logger) *RedisBus {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisBus{
		client:  client,
		channel: channel,
		local:   local,
		logger:  logger.With().Str("component", "redis-bus").Str("channel", channel).Logger(),
	}
}

// Publish sends event to the Redis channel. Local clients receive it through
// the relay like every other instance.
func (b *RedisBus) Publish(ctx context.Context, event websocket.Event) error {
	data, err := Encode(event)
	if err != nil {
		return err
	}
	if err := b.client.Publish(ctx, b.channel, data).Err(); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

// Start subscribes to the channel and relays messages until Close is called
// or ctx ends.
func (b *RedisBus) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pubsub != nil {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	pubsub := b.client.Subscribe(ctx, b.channel)
	// Receive blocks until the subscription is confirmed.
	if _, err := pubsub.Receive(ctx); err != nil {
		cancel()
		_ = pubsub.Close()
		return fmt.Errorf("subscribe %s: %w", b.channel, err)
	}

	b.pubsub = pubsub
	b.cancel = cancel
	b.done = make(chan struct{})
	go b.relay(ctx, pubsub.Channel(), b.done)

	b.logger.Info().Msg("relaying queue events from redis")
	return nil
}

func (b *RedisBus) relay(ctx context.Context, ch <-chan *redis.Message, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			b.deliver([]byte(msg.Payload))
		}
	}
}

func (b *RedisBus) deliver(payload []byte) {
	event, err := Decode(payload)
	if err != nil {
		b.logger.Warn().Err(err).Msg("dropping malformed event")
		return
	}
	b.local.Broadcast(event.Topic, event)
}

// Close stops the relay and releases the subscription.
func (b *RedisBus) Close() error {
	b.mu.Lock()
	pubsub, cancel, done := b.pubsub, b.cancel, b.done
	b.pubsub, b.cancel, b.done = nil, nil, nil
	b.mu.Unlock()

	if pubsub == nil {
		return nil
	}
	cancel()
	err := pubsub.Close()
	<-done
	return err
}

// Encode serialises an event for the wire.
func Encode(event websocket.Event) ([]byte, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	return data, nil
}

// Decode parses a wire event. Events without a type or topic are rejected.
func Decode(data []byte) (websocket.Event, error) {
	var event websocket.Event
	if err := json.Unmarshal(data, &event); err != nil {
		return websocket.Event{}, fmt.Errorf("unmarshal event: %w", err)
	}
	if event.Type == "" || event.Topic == "" {
		return websocket.Event{}, fmt.Errorf("event missing type or topic")
	}
	return event, nil
}

// Emit builds an event and publishes it. Delivery failures are logged and
// swallowed: the database change has already committed and clients resync on
// the next snapshot.
func Emit(ctx context.Context, p Publisher, logger zerolog.Logger, topic, eventType string, data interface{}) {
	if p == nil {
		return
	}
	event, err := websocket.NewEvent(topic, eventType, data)
	if err != nil {
		logger.Error().Err(err).Str("type", eventType).Msg("failed to build event")
		return
	}
	if err := p.Publish(ctx, event); err != nil {
		logger.Warn().Err(err).Str("type", eventType).Msg("failed to publish event")
	}
}
