package live

import (
	"context"
	"encoding/json"
	"fmt"

	"cardmarket/internal/logger"
)

// DefaultChannel is the redis channel update events travel on.
const DefaultChannel = "listings:events"

// PubSub is the broker side of the relay. The redis platform service implements it.
type PubSub interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, func() error, error)
}

// RedisRelay publishes events to a broker channel and feeds whatever arrives on
// that channel into the local hub, so every instance's subscribers see updates
// produced by any worker.
type RedisRelay struct {
	log     *logger.Logger
	hub     *Hub
	ps      PubSub
	channel string
}

func NewRedisRelay(hub *Hub, ps PubSub, channel string) *RedisRelay {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisRelay{log: logger.New("LiveRelay"), hub: hub, ps: ps, channel: channel}
}

func (r *RedisRelay) Publish(ctx context.Context, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", event, err)
	}
	b, err := json.Marshal(Message{Event: event, Data: data})
	if err != nil {
		return err
	}
	return r.ps.Publish(ctx, r.channel, b)
}

// Run relays broker messages into the hub until ctx is done or the
// subscription ends.
func (r *RedisRelay) Run(ctx context.Context) error {
	msgs, closeFn, err := r.ps.Subscribe(ctx, r.channel)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", r.channel, err)
	}
	defer func() { _ = closeFn() }()
	r.log.LogInfof("relaying %s into local subscribers", r.channel)

	for {
		select {
		case <-ctx.Done():
			return nil
		case b, ok := <-msgs:
			if !ok {
				return nil
			}
			var m Message
			if err := json.Unmarshal(b, &m); err != nil || m.Event == "" {
				r.log.LogWarnf("ignoring malformed event on %s", r.channel)
				continue
			}
			r.hub.Deliver(m)
		}
	}
}
