package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/convo/internal/logger"
	"github.com/convo/internal/realtime"
)

// relayPrefix — префикс Redis-каналов ретрансляции: rt:{realtime-канал}.
const relayPrefix = "rt:"

// envelope — Broadcast на проводе; payload уже сериализован.
type envelope struct {
	Channel      string          `json:"channel"`
	Event        string          `json:"event"`
	Payload      json.RawMessage `json:"payload"`
	ActorID      string          `json:"actor_id,omitempty"`
	ExcludeActor bool            `json:"exclude_actor,omitempty"`
}

// Publish реализует realtime.Publisher: событие уходит всем экземплярам API через Redis pub/sub.
func (c *Client) Publish(ctx context.Context, b realtime.Broadcast) error {
	payload, err := json.Marshal(b.Payload)
	if err != nil {
		return fmt.Errorf("relay marshal payload: %w", err)
	}
	data, err := json.Marshal(envelope{
		Channel:      b.Channel,
		Event:        b.Event,
		Payload:      payload,
		ActorID:      b.ActorID,
		ExcludeActor: b.ExcludeActor,
	})
	if err != nil {
		return fmt.Errorf("relay marshal: %w", err)
	}
	if err := c.cli.Publish(ctx, relayPrefix+b.Channel, data).Err(); err != nil {
		return fmt.Errorf("relay publish: %w", err)
	}
	return nil
}

// Relay слушает rt:* и передаёт события в deliver (локальный хаб).
// Блокируется до отмены ctx.
func (c *Client) Relay(ctx context.Context, deliver func(realtime.Broadcast)) error {
	sub := c.cli.PSubscribe(ctx, relayPrefix+"*")
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("relay subscribe: %w", err)
	}
	logger.Info("realtime relay subscribed")
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			b, err := decodeEnvelope(msg.Channel, msg.Payload)
			if err != nil {
				logger.Errorw("relay: bad message", "channel", msg.Channel, "error", err)
				continue
			}
			deliver(b)
		}
	}
}

func decodeEnvelope(redisChannel, data string) (realtime.Broadcast, error) {
	var env envelope
	if err := json.Unmarshal([]byte(data), &env); err != nil {
		return realtime.Broadcast{}, err
	}
	if env.Channel == "" {
		env.Channel = strings.TrimPrefix(redisChannel, relayPrefix)
	}
	return realtime.Broadcast{
		Channel:      env.Channel,
		Event:        env.Event,
		Payload:      env.Payload,
		ActorID:      env.ActorID,
		ExcludeActor: env.ExcludeActor,
	}, nil
}
