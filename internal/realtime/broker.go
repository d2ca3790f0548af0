package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const defaultChannel = "moderation:realtime"

type envelope struct {
	Kind   string    `json:"kind"`
	UserID uuid.UUID `json:"user_id"`
	Event  *Event    `json:"event,omitempty"`
	Reason string    `json:"reason,omitempty"`
}

const (
	kindPush       = "push"
	kindDisconnect = "disconnect"
)

// Broker relays pushes and disconnects through Redis pub/sub so that every
// node applies them to its local Hub. A user may be connected to any node.
type Broker struct {
	rdb     *redis.Client
	hub     *Hub
	channel string
}

// DialRedis parses url and checks the connection.
func DialRedis(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, err
	}
	return rdb, nil
}

// Ping reports whether Redis is reachable.
func (b *Broker) Ping(ctx context.Context) error {
	return b.rdb.Ping(ctx).Err()
}

func NewBroker(rdb *redis.Client, hub *Hub) *Broker {
	return &Broker{rdb: rdb, hub: hub, channel: defaultChannel}
}

func (b *Broker) Push(ctx context.Context, userID uuid.UUID, ev Event) error {
	return b.publish(ctx, envelope{Kind: kindPush, UserID: userID, Event: &ev})
}

func (b *Broker) Disconnect(ctx context.Context, userID uuid.UUID, reason string) error {
	return b.publish(ctx, envelope{Kind: kindDisconnect, UserID: userID, Reason: reason})
}

func (b *Broker) publish(ctx context.Context, env envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return err
	}
	if err := b.rdb.Publish(ctx, b.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", env.Kind, err)
	}
	return nil
}

// Run listens on the channel until ctx is done.
func (b *Broker) Run(ctx context.Context) {
	sub := b.rdb.Subscribe(ctx, b.channel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if err := b.apply(ctx, []byte(msg.Payload)); err != nil {
				slog.Warn("bad realtime envelope", "error", err)
			}
		}
	}
}

func (b *Broker) apply(ctx context.Context, payload []byte) error {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return err
	}
	switch env.Kind {
	case kindPush:
		if env.Event == nil {
			return fmt.Errorf("push without event")
		}
		return b.hub.Push(ctx, env.UserID, *env.Event)
	case kindDisconnect:
		return b.hub.Disconnect(ctx, env.UserID, env.Reason)
	default:
		return fmt.Errorf("unknown kind %q", env.Kind)
	}
}
