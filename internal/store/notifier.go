package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Notifier carries "collection changed" signals between processes sharing
// one database, so live queries in every process re-evaluate after a write.
type Notifier interface {
	// Publish announces that origin wrote to collection.
	Publish(ctx context.Context, origin, collection string) error

	// Subscribe calls fn for every announcement until ctx is done.
	Subscribe(ctx context.Context, fn func(origin, collection string))
}

// changeMessage is the JSON payload published on the change channel.
type changeMessage struct {
	Origin     string `json:"origin"`
	Collection string `json:"collection"`
}

// reconnectDelay is the pause before re-subscribing after the pub/sub
// channel closes.
const reconnectDelay = time.Second

// RedisNotifier implements Notifier with Redis pub/sub.
type RedisNotifier struct {
	client  *redis.Client
	channel string
	log     *logrus.Entry
}

// NewRedisNotifier creates a notifier publishing on channel.
func NewRedisNotifier(client *redis.Client, channel string) *RedisNotifier {
	return &RedisNotifier{
		client:  client,
		channel: channel,
		log:     logrus.WithField("component", "change-bus"),
	}
}

// Publish announces a write.
func (n *RedisNotifier) Publish(ctx context.Context, origin, collection string) error {
	payload, err := json.Marshal(changeMessage{Origin: origin, Collection: collection})
	if err != nil {
		return fmt.Errorf("marshaling change message: %w", err)
	}
	if err := n.client.Publish(ctx, n.channel, payload).Err(); err != nil {
		return fmt.Errorf("publishing to %s: %w", n.channel, err)
	}
	return nil
}

// Subscribe listens on the change channel, reconnecting whenever the
// subscription drops, until ctx is done.
func (n *RedisNotifier) Subscribe(ctx context.Context, fn func(origin, collection string)) {
	for {
		sub := n.client.Subscribe(ctx, n.channel)
		if _, err := sub.Receive(ctx); err != nil {
			sub.Close()
			if ctx.Err() != nil {
				return
			}
			n.log.WithError(err).Warn("subscribing to change channel")
			if !sleepCtx(ctx, reconnectDelay) {
				return
			}
			continue
		}

		ch := sub.Channel()
	receive:
		for {
			select {
			case <-ctx.Done():
				sub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					break receive
				}
				var ev changeMessage
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					n.log.WithError(err).Error("unable to parse change message")
					continue
				}
				if ev.Collection == "" {
					continue
				}
				fn(ev.Origin, ev.Collection)
			}
		}

		sub.Close()
		if ctx.Err() != nil {
			return
		}
		n.log.Error("change channel closed, reconnecting")
		if !sleepCtx(ctx, reconnectDelay) {
			return
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
