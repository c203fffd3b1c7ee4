package broadcast

import (
	"context"
	"encoding/json"
	"fmt"

	"contest_judge/internal/platform/logging"

	"github.com/redis/go-redis/v9"
)

// RedisRelay shares events between API instances over one pub/sub channel.
type RedisRelay struct {
	rdb     *redis.Client
	channel string
}

func NewRedisRelay(rdb *redis.Client, channel string) *RedisRelay {
	if channel == "" {
		channel = "leaderboard_events"
	}
	return &RedisRelay{rdb: rdb, channel: channel}
}

func (r *RedisRelay) Publish(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := r.rdb.Publish(ctx, r.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", r.channel, err)
	}
	return nil
}

func (r *RedisRelay) Run(ctx context.Context, deliver func(Event)) error {
	sub := r.rdb.Subscribe(ctx, r.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe to %s: %w", r.channel, err)
	}
	logging.BoardLog.WithField("channel", r.channel).Info("broadcast relay subscribed")

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				logging.BoardLog.WithError(err).Warn("dropping malformed relay message")
				continue
			}
			deliver(ev)
		}
	}
}
