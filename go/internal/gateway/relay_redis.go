package gateway

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// DefaultRedisChannel is the pub/sub channel shared by all instances.
const DefaultRedisChannel = "auction_events"

// RedisRelay relays broadcasts over a single Redis pub/sub channel. A single
// channel keeps publish order for every room.
type RedisRelay struct {
	client  *redis.Client
	channel string
}

// NewRedisRelay connects to Redis and checks the connection.
func NewRedisRelay(ctx context.Context, addr, password string, db int) (*RedisRelay, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return &RedisRelay{client: rdb, channel: DefaultRedisChannel}, nil
}

func (r *RedisRelay) Publish(ctx context.Context, b Broadcast) error {
	data, err := encodeBroadcast(b)
	if err != nil {
		return err
	}
	if err := r.client.Publish(ctx, r.channel, data).Err(); err != nil {
		return fmt.Errorf("publish to Redis: %w", err)
	}
	return nil
}

func (r *RedisRelay) Subscribe(ctx context.Context, deliver func(Broadcast)) error {
	pubsub := r.client.Subscribe(ctx, r.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe to %s: %w", r.channel, err)
	}
	log.Info().Str("channel", r.channel).Msg("Redis relay subscribed")

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return fmt.Errorf("redis subscription closed")
			}
			b, err := decodeBroadcast([]byte(msg.Payload))
			if err != nil {
				log.Error().Err(err).Str("channel", msg.Channel).Msg("dropping malformed relay message")
				continue
			}
			deliver(b)
		}
	}
}

func (r *RedisRelay) Close() error {
	return r.client.Close()
}
