package rt

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisFeed carries change events over Redis pub/sub so multiple server
// instances see every commit. One channel per scope; Redis preserves
// publish order per channel, which gives the per-row ordering the
// appliers rely on.
type RedisFeed struct {
	client *redis.Client
	log    zerolog.Logger
}

func NewRedisFeed(redisAddr string, log zerolog.Logger) *RedisFeed {
	rdb := redis.NewClient(&redis.Options{
		Addr: redisAddr,
	})

	return &RedisFeed{
		client: rdb,
		log:    log.With().Str("component", "rt.redis").Logger(),
	}
}

func (f *RedisFeed) Publish(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	return f.client.Publish(ctx, channelName(ev.Table, ev.Key), payload).Err()
}

type redisSubscription struct {
	pubsub *redis.PubSub
	events chan Event
	once   sync.Once
}

func (s *redisSubscription) Events() <-chan Event {
	return s.events
}

func (s *redisSubscription) Close() {
	s.once.Do(func() {
		_ = s.pubsub.Close()
	})
}

func (f *RedisFeed) Subscribe(ctx context.Context, table, key string) (Subscription, error) {
	pubsub := f.client.Subscribe(ctx, channelName(table, key))

	// Wait for the subscription to be confirmed so no event published
	// after Subscribe returns can be missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, err
	}

	sub := &redisSubscription{
		pubsub: pubsub,
		events: make(chan Event, 64),
	}

	go func() {
		defer close(sub.events)
		for msg := range pubsub.Channel() {
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				f.log.Error().Err(err).Str("channel", msg.Channel).Msg("drop undecodable event")
				continue
			}
			select {
			case sub.events <- ev:
			default:
				f.log.Warn().Str("channel", msg.Channel).Msg("subscriber lagging, event dropped")
			}
		}
	}()

	return sub, nil
}

func (f *RedisFeed) Close() error {
	return f.client.Close()
}
