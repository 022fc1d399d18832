package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-papers/internal/config"
	"github.com/stemsi/exstem-papers/internal/model"
)

const subscriberBuffer = 64

// Subscriber streams live paper events. The returned channel is closed once
// ctx is done.
type Subscriber interface {
	Subscribe(ctx context.Context) (<-chan model.PaperEvent, error)
}

// RedisSubscriber listens on the monitor PubSub channel.
type RedisSubscriber struct {
	rdb *redis.Client
	log zerolog.Logger
}

func NewRedisSubscriber(rdb *redis.Client, log zerolog.Logger) *RedisSubscriber {
	return &RedisSubscriber{rdb: rdb, log: log.With().Str("component", "redis_subscriber").Logger()}
}

func (s *RedisSubscriber) Subscribe(ctx context.Context) (<-chan model.PaperEvent, error) {
	ps := s.rdb.Subscribe(ctx, config.CacheKey.PaperMonitorChannel())
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe monitor channel: %w", err)
	}

	out := make(chan model.PaperEvent, subscriberBuffer)
	go func() {
		defer close(out)
		defer ps.Close()

		msgs := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				forward(ctx, s.log, out, []byte(msg.Payload))
			}
		}
	}()
	return out, nil
}

// NATSSubscriber listens on the papers subject.
type NATSSubscriber struct {
	nc  *nats.Conn
	log zerolog.Logger
}

func NewNATSSubscriber(nc *nats.Conn, log zerolog.Logger) *NATSSubscriber {
	return &NATSSubscriber{nc: nc, log: log.With().Str("component", "nats_subscriber").Logger()}
}

func (s *NATSSubscriber) Subscribe(ctx context.Context) (<-chan model.PaperEvent, error) {
	msgs := make(chan *nats.Msg, subscriberBuffer)
	sub, err := s.nc.ChanSubscribe(config.WorkerKey.PaperEventsTopic, msgs)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", config.WorkerKey.PaperEventsTopic, err)
	}

	out := make(chan model.PaperEvent, subscriberBuffer)
	go func() {
		defer close(out)
		defer func() { _ = sub.Unsubscribe() }()

		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-msgs:
				forward(ctx, s.log, out, msg.Data)
			}
		}
	}()
	return out, nil
}

// forward decodes one payload and delivers it unless ctx ends first.
// Slow consumers drop events rather than stall the subscription.
func forward(ctx context.Context, log zerolog.Logger, out chan<- model.PaperEvent, raw []byte) {
	var ev model.PaperEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		log.Warn().Err(err).Msg("Invalid event payload")
		return
	}
	select {
	case out <- ev:
	case <-ctx.Done():
	default:
		log.Warn().Str("paper_id", ev.PaperID).Msg("Subscriber lagging, event dropped")
	}
}
