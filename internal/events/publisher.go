package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/stemsi/exstem-papers/internal/config"
	"github.com/stemsi/exstem-papers/internal/model"
)

// Publisher delivers paper events to the audit pipeline and live monitors.
type Publisher interface {
	Publish(ctx context.Context, ev model.PaperEvent) error
}

// NoopPublisher drops every event.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, model.PaperEvent) error { return nil }

// RedisPublisher queues events for the event worker and fans them out on the
// monitor channel in one pipeline round trip.
type RedisPublisher struct {
	rdb *redis.Client
}

func NewRedisPublisher(rdb *redis.Client) *RedisPublisher {
	return &RedisPublisher{rdb: rdb}
}

func (p *RedisPublisher) Publish(ctx context.Context, ev model.PaperEvent) error {
	raw, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	pipe := p.rdb.Pipeline()
	pipe.RPush(ctx, config.WorkerKey.PaperEventsQueue, raw)
	pipe.Publish(ctx, config.CacheKey.PaperMonitorChannel(), raw)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

// NATSPublisher publishes events on the papers subject.
type NATSPublisher struct {
	nc *nats.Conn
}

func NewNATSPublisher(nc *nats.Conn) *NATSPublisher {
	return &NATSPublisher{nc: nc}
}

func (p *NATSPublisher) Publish(_ context.Context, ev model.PaperEvent) error {
	raw, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := p.nc.Publish(config.WorkerKey.PaperEventsTopic, raw); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}
