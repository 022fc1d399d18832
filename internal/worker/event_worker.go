package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-papers/internal/config"
	"github.com/stemsi/exstem-papers/internal/events"
	"github.com/stemsi/exstem-papers/internal/model"
	"github.com/stemsi/exstem-papers/internal/observability"
)

const (
	EventBatchSize    = 50
	EventBatchTimeout = 2 * time.Second
	EventPollTimeout  = 1 * time.Second
)

// errQueueIdle is returned by a queue when nothing arrived within the poll
// timeout.
var errQueueIdle = errors.New("queue idle")

// eventQueue is where the worker takes raw event payloads from.
type eventQueue interface {
	pop(ctx context.Context, timeout time.Duration) ([]byte, error)
	requeue(ctx context.Context, raw []byte) error
	close() error
}

// EventWorker drains published paper events into an audit sink in batches.
type EventWorker struct {
	queue eventQueue
	sink  events.Sink
	log   zerolog.Logger
}

// NewRedisEventWorker consumes the Redis events list.
func NewRedisEventWorker(rdb *redis.Client, sink events.Sink, log zerolog.Logger) *EventWorker {
	return newEventWorker(&redisQueue{rdb: rdb}, sink, log)
}

// NewNATSEventWorker consumes the papers subject through a queue group, so
// several server instances share the work.
func NewNATSEventWorker(nc *nats.Conn, sink events.Sink, log zerolog.Logger) (*EventWorker, error) {
	msgs := make(chan *nats.Msg, EventBatchSize*4)
	sub, err := nc.ChanQueueSubscribe(config.WorkerKey.PaperEventsTopic, "paper-event-writers", msgs)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", config.WorkerKey.PaperEventsTopic, err)
	}
	return newEventWorker(&natsQueue{nc: nc, sub: sub, msgs: msgs}, sink, log), nil
}

func newEventWorker(queue eventQueue, sink events.Sink, log zerolog.Logger) *EventWorker {
	return &EventWorker{
		queue: queue,
		sink:  sink,
		log:   log.With().Str("component", "event_worker").Logger(),
	}
}

// ----------------------------------------------------------------
// Worker loop with batching
// ----------------------------------------------------------------

func (w *EventWorker) Start(ctx context.Context) {
	w.log.Info().Msg("EventWorker started")
	defer func() {
		if err := w.queue.close(); err != nil {
			w.log.Warn().Err(err).Msg("Closing event queue failed")
		}
	}()

	batch := make([]model.PaperEvent, 0, EventBatchSize)
	raws := make([][]byte, 0, EventBatchSize)
	lastFlush := time.Now()

	for {
		// Should flush?
		if len(batch) > 0 &&
			(len(batch) >= EventBatchSize || time.Since(lastFlush) >= EventBatchTimeout) {

			w.flushSafe(ctx, batch, raws)
			batch = batch[:0]
			raws = raws[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			w.log.Info().Int("pending", len(batch)).Msg("Shutdown requested. Flushing remaining batch...")
			w.flushSafe(context.Background(), batch, raws)
			return

		default:
			raw, err := w.queue.pop(ctx, EventPollTimeout)
			if err != nil {
				if !errors.Is(err, errQueueIdle) && ctx.Err() == nil {
					w.log.Error().Err(err).Msg("Queue pop error")
				}
				continue
			}

			var ev model.PaperEvent
			if err := json.Unmarshal(raw, &ev); err != nil {
				w.log.Error().Err(err).Msg("Invalid JSON payload")
				continue
			}

			batch = append(batch, ev)
			raws = append(raws, raw)
		}
	}
}

// ----------------------------------------------------------------
// Batch write with per-event fallback
// ----------------------------------------------------------------

func (w *EventWorker) flushSafe(ctx context.Context, batch []model.PaperEvent, raws [][]byte) {
	if len(batch) == 0 {
		return
	}

	err := w.sink.WriteBatch(ctx, batch)
	if err == nil {
		observability.EventsPersisted().WithLabelValues("batch").Add(float64(len(batch)))
		return
	}
	w.log.Warn().Err(err).Int("size", len(batch)).Msg("bulk event insert failed, using fallback")

	for i, ev := range batch {
		if err := w.sink.Write(ctx, ev); err != nil {
			w.log.Error().Err(err).Str("event_id", ev.ID).Msg("single event insert failed, requeueing")
			observability.EventsPersisted().WithLabelValues("requeued").Inc()
			if qerr := w.queue.requeue(ctx, raws[i]); qerr != nil {
				w.log.Error().Err(qerr).Str("event_id", ev.ID).Msg("requeue failed, event lost")
			}
			continue
		}
		observability.EventsPersisted().WithLabelValues("single").Inc()
	}
}

// ----------------------------------------------------------------
// Queue adapters
// ----------------------------------------------------------------

type redisQueue struct {
	rdb *redis.Client
}

func (q *redisQueue) pop(ctx context.Context, timeout time.Duration) ([]byte, error) {
	item, err := q.rdb.BLPop(ctx, timeout, config.WorkerKey.PaperEventsQueue).Result()
	if errors.Is(err, redis.Nil) {
		return nil, errQueueIdle
	}
	if err != nil {
		return nil, err
	}
	if len(item) < 2 {
		return nil, errQueueIdle
	}
	return []byte(item[1]), nil
}

func (q *redisQueue) requeue(ctx context.Context, raw []byte) error {
	return q.rdb.RPush(ctx, config.WorkerKey.PaperEventsQueue, raw).Err()
}

func (q *redisQueue) close() error { return nil }

type natsQueue struct {
	nc   *nats.Conn
	sub  *nats.Subscription
	msgs chan *nats.Msg
}

func (q *natsQueue) pop(ctx context.Context, timeout time.Duration) ([]byte, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case msg := <-q.msgs:
		return msg.Data, nil
	case <-timer.C:
		return nil, errQueueIdle
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (q *natsQueue) requeue(_ context.Context, raw []byte) error {
	return q.nc.Publish(config.WorkerKey.PaperEventsTopic, raw)
}

func (q *natsQueue) close() error {
	return q.sub.Unsubscribe()
}
