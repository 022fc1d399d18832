package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-papers/internal/config"
	"github.com/stemsi/exstem-papers/internal/model"
	"github.com/stemsi/exstem-papers/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return server, client
}

type recordingPublisher struct {
	events []model.PaperEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, ev model.PaperEvent) error {
	p.events = append(p.events, ev)
	return p.err
}

func TestRedisPublisherQueuesEvent(t *testing.T) {
	ctx := context.Background()
	server, client := newTestRedis(t)

	pub := NewRedisPublisher(client)
	score := 4.0
	require.NoError(t, pub.Publish(ctx, model.PaperEvent{
		ID:      "e1",
		PaperID: "p1",
		UserUID: "u1",
		Kind:    model.EventPaperGraded,
		Outcome: model.OutcomePassed,
		Score:   &score,
	}))

	items, err := server.List(config.WorkerKey.PaperEventsQueue)
	require.NoError(t, err)
	require.Len(t, items, 1)

	var ev model.PaperEvent
	require.NoError(t, json.Unmarshal([]byte(items[0]), &ev))
	assert.Equal(t, "p1", ev.PaperID)
	assert.Equal(t, model.OutcomePassed, ev.Outcome)
	require.NotNil(t, ev.Score)
	assert.Equal(t, 4.0, *ev.Score)
}

func TestRedisSubscriberReceivesPublishedEvents(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_, client := newTestRedis(t)

	sub := NewRedisSubscriber(client, zerolog.Nop())
	ch, err := sub.Subscribe(ctx)
	require.NoError(t, err)

	pub := NewRedisPublisher(client)
	require.NoError(t, pub.Publish(ctx, model.PaperEvent{ID: "e1", PaperID: "p1", Kind: model.EventPaperCreated}))

	select {
	case ev := <-ch:
		assert.Equal(t, "p1", ev.PaperID)
		assert.Equal(t, model.EventPaperCreated, ev.Kind)
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
	}

	cancel()
	require.Eventually(t, func() bool {
		select {
		case _, ok := <-ch:
			return !ok
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)
}

func TestEmitterStampsEvents(t *testing.T) {
	pub := &recordingPublisher{}
	em := NewEmitter(pub, "secret", zerolog.Nop())
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	em.now = func() time.Time { return fixed }

	em.Emit(context.Background(), model.PaperEvent{PaperID: "p1", Kind: model.EventPaperCreated}, "10.0.0.1")

	require.Len(t, pub.events, 1)
	ev := pub.events[0]
	assert.NotEmpty(t, ev.ID)
	assert.Equal(t, fixed, ev.OccurredAt)
	assert.Len(t, ev.IPHash, 32)
	assert.NotContains(t, ev.IPHash, "10.0.0.1")
}

func TestEmitterSwallowsPublishErrors(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("down")}
	em := NewEmitter(pub, "", zerolog.Nop())
	em.Emit(context.Background(), model.PaperEvent{PaperID: "p1"}, "")
	assert.Len(t, pub.events, 1)
	assert.Empty(t, pub.events[0].IPHash)

	var nilEmitter *Emitter
	nilEmitter.Emit(context.Background(), model.PaperEvent{PaperID: "p1"}, "")
}

func TestHashIPIsKeyed(t *testing.T) {
	a := NewEmitter(nil, "key-a", zerolog.Nop())
	b := NewEmitter(nil, "key-b", zerolog.Nop())

	assert.Equal(t, a.HashIP("10.0.0.1"), a.HashIP("10.0.0.1"))
	assert.NotEqual(t, a.HashIP("10.0.0.1"), a.HashIP("10.0.0.2"))
	assert.NotEqual(t, a.HashIP("10.0.0.1"), b.HashIP("10.0.0.1"))

	long := NewEmitter(nil, string(make([]byte, 100)), zerolog.Nop())
	assert.Len(t, long.HashIP("10.0.0.1"), 32)
}

func TestRepositorySinkIgnoresDuplicates(t *testing.T) {
	ctx := context.Background()
	repo, err := repository.NewJSONRepository(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)
	defer repo.Close()

	sink := NewRepositorySink(repo)
	evs := []model.PaperEvent{
		{ID: "e1", PaperID: "p1", Kind: model.EventPaperCreated, OccurredAt: time.Now().UTC()},
		{ID: "e2", PaperID: "p1", Kind: model.EventPaperGraded, OccurredAt: time.Now().UTC()},
	}
	require.NoError(t, sink.WriteBatch(ctx, evs))
	require.NoError(t, sink.WriteBatch(ctx, evs))

	stored, err := repo.GetAll(ctx, repository.EntityPaperEvent, 0, 0)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, "paper.created", stored[0]["kind"])
}
