package events

import (
	"context"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-papers/internal/model"
	"golang.org/x/crypto/blake2b"
)

// Emitter stamps events and hands them to a Publisher. Publishing failures
// are logged and never fail the operation that produced the event.
type Emitter struct {
	pub     Publisher
	hashKey []byte
	log     zerolog.Logger
	now     func() time.Time
}

// NewEmitter creates an Emitter. hashKey keys the client IP hash; an empty
// key still hashes, but unkeyed.
func NewEmitter(pub Publisher, hashKey string, log zerolog.Logger) *Emitter {
	if pub == nil {
		pub = NoopPublisher{}
	}
	key := []byte(hashKey)
	if len(key) > blake2b.Size {
		sum := blake2b.Sum256(key)
		key = sum[:]
	}
	return &Emitter{
		pub:     pub,
		hashKey: key,
		log:     log.With().Str("component", "event_emitter").Logger(),
		now:     time.Now,
	}
}

// Emit fills in the event id, timestamp and IP hash, then publishes.
func (e *Emitter) Emit(ctx context.Context, ev model.PaperEvent, clientIP string) {
	if e == nil {
		return
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = e.now().UTC()
	}
	if clientIP != "" {
		ev.IPHash = e.HashIP(clientIP)
	}

	if err := e.pub.Publish(ctx, ev); err != nil {
		e.log.Warn().
			Err(err).
			Str("paper_id", ev.PaperID).
			Str("kind", string(ev.Kind)).
			Msg("Failed to publish paper event")
	}
}

// HashIP returns a keyed BLAKE2b digest of ip, truncated to 16 bytes.
func (e *Emitter) HashIP(ip string) string {
	h, err := blake2b.New256(e.hashKey)
	if err != nil {
		return ""
	}
	h.Write([]byte(ip))
	return hex.EncodeToString(h.Sum(nil)[:16])
}
