package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-papers/internal/repository"
)

// FlushWorker periodically persists buffered repository state and flushes
// once more on shutdown.
type FlushWorker struct {
	repo     repository.Repository
	interval time.Duration
	log      zerolog.Logger
}

func NewFlushWorker(repo repository.Repository, interval time.Duration, log zerolog.Logger) *FlushWorker {
	return &FlushWorker{
		repo:     repo,
		interval: interval,
		log:      log.With().Str("component", "flush_worker").Logger(),
	}
}

func (w *FlushWorker) Start(ctx context.Context) {
	w.log.Info().Dur("interval", w.interval).Msg("FlushWorker started")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.flush(context.Background())
			w.log.Info().Msg("FlushWorker stopped")
			return
		case <-ticker.C:
			w.flush(ctx)
		}
	}
}

func (w *FlushWorker) flush(ctx context.Context) {
	start := time.Now()
	if err := w.repo.PersistAll(ctx); err != nil {
		w.log.Error().Err(err).Msg("Persist failed")
		return
	}
	w.log.Debug().Dur("took", time.Since(start)).Msg("Repository persisted")
}
