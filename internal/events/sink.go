package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-papers/internal/model"
	"github.com/stemsi/exstem-papers/internal/repository"
)

// Sink stores audit events. Writing an event that is already stored is not
// an error.
type Sink interface {
	WriteBatch(ctx context.Context, evs []model.PaperEvent) error
	Write(ctx context.Context, ev model.PaperEvent) error
}

// PostgresSink appends events to the paper_events table.
type PostgresSink struct {
	pool *pgxpool.Pool
}

func NewPostgresSink(pool *pgxpool.Pool) *PostgresSink {
	return &PostgresSink{pool: pool}
}

// WriteBatch inserts all events in one statement using UNNEST.
func (s *PostgresSink) WriteBatch(ctx context.Context, evs []model.PaperEvent) error {
	n := len(evs)
	if n == 0 {
		return nil
	}

	ids := make([]uuid.UUID, 0, n)
	paperIDs := make([]string, 0, n)
	users := make([]string, 0, n)
	kinds := make([]string, 0, n)
	outcomes := make([]string, 0, n)
	scores := make([]*float64, 0, n)
	ipHashes := make([]string, 0, n)
	occurredAts := make([]time.Time, 0, n)

	for _, ev := range evs {
		id, err := uuid.Parse(ev.ID)
		if err != nil {
			return fmt.Errorf("event id %q: %w", ev.ID, err)
		}
		ids = append(ids, id)
		paperIDs = append(paperIDs, ev.PaperID)
		users = append(users, ev.UserUID)
		kinds = append(kinds, string(ev.Kind))
		outcomes = append(outcomes, string(ev.Outcome))
		scores = append(scores, ev.Score)
		ipHashes = append(ipHashes, ev.IPHash)
		occurredAts = append(occurredAts, ev.OccurredAt)
	}

	query := `
		INSERT INTO paper_events (id, paper_id, user_uid, kind, outcome, score, ip_hash, occurred_at)
		SELECT * FROM UNNEST(
			$1::uuid[],
			$2::text[],
			$3::text[],
			$4::text[],
			$5::text[],
			$6::float8[],
			$7::text[],
			$8::timestamptz[]
		)
		ON CONFLICT (id) DO NOTHING
	`

	_, err := s.pool.Exec(ctx, query, ids, paperIDs, users, kinds, outcomes, scores, ipHashes, occurredAts)
	return err
}

func (s *PostgresSink) Write(ctx context.Context, ev model.PaperEvent) error {
	id, err := uuid.Parse(ev.ID)
	if err != nil {
		return fmt.Errorf("event id %q: %w", ev.ID, err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO paper_events (id, paper_id, user_uid, kind, outcome, score, ip_hash, occurred_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (id) DO NOTHING`,
		id, ev.PaperID, ev.UserUID, string(ev.Kind), string(ev.Outcome), ev.Score, ev.IPHash, ev.OccurredAt,
	)
	return err
}

// RepositorySink stores events as paper_event records of the configured
// storage backend.
type RepositorySink struct {
	repo repository.Repository
}

func NewRepositorySink(repo repository.Repository) *RepositorySink {
	return &RepositorySink{repo: repo}
}

func (s *RepositorySink) WriteBatch(ctx context.Context, evs []model.PaperEvent) error {
	var errs []error
	for _, ev := range evs {
		if err := s.Write(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *RepositorySink) Write(ctx context.Context, ev model.PaperEvent) error {
	rec, err := repository.Encode(ev)
	if err != nil {
		return err
	}
	if _, err := s.repo.Create(ctx, repository.EntityPaperEvent, rec); err != nil && !errors.Is(err, repository.ErrDuplicateID) {
		return fmt.Errorf("store event %s: %w", ev.ID, err)
	}
	return nil
}
