package repository

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
)

const (
	journalOpPut    = "put"
	journalOpDelete = "delete"
)

// journalEntry is one line of an entity type's journal file.
type journalEntry struct {
	Op     string `json:"op"`
	ID     string `json:"id"`
	Record Record `json:"record,omitempty"`
}

// table is the in-memory state of one entity type.
type table struct {
	order   []string
	rows    map[string]Record
	journal *os.File
	pending int
}

// JSONRepository keeps every entity type in memory and makes each committed
// mutation durable by appending it to a per-type journal. PersistAll writes
// a snapshot file and truncates the journal.
//
// Each entity type has its own mutex, owned by the repository instance and
// held across the whole read-modify-persist cycle.
type JSONRepository struct {
	dir string
	log zerolog.Logger

	mu     sync.Mutex
	locks  map[string]*sync.Mutex
	tables map[string]*table
}

// NewJSONRepository creates a JSON repository rooted at dir.
func NewJSONRepository(dir string, log zerolog.Logger) (*JSONRepository, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &JSONRepository{
		dir:    dir,
		log:    log.With().Str("component", "json_repository").Logger(),
		locks:  make(map[string]*sync.Mutex),
		tables: make(map[string]*table),
	}, nil
}

func (r *JSONRepository) lockFor(entityType string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[entityType]
	if !ok {
		l = &sync.Mutex{}
		r.locks[entityType] = l
	}
	return l
}

func (r *JSONRepository) snapshotPath(entityType string) string {
	return filepath.Join(r.dir, entityType+".json")
}

func (r *JSONRepository) journalPath(entityType string) string {
	return filepath.Join(r.dir, entityType+".journal")
}

// tableFor returns the loaded table. Caller must hold the type lock.
func (r *JSONRepository) tableFor(entityType string) (*table, error) {
	r.mu.Lock()
	t, ok := r.tables[entityType]
	r.mu.Unlock()
	if ok {
		return t, nil
	}

	t, err := r.load(entityType)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.tables[entityType] = t
	r.mu.Unlock()
	return t, nil
}

func (r *JSONRepository) load(entityType string) (*table, error) {
	t := &table{rows: make(map[string]Record)}

	raw, err := os.ReadFile(r.snapshotPath(entityType))
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read snapshot %s: %w", entityType, err)
	default:
		var records []Record
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &records); err != nil {
				return nil, fmt.Errorf("decode snapshot %s: %w", entityType, err)
			}
		}
		for _, rec := range records {
			id := rec.ID(entityType)
			if id == "" {
				r.log.Warn().Str("entity_type", entityType).Msg("Skipping snapshot record without id")
				continue
			}
			if _, dup := t.rows[id]; !dup {
				t.order = append(t.order, id)
			}
			t.rows[id] = rec
		}
	}

	replayed, complete, err := r.replay(entityType, t)
	if err != nil {
		return nil, err
	}

	f, err := os.OpenFile(r.journalPath(entityType), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open journal %s: %w", entityType, err)
	}
	if err := f.Truncate(complete); err != nil {
		f.Close()
		return nil, fmt.Errorf("truncate journal %s: %w", entityType, err)
	}
	t.journal = f
	t.pending = replayed

	r.log.Debug().
		Str("entity_type", entityType).
		Int("records", len(t.order)).
		Int("replayed", replayed).
		Msg("Entity table loaded")

	return t, nil
}

// replay applies journal entries to t and returns how many were applied and
// the offset just past the last complete line.
func (r *JSONRepository) replay(entityType string, t *table) (int, int64, error) {
	f, err := os.Open(r.journalPath(entityType))
	if errors.Is(err, os.ErrNotExist) {
		return 0, 0, nil
	}
	if err != nil {
		return 0, 0, fmt.Errorf("open journal %s: %w", entityType, err)
	}
	defer f.Close()

	n := 0
	var complete int64
	reader := bufio.NewReader(f)
	for {
		line, err := reader.ReadBytes('\n')
		if errors.Is(err, io.EOF) {
			if len(line) > 0 {
				r.log.Warn().Str("entity_type", entityType).Msg("Dropping torn journal tail")
			}
			return n, complete, nil
		}
		if err != nil {
			return n, complete, fmt.Errorf("read journal %s: %w", entityType, err)
		}
		complete += int64(len(line))

		var e journalEntry
		if jerr := json.Unmarshal(line, &e); jerr != nil {
			r.log.Warn().Err(jerr).Str("entity_type", entityType).Msg("Skipping unreadable journal line")
			continue
		}
		t.apply(e)
		n++
	}
}

func (t *table) apply(e journalEntry) {
	switch e.Op {
	case journalOpPut:
		if _, ok := t.rows[e.ID]; !ok {
			t.order = append(t.order, e.ID)
		}
		t.rows[e.ID] = e.Record
	case journalOpDelete:
		if _, ok := t.rows[e.ID]; !ok {
			return
		}
		delete(t.rows, e.ID)
		for i, id := range t.order {
			if id == e.ID {
				t.order = append(t.order[:i], t.order[i+1:]...)
				break
			}
		}
	}
}

// commit writes the entry to the journal and then applies it in memory.
func (t *table) commit(e journalEntry) error {
	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode journal entry: %w", err)
	}
	line = append(line, '\n')
	if _, err := t.journal.Write(line); err != nil {
		return fmt.Errorf("append journal: %w", err)
	}
	t.apply(e)
	t.pending++
	return nil
}

func (r *JSONRepository) GetByID(ctx context.Context, entityType, id string) (Record, error) {
	l := r.lockFor(entityType)
	l.Lock()
	defer l.Unlock()

	t, err := r.tableFor(entityType)
	if err != nil {
		return nil, err
	}
	rec, ok := t.rows[id]
	if !ok {
		return nil, ErrNotFound
	}
	return rec.clone(), nil
}

func (r *JSONRepository) GetAll(ctx context.Context, entityType string, skip, limit int) ([]Record, error) {
	return r.Query(ctx, entityType, nil, skip, limit)
}

func (r *JSONRepository) Create(ctx context.Context, entityType string, rec Record) (Record, error) {
	id, err := prepareCreate(entityType, rec)
	if err != nil {
		return nil, err
	}

	l := r.lockFor(entityType)
	l.Lock()
	defer l.Unlock()

	t, err := r.tableFor(entityType)
	if err != nil {
		return nil, err
	}
	if _, exists := t.rows[id]; exists {
		return nil, ErrDuplicateID
	}

	stored := rec.clone()
	if err := t.commit(journalEntry{Op: journalOpPut, ID: id, Record: stored}); err != nil {
		return nil, err
	}
	return stored.clone(), nil
}

func (r *JSONRepository) Update(ctx context.Context, entityType, id string, partial Record) (Record, error) {
	if err := checkPartial(entityType, id, partial); err != nil {
		return nil, err
	}
	return r.Modify(ctx, entityType, id, func(Record) (Record, error) {
		return partial, nil
	})
}

func (r *JSONRepository) Modify(ctx context.Context, entityType, id string, fn ModifyFunc) (Record, error) {
	l := r.lockFor(entityType)
	l.Lock()
	defer l.Unlock()

	t, err := r.tableFor(entityType)
	if err != nil {
		return nil, err
	}
	current, ok := t.rows[id]
	if !ok {
		return nil, ErrNotFound
	}

	partial, err := fn(current.clone())
	if err != nil {
		return nil, err
	}
	if partial == nil {
		return current.clone(), nil
	}
	if err := checkPartial(entityType, id, partial); err != nil {
		return nil, err
	}

	updated := merge(current, partial.clone())
	if err := t.commit(journalEntry{Op: journalOpPut, ID: id, Record: updated}); err != nil {
		return nil, err
	}
	return updated.clone(), nil
}

func (r *JSONRepository) Delete(ctx context.Context, entityType, id string) (bool, error) {
	l := r.lockFor(entityType)
	l.Lock()
	defer l.Unlock()

	t, err := r.tableFor(entityType)
	if err != nil {
		return false, err
	}
	if _, ok := t.rows[id]; !ok {
		return false, nil
	}
	if err := t.commit(journalEntry{Op: journalOpDelete, ID: id}); err != nil {
		return false, err
	}
	return true, nil
}

func (r *JSONRepository) Query(ctx context.Context, entityType string, conditions Record, skip, limit int) ([]Record, error) {
	if err := checkConditions(conditions); err != nil {
		return nil, err
	}
	l := r.lockFor(entityType)
	l.Lock()
	defer l.Unlock()

	t, err := r.tableFor(entityType)
	if err != nil {
		return nil, err
	}

	var out []Record
	for _, id := range t.order {
		rec := t.rows[id]
		if matches(rec, conditions) {
			out = append(out, rec)
		}
	}
	out = Window(out, skip, limit)
	for i := range out {
		out[i] = out[i].clone()
	}
	return out, nil
}

// PersistAll writes a snapshot of every loaded entity type that has journaled
// changes and truncates its journal.
func (r *JSONRepository) PersistAll(ctx context.Context) error {
	r.mu.Lock()
	types := make([]string, 0, len(r.tables))
	for entityType := range r.tables {
		types = append(types, entityType)
	}
	r.mu.Unlock()

	var errs []error
	for _, entityType := range types {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.persistType(entityType); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (r *JSONRepository) persistType(entityType string) error {
	l := r.lockFor(entityType)
	l.Lock()
	defer l.Unlock()

	t, err := r.tableFor(entityType)
	if err != nil {
		return err
	}
	if t.pending == 0 {
		return nil
	}

	records := make([]Record, 0, len(t.order))
	for _, id := range t.order {
		records = append(records, t.rows[id])
	}
	raw, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot %s: %w", entityType, err)
	}

	tmp := r.snapshotPath(entityType) + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("write snapshot %s: %w", entityType, err)
	}
	if err := os.Rename(tmp, r.snapshotPath(entityType)); err != nil {
		return fmt.Errorf("replace snapshot %s: %w", entityType, err)
	}
	if err := t.journal.Truncate(0); err != nil {
		return fmt.Errorf("truncate journal %s: %w", entityType, err)
	}

	r.log.Debug().
		Str("entity_type", entityType).
		Int("records", len(records)).
		Int("journaled", t.pending).
		Msg("Snapshot written")
	t.pending = 0
	return nil
}

// Close persists all data and releases the journal files.
func (r *JSONRepository) Close() error {
	err := r.PersistAll(context.Background())

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tables {
		if t.journal != nil {
			if cerr := t.journal.Close(); cerr != nil && err == nil {
				err = cerr
			}
			t.journal = nil
		}
	}
	r.tables = make(map[string]*table)
	return err
}
