package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Entity types stored by the service.
const (
	EntityPaper      = "paper"
	EntityPaperEvent = "paper_event"
)

// Common repository errors. Every backend returns these so callers can
// match with errors.Is regardless of the storage in use.
var (
	ErrNotFound    = errors.New("record not found")
	ErrDuplicateID = errors.New("record id already exists")
	ErrIDImmutable = errors.New("record id cannot be changed")
	ErrMissingID   = errors.New("record has no id")
	ErrConflict    = errors.New("record modified concurrently")
	// ErrInvalidCondition rejects object or array query values, which the
	// backends would otherwise compare differently.
	ErrInvalidCondition = errors.New("query conditions must be scalar values")
)

// Record is a stored entity encoded as a JSON object. Field names are the
// same across all backends.
type Record map[string]any

// ModifyFunc receives the current record and returns the fields to merge
// into it. Returning a nil Record leaves the record unchanged. A returned
// error aborts the modification and is passed through to the caller.
type ModifyFunc func(current Record) (Record, error)

// Repository is the generic entity store used by the paper engine.
//
// Skip and limit page through results in insertion order; a limit of zero
// or less means no limit. Query conditions are field equality tests joined
// with AND. Condition values must be scalars (string, number, bool or nil);
// a nil value also matches a record that lacks the field.
type Repository interface {
	GetByID(ctx context.Context, entityType, id string) (Record, error)
	GetAll(ctx context.Context, entityType string, skip, limit int) ([]Record, error)
	Create(ctx context.Context, entityType string, rec Record) (Record, error)
	Update(ctx context.Context, entityType, id string, partial Record) (Record, error)
	// Modify runs a read-modify-write cycle on one record without letting
	// any other mutation of the same record interleave.
	Modify(ctx context.Context, entityType, id string, fn ModifyFunc) (Record, error)
	Delete(ctx context.Context, entityType, id string) (bool, error)
	Query(ctx context.Context, entityType string, conditions Record, skip, limit int) ([]Record, error)
	// PersistAll flushes buffered state to durable storage.
	PersistAll(ctx context.Context) error
	Close() error
}

// IDField returns the name of the identifier field for an entity type.
func IDField(entityType string) string {
	if entityType == EntityPaper {
		return "paper_id"
	}
	return "id"
}

// Encode converts a value into a Record through its JSON form.
func Encode(v any) (Record, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	return rec, nil
}

// Decode fills dst from the record's JSON form.
func (r Record) Decode(dst any) error {
	raw, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("decode record: %w", err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decode record: %w", err)
	}
	return nil
}

// ID returns the record's identifier for the given entity type.
func (r Record) ID(entityType string) string {
	id, _ := r[IDField(entityType)].(string)
	return id
}

// clone returns a deep copy so callers never share maps with a backend.
func (r Record) clone() Record {
	if r == nil {
		return nil
	}
	raw, err := json.Marshal(r)
	if err != nil {
		return r
	}
	var out Record
	if err := json.Unmarshal(raw, &out); err != nil {
		return r
	}
	return out
}

// merge applies partial over base at the top level and returns a new record.
func merge(base, partial Record) Record {
	out := make(Record, len(base)+len(partial))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range partial {
		out[k] = v
	}
	return out
}

// checkPartial rejects a partial update that would change the record id.
func checkPartial(entityType, id string, partial Record) error {
	v, ok := partial[IDField(entityType)]
	if !ok {
		return nil
	}
	if s, _ := v.(string); s != id {
		return ErrIDImmutable
	}
	return nil
}

// matches reports whether rec satisfies every equality condition. Values are
// compared through their JSON encoding so 1 and 1.0 are equal.
func matches(rec, conditions Record) bool {
	for k, want := range conditions {
		got, ok := rec[k]
		if !ok {
			if want == nil {
				continue
			}
			return false
		}
		if !sameJSON(got, want) {
			return false
		}
	}
	return true
}

func sameJSON(a, b any) bool {
	ra, err := json.Marshal(a)
	if err != nil {
		return false
	}
	rb, err := json.Marshal(b)
	if err != nil {
		return false
	}
	return string(ra) == string(rb)
}

// checkConditions rejects non-scalar condition values.
func checkConditions(conditions Record) error {
	for k, v := range conditions {
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidCondition, k, err)
		}
		if len(raw) > 0 && (raw[0] == '{' || raw[0] == '[') {
			return fmt.Errorf("%w: %s", ErrInvalidCondition, k)
		}
	}
	return nil
}

// Window applies skip/limit to an ordered slice. A negative skip counts as
// zero and a limit of zero or less means no limit.
func Window[T any](items []T, skip, limit int) []T {
	if skip < 0 {
		skip = 0
	}
	if skip >= len(items) {
		return []T{}
	}
	items = items[skip:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

// prepareCreate validates a record for insertion and returns its id.
func prepareCreate(entityType string, rec Record) (string, error) {
	id := rec.ID(entityType)
	if id == "" {
		return "", ErrMissingID
	}
	return id, nil
}
