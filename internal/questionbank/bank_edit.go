package questionbank

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/stemsi/exstem-papers/internal/model"
	"gopkg.in/yaml.v3"
)

// Questions returns the questions stored in the bank file of a non-hybrid
// difficulty, in file order.
func (l *Library) Questions(id string) ([]model.Question, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	item, ok := l.snap.items[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDifficulty, id)
	}
	if item.IsHybrid() {
		return nil, fmt.Errorf("%w: %s", ErrHybridBank, id)
	}
	return append([]model.Question(nil), l.snap.pools[id]...), nil
}

// AddQuestion appends q to the bank file of difficulty id and reloads the
// library. It returns the stored question with defaults applied.
func (l *Library) AddQuestion(ctx context.Context, id string, q model.Question) (model.Question, error) {
	if q.QuestionType == "" {
		q.QuestionType = model.QuestionTypeSingleChoice
	}
	entry, err := toGeneric(q)
	if err != nil {
		return model.Question{}, err
	}

	var added model.Question
	err = l.editBank(ctx, id, func(entries []any, _ []model.Question) ([]any, error) {
		return append(entries, entry), nil
	}, func(updated []model.Question) {
		added = updated[len(updated)-1]
	})
	if err != nil {
		return model.Question{}, err
	}
	l.log.Info().Str("difficulty", id).Msg("Question added to bank")
	return added, nil
}

// DeleteQuestion removes the question at index from the bank file of
// difficulty id and reloads the library. It returns the removed question.
func (l *Library) DeleteQuestion(ctx context.Context, id string, index int) (model.Question, error) {
	var removed model.Question
	err := l.editBank(ctx, id, func(entries []any, current []model.Question) ([]any, error) {
		if index < 0 || index >= len(entries) {
			return nil, fmt.Errorf("%w: %d not in [0, %d)", ErrQuestionIndex, index, len(entries))
		}
		removed = current[index]
		return append(entries[:index:index], entries[index+1:]...), nil
	}, nil)
	if err != nil {
		return model.Question{}, err
	}
	l.log.Info().Str("difficulty", id).Int("index", index).Msg("Question removed from bank")
	return removed, nil
}

// editBank rewrites one bank file. edit receives the raw entries and their
// parsed form; the result must validate before anything is written. A failed
// reload restores the previous file.
func (l *Library) editBank(
	ctx context.Context,
	id string,
	edit func(entries []any, current []model.Question) ([]any, error),
	done func(updated []model.Question),
) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	item, ok := l.Difficulty(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownDifficulty, id)
	}
	if item.IsHybrid() {
		return fmt.Errorf("%w: %s", ErrHybridBank, id)
	}

	mu := l.bankLock(id)
	mu.Lock()
	defer mu.Unlock()

	path, raw, err := l.bankFile(id)
	if err != nil {
		return err
	}
	ext := filepath.Ext(path)
	doc, err := toJSON(raw, ext)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidBank, filepath.Base(path), err)
	}
	current, err := l.parseBank(doc)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidBank, filepath.Base(path), err)
	}
	var entries []any
	if err := json.Unmarshal(doc, &entries); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidBank, filepath.Base(path), err)
	}

	entries, err = edit(entries, current)
	if err != nil {
		return err
	}
	next, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	updated, err := l.parseBank(next)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidBank, err)
	}

	encoded, err := encodeBank(entries, ext)
	if err != nil {
		return err
	}
	if err := writeFileAtomic(path, encoded); err != nil {
		return err
	}
	if err := l.Reload(ctx); err != nil {
		if restoreErr := writeFileAtomic(path, raw); restoreErr != nil {
			l.log.Error().Err(restoreErr).Str("difficulty", id).Msg("Failed to restore bank file")
		}
		return err
	}
	if done != nil {
		done(updated)
	}
	return nil
}

func (l *Library) bankLock(id string) *sync.Mutex {
	mu, _ := l.editMu.LoadOrStore(id, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// toGeneric turns q into the map form bank files are edited in.
func toGeneric(q model.Question) (any, error) {
	b, err := json.Marshal(q)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func encodeBank(entries []any, ext string) ([]byte, error) {
	if entries == nil {
		entries = []any{}
	}
	if ext == ".json" {
		b, err := json.MarshalIndent(entries, "", "  ")
		if err != nil {
			return nil, err
		}
		return append(b, '\n'), nil
	}
	return yaml.Marshal(entries)
}

// writeFileAtomic replaces path by renaming a synced temp file over it.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp bank file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write bank file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync bank file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close bank file: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("chmod bank file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace bank file: %w", err)
	}
	return nil
}
