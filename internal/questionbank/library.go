package questionbank

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"github.com/rs/zerolog"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/stemsi/exstem-papers/internal/model"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
)

//go:embed bank.schema.json
var bankSchema string

const bankSchemaURL = "bank.schema.json"

// Load concurrency for bank files.
const maxParallelLoads = 4

var (
	ErrUnknownDifficulty = errors.New("unknown difficulty")
	ErrNoIndex           = errors.New("library index not found")
	ErrInvalidIndex      = errors.New("invalid library index")
	ErrInvalidBank       = errors.New("invalid question bank")
	ErrHybridBank        = errors.New("hybrid difficulty has no bank file of its own")
	ErrQuestionIndex     = errors.New("question index out of range")
)

var idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

var (
	indexFiles = []string{"index.yaml", "index.yml", "index.json"}
	bankExts   = []string{".json", ".yaml", ".yml"}
)

// snapshot is one fully loaded, validated library.
type snapshot struct {
	order []string
	items map[string]model.LibraryIndexItem
	pools map[string][]model.Question
}

// Library is the difficulty registry and question pools read from a library
// directory. It is safe for concurrent use; Reload swaps the whole library
// atomically.
type Library struct {
	dir    string
	log    zerolog.Logger
	schema *jsonschema.Schema

	mu   sync.RWMutex
	snap *snapshot

	// Serialises edits per bank file.
	editMu sync.Map // difficulty id -> *sync.Mutex
}

// Load reads and validates the library in dir.
func Load(ctx context.Context, dir string, log zerolog.Logger) (*Library, error) {
	schema, err := compileSchema()
	if err != nil {
		return nil, err
	}
	l := &Library{
		dir:    dir,
		log:    log.With().Str("component", "question_library").Logger(),
		schema: schema,
	}
	if err := l.Reload(ctx); err != nil {
		return nil, err
	}
	return l, nil
}

func compileSchema() (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	if err := c.AddResource(bankSchemaURL, bytes.NewReader([]byte(bankSchema))); err != nil {
		return nil, fmt.Errorf("add bank schema: %w", err)
	}
	schema, err := c.Compile(bankSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile bank schema: %w", err)
	}
	return schema, nil
}

// Reload re-reads the library directory. On failure the previous library
// stays in place.
func (l *Library) Reload(ctx context.Context) error {
	items, err := l.readIndex()
	if err != nil {
		return err
	}

	snap := &snapshot{
		items: make(map[string]model.LibraryIndexItem, len(items)),
		pools: make(map[string][]model.Question),
	}
	for _, item := range items {
		snap.order = append(snap.order, item.ID)
		snap.items[item.ID] = item
	}

	var poolMu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelLoads)
	for _, item := range items {
		if item.IsHybrid() {
			continue
		}
		id := item.ID
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			questions, err := l.readBank(id)
			if err != nil {
				return err
			}
			poolMu.Lock()
			snap.pools[id] = questions
			poolMu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for id, item := range snap.items {
		if item.IsHybrid() {
			item.TotalQuestions = len(snap.pools[item.HybridOf[0]]) + len(snap.pools[item.HybridOf[1]])
		} else {
			item.TotalQuestions = len(snap.pools[id])
		}
		if item.DefaultQuestions <= 0 || item.DefaultQuestions > item.TotalQuestions {
			item.DefaultQuestions = item.TotalQuestions
		}
		snap.items[id] = item
	}

	l.mu.Lock()
	l.snap = snap
	l.mu.Unlock()

	for _, id := range snap.order {
		item := snap.items[id]
		l.log.Info().
			Str("difficulty", id).
			Int("questions", item.TotalQuestions).
			Bool("hybrid", item.IsHybrid()).
			Msg("Difficulty loaded")
	}
	return nil
}

// Difficulty returns the index entry for id.
func (l *Library) Difficulty(id string) (model.LibraryIndexItem, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	item, ok := l.snap.items[id]
	return item, ok
}

// Difficulties returns all index entries in index order.
func (l *Library) Difficulties() []model.LibraryIndexItem {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]model.LibraryIndexItem, 0, len(l.snap.order))
	for _, id := range l.snap.order {
		out = append(out, l.snap.items[id])
	}
	return out
}

// Pool returns every question of a difficulty. A hybrid difficulty returns
// its two constituent pools concatenated.
func (l *Library) Pool(ctx context.Context, id string) ([]model.Question, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()

	item, ok := l.snap.items[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDifficulty, id)
	}
	var out []model.Question
	if item.IsHybrid() {
		out = append(out, l.snap.pools[item.HybridOf[0]]...)
		out = append(out, l.snap.pools[item.HybridOf[1]]...)
		return out, nil
	}
	return append(out, l.snap.pools[id]...), nil
}

func (l *Library) readIndex() ([]model.LibraryIndexItem, error) {
	var (
		raw  []byte
		name string
	)
	for _, candidate := range indexFiles {
		b, err := os.ReadFile(filepath.Join(l.dir, candidate))
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read library index: %w", err)
		}
		raw, name = b, candidate
		break
	}
	if name == "" {
		return nil, fmt.Errorf("%w in %s", ErrNoIndex, l.dir)
	}

	// JSON is a subset of YAML, so one decoder covers both index formats.
	var items []model.LibraryIndexItem
	if err := yaml.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidIndex, name, err)
	}
	if err := validateIndex(items); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidIndex, name, err)
	}
	return items, nil
}

func validateIndex(items []model.LibraryIndexItem) error {
	if len(items) == 0 {
		return errors.New("no difficulties defined")
	}
	byID := make(map[string]model.LibraryIndexItem, len(items))
	for i, item := range items {
		if !idPattern.MatchString(item.ID) {
			return fmt.Errorf("entry %d: invalid id %q", i, item.ID)
		}
		if _, dup := byID[item.ID]; dup {
			return fmt.Errorf("duplicate difficulty %q", item.ID)
		}
		byID[item.ID] = item
	}

	var errs []error
	for _, item := range items {
		if !item.IsHybrid() {
			continue
		}
		if len(item.HybridOf) != 2 {
			errs = append(errs, fmt.Errorf("hybrid %q must name exactly two difficulties", item.ID))
			continue
		}
		if item.HybridOf[0] == item.HybridOf[1] {
			errs = append(errs, fmt.Errorf("hybrid %q names %q twice", item.ID, item.HybridOf[0]))
		}
		for _, part := range item.HybridOf {
			constituent, ok := byID[part]
			switch {
			case !ok:
				errs = append(errs, fmt.Errorf("hybrid %q references unknown difficulty %q", item.ID, part))
			case constituent.IsHybrid():
				errs = append(errs, fmt.Errorf("hybrid %q references hybrid %q", item.ID, part))
			}
		}
	}
	return errors.Join(errs...)
}

func (l *Library) readBank(id string) ([]model.Question, error) {
	path, raw, err := l.bankFile(id)
	if err != nil {
		return nil, err
	}
	doc, err := toJSON(raw, filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidBank, filepath.Base(path), err)
	}
	questions, err := l.parseBank(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidBank, filepath.Base(path), err)
	}
	return questions, nil
}

// bankFile finds the bank file of a difficulty, trying each known extension.
func (l *Library) bankFile(id string) (string, []byte, error) {
	for _, ext := range bankExts {
		candidate := filepath.Join(l.dir, id+ext)
		b, err := os.ReadFile(candidate)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return "", nil, fmt.Errorf("read bank %s: %w", id, err)
		}
		return candidate, b, nil
	}
	return "", nil, fmt.Errorf("%w: no bank file for %q", ErrInvalidBank, id)
}

// parseBank validates a JSON bank document and returns its questions with
// defaults applied.
func (l *Library) parseBank(doc []byte) ([]model.Question, error) {
	var generic any
	if err := json.Unmarshal(doc, &generic); err != nil {
		return nil, err
	}
	if err := l.schema.Validate(generic); err != nil {
		return nil, err
	}

	var questions []model.Question
	if err := json.Unmarshal(doc, &questions); err != nil {
		return nil, err
	}

	var errs []error
	for i := range questions {
		q := &questions[i]
		if q.QuestionType == "" {
			q.QuestionType = model.QuestionTypeSingleChoice
		}
		if q.ScoreValue == 0 {
			q.ScoreValue = 1
		}
		if err := checkQuestion(*q); err != nil {
			errs = append(errs, fmt.Errorf("question %d: %w", i, err))
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return questions, nil
}

func checkQuestion(q model.Question) error {
	switch q.QuestionType {
	case model.QuestionTypeSingleChoice, model.QuestionTypeMultipleChoice:
		if len(q.CorrectChoices) == 0 {
			return errors.New("choice question needs at least one correct choice")
		}
		if q.NumCorrectToSelect > len(q.CorrectChoices) {
			return fmt.Errorf("num_correct_to_select %d exceeds %d correct choices", q.NumCorrectToSelect, len(q.CorrectChoices))
		}
	case model.QuestionTypeFillInBlank:
		if len(q.CorrectFillings) == 0 {
			return errors.New("fill-in-blank question needs at least one filling")
		}
	case model.QuestionTypeEssay:
	default:
		return fmt.Errorf("unknown question type %q", q.QuestionType)
	}
	return nil
}

// toJSON converts a bank file into JSON so one schema validates every format.
func toJSON(raw []byte, ext string) ([]byte, error) {
	if ext == ".json" {
		return raw, nil
	}
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return json.Marshal(doc)
}
