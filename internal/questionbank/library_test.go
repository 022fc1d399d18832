package questionbank

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-papers/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testIndex = `
- id: easy
  name: Easy
  default_questions: 2
- id: hard
  name: Hard
  default_questions: 5
- id: hybrid
  name: Mixed
  hybrid_of: [easy, hard]
`

const easyBank = `[
  {"body": "1 + 1 = ?", "correct_choices": ["2"], "incorrect_choices": ["1", "3", "4"], "ref": "arithmetic"},
  {"body": "Pick the primes", "question_type": "multiple_choice", "correct_choices": ["2", "3"], "incorrect_choices": ["4"], "score_value": 2},
  {"body": "The capital of France is ___", "question_type": "fill_in_blank", "correct_fillings": ["Paris"]}
]`

const hardBank = `
- body: Explain recursion.
  question_type: essay_question
  standard_answer_text: A function calling itself.
  score_value: 5
`

func writeLibrary(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	return dir
}

func TestLoadLibrary(t *testing.T) {
	ctx := context.Background()
	dir := writeLibrary(t, map[string]string{
		"index.yaml": testIndex,
		"easy.json":  easyBank,
		"hard.yaml":  hardBank,
	})

	lib, err := Load(ctx, dir, zerolog.Nop())
	require.NoError(t, err)

	diffs := lib.Difficulties()
	require.Len(t, diffs, 3)
	assert.Equal(t, "easy", diffs[0].ID)
	assert.Equal(t, "hybrid", diffs[2].ID)

	easy, ok := lib.Difficulty("easy")
	require.True(t, ok)
	assert.Equal(t, 3, easy.TotalQuestions)
	assert.Equal(t, 2, easy.DefaultQuestions)

	// default_questions above the pool size is capped.
	hard, ok := lib.Difficulty("hard")
	require.True(t, ok)
	assert.Equal(t, 1, hard.TotalQuestions)
	assert.Equal(t, 1, hard.DefaultQuestions)

	hybrid, ok := lib.Difficulty("hybrid")
	require.True(t, ok)
	assert.True(t, hybrid.IsHybrid())
	assert.Equal(t, 4, hybrid.TotalQuestions)

	_, ok = lib.Difficulty("medium")
	assert.False(t, ok)
}

func TestPoolAppliesDefaults(t *testing.T) {
	ctx := context.Background()
	dir := writeLibrary(t, map[string]string{
		"index.yaml": testIndex,
		"easy.json":  easyBank,
		"hard.yaml":  hardBank,
	})
	lib, err := Load(ctx, dir, zerolog.Nop())
	require.NoError(t, err)

	pool, err := lib.Pool(ctx, "easy")
	require.NoError(t, err)
	require.Len(t, pool, 3)
	assert.Equal(t, model.QuestionTypeSingleChoice, pool[0].QuestionType)
	assert.Equal(t, 1.0, pool[0].ScoreValue)
	assert.Equal(t, "arithmetic", pool[0].Ref)
	assert.Equal(t, 2.0, pool[1].ScoreValue)

	essays, err := lib.Pool(ctx, "hard")
	require.NoError(t, err)
	require.Len(t, essays, 1)
	assert.Equal(t, model.QuestionTypeEssay, essays[0].QuestionType)
	assert.Equal(t, 5.0, essays[0].ScoreValue)

	mixed, err := lib.Pool(ctx, "hybrid")
	require.NoError(t, err)
	assert.Len(t, mixed, 4)

	_, err = lib.Pool(ctx, "medium")
	require.ErrorIs(t, err, ErrUnknownDifficulty)
}

func TestPoolReturnsCopy(t *testing.T) {
	ctx := context.Background()
	dir := writeLibrary(t, map[string]string{
		"index.yaml": "- id: easy\n  name: Easy\n",
		"easy.json":  easyBank,
	})
	lib, err := Load(ctx, dir, zerolog.Nop())
	require.NoError(t, err)

	pool, err := lib.Pool(ctx, "easy")
	require.NoError(t, err)
	pool[0] = model.Question{Body: "changed"}

	again, err := lib.Pool(ctx, "easy")
	require.NoError(t, err)
	assert.Equal(t, "1 + 1 = ?", again[0].Body)
}

func TestLoadJSONIndex(t *testing.T) {
	dir := writeLibrary(t, map[string]string{
		"index.json": `[{"id": "easy", "name": "Easy", "default_questions": 3}]`,
		"easy.json":  easyBank,
	})
	lib, err := Load(context.Background(), dir, zerolog.Nop())
	require.NoError(t, err)
	assert.Len(t, lib.Difficulties(), 1)
}

func TestLoadRejectsBadLibraries(t *testing.T) {
	tests := []struct {
		name    string
		files   map[string]string
		wantErr error
	}{
		{
			name:    "missing index",
			files:   map[string]string{"easy.json": easyBank},
			wantErr: ErrNoIndex,
		},
		{
			name:    "duplicate difficulty",
			files:   map[string]string{"index.yaml": "- id: easy\n- id: easy\n", "easy.json": easyBank},
			wantErr: ErrInvalidIndex,
		},
		{
			name:    "bad difficulty id",
			files:   map[string]string{"index.yaml": "- id: \"e asy\"\n"},
			wantErr: ErrInvalidIndex,
		},
		{
			name: "hybrid with one part",
			files: map[string]string{
				"index.yaml": "- id: easy\n- id: mix\n  hybrid_of: [easy]\n",
				"easy.json":  easyBank,
			},
			wantErr: ErrInvalidIndex,
		},
		{
			name: "hybrid with unknown part",
			files: map[string]string{
				"index.yaml": "- id: easy\n- id: mix\n  hybrid_of: [easy, hard]\n",
				"easy.json":  easyBank,
			},
			wantErr: ErrInvalidIndex,
		},
		{
			name:    "missing bank file",
			files:   map[string]string{"index.yaml": "- id: easy\n"},
			wantErr: ErrInvalidBank,
		},
		{
			name: "schema violation",
			files: map[string]string{
				"index.yaml": "- id: easy\n",
				"easy.json":  `[{"body": "", "correct_choices": ["a"]}]`,
			},
			wantErr: ErrInvalidBank,
		},
		{
			name: "unknown question type",
			files: map[string]string{
				"index.yaml": "- id: easy\n",
				"easy.json":  `[{"body": "q", "question_type": "true_false"}]`,
			},
			wantErr: ErrInvalidBank,
		},
		{
			name: "choice question without correct choice",
			files: map[string]string{
				"index.yaml": "- id: easy\n",
				"easy.json":  `[{"body": "q", "incorrect_choices": ["a", "b"]}]`,
			},
			wantErr: ErrInvalidBank,
		},
		{
			name: "fill in blank without fillings",
			files: map[string]string{
				"index.yaml": "- id: easy\n",
				"easy.yaml":  "- body: q\n  question_type: fill_in_blank\n",
			},
			wantErr: ErrInvalidBank,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := writeLibrary(t, tt.files)
			_, err := Load(context.Background(), dir, zerolog.Nop())
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestReloadKeepsPreviousLibraryOnFailure(t *testing.T) {
	ctx := context.Background()
	dir := writeLibrary(t, map[string]string{
		"index.yaml": "- id: easy\n",
		"easy.json":  easyBank,
	})
	lib, err := Load(ctx, dir, zerolog.Nop())
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "easy.json"), []byte(`not json`), 0o644))
	require.Error(t, lib.Reload(ctx))

	easy, ok := lib.Difficulty("easy")
	require.True(t, ok)
	assert.Equal(t, 3, easy.TotalQuestions)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "easy.json"), []byte(`[{"body": "only", "correct_choices": ["x"]}]`), 0o644))
	require.NoError(t, lib.Reload(ctx))
	easy, _ = lib.Difficulty("easy")
	assert.Equal(t, 1, easy.TotalQuestions)
}
