package questionbank

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-papers/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadTestLibrary(t *testing.T) (*Library, string) {
	t.Helper()
	dir := writeLibrary(t, map[string]string{
		"index.yaml": testIndex,
		"easy.json":  easyBank,
		"hard.yaml":  hardBank,
	})
	lib, err := Load(context.Background(), dir, zerolog.Nop())
	require.NoError(t, err)
	return lib, dir
}

func TestQuestions(t *testing.T) {
	lib, _ := loadTestLibrary(t)

	easy, err := lib.Questions("easy")
	require.NoError(t, err)
	require.Len(t, easy, 3)
	assert.Equal(t, "1 + 1 = ?", easy[0].Body)

	_, err = lib.Questions("hybrid")
	require.ErrorIs(t, err, ErrHybridBank)

	_, err = lib.Questions("medium")
	require.ErrorIs(t, err, ErrUnknownDifficulty)
}

func TestAddQuestion(t *testing.T) {
	ctx := context.Background()
	lib, dir := loadTestLibrary(t)

	added, err := lib.AddQuestion(ctx, "easy", model.Question{
		Body:             "2 + 2 = ?",
		CorrectChoices:   []string{"4"},
		IncorrectChoices: []string{"3", "5"},
	})
	require.NoError(t, err)
	assert.Equal(t, model.QuestionTypeSingleChoice, added.QuestionType)
	assert.Equal(t, 1.0, added.ScoreValue)

	easy, ok := lib.Difficulty("easy")
	require.True(t, ok)
	assert.Equal(t, 4, easy.TotalQuestions)
	hybrid, _ := lib.Difficulty("hybrid")
	assert.Equal(t, 5, hybrid.TotalQuestions)

	// The file on disk is updated, so a fresh load sees the question.
	again, err := Load(ctx, dir, zerolog.Nop())
	require.NoError(t, err)
	questions, err := again.Questions("easy")
	require.NoError(t, err)
	require.Len(t, questions, 4)
	assert.Equal(t, "2 + 2 = ?", questions[3].Body)
	assert.Equal(t, "arithmetic", questions[0].Ref)
}

func TestAddQuestionKeepsYAMLFormat(t *testing.T) {
	ctx := context.Background()
	lib, dir := loadTestLibrary(t)

	_, err := lib.AddQuestion(ctx, "hard", model.Question{
		Body:            "Name the largest planet.",
		QuestionType:    model.QuestionTypeFillInBlank,
		CorrectFillings: []string{"Jupiter"},
		ScoreValue:      2,
	})
	require.NoError(t, err)

	raw, err := os.ReadFile(filepath.Join(dir, "hard.yaml"))
	require.NoError(t, err)
	assert.Contains(t, string(raw), "body: Name the largest planet.")

	questions, err := lib.Questions("hard")
	require.NoError(t, err)
	require.Len(t, questions, 2)
	assert.Equal(t, []string{"Jupiter"}, questions[1].CorrectFillings)
	assert.Equal(t, 2.0, questions[1].ScoreValue)
}

func TestAddQuestionRejectsInvalid(t *testing.T) {
	ctx := context.Background()
	lib, dir := loadTestLibrary(t)
	before, err := os.ReadFile(filepath.Join(dir, "easy.json"))
	require.NoError(t, err)

	tests := []struct {
		name    string
		id      string
		q       model.Question
		wantErr error
	}{
		{
			name:    "empty body",
			id:      "easy",
			q:       model.Question{CorrectChoices: []string{"a"}},
			wantErr: ErrInvalidBank,
		},
		{
			name:    "choice question without correct choice",
			id:      "easy",
			q:       model.Question{Body: "q", IncorrectChoices: []string{"a"}},
			wantErr: ErrInvalidBank,
		},
		{
			name:    "unknown type",
			id:      "easy",
			q:       model.Question{Body: "q", QuestionType: "true_false"},
			wantErr: ErrInvalidBank,
		},
		{
			name:    "hybrid difficulty",
			id:      "hybrid",
			q:       model.Question{Body: "q", CorrectChoices: []string{"a"}},
			wantErr: ErrHybridBank,
		},
		{
			name:    "unknown difficulty",
			id:      "medium",
			q:       model.Question{Body: "q", CorrectChoices: []string{"a"}},
			wantErr: ErrUnknownDifficulty,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := lib.AddQuestion(ctx, tt.id, tt.q)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}

	after, err := os.ReadFile(filepath.Join(dir, "easy.json"))
	require.NoError(t, err)
	assert.Equal(t, before, after)
	easy, _ := lib.Difficulty("easy")
	assert.Equal(t, 3, easy.TotalQuestions)
}

func TestDeleteQuestion(t *testing.T) {
	ctx := context.Background()
	lib, dir := loadTestLibrary(t)

	removed, err := lib.DeleteQuestion(ctx, "easy", 1)
	require.NoError(t, err)
	assert.Equal(t, "Pick the primes", removed.Body)
	assert.Equal(t, model.QuestionTypeMultipleChoice, removed.QuestionType)

	questions, err := lib.Questions("easy")
	require.NoError(t, err)
	require.Len(t, questions, 2)
	assert.Equal(t, "1 + 1 = ?", questions[0].Body)
	assert.Equal(t, "The capital of France is ___", questions[1].Body)

	_, err = lib.DeleteQuestion(ctx, "easy", 2)
	require.ErrorIs(t, err, ErrQuestionIndex)
	_, err = lib.DeleteQuestion(ctx, "easy", -1)
	require.ErrorIs(t, err, ErrQuestionIndex)

	again, err := Load(ctx, dir, zerolog.Nop())
	require.NoError(t, err)
	easy, _ := again.Difficulty("easy")
	assert.Equal(t, 2, easy.TotalQuestions)
}

func TestConcurrentAddsAreSerialised(t *testing.T) {
	ctx := context.Background()
	lib, _ := loadTestLibrary(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := lib.AddQuestion(ctx, "easy", model.Question{Body: "q", CorrectChoices: []string{"a"}})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	questions, err := lib.Questions("easy")
	require.NoError(t, err)
	assert.Len(t, questions, 11)
}
