package service

import (
	"errors"

	"github.com/stemsi/exstem-papers/internal/model"
)

// Paper engine errors. Recoverable submission states are reported as
// model.Outcome values instead.
var (
	ErrUnknownDifficulty     = errors.New("unknown difficulty")
	ErrInvalidQuestionCount  = errors.New("question count must be at least 1")
	ErrInsufficientQuestions = errors.New("not enough questions available for this difficulty")
	ErrNotFoundOrForbidden   = errors.New("paper not found")
	ErrNotSubjective         = errors.New("question is not manually graded")
	ErrScoreOutOfRange       = errors.New("score is outside the question's range")
	ErrPaperNotSubmitted     = errors.New("paper has not been submitted")
	ErrAlreadyTerminal       = errors.New("paper is already completed")
	ErrCorruptedPaper        = errors.New("stored paper structure is invalid")
)

// outcomeError aborts a repository modification with a typed outcome.
type outcomeError struct {
	outcome model.Outcome
}

func (e *outcomeError) Error() string {
	return string(e.outcome)
}

func abortWith(outcome model.Outcome) error {
	return &outcomeError{outcome: outcome}
}

// outcomeOf extracts the outcome carried by err, if any.
func outcomeOf(err error) (model.Outcome, bool) {
	var oe *outcomeError
	if errors.As(err, &oe) {
		return oe.outcome, true
	}
	return "", false
}
