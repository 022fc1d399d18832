// Package grading scores objective paper questions.
//
// Scoring is all-or-nothing: a question earns its full score_value when the
// submitted answer matches exactly and nothing otherwise. Essay questions are
// never scored here and report NeedsManual instead.
package grading

import (
	"strings"

	"github.com/stemsi/exstem-papers/internal/model"
)

// Result is the outcome of scoring one question.
type Result struct {
	Obtained    float64
	NeedsManual bool
}

// Strategy scores one question type.
type Strategy interface {
	Score(q model.PaperQuestion, answer model.Answer) Result
}

type StrategyFunc func(q model.PaperQuestion, answer model.Answer) Result

func (f StrategyFunc) Score(q model.PaperQuestion, answer model.Answer) Result {
	return f(q, answer)
}

var strategies = map[model.QuestionType]Strategy{
	model.QuestionTypeSingleChoice:   StrategyFunc(scoreSingleChoice),
	model.QuestionTypeMultipleChoice: StrategyFunc(scoreMultipleChoice),
	model.QuestionTypeFillInBlank:    StrategyFunc(scoreFillInBlank),
	model.QuestionTypeEssay:          StrategyFunc(scoreEssay),
}

// Score grades q against the submitted answer. Unknown question types earn
// nothing.
func Score(q model.PaperQuestion, answer model.Answer) Result {
	s, ok := strategies[q.QuestionType]
	if !ok {
		return Result{}
	}
	return s.Score(q, answer)
}

func scoreSingleChoice(q model.PaperQuestion, answer model.Answer) Result {
	if len(answer) != 1 || len(q.CorrectChoicesMap) != 1 {
		return Result{}
	}
	if _, ok := q.CorrectChoicesMap[answer[0]]; ok {
		return Result{Obtained: q.ScoreValue}
	}
	return Result{}
}

func scoreMultipleChoice(q model.PaperQuestion, answer model.Answer) Result {
	if len(q.CorrectChoicesMap) == 0 {
		return Result{}
	}
	seen := make(map[string]struct{}, len(answer))
	for _, id := range answer {
		if _, ok := q.CorrectChoicesMap[id]; !ok {
			return Result{}
		}
		seen[id] = struct{}{}
	}
	if len(seen) != len(q.CorrectChoicesMap) {
		return Result{}
	}
	return Result{Obtained: q.ScoreValue}
}

func scoreFillInBlank(q model.PaperQuestion, answer model.Answer) Result {
	if len(q.CorrectFillings) == 0 || len(answer) != len(q.CorrectFillings) {
		return Result{}
	}
	for i, want := range q.CorrectFillings {
		if Normalize(answer[i]) != Normalize(want) {
			return Result{}
		}
	}
	return Result{Obtained: q.ScoreValue}
}

func scoreEssay(q model.PaperQuestion, _ model.Answer) Result {
	if q.IsGraded {
		return Result{Obtained: q.ScoreObtained}
	}
	return Result{NeedsManual: true}
}

// Normalize folds case and collapses whitespace for fill-in-blank matching.
func Normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
