package service

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	mrand "math/rand/v2"

	"github.com/stemsi/exstem-papers/internal/model"
)

// newCode returns a random hex token of n bytes.
func newCode(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// idSet hands out random ids that are unique within one paper.
type idSet struct {
	size int
	used map[string]struct{}
}

func newIDSet(size int) *idSet {
	return &idSet{size: size, used: make(map[string]struct{})}
}

func (s *idSet) next() (string, error) {
	for {
		id, err := newCode(s.size)
		if err != nil {
			return "", err
		}
		if _, taken := s.used[id]; taken {
			continue
		}
		s.used[id] = struct{}{}
		return id, nil
	}
}

// sample draws n items uniformly without replacement.
func sample[T any](items []T, n int) []T {
	if n > len(items) {
		n = len(items)
	}
	out := make([]T, n)
	for i, j := range mrand.Perm(len(items))[:n] {
		out[i] = items[j]
	}
	return out
}

// renderQuestion turns a bank entry into a paper question with fresh ids.
func (s *PaperService) renderQuestion(q model.Question, ids *idSet) (model.PaperQuestion, error) {
	internalID, err := ids.next()
	if err != nil {
		return model.PaperQuestion{}, err
	}

	pq := model.PaperQuestion{
		InternalID:   internalID,
		Body:         q.Body,
		QuestionType: q.QuestionType,
		Ref:          q.Ref,
		ScoreValue:   q.ScoreValue,
	}

	switch q.QuestionType {
	case model.QuestionTypeSingleChoice, model.QuestionTypeMultipleChoice:
		correct := sample(q.CorrectChoices, s.correctToOffer(q))
		incorrect := sample(q.IncorrectChoices, s.settings.Paper().NumIncorrectChoicesToSelect)

		if pq.CorrectChoicesMap, err = assignIDs(correct, ids); err != nil {
			return model.PaperQuestion{}, err
		}
		if pq.IncorrectChoicesMap, err = assignIDs(incorrect, ids); err != nil {
			return model.PaperQuestion{}, err
		}
	case model.QuestionTypeFillInBlank:
		pq.CorrectFillings = append([]string(nil), q.CorrectFillings...)
	case model.QuestionTypeEssay:
		pq.StandardAnswerText = q.StandardAnswerText
		pq.ScoringCriteria = q.ScoringCriteria
	}
	return pq, nil
}

func (s *PaperService) correctToOffer(q model.Question) int {
	if q.QuestionType == model.QuestionTypeSingleChoice {
		return 1
	}
	n := q.NumCorrectToSelect
	if n <= 0 {
		n = s.settings.Paper().NumCorrectChoicesToSelect
	}
	if n <= 0 || n > len(q.CorrectChoices) {
		n = len(q.CorrectChoices)
	}
	return n
}

func assignIDs(texts []string, ids *idSet) (map[string]string, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(texts))
	for _, text := range texts {
		id, err := ids.next()
		if err != nil {
			return nil, err
		}
		out[id] = text
	}
	return out, nil
}

// questionView renders the client-safe form of a question. Correct and
// incorrect choices are merged and shuffled so order says nothing about
// correctness.
func questionView(q model.PaperQuestion) model.QuestionView {
	v := model.QuestionView{
		ID:           q.InternalID,
		Body:         q.Body,
		QuestionType: q.QuestionType,
		ScoreValue:   q.ScoreValue,
	}
	switch {
	case q.QuestionType.IsChoice():
		choices := make(model.ChoiceList, 0, len(q.CorrectChoicesMap)+len(q.IncorrectChoicesMap))
		for id, text := range q.CorrectChoicesMap {
			choices = append(choices, model.Choice{ID: id, Text: text})
		}
		for id, text := range q.IncorrectChoicesMap {
			choices = append(choices, model.Choice{ID: id, Text: text})
		}
		mrand.Shuffle(len(choices), func(i, j int) {
			choices[i], choices[j] = choices[j], choices[i]
		})
		v.Choices = choices
	case q.QuestionType == model.QuestionTypeFillInBlank:
		v.BlankCount = len(q.CorrectFillings)
	}
	return v
}

func paperView(p *model.Paper) *model.PaperView {
	view := &model.PaperView{
		PaperID:    p.PaperID,
		Difficulty: p.Difficulty,
		Status:     p.Status,
		CreatedAt:  p.CreatedAt,
		Questions:  make([]model.QuestionView, 0, len(p.PaperQuestions)),
	}
	for _, q := range p.PaperQuestions {
		view.Questions = append(view.Questions, questionView(q))
	}
	return view
}

func paperDetail(p *model.Paper) *model.PaperDetail {
	d := &model.PaperDetail{
		PaperID:         p.PaperID,
		Difficulty:      p.Difficulty,
		Status:          p.Status,
		Score:           p.Score,
		ScorePercentage: p.ScorePercentage,
		PassStatus:      p.PassStatus,
		Passcode:        p.Passcode,
		CreatedAt:       p.CreatedAt,
		SubmittedAt:     p.SubmittedAt,
		Questions:       make([]model.DetailQuestion, 0, len(p.PaperQuestions)),
	}
	completed := p.Status == model.PaperStatusCompleted
	for _, q := range p.PaperQuestions {
		dq := model.DetailQuestion{
			QuestionView:    questionView(q),
			SubmittedAnswer: p.Answers[q.InternalID],
			IsGraded:        q.IsGraded,
		}
		if q.IsGraded && p.Status.Submitted() {
			obtained := q.ScoreObtained
			dq.ScoreObtained = &obtained
			dq.TeacherComment = q.TeacherComment
		}
		if completed {
			dq.StandardAnswerText = q.StandardAnswerText
			dq.Ref = q.Ref
		}
		d.Questions = append(d.Questions, dq)
	}
	return d
}

func historyItem(p *model.Paper) model.HistoryItem {
	return model.HistoryItem{
		PaperID:         p.PaperID,
		Difficulty:      p.Difficulty,
		Status:          p.Status,
		Score:           p.Score,
		ScorePercentage: p.ScorePercentage,
		PassStatus:      p.PassStatus,
		Passcode:        p.Passcode,
		CreatedAt:       p.CreatedAt,
		SubmittedAt:     p.SubmittedAt,
	}
}

func paperSummary(p *model.Paper) model.PaperSummary {
	return model.PaperSummary{
		PaperID:         p.PaperID,
		UserUID:         p.UserUID,
		Difficulty:      p.Difficulty,
		Status:          p.Status,
		QuestionCount:   len(p.PaperQuestions),
		Score:           p.Score,
		ScorePercentage: p.ScorePercentage,
		PassStatus:      p.PassStatus,
		CreatedAt:       p.CreatedAt,
		UpdatedAt:       p.UpdatedAt,
		SubmittedAt:     p.SubmittedAt,
	}
}
