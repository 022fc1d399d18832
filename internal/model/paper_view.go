package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Choice is one offered option in a client view.
type Choice struct {
	ID   string
	Text string
}

// ChoiceList is an ordered id → text mapping. It encodes as a JSON object
// whose key order is the slice order.
type ChoiceList []Choice

func (l ChoiceList) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, c := range l {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(c.ID)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(c.Text)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (l *ChoiceList) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*l = nil
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("choices must be a JSON object")
	}
	var out ChoiceList
	for dec.More() {
		kt, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := kt.(string)
		var text string
		if err := dec.Decode(&text); err != nil {
			return err
		}
		out = append(out, Choice{ID: key, Text: text})
	}
	*l = out
	return nil
}

// Texts returns the choice texts in order.
func (l ChoiceList) Texts() []string {
	out := make([]string, len(l))
	for i, c := range l {
		out[i] = c.Text
	}
	return out
}

// QuestionView is the client-safe rendering of a paper question.
type QuestionView struct {
	ID           string       `json:"id"`
	Body         string       `json:"body"`
	QuestionType QuestionType `json:"question_type"`
	Choices      ChoiceList   `json:"choices,omitempty"`
	BlankCount   int          `json:"blank_count,omitempty"`
	ScoreValue   float64      `json:"score_value"`
}

// PaperView is returned to the user when a paper is created.
type PaperView struct {
	PaperID    string         `json:"paper_id"`
	Difficulty string         `json:"difficulty"`
	Status     PaperStatus    `json:"status"`
	Questions  []QuestionView `json:"paper"`
	CreatedAt  time.Time      `json:"created_at"`
}

// HistoryItem summarises one of the user's papers.
type HistoryItem struct {
	PaperID         string      `json:"paper_id"`
	Difficulty      string      `json:"difficulty"`
	Status          PaperStatus `json:"status"`
	Score           *float64    `json:"score"`
	ScorePercentage *float64    `json:"score_percentage"`
	PassStatus      *bool       `json:"pass_status"`
	Passcode        *string     `json:"passcode,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`
	SubmittedAt     *time.Time  `json:"submission_time_utc"`
}

// DetailQuestion is one question of a history detail view.
type DetailQuestion struct {
	QuestionView
	SubmittedAnswer    Answer   `json:"submitted_answer"`
	IsGraded           bool     `json:"is_graded"`
	ScoreObtained      *float64 `json:"score_obtained,omitempty"`
	TeacherComment     string   `json:"teacher_comment,omitempty"`
	StandardAnswerText string   `json:"standard_answer_text,omitempty"`
	Ref                string   `json:"ref,omitempty"`
}

// PaperDetail is a user's read-only view of one paper.
type PaperDetail struct {
	PaperID         string           `json:"paper_id"`
	Difficulty      string           `json:"difficulty"`
	Status          PaperStatus      `json:"status"`
	Score           *float64         `json:"score"`
	ScorePercentage *float64         `json:"score_percentage"`
	PassStatus      *bool            `json:"pass_status"`
	Passcode        *string          `json:"passcode,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	SubmittedAt     *time.Time       `json:"submission_time_utc"`
	Questions       []DetailQuestion `json:"questions"`
}

// PaperSummary is the administrative listing row.
type PaperSummary struct {
	PaperID         string      `json:"paper_id"`
	UserUID         string      `json:"user_uid"`
	Difficulty      string      `json:"difficulty"`
	Status          PaperStatus `json:"status"`
	QuestionCount   int         `json:"question_count"`
	Score           *float64    `json:"score"`
	ScorePercentage *float64    `json:"score_percentage"`
	PassStatus      *bool       `json:"pass_status"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
	SubmittedAt     *time.Time  `json:"submitted_at"`
}

// PendingPaper is a paper waiting for manual grading.
type PendingPaper struct {
	PaperSummary
	SubjectiveCount       int `json:"subjective_questions_count"`
	GradedSubjectiveCount int `json:"graded_subjective_questions_count"`
	PendingCount          int `json:"pending_manual_grading_count"`
}
