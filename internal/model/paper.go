package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// PaperStatus enumerates paper lifecycle states. Transitions only move forward.
type PaperStatus string

const (
	PaperStatusInProgress           PaperStatus = "IN_PROGRESS"
	PaperStatusPendingManualGrading PaperStatus = "PENDING_MANUAL_GRADING"
	PaperStatusCompleted            PaperStatus = "COMPLETED"
)

// Submitted reports whether the paper has left IN_PROGRESS.
func (s PaperStatus) Submitted() bool {
	return s == PaperStatusPendingManualGrading || s == PaperStatusCompleted
}

// Answer is a submitted value: one choice id, several choice ids, the
// fillings of a fill-in-blank question or essay text. A bare JSON string
// decodes as a one-element answer.
type Answer []string

func (a *Answer) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		*a = nil
		return nil
	case len(b) > 0 && b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*a = Answer{s}
		return nil
	case len(b) > 0 && b[0] == '[':
		var list []string
		if err := json.Unmarshal(b, &list); err != nil {
			return err
		}
		*a = list
		return nil
	}
	return fmt.Errorf("answer must be a string or a list of strings")
}

// Answers maps a question's internal id to the submitted answer.
type Answers map[string]Answer

// Paper is one exam attempt as persisted by the repository.
type Paper struct {
	PaperID         string          `json:"paper_id"`
	UserUID         string          `json:"user_uid"`
	Difficulty      string          `json:"difficulty"`
	PaperQuestions  []PaperQuestion `json:"paper_questions"`
	Answers         Answers         `json:"answers"`
	Status          PaperStatus     `json:"status"`
	PassStatus      *bool           `json:"pass_status"`
	Score           *float64        `json:"score"`
	ScorePercentage *float64        `json:"score_percentage"`
	Passcode        *string         `json:"passcode"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	SubmittedAt     *time.Time      `json:"submitted_at"`
	CreationIP      string          `json:"creation_ip,omitempty"`
	SubmissionIP    string          `json:"submission_ip,omitempty"`
}

// PaperQuestion is a question rendered into one paper instance. Choice ids
// and the internal id are generated per instance.
type PaperQuestion struct {
	InternalID          string            `json:"internal_id"`
	Body                string            `json:"body"`
	QuestionType        QuestionType      `json:"question_type"`
	CorrectChoicesMap   map[string]string `json:"correct_choices_map,omitempty"`
	IncorrectChoicesMap map[string]string `json:"incorrect_choices_map,omitempty"`
	CorrectFillings     []string          `json:"correct_fillings,omitempty"`
	StandardAnswerText  string            `json:"standard_answer_text,omitempty"`
	ScoringCriteria     string            `json:"scoring_criteria,omitempty"`
	Ref                 string            `json:"ref,omitempty"`
	ScoreValue          float64           `json:"score_value"`
	ScoreObtained       float64           `json:"score_obtained"`
	IsGraded            bool              `json:"is_graded"`
	TeacherComment      string            `json:"teacher_comment,omitempty"`
}

// Outcome is the typed result of a paper operation.
type Outcome string

const (
	OutcomeProgressSaved         Outcome = "PROGRESS_SAVED"
	OutcomeNotFound              Outcome = "NOT_FOUND"
	OutcomeAlreadyCompleted      Outcome = "ALREADY_COMPLETED"
	OutcomeInvalidAnswers        Outcome = "INVALID_ANSWERS"
	OutcomePassed                Outcome = "PASSED"
	OutcomeFailed                Outcome = "FAILED"
	OutcomePendingManualGrading  Outcome = "PENDING_MANUAL_GRADING"
	OutcomeAlreadyGraded         Outcome = "ALREADY_GRADED"
	OutcomeInvalidSubmission     Outcome = "INVALID_SUBMISSION"
	OutcomeInvalidPaperStructure Outcome = "INVALID_PAPER_STRUCTURE"
)

// ProgressResult is returned by a progress update.
type ProgressResult struct {
	Outcome   Outcome    `json:"status_code"`
	PaperID   string     `json:"paper_id"`
	UpdatedAt *time.Time `json:"last_update_time_utc,omitempty"`
}

// GradeResult is returned by a final submission.
type GradeResult struct {
	Outcome            Outcome  `json:"status_code"`
	PaperID            string   `json:"paper_id"`
	Score              *float64 `json:"score,omitempty"`
	ScorePercentage    *float64 `json:"score_percentage,omitempty"`
	PassStatus         *bool    `json:"pass_status,omitempty"`
	Passcode           *string  `json:"passcode,omitempty"`
	PreviousResult     Outcome  `json:"previous_result,omitempty"`
	PendingManualCount int      `json:"pending_manual_grading_count,omitempty"`
}

// SubjectiveGradeResult is returned after grading one essay question.
type SubjectiveGradeResult struct {
	PaperID            string      `json:"paper_id"`
	QuestionID         string      `json:"question_id"`
	Status             PaperStatus `json:"status"`
	PendingManualCount int         `json:"pending_manual_grading_count"`
	Finalized          bool        `json:"finalized"`
	Score              *float64    `json:"score,omitempty"`
	ScorePercentage    *float64    `json:"score_percentage,omitempty"`
	PassStatus         *bool       `json:"pass_status,omitempty"`
}

// CreatePaperRequest is the payload for requesting a new paper.
type CreatePaperRequest struct {
	Difficulty string `json:"difficulty" binding:"required,difficulty"`
	Count      int    `json:"count" binding:"omitempty,min=1,max=500"`
}

// AnswersRequest is the payload for saving progress or submitting a paper.
type AnswersRequest struct {
	Answers Answers `json:"answers" binding:"required"`
}

// GradeSubjectiveRequest is the payload for manually grading an essay question.
type GradeSubjectiveRequest struct {
	Score   *float64 `json:"score" binding:"required,min=0"`
	Comment string   `json:"comment" binding:"max=2000"`
}
