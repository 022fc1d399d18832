package model

// QuestionType enumerates how a question is answered and graded.
type QuestionType string

const (
	QuestionTypeSingleChoice   QuestionType = "single_choice"
	QuestionTypeMultipleChoice QuestionType = "multiple_choice"
	QuestionTypeFillInBlank    QuestionType = "fill_in_blank"
	QuestionTypeEssay          QuestionType = "essay_question"
)

// IsChoice reports whether answers to this type are choice ids.
func (t QuestionType) IsChoice() bool {
	return t == QuestionTypeSingleChoice || t == QuestionTypeMultipleChoice
}

// IsSubjective reports whether the type needs a human grader.
func (t QuestionType) IsSubjective() bool {
	return t == QuestionTypeEssay
}

// Valid reports whether t is one of the known question types.
func (t QuestionType) Valid() bool {
	switch t {
	case QuestionTypeSingleChoice, QuestionTypeMultipleChoice, QuestionTypeFillInBlank, QuestionTypeEssay:
		return true
	}
	return false
}

// Question is one entry of a question bank file.
type Question struct {
	Body               string       `json:"body" yaml:"body"`
	QuestionType       QuestionType `json:"question_type" yaml:"question_type"`
	CorrectChoices     []string     `json:"correct_choices,omitempty" yaml:"correct_choices,omitempty"`
	IncorrectChoices   []string     `json:"incorrect_choices,omitempty" yaml:"incorrect_choices,omitempty"`
	NumCorrectToSelect int          `json:"num_correct_to_select,omitempty" yaml:"num_correct_to_select,omitempty"`
	CorrectFillings    []string     `json:"correct_fillings,omitempty" yaml:"correct_fillings,omitempty"`
	StandardAnswerText string       `json:"standard_answer_text,omitempty" yaml:"standard_answer_text,omitempty"`
	ScoringCriteria    string       `json:"scoring_criteria,omitempty" yaml:"scoring_criteria,omitempty"`
	Ref                string       `json:"ref,omitempty" yaml:"ref,omitempty"`
	ScoreValue         float64      `json:"score_value,omitempty" yaml:"score_value,omitempty"`
}
