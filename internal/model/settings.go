package model

// UpdateSettingsRequest changes paper settings at runtime. Omitted fields keep
// their current value.
type UpdateSettingsRequest struct {
	PassingScorePercentage      *float64 `json:"passing_score_percentage" binding:"omitempty,min=0,max=100"`
	CodeLengthBytes             *int     `json:"generated_code_length_bytes" binding:"omitempty,min=4,max=64"`
	DefaultQuestionCount        *int     `json:"num_questions_per_paper_default" binding:"omitempty,min=1"`
	NumCorrectChoicesToSelect   *int     `json:"num_correct_choices_to_select" binding:"omitempty,min=0"`
	NumIncorrectChoicesToSelect *int     `json:"num_incorrect_choices_to_select" binding:"omitempty,min=0"`
}
