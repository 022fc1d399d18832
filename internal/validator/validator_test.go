package validator

import (
	"testing"

	"github.com/gin-gonic/gin/binding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type paperRequest struct {
	Difficulty string `json:"difficulty" binding:"required,difficulty"`
	Count      int    `json:"count" binding:"omitempty,min=1"`
}

func TestDifficultyRule(t *testing.T) {
	require.NoError(t, Setup(func(id string) bool { return id == "easy" }))

	assert.NoError(t, binding.Validator.ValidateStruct(&paperRequest{Difficulty: "easy"}))

	err := binding.Validator.ValidateStruct(&paperRequest{Difficulty: "legendary"})
	require.Error(t, err)
	fields := TranslateErrors(err)
	assert.Equal(t, "difficulty must be a configured difficulty", fields["difficulty"])

	err = binding.Validator.ValidateStruct(&paperRequest{Difficulty: "easy", Count: -2})
	require.Error(t, err)
	assert.Contains(t, TranslateErrors(err), "count")
}
