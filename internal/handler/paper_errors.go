package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/exstem-papers/internal/model"
	"github.com/stemsi/exstem-papers/internal/response"
	"github.com/stemsi/exstem-papers/internal/service"
)

const (
	defaultPageLimit = 50
	maxPageLimit     = 200
)

// failFromError maps engine errors onto the API error envelope.
func failFromError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrUnknownDifficulty):
		response.Fail(c, http.StatusBadRequest, response.ErrUnknownDifficulty)
	case errors.Is(err, service.ErrInvalidQuestionCount):
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidQuestionCount)
	case errors.Is(err, service.ErrInsufficientQuestions):
		response.Fail(c, http.StatusUnprocessableEntity, response.ErrInsufficientQuestions)
	case errors.Is(err, service.ErrNotFoundOrForbidden):
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
	case errors.Is(err, service.ErrNotSubjective):
		response.Fail(c, http.StatusBadRequest, response.ErrNotSubjective)
	case errors.Is(err, service.ErrScoreOutOfRange):
		response.Fail(c, http.StatusBadRequest, response.ErrScoreOutOfRange)
	case errors.Is(err, service.ErrPaperNotSubmitted):
		response.Fail(c, http.StatusConflict, response.ErrPaperNotSubmitted)
	case errors.Is(err, service.ErrAlreadyTerminal):
		response.Fail(c, http.StatusConflict, response.ErrPaperCompleted)
	case errors.Is(err, service.ErrCorruptedPaper):
		response.Fail(c, http.StatusInternalServerError, response.ErrCorruptedPaper)
	default:
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}

// writeOutcome sends a typed operation result with the status its outcome
// maps to.
func writeOutcome(c *gin.Context, outcome model.Outcome, data any) {
	switch outcome {
	case model.OutcomeProgressSaved, model.OutcomePassed, model.OutcomeFailed:
		response.Success(c, http.StatusOK, data)
	case model.OutcomePendingManualGrading:
		response.Success(c, http.StatusAccepted, data)
	case model.OutcomeNotFound:
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
	case model.OutcomeAlreadyCompleted:
		response.FailWithData(c, http.StatusConflict, response.ErrAlreadyCompleted, data)
	case model.OutcomeAlreadyGraded:
		response.FailWithData(c, http.StatusConflict, response.ErrAlreadyGraded, data)
	case model.OutcomeInvalidAnswers:
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidAnswers)
	case model.OutcomeInvalidSubmission:
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidSubmission)
	case model.OutcomeInvalidPaperStructure:
		response.Fail(c, http.StatusInternalServerError, response.ErrCorruptedPaper)
	default:
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}

// pageParams reads ?skip= and ?limit=. ok is false when either is malformed.
func pageParams(c *gin.Context) (skip, limit int, ok bool) {
	skip, limit = 0, defaultPageLimit
	if v := c.Query("skip"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return 0, 0, false
		}
		skip = n
	}
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return 0, 0, false
		}
		limit = min(n, maxPageLimit)
	}
	return skip, limit, true
}
