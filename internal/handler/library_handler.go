package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-papers/internal/middleware"
	"github.com/stemsi/exstem-papers/internal/model"
	"github.com/stemsi/exstem-papers/internal/questionbank"
	"github.com/stemsi/exstem-papers/internal/response"
	"github.com/stemsi/exstem-papers/internal/validator"
)

// QuestionLibrary is the question library as seen by staff.
type QuestionLibrary interface {
	Reload(ctx context.Context) error
	Difficulties() []model.LibraryIndexItem
	Questions(id string) ([]model.Question, error)
	AddQuestion(ctx context.Context, id string, q model.Question) (model.Question, error)
	DeleteQuestion(ctx context.Context, id string, index int) (model.Question, error)
}

// LibraryHandler serves question bank maintenance.
type LibraryHandler struct {
	library QuestionLibrary
	log     zerolog.Logger
}

func NewLibraryHandler(library QuestionLibrary, log zerolog.Logger) *LibraryHandler {
	return &LibraryHandler{
		library: library,
		log:     log.With().Str("component", "library_handler").Logger(),
	}
}

// Reload godoc
// POST /api/v1/admin/library/reload
func (h *LibraryHandler) Reload(c *gin.Context) {
	if err := h.library.Reload(c.Request.Context()); err != nil {
		h.log.Error().Err(err).Msg("Question library reload failed")
		response.Fail(c, http.StatusUnprocessableEntity, response.ErrLibraryReload)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"difficulties": h.library.Difficulties()})
}

// Banks godoc
// GET /api/v1/admin/library/banks
func (h *LibraryHandler) Banks(c *gin.Context) {
	response.Success(c, http.StatusOK, gin.H{"difficulties": h.library.Difficulties()})
}

// Bank godoc
// GET /api/v1/admin/library/banks/:difficulty
func (h *LibraryHandler) Bank(c *gin.Context) {
	id := c.Param("difficulty")
	questions, err := h.library.Questions(id)
	if err != nil {
		h.failFromBankError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"difficulty": id, "questions": questions})
}

// AddQuestion godoc
// POST /api/v1/admin/library/banks/:difficulty/questions
func (h *LibraryHandler) AddQuestion(c *gin.Context) {
	var req model.Question
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	id := c.Param("difficulty")
	added, err := h.library.AddQuestion(c.Request.Context(), id, req)
	if err != nil {
		h.failFromBankError(c, err)
		return
	}
	h.log.Info().Str("difficulty", id).Str("staff_uid", staffUID(c)).Msg("Question added by staff")
	response.Success(c, http.StatusCreated, gin.H{"question": added})
}

// DeleteQuestion godoc
// DELETE /api/v1/admin/library/banks/:difficulty/questions/:index
func (h *LibraryHandler) DeleteQuestion(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	id := c.Param("difficulty")
	removed, err := h.library.DeleteQuestion(c.Request.Context(), id, index)
	if err != nil {
		h.failFromBankError(c, err)
		return
	}
	h.log.Info().Str("difficulty", id).Int("index", index).Str("staff_uid", staffUID(c)).Msg("Question removed by staff")
	response.Success(c, http.StatusOK, gin.H{"question": removed})
}

func (h *LibraryHandler) failFromBankError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, questionbank.ErrUnknownDifficulty):
		response.Fail(c, http.StatusNotFound, response.ErrUnknownDifficulty)
	case errors.Is(err, questionbank.ErrHybridBank):
		response.Fail(c, http.StatusConflict, response.ErrHybridBank)
	case errors.Is(err, questionbank.ErrQuestionIndex):
		response.Fail(c, http.StatusNotFound, response.ErrQuestionIndex)
	case errors.Is(err, questionbank.ErrInvalidBank):
		response.FailWithFields(c, http.StatusUnprocessableEntity, response.ErrInvalidQuestion,
			map[string]string{"detail": err.Error()})
	default:
		h.log.Error().Err(err).Msg("Question bank update failed")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}

func staffUID(c *gin.Context) string {
	if claims := middleware.GetClaims(c); claims != nil {
		return claims.UserUID
	}
	return ""
}
