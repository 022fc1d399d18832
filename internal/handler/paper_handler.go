package handler

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-papers/internal/export"
	"github.com/stemsi/exstem-papers/internal/middleware"
	"github.com/stemsi/exstem-papers/internal/model"
	"github.com/stemsi/exstem-papers/internal/response"
	"github.com/stemsi/exstem-papers/internal/service"
	"github.com/stemsi/exstem-papers/internal/validator"
)

// PaperHandler serves the exam taker's paper endpoints.
type PaperHandler struct {
	paperService *service.PaperService
	log          zerolog.Logger
}

func NewPaperHandler(paperService *service.PaperService, log zerolog.Logger) *PaperHandler {
	return &PaperHandler{
		paperService: paperService,
		log:          log.With().Str("component", "paper_handler").Logger(),
	}
}

// Difficulties godoc
// GET /api/v1/public/difficulties
func (h *PaperHandler) Difficulties(c *gin.Context) {
	items := h.paperService.Difficulties()
	if items == nil {
		items = []model.LibraryIndexItem{}
	}
	response.Success(c, http.StatusOK, gin.H{"difficulties": items})
}

// Create godoc
// POST /api/v1/papers
func (h *PaperHandler) Create(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var req model.CreatePaperRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	paper, err := h.paperService.CreatePaper(c.Request.Context(), service.CreatePaperInput{
		UserUID:    claims.UserUID,
		Difficulty: req.Difficulty,
		Count:      req.Count,
		ClientIP:   c.ClientIP(),
	})
	if err != nil {
		h.log.Warn().Err(err).Str("user_uid", claims.UserUID).Msg("Create paper failed")
		failFromError(c, err)
		return
	}
	response.Success(c, http.StatusCreated, paper)
}

// SaveProgress godoc
// PUT /api/v1/papers/:paper_id/progress
func (h *PaperHandler) SaveProgress(c *gin.Context) {
	claims, paperID, ok := h.paperRequest(c)
	if !ok {
		return
	}

	var req model.AnswersRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	res, err := h.paperService.UpdateProgress(c.Request.Context(), paperID, claims.UserUID, req.Answers)
	if err != nil {
		failFromError(c, err)
		return
	}
	writeOutcome(c, res.Outcome, res)
}

// Submit godoc
// POST /api/v1/papers/:paper_id/submit
func (h *PaperHandler) Submit(c *gin.Context) {
	claims, paperID, ok := h.paperRequest(c)
	if !ok {
		return
	}

	var req model.AnswersRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	res, err := h.paperService.GradeSubmission(c.Request.Context(), paperID, claims.UserUID, req.Answers, c.ClientIP())
	if err != nil {
		failFromError(c, err)
		return
	}
	writeOutcome(c, res.Outcome, res)
}

// History godoc
// GET /api/v1/papers/history?format=csv|xlsx
func (h *PaperHandler) History(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	format := strings.ToLower(c.Query("format"))
	if format != "" && format != "json" && export.ContentType(format) == "" {
		response.Fail(c, http.StatusBadRequest, response.ErrExportFormat)
		return
	}

	items, err := h.paperService.History(c.Request.Context(), claims.UserUID)
	if err != nil {
		failFromError(c, err)
		return
	}
	if format == "" || format == "json" {
		response.Success(c, http.StatusOK, gin.H{"papers": items})
		return
	}

	var buf bytes.Buffer
	if err := export.Write(&buf, format, export.HistoryTable(items)); err != nil {
		h.log.Error().Err(err).Str("user_uid", claims.UserUID).Str("format", format).Msg("History export failed")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	filename := fmt.Sprintf("history_%s_%s.%s", claims.UserUID, time.Now().UTC().Format("20060102_150405"), format)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, export.ContentType(format), buf.Bytes())
}

// Detail godoc
// GET /api/v1/papers/:paper_id
func (h *PaperHandler) Detail(c *gin.Context) {
	claims, paperID, ok := h.paperRequest(c)
	if !ok {
		return
	}

	detail, err := h.paperService.Detail(c.Request.Context(), paperID, claims.UserUID)
	if err != nil {
		failFromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, detail)
}

// paperRequest resolves the caller and the :paper_id path parameter, writing
// the error response itself when either is missing.
func (h *PaperHandler) paperRequest(c *gin.Context) (*service.Claims, string, bool) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return nil, "", false
	}
	paperID := c.Param("paper_id")
	if _, err := uuid.Parse(paperID); err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return nil, "", false
	}
	return claims, paperID, true
}
