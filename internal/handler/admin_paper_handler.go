package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-papers/internal/model"
	"github.com/stemsi/exstem-papers/internal/response"
	"github.com/stemsi/exstem-papers/internal/service"
	"github.com/stemsi/exstem-papers/internal/validator"
)

// AdminPaperHandler serves grading and administration of papers.
type AdminPaperHandler struct {
	paperService *service.PaperService
	log          zerolog.Logger
}

func NewAdminPaperHandler(paperService *service.PaperService, log zerolog.Logger) *AdminPaperHandler {
	return &AdminPaperHandler{
		paperService: paperService,
		log:          log.With().Str("component", "admin_paper_handler").Logger(),
	}
}

// List godoc
// GET /api/v1/admin/papers?skip=&limit=
func (h *AdminPaperHandler) List(c *gin.Context) {
	skip, limit, ok := pageParams(c)
	if !ok {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidPayload)
		return
	}

	papers, err := h.paperService.AdminListPapers(c.Request.Context(), skip, limit)
	if err != nil {
		failFromError(c, err)
		return
	}
	response.SuccessWithPagination(c, http.StatusOK, gin.H{"papers": papers},
		&response.Pagination{Skip: skip, Limit: limit, Count: len(papers)})
}

// Pending godoc
// GET /api/v1/admin/papers/pending?skip=&limit=
func (h *AdminPaperHandler) Pending(c *gin.Context) {
	skip, limit, ok := pageParams(c)
	if !ok {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidPayload)
		return
	}

	papers, err := h.paperService.PendingManualGrading(c.Request.Context(), skip, limit)
	if err != nil {
		failFromError(c, err)
		return
	}
	response.SuccessWithPagination(c, http.StatusOK, gin.H{"papers": papers},
		&response.Pagination{Skip: skip, Limit: limit, Count: len(papers)})
}

// Get godoc
// GET /api/v1/admin/papers/:paper_id
func (h *AdminPaperHandler) Get(c *gin.Context) {
	paperID, ok := paperParam(c)
	if !ok {
		return
	}

	paper, err := h.paperService.AdminPaperDetail(c.Request.Context(), paperID)
	if err != nil {
		failFromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, paper)
}

// Delete godoc
// DELETE /api/v1/admin/papers/:paper_id
func (h *AdminPaperHandler) Delete(c *gin.Context) {
	paperID, ok := paperParam(c)
	if !ok {
		return
	}

	deleted, err := h.paperService.AdminDeletePaper(c.Request.Context(), paperID)
	if err != nil {
		failFromError(c, err)
		return
	}
	if !deleted {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return
	}

	h.log.Info().Str("paper_id", paperID).Str("staff_uid", staffUID(c)).Msg("Paper deleted by staff")
	response.Success(c, http.StatusOK, gin.H{"message": "paper deleted successfully"})
}

// GradeQuestion godoc
// POST /api/v1/admin/papers/:paper_id/questions/:question_id/grade
func (h *AdminPaperHandler) GradeQuestion(c *gin.Context) {
	paperID, ok := paperParam(c)
	if !ok {
		return
	}

	var req model.GradeSubjectiveRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	res, err := h.paperService.GradeSubjective(c.Request.Context(), service.GradeSubjectiveInput{
		PaperID:    paperID,
		QuestionID: c.Param("question_id"),
		Score:      *req.Score,
		Comment:    req.Comment,
	})
	if err != nil {
		failFromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, res)
}

func paperParam(c *gin.Context) (string, bool) {
	paperID := c.Param("paper_id")
	if _, err := uuid.Parse(paperID); err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return "", false
	}
	return paperID, true
}
