package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-papers/internal/config"
	"github.com/stemsi/exstem-papers/internal/model"
	"github.com/stemsi/exstem-papers/internal/response"
	"github.com/stemsi/exstem-papers/internal/validator"
)

// PaperSettings reads and changes the runtime paper settings.
type PaperSettings interface {
	Paper() config.PaperConfig
	Update(fn func(p *config.PaperConfig)) (config.PaperConfig, error)
}

// SettingsHandler serves the runtime paper settings.
type SettingsHandler struct {
	settings PaperSettings
	log      zerolog.Logger
}

func NewSettingsHandler(settings PaperSettings, log zerolog.Logger) *SettingsHandler {
	return &SettingsHandler{
		settings: settings,
		log:      log.With().Str("component", "settings_handler").Logger(),
	}
}

// GetSettings godoc
// GET /api/v1/admin/settings
func (h *SettingsHandler) GetSettings(c *gin.Context) {
	response.Success(c, http.StatusOK, gin.H{"settings": h.settings.Paper()})
}

// UpdateSettings godoc
// PUT /api/v1/admin/settings
func (h *SettingsHandler) UpdateSettings(c *gin.Context) {
	var req model.UpdateSettingsRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	updated, err := h.settings.Update(func(p *config.PaperConfig) {
		if req.PassingScorePercentage != nil {
			p.PassingScorePercentage = *req.PassingScorePercentage
		}
		if req.CodeLengthBytes != nil {
			p.CodeLengthBytes = *req.CodeLengthBytes
		}
		if req.DefaultQuestionCount != nil {
			p.DefaultQuestionCount = *req.DefaultQuestionCount
		}
		if req.NumCorrectChoicesToSelect != nil {
			p.NumCorrectChoicesToSelect = *req.NumCorrectChoicesToSelect
		}
		if req.NumIncorrectChoicesToSelect != nil {
			p.NumIncorrectChoicesToSelect = *req.NumIncorrectChoicesToSelect
		}
	})
	if err != nil {
		if errors.Is(err, config.ErrInvalidSettings) {
			response.FailWithFields(c, http.StatusBadRequest, response.ErrInvalidSettings,
				map[string]string{"detail": err.Error()})
			return
		}
		h.log.Error().Err(err).Msg("Failed to persist settings")
		response.Fail(c, http.StatusInternalServerError, response.ErrSettingsPersist)
		return
	}

	h.log.Info().
		Str("staff_uid", staffUID(c)).
		Float64("passing_score_percentage", updated.PassingScorePercentage).
		Msg("Paper settings updated")
	response.Success(c, http.StatusOK, gin.H{
		"message":  "settings updated successfully",
		"settings": updated,
	})
}
