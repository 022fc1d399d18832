package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-papers/internal/middleware"
	"github.com/stemsi/exstem-papers/internal/model"
	"github.com/stemsi/exstem-papers/internal/service"
	ws "github.com/stemsi/exstem-papers/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler streams autosave and submission of a single paper.
type WSHandler struct {
	paperService *service.PaperService
	log          zerolog.Logger
	upgrader     websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(paperService *service.PaperService, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		paperService: paperService,
		log:          log.With().Str("component", "ws_handler").Logger(),
		upgrader:     buildUpgrader(allowedOrigins),
	}
}

// PaperStream godoc
// WS /ws/v1/papers/:paper_id/stream
// Upgrades to WebSocket for autosave and submission of one paper.
func (h *WSHandler) PaperStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	paperID := c.Param("paper_id")
	if _, err := uuid.Parse(paperID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid paper ID"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	wsLog := h.log.With().
		Str("user_uid", claims.UserUID).
		Str("paper_id", paperID).
		Logger()
	wsLog.Info().Msg("User connected")

	ctx := c.Request.Context()
	clientIP := c.ClientIP()

	for {
		var msg ws.Request
		if err := ws.ReadJSON(conn, &msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}

		switch msg.Action {
		case ws.ActionAutosave:
			h.handleAutosave(ctx, conn, wsLog, paperID, claims.UserUID, msg)
		case ws.ActionSubmit:
			if h.handleSubmit(ctx, conn, wsLog, paperID, claims.UserUID, clientIP, msg) {
				return
			}
		case ws.ActionPing:
			ws.WriteTyped(conn, ws.PongResponse{Event: ws.EventPong})
		default:
			wsLog.Warn().Str("action", string(msg.Action)).Msg("Unknown action")
			ws.WriteError(conn, "unknown action: "+string(msg.Action))
		}
	}
}

func (h *WSHandler) handleAutosave(ctx context.Context, conn *websocket.Conn, wsLog zerolog.Logger, paperID, userUID string, msg ws.Request) {
	if len(msg.Answers) == 0 {
		ws.WriteError(conn, "answers are required")
		return
	}

	res, err := h.paperService.UpdateProgress(ctx, paperID, userUID, msg.Answers)
	if err != nil {
		wsLog.Error().Err(err).Msg("Autosave failed")
		ws.WriteError(conn, "save failed")
		return
	}
	ws.WriteTyped(conn, ws.ProgressResponse{Event: ws.EventProgress, Result: res})
}

// handleSubmit grades the paper. It reports true once the paper reached a
// submitted state and the stream should end.
func (h *WSHandler) handleSubmit(ctx context.Context, conn *websocket.Conn, wsLog zerolog.Logger, paperID, userUID, clientIP string, msg ws.Request) bool {
	res, err := h.paperService.GradeSubmission(ctx, paperID, userUID, msg.Answers, clientIP)
	if err != nil {
		wsLog.Error().Err(err).Msg("Submission failed")
		ws.WriteError(conn, "grading failed")
		return false
	}

	ws.WriteTyped(conn, ws.GradedResponse{Event: ws.EventGraded, Result: res})
	wsLog.Info().Str("outcome", string(res.Outcome)).Msg("Paper submitted over stream")

	switch res.Outcome {
	case model.OutcomePassed, model.OutcomeFailed,
		model.OutcomePendingManualGrading, model.OutcomeAlreadyGraded:
		return true
	}
	return false
}
