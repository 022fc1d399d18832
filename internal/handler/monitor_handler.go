package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-papers/internal/events"
	"github.com/stemsi/exstem-papers/internal/model"
	"github.com/stemsi/exstem-papers/internal/response"
	"github.com/stemsi/exstem-papers/internal/service"
)

const keepAliveInterval = 30 * time.Second

// MonitorHandler streams paper lifecycle events to staff over SSE.
type MonitorHandler struct {
	paperService *service.PaperService
	subscriber   events.Subscriber
	log          zerolog.Logger
}

// NewMonitorHandler creates a MonitorHandler. A nil subscriber disables the
// stream.
func NewMonitorHandler(paperService *service.PaperService, subscriber events.Subscriber, log zerolog.Logger) *MonitorHandler {
	return &MonitorHandler{
		paperService: paperService,
		subscriber:   subscriber,
		log:          log.With().Str("component", "monitor_handler").Logger(),
	}
}

type monitorMessage struct {
	Type  string            `json:"type"`
	Event *model.PaperEvent `json:"event,omitempty"`
	// PendingManual is the number of papers waiting for essay grading, sent
	// with the initial snapshot.
	PendingManual *int `json:"pending_manual_grading,omitempty"`
}

// MonitorSSE godoc
// GET /api/v1/admin/papers/monitor?paper_id=
func (h *MonitorHandler) MonitorSSE(c *gin.Context) {
	if h.subscriber == nil {
		response.Fail(c, http.StatusServiceUnavailable, response.ErrInternal)
		return
	}

	reqCtx := c.Request.Context()
	filter := c.Query("paper_id")

	stream, err := h.subscriber.Subscribe(reqCtx)
	if err != nil {
		h.log.Error().Err(err).Msg("Monitor subscription failed")
		response.Fail(c, http.StatusServiceUnavailable, response.ErrInternal)
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	snapshot := monitorMessage{Type: "snapshot"}
	if pending, err := h.paperService.PendingManualGrading(reqCtx, 0, 0); err == nil {
		n := len(pending)
		snapshot.PendingManual = &n
	}
	h.write(c, snapshot)

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	h.log.Info().Str("paper_id", filter).Msg("Staff attached to paper monitor")

	for {
		select {
		case <-reqCtx.Done():
			h.log.Info().Msg("Staff detached from paper monitor")
			return
		case ev, ok := <-stream:
			if !ok {
				return
			}
			if filter != "" && ev.PaperID != filter {
				continue
			}
			h.write(c, monitorMessage{Type: "event", Event: &ev})
		case <-keepAlive.C:
			h.write(c, monitorMessage{Type: "ping"})
		}
	}
}

func (h *MonitorHandler) write(c *gin.Context, msg monitorMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	c.Writer.Write([]byte("data: "))
	c.Writer.Write(data)
	c.Writer.Write([]byte("\n\n"))
	c.Writer.Flush()
}
