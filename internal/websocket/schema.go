package websocket

import "github.com/stemsi/exstem-papers/internal/model"

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionAutosave Action = "autosave"
	ActionSubmit   Action = "submit"
	ActionPing     Action = "ping"
)

// Request is one client frame. Answers is the progress delta for autosave
// and the final answers for submit.
type Request struct {
	Action  Action        `json:"action"`
	Answers model.Answers `json:"answers,omitempty"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventError    Event = "error"
	EventProgress Event = "progress"
	EventGraded   Event = "graded"
	EventPong     Event = "pong"
)

type ProgressResponse struct {
	Event  Event                 `json:"event"`
	Result *model.ProgressResult `json:"result"`
}

type GradedResponse struct {
	Event  Event              `json:"event"`
	Result *model.GradeResult `json:"result"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
