package model

import "time"

// EventKind names a paper lifecycle event.
type EventKind string

const (
	EventPaperCreated        EventKind = "paper.created"
	EventPaperGraded         EventKind = "paper.graded"
	EventPaperManuallyGraded EventKind = "paper.manually_graded"
	EventPaperDeleted        EventKind = "paper.deleted"
)

// PaperEvent is an audit record emitted by the paper engine.
type PaperEvent struct {
	ID         string    `json:"id"`
	PaperID    string    `json:"paper_id"`
	UserUID    string    `json:"user_uid"`
	Kind       EventKind `json:"kind"`
	Outcome    Outcome   `json:"outcome,omitempty"`
	Score      *float64  `json:"score,omitempty"`
	IPHash     string    `json:"ip_hash,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}
