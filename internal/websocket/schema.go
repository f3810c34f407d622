package websocket

import "encoding/json"

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionSelect   Action = "select"
	ActionNavigate Action = "navigate"
	ActionSave     Action = "save"
	ActionSubmit   Action = "submit"
	ActionCancel   Action = "cancel"
	ActionPing     Action = "ping"
)

// RequestEnvelope is used to peek at the action before full parsing.
type RequestEnvelope struct {
	Action Action `json:"action"`
}

// SelectRequest records an option for a question.
type SelectRequest struct {
	Action   Action `json:"action"`
	Question *int   `json:"question" binding:"required,min=0"`
	Option   *int   `json:"option" binding:"required,min=0"`
}

// NavigateRequest moves the question cursor.
type NavigateRequest struct {
	Action Action `json:"action"`
	Index  *int   `json:"index" binding:"required"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventError   Event = "error"
	EventSession Event = "session"
	EventSubmit  Event = "submit"
	EventPong    Event = "pong"
)

// SessionMessage forwards a controller event published on the session channel.
type SessionMessage struct {
	Event   Event           `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// SubmitResponse answers a submit action.
type SubmitResponse struct {
	Event   Event  `json:"event"`
	Outcome string `json:"outcome"`
}

type ErrorResponse struct {
	Event   Event  `json:"event"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
