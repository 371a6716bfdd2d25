package websocket

import "time"

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionSaveAnswer Action = "save_answer"
	ActionNavigate   Action = "navigate"
	ActionSubmit     Action = "submit"
	ActionPing       Action = "ping"
)

// Request is the single client message shape. Fields not used by the
// action are ignored. RequestID is echoed back on the reply.
type Request struct {
	Action            Action   `json:"action"`
	RequestID         string   `json:"request_id,omitempty"`
	QuestionID        string   `json:"question_id,omitempty"`
	SelectedOptionIDs []string `json:"selected_option_ids,omitempty"`
	Index             *int     `json:"index,omitempty"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventError   Event = "error"
	EventSuccess Event = "success"
	EventGraded  Event = "graded"
	EventPong    Event = "pong"
	EventTick    Event = "tick"
)

// Message is the server envelope. Data is set on success events,
// Error on EventError.
type Message struct {
	Event     Event       `json:"event"`
	RequestID string      `json:"request_id,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Error     *ErrorBody  `json:"error,omitempty"`
}

type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Tick is pushed periodically so clients can resync their countdown.
type Tick struct {
	RemainingSeconds int       `json:"remaining_seconds"`
	ServerTime       time.Time `json:"server_time"`
}
