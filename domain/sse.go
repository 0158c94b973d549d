package domain

// SSE event kinds emitted by the chat backend. Unknown kinds are ignored by
// the interpreter so the backend can add kinds without breaking old clients.
const (
	EventSession       = "session"
	EventToken         = "token"
	EventClarification = "clarification"
	EventDraftUpdate   = "draft_update"
	EventPreview       = "preview"
	EventSubmitResult  = "submit_result"
	EventError         = "error"
	EventDone          = "done"
)

// SessionEventData is the data for a session SSE event.
type SessionEventData struct {
	SessionID string `json:"session_id"`
}

// TokenEventData is the data for a token SSE event.
type TokenEventData struct {
	Content string `json:"content"`
}

// ErrorEventData is the data for an error SSE event.
type ErrorEventData struct {
	Message string `json:"message"`
}
