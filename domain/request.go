package domain

// ChatActionMessage is the only chat action the backend currently accepts.
const ChatActionMessage = "message"

// ChatRequest is the body of one outbound chat request. SessionID is null
// until the backend assigns one via a session event; afterwards it is echoed
// on every request of the conversation.
type ChatRequest struct {
	SessionID *string   `json:"session_id"`
	Message   string    `json:"message"`
	Mentions  []Mention `json:"mentions"`
	Action    string    `json:"action"`
}

// NewChatRequest builds a chat request for the given session and text. An
// empty sessionID marshals as null, which tells the backend to start a new
// conversation.
func NewChatRequest(sessionID, message string, mentions []Mention) *ChatRequest {
	req := &ChatRequest{
		Message:  message,
		Mentions: mentions,
		Action:   ChatActionMessage,
	}
	if req.Mentions == nil {
		req.Mentions = []Mention{}
	}
	if sessionID != "" {
		req.SessionID = &sessionID
	}
	return req
}
