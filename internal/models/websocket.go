package models

type MessageType string

// Client -> server frame types.
const (
	MessageTypeJoin    MessageType = "join"
	MessageTypeSend    MessageType = "message"
	MessageTypeTyping  MessageType = "typing"
	MessageTypeHistory MessageType = "history"
)

// Server -> client frame types. message, typing and history reuse the
// client-side names.
const (
	MessageTypePresenceUpdate MessageType = "presence_update"
	MessageTypeError          MessageType = "error"
)

// ClientFrame is what a connection sends over the socket.
type ClientFrame struct {
	Type MessageType `json:"type"`
	Name string      `json:"name,omitempty"`
	Text string      `json:"text,omitempty"`
}

type PresenceUpdateFrame struct {
	Type      MessageType `json:"type"`
	Users     []string    `json:"users"`
	UserCount int         `json:"user_count"`
}

type MessageFrame struct {
	Type    MessageType `json:"type"`
	Message Message     `json:"message"`
}

type TypingFrame struct {
	Type        MessageType `json:"type"`
	Name        string      `json:"name"`
	ExpiresInMS int64       `json:"expires_in_ms"`
}

type HistoryFrame struct {
	Type     MessageType `json:"type"`
	Messages []Message   `json:"messages"`
}

type ErrorFrame struct {
	Type  MessageType `json:"type"`
	Code  string      `json:"code"`
	Error string      `json:"error"`
}
