package domain

import (
	"strings"
	"time"
)

// Role identifies who authored a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// ChatMessage is a single rendered chat message. Messages are append-only
// and owned by the UI surface once emitted.
type ChatMessage struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// ChatState is the lifecycle state carried by a chat event.
type ChatState string

const (
	ChatStateStarted   ChatState = "started"
	ChatStateStreaming ChatState = "streaming"
	ChatStateFinal     ChatState = "final"
	ChatStateError     ChatState = "error"
)

// ContentSegment is one piece of a structured message body.
type ContentSegment struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// ChatEventMessage is the message body inside a chat event or a history
// entry. Content is a list of typed segments; only text segments
// contribute to the rendered string.
type ChatEventMessage struct {
	Role      Role             `json:"role,omitempty"`
	Content   []ContentSegment `json:"content,omitempty"`
	Timestamp int64            `json:"timestamp,omitempty"` // unix millis
}

// Text concatenates the text segments of the message body in order.
func (m *ChatEventMessage) Text() string {
	if m == nil {
		return ""
	}
	var b strings.Builder
	for _, seg := range m.Content {
		if seg.Type == "text" {
			b.WriteString(seg.Text)
		}
	}
	return b.String()
}

// ChatEvent is the payload of a server-pushed "chat" event.
type ChatEvent struct {
	RunID        string            `json:"runId,omitempty"`
	SessionKey   string            `json:"sessionKey,omitempty"`
	Seq          int               `json:"seq,omitempty"`
	State        ChatState         `json:"state"`
	Message      *ChatEventMessage `json:"message,omitempty"`
	ErrorMessage string            `json:"errorMessage,omitempty"`
}
