package context

import "time"

// Role is the speaker of a prompt message as a completion provider sees it.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a model-agnostic chat message used across the context pipeline.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Sender identifies who wrote a stored history message.
type Sender string

const (
	SenderUser      Sender = "user"
	SenderAssistant Sender = "assistant"
)

// HistoryMessage is one stored chat message. IDs increase monotonically
// within a chat, so a smaller ID is always an older message.
type HistoryMessage struct {
	ID         int64
	Sender     Sender
	Text       string
	InsertedAt time.Time
}

// Role maps the sender to a prompt role. Anything that is not the user
// speaks as the assistant.
func (m HistoryMessage) Role() Role {
	if m.Sender == SenderUser {
		return RoleUser
	}
	return RoleAssistant
}
