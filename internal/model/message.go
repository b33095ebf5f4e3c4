package model

import (
	"time"

	"github.com/google/uuid"
)

type MessageSender string

const (
	SenderUser MessageSender = "user"
	SenderAI   MessageSender = "ai"
)

type MessageKind string

const (
	MessagePlain          MessageKind = "plain"
	MessageActionProposal MessageKind = "action_proposal"
	MessageActionExecuted MessageKind = "action_executed"
)

// MessageAttachment is a file the homeowner attaches to a chat message.
// Only the text pulled out of it is persisted, as part of the message body.
type MessageAttachment struct {
	Filename string `json:"filename"`
	MimeType string `json:"mime_type"`
	Data     []byte `json:"data"`
}

// IsPDF reports whether the attachment looks like a PDF document.
func (a MessageAttachment) IsPDF() bool {
	return a.MimeType == "application/pdf"
}

// Message belongs to exactly one conversation. Immutable once created, except
// the content rewrite applied when its paired action resolves.
type Message struct {
	ID             string        `json:"id"`
	ConversationID string        `json:"conversation_id"`
	Sender         MessageSender `json:"sender"`
	Kind           MessageKind   `json:"kind"`
	Content        string        `json:"content"`
	CreatedAt      time.Time     `json:"created_at"`
}

func NewMessage(conversationID string, sender MessageSender, kind MessageKind, content string) *Message {
	return &Message{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		Sender:         sender,
		Kind:           kind,
		Content:        content,
		CreatedAt:      time.Now(),
	}
}
