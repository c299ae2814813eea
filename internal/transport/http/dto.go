package http

import (
	"time"

	"github.com/tailmate/chat-service/internal/domain"
)

type MessageItem struct {
	ID        string          `json:"id"`
	Sender    domain.Identity `json:"sender"`
	Receiver  domain.Identity `json:"receiver"`
	Body      string          `json:"body"`
	Sent      bool            `json:"sent"`
	Read      bool            `json:"read"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

type HistoryResponse struct {
	Items      []MessageItem `json:"items"`
	NextCursor string        `json:"next_cursor,omitempty"`
}

type ConversationItem struct {
	With        domain.Identity `json:"with"`
	DisplayName string          `json:"display_name"`
	AvatarURL   string          `json:"avatar_url,omitempty"`
	LastMessage MessageItem     `json:"last_message"`
	UnreadCount int             `json:"unread_count"`
}

type ConversationsResponse struct {
	Items []ConversationItem `json:"items"`
}

type SendMessageRequest struct {
	Body string `json:"body" validate:"required"`
}

type MarkReadRequest struct {
	IDs []string `json:"ids" validate:"required,min=1,max=500,dive,required"`
}

type MarkReadResponse struct {
	Updated int `json:"updated"`
}

type PresenceResponse struct {
	Identity    domain.Identity `json:"identity"`
	Online      bool            `json:"online"`
	Connections int             `json:"connections"`
}

func toMessageItem(m domain.Message) MessageItem {
	return MessageItem{
		ID:        m.ID,
		Sender:    m.Sender,
		Receiver:  m.Receiver,
		Body:      m.Body,
		Sent:      m.Sent,
		Read:      m.Read,
		CreatedAt: m.CreatedAt.Truncate(time.Millisecond),
		UpdatedAt: m.UpdatedAt.Truncate(time.Millisecond),
	}
}
