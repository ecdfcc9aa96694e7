package websocket

import (
	"github.com/justinMonserrat/plop/internal/entity"
)

// Frame is one outbound server frame, discriminated by Type.
type Frame struct {
	Type           string `json:"type"`
	ConversationId string `json:"conversationId,omitempty"`
	Message        string `json:"message,omitempty"`

	Conversations []entity.ConversationSummary `json:"conversations,omitempty"`
	Messages      []entity.Message             `json:"messages,omitempty"`
	HasMore       bool                         `json:"hasMore,omitempty"`
	Notifications []entity.Notification        `json:"notifications,omitempty"`
	Unread        int                          `json:"unread,omitempty"`

	Event any `json:"event,omitempty"`
}

const (
	FrameConversations = "conversations"
	FrameMessages      = "messages"
	FrameNotifications = "notifications"
	FrameEvent         = "event"
	FrameError         = "error"
)
