package model

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"graphql-chat-client/internal/domain"
)

// PreviewLength bounds the chat list preview derived from the latest message.
const PreviewLength = 50

// Chat mirrors one row of the backend "chats" collection. Messages carries the
// latest-message preview window (at most one element, newest first) the chat
// list query asks for; the full thread lives in the messages collection.
type Chat struct {
	ID        string    `json:"id"`
	Title     string    `json:"title,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	Messages  []Message `json:"messages,omitempty"`
}

// LatestMessage returns the preview message, or nil when the chat is empty.
func (c *Chat) LatestMessage() *Message {
	if len(c.Messages) == 0 {
		return nil
	}
	return &c.Messages[0]
}

// Preview derives the list entry text: latest message truncated to
// PreviewLength runes with an ellipsis marker.
func (c *Chat) Preview() string {
	m := c.LatestMessage()
	if m == nil {
		return ""
	}
	runes := []rune(m.Text)
	if len(runes) <= PreviewLength {
		return m.Text
	}
	return string(runes[:PreviewLength]) + "…"
}

// ValidateChatID format-checks an identifier before it is allowed to reach the
// network or become the active selection.
func ValidateChatID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return domain.ErrInvalidChatID
	}
	return nil
}

// SortChatsDesc orders chats newest-first for display. Ties break on id so the
// ordering is stable across renders.
func SortChatsDesc(chats []Chat) {
	sort.SliceStable(chats, func(i, j int) bool {
		if !chats[i].CreatedAt.Equal(chats[j].CreatedAt) {
			return chats[i].CreatedAt.After(chats[j].CreatedAt)
		}
		return chats[i].ID > chats[j].ID
	})
}
