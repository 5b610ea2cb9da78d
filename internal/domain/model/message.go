package model

import (
	"sort"
	"strings"
	"time"
)

type Sender string

const (
	SenderUser Sender = "user"
	SenderBot  Sender = "bot"
)

// Message mirrors one row of the backend "messages" collection. Messages are
// immutable once created.
type Message struct {
	ID        string    `json:"id"`
	ChatID    string    `json:"chat_id"`
	Text      string    `json:"text"`
	Sender    Sender    `json:"sender"`
	CreatedAt time.Time `json:"created_at"`
}

// CleanText trims the text the way the send path expects it; an empty result
// means the message is a no-op.
func CleanText(text string) string {
	return strings.TrimSpace(text)
}

// SortMessagesAsc orders a thread oldest-first, ties breaking on id.
func SortMessagesAsc(msgs []Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		if !msgs[i].CreatedAt.Equal(msgs[j].CreatedAt) {
			return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
		}
		return msgs[i].ID < msgs[j].ID
	})
}
