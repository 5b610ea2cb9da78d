// File: internal/devserver/store.go
package devserver

import (
	"context"
	"time"

	"graphql-chat-client/internal/domain/model"
)

// User is a dev-backend account row.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// Store is the dev backend's persistence port. Chats and messages are scoped
// to their owning user; a lookup outside that scope reports ErrNotFound.
type Store interface {
	CreateUser(ctx context.Context, email, passwordHash string) (*User, error)
	FindUserByEmail(ctx context.Context, email string) (*User, error)

	ListChats(ctx context.Context, userID string) ([]model.Chat, error)
	CreateChat(ctx context.Context, userID, title string) (*model.Chat, error)
	DeleteChat(ctx context.Context, userID, chatID string) error

	ListMessages(ctx context.Context, userID, chatID string) ([]model.Message, error)
	InsertMessage(ctx context.Context, userID, chatID, text string, sender model.Sender) (*model.Message, error)
}
