// File: internal/devserver/postgres.go
package devserver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"graphql-chat-client/internal/domain"
	"graphql-chat-client/internal/domain/model"
)

// PostgresStore persists the dev backend's users, chats and messages.
type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ Store = (*PostgresStore)(nil)

func NewPostgresStore(ctx context.Context, url string) (*PostgresStore, error) {
	cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	pool, err := pgxpool.Connect(cctx, url)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.Connect: %w", err)
	}
	s := &PostgresStore{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) Close() { s.pool.Close() }

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS users (
  id UUID PRIMARY KEY,
  email TEXT UNIQUE NOT NULL,
  password_hash TEXT NOT NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS chats (
  id UUID PRIMARY KEY,
  user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
  title TEXT NOT NULL DEFAULT '',
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS messages (
  id UUID PRIMARY KEY,
  chat_id UUID NOT NULL REFERENCES chats(id) ON DELETE CASCADE,
  text TEXT NOT NULL,
  sender TEXT NOT NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS messages_chat_created_idx ON messages (chat_id, created_at);`
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateUser(ctx context.Context, email, passwordHash string) (*User, error) {
	const q = `
INSERT INTO users (id, email, password_hash)
VALUES (gen_random_uuid(), $1, $2)
RETURNING id, email, password_hash, created_at;`
	var u User
	err := s.pool.QueryRow(ctx, q, email, passwordHash).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, domain.ErrBusy
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return &u, nil
}

func (s *PostgresStore) FindUserByEmail(ctx context.Context, email string) (*User, error) {
	const q = `SELECT id, email, password_hash, created_at FROM users WHERE email = $1;`
	var u User
	if err := s.pool.QueryRow(ctx, q, email).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return &u, nil
}

func (s *PostgresStore) ListChats(ctx context.Context, userID string) ([]model.Chat, error) {
	const q = `
SELECT c.id, c.title, c.created_at,
       m.id, m.chat_id, m.text, m.sender, m.created_at
FROM chats c
LEFT JOIN LATERAL (
  SELECT id, chat_id, text, sender, created_at
  FROM messages WHERE chat_id = c.id
  ORDER BY created_at DESC LIMIT 1
) m ON TRUE
WHERE c.user_id = $1
ORDER BY c.created_at DESC;`
	rows, err := s.pool.Query(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	defer rows.Close()

	var out []model.Chat
	for rows.Next() {
		var ch model.Chat
		var mID, mChat, mText, mSender *string
		var mAt *time.Time
		if err := rows.Scan(&ch.ID, &ch.Title, &ch.CreatedAt, &mID, &mChat, &mText, &mSender, &mAt); err != nil {
			return nil, err
		}
		if mID != nil {
			ch.Messages = []model.Message{{
				ID: *mID, ChatID: *mChat, Text: *mText,
				Sender: model.Sender(*mSender), CreatedAt: *mAt,
			}}
		}
		out = append(out, ch)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CreateChat(ctx context.Context, userID, title string) (*model.Chat, error) {
	const q = `
INSERT INTO chats (id, user_id, title)
VALUES (gen_random_uuid(), $1, $2)
RETURNING id, title, created_at;`
	var ch model.Chat
	if err := s.pool.QueryRow(ctx, q, userID, title).Scan(&ch.ID, &ch.Title, &ch.CreatedAt); err != nil {
		return nil, fmt.Errorf("create chat: %w", err)
	}
	return &ch, nil
}

func (s *PostgresStore) DeleteChat(ctx context.Context, userID, chatID string) error {
	const q = `DELETE FROM chats WHERE id = $1 AND user_id = $2;`
	tag, err := s.pool.Exec(ctx, q, chatID, userID)
	if err != nil {
		return fmt.Errorf("delete chat: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListMessages(ctx context.Context, userID, chatID string) ([]model.Message, error) {
	if err := s.ownChat(ctx, userID, chatID); err != nil {
		return nil, err
	}
	const q = `
SELECT id, chat_id, text, sender, created_at
FROM messages WHERE chat_id = $1
ORDER BY created_at ASC;`
	rows, err := s.pool.Query(ctx, q, chatID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var out []model.Message
	for rows.Next() {
		var m model.Message
		if err := rows.Scan(&m.ID, &m.ChatID, &m.Text, &m.Sender, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *PostgresStore) InsertMessage(ctx context.Context, userID, chatID, text string, sender model.Sender) (*model.Message, error) {
	if err := s.ownChat(ctx, userID, chatID); err != nil {
		return nil, err
	}
	const q = `
INSERT INTO messages (id, chat_id, text, sender)
VALUES (gen_random_uuid(), $1, $2, $3)
RETURNING id, chat_id, text, sender, created_at;`
	var m model.Message
	err := s.pool.QueryRow(ctx, q, chatID, text, string(sender)).Scan(&m.ID, &m.ChatID, &m.Text, &m.Sender, &m.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			// chat deleted between ownership check and insert
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("insert message: %w", err)
	}
	return &m, nil
}

func (s *PostgresStore) ownChat(ctx context.Context, userID, chatID string) error {
	const q = `SELECT 1 FROM chats WHERE id = $1 AND user_id = $2;`
	var one int
	if err := s.pool.QueryRow(ctx, q, chatID, userID).Scan(&one); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrNotFound
		}
		return err
	}
	return nil
}
