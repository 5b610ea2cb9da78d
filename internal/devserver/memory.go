// File: internal/devserver/memory.go
package devserver

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"graphql-chat-client/internal/domain"
	"graphql-chat-client/internal/domain/model"
)

// MemoryStore is the default store: everything lives in process, which is
// all the dev backend needs for demos and tests.
type MemoryStore struct {
	mu       sync.Mutex
	users    map[string]*User          // by id
	byEmail  map[string]string         // email -> id
	chats    map[string]*model.Chat    // by id
	chatUser map[string]string         // chat id -> owner id
	messages map[string][]model.Message // by chat id, insertion order
	now      func() time.Time
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:    make(map[string]*User),
		byEmail:  make(map[string]string),
		chats:    make(map[string]*model.Chat),
		chatUser: make(map[string]string),
		messages: make(map[string][]model.Message),
		now:      time.Now,
	}
}

func (s *MemoryStore) CreateUser(_ context.Context, email, passwordHash string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byEmail[email]; ok {
		return nil, domain.ErrBusy
	}
	u := &User{ID: uuid.NewString(), Email: email, PasswordHash: passwordHash, CreatedAt: s.now()}
	s.users[u.ID] = u
	s.byEmail[email] = u.ID
	cp := *u
	return &cp, nil
}

func (s *MemoryStore) FindUserByEmail(_ context.Context, email string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byEmail[email]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *s.users[id]
	return &cp, nil
}

func (s *MemoryStore) ListChats(_ context.Context, userID string) ([]model.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Chat, 0, 8)
	for id, ch := range s.chats {
		if s.chatUser[id] != userID {
			continue
		}
		cp := *ch
		cp.Messages = nil
		if msgs := s.messages[id]; len(msgs) > 0 {
			cp.Messages = []model.Message{msgs[len(msgs)-1]}
		}
		out = append(out, cp)
	}
	model.SortChatsDesc(out)
	return out, nil
}

func (s *MemoryStore) CreateChat(_ context.Context, userID, title string) (*model.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := &model.Chat{ID: uuid.NewString(), Title: title, CreatedAt: s.now()}
	s.chats[ch.ID] = ch
	s.chatUser[ch.ID] = userID
	cp := *ch
	return &cp, nil
}

func (s *MemoryStore) DeleteChat(_ context.Context, userID, chatID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.chatUser[chatID] != userID {
		return domain.ErrNotFound
	}
	delete(s.chats, chatID)
	delete(s.chatUser, chatID)
	delete(s.messages, chatID)
	return nil
}

func (s *MemoryStore) ListMessages(_ context.Context, userID, chatID string) ([]model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.chatUser[chatID] != userID {
		return nil, domain.ErrNotFound
	}
	msgs := make([]model.Message, len(s.messages[chatID]))
	copy(msgs, s.messages[chatID])
	model.SortMessagesAsc(msgs)
	return msgs, nil
}

func (s *MemoryStore) InsertMessage(_ context.Context, userID, chatID, text string, sender model.Sender) (*model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.chatUser[chatID] != userID {
		return nil, domain.ErrNotFound
	}
	m := model.Message{
		ID:        uuid.NewString(),
		ChatID:    chatID,
		Text:      text,
		Sender:    sender,
		CreatedAt: s.now(),
	}
	s.messages[chatID] = append(s.messages[chatID], m)
	return &m, nil
}
