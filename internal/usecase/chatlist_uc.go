// File: internal/usecase/chatlist_uc.go
package usecase

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"

	"graphql-chat-client/internal/domain"
	"graphql-chat-client/internal/domain/model"
	"graphql-chat-client/internal/domain/ports/adapter"
	"graphql-chat-client/internal/infra/graphql"
)

// Compile-time check
var _ ChatListUseCase = (*chatListUC)(nil)

// ChatEntry is one UI-ready row of the chat list.
type ChatEntry struct {
	Chat    model.Chat
	Preview string
}

// ConfirmFunc is the yes/no decision point required before a destructive
// action; the UI supplies it.
type ConfirmFunc func(chatID string) bool

type ChatListUseCase interface {
	// ListChats returns chats newest-first with previews. When cached data
	// exists alongside a fetch error, both are returned so the UI can render
	// stale rows under an error banner.
	ListChats(ctx context.Context) ([]ChatEntry, error)
	// CreateChat issues the create mutation, merges the new chat to the head
	// of the cached list and selects it. Re-entrant calls while one is in
	// flight fail with ErrBusy.
	CreateChat(ctx context.Context, title string) (*model.Chat, error)
	// DeleteChat asks the confirm hook, deletes, removes the chat from the
	// cached list and clears the selection if it pointed at the deleted chat.
	DeleteChat(ctx context.Context, chatID string) error
	// Select guards the active selection: only well-formed ids are accepted.
	Select(chatID string) error
	Selected() string
	ClearSelection()
	// StartLive subscribes to the chat collection; pushed snapshots replace
	// the cached list wholesale.
	StartLive(ctx context.Context) (stop func(), err error)
	// Watch fires on every cached-list change (fetch, merge, push).
	Watch(fn func()) (unwatch func())
}

type chatListUC struct {
	cache  *graphql.Cache
	client adapter.GraphQLClient
	log    *zerolog.Logger

	confirm ConfirmFunc

	mu       sync.Mutex
	selected string
	creating bool
}

func NewChatListUseCase(cache *graphql.Cache, client adapter.GraphQLClient, confirm ConfirmFunc, logger *zerolog.Logger) *chatListUC {
	l := logger.With().Str("component", "ChatListUC").Logger()
	return &chatListUC{cache: cache, client: client, confirm: confirm, log: &l}
}

func decodeChats(data json.RawMessage) ([]model.Chat, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var payload struct {
		Chats []model.Chat `json:"chats"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, err
	}
	return payload.Chats, nil
}

func (c *chatListUC) ListChats(ctx context.Context) ([]ChatEntry, error) {
	snap, err := c.cache.Query(ctx, graphql.GetChats())
	if err == nil {
		// A cache hit reports success even when the last refresh failed; the
		// recorded error rides on the snapshot.
		err = snap.Err
	}
	chats, decErr := decodeChats(snap.Data)
	if decErr != nil {
		return nil, decErr
	}
	model.SortChatsDesc(chats)
	entries := make([]ChatEntry, 0, len(chats))
	for _, ch := range chats {
		entries = append(entries, ChatEntry{Chat: ch, Preview: ch.Preview()})
	}
	if err != nil && len(entries) > 0 {
		// Stale-but-present beats blank: hand the UI both.
		return entries, err
	}
	return entries, err
}

func (c *chatListUC) CreateChat(ctx context.Context, title string) (*model.Chat, error) {
	c.mu.Lock()
	if c.creating {
		c.mu.Unlock()
		return nil, domain.ErrBusy
	}
	c.creating = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.creating = false
		c.mu.Unlock()
	}()

	var created model.Chat
	res, err := c.cache.Mutate(ctx, graphql.CreateChat(title),
		graphql.WithMerge(graphql.GetChats(), func(cached, mutation json.RawMessage) json.RawMessage {
			var payload struct {
				Chat model.Chat `json:"insert_chats_one"`
			}
			if err := json.Unmarshal(mutation, &payload); err != nil || payload.Chat.ID == "" {
				return nil
			}
			created = payload.Chat
			chats, err := decodeChats(cached)
			if err != nil {
				chats = nil
			}
			merged, err := json.Marshal(struct {
				Chats []model.Chat `json:"chats"`
			}{Chats: append([]model.Chat{payload.Chat}, chats...)})
			if err != nil {
				return nil
			}
			return merged
		}),
	)
	if err != nil {
		return nil, err
	}
	if created.ID == "" {
		// Merge never saw a usable payload; decode directly.
		var payload struct {
			Chat model.Chat `json:"insert_chats_one"`
		}
		if err := json.Unmarshal(res.Data, &payload); err != nil || payload.Chat.ID == "" {
			return nil, domain.ErrNotFound
		}
		created = payload.Chat
	}

	c.mu.Lock()
	c.selected = created.ID
	c.mu.Unlock()
	c.log.Info().Str("chat_id", created.ID).Msg("chat created")
	return &created, nil
}

func (c *chatListUC) DeleteChat(ctx context.Context, chatID string) error {
	if err := model.ValidateChatID(chatID); err != nil {
		return err
	}
	if c.confirm != nil && !c.confirm(chatID) {
		return domain.ErrNotConfirmed
	}

	_, err := c.cache.Mutate(ctx, graphql.DeleteChat(chatID),
		graphql.WithMerge(graphql.GetChats(), func(cached, _ json.RawMessage) json.RawMessage {
			chats, err := decodeChats(cached)
			if err != nil {
				return nil
			}
			kept := chats[:0]
			for _, ch := range chats {
				if ch.ID != chatID {
					kept = append(kept, ch)
				}
			}
			merged, err := json.Marshal(struct {
				Chats []model.Chat `json:"chats"`
			}{Chats: kept})
			if err != nil {
				return nil
			}
			return merged
		}),
	)
	if err != nil {
		return err
	}

	c.cache.Invalidate(ctx, graphql.GetMessages(chatID))
	c.mu.Lock()
	if c.selected == chatID {
		c.selected = ""
	}
	c.mu.Unlock()
	c.log.Info().Str("chat_id", chatID).Msg("chat deleted")
	return nil
}

func (c *chatListUC) Select(chatID string) error {
	if err := model.ValidateChatID(chatID); err != nil {
		return err
	}
	c.mu.Lock()
	c.selected = chatID
	c.mu.Unlock()
	return nil
}

func (c *chatListUC) Selected() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selected
}

func (c *chatListUC) ClearSelection() {
	c.mu.Lock()
	c.selected = ""
	c.mu.Unlock()
}

func (c *chatListUC) StartLive(ctx context.Context) (func(), error) {
	return c.client.Subscribe(ctx, graphql.SubscribeChats(), func(res *adapter.Result) {
		c.cache.ApplyStream(graphql.GetChats(), res)
	})
}

func (c *chatListUC) Watch(fn func()) func() {
	return c.cache.Watch(graphql.GetChats(), func(graphql.Snapshot) { fn() })
}
