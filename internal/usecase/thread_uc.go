// File: internal/usecase/thread_uc.go
package usecase

import (
	"context"
	"encoding/json"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"graphql-chat-client/internal/domain"
	"graphql-chat-client/internal/domain/model"
	"graphql-chat-client/internal/domain/ports/adapter"
	"graphql-chat-client/internal/infra/graphql"
)

// Compile-time check
var _ ChatThreadUseCase = (*chatThreadUC)(nil)

// BotMode selects how a bot reply is produced after a user message.
type BotMode int

const (
	// BotLocal schedules a locally computed reply after a randomized
	// thinking delay and inserts it as a bot message.
	BotLocal BotMode = iota
	// BotAction invokes the backend sendMessage action; the backend inserts
	// the bot message out of band and it arrives via the live subscription.
	BotAction
)

type ChatThreadUseCase interface {
	// ListMessages returns the thread oldest-first. A malformed chat id is
	// rejected before any network call.
	ListMessages(ctx context.Context, chatID string) ([]model.Message, error)
	// SendMessage inserts the user message, then triggers the bot reply.
	// Blank text and overlapping sends are rejected locally.
	SendMessage(ctx context.Context, chatID, text string) error
	// IsSending reports the typing/sending flag: true from the moment a send
	// is accepted until the bot reply has been handled.
	IsSending() bool
	// StartLive subscribes to the thread; pushed snapshots replace the
	// cached message list wholesale.
	StartLive(ctx context.Context, chatID string) (stop func(), err error)
	// WatchThread fires on every cached-thread change with the decoded
	// messages; grew is true when the collection got longer, which is the
	// UI's cue to scroll to the newest entry.
	WatchThread(chatID string, fn func(msgs []model.Message, grew bool)) (unwatch func(), err error)
}

type chatThreadUC struct {
	cache     *graphql.Cache
	client    adapter.GraphQLClient
	responder adapter.Responder
	mode      BotMode
	minDelay  time.Duration
	maxDelay  time.Duration
	log       *zerolog.Logger

	mu       sync.Mutex
	sending  bool
	activeID string // chat the in-flight send belongs to; stale replies are dropped
	rnd      *rand.Rand
	lastLen  map[string]int
}

func NewChatThreadUseCase(cache *graphql.Cache, client adapter.GraphQLClient, responder adapter.Responder, mode BotMode, minDelay, maxDelay time.Duration, logger *zerolog.Logger) *chatThreadUC {
	l := logger.With().Str("component", "ChatThreadUC").Logger()
	return &chatThreadUC{
		cache:     cache,
		client:    client,
		responder: responder,
		mode:      mode,
		minDelay:  minDelay,
		maxDelay:  maxDelay,
		log:       &l,
		rnd:       rand.New(rand.NewSource(time.Now().UnixNano())),
		lastLen:   make(map[string]int),
	}
}

func decodeMessages(data json.RawMessage) ([]model.Message, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var payload struct {
		Messages []model.Message `json:"messages"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, err
	}
	return payload.Messages, nil
}

func (c *chatThreadUC) ListMessages(ctx context.Context, chatID string) ([]model.Message, error) {
	if err := model.ValidateChatID(chatID); err != nil {
		return nil, err
	}
	snap, err := c.cache.Query(ctx, graphql.GetMessages(chatID))
	if err == nil {
		err = snap.Err
	}
	msgs, decErr := decodeMessages(snap.Data)
	if decErr != nil {
		return nil, decErr
	}
	model.SortMessagesAsc(msgs)
	if err != nil && len(msgs) > 0 {
		return msgs, err
	}
	return msgs, err
}

func (c *chatThreadUC) SendMessage(ctx context.Context, chatID, text string) error {
	if err := model.ValidateChatID(chatID); err != nil {
		return err
	}
	text = model.CleanText(text)
	if text == "" {
		return domain.ErrEmptyMessage
	}

	c.mu.Lock()
	if c.sending {
		c.mu.Unlock()
		return domain.ErrBusy
	}
	c.sending = true
	c.activeID = chatID
	c.mu.Unlock()

	if err := c.insert(ctx, chatID, text, model.SenderUser); err != nil {
		c.clearSending()
		return err
	}

	switch c.mode {
	case BotAction:
		go c.triggerAction(chatID, text)
	default:
		go c.replyLocally(chatID, text)
	}
	return nil
}

// insert runs the message mutation and appends the confirmed row to the
// cached thread.
func (c *chatThreadUC) insert(ctx context.Context, chatID, text string, sender model.Sender) error {
	_, err := c.cache.Mutate(ctx, graphql.InsertMessage(chatID, text, string(sender)),
		graphql.WithMerge(graphql.GetMessages(chatID), func(cached, mutation json.RawMessage) json.RawMessage {
			var payload struct {
				Message model.Message `json:"insert_messages_one"`
			}
			if err := json.Unmarshal(mutation, &payload); err != nil || payload.Message.ID == "" {
				return nil
			}
			msgs, err := decodeMessages(cached)
			if err != nil {
				msgs = nil
			}
			merged, err := json.Marshal(struct {
				Messages []model.Message `json:"messages"`
			}{Messages: append(msgs, payload.Message)})
			if err != nil {
				return nil
			}
			return merged
		}),
	)
	return err
}

// triggerAction lets the backend produce the bot reply out of band.
func (c *chatThreadUC) triggerAction(chatID, text string) {
	defer c.clearSending()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := c.cache.Mutate(ctx, graphql.SendMessageAction(chatID, text)); err != nil {
		c.log.Warn().Err(err).Str("chat_id", chatID).Msg("sendMessage action failed")
	}
}

// replyLocally computes a reply after a randomized thinking delay and inserts
// it as the bot. A reply for a chat that is no longer the active send target
// is discarded rather than applied to already-gone state.
func (c *chatThreadUC) replyLocally(chatID, text string) {
	defer c.clearSending()

	c.mu.Lock()
	window := c.maxDelay - c.minDelay
	delay := c.minDelay
	if window > 0 {
		delay += time.Duration(c.rnd.Int63n(int64(window)))
	}
	c.mu.Unlock()
	time.Sleep(delay)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	reply, err := c.responder.Reply(ctx, text)
	if err != nil {
		c.log.Warn().Err(err).Str("chat_id", chatID).Msg("responder failed")
		return
	}

	c.mu.Lock()
	relevant := c.activeID == chatID
	c.mu.Unlock()
	if !relevant {
		c.log.Debug().Str("chat_id", chatID).Msg("dropping bot reply for inactive chat")
		return
	}

	if err := c.insert(ctx, chatID, reply, model.SenderBot); err != nil {
		c.log.Warn().Err(err).Str("chat_id", chatID).Msg("bot insert failed")
	}
}

func (c *chatThreadUC) clearSending() {
	c.mu.Lock()
	c.sending = false
	c.mu.Unlock()
}

func (c *chatThreadUC) IsSending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sending
}

func (c *chatThreadUC) StartLive(ctx context.Context, chatID string) (func(), error) {
	if err := model.ValidateChatID(chatID); err != nil {
		return nil, err
	}
	return c.client.Subscribe(ctx, graphql.SubscribeMessages(chatID), func(res *adapter.Result) {
		c.cache.ApplyStream(graphql.GetMessages(chatID), res)
	})
}

func (c *chatThreadUC) WatchThread(chatID string, fn func(msgs []model.Message, grew bool)) (func(), error) {
	if err := model.ValidateChatID(chatID); err != nil {
		return nil, err
	}
	unwatch := c.cache.Watch(graphql.GetMessages(chatID), func(snap graphql.Snapshot) {
		msgs, err := decodeMessages(snap.Data)
		if err != nil {
			return
		}
		model.SortMessagesAsc(msgs)
		c.mu.Lock()
		grew := len(msgs) > c.lastLen[chatID]
		c.lastLen[chatID] = len(msgs)
		c.mu.Unlock()
		fn(msgs, grew)
	})
	return unwatch, nil
}
