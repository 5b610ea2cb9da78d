package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"graphql-chat-client/internal/domain"
	"graphql-chat-client/internal/domain/model"
	"graphql-chat-client/internal/domain/ports/adapter"
	"graphql-chat-client/internal/infra/graphql"
)

const (
	chatIDAlpha = "11111111-1111-1111-1111-111111111111"
	chatIDBeta  = "22222222-2222-2222-2222-222222222222"
)

func mustJSON(t *testing.T, v any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}

func chatsPayload(t *testing.T, chats ...model.Chat) json.RawMessage {
	t.Helper()
	return mustJSON(t, map[string]any{"chats": chats})
}

func TestListChatsSortedWithPreviews(t *testing.T) {
	t0 := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	fg := newFakeGraph()
	fg.on("GetChats", func(adapter.Operation) (*adapter.Result, error) {
		return &adapter.Result{Data: chatsPayload(t,
			model.Chat{ID: chatIDAlpha, Title: "older", CreatedAt: t0,
				Messages: []model.Message{{Text: "last message here"}}},
			model.Chat{ID: chatIDBeta, Title: "newer", CreatedAt: t0.Add(time.Hour)},
		)}, nil
	})
	uc := NewChatListUseCase(testCache(fg), fg, nil, testLogger())

	entries, err := uc.ListChats(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries", len(entries))
	}
	if entries[0].Chat.ID != chatIDBeta || entries[1].Chat.ID != chatIDAlpha {
		t.Fatalf("not newest-first: %s, %s", entries[0].Chat.ID, entries[1].Chat.ID)
	}
	if entries[1].Preview != "last message here" {
		t.Fatalf("preview %q", entries[1].Preview)
	}
	if entries[0].Preview != "" {
		t.Fatalf("empty chat grew a preview: %q", entries[0].Preview)
	}
}

func TestListChatsReturnsStaleDataWithError(t *testing.T) {
	fg := newFakeGraph()
	cache := testCache(fg)
	cache.ApplyStream(graphql.GetChats(), &adapter.Result{Data: chatsPayload(t,
		model.Chat{ID: chatIDAlpha, Title: "kept"})})
	fg.on("GetChats", func(adapter.Operation) (*adapter.Result, error) {
		return nil, errors.New("backend down")
	})
	uc := NewChatListUseCase(cache, fg, nil, testLogger())

	// The cached hit comes back immediately; the background refresh fails and
	// records the error without blanking the rows. Poke the entry again to
	// observe the reconciled state.
	if _, err := uc.ListChats(context.Background()); err != nil {
		t.Fatalf("hit path should not fail: %v", err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for {
		snap, ok := cache.Read(context.Background(), graphql.GetChats())
		if ok && snap.Err != nil {
			if len(snap.Data) == 0 {
				t.Fatal("error blanked cached rows")
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("background failure never recorded")
		}
		time.Sleep(10 * time.Millisecond)
	}

	entries, err := uc.ListChats(context.Background())
	if err == nil {
		t.Fatal("expected the recorded fetch error")
	}
	if len(entries) != 1 || entries[0].Chat.Title != "kept" {
		t.Fatalf("stale rows lost: %+v", entries)
	}
}

func TestCreateChatMergesToHeadAndSelects(t *testing.T) {
	t0 := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	fg := newFakeGraph()
	fg.on("CreateChat", func(op adapter.Operation) (*adapter.Result, error) {
		if op.Variables["title"] != "fresh" {
			t.Errorf("title variable %v", op.Variables["title"])
		}
		return &adapter.Result{Data: mustJSON(t, map[string]any{
			"insert_chats_one": model.Chat{ID: chatIDBeta, Title: "fresh", CreatedAt: t0.Add(time.Hour)},
		})}, nil
	})
	cache := testCache(fg)
	cache.ApplyStream(graphql.GetChats(), &adapter.Result{Data: chatsPayload(t,
		model.Chat{ID: chatIDAlpha, Title: "existing", CreatedAt: t0})})
	uc := NewChatListUseCase(cache, fg, nil, testLogger())

	ch, err := uc.CreateChat(context.Background(), "fresh")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if ch.ID != chatIDBeta {
		t.Fatalf("created id %q", ch.ID)
	}
	if uc.Selected() != chatIDBeta {
		t.Fatalf("created chat not selected, selected=%q", uc.Selected())
	}

	// The optimistic merge puts the new chat at the head without a refetch.
	snap, ok := cache.Read(context.Background(), graphql.GetChats())
	if !ok {
		t.Fatal("cached list gone")
	}
	var payload struct {
		Chats []model.Chat `json:"chats"`
	}
	if err := json.Unmarshal(snap.Data, &payload); err != nil {
		t.Fatalf("decode merged list: %v", err)
	}
	if len(payload.Chats) != 2 || payload.Chats[0].ID != chatIDBeta || payload.Chats[1].ID != chatIDAlpha {
		t.Fatalf("merged list wrong: %+v", payload.Chats)
	}
	if got := len(fg.callsFor("GetChats")); got != 0 {
		t.Fatalf("create triggered %d refetches", got)
	}
}

func TestCreateChatSingleFlight(t *testing.T) {
	fg := newFakeGraph()
	entered := make(chan struct{})
	release := make(chan struct{})
	var enteredOnce sync.Once
	// The handler runs again for the post-completion create below, so the
	// entered signal must only fire once.
	fg.on("CreateChat", func(adapter.Operation) (*adapter.Result, error) {
		enteredOnce.Do(func() { close(entered) })
		<-release
		return &adapter.Result{Data: mustJSON(t, map[string]any{
			"insert_chats_one": model.Chat{ID: chatIDAlpha},
		})}, nil
	})
	uc := NewChatListUseCase(testCache(fg), fg, nil, testLogger())

	done := make(chan error, 1)
	go func() {
		_, err := uc.CreateChat(context.Background(), "")
		done <- err
	}()
	<-entered

	if _, err := uc.CreateChat(context.Background(), ""); !errors.Is(err, domain.ErrBusy) {
		t.Fatalf("overlapping create: got %v, want ErrBusy", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first create: %v", err)
	}

	// The flag clears once the first call finishes.
	if _, err := uc.CreateChat(context.Background(), ""); err != nil {
		t.Fatalf("create after completion: %v", err)
	}
}

func TestDeleteChatGuards(t *testing.T) {
	fg := newFakeGraph()
	uc := NewChatListUseCase(testCache(fg), fg, func(string) bool { return false }, testLogger())

	if err := uc.DeleteChat(context.Background(), "not-a-uuid"); !errors.Is(err, domain.ErrInvalidChatID) {
		t.Fatalf("malformed id: got %v", err)
	}
	if err := uc.DeleteChat(context.Background(), chatIDAlpha); !errors.Is(err, domain.ErrNotConfirmed) {
		t.Fatalf("declined confirm: got %v", err)
	}
	if fg.callCount() != 0 {
		t.Fatalf("guards let %d network calls through", fg.callCount())
	}
}

func TestDeleteChatRemovesAndClearsSelection(t *testing.T) {
	fg := newFakeGraph()
	fg.on("DeleteChat", func(op adapter.Operation) (*adapter.Result, error) {
		return &adapter.Result{Data: mustJSON(t, map[string]any{
			"delete_chats_by_pk": map[string]string{"id": chatIDAlpha},
		})}, nil
	})
	cache := testCache(fg)
	cache.ApplyStream(graphql.GetChats(), &adapter.Result{Data: chatsPayload(t,
		model.Chat{ID: chatIDAlpha}, model.Chat{ID: chatIDBeta})})
	uc := NewChatListUseCase(cache, fg, func(string) bool { return true }, testLogger())
	if err := uc.Select(chatIDAlpha); err != nil {
		t.Fatalf("select: %v", err)
	}

	if err := uc.DeleteChat(context.Background(), chatIDAlpha); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if uc.Selected() != "" {
		t.Fatalf("selection still %q after deleting it", uc.Selected())
	}

	snap, _ := cache.Read(context.Background(), graphql.GetChats())
	var payload struct {
		Chats []model.Chat `json:"chats"`
	}
	if err := json.Unmarshal(snap.Data, &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(payload.Chats) != 1 || payload.Chats[0].ID != chatIDBeta {
		t.Fatalf("deleted chat still listed: %+v", payload.Chats)
	}
}

func TestDeleteChatKeepsOtherSelection(t *testing.T) {
	fg := newFakeGraph()
	fg.on("DeleteChat", func(adapter.Operation) (*adapter.Result, error) {
		return &adapter.Result{Data: mustJSON(t, map[string]any{
			"delete_chats_by_pk": map[string]string{"id": chatIDAlpha},
		})}, nil
	})
	uc := NewChatListUseCase(testCache(fg), fg, func(string) bool { return true }, testLogger())
	if err := uc.Select(chatIDBeta); err != nil {
		t.Fatalf("select: %v", err)
	}
	if err := uc.DeleteChat(context.Background(), chatIDAlpha); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if uc.Selected() != chatIDBeta {
		t.Fatalf("unrelated delete cleared selection: %q", uc.Selected())
	}
}

func TestSelectRejectsMalformedID(t *testing.T) {
	fg := newFakeGraph()
	uc := NewChatListUseCase(testCache(fg), fg, nil, testLogger())
	if err := uc.Select("zzz"); !errors.Is(err, domain.ErrInvalidChatID) {
		t.Fatalf("got %v", err)
	}
	if uc.Selected() != "" {
		t.Fatalf("rejected id still selected: %q", uc.Selected())
	}
}

func TestStartLiveAppliesPushes(t *testing.T) {
	fg := newFakeGraph()
	cache := testCache(fg)
	uc := NewChatListUseCase(cache, fg, nil, testLogger())

	stop, err := uc.StartLive(context.Background())
	if err != nil {
		t.Fatalf("start live: %v", err)
	}
	defer stop()

	changed := make(chan struct{}, 4)
	unwatch := uc.Watch(func() { changed <- struct{}{} })
	defer unwatch()

	if !fg.push("SubscribeChats", &adapter.Result{Data: chatsPayload(t, model.Chat{ID: chatIDAlpha})}) {
		t.Fatal("no subscription registered")
	}
	select {
	case <-changed:
	case <-time.After(5 * time.Second):
		t.Fatal("push never reached the watcher")
	}

	snap, ok := cache.Read(context.Background(), graphql.GetChats())
	if !ok {
		t.Fatal("pushed snapshot not cached")
	}
	var payload struct {
		Chats []model.Chat `json:"chats"`
	}
	if err := json.Unmarshal(snap.Data, &payload); err != nil || len(payload.Chats) != 1 {
		t.Fatalf("pushed list wrong: err=%v data=%s", err, snap.Data)
	}
}
