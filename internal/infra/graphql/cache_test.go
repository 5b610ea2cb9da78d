package graphql

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"graphql-chat-client/internal/domain/ports/adapter"
)

// ---- fakes ----

type fakeExec struct {
	mu      sync.Mutex
	handler func(op adapter.Operation) (*adapter.Result, error)
	calls   []adapter.Operation
}

func (f *fakeExec) Execute(_ context.Context, op adapter.Operation) (*adapter.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, op)
	h := f.handler
	f.mu.Unlock()
	return h(op)
}

func (f *fakeExec) Subscribe(context.Context, adapter.Operation, func(*adapter.Result)) (func(), error) {
	return func() {}, nil
}

func (f *fakeExec) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeExec) callsFor(name string) []adapter.Operation {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []adapter.Operation
	for _, op := range f.calls {
		if op.Name == name {
			out = append(out, op)
		}
	}
	return out
}

type fakeSnapshotStore struct {
	mu      sync.Mutex
	m       map[string][]byte
	deleted []string
}

func newFakeSnapshotStore() *fakeSnapshotStore {
	return &fakeSnapshotStore{m: make(map[string][]byte)}
}

func (s *fakeSnapshotStore) Store(_ context.Context, key string, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key] = append([]byte(nil), payload...)
	return nil
}

func (s *fakeSnapshotStore) Load(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.m[key], nil
}

func (s *fakeSnapshotStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, key)
	s.deleted = append(s.deleted, key)
	return nil
}

func dataResult(payload string) *adapter.Result {
	return &adapter.Result{Data: json.RawMessage(payload)}
}

// ---- tests ----

func TestCacheQueryMissFetchesSynchronously(t *testing.T) {
	exec := &fakeExec{handler: func(adapter.Operation) (*adapter.Result, error) {
		return dataResult(`{"chats":[{"id":"c1"}]}`), nil
	}}
	c := NewCache(exec, nil, nopLogger())

	snap, err := c.Query(context.Background(), GetChats())
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if snap.Stale {
		t.Fatal("fresh fetch reported stale")
	}
	if string(snap.Data) != `{"chats":[{"id":"c1"}]}` {
		t.Fatalf("unexpected data %s", snap.Data)
	}
	if exec.callCount() != 1 {
		t.Fatalf("expected one network call, got %d", exec.callCount())
	}
}

func TestCacheQueryHitReturnsCachedThenRefreshes(t *testing.T) {
	var mu sync.Mutex
	payload := `{"chats":[{"id":"old"}]}`
	exec := &fakeExec{handler: func(adapter.Operation) (*adapter.Result, error) {
		mu.Lock()
		defer mu.Unlock()
		return dataResult(payload), nil
	}}
	c := NewCache(exec, nil, nopLogger())

	if _, err := c.Query(context.Background(), GetChats()); err != nil {
		t.Fatalf("warm-up query: %v", err)
	}

	mu.Lock()
	payload = `{"chats":[{"id":"new"}]}`
	mu.Unlock()

	fresh := make(chan Snapshot, 4)
	unwatch := c.Watch(GetChats(), func(s Snapshot) { fresh <- s })
	defer unwatch()

	snap, err := c.Query(context.Background(), GetChats())
	if err != nil {
		t.Fatalf("second query: %v", err)
	}
	if !snap.Stale || string(snap.Data) != `{"chats":[{"id":"old"}]}` {
		t.Fatalf("hit should return cached data marked stale, got stale=%v data=%s", snap.Stale, snap.Data)
	}

	// The background refresh lands on the watcher.
	select {
	case s := <-fresh:
		if s.Stale || string(s.Data) != `{"chats":[{"id":"new"}]}` {
			t.Fatalf("refresh delivered stale=%v data=%s", s.Stale, s.Data)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("background refresh never arrived")
	}
}

func TestCacheFetchErrorKeepsStaleData(t *testing.T) {
	fail := false
	exec := &fakeExec{handler: func(adapter.Operation) (*adapter.Result, error) {
		if fail {
			return nil, errors.New("network down")
		}
		return dataResult(`{"chats":[{"id":"c1"}]}`), nil
	}}
	c := NewCache(exec, nil, nopLogger())

	if _, err := c.Fetch(context.Background(), GetChats()); err != nil {
		t.Fatalf("seed fetch: %v", err)
	}
	fail = true

	snap, err := c.Fetch(context.Background(), GetChats())
	if err == nil {
		t.Fatal("expected fetch error")
	}
	if snap.Err == nil {
		t.Fatal("snapshot should carry the error")
	}
	if string(snap.Data) != `{"chats":[{"id":"c1"}]}` {
		t.Fatalf("stale data blanked by failure: %s", snap.Data)
	}
	if !snap.Stale {
		t.Fatal("data surviving a failed fetch must be marked stale")
	}
}

func TestCacheMutateWithMerge(t *testing.T) {
	exec := &fakeExec{handler: func(op adapter.Operation) (*adapter.Result, error) {
		return dataResult(`{"insert_chats_one":{"id":"c2"}}`), nil
	}}
	c := NewCache(exec, nil, nopLogger())
	c.ApplyStream(GetChats(), dataResult(`{"chats":[{"id":"c1"}]}`))

	_, err := c.Mutate(context.Background(), CreateChat("t"),
		WithMerge(GetChats(), func(cached, mutation json.RawMessage) json.RawMessage {
			return json.RawMessage(`{"chats":[{"id":"c2"},{"id":"c1"}]}`)
		}))
	if err != nil {
		t.Fatalf("mutate: %v", err)
	}

	snap, ok := c.Read(context.Background(), GetChats())
	if !ok {
		t.Fatal("merged entry missing")
	}
	if string(snap.Data) != `{"chats":[{"id":"c2"},{"id":"c1"}]}` {
		t.Fatalf("merge not applied: %s", snap.Data)
	}
}

func TestCacheMutateErrorSkipsOptions(t *testing.T) {
	exec := &fakeExec{handler: func(op adapter.Operation) (*adapter.Result, error) {
		return &adapter.Result{Errors: []adapter.GraphError{{Message: "denied"}}}, nil
	}}
	c := NewCache(exec, nil, nopLogger())
	c.ApplyStream(GetChats(), dataResult(`{"chats":[]}`))

	merged := false
	_, err := c.Mutate(context.Background(), CreateChat(""),
		WithMerge(GetChats(), func(_, _ json.RawMessage) json.RawMessage {
			merged = true
			return nil
		}))
	if err == nil {
		t.Fatal("expected backend error")
	}
	if merged {
		t.Fatal("merge ran despite mutation failure")
	}
}

func TestApplyStreamReplacesWholesale(t *testing.T) {
	c := NewCache(&fakeExec{handler: func(adapter.Operation) (*adapter.Result, error) {
		return dataResult(`{}`), nil
	}}, nil, nopLogger())

	c.ApplyStream(GetChats(), dataResult(`{"chats":[{"id":"a"},{"id":"b"}]}`))
	snap := c.ApplyStream(GetChats(), dataResult(`{"chats":[{"id":"b"}]}`))
	if string(snap.Data) != `{"chats":[{"id":"b"}]}` {
		t.Fatalf("push did not replace: %s", snap.Data)
	}

	// An errored push keeps the previous collection.
	snap = c.ApplyStream(GetChats(), &adapter.Result{Errors: []adapter.GraphError{{Message: "boom"}}})
	if string(snap.Data) != `{"chats":[{"id":"b"}]}` {
		t.Fatalf("errored push blanked data: %s", snap.Data)
	}
	if snap.Err == nil || !snap.Stale {
		t.Fatalf("errored push should mark stale with error, got stale=%v err=%v", snap.Stale, snap.Err)
	}
}

func TestWatchDeliversUpdatesInOrder(t *testing.T) {
	c := NewCache(&fakeExec{handler: func(adapter.Operation) (*adapter.Result, error) {
		return dataResult(`{}`), nil
	}}, nil, nopLogger())

	const n = 50
	done := make(chan struct{})
	var mu sync.Mutex
	var got []int
	unwatch := c.Watch(GetChats(), func(s Snapshot) {
		var payload struct {
			Seq int `json:"seq"`
		}
		if err := json.Unmarshal(s.Data, &payload); err != nil {
			t.Errorf("decode pushed snapshot: %v", err)
			return
		}
		mu.Lock()
		got = append(got, payload.Seq)
		full := len(got) == n
		mu.Unlock()
		if full {
			close(done)
		}
	})
	defer unwatch()

	// A burst of pushes must land on the watcher in application order; the
	// last delivered snapshot is the newest one.
	for i := 0; i < n; i++ {
		c.ApplyStream(GetChats(), dataResult(fmt.Sprintf(`{"seq":%d}`, i)))
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		mu.Lock()
		defer mu.Unlock()
		t.Fatalf("only %d of %d updates arrived", len(got), n)
	}
	mu.Lock()
	defer mu.Unlock()
	for i, seq := range got {
		if seq != i {
			t.Fatalf("update %d delivered out of order: got seq %d (full order %v)", i, seq, got)
		}
	}
}

func TestCachePersistsAndColdStarts(t *testing.T) {
	store := newFakeSnapshotStore()
	exec := &fakeExec{handler: func(adapter.Operation) (*adapter.Result, error) {
		return dataResult(`{"chats":[{"id":"c1"}]}`), nil
	}}
	c := NewCache(exec, store, nopLogger())
	if _, err := c.Fetch(context.Background(), GetChats()); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if _, ok := store.m[CacheKey(GetChats())]; !ok {
		t.Fatal("fetch result not persisted")
	}

	// A brand new cache backed by the same store renders before any fetch.
	cold := NewCache(exec, store, nopLogger())
	snap, ok := cold.Read(context.Background(), GetChats())
	if !ok || !snap.Stale {
		t.Fatalf("cold start read ok=%v stale=%v", ok, snap.Stale)
	}
	if string(snap.Data) != `{"chats":[{"id":"c1"}]}` {
		t.Fatalf("cold start data %s", snap.Data)
	}
}

func TestCacheInvalidate(t *testing.T) {
	store := newFakeSnapshotStore()
	c := NewCache(&fakeExec{handler: func(adapter.Operation) (*adapter.Result, error) {
		return dataResult(`{}`), nil
	}}, store, nopLogger())

	op := GetMessages("11111111-1111-1111-1111-111111111111")
	c.ApplyStream(op, dataResult(`{"messages":[{"id":"m1"}]}`))
	c.Invalidate(context.Background(), op)

	if _, ok := c.Read(context.Background(), op); ok {
		t.Fatal("entry survived invalidation")
	}
	if len(store.deleted) != 1 || store.deleted[0] != CacheKey(op) {
		t.Fatalf("persisted snapshot not deleted: %v", store.deleted)
	}
}
