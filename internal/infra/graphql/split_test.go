package graphql

import (
	"context"
	"testing"
	"time"

	"graphql-chat-client/internal/domain/ports/adapter"
)

func TestSplitterPollingFallback(t *testing.T) {
	exec := &fakeExec{handler: func(op adapter.Operation) (*adapter.Result, error) {
		if op.Kind != adapter.KindQuery {
			t.Errorf("poll sent a %s operation", op.Kind)
		}
		return dataResult(`{"chats":[]}`), nil
	}}
	s := NewSplitter(exec, nil, 30*time.Millisecond, nopLogger())

	results := make(chan *adapter.Result, 16)
	cancel, err := s.Subscribe(context.Background(), SubscribeChats(), func(res *adapter.Result) {
		results <- res
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	// First result arrives without waiting a full tick, then the ticker keeps
	// refreshing.
	for i := 0; i < 3; i++ {
		select {
		case res := <-results:
			if res.Err() != nil {
				t.Fatalf("poll result %d errored: %v", i, res.Err())
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("poll result %d never arrived", i)
		}
	}
	if got := exec.callsFor("GetChats"); len(got) < 3 {
		t.Fatalf("expected repeated query-twin fetches, saw %d", len(got))
	}

	cancel()
	time.Sleep(100 * time.Millisecond)
	base := exec.callCount()
	time.Sleep(150 * time.Millisecond)
	if exec.callCount() != base {
		t.Fatal("polling continued after cancel")
	}
}

func TestSplitterRoutesExecute(t *testing.T) {
	exec := &fakeExec{handler: func(adapter.Operation) (*adapter.Result, error) {
		return dataResult(`{}`), nil
	}}
	s := NewSplitter(exec, nil, time.Second, nopLogger())
	if _, err := s.Execute(context.Background(), GetChats()); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if exec.callCount() != 1 {
		t.Fatalf("%d calls", exec.callCount())
	}
}
