package graphql

import (
	"testing"

	"graphql-chat-client/internal/domain/ports/adapter"
)

func TestCacheKey(t *testing.T) {
	if got := CacheKey(GetChats()); got != "GetChats" {
		t.Fatalf("variable-free key %q", got)
	}

	a := CacheKey(GetMessages("chat-1"))
	b := CacheKey(GetMessages("chat-1"))
	other := CacheKey(GetMessages("chat-2"))
	if a != b {
		t.Fatalf("equal operations keyed differently: %q vs %q", a, b)
	}
	if a == other {
		t.Fatalf("different variables collided on %q", a)
	}

	// Same variables regardless of insertion order.
	x := adapter.Operation{Name: "Op", Variables: map[string]any{"a": 1, "b": 2}}
	y := adapter.Operation{Name: "Op", Variables: map[string]any{"b": 2, "a": 1}}
	if CacheKey(x) != CacheKey(y) {
		t.Fatal("map ordering leaked into the cache key")
	}
}

func TestAsQuery(t *testing.T) {
	q, ok := AsQuery(SubscribeChats())
	if !ok || q.Name != "GetChats" || q.Kind != adapter.KindQuery {
		t.Fatalf("SubscribeChats twin: ok=%v name=%q kind=%q", ok, q.Name, q.Kind)
	}

	sub := SubscribeMessages("chat-1")
	q, ok = AsQuery(sub)
	if !ok || q.Name != "GetMessages" || q.Kind != adapter.KindQuery {
		t.Fatalf("SubscribeMessages twin: ok=%v name=%q kind=%q", ok, q.Name, q.Kind)
	}
	if q.Variables["chat_id"] != "chat-1" {
		t.Fatalf("twin lost variables: %v", q.Variables)
	}
	// The twin and the subscription's cache target must agree.
	if CacheKey(q) != CacheKey(GetMessages("chat-1")) {
		t.Fatal("twin keys diverge from the query the cache stores under")
	}

	if _, ok := AsQuery(CreateChat("x")); ok {
		t.Fatal("mutations have no polling twin")
	}
}
