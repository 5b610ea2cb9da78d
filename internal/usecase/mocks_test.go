package usecase

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"

	"graphql-chat-client/internal/domain/ports/adapter"
	"graphql-chat-client/internal/infra/graphql"
)

// fakeGraph is the scripted transport for view-model tests: Execute routes to
// per-operation handlers and records every call; Subscribe hands the onNext
// callback back to the test so pushes can be driven by hand.
type fakeGraph struct {
	mu       sync.Mutex
	handlers map[string]func(op adapter.Operation) (*adapter.Result, error)
	calls    []adapter.Operation
	pushers  map[string]func(*adapter.Result)
	cancels  int
}

func newFakeGraph() *fakeGraph {
	return &fakeGraph{
		handlers: make(map[string]func(op adapter.Operation) (*adapter.Result, error)),
		pushers:  make(map[string]func(*adapter.Result)),
	}
}

func (f *fakeGraph) on(name string, h func(op adapter.Operation) (*adapter.Result, error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[name] = h
}

func (f *fakeGraph) Execute(_ context.Context, op adapter.Operation) (*adapter.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, op)
	h := f.handlers[op.Name]
	f.mu.Unlock()
	if h == nil {
		return &adapter.Result{Data: json.RawMessage(`{}`)}, nil
	}
	return h(op)
}

func (f *fakeGraph) Subscribe(_ context.Context, op adapter.Operation, onNext func(*adapter.Result)) (func(), error) {
	f.mu.Lock()
	f.pushers[op.Name] = onNext
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		f.cancels++
		f.mu.Unlock()
	}, nil
}

func (f *fakeGraph) callsFor(name string) []adapter.Operation {
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

func (f *fakeGraph) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeGraph) push(name string, res *adapter.Result) bool {
	f.mu.Lock()
	fn := f.pushers[name]
	f.mu.Unlock()
	if fn == nil {
		return false
	}
	fn(res)
	return true
}

// fakeResponder returns a canned line, optionally blocking until released.
type fakeResponder struct {
	reply string
	gate  chan struct{} // nil means answer immediately
}

func (r *fakeResponder) Reply(ctx context.Context, _ string) (string, error) {
	if r.gate != nil {
		select {
		case <-r.gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return r.reply, nil
}

func testCache(client adapter.GraphQLClient) *graphql.Cache {
	return graphql.NewCache(client, nil, testLogger())
}

func testLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}
