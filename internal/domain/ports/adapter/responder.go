package adapter

import "context"

// Responder produces automated reply text for a chat thread. Implementations
// range from a keyword heuristic to hosted model APIs; the thread view-model
// does not care which one it holds.
type Responder interface {
	Reply(ctx context.Context, text string) (string, error)
}
