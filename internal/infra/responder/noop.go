// File: internal/infra/responder/noop.go
package responder

import (
	"context"

	"graphql-chat-client/internal/domain/ports/adapter"
)

// Noop echoes a fixed line; used where a responder is required but replies
// don't matter.
type Noop struct{}

var _ adapter.Responder = (*Noop)(nil)

func (Noop) Reply(context.Context, string) (string, error) {
	return "ok", nil
}
