// File: internal/infra/graphql/split.go
package graphql

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"graphql-chat-client/internal/domain/ports/adapter"
)

// Splitter routes each operation to the right channel: subscriptions to the
// shared streaming connection, everything else to the request/response
// executor. When the streaming channel is disabled it degrades subscriptions
// to a refetch ticker over their one-shot twin.
type Splitter struct {
	exec         execOnly       // request/response channel
	stream       *StreamManager // nil when ws is disabled
	pollInterval time.Duration
	log          *zerolog.Logger
}

var _ adapter.GraphQLClient = (*Splitter)(nil)

type execOnly interface {
	Execute(ctx context.Context, op adapter.Operation) (*adapter.Result, error)
}

func NewSplitter(exec execOnly, stream *StreamManager, pollInterval time.Duration, logger *zerolog.Logger) *Splitter {
	l := logger.With().Str("component", "Splitter").Logger()
	return &Splitter{exec: exec, stream: stream, pollInterval: pollInterval, log: &l}
}

func (s *Splitter) Execute(ctx context.Context, op adapter.Operation) (*adapter.Result, error) {
	return s.exec.Execute(ctx, op)
}

func (s *Splitter) Subscribe(ctx context.Context, op adapter.Operation, onNext func(*adapter.Result)) (func(), error) {
	if s.stream != nil {
		return s.stream.Subscribe(ctx, op, onNext)
	}
	return s.poll(ctx, op, onNext)
}

// poll fetches the subscription's query twin on a fixed interval. It delivers
// an immediate first result so callers see data without waiting a full tick.
func (s *Splitter) poll(ctx context.Context, op adapter.Operation, onNext func(*adapter.Result)) (func(), error) {
	q, ok := AsQuery(op)
	if !ok {
		s.log.Error().Str("operation", op.Name).Msg("no query twin for polling fallback")
		return func() {}, nil
	}

	pollCtx, cancel := context.WithCancel(context.Background())
	fetch := func() {
		res, err := s.exec.Execute(pollCtx, q)
		if err != nil {
			s.log.Debug().Err(err).Str("operation", q.Name).Msg("poll fetch failed")
			return
		}
		if pollCtx.Err() != nil {
			return // cancelled mid-flight, result no longer relevant
		}
		onNext(res)
	}

	go func() {
		fetch()
		ticker := time.NewTicker(s.pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-pollCtx.Done():
				return
			case <-ticker.C:
				fetch()
			}
		}
	}()
	return cancel, nil
}
