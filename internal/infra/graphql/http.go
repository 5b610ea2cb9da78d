// File: internal/infra/graphql/http.go
package graphql

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"graphql-chat-client/internal/domain"
	"graphql-chat-client/internal/domain/ports/adapter"
	"graphql-chat-client/internal/infra/metrics"
)

// HTTPExecutor runs one-shot operations (queries, mutations) over the
// request/response channel. The bearer token is fetched fresh on every call
// because the session may rotate it between calls. A failed token fetch does
// not abort the request; the call goes out uncredentialed and the backend's
// authorization error is surfaced to the caller.
type HTTPExecutor struct {
	url     string
	session adapter.SessionProvider
	client  *http.Client
	log     *zerolog.Logger
}

func NewHTTPExecutor(url string, session adapter.SessionProvider, logger *zerolog.Logger) *HTTPExecutor {
	l := logger.With().Str("component", "HTTPExecutor").Logger()
	return &HTTPExecutor{
		url:     url,
		session: session,
		client:  &http.Client{Timeout: 30 * time.Second},
		log:     &l,
	}
}

func (e *HTTPExecutor) Execute(ctx context.Context, op adapter.Operation) (*adapter.Result, error) {
	start := time.Now()
	res, err := e.execute(ctx, op)
	metrics.ObserveOpLatency(op.Name, float64(time.Since(start).Milliseconds()), err == nil && res.Err() == nil)
	return res, err
}

func (e *HTTPExecutor) execute(ctx context.Context, op adapter.Operation) (*adapter.Result, error) {
	reqBody := struct {
		OperationName string         `json:"operationName"`
		Query         string         `json:"query"`
		Variables     map[string]any `json:"variables,omitempty"`
	}{OperationName: op.Name, Query: op.Document, Variables: op.Variables}

	b, _ := json.Marshal(reqBody)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	if tok, err := e.session.AccessToken(ctx); err != nil {
		e.log.Warn().Err(err).Str("operation", op.Name).Msg("token fetch failed, sending uncredentialed")
	} else if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op.Name, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%s: %w", op.Name, domain.ErrUnauthorized)
	case resp.StatusCode >= 300:
		return nil, fmt.Errorf("%s: http %d", op.Name, resp.StatusCode)
	}

	var res adapter.Result
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return nil, fmt.Errorf("%s: decode: %w", op.Name, err)
	}
	return &res, nil
}
