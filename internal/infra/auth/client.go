// File: internal/infra/auth/client.go
package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"graphql-chat-client/internal/config"
	"graphql-chat-client/internal/domain"
	"graphql-chat-client/internal/domain/ports/adapter"
	"graphql-chat-client/internal/infra/logging"
)

// Client talks to an nhost-style auth service: email/password sign-in issues
// a short-lived access token (JWT) plus a refresh token, and the client
// refreshes in the background before expiry. Every refresh, sign-in and
// sign-out fires the auth-state listeners, which is what tells the streaming
// layer to drop connections bound to the old token.
type Client struct {
	url    string
	margin time.Duration
	http   *http.Client
	log    *zerolog.Logger

	mu           sync.Mutex
	accessToken  string
	refreshToken string
	userID       string
	expiresAt    time.Time
	listeners    map[int]func()
	nextID       int
	refreshTimer *time.Timer
	closed       bool
}

var _ adapter.SessionProvider = (*Client)(nil)

func NewClient(cfg config.AuthConfig, logger *zerolog.Logger) *Client {
	l := logger.With().Str("component", "AuthClient").Logger()
	return &Client{
		url:       cfg.URL,
		margin:    cfg.RefreshMargin,
		http:      &http.Client{Timeout: 15 * time.Second},
		log:       &l,
		listeners: make(map[int]func()),
	}
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	UserID       string `json:"user_id"`
}

func (c *Client) post(ctx context.Context, path string, body any) (*tokenResponse, error) {
	b, _ := json.Marshal(body)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url+path, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("auth %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, fmt.Errorf("auth %s: %w", path, domain.ErrUnauthorized)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("auth %s: http %d", path, resp.StatusCode)
	}
	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, fmt.Errorf("auth %s: decode: %w", path, err)
	}
	return &tr, nil
}

// SignIn exchanges credentials for a session and starts the refresh cycle.
func (c *Client) SignIn(ctx context.Context, email, password string) error {
	tr, err := c.post(ctx, "/signin", map[string]string{"email": email, "password": password})
	if err != nil {
		return err
	}
	c.adopt(tr)
	c.log.Info().Str("user_id", tr.UserID).Msg("signed in")
	return nil
}

// SignUp registers a new account; the service signs it in atomically.
func (c *Client) SignUp(ctx context.Context, email, password string) error {
	tr, err := c.post(ctx, "/signup", map[string]string{"email": email, "password": password})
	if err != nil {
		return err
	}
	c.adopt(tr)
	c.log.Info().Str("user_id", tr.UserID).Msg("signed up")
	return nil
}

// SignOut clears the session and notifies listeners.
func (c *Client) SignOut() {
	c.mu.Lock()
	c.accessToken = ""
	c.refreshToken = ""
	c.userID = ""
	c.expiresAt = time.Time{}
	if c.refreshTimer != nil {
		c.refreshTimer.Stop()
		c.refreshTimer = nil
	}
	c.mu.Unlock()
	c.notify()
	c.log.Info().Msg("signed out")
}

// adopt stores a fresh token pair, schedules the next refresh and notifies.
func (c *Client) adopt(tr *tokenResponse) {
	exp := tokenExpiry(tr.AccessToken)

	c.mu.Lock()
	c.accessToken = tr.AccessToken
	c.refreshToken = tr.RefreshToken
	if tr.UserID != "" {
		c.userID = tr.UserID
	}
	c.expiresAt = exp
	if c.refreshTimer != nil {
		c.refreshTimer.Stop()
		c.refreshTimer = nil
	}
	if !c.closed && !exp.IsZero() {
		wait := time.Until(exp.Add(-c.margin))
		if wait < time.Second {
			wait = time.Second
		}
		c.refreshTimer = time.AfterFunc(wait, c.refreshNow)
	}
	c.mu.Unlock()
	c.notify()
}

func (c *Client) refreshNow() {
	c.mu.Lock()
	rt := c.refreshToken
	c.mu.Unlock()
	if rt == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	tr, err := c.post(ctx, "/token", map[string]string{"refresh_token": rt})
	if err != nil {
		c.log.Warn().Err(err).Msg("token refresh failed, retrying in 10s")
		c.mu.Lock()
		if !c.closed {
			c.refreshTimer = time.AfterFunc(10*time.Second, c.refreshNow)
		}
		c.mu.Unlock()
		return
	}
	c.log.Debug().Str("token", logging.RedactToken(tr.AccessToken)).Msg("token refreshed")
	c.adopt(tr)
}

// AccessToken returns the current token, refreshing synchronously when it has
// already expired (the background timer normally gets there first).
func (c *Client) AccessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	tok := c.accessToken
	expired := tok != "" && !c.expiresAt.IsZero() && time.Now().After(c.expiresAt)
	rt := c.refreshToken
	c.mu.Unlock()

	if !expired || rt == "" {
		return tok, nil
	}
	tr, err := c.post(ctx, "/token", map[string]string{"refresh_token": rt})
	if err != nil {
		return "", err
	}
	c.adopt(tr)
	return tr.AccessToken, nil
}

func (c *Client) UserID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID
}

func (c *Client) OnAuthStateChanged(fn func()) func() {
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	c.listeners[id] = fn
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

// Close stops the refresh cycle. It does not notify listeners.
func (c *Client) Close() {
	c.mu.Lock()
	c.closed = true
	if c.refreshTimer != nil {
		c.refreshTimer.Stop()
		c.refreshTimer = nil
	}
	c.mu.Unlock()
}

func (c *Client) notify() {
	c.mu.Lock()
	fns := make([]func(), 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// tokenExpiry reads the exp claim without verifying the signature; the client
// only schedules refreshes from it, the backend remains the authority.
func tokenExpiry(token string) time.Time {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}
