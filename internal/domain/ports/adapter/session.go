package adapter

import "context"

// SessionProvider abstracts the external auth service. Tokens rotate, so
// transports must fetch a fresh one per call instead of caching it.
type SessionProvider interface {
	// AccessToken returns the current token, or "" when signed out.
	AccessToken(ctx context.Context) (string, error)
	// UserID returns the authenticated subject, or "" when signed out.
	UserID() string
	// OnAuthStateChanged registers a callback fired on sign-in, token refresh
	// and sign-out. The returned func unregisters it.
	OnAuthStateChanged(fn func()) (unsubscribe func())
}
