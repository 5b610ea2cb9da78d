// File: internal/devserver/auth.go
package devserver

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"graphql-chat-client/internal/domain"
)

// ===== Session/JWT primitives =====

// AuthManager mints short-lived HS256 access tokens and tracks refresh
// tokens in memory. Dev-grade on purpose: the point is exercising the
// client's refresh and reconnect paths, not production auth.
type AuthManager struct {
	secret []byte
	ttl    time.Duration

	mu      sync.Mutex
	refresh map[string]string // refresh token -> user id
}

type SessionClaims struct {
	jwt.RegisteredClaims
}

func NewAuthManager(secret string, ttl time.Duration) *AuthManager {
	return &AuthManager{
		secret:  []byte(secret),
		ttl:     ttl,
		refresh: make(map[string]string),
	}
}

// Mint issues an access/refresh pair for userID.
func (a *AuthManager) Mint(userID string) (access, refresh string, err error) {
	now := time.Now()
	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
		},
	}
	access, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", "", err
	}
	refresh = uuid.NewString()
	a.mu.Lock()
	a.refresh[refresh] = userID
	a.mu.Unlock()
	return access, refresh, nil
}

// Redeem swaps a refresh token for a fresh pair, rotating the old one out.
func (a *AuthManager) Redeem(refreshToken string) (access, refresh, userID string, err error) {
	a.mu.Lock()
	userID, ok := a.refresh[refreshToken]
	if ok {
		delete(a.refresh, refreshToken)
	}
	a.mu.Unlock()
	if !ok {
		return "", "", "", domain.ErrUnauthorized
	}
	access, refresh, err = a.Mint(userID)
	return access, refresh, userID, err
}

// Parse validates a bearer token and returns the user id.
func (a *AuthManager) Parse(token string) (string, error) {
	claims := &SessionClaims{}
	tkn, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	})
	if err != nil || !tkn.Valid || claims.Subject == "" {
		return "", domain.ErrUnauthorized
	}
	return claims.Subject, nil
}

// FromRequest extracts and validates the Authorization: Bearer header.
func (a *AuthManager) FromRequest(r *http.Request) (string, error) {
	hdr := r.Header.Get("Authorization")
	if hdr == "" {
		return "", errors.New("missing token")
	}
	if !strings.HasPrefix(strings.ToLower(hdr), "bearer ") {
		return "", errors.New("malformed authorization header")
	}
	return a.Parse(strings.TrimSpace(hdr[7:]))
}

// BearerFromParams pulls the token out of graphql-ws connection params
// shaped {"headers": {"Authorization": "Bearer <t>"}}.
func BearerFromParams(headers map[string]string) string {
	v := headers["Authorization"]
	if v == "" {
		v = headers["authorization"]
	}
	if strings.HasPrefix(strings.ToLower(v), "bearer ") {
		return strings.TrimSpace(v[7:])
	}
	return ""
}

// HashPassword is a dev-grade credential hash.
func HashPassword(password string) string {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}
