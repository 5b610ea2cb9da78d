// File: internal/infra/graphql/ws.go
package graphql

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"graphql-chat-client/internal/domain"
	"graphql-chat-client/internal/domain/ports/adapter"
	"graphql-chat-client/internal/infra/metrics"
)

// ConnState enumerates the streaming connection lifecycle.
type ConnState int

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
	StateClosedRetry
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosedRetry:
		return "closed-pending-retry"
	default:
		return "disconnected"
	}
}

const (
	baseBackoff      = time.Second
	maxBackoff       = 30 * time.Second
	handshakeTimeout = 10 * time.Second
	writeTimeout     = 10 * time.Second
)

// RetryDelay returns the wait before the next reconnection attempt after
// retryCount consecutive failures: min(30s, 1s * 2^retryCount).
func RetryDelay(retryCount int) time.Duration {
	if retryCount >= 5 {
		return maxBackoff
	}
	d := baseBackoff << uint(retryCount)
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

// graphql-transport-ws frames.
const (
	msgConnectionInit = "connection_init"
	msgConnectionAck  = "connection_ack"
	msgPing           = "ping"
	msgPong           = "pong"
	msgSubscribe      = "subscribe"
	msgNext           = "next"
	msgError          = "error"
	msgComplete       = "complete"
)

type wsMessage struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type streamSub struct {
	id      string
	op      adapter.Operation
	onNext  func(*adapter.Result)
	retries int // terminal subscription errors seen, drives resubscribe backoff
}

// StreamManager owns the single persistent connection shared by every live
// subscription. It connects lazily on first demand, attaches the session's
// current token as a connection parameter, retries with capped exponential
// backoff after transport failures, and tears the connection down the moment
// the session token changes so no stream keeps running under a stale
// credential.
type StreamManager struct {
	url      string
	session  adapter.SessionProvider
	log      *zerolog.Logger
	dialer   *websocket.Dialer
	unsubARC func()

	writeMu sync.Mutex // gorilla permits one concurrent writer

	mu         sync.Mutex
	state      ConnState
	conn       *websocket.Conn
	gen        uint64 // connection generation; stale readers are ignored
	boundToken string
	subs       map[string]*streamSub
	retryCount int
	retryTimer *time.Timer
	disposed   bool
}

var _ interface {
	Subscribe(ctx context.Context, op adapter.Operation, onNext func(*adapter.Result)) (func(), error)
} = (*StreamManager)(nil)

func NewStreamManager(url string, session adapter.SessionProvider, logger *zerolog.Logger) *StreamManager {
	l := logger.With().Str("component", "StreamManager").Logger()
	m := &StreamManager{
		url:     url,
		session: session,
		log:     &l,
		dialer: &websocket.Dialer{
			HandshakeTimeout: handshakeTimeout,
			Subprotocols:     []string{"graphql-transport-ws"},
		},
		subs: make(map[string]*streamSub),
	}
	m.unsubARC = session.OnAuthStateChanged(m.onAuthChanged)
	return m
}

// State reports the current lifecycle state; the UI renders "reconnecting"
// from StateClosedRetry and StateConnecting.
func (m *StreamManager) State() ConnState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Subscribe registers a live operation. The connection is created on first
// demand; a subscription arriving while a retry timer is pending waits on the
// existing schedule rather than spawning a second connection.
func (m *StreamManager) Subscribe(ctx context.Context, op adapter.Operation, onNext func(*adapter.Result)) (func(), error) {
	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		return nil, domain.ErrDisposed
	}
	sub := &streamSub{id: ulid.Make().String(), op: op, onNext: onNext}
	m.subs[sub.id] = sub
	metrics.AddActiveSubscriptions(1)

	var conn *websocket.Conn
	switch m.state {
	case StateDisconnected:
		m.startConnectLocked()
	case StateConnected:
		conn = m.conn
	}
	m.mu.Unlock()

	if conn != nil {
		if err := m.sendSubscribe(conn, sub.id, op); err != nil {
			m.log.Warn().Err(err).Str("operation", op.Name).Msg("subscribe write failed, reconnect will replay")
		}
	}

	cancel := func() { m.unsubscribe(sub) }
	return cancel, nil
}

// unsubscribe removes by subscription identity, not wire id: replays and
// error-frame recoveries remap wire ids, and the caller's cancel func must
// keep working across those remaps.
func (m *StreamManager) unsubscribe(sub *streamSub) {
	m.mu.Lock()
	cur, ok := m.subs[sub.id]
	if !ok || cur != sub {
		m.mu.Unlock()
		return
	}
	delete(m.subs, sub.id)
	metrics.AddActiveSubscriptions(-1)
	id := sub.id
	conn := m.conn
	connected := m.state == StateConnected
	m.mu.Unlock()

	if connected && conn != nil {
		_ = m.send(conn, wsMessage{ID: id, Type: msgComplete})
	}
}

// Dispose closes the connection, cancels any pending retry and detaches from
// the session. The manager is unusable afterwards.
func (m *StreamManager) Dispose() {
	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		return
	}
	m.disposed = true
	m.gen++
	if m.retryTimer != nil {
		m.retryTimer.Stop()
		m.retryTimer = nil
	}
	conn := m.conn
	m.conn = nil
	m.setStateLocked(StateDisconnected)
	m.mu.Unlock()

	if conn != nil {
		if err := conn.Close(); err != nil {
			m.log.Warn().Err(err).Msg("close on dispose failed")
		}
	}
	if m.unsubARC != nil {
		m.unsubARC()
	}
	m.log.Info().Msg("stream manager disposed")
}

// onAuthChanged implements the credential guarantee: the bound connection is
// discarded immediately, never allowed to drain naturally, and the next
// subscription demand recreates it with the then-current token.
func (m *StreamManager) onAuthChanged() {
	m.mu.Lock()
	if m.disposed || (m.state == StateDisconnected && m.retryTimer == nil) {
		m.mu.Unlock()
		return
	}
	m.gen++
	if m.retryTimer != nil {
		m.retryTimer.Stop()
		m.retryTimer = nil
	}
	conn := m.conn
	m.conn = nil
	m.boundToken = ""
	m.retryCount = 0
	m.setStateLocked(StateDisconnected)
	demand := len(m.subs) > 0
	if demand {
		m.startConnectLocked()
	}
	m.mu.Unlock()

	metrics.IncAuthDisposal()
	if conn != nil {
		_ = conn.Close()
	}
	m.log.Info().Bool("reconnecting", demand).Msg("auth changed, connection disposed")
}

// startConnectLocked moves to connecting and launches the dial goroutine.
// Callers must hold m.mu.
func (m *StreamManager) startConnectLocked() {
	m.setStateLocked(StateConnecting)
	m.gen++
	go m.connect(m.gen)
}

func (m *StreamManager) connect(gen uint64) {
	ctx, cancel := context.WithTimeout(context.Background(), handshakeTimeout)
	token, err := m.session.AccessToken(ctx)
	cancel()
	if err != nil {
		m.log.Warn().Err(err).Msg("token fetch failed, connecting uncredentialed")
		token = ""
	}

	conn, resp, err := m.dialer.Dial(m.url, http.Header{})
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		m.scheduleRetry(gen, fmt.Errorf("dial: %w", err))
		return
	}

	init := wsMessage{Type: msgConnectionInit}
	if token != "" {
		payload, _ := json.Marshal(map[string]any{
			"headers": map[string]string{"Authorization": "Bearer " + token},
		})
		init.Payload = payload
	}
	if err := m.send(conn, init); err != nil {
		conn.Close()
		m.scheduleRetry(gen, fmt.Errorf("connection_init: %w", err))
		return
	}

	conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	var ack wsMessage
	if err := conn.ReadJSON(&ack); err != nil || ack.Type != msgConnectionAck {
		conn.Close()
		if err == nil {
			err = fmt.Errorf("expected %s, got %s", msgConnectionAck, ack.Type)
		}
		m.scheduleRetry(gen, fmt.Errorf("handshake: %w", err))
		return
	}
	conn.SetReadDeadline(time.Time{})

	m.mu.Lock()
	if m.disposed || gen != m.gen {
		m.mu.Unlock()
		conn.Close()
		return
	}
	m.conn = conn
	m.boundToken = token
	m.retryCount = 0
	m.setStateLocked(StateConnected)
	// Replays go out under fresh wire ids: the old ids belonged to the dead
	// connection and a terminated id cannot be reused on the wire.
	replay := make([]*streamSub, 0, len(m.subs))
	for _, s := range m.subs {
		replay = append(replay, s)
	}
	m.subs = make(map[string]*streamSub, len(replay))
	for _, s := range replay {
		s.id = ulid.Make().String()
		m.subs[s.id] = s
	}
	m.mu.Unlock()

	m.log.Info().Int("subscriptions", len(replay)).Msg("connected")
	for _, s := range replay {
		if err := m.sendSubscribe(conn, s.id, s.op); err != nil {
			m.log.Warn().Err(err).Str("operation", s.op.Name).Msg("replay failed")
		}
	}

	m.readLoop(gen, conn)
}

func (m *StreamManager) readLoop(gen uint64, conn *websocket.Conn) {
	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			m.scheduleRetry(gen, err)
			return
		}
		switch msg.Type {
		case msgPing:
			_ = m.send(conn, wsMessage{Type: msgPong})
		case msgNext:
			var res adapter.Result
			if err := json.Unmarshal(msg.Payload, &res); err != nil {
				m.log.Warn().Err(err).Str("id", msg.ID).Msg("malformed next payload")
				continue
			}
			m.deliver(msg.ID, &res)
		case msgError:
			var gerrs []adapter.GraphError
			if err := json.Unmarshal(msg.Payload, &gerrs); err != nil || len(gerrs) == 0 {
				gerrs = []adapter.GraphError{{Message: "subscription error"}}
			}
			m.deliver(msg.ID, &adapter.Result{Errors: gerrs})
			m.resubscribeLater(gen, msg.ID)
		case msgComplete:
			m.mu.Lock()
			if _, ok := m.subs[msg.ID]; ok {
				delete(m.subs, msg.ID)
				metrics.AddActiveSubscriptions(-1)
			}
			m.mu.Unlock()
		}
	}
}

func (m *StreamManager) deliver(id string, res *adapter.Result) {
	m.mu.Lock()
	sub, ok := m.subs[id]
	var onNext func(*adapter.Result)
	if ok {
		if len(res.Errors) == 0 {
			sub.retries = 0
		}
		onNext = sub.onNext
	}
	m.mu.Unlock()
	if onNext != nil {
		onNext(res)
	}
}

// resubscribeLater re-issues a subscription the server terminated with an
// error frame, after the same capped backoff the connection itself uses. The
// id is remapped because a terminated id cannot be reused on the wire.
func (m *StreamManager) resubscribeLater(gen uint64, id string) {
	m.mu.Lock()
	sub, ok := m.subs[id]
	if !ok {
		m.mu.Unlock()
		return
	}
	delay := RetryDelay(sub.retries)
	sub.retries++
	delete(m.subs, id)
	sub.id = ulid.Make().String()
	m.subs[sub.id] = sub
	newID := sub.id
	op := sub.op
	m.mu.Unlock()

	m.log.Warn().Str("operation", op.Name).Dur("delay", delay).Msg("subscription errored, resubscribing")
	time.AfterFunc(delay, func() {
		m.mu.Lock()
		_, still := m.subs[newID]
		conn := m.conn
		connected := m.state == StateConnected && gen == m.gen
		m.mu.Unlock()
		if still && connected && conn != nil {
			_ = m.sendSubscribe(conn, newID, op)
		}
		// Not connected: the replay on the next successful handshake covers it.
	})
}

// scheduleRetry is the single failure path for both dial errors and remote
// closes. It ignores stale generations, closes the broken connection and arms
// the backoff timer: min(30s, 1s * 2^retryCount), retries unbounded.
func (m *StreamManager) scheduleRetry(gen uint64, cause error) {
	m.mu.Lock()
	if m.disposed || gen != m.gen {
		m.mu.Unlock()
		return
	}
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
	delay := RetryDelay(m.retryCount)
	m.retryCount++
	m.setStateLocked(StateClosedRetry)
	m.retryTimer = time.AfterFunc(delay, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.disposed || m.state != StateClosedRetry {
			return
		}
		m.retryTimer = nil
		m.startConnectLocked()
	})
	attempt := m.retryCount
	m.mu.Unlock()

	metrics.IncReconnect()
	m.log.Warn().Err(cause).Int("attempt", attempt).Dur("next_retry", delay).Msg("connection lost")
}

func (m *StreamManager) setStateLocked(s ConnState) {
	m.state = s
	metrics.SetConnectionState(int(s))
}

func (m *StreamManager) sendSubscribe(conn *websocket.Conn, id string, op adapter.Operation) error {
	payload, err := json.Marshal(struct {
		OperationName string         `json:"operationName"`
		Query         string         `json:"query"`
		Variables     map[string]any `json:"variables,omitempty"`
	}{OperationName: op.Name, Query: op.Document, Variables: op.Variables})
	if err != nil {
		return err
	}
	return m.send(conn, wsMessage{ID: id, Type: msgSubscribe, Payload: payload})
}

func (m *StreamManager) send(conn *websocket.Conn, msg wsMessage) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteJSON(msg)
}
