// File: internal/devserver/hub.go
package devserver

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// graphql-transport-ws frames (server side).
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

type wsFrame struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type wsClient struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	userID  string

	mu   sync.Mutex
	subs map[string]gqlRequest
}

func (c *wsClient) send(f wsFrame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.conn.WriteJSON(f)
}

// Hub owns the graphql-transport-ws clients. Every write to the store ends
// in Broadcast, which re-resolves each live subscription against its owner's
// scope and pushes a whole-collection snapshot. Dumb but correct, which is
// exactly what a dev backend wants.
type Hub struct {
	server   *Server
	log      *zerolog.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*wsClient]struct{}
}

func NewHub(server *Server, logger *zerolog.Logger) *Hub {
	l := logger.With().Str("component", "Hub").Logger()
	return &Hub{
		server: server,
		log:    &l,
		upgrader: websocket.Upgrader{
			Subprotocols:    []string{"graphql-transport-ws"},
			CheckOrigin:     func(*http.Request) bool { return true },
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		clients: make(map[*wsClient]struct{}),
	}
}

func (h *Hub) Handle(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	// Handshake: connection_init carries the bearer token as a connection
	// parameter; a bad token is refused before ack.
	conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	var init wsFrame
	if err := conn.ReadJSON(&init); err != nil || init.Type != msgConnectionInit {
		return
	}
	var params struct {
		Headers map[string]string `json:"headers"`
	}
	if len(init.Payload) > 0 {
		_ = json.Unmarshal(init.Payload, &params)
	}
	userID, err := h.server.auth.Parse(BearerFromParams(params.Headers))
	if err != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(4403, "forbidden"), time.Now().Add(time.Second))
		return
	}

	client := &wsClient{conn: conn, userID: userID, subs: make(map[string]gqlRequest)}
	if err := client.send(wsFrame{Type: msgConnectionAck}); err != nil {
		return
	}
	conn.SetReadDeadline(time.Time{})

	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		delete(h.clients, client)
		h.mu.Unlock()
	}()
	h.log.Debug().Str("user_id", userID).Msg("ws client connected")

	for {
		var frame wsFrame
		if err := conn.ReadJSON(&frame); err != nil {
			return
		}
		switch frame.Type {
		case msgPing:
			_ = client.send(wsFrame{Type: msgPong})
		case msgSubscribe:
			var req gqlRequest
			if err := json.Unmarshal(frame.Payload, &req); err != nil {
				_ = client.send(wsFrame{ID: frame.ID, Type: msgError,
					Payload: mustJSON([]gqlError{{Message: "malformed subscribe payload"}})})
				continue
			}
			client.mu.Lock()
			client.subs[frame.ID] = req
			client.mu.Unlock()
			h.push(client, frame.ID, req)
		case msgComplete:
			client.mu.Lock()
			delete(client.subs, frame.ID)
			client.mu.Unlock()
		}
	}
}

// push resolves one subscription and sends its snapshot.
func (h *Hub) push(c *wsClient, id string, req gqlRequest) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	res := h.server.resolve(ctx, c.userID, req)
	if err := c.send(wsFrame{ID: id, Type: msgNext, Payload: mustJSON(res)}); err != nil {
		h.log.Debug().Err(err).Msg("push failed")
	}
}

// Broadcast re-pushes every live subscription.
func (h *Hub) Broadcast() {
	h.mu.Lock()
	clients := make([]*wsClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.mu.Lock()
		subs := make(map[string]gqlRequest, len(c.subs))
		for id, req := range c.subs {
			subs[id] = req
		}
		c.mu.Unlock()
		for id, req := range subs {
			h.push(c, id, req)
		}
	}
}

// CloseAll force-closes every client connection; the demo uses it to provoke
// the client's reconnect path.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		_ = c.conn.Close()
	}
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return b
}
