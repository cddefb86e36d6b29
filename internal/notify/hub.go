package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

const (
	sendBuffer = 32
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// UserTopic is the topic a user's sockets are subscribed to.
func UserTopic(userID string) string {
	return "user:" + userID
}

// client is one websocket connection.
type client struct {
	id    string
	topic string
	send  chan []byte
}

// Hub tracks connected sockets by topic and fans realtime notifications out
// to them.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*client]struct{}

	upgrader websocket.Upgrader
}

// NewHub creates a hub. allowedOrigins follows the CORS config; "*" or an
// empty list accepts any origin.
func NewHub(allowedOrigins []string) *Hub {
	h := &Hub{clients: make(map[string]map[*client]struct{})}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return h
}

func originChecker(allowed []string) func(*http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || len(set) == 0 || set[origin]
	}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[c.topic] == nil {
		h.clients[c.topic] = make(map[*client]struct{})
	}
	h.clients[c.topic][c] = struct{}{}
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs, ok := h.clients[c.topic]
	if !ok {
		return
	}
	if _, ok := subs[c]; !ok {
		return
	}
	delete(subs, c)
	if len(subs) == 0 {
		delete(h.clients, c.topic)
	}
	close(c.send)
}

// Broadcast queues data for every socket on topic and returns how many
// received it. Slow sockets with a full buffer are skipped.
func (h *Hub) Broadcast(topic string, data []byte) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := 0
	for c := range h.clients[topic] {
		select {
		case c.send <- data:
			n++
		default:
		}
	}
	return n
}

// Notify implements Notifier for the realtime channel. A user with no open
// socket is ErrNoRecipient.
func (h *Hub) Notify(_ context.Context, n Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return eris.Wrap(err, "notify: marshal realtime event")
	}
	if h.Broadcast(UserTopic(n.UserID), data) == 0 {
		return ErrNoRecipient
	}
	return nil
}

// Subscribers returns the number of sockets open for a user.
func (h *Hub) Subscribers(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[UserTopic(userID)])
}

// ServeHTTP upgrades GET /ws?user_id=... and streams the user's events.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		zap.L().Debug("notify: websocket upgrade failed", zap.Error(err))
		return
	}

	c := &client{
		id:    uuid.NewString(),
		topic: UserTopic(userID),
		send:  make(chan []byte, sendBuffer),
	}
	h.register(c)

	go h.writePump(c, ws)
	go h.readPump(c, ws)
}

// readPump drains the socket so control frames are handled, and unregisters
// the client once the peer goes away.
func (h *Hub) readPump(c *client, ws *websocket.Conn) {
	defer func() {
		h.unregister(c)
		ws.Close() //nolint:errcheck
	}()

	ws.SetReadLimit(512)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *client, ws *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		ws.Close() //nolint:errcheck
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
