// Package live pushes invoice snapshots to connected browsers over WebSocket.
package live

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	writeWait  = 10 * time.Second
)

// Message is the JSON envelope sent to clients.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// InitialFunc produces the first message a new client receives.
type InitialFunc func(ctx context.Context) (any, error)

type registration struct {
	conn    *websocket.Conn
	kind    string
	initial InitialFunc
}

// Hub tracks WebSocket clients and fans out published messages. All data
// frames are written from the Run loop. Only the latest unsent message of
// each type is kept, so a slow loop skips stale messages instead of losing
// the newest.
type Hub struct {
	clients    map[*websocket.Conn]bool
	register   chan registration
	unregister chan *websocket.Conn
	notify     chan struct{}
	done       chan struct{}
	mu         sync.RWMutex
	logger     zerolog.Logger
	upgrader   websocket.Upgrader

	pendingMu sync.Mutex
	pending   map[string][]byte
	kinds     []string
}

// NewHub creates a hub. Origins are checked by allowOrigin; nil allows all.
func NewHub(logger zerolog.Logger, allowOrigin func(r *http.Request) bool) *Hub {
	if allowOrigin == nil {
		allowOrigin = func(*http.Request) bool { return true }
	}
	return &Hub{
		clients:    make(map[*websocket.Conn]bool),
		register:   make(chan registration),
		unregister: make(chan *websocket.Conn),
		notify:     make(chan struct{}, 1),
		done:       make(chan struct{}),
		pending:    make(map[string][]byte),
		logger:     logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     allowOrigin,
		},
	}
}

// Run is the hub's event loop. It returns when ctx is done, closing every
// client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for conn := range h.clients {
				conn.Close()
				delete(h.clients, conn)
			}
			h.mu.Unlock()
			return

		case reg := <-h.register:
			h.mu.Lock()
			h.clients[reg.conn] = true
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug().Int("total", total).Msg("ws client connected")

			// The client is already registered, so anything published
			// while the initial message is built is delivered after it.
			if reg.initial == nil {
				continue
			}
			msg, err := h.initialMessage(ctx, reg)
			if err != nil {
				h.logger.Error().Err(err).Str("type", reg.kind).Msg("load initial ws message")
				h.drop(reg.conn)
				continue
			}
			h.write(reg.conn, msg)

		case conn := <-h.unregister:
			h.drop(conn)

		case <-h.notify:
			msgs := h.takePending()
			h.mu.RLock()
			conns := make([]*websocket.Conn, 0, len(h.clients))
			for conn := range h.clients {
				conns = append(conns, conn)
			}
			h.mu.RUnlock()
			for _, msg := range msgs {
				for _, conn := range conns {
					h.write(conn, msg)
				}
			}
		}
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Publish queues a message for every client. It never blocks; an unsent
// message of the same type is replaced.
func (h *Hub) Publish(kind string, payload any) {
	data, err := json.Marshal(Message{Type: kind, Data: payload})
	if err != nil {
		h.logger.Error().Err(err).Str("type", kind).Msg("marshal ws message")
		return
	}

	h.pendingMu.Lock()
	if _, ok := h.pending[kind]; ok {
		h.logger.Debug().Str("type", kind).Msg("ws message superseded")
	} else {
		h.kinds = append(h.kinds, kind)
	}
	h.pending[kind] = data
	h.pendingMu.Unlock()

	select {
	case h.notify <- struct{}{}:
	default:
	}
}

// takePending drains the pending messages in first-published order.
func (h *Hub) takePending() [][]byte {
	h.pendingMu.Lock()
	defer h.pendingMu.Unlock()

	msgs := make([][]byte, 0, len(h.kinds))
	for _, kind := range h.kinds {
		msgs = append(msgs, h.pending[kind])
	}
	clear(h.pending)
	h.kinds = h.kinds[:0]
	return msgs
}

// Handler upgrades the request and registers the client. When initial is
// non-nil it is called from the Run loop once the client is registered and
// its result is sent before any later broadcast.
func (h *Hub) Handler(kind string, initial InitialFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := h.upgrader.Upgrade(w, r, nil)
		if err != nil {
			h.logger.Warn().Err(err).Msg("ws upgrade failed")
			return
		}

		select {
		case h.register <- registration{conn: conn, kind: kind, initial: initial}:
		case <-h.done:
			conn.Close()
			return
		}

		go h.readPump(conn)
		go h.pingPump(conn)
	}
}

func (h *Hub) initialMessage(ctx context.Context, reg registration) ([]byte, error) {
	payload, err := reg.initial(ctx)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Message{Type: reg.kind, Data: payload})
}

// readPump keeps the read deadline fresh and detects disconnects.
func (h *Hub) readPump(conn *websocket.Conn) {
	defer func() {
		select {
		case h.unregister <- conn:
		case <-h.done:
		}
	}()

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) pingPump(conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for range ticker.C {
		h.mu.RLock()
		_, ok := h.clients[conn]
		h.mu.RUnlock()
		if !ok {
			return
		}
		if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
			return
		}
	}
}

func (h *Hub) write(conn *websocket.Conn, msg []byte) {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
		h.drop(conn)
	}
}

func (h *Hub) drop(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		conn.Close()
	}
}
