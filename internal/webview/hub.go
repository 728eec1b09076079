package webview

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/metahertz/vasili/internal/engine"
)

// BroadcastInterval is how often the Hub pushes a fresh Snapshot to every
// connected client, matching the 2s sweep interval lcalzada-xor-wmap's own
// WSManager uses for its graph broadcast.
const BroadcastInterval = 2 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// statusMessage is the wire envelope pushed to every websocket client.
type statusMessage struct {
	Type    string         `json:"type"`
	Payload engine.Snapshot `json:"payload"`
}

// Hub tracks connected websocket clients and periodically pushes the
// provider's Snapshot to all of them, grounded on
// lcalzada-xor-wmap/internal/adapters/web/websocket.WSManager.
type Hub struct {
	log      *zap.Logger
	provider StatusProvider

	mu      sync.Mutex
	clients map[*websocket.Conn]bool
}

func newHub(log *zap.Logger, provider StatusProvider) *Hub {
	return &Hub{log: log, provider: provider, clients: make(map[*websocket.Conn]bool)}
}

// Start begins the broadcast ticker; it returns when ctx is canceled.
func (h *Hub) Start(ctx context.Context) {
	ticker := time.NewTicker(BroadcastInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.broadcast()
		}
	}
}

// HandleWebSocket upgrades an incoming request and registers the connection
// until a read from the client fails (the client disconnects); frames the
// client sends are read and discarded.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		if h.log != nil {
			h.log.Warn("webview websocket upgrade failed", zap.Error(err))
		}
		return
	}

	h.mu.Lock()
	h.clients[conn] = true
	h.mu.Unlock()

	go func() {
		defer conn.Close()
		defer func() {
			h.mu.Lock()
			delete(h.clients, conn)
			h.mu.Unlock()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (h *Hub) broadcast() {
	msg := statusMessage{Type: "status", Payload: h.provider.Status()}
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			conn.Close()
			delete(h.clients, conn)
		}
	}
}
