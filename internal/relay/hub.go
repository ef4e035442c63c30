// Package relay is the voice relay server: every voice message a peer sends
// is broadcast to every connected peer, the sender included.
package relay

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"

	"versusmatch/internal/logger"
	"versusmatch/internal/transport/wsrelay"
)

const writeTimeout = 5 * time.Second

// Observer receives relay activity. *metrics.Relay satisfies it.
type Observer interface {
	PeerJoined()
	PeerLeft()
	Message(status string)
}

type noopObserver struct{}

func (noopObserver) PeerJoined()    {}
func (noopObserver) PeerLeft()      {}
func (noopObserver) Message(string) {}

type peer struct {
	id   string
	conn *websocket.Conn
	mu   sync.Mutex
}

func (p *peer) write(payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return p.conn.WriteMessage(websocket.TextMessage, payload)
}

// Hub tracks connected peers.
type Hub struct {
	observer Observer

	mu    sync.RWMutex
	peers map[string]*peer
}

func NewHub(observer Observer) *Hub {
	if observer == nil {
		observer = noopObserver{}
	}
	return &Hub{observer: observer, peers: make(map[string]*peer)}
}

// PeerCount returns the number of connected peers.
func (h *Hub) PeerCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.peers)
}

// HandleWebSocket serves one peer until its connection drops.
func (h *Hub) HandleWebSocket(c *websocket.Conn) {
	defer func() {
		_ = c.Close()
	}()

	id := strings.TrimSpace(c.Query("userId"))
	if id == "" {
		id = uuid.NewString()
	}
	p := &peer{id: id, conn: c}

	h.add(p)
	defer h.remove(p)

	for {
		_, raw, err := c.ReadMessage()
		if err != nil {
			return
		}

		var msg wsrelay.Message
		if err := json.Unmarshal(raw, &msg); err != nil || msg.Type != wsrelay.TypeVoice || msg.AudioData == "" {
			h.observer.Message("rejected")
			continue
		}
		msg.UserID = p.id

		payload, err := json.Marshal(msg)
		if err != nil {
			h.observer.Message("rejected")
			continue
		}
		h.broadcast(payload)
		h.observer.Message("broadcast")
	}
}

func (h *Hub) add(p *peer) {
	h.mu.Lock()
	if old, ok := h.peers[p.id]; ok {
		// A reconnecting peer replaces its stale connection.
		_ = old.conn.Close()
		h.observer.PeerLeft()
	}
	h.peers[p.id] = p
	h.mu.Unlock()

	h.observer.PeerJoined()
	logger.Info("relay peer joined", "user_id", p.id)
}

func (h *Hub) remove(p *peer) {
	h.mu.Lock()
	current, ok := h.peers[p.id]
	if ok && current == p {
		delete(h.peers, p.id)
	}
	h.mu.Unlock()

	if ok && current == p {
		h.observer.PeerLeft()
		logger.Info("relay peer left", "user_id", p.id)
	}
}

func (h *Hub) broadcast(payload []byte) {
	h.mu.RLock()
	targets := make([]*peer, 0, len(h.peers))
	for _, p := range h.peers {
		targets = append(targets, p)
	}
	h.mu.RUnlock()

	for _, p := range targets {
		if err := p.write(payload); err != nil {
			logger.Warn("relay write failed", "user_id", p.id, "error", err)
			_ = p.conn.Close()
		}
	}
}
