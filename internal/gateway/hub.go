// Package gateway streams refresh cycles to WebSocket clients. Each cycle is
// broadcast as one envelope; newly connected clients are primed with the
// latest cycle and the recent alert backlog.
package gateway

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"volsignal/internal/model"
)

// DefaultAlertBacklog is how many alert envelopes a new client is replayed.
const DefaultAlertBacklog = 100

// Hub manages WebSocket clients and cycle fan-out.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]bool
	latest  []byte // last cycle envelope
	seq     int64

	alerts *ReplayBuffer
	now    func() time.Time
	log    *slog.Logger
}

// NewHub creates a Hub keeping alertBacklog alert envelopes for replay.
func NewHub(alertBacklog int) *Hub {
	if alertBacklog <= 0 {
		alertBacklog = DefaultAlertBacklog
	}
	return &Hub{
		clients: make(map[*Client]bool),
		alerts:  NewReplayBuffer(alertBacklog),
		now:     time.Now,
		log:     slog.Default().With(slog.String("component", "gateway")),
	}
}

// PublishCycle broadcasts a cycle report and its alerts to every client.
func (h *Hub) PublishCycle(report model.CycleReport) {
	data := report.JSON()
	h.broadcast(kindCycle, data, false)
	for i := range report.Alerts {
		h.broadcast(kindAlert, report.Alerts[i].JSON(), true)
	}
}

// HandleWSRequest registers an upgraded connection. Alerts with seq <= sinceSeq
// are not replayed; pass 0 for the full backlog.
func (h *Hub) HandleWSRequest(conn *websocket.Conn, sinceSeq int64) {
	client := &Client{
		conn: conn,
		send: make(chan []byte, 256),
		hub:  h,
	}

	conn.EnableWriteCompression(true)

	h.mu.Lock()
	h.clients[client] = true
	count := len(h.clients)
	h.mu.Unlock()

	h.log.Info("ws client connected", slog.Int("clients", count))

	client.sendInitialState(sinceSeq)
	go client.writePump()
	go client.readPump()
}

// RemoveClient removes a client from the hub.
func (h *Hub) RemoveClient(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.clients[c] {
		return
	}
	delete(h.clients, c)
	close(c.send)
}

// ClientCount returns the number of connected WS clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Seq returns the sequence number of the last envelope broadcast.
func (h *Hub) Seq() int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.seq
}
