// Package live streams status and incident changes to websocket clients.
package live

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/chainstatus/statuspage/internal/incident"
	"github.com/chainstatus/statuspage/internal/metrics"
	"github.com/chainstatus/statuspage/internal/processor"
	"github.com/chainstatus/statuspage/internal/status"
)

// Message types sent to clients.
const (
	TypeStatus   = "status"
	TypeIncident = "incident"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Message is one frame sent to clients.
type Message struct {
	Type      string           `json:"type"`
	Status    *StatusPayload   `json:"status,omitempty"`
	Incident  *IncidentPayload `json:"incident,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

// StatusPayload describes a service status change.
type StatusPayload struct {
	ServiceID string       `json:"serviceId"`
	Slug      string       `json:"slug"`
	Previous  status.Level `json:"previousStatus"`
	Current   status.Level `json:"status"`
}

// IncidentPayload describes an incident change.
type IncidentPayload struct {
	Event      incident.Event        `json:"event"`
	IncidentID string                `json:"incidentId"`
	Title      string                `json:"title"`
	Severity   status.Severity       `json:"severity"`
	Status     status.IncidentStatus `json:"status"`
	ServiceIDs []string              `json:"serviceIds"`
	Message    string                `json:"message,omitempty"`
}

// Config holds configuration for the Hub.
type Config struct {
	Logger zerolog.Logger

	// ClientBuffer is the number of frames queued per client before the
	// client is dropped as too slow.
	// Default: 16
	ClientBuffer int

	// CheckOrigin is passed to the websocket upgrader. Default accepts all
	// origins; the stream is public and read-only.
	CheckOrigin func(r *http.Request) bool

	Now func() time.Time
}

// Hub fans change messages out to connected clients. Publishing never
// blocks: a client that cannot keep up is disconnected.
type Hub struct {
	logger   zerolog.Logger
	buffer   int
	upgrader websocket.Upgrader
	now      func() time.Time

	mu      sync.RWMutex
	clients map[*client]struct{}
	closed  bool
	wg      sync.WaitGroup
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

// NewHub creates a new Hub.
func NewHub(cfg Config) *Hub {
	buffer := cfg.ClientBuffer
	if buffer <= 0 {
		buffer = 16
	}
	checkOrigin := cfg.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Hub{
		logger: cfg.Logger,
		buffer: buffer,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
		now:     now,
		clients: make(map[*client]struct{}),
	}
}

// ServeHTTP upgrades the request and registers the client until it
// disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := &client{conn: conn, send: make(chan []byte, h.buffer)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	count := len(h.clients)
	h.wg.Add(2)
	h.mu.Unlock()

	metrics.LiveClients.Set(float64(count))

	go h.writeLoop(c)
	go h.readLoop(c)
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// StatusChanged broadcasts a status change. It implements
// processor.StatusObserver.
func (h *Hub) StatusChanged(_ context.Context, change processor.StatusChange) {
	h.broadcast(Message{
		Type: TypeStatus,
		Status: &StatusPayload{
			ServiceID: change.ServiceID,
			Slug:      change.Slug,
			Previous:  change.Previous,
			Current:   change.Current,
		},
		Timestamp: change.At,
	})
}

// Notify broadcasts an incident change. It implements incident.Notifier.
func (h *Hub) Notify(_ context.Context, delta incident.Delta) {
	if delta.Incident == nil {
		return
	}
	serviceIDs := delta.ServiceIDs
	if serviceIDs == nil {
		serviceIDs = []string{}
	}
	h.broadcast(Message{
		Type: TypeIncident,
		Incident: &IncidentPayload{
			Event:      delta.Event,
			IncidentID: delta.Incident.ID,
			Title:      delta.Incident.Title,
			Severity:   delta.Incident.Severity,
			Status:     delta.Incident.Status,
			ServiceIDs: serviceIDs,
			Message:    delta.Message,
		},
		Timestamp: h.now().UTC(),
	})
}

// Close disconnects every client and waits for their goroutines.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		h.remove(c)
	}
	h.wg.Wait()
}

func (h *Hub) broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error().Err(err).Str("type", msg.Type).Msg("failed to encode live message")
		return
	}

	h.mu.RLock()
	var slow []*client
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.logger.Debug().Msg("dropping slow live client")
		h.remove(c)
	}
}

func (h *Hub) remove(c *client) {
	c.once.Do(func() {
		h.mu.Lock()
		delete(h.clients, c)
		count := len(h.clients)
		h.mu.Unlock()

		metrics.LiveClients.Set(float64(count))
		close(c.send)
	})
}

func (h *Hub) writeLoop(c *client) {
	defer h.wg.Done()
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				h.remove(c)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.remove(c)
				return
			}
		}
	}
}

// readLoop discards client frames and notices disconnects.
func (h *Hub) readLoop(c *client) {
	defer h.wg.Done()
	defer h.remove(c)

	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

var (
	_ processor.StatusObserver = (*Hub)(nil)
	_ incident.Notifier        = (*Hub)(nil)
)
