package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/rotelhex/rotelhex/internal/display"
	"github.com/rotelhex/rotelhex/internal/logging"
	"github.com/rotelhex/rotelhex/internal/metrics"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 512

	// Buffered messages per client before updates are dropped
	sendBuffer = 32
)

// Message is what the hub pushes to websocket clients
type Message struct {
	Type    string      `json:"type"` // "snapshot" on connect, "update" afterwards
	Display DisplayView `json:"display"`
	At      time.Time   `json:"at"`
}

// Hub fans display updates out to websocket clients
type Hub struct {
	upgrader websocket.Upgrader
	snapshot func() display.Snapshot
	metrics  *metrics.Metrics

	mu      sync.RWMutex
	clients map[uuid.UUID]*wsClient
	closed  bool
}

// NewHub creates a hub. snapshot supplies the state sent to new clients; m
// may be nil.
func NewHub(snapshot func() display.Snapshot, m *metrics.Metrics) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		snapshot: snapshot,
		metrics:  m,
		clients:  make(map[uuid.UUID]*wsClient),
	}
}

// Notify broadcasts changed display updates. It implements display.Observer.
func (h *Hub) Notify(u display.Update) {
	if !u.Changed() {
		return
	}
	// The update carries the panel; label mode comes from the live state
	snap := h.snapshot()
	snap.Source, snap.Record = u.Source, u.Record
	snap.BasicSource, snap.BasicRecord = u.BasicSource, u.BasicRecord
	snap.PowerState = u.PowerState

	h.broadcast(Message{Type: "update", Display: viewOf(snap), At: u.At})
}

func (h *Hub) broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		logging.Error("Failed to marshal websocket message", zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		c.send(data)
	}
}

// Count returns the number of connected clients
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client and refuses new ones
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*wsClient, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
}

// ServeWS upgrades the request and streams display messages until the client
// goes away
func (h *Hub) ServeWS(c *gin.Context) {
	h.mu.RLock()
	closed := h.closed
	h.mu.RUnlock()
	if closed {
		c.AbortWithStatus(http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logging.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}

	client := &wsClient{
		id:         uuid.New(),
		conn:       conn,
		remoteAddr: c.ClientIP(),
		sendCh:     make(chan []byte, sendBuffer),
		done:       make(chan struct{}),
	}
	h.add(client)
	logging.LogConnection(client.remoteAddr, "websocket_connected")

	initial, err := json.Marshal(Message{Type: "snapshot", Display: viewOf(h.snapshot()), At: time.Now()})
	if err == nil {
		client.send(initial)
	}

	go client.writePump()
	client.readPump() // Blocks until connection closes

	h.remove(client)
	logging.LogConnection(client.remoteAddr, "websocket_closed")
}

func (h *Hub) add(c *wsClient) {
	h.mu.Lock()
	h.clients[c.id] = c
	n := len(h.clients)
	h.mu.Unlock()
	if h.metrics != nil {
		h.metrics.WebSocketClients.Set(float64(n))
	}
}

func (h *Hub) remove(c *wsClient) {
	h.mu.Lock()
	delete(h.clients, c.id)
	n := len(h.clients)
	h.mu.Unlock()
	c.close()
	if h.metrics != nil {
		h.metrics.WebSocketClients.Set(float64(n))
	}
}

// wsClient is one websocket subscriber
type wsClient struct {
	id         uuid.UUID
	conn       *websocket.Conn
	remoteAddr string
	sendCh     chan []byte
	done       chan struct{}
	closeOnce  sync.Once
}

// send queues data, dropping it when the client is not keeping up
func (c *wsClient) send(data []byte) {
	select {
	case c.sendCh <- data:
	case <-c.done:
	default:
		logging.Debug("Dropping websocket message, client too slow",
			zap.String("client", c.id.String()),
		)
	}
}

func (c *wsClient) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// readPump discards client messages; it exists to process pongs and notice
// disconnects
func (c *wsClient) readPump() {
	defer c.close()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logging.Info("WebSocket read error",
					zap.String("remote_addr", c.remoteAddr),
					zap.Error(err),
				)
			}
			return
		}
		logging.LogWebSocketMessage(c.remoteAddr, "received", msgType, data)
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case data := <-c.sendCh:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
			logging.LogWebSocketMessage(c.remoteAddr, "sent", websocket.TextMessage, data)

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}
