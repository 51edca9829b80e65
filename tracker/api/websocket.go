package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/loredb-bench/tracker/types"
)

// WSMessageType represents different types of WebSocket messages
type WSMessageType string

const (
	WSMessageTypeConnection WSMessageType = "connection"
	WSMessageTypePing       WSMessageType = "ping"
	WSMessageTypePong       WSMessageType = "pong"

	WSMessageTypeNewEntry      WSMessageType = "new_entry"
	WSMessageTypeAlertDetected WSMessageType = "alert_detected"
)

// WSMessage represents a WebSocket message structure
type WSMessage struct {
	Type      WSMessageType `json:"type"`
	Data      interface{}   `json:"data,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
	ClientID  string        `json:"client_id,omitempty"`
}

// WSHubConfig holds configuration for the WebSocket hub
type WSHubConfig struct {
	MaxClients       int
	WriteTimeout     time.Duration
	ReadTimeout      time.Duration
	PingInterval     time.Duration
	MaxMessageSize   int64
	ClientBufferSize int
}

// DefaultWSHubConfig returns the hub defaults
func DefaultWSHubConfig() WSHubConfig {
	return WSHubConfig{
		MaxClients:       100,
		WriteTimeout:     10 * time.Second,
		ReadTimeout:      60 * time.Second,
		PingInterval:     54 * time.Second,
		MaxMessageSize:   64 * 1024,
		ClientBufferSize: 256,
	}
}

// WSClient represents a connected WebSocket client
type WSClient struct {
	ID          string
	Conn        *websocket.Conn
	RemoteAddr  string
	ConnectedAt time.Time

	// send is never closed; done tells both pumps the client is gone
	send      chan []byte
	done      chan struct{}
	hub       *WSHub
	closeOnce sync.Once
}

// WSHub fans dataset events out to connected dashboards
type WSHub struct {
	clients    map[*WSClient]bool
	register   chan *WSClient
	unregister chan *WSClient
	broadcast  chan []byte

	config  WSHubConfig
	log     logrus.FieldLogger
	onCount func(int)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.RWMutex
}

// NewWSHub creates a hub. onCount, when set, is called with the client count after every change.
func NewWSHub(config WSHubConfig, log logrus.FieldLogger, onCount func(int)) *WSHub {
	ctx, cancel := context.WithCancel(context.Background())
	return &WSHub{
		clients:    make(map[*WSClient]bool),
		register:   make(chan *WSClient),
		unregister: make(chan *WSClient),
		broadcast:  make(chan []byte, 256),
		config:     config,
		log:        log.WithField("component", "websocket-hub"),
		onCount:    onCount,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Run starts the hub loop. It stops when ctx is done or Stop is called.
func (h *WSHub) Run(ctx context.Context) {
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		h.runHub(ctx)
	}()
	h.log.WithField("max_clients", h.config.MaxClients).Info("WebSocket hub started")
}

// Stop disconnects every client and waits for the hub loop to exit
func (h *WSHub) Stop() {
	h.cancel()
	h.wg.Wait()

	h.mu.Lock()
	for client := range h.clients {
		delete(h.clients, client)
		client.disconnect()
		client.Conn.Close()
	}
	h.mu.Unlock()
	h.countChanged()
	h.log.Info("WebSocket hub stopped")
}

// ClientCount returns the number of connected clients
func (h *WSHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// NotifyNewEntry broadcasts a recorded entry
func (h *WSHub) NotifyNewEntry(suite string, run *types.HistoricRun, entry *types.Entry) {
	h.Broadcast(WSMessageTypeNewEntry, map[string]interface{}{
		"suite":     suite,
		"run_id":    run.ID,
		"commit_id": entry.Commit.ID,
		"date":      entry.Date,
		"tool":      entry.Tool,
		"benches":   len(entry.Benches),
	})
}

// NotifyAlert broadcasts a detected alert
func (h *WSHub) NotifyAlert(alert *types.Alert) {
	h.Broadcast(WSMessageTypeAlertDetected, alert)
}

// Broadcast sends a message to all connected clients
func (h *WSHub) Broadcast(messageType WSMessageType, data interface{}) {
	msg, err := json.Marshal(WSMessage{Type: messageType, Data: data, Timestamp: time.Now().UTC()})
	if err != nil {
		h.log.WithError(err).Error("Failed to marshal broadcast message")
		return
	}

	select {
	case h.broadcast <- msg:
	case <-h.ctx.Done():
	default:
		h.log.Warn("Broadcast channel full, dropping message")
	}
}

func (h *WSHub) runHub(ctx context.Context) {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if len(h.clients) >= h.config.MaxClients {
				h.mu.Unlock()
				h.log.Warn("Maximum client limit reached, rejecting connection")
				client.disconnect()
				continue
			}
			h.clients[client] = true
			h.mu.Unlock()
			h.countChanged()

			client.sendMessage(WSMessage{
				Type:      WSMessageTypeConnection,
				Data:      map[string]interface{}{"status": "connected", "client_id": client.ID},
				Timestamp: time.Now().UTC(),
				ClientID:  client.ID,
			})
			h.log.WithFields(logrus.Fields{
				"client_id":   client.ID,
				"remote_addr": client.RemoteAddr,
			}).Info("WebSocket client connected")

		case client := <-h.unregister:
			h.mu.Lock()
			_, ok := h.clients[client]
			delete(h.clients, client)
			h.mu.Unlock()
			if ok {
				client.disconnect()
				h.countChanged()
				h.log.WithField("client_id", client.ID).Info("WebSocket client disconnected")
			}

		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// slow consumer
					delete(h.clients, client)
					client.disconnect()
				}
			}
			h.mu.Unlock()
			h.countChanged()

		case <-ctx.Done():
			return
		case <-h.ctx.Done():
			return
		}
	}
}

func (h *WSHub) countChanged() {
	if h.onCount != nil {
		h.onCount(h.ClientCount())
	}
}

// HandleWebSocketConnection upgrades the request and registers the client
func (h *WSHub) HandleWebSocketConnection(upgrader *websocket.Upgrader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			h.log.WithError(err).Error("Failed to upgrade WebSocket connection")
			return
		}

		client := &WSClient{
			ID:          uuid.New().String(),
			Conn:        conn,
			RemoteAddr:  r.RemoteAddr,
			ConnectedAt: time.Now(),
			send:        make(chan []byte, h.config.ClientBufferSize),
			done:        make(chan struct{}),
			hub:         h,
		}

		select {
		case h.register <- client:
		case <-h.ctx.Done():
			conn.Close()
			return
		}

		go client.writePump()
		go client.readPump()
	}
}

func (c *WSClient) disconnect() {
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *WSClient) sendMessage(message WSMessage) {
	msg, err := json.Marshal(message)
	if err != nil {
		c.hub.log.WithError(err).Error("Failed to marshal client message")
		return
	}
	select {
	case <-c.done:
	case c.send <- msg:
	default:
		c.hub.log.WithField("client_id", c.ID).Warn("Client send channel full")
	}
}

// readPump handles incoming messages from the client
func (c *WSClient) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.ctx.Done():
		}
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.hub.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.hub.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(c.hub.config.ReadTimeout))
	})

	for {
		var msg WSMessage
		if err := c.Conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.WithError(err).WithField("client_id", c.ID).Error("WebSocket read error")
			}
			return
		}

		if msg.Type == WSMessageTypePing {
			c.sendMessage(WSMessage{Type: WSMessageTypePong, Timestamp: time.Now().UTC(), ClientID: c.ID})
		}
	}
}

// writePump handles outgoing messages to the client
func (c *WSClient) writePump() {
	ticker := time.NewTicker(c.hub.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case <-c.done:
			c.Conn.SetWriteDeadline(time.Now().Add(c.hub.config.WriteTimeout))
			c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case message := <-c.send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.hub.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.hub.log.WithError(err).WithField("client_id", c.ID).Error("WebSocket write error")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.hub.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
