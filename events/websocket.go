package events

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocketBroadcaster fans bus events out to connected WebSocket clients.
// The dashboard attaches here to render live task and training activity.
type WebSocketBroadcaster struct {
	bus      Bus
	subjects []string
	config   WebSocketConfig
	upgrader *websocket.Upgrader

	mu      sync.Mutex
	clients map[*wsClient]struct{}
	subs    []Subscription
	started bool
	closed  bool
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// WebSocketConfig holds broadcaster configuration.
type WebSocketConfig struct {
	// WriteTimeout for write operations.
	WriteTimeout time.Duration

	// PingInterval for keepalive pings (0 = disabled).
	PingInterval time.Duration

	// SendBufferSize per client. A client that falls this far behind
	// is disconnected rather than stalling others.
	SendBufferSize int

	// CheckOrigin validates the request origin. Nil allows all origins;
	// override in production.
	CheckOrigin func(r *http.Request) bool
}

// DefaultWebSocketConfig returns configuration with sensible defaults.
func DefaultWebSocketConfig() WebSocketConfig {
	return WebSocketConfig{
		WriteTimeout:   10 * time.Second,
		PingInterval:   30 * time.Second,
		SendBufferSize: 256,
	}
}

// NewWebSocketBroadcaster creates a broadcaster that forwards events
// published on the given subjects.
func NewWebSocketBroadcaster(bus Bus, subjects []string, cfg WebSocketConfig) *WebSocketBroadcaster {
	if cfg.SendBufferSize <= 0 {
		cfg.SendBufferSize = DefaultWebSocketConfig().SendBufferSize
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultWebSocketConfig().WriteTimeout
	}

	checkOrigin := cfg.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(r *http.Request) bool { return true }
	}

	return &WebSocketBroadcaster{
		bus:      bus,
		subjects: subjects,
		config:   cfg,
		clients:  make(map[*wsClient]struct{}),
		upgrader: &websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
	}
}

// Start subscribes to the configured subjects and begins forwarding.
func (b *WebSocketBroadcaster) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.started || b.closed {
		return nil
	}

	for _, subject := range b.subjects {
		sub, err := b.bus.Subscribe(subject)
		if err != nil {
			return err
		}
		b.subs = append(b.subs, sub)
		go b.forward(sub)
	}

	b.started = true
	return nil
}

// forward pushes events from one subscription to all clients.
func (b *WebSocketBroadcaster) forward(sub Subscription) {
	for ev := range sub.Events() {
		data, err := ev.Marshal()
		if err != nil {
			continue
		}

		b.mu.Lock()
		for c := range b.clients {
			select {
			case c.send <- data:
			default:
				// Client too slow, disconnect it
				delete(b.clients, c)
				close(c.send)
			}
		}
		b.mu.Unlock()
	}
}

// ServeHTTP upgrades the request and streams events to the client.
func (b *WebSocketBroadcaster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	client := &wsClient{
		conn: conn,
		send: make(chan []byte, b.config.SendBufferSize),
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		conn.Close()
		return
	}
	b.clients[client] = struct{}{}
	b.mu.Unlock()

	go b.writeLoop(client)
	b.readLoop(client)
}

// writeLoop sends events and keepalive pings to one client.
func (b *WebSocketBroadcaster) writeLoop(c *wsClient) {
	var pingC <-chan time.Time
	if b.config.PingInterval > 0 {
		ticker := time.NewTicker(b.config.PingInterval)
		defer ticker.Stop()
		pingC = ticker.C
	}

	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(b.config.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-pingC:
			c.conn.SetWriteDeadline(time.Now().Add(b.config.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readLoop drains client messages until the connection drops. Clients are
// read-only consumers; inbound payloads are discarded.
func (b *WebSocketBroadcaster) readLoop(c *wsClient) {
	defer func() {
		b.mu.Lock()
		if _, ok := b.clients[c]; ok {
			delete(b.clients, c)
			close(c.send)
		}
		b.mu.Unlock()
		c.conn.Close()
	}()

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// ClientCount returns the number of connected clients.
func (b *WebSocketBroadcaster) ClientCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

// Close disconnects all clients and stops forwarding.
func (b *WebSocketBroadcaster) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	subs := b.subs
	b.subs = nil
	for c := range b.clients {
		close(c.send)
		c.conn.Close()
	}
	b.clients = make(map[*wsClient]struct{})
	b.mu.Unlock()

	for _, sub := range subs {
		sub.Unsubscribe()
	}
	return nil
}
