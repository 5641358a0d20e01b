package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/gray-logic-deebot/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-deebot/internal/infrastructure/logging"
)

// WebSocket constants.
const (
	WSTypeSubscribe   = "subscribe"
	WSTypeUnsubscribe = "unsubscribe"
	WSTypePing        = "ping"
	WSTypePong        = "pong"
	WSTypeEvent       = "event"
	WSTypeResponse    = "response"
	WSTypeError       = "error"

	// wsSendBufferSize is the per-client outbound message buffer size.
	wsSendBufferSize = 256
)

// WSMessage represents a message sent to/from a WebSocket client.
type WSMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// WSSubscribePayload is the payload for subscribe/unsubscribe messages.
// EntryID narrows a subscription to the events of one entry.
type WSSubscribePayload struct {
	Channels []string `json:"channels"`
	EntryID  string   `json:"entry_id,omitempty"`
}

// knownChannels are the channels clients may subscribe to.
var knownChannels = map[string]bool{
	ChannelVacuumState: true,
	ChannelEntryState:  true,
}

// allEntries is the subscription filter matching every entry.
const allEntries = "*"

// EventHub manages WebSocket connections and broadcasts events to the
// clients subscribed to each channel.
type EventHub struct {
	cfg     config.WebSocketConfig
	logger  *logging.Logger
	clients map[*WSClient]struct{}
	mu      sync.RWMutex
}

// WSClient represents a connected WebSocket client.
type WSClient struct {
	hub  *EventHub
	conn *websocket.Conn
	send chan []byte
	mu   sync.RWMutex

	// subscriptions maps channel to the entry IDs of interest. allEntries
	// matches any entry.
	subscriptions map[string]map[string]struct{}
}

// upgrader configures the WebSocket upgrader.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origins are checked by the CORS middleware.
	CheckOrigin: func(*http.Request) bool { return true },
}

// NewEventHub creates a new WebSocket hub.
func NewEventHub(cfg config.WebSocketConfig, logger *logging.Logger) *EventHub {
	return &EventHub{
		cfg:     cfg,
		logger:  logger,
		clients: make(map[*WSClient]struct{}),
	}
}

// Run starts the hub's main loop. It blocks until the context is cancelled.
func (h *EventHub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

// Register adds a client to the hub.
func (h *EventHub) Register(client *WSClient) {
	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", "clients", h.ClientCount())
}

// Unregister removes a client from the hub. The send buffer is closed
// only by whoever removes the client from the map, so it closes once.
func (h *EventHub) Unregister(client *WSClient) {
	h.mu.Lock()
	_, existed := h.clients[client]
	delete(h.clients, client)
	h.mu.Unlock()

	if existed {
		close(client.send)
	}
	h.logger.Debug("websocket client disconnected", "clients", h.ClientCount())
}

// Broadcast sends an event about entryID to every client subscribed to
// channel for that entry. The client set is snapshotted so the hub lock
// is not held while client locks are taken.
func (h *EventHub) Broadcast(channel, entryID string, payload any) {
	msg := WSMessage{
		Type:      WSTypeEvent,
		EventType: channel,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	}

	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("failed to marshal broadcast message", "error", err)
		return
	}

	h.mu.RLock()
	clients := make([]*WSClient, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	var recipients int
	for _, client := range clients {
		if !client.isSubscribed(channel, entryID) {
			continue
		}
		client.trySend(data)
		recipients++
	}
	if recipients > 0 {
		h.logger.Debug("event broadcast", "channel", channel, "entry_id", entryID, "recipients", recipients)
	}
}

// ClientCount returns the number of connected clients.
func (h *EventHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// closeAll drops every client; closing the send buffers stops their
// write pumps.
func (h *EventHub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		close(client.send)
		if client.conn != nil {
			client.conn.Close()
		}
		delete(h.clients, client)
	}
}

// handleWebSocket upgrades the request and starts the client's pumps.
// Clients choose their channels with subscribe messages.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := &WSClient{
		hub:           s.events,
		conn:          conn,
		send:          make(chan []byte, wsSendBufferSize),
		subscriptions: make(map[string]map[string]struct{}),
	}
	s.events.Register(client)

	t := newWSTimings(s.wsCfg)
	go client.writePump(t)
	go client.readPump(t)
}

// wsTimings holds the keepalive intervals derived from config.
type wsTimings struct {
	maxMessage int64
	ping       time.Duration
	write      time.Duration
	readIdle   time.Duration
}

func newWSTimings(cfg config.WebSocketConfig) wsTimings {
	ping := time.Duration(cfg.PingInterval) * time.Second
	pong := time.Duration(cfg.PongTimeout) * time.Second
	return wsTimings{
		maxMessage: int64(cfg.MaxMessageSize),
		ping:       ping,
		write:      pong,
		readIdle:   ping + pong,
	}
}

// readPump dispatches inbound messages until the connection fails. Pongs
// and client messages both extend the read deadline.
func (c *WSClient) readPump(t wsTimings) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	extend := func() error {
		return c.conn.SetReadDeadline(time.Now().Add(t.readIdle))
	}

	c.conn.SetReadLimit(t.maxMessage)
	extend() //nolint:errcheck // a failed deadline surfaces on the next read
	c.conn.SetPongHandler(func(string) error { return extend() })

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "error", err)
			} else {
				c.hub.logger.Debug("websocket closed", "error", err)
			}
			return
		}
		extend() //nolint:errcheck // a failed deadline surfaces on the next read
		c.handleMessage(message)
	}
}

// writePump drains the send buffer and pings on the keepalive interval.
// It exits when the hub closes the buffer or a write fails.
func (c *WSClient) writePump(t wsTimings) {
	ticker := time.NewTicker(t.ping)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		var err error
		select {
		case message, open := <-c.send:
			if !open {
				c.writeFrame(t, websocket.CloseMessage, nil) //nolint:errcheck // closing anyway
				return
			}
			err = c.writeFrame(t, websocket.TextMessage, message)
		case <-ticker.C:
			err = c.writeFrame(t, websocket.PingMessage, nil)
		}
		if err != nil {
			return
		}
	}
}

func (c *WSClient) writeFrame(t wsTimings, kind int, data []byte) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(t.write)); err != nil {
		return err
	}
	return c.conn.WriteMessage(kind, data)
}

// handleMessage processes an incoming WebSocket message.
func (c *WSClient) handleMessage(data []byte) {
	var msg WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.sendError("", "invalid JSON message")
		return
	}

	switch msg.Type {
	case WSTypeSubscribe:
		c.handleSubscribe(msg)
	case WSTypeUnsubscribe:
		c.handleUnsubscribe(msg)
	case WSTypePing:
		c.sendResponse(msg.ID, WSTypePong, nil)
	default:
		c.sendError(msg.ID, "unknown message type: "+msg.Type)
	}
}

// decodeSubscription extracts and validates a subscribe/unsubscribe payload.
func (c *WSClient) decodeSubscription(msg WSMessage) (WSSubscribePayload, bool) {
	var sub WSSubscribePayload
	payloadBytes, err := json.Marshal(msg.Payload)
	if err == nil {
		err = json.Unmarshal(payloadBytes, &sub)
	}
	if err != nil || len(sub.Channels) == 0 {
		c.sendError(msg.ID, "invalid "+msg.Type+" payload")
		return sub, false
	}
	for _, ch := range sub.Channels {
		if !knownChannels[ch] {
			c.sendError(msg.ID, "unknown channel: "+ch)
			return sub, false
		}
	}
	if sub.EntryID == "" {
		sub.EntryID = allEntries
	}
	return sub, true
}

// handleSubscribe adds channels to the client's subscription list.
func (c *WSClient) handleSubscribe(msg WSMessage) {
	sub, ok := c.decodeSubscription(msg)
	if !ok {
		return
	}

	c.mu.Lock()
	for _, ch := range sub.Channels {
		ids, exists := c.subscriptions[ch]
		if !exists {
			ids = make(map[string]struct{})
			c.subscriptions[ch] = ids
		}
		ids[sub.EntryID] = struct{}{}
	}
	c.mu.Unlock()

	c.hub.logger.Debug("websocket client subscribed", "channels", sub.Channels, "entry_id", sub.EntryID)

	c.sendResponse(msg.ID, WSTypeResponse, map[string]any{
		"subscribed": sub.Channels,
		"entry_id":   sub.EntryID,
	})
}

// handleUnsubscribe removes channels from the client's subscription list.
func (c *WSClient) handleUnsubscribe(msg WSMessage) {
	sub, ok := c.decodeSubscription(msg)
	if !ok {
		return
	}

	c.mu.Lock()
	for _, ch := range sub.Channels {
		ids := c.subscriptions[ch]
		delete(ids, sub.EntryID)
		if len(ids) == 0 {
			delete(c.subscriptions, ch)
		}
	}
	c.mu.Unlock()

	c.sendResponse(msg.ID, WSTypeResponse, map[string]any{
		"unsubscribed": sub.Channels,
		"entry_id":     sub.EntryID,
	})
}

// trySend queues data without blocking. Messages to a slow client are
// dropped, as are sends racing a disconnect.
func (c *WSClient) trySend(data []byte) {
	defer func() {
		recover() //nolint:errcheck // send on a buffer closed by Unregister
	}()

	select {
	case c.send <- data:
	default:
	}
}

// isSubscribed checks if the client wants events on channel for entryID.
func (c *WSClient) isSubscribed(channel, entryID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := c.subscriptions[channel]
	if _, ok := ids[allEntries]; ok {
		return true
	}
	_, ok := ids[entryID]
	return ok
}

// sendResponse queues a reply to the client.
func (c *WSClient) sendResponse(id, msgType string, payload any) {
	msg := WSMessage{
		Type:      msgType,
		ID:        id,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	c.trySend(data)
}

// sendError sends an error message to the client.
func (c *WSClient) sendError(id, message string) {
	c.sendResponse(id, WSTypeError, map[string]string{"message": message})
}
