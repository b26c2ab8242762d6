// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package events streams routing transparency events to UI clients over websockets.
package events

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/traylinx/switchai-router/internal/routing"
)

const (
	// TypeRoutingDecision marks a message carrying a routing.Event.
	TypeRoutingDecision = "routing_decision"

	clientBuffer = 32
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = (pongWait * 9) / 10
)

// Message is the envelope sent to clients.
type Message struct {
	Type      string        `json:"type"`
	RequestID string        `json:"request_id,omitempty"`
	AccountID string        `json:"account_id,omitempty"`
	Event     routing.Event `json:"event"`
}

type client struct {
	conn    *websocket.Conn
	send    chan []byte
	account string
	filters []filter
	once    sync.Once
}

// filter is one "path=value" subscription condition evaluated against the
// encoded message. Without a value the path only has to exist. When the path
// resolves to an array, any element may match.
type filter struct {
	path     string
	value    string
	hasValue bool
}

func parseFilters(raw []string) []filter {
	filters := make([]filter, 0, len(raw))
	for _, r := range raw {
		path, value, hasValue := strings.Cut(strings.TrimSpace(r), "=")
		if path == "" {
			continue
		}
		filters = append(filters, filter{path: path, value: value, hasValue: hasValue})
	}
	return filters
}

func (f filter) match(payload []byte) bool {
	res := gjson.GetBytes(payload, f.path)
	if !res.Exists() {
		return false
	}
	if !f.hasValue {
		return true
	}
	if res.IsArray() {
		for _, el := range res.Array() {
			if el.String() == f.value {
				return true
			}
		}
		return false
	}
	return res.String() == f.value
}

func (c *client) wants(account string, payload []byte) bool {
	if c.account != "" && c.account != account {
		return false
	}
	for _, f := range c.filters {
		if !f.match(payload) {
			return false
		}
	}
	return true
}

func (c *client) close() {
	c.once.Do(func() { close(c.send) })
}

// Hub fans messages out to connected clients. Slow clients lose messages
// rather than stalling publishers.
type Hub struct {
	mu       sync.RWMutex
	clients  map[*client]struct{}
	closed   bool
	upgrader websocket.Upgrader
	now      func() time.Time
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	h := &Hub{clients: make(map[*client]struct{}), now: time.Now}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     func(r *http.Request) bool { return true },
	}
	return h
}

// Publish encodes msg once and queues it for every matching client.
// Clients subscribed to an account only receive that account's messages.
func (h *Hub) Publish(msg Message) {
	if msg.Type == "" {
		msg.Type = TypeRoutingDecision
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		log.Errorf("failed to encode routing event: %v", err)
		return
	}
	payload, err = sjson.SetBytes(payload, "sent_at", h.now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		log.Errorf("failed to stamp routing event: %v", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return
	}
	for c := range h.clients {
		if !c.wants(msg.AccountID, payload) {
			continue
		}
		select {
		case c.send <- payload:
		default:
			log.Debugf("event client buffer full, dropping %s", msg.RequestID)
		}
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeWS upgrades the request and registers the connection. The optional
// "account" query parameter restricts the stream to one account. Repeated
// "filter" parameters such as filter=event.tier=complex or
// filter=event.overrides=cache_coherence narrow it further by message field.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Debugf("websocket upgrade failed: %v", err)
		return
	}
	q := r.URL.Query()
	c := &client{conn: conn, send: make(chan []byte, clientBuffer), account: q.Get("account"), filters: parseFilters(q["filter"])}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	go h.writePump(c)
	go h.readPump(c)
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		c.close()
	}
	h.mu.Unlock()
}

// readPump discards client messages and detects disconnects.
func (h *Hub) readPump(c *client) {
	defer func() {
		h.unregister(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(4096)
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

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case payload, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Close disconnects every client and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		c.close()
	}
}
