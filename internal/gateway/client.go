package gateway

import (
	"encoding/json"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

// Client is one WebSocket peer. An empty subscription set receives every
// instrument.
type Client struct {
	conn *websocket.Conn
	send chan []byte
	hub  *Hub

	subMu sync.RWMutex
	subs  map[string]struct{}
}

// controlMsg is what clients send: SUBSCRIBE/UNSUBSCRIBE with instrument keys.
type controlMsg struct {
	Type string   `json:"type"`
	Keys []string `json:"keys"`
}

func newClient(h *Hub, conn *websocket.Conn, keys []string) *Client {
	c := &Client{
		conn: conn,
		send: make(chan []byte, 256),
		hub:  h,
		subs: make(map[string]struct{}),
	}
	c.subscribe(keys)
	return c
}

func (c *Client) wants(key string) bool {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	if len(c.subs) == 0 {
		return true
	}
	_, ok := c.subs[key]
	return ok
}

func (c *Client) subscribe(keys []string) {
	c.subMu.Lock()
	for _, k := range keys {
		c.subs[strings.ToUpper(k)] = struct{}{}
	}
	c.subMu.Unlock()
}

func (c *Client) unsubscribe(keys []string) {
	c.subMu.Lock()
	for _, k := range keys {
		delete(c.subs, strings.ToUpper(k))
	}
	c.subMu.Unlock()
}

// sendInitialState queues the latest snapshot of every wanted instrument.
func (c *Client) sendInitialState() {
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	for key, e := range c.hub.latest {
		if !c.wants(key) {
			continue
		}
		select {
		case c.send <- appendEnvelope(nil, key, e.Data, e.TS, e.Seq, true):
		default:
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.removeClient(c)
		c.conn.Close()
		log.Println("[gateway] ws client disconnected")
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg controlMsg
		if json.Unmarshal(raw, &msg) != nil {
			continue
		}
		switch strings.ToUpper(msg.Type) {
		case "SUBSCRIBE":
			c.subscribe(msg.Keys)
			c.sendInitialState()
		case "UNSUBSCRIBE":
			c.unsubscribe(msg.Keys)
		}
	}
}
