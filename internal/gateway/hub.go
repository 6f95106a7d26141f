// Package gateway pushes market context snapshots to WebSocket clients.
package gateway

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"marketcontext/internal/model"
	redisstore "marketcontext/internal/store/redis"
)

const replayDepth = 50 // envelopes kept per instrument

type latestEntry struct {
	Data json.RawMessage
	TS   time.Time
	Seq  int64
}

// Hub fans snapshots out to connected clients. Each instrument key
// ("NSE:2885") has its own sequence so clients can detect gaps and fetch
// them through Missed.
type Hub struct {
	mu         sync.RWMutex
	clients    map[*Client]struct{}
	latest     map[string]latestEntry
	seqs       map[string]int64
	replayBufs map[string]*ReplayBuffer

	upgrader websocket.Upgrader

	// OnClients is called with the client count after every connect/disconnect.
	OnClients func(n int)
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]struct{}),
		latest:     make(map[string]latestEntry),
		seqs:       make(map[string]int64),
		replayBufs: make(map[string]*ReplayBuffer),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Run forwards pub/sub announcements from in until ctx is cancelled or in closes.
func (h *Hub) Run(ctx context.Context, in <-chan redisstore.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-in:
			if !ok {
				return
			}
			h.Broadcast(msg.Exchange+":"+msg.Token, msg.Payload)
		}
	}
}

// Publish broadcasts snap under its instrument key.
func (h *Hub) Publish(snap *model.EnrichedMarketData) error {
	data, err := snap.JSON()
	if err != nil {
		return err
	}
	h.Broadcast(snap.Key(), data)
	return nil
}

// Broadcast sends data for key to every client subscribed to it.
func (h *Hub) Broadcast(key string, data []byte) {
	now := time.Now().UTC()

	h.mu.Lock()
	h.seqs[key]++
	seq := h.seqs[key]
	h.latest[key] = latestEntry{Data: data, TS: now, Seq: seq}
	rb, ok := h.replayBufs[key]
	if !ok {
		rb = NewReplayBuffer(replayDepth)
		h.replayBufs[key] = rb
	}
	h.mu.Unlock()

	env := appendEnvelope(nil, key, data, now, seq, false)
	rb.Push(seq, env)

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !c.wants(key) {
			continue
		}
		select {
		case c.send <- env:
		default:
		}
	}
}

// ServeHTTP upgrades the request and registers the client. The optional
// "keys" query parameter (comma separated) sets the initial subscription.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[gateway] ws upgrade: %v", err)
		return
	}

	c := newClient(h, conn, splitKeys(r.URL.Query().Get("keys")))

	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.clientsChanged(n)
	log.Printf("[gateway] ws client connected (%d total)", n)

	c.sendInitialState()
	go c.writePump()
	go c.readPump()
}

// removeClient unregisters c and closes its send channel.
func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	n := len(h.clients)
	close(c.send)
	h.mu.Unlock()
	h.clientsChanged(n)
}

func (h *Hub) clientsChanged(n int) {
	if h.OnClients != nil {
		h.OnClients(n)
	}
}

// Latest returns the newest payload per instrument key.
func (h *Hub) Latest() map[string]json.RawMessage {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make(map[string]json.RawMessage, len(h.latest))
	for k, v := range h.latest {
		out[k] = v.Data
	}
	return out
}

// Missed returns buffered envelopes for key with seq in [from, to].
func (h *Hub) Missed(key string, from, to int64) [][]byte {
	h.mu.RLock()
	rb, ok := h.replayBufs[key]
	h.mu.RUnlock()
	if !ok {
		return nil
	}
	entries := rb.Range(from, to)
	out := make([][]byte, len(entries))
	for i, e := range entries {
		out[i] = e.Data
	}
	return out
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
