// Package gateway serves live snapshot events to websocket clients (plotters,
// dashboards) with per-token replay for late subscribers.
package gateway

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"token-sentry/internal/model"
)

const defaultReplaySize = 500

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Hub owns the websocket clients and the per-token replay buffers.
type Hub struct {
	replaySize int

	mu      sync.RWMutex
	clients map[*Client]bool
	seqs    map[string]int64
	latest  map[string][]byte
	replay  map[string]*ReplayBuffer

	// Lag tracks wall-clock delay between a sample's timestamp and its
	// broadcast, in seconds.
	Lag *LagTracker

	// OnDrop is called when a slow client misses an envelope (optional).
	OnDrop func()
}

// NewHub creates a hub keeping replaySize envelopes per token.
func NewHub(replaySize int) *Hub {
	if replaySize <= 0 {
		replaySize = defaultReplaySize
	}
	return &Hub{
		replaySize: replaySize,
		clients:    make(map[*Client]bool),
		seqs:       make(map[string]int64),
		latest:     make(map[string][]byte),
		replay:     make(map[string]*ReplayBuffer),
		Lag:        NewLagTracker(4096),
	}
}

// Run broadcasts events until ctx is cancelled or the channel closes.
func (h *Hub) Run(ctx context.Context, events <-chan model.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			h.Publish(ev)
		}
	}
}

// Publish assigns the next per-token seq to ev, stores its envelope for
// replay and fans it out to subscribed clients.
func (h *Hub) Publish(ev model.Event) {
	now := time.Now().UTC()
	if ev.Snapshot.Timestamp > 0 {
		h.Lag.Record(now.Sub(time.Unix(ev.Snapshot.Timestamp, 0)).Seconds())
	}

	h.mu.Lock()
	h.seqs[ev.Token]++
	seq := h.seqs[ev.Token]
	data := ev.Snapshot.JSON()
	h.latest[ev.Token] = data
	rb, ok := h.replay[ev.Token]
	if !ok {
		rb = NewReplayBuffer(h.replaySize)
		h.replay[ev.Token] = rb
	}
	h.mu.Unlock()

	var forming []byte
	if len(ev.Forming) > 0 {
		forming, _ = json.Marshal(ev.Forming)
	}
	env := buildEnvelope(ev.Token, ev.Index, seq, now, data, forming)
	rb.Push(seq, env)

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		if !client.wants(ev.Token) {
			continue
		}
		select {
		case client.send <- env:
		default:
			if h.OnDrop != nil {
				h.OnDrop()
			}
		}
	}
}

// buildEnvelope hand-crafts {"token":..,"index":..,"seq":..,"ts":..,"data":..}
// with a trailing "forming" array when forming is non-empty.
func buildEnvelope(token string, index int, seq int64, now time.Time, data, forming []byte) []byte {
	buf := make([]byte, 0, len(token)+len(data)+len(forming)+140)
	buf = append(buf, `{"token":`...)
	buf = strconv.AppendQuote(buf, token)
	buf = append(buf, `,"index":`...)
	buf = strconv.AppendInt(buf, int64(index), 10)
	buf = append(buf, `,"seq":`...)
	buf = strconv.AppendInt(buf, seq, 10)
	buf = append(buf, `,"ts":"`...)
	buf = now.AppendFormat(buf, time.RFC3339Nano)
	buf = append(buf, `","data":`...)
	buf = append(buf, data...)
	if len(forming) > 0 {
		buf = append(buf, `,"forming":`...)
		buf = append(buf, forming...)
	}
	buf = append(buf, '}')
	return buf
}

// HandleWS upgrades the request and registers a client. Query parameters:
// token (comma-separated, empty for all tokens) and since (replay envelopes
// after this seq; without it the whole replay buffer is sent).
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[gateway] upgrade error: %v", err)
		return
	}

	client := newClient(h, conn)
	var tokens []string
	if q := r.URL.Query().Get("token"); q != "" {
		tokens = strings.Split(q, ",")
	}
	since := int64(-1)
	if s := r.URL.Query().Get("since"); s != "" {
		if v, err := strconv.ParseInt(s, 10, 64); err == nil {
			since = v
		}
	}

	h.mu.Lock()
	h.clients[client] = true
	count := len(h.clients)
	h.mu.Unlock()
	log.Printf("[gateway] ws client connected (%d total)", count)

	client.subscribe(tokens, since)
	go client.writePump()
	go client.readPump()
}

// RemoveClient removes a client from the hub.
func (h *Hub) RemoveClient(c *Client) {
	h.mu.Lock()
	if h.clients[c] {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Tokens lists the tokens seen so far, sorted.
func (h *Hub) Tokens() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(h.seqs))
	for t := range h.seqs {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Latest returns the newest snapshot JSON of token.
func (h *Hub) Latest(token string) ([]byte, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	data, ok := h.latest[token]
	return data, ok
}

// Seq returns the current seq of token (0 before the first event).
func (h *Hub) Seq(token string) int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.seqs[token]
}

// Replay returns buffered envelopes of token with seq in [from, to].
func (h *Hub) Replay(token string, from, to int64) [][]byte {
	rb := h.buffer(token)
	if rb == nil {
		return nil
	}
	entries := rb.Range(from, to)
	out := make([][]byte, len(entries))
	for i, e := range entries {
		out[i] = e.Data
	}
	return out
}

func (h *Hub) buffer(token string) *ReplayBuffer {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.replay[token]
}
