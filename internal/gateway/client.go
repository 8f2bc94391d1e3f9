package gateway

import (
	"encoding/json"
	"log"
	"math"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

// Client is a single websocket peer.
type Client struct {
	conn *websocket.Conn
	send chan []byte
	hub  *Hub

	subMu  sync.RWMutex
	tokens map[string]bool // empty: every token
}

// controlMsg is a client request: SUBSCRIBE / UNSUBSCRIBE a token list, or
// a {"ping": ms} keepalive.
type controlMsg struct {
	Type   string   `json:"type"`
	Tokens []string `json:"tokens"`
	Since  *int64   `json:"since"`
	Ping   int64    `json:"ping"`
}

func newClient(h *Hub, conn *websocket.Conn) *Client {
	return &Client{
		conn:   conn,
		send:   make(chan []byte, 256),
		hub:    h,
		tokens: make(map[string]bool),
	}
}

func (c *Client) wants(token string) bool {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	return len(c.tokens) == 0 || c.tokens[token]
}

// subscribe adds tokens and queues their replay envelopes after since
// (since < 0 replays everything buffered). An empty list subscribes to all
// tokens currently known.
func (c *Client) subscribe(tokens []string, since int64) {
	c.subMu.Lock()
	for _, t := range tokens {
		if t != "" {
			c.tokens[t] = true
		}
	}
	c.subMu.Unlock()

	if len(tokens) == 0 {
		tokens = c.hub.Tokens()
	}
	for _, t := range tokens {
		rb := c.hub.buffer(t)
		if rb == nil {
			continue
		}
		for _, e := range rb.Range(since+1, math.MaxInt64) {
			select {
			case c.send <- e.Data:
			default:
				return
			}
		}
	}
}

func (c *Client) unsubscribe(tokens []string) {
	c.subMu.Lock()
	for _, t := range tokens {
		delete(c.tokens, t)
	}
	c.subMu.Unlock()
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

			// Coalesce queued envelopes into one frame, newline separated
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(msg)
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}
			if err := w.Close(); err != nil {
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
		c.hub.RemoveClient(c)
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

		switch msg.Type {
		case "SUBSCRIBE":
			since := int64(-1)
			if msg.Since != nil {
				since = *msg.Since
			}
			c.subscribe(msg.Tokens, since)
		case "UNSUBSCRIBE":
			c.unsubscribe(msg.Tokens)
		default:
			if msg.Ping > 0 {
				pong, _ := json.Marshal(map[string]interface{}{
					"type":      "pong",
					"ping":      msg.Ping,
					"server_ts": time.Now().UnixMilli(),
				})
				select {
				case c.send <- pong:
				default:
				}
			}
		}
	}
}
