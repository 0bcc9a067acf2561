package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jutuon/afrodite-backend-sub001/internal/identity"
)

const (
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	writeWait      = 10 * time.Second
	maxMessageSize = 8192
	sendQueueDepth = 256
)

// Client is one bound realtime channel. Grounded in
// internal/websocket/client.go's readPump/writePump pair (pongWait/
// pingPeriod keepalive, SetWriteDeadline, bounded send channel).
type Client struct {
	hub       *Hub
	conn      *websocket.Conn
	handle    string
	accountID identity.InternalAccountID

	mu     sync.Mutex
	send   chan EventToClient
	closed bool
}

func newClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		hub:    hub,
		conn:   conn,
		handle: uuid.New().String(),
		send:   make(chan EventToClient, sendQueueDepth),
	}
}

// Serve reads the client's opening binary frame (its current refresh
// token), runs the handshake (SPEC_FULL.md §4.8), then the readPump/
// writePump pair until the channel closes.
func Serve(ctx context.Context, hub *Hub, auth Authenticator, conn *websocket.Conn) {
	c := newClient(hub, conn)
	defer conn.Close()

	msgType, refreshToken, err := conn.ReadMessage()
	if err != nil || msgType != websocket.BinaryMessage {
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseInvalidFramePayloadData, "expected refresh token as first binary frame"))
		return
	}

	accessToken, nextRefresh, internalID, err := auth.RefreshForChannel(ctx, string(refreshToken))
	if err != nil {
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseInvalidFramePayloadData, "invalid refresh token"))
		return
	}
	c.accountID = identity.InternalAccountID(internalID)

	if err := conn.WriteMessage(websocket.BinaryMessage, []byte(nextRefresh)); err != nil {
		return
	}
	if err := conn.WriteMessage(websocket.TextMessage, []byte(accessToken)); err != nil {
		return
	}
	if err := auth.BindChannel(ctx, accessToken, c.handle); err != nil {
		return
	}

	hub.register(c)
	defer hub.unregister(c)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); c.writePump() }()
	go func() { defer wg.Done(); c.readPump() }()
	wg.Wait()
}

func (c *Client) readPump() {
	defer c.conn.Close()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Debug("realtime read error", "handle", c.handle, "error", err)
			}
			return
		}
		var ack struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(msg, &ack); err == nil && ack.Type == "PingReceived" {
			c.conn.SetReadDeadline(time.Now().Add(pongWait))
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
		case event, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			payload, err := json.Marshal(event)
			if err != nil {
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
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

// enqueue delivers event to this channel, coalescing events whose kind
// allows it (SPEC_FULL.md §4.8's backpressure rule). Uncoalescable events
// that find the queue full close the channel with code "overflow".
func (c *Client) enqueue(event EventToClient) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}

	select {
	case c.send <- event:
		return true
	default:
	}

	if key := event.coalesceKey(); key != "" {
		// Queue is full; a coalescable event is allowed to be dropped since a
		// fresher one will arrive and the client resyncs the field it names.
		return true
	}

	go c.closeWithCode("overflow", "outbound queue exceeded, reconnect and resync")
	return false
}

func (c *Client) closeWithCode(code, reason string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	closeCode := websocket.CloseNormalClosure
	msg := websocket.FormatCloseMessage(closeCode, code+": "+reason)
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = c.conn.WriteMessage(websocket.CloseMessage, msg)
	c.conn.Close()
}
