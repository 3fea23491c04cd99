package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxFrameSize   = 64 << 10
	sendBufferSize = 256
)

// Client is one websocket connection. rooms is guarded by the hub's lock.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	userID string
	send   chan []byte
	rooms  map[string]struct{}
	logger *slog.Logger
}

func newClient(hub *Hub, conn *websocket.Conn, userID string) *Client {
	return &Client{
		hub:    hub,
		conn:   conn,
		userID: userID,
		send:   make(chan []byte, sendBufferSize),
		rooms:  make(map[string]struct{}),
		logger: hub.logger.With("user_id", userID),
	}
}

type outgoingMessage struct {
	ConversationID string `json:"conversationId"`
}

func (c *Client) readPump(ctx context.Context) {
	defer func() {
		c.hub.unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxFrameSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.logger.Warn("websocket read failed", "error", err)
			}
			return
		}

		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			c.reject("malformed frame")
			continue
		}
		c.handle(ctx, env)
	}
}

func (c *Client) handle(ctx context.Context, env Envelope) {
	switch env.Event {
	case EventJoinRoom:
		room, ok := roomID(env.Data)
		if !ok {
			c.reject("joinRoom expects a conversation id")
			return
		}
		if err := c.hub.Join(ctx, c, room); err != nil {
			c.logger.Info("join rejected", "room", room, "error", err)
			c.reject(err.Error())
		}
	case EventLeaveRoom:
		if room, ok := roomID(env.Data); ok {
			c.hub.Leave(c, room)
		}
	case EventSendMessage:
		var msg outgoingMessage
		if err := json.Unmarshal(env.Data, &msg); err != nil || msg.ConversationID == "" {
			c.reject("sendMessage expects a conversationId")
			return
		}
		if err := c.hub.authorize(ctx, c.userID, msg.ConversationID); err != nil {
			c.logger.Info("send rejected", "room", msg.ConversationID, "error", err)
			c.reject(err.Error())
			return
		}
		c.hub.Broadcast(msg.ConversationID, env.Data)
	default:
		c.reject("unknown event")
	}
}

// reject queues an error frame for this client only.
func (c *Client) reject(message string) {
	data, _ := json.Marshal(map[string]string{"error": message})
	frame, err := json.Marshal(Envelope{Event: EventError, Data: data})
	if err != nil {
		return
	}

	c.hub.mu.Lock()
	defer c.hub.mu.Unlock()
	if _, ok := c.hub.clients[c]; !ok {
		return
	}
	select {
	case c.send <- frame:
	default:
		c.hub.removeLocked(c)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
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

// roomID accepts either a bare string or an object with a conversationId field.
func roomID(data json.RawMessage) (string, bool) {
	var id string
	if err := json.Unmarshal(data, &id); err == nil {
		return id, id != ""
	}
	var obj outgoingMessage
	if err := json.Unmarshal(data, &obj); err == nil {
		return obj.ConversationID, obj.ConversationID != ""
	}
	return "", false
}
