// Package realtime relays conversation traffic between websocket connections. It keeps no
// history: clients that miss a frame recover by reading the message store.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrNotParticipant is returned when a user tries to use a conversation they are not part of.
var ErrNotParticipant = errors.New("not a participant of this conversation")

// Event names of the wire protocol.
const (
	EventJoinRoom       = "joinRoom"
	EventLeaveRoom      = "leaveRoom"
	EventSendMessage    = "sendMessage"
	EventReceiveMessage = "receiveMessage"
	EventError          = "error"
)

// Envelope is a single frame exchanged over a socket.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Hub tracks connected clients and their room memberships. A room is a conversation id.
type Hub struct {
	members MembershipChecker
	logger  *slog.Logger

	mu      sync.RWMutex
	clients map[*Client]struct{}
	rooms   map[string]map[*Client]struct{}
}

// NewHub constructs a Hub. members guards joins and may be nil to allow any room.
func NewHub(members MembershipChecker, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		members: members,
		logger:  logger,
		clients: make(map[*Client]struct{}),
		rooms:   make(map[string]map[*Client]struct{}),
	}
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

// unregister drops the client and every room membership it held. Safe to call more than once.
func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

func (h *Hub) removeLocked(c *Client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	for room := range c.rooms {
		h.leaveLocked(c, room)
	}
	close(c.send)
}

// Join adds the client to room after checking that its user takes part in the conversation.
// Joining a room twice is a no-op.
func (h *Hub) Join(ctx context.Context, c *Client, room string) error {
	if err := h.authorize(ctx, c.userID, room); err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return nil
	}
	set, ok := h.rooms[room]
	if !ok {
		set = make(map[*Client]struct{})
		h.rooms[room] = set
	}
	set[c] = struct{}{}
	c.rooms[room] = struct{}{}
	return nil
}

// authorize checks that userID takes part in the conversation behind room. Which rooms the
// user's sockets have joined plays no part.
func (h *Hub) authorize(ctx context.Context, userID, room string) error {
	if room == "" {
		return errors.New("conversation id is required")
	}
	if h.members == nil {
		return nil
	}
	ok, err := h.members.IsParticipant(ctx, room, userID)
	if err != nil {
		return fmt.Errorf("check membership: %w", err)
	}
	if !ok {
		return ErrNotParticipant
	}
	return nil
}

// Leave removes the client from room. Leaving a room the client never joined is a no-op.
func (h *Hub) Leave(c *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(c, room)
}

func (h *Hub) leaveLocked(c *Client, room string) {
	delete(c.rooms, room)
	set, ok := h.rooms[room]
	if !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.rooms, room)
	}
}

// Broadcast relays payload as a receiveMessage frame to every client joined to room and
// returns the number of clients it was queued for. Clients with a full buffer are dropped.
func (h *Hub) Broadcast(room string, payload json.RawMessage) int {
	frame, err := json.Marshal(Envelope{Event: EventReceiveMessage, Data: payload})
	if err != nil {
		h.logger.Warn("encode broadcast", "room", room, "error", err)
		return 0
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	delivered := 0
	for c := range h.rooms[room] {
		select {
		case c.send <- frame:
			delivered++
		default:
			h.logger.Warn("dropping slow websocket client", "user_id", c.userID)
			h.removeLocked(c)
		}
	}
	return delivered
}

// RoomSize returns the number of clients currently joined to room.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// Connected returns the number of registered clients.
func (h *Hub) Connected() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client. Their write pumps send a close frame before exiting.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		h.removeLocked(c)
	}
}
