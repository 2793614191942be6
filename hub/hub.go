// Package hub is the real-time sync layer: one room per script, fanning
// position updates and committed mapping edits out to every connected
// client. All room state is owned by the hub's single Run loop, so the
// participant set is never touched concurrently.
package hub

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Client is one WebSocket participant in a script room.
type Client struct {
	ID       string
	ScriptID string
	Hub      *Hub
	Conn     *websocket.Conn
	Send     chan []byte
}

type broadcast struct {
	scriptID string
	// senderID is excluded from delivery; empty means deliver to the
	// whole room (mapping updates go to editors too).
	senderID string
	payload  []byte
}

// direct is a frame addressed to one client (pong and error replies). It
// goes through Run like everything else: only the hub loop may touch Send,
// so a reply racing a drop or shutdown can never hit a closed channel.
type direct struct {
	client  *Client
	payload []byte
}

// Hub manages the rooms and serializes every mutation and fan-out through
// Run. Delivery is at-most-once per live connection: a slow client's full
// send buffer drops the frame, the next tick supersedes it.
type Hub struct {
	rooms map[string]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcasts chan broadcast
	directs    chan direct

	log               *logrus.Logger
	heartbeatInterval time.Duration
	heartbeatMisses   int
}

func NewHub(log *logrus.Logger, heartbeatInterval time.Duration, heartbeatMisses int) *Hub {
	return &Hub{
		rooms:             make(map[string]map[*Client]bool),
		register:          make(chan *Client),
		unregister:        make(chan *Client),
		broadcasts:        make(chan broadcast, 64),
		directs:           make(chan direct, 64),
		log:               log,
		heartbeatInterval: heartbeatInterval,
		heartbeatMisses:   heartbeatMisses,
	}
}

// Run owns all room state until the context is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for _, room := range h.rooms {
				for client := range room {
					close(client.Send)
				}
			}
			h.rooms = make(map[string]map[*Client]bool)
			return

		case client := <-h.register:
			h.handleRegister(client)

		case client := <-h.unregister:
			h.handleUnregister(client)

		case b := <-h.broadcasts:
			h.handleBroadcast(b)

		case d := <-h.directs:
			// A client already dropped from its room has a closed Send;
			// its reply is simply stale.
			if h.rooms[d.client.ScriptID][d.client] {
				h.deliver(d.client, d.payload)
			}
		}
	}
}

// Register joins a client to its script room. The client receives a
// connection_ack; the rest of the room a participant_join.
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister removes a client, broadcasting participant_leave. Safe to call
// for a client already removed (e.g. read error racing explicit leave).
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// BroadcastPosition relays a position_sync frame to every other member of
// the sender's room. The sender never hears its own echo.
func (h *Hub) BroadcastPosition(scriptID, senderID string, currentTime float64, isPlaying bool, sentenceID string) {
	msg := Message{
		Type:        TypePositionSync,
		CurrentTime: &currentTime,
		IsPlaying:   &isPlaying,
		SentenceID:  sentenceID,
	}
	h.enqueue(scriptID, senderID, msg)
}

// BroadcastMappingUpdate relays a committed mapping edit to the whole room,
// editors included, so every client converges on the stored timing.
func (h *Hub) BroadcastMappingUpdate(scriptID, sentenceID string, start, end float64, mappingType string, deactivated bool) {
	msg := Message{
		Type:        TypeMappingUpdate,
		SentenceID:  sentenceID,
		StartTime:   &start,
		EndTime:     &end,
		MappingType: mappingType,
		Deactivated: deactivated,
	}
	h.enqueue(scriptID, "", msg)
}

func (h *Hub) enqueue(scriptID, senderID string, msg Message) {
	payload, err := json.Marshal(msg)
	if err != nil {
		h.log.WithError(err).Error("marshalling broadcast")
		return
	}
	h.broadcasts <- broadcast{scriptID: scriptID, senderID: senderID, payload: payload}
}

func (h *Hub) handleRegister(client *Client) {
	room := h.rooms[client.ScriptID]
	if room == nil {
		room = make(map[*Client]bool)
		h.rooms[client.ScriptID] = room
	}
	room[client] = true

	ack, _ := json.Marshal(Message{
		Type:             TypeConnectionAck,
		ConnectionID:     client.ID,
		ParticipantCount: len(room),
	})
	h.deliver(client, ack)

	join, _ := json.Marshal(Message{
		Type:             TypeParticipantJoin,
		ConnectionID:     client.ID,
		ParticipantCount: len(room),
	})
	for peer := range room {
		if peer != client {
			h.deliver(peer, join)
		}
	}

	h.log.WithFields(logrus.Fields{
		"script_id":     client.ScriptID,
		"connection_id": client.ID,
		"participants":  len(room),
	}).Info("participant joined")
}

func (h *Hub) handleUnregister(client *Client) {
	room := h.rooms[client.ScriptID]
	if room == nil || !room[client] {
		return
	}
	delete(room, client)
	close(client.Send)
	if len(room) == 0 {
		delete(h.rooms, client.ScriptID)
	}

	leave, _ := json.Marshal(Message{
		Type:             TypeParticipantLeave,
		ConnectionID:     client.ID,
		ParticipantCount: len(room),
	})
	for peer := range room {
		h.deliver(peer, leave)
	}

	h.log.WithFields(logrus.Fields{
		"script_id":     client.ScriptID,
		"connection_id": client.ID,
	}).Info("participant left")
}

func (h *Hub) handleBroadcast(b broadcast) {
	room := h.rooms[b.scriptID]
	for client := range room {
		if b.senderID != "" && client.ID == b.senderID {
			continue
		}
		h.deliver(client, b.payload)
	}
}

// deliver is at-most-once: a client that cannot keep up is dropped from the
// room rather than blocking the loop.
func (h *Hub) deliver(client *Client, payload []byte) {
	select {
	case client.Send <- payload:
	default:
		delete(h.rooms[client.ScriptID], client)
		close(client.Send)
		h.log.WithField("connection_id", client.ID).Warn("send buffer full, dropping connection")
	}
}

// readDeadline is how long a connection may stay silent before the hub
// reclaims it.
func (h *Hub) readDeadline() time.Duration {
	return h.heartbeatInterval * time.Duration(h.heartbeatMisses)
}

// ReadPump consumes frames from the socket until error or close. Any frame
// refreshes the liveness deadline; a connection silent for the full window
// is reclaimed with leave semantics.
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()

	deadline := c.Hub.readDeadline()
	c.Conn.SetReadLimit(64 * 1024)
	c.Conn.SetReadDeadline(time.Now().Add(deadline))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(deadline))
		return nil
	})

	for {
		_, raw, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.Hub.log.WithError(err).WithField("connection_id", c.ID).Debug("read error")
			}
			return
		}
		c.Conn.SetReadDeadline(time.Now().Add(deadline))

		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.sendError("bad_message", "frame is not valid JSON")
			continue
		}

		switch msg.Type {
		case TypePing:
			// Browser clients cannot send protocol-level pings.
			c.reply(Message{Type: TypePong})
		case TypePositionSync:
			if msg.CurrentTime == nil || msg.IsPlaying == nil {
				c.sendError("bad_message", "position_sync requires currentTime and isPlaying")
				continue
			}
			c.Hub.BroadcastPosition(c.ScriptID, c.ID, *msg.CurrentTime, *msg.IsPlaying, msg.SentenceID)
		default:
			c.sendError("unknown_type", "unsupported message type: "+msg.Type)
		}
	}
}

func (c *Client) sendError(code, detail string) {
	c.reply(Message{Type: TypeError, Code: code, Detail: detail})
}

// reply hands a single-client frame to the hub loop. Non-blocking: if the
// hub is saturated or stopped the reply is dropped, never sent from here.
func (c *Client) reply(msg Message) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return
	}
	select {
	case c.Hub.directs <- direct{client: c, payload: payload}:
	default:
	}
}

// WritePump drains the send channel onto the socket and pings on the
// heartbeat interval. Write errors end the connection; ReadPump's deferred
// unregister reclaims it.
func (c *Client) WritePump() {
	ticker := time.NewTicker(c.Hub.heartbeatInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
