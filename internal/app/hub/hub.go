package hub

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"moviechat/internal/app/chat"
	"moviechat/internal/app/db"
	"moviechat/internal/app/realtime"
	"moviechat/internal/app/user"
	"moviechat/internal/pkg/logx"
)

const inboundChannelBuffer = 1024

type inboundFrame struct {
	client *Client
	env    realtime.Envelope
}

// Hub is the chat socket server. All connection and room-subscription state is owned by the
// Run goroutine; every other method hands work to it over channels.
type Hub struct {
	store *db.DB

	register     chan *Client
	unregisterCh chan *Client
	inboundCh    chan inboundFrame
	calls        chan func()

	// used to signal the Hub to stop its Run loop immediately.
	stopChan chan struct{}
	done     chan struct{}

	// connections per user id; a user may be connected more than once.
	clients map[string]map[*Client]struct{}

	// connections that joined each room id.
	rooms map[string]map[*Client]struct{}

	logger zerolog.Logger
}

// NewHub creates a Hub backed by store. Run must be started before connections are served.
func NewHub(store *db.DB) *Hub {
	return &Hub{
		store:        store,
		register:     make(chan *Client),
		unregisterCh: make(chan *Client),
		inboundCh:    make(chan inboundFrame, inboundChannelBuffer),
		calls:        make(chan func()),
		stopChan:     make(chan struct{}),
		done:         make(chan struct{}),
		clients:      make(map[string]map[*Client]struct{}),
		rooms:        make(map[string]map[*Client]struct{}),
		logger:       logx.Component("hub"),
	}
}

// Stop terminates the Run loop, closes every connection and waits for the loop to exit.
func (h *Hub) Stop() {
	select {
	case <-h.stopChan:
	default:
		h.logger.Info().Msg("Received stop signal. Stopping hub.")
		close(h.stopChan)
	}
	<-h.done
}

// Serve runs one authenticated connection until it closes. It blocks in the read pump like the
// HTTP handler that upgraded the connection expects.
func (h *Hub) Serve(conn *websocket.Conn, u user.User, reconnectAttempt int) {
	client := newClient(h, conn, u, reconnectAttempt, "hub")

	select {
	case h.register <- client:
	case <-h.stopChan:
		conn.Close()
		return
	}

	go client.WritePump()
	client.ReadPump()
}

// NotifyRoomAdded sends room-added to every connection of every member of room.
func (h *Hub) NotifyRoomAdded(room chat.Room) {
	h.do(func() {
		payload := chat.RoomAdded{Room: room, Message: fmt.Sprintf("You were added to %s", room.Name)}
		for _, id := range room.Members {
			h.sendToUser(id, realtime.EventRoomAdded, payload)
		}
	})
}

// Disconnect closes every chat connection of userID, as after a logout.
func (h *Hub) Disconnect(userID string) {
	h.do(func() {
		for c := range h.clients[userID] {
			c.conn.Close()
		}
	})
}

// Online returns the ids of connected users, sorted.
func (h *Hub) Online() []string {
	result := make(chan []string, 1)
	if !h.do(func() { result <- h.onlineIDs() }) {
		return nil
	}

	select {
	case ids := <-result:
		return ids
	case <-h.done:
		return nil
	}
}

func (h *Hub) do(fn func()) bool {
	select {
	case h.calls <- fn:
		return true
	case <-h.stopChan:
		return false
	}
}

func (h *Hub) inbound(c *Client, env realtime.Envelope) {
	select {
	case h.inboundCh <- inboundFrame{client: c, env: env}:
	case <-h.stopChan:
	}
}

func (h *Hub) unregister(c *Client) {
	select {
	case h.unregisterCh <- c:
	case <-h.stopChan:
	}
}

// Run starts the main event loop of the Hub.
func (h *Hub) Run() {
	defer func() {
		for _, conns := range h.clients {
			for c := range conns {
				c.closeSend()
			}
		}
		h.clients = map[string]map[*Client]struct{}{}
		h.rooms = map[string]map[*Client]struct{}{}

		h.logger.Info().Msg("Hub Run loop finished.")
		close(h.done)
	}()

	for {
		select {
		case c := <-h.register:
			h.addClient(c)

		case c := <-h.unregisterCh:
			h.removeClient(c)

		case in := <-h.inboundCh:
			h.handle(in.client, in.env)

		case fn := <-h.calls:
			fn()

		case <-h.stopChan:
			return
		}
	}
}

func (h *Hub) addClient(c *Client) {
	id := c.user.ID
	conns, ok := h.clients[id]
	if !ok {
		conns = make(map[*Client]struct{})
		h.clients[id] = conns
	}
	conns[c] = struct{}{}

	h.logger.Info().
		Str("client_id", id).
		Int("connections", len(conns)).
		Int("reconnect_attempt", c.reconnectAttempt).
		Msg("Client connected.")

	if c.reconnectAttempt > 0 {
		c.sendEnvelope(realtime.EventReconnectionSuccessful, chat.ReconnectionSuccessful{
			Message: fmt.Sprintf("Reconnected after %d attempt(s)", c.reconnectAttempt),
		})
	}

	if !ok {
		u := c.user
		h.broadcastExcept(id, realtime.EventUserOnline, chat.UserOnline{UserID: id, User: &u})
	}
}

func (h *Hub) removeClient(c *Client) {
	id := c.user.ID
	conns, ok := h.clients[id]
	if !ok {
		h.logger.Debug().Str("client_id", id).Msg("Unregister for unknown or already removed client.")
		return
	}
	if _, ok := conns[c]; !ok {
		h.logger.Debug().Str("client_id", id).Msg("Ignoring unregister for STALE connection.")
		return
	}

	delete(conns, c)
	c.closeSend()

	for roomID, members := range h.rooms {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, roomID)
		}
	}

	h.logger.Info().Str("client_id", id).Int("connections", len(conns)).Msg("Client disconnected.")

	if len(conns) == 0 {
		delete(h.clients, id)
		h.broadcastExcept(id, realtime.EventUserOffline, chat.UserOffline{UserID: id})
	}
}

func (h *Hub) handle(c *Client, env realtime.Envelope) {
	if _, ok := h.clients[c.user.ID][c]; !ok {
		return
	}

	switch env.Event {
	case realtime.EventGetOnlineUsers:
		c.sendEnvelope(realtime.EventOnlineUsersList, chat.OnlineUsers{UserIDs: h.onlineIDs()})

	case realtime.EventPrivateMessage:
		var p chat.DirectMessage
		if !h.decode(c, env, &p) {
			return
		}
		h.handlePrivateMessage(c, p)

	case realtime.EventRoomMessage:
		var p chat.RoomMessage
		if !h.decode(c, env, &p) {
			return
		}
		h.handleRoomMessage(c, p)

	// join-room and leave-room carry the bare room id.
	case realtime.EventJoinRoom:
		var roomID string
		if !h.decode(c, env, &roomID) {
			return
		}
		h.handleJoin(c, roomID)

	case realtime.EventLeaveRoom:
		var roomID string
		if !h.decode(c, env, &roomID) {
			return
		}
		h.handleLeave(c, roomID)

	default:
		c.logger.Warn().Str("event", string(env.Event)).Msg("Client sent unsupported event")
	}
}

func (h *Hub) decode(c *Client, env realtime.Envelope, dst any) bool {
	if err := json.Unmarshal(env.Data, dst); err != nil {
		c.logger.Warn().Err(err).Str("event", string(env.Event)).Msg("Client sent invalid payload")
		return false
	}
	return true
}

func validText(text string) bool {
	return strings.TrimSpace(text) != "" && len(text) <= chat.MaxContentBytes
}

func (h *Hub) handlePrivateMessage(c *Client, p chat.DirectMessage) {
	if p.RecipientID == "" || !validText(p.Message) {
		c.logger.Warn().Msg("Rejected private message: missing recipient or invalid text")
		return
	}
	if _, err := h.store.UserByID(p.RecipientID); err != nil {
		c.logger.Warn().Str("recipient_id", p.RecipientID).Msg("Rejected private message: unknown recipient")
		return
	}

	msg := h.store.AddMessage(chat.Message{Sender: c.user, Recipient: p.RecipientID, Message: p.Message})

	if p.RecipientID != c.user.ID {
		h.sendToUser(p.RecipientID, realtime.EventNewMessage, msg)
	}
	h.sendToUser(c.user.ID, realtime.EventMessageSent, msg)
}

func (h *Hub) handleRoomMessage(c *Client, p chat.RoomMessage) {
	if p.RoomID == "" || !validText(p.Message) {
		c.logger.Warn().Msg("Rejected room message: missing room or invalid text")
		return
	}
	if _, err := h.store.Room(p.RoomID, c.user.ID); err != nil {
		c.logger.Warn().Err(err).Str("room_id", p.RoomID).Msg("Rejected room message")
		return
	}

	msg := h.store.AddMessage(chat.Message{Sender: c.user, RoomID: p.RoomID, Message: p.Message})

	for member := range h.rooms[p.RoomID] {
		if member.user.ID != c.user.ID {
			member.sendEnvelope(realtime.EventNewRoomMessage, msg)
		}
	}
	h.sendToUser(c.user.ID, realtime.EventMessageSent, msg)
}

func (h *Hub) handleJoin(c *Client, roomID string) {
	room, err := h.store.Room(roomID, c.user.ID)
	if err != nil {
		c.logger.Warn().Err(err).Str("room_id", roomID).Msg("Rejected join-room")
		return
	}

	members, ok := h.rooms[roomID]
	if !ok {
		members = make(map[*Client]struct{})
		h.rooms[roomID] = members
	}
	members[c] = struct{}{}

	c.sendEnvelope(realtime.EventRoomJoined, chat.RoomEvent{RoomID: roomID, Name: room.Name})
}

func (h *Hub) handleLeave(c *Client, roomID string) {
	if members, ok := h.rooms[roomID]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, roomID)
		}
	}

	name := ""
	if room, err := h.store.Room(roomID, c.user.ID); err == nil {
		name = room.Name
	}
	c.sendEnvelope(realtime.EventRoomLeft, chat.RoomEvent{RoomID: roomID, Name: name})
}

func (h *Hub) sendToUser(userID string, e realtime.Event, payload any) {
	for c := range h.clients[userID] {
		c.sendEnvelope(e, payload)
	}
}

func (h *Hub) broadcastExcept(userID string, e realtime.Event, payload any) {
	for id, conns := range h.clients {
		if id == userID {
			continue
		}
		for c := range conns {
			c.sendEnvelope(e, payload)
		}
	}
}

func (h *Hub) onlineIDs() []string {
	ids := make([]string, 0, len(h.clients))
	for id := range h.clients {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
