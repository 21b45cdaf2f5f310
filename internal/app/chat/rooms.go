package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"moviechat/internal/app/realtime"
	"moviechat/internal/pkg/errs"
	"moviechat/internal/pkg/logx"
)

// maxCreatedRooms caps the set of rooms created locally whose room-added notice is suppressed.
const maxCreatedRooms = 256

// Controller owns the active conversation, the room list, and the commands that change them.
// It is owned by the session loop.
type Controller struct {
	bus      realtime.Bus
	api      API
	exec     Executor
	notify   Notifier
	presence *Presence
	stream   *Stream
	self     Identity

	active  Conversation
	rooms   []Room
	created *recentSet

	// gen advances on Reset; background completions started under an older gen are dropped.
	gen uint64

	subs   subscriptions
	logger zerolog.Logger
}

// NewController wires a Controller to its collaborators.
func NewController(bus realtime.Bus, api API, exec Executor, notify Notifier, presence *Presence, stream *Stream, self Identity) *Controller {
	return &Controller{
		bus:      bus,
		api:      api,
		exec:     exec,
		notify:   notify,
		presence: presence,
		stream:   stream,
		self:     self,
		created:  newRecentSet(maxCreatedRooms),
		logger:   logx.Component("rooms"),
	}
}

// Register subscribes the Controller to the Chat connection: room lifecycle events and the
// three live message events, filtered against the active conversation.
func (c *Controller) Register(ctx context.Context) error {
	return c.subs.addAll(
		func() (*realtime.Subscription, error) {
			return realtime.On(c.bus, realtime.Chat, realtime.EventNewMessage, c.onNewMessage)
		},
		func() (*realtime.Subscription, error) {
			return realtime.On(c.bus, realtime.Chat, realtime.EventMessageSent, c.onMessageSent)
		},
		func() (*realtime.Subscription, error) {
			return realtime.On(c.bus, realtime.Chat, realtime.EventNewRoomMessage, c.onNewRoomMessage)
		},
		func() (*realtime.Subscription, error) {
			return realtime.On(c.bus, realtime.Chat, realtime.EventRoomAdded, func(r RoomAdded) { c.onRoomAdded(ctx, r) })
		},
		func() (*realtime.Subscription, error) {
			return realtime.On(c.bus, realtime.Chat, realtime.EventRoomJoined, func(r RoomEvent) {
				c.logger.Info().Str("room_id", r.RoomID).Str("room_name", r.Name).Msg("Joined room.")
			})
		},
		func() (*realtime.Subscription, error) {
			return realtime.On(c.bus, realtime.Chat, realtime.EventRoomLeft, func(r RoomEvent) {
				c.logger.Info().Str("room_id", r.RoomID).Str("room_name", r.Name).Msg("Left room.")
			})
		},
	)
}

// Close removes every subscription made by Register.
func (c *Controller) Close() {
	c.subs.close()
}

// Active returns the active conversation.
func (c *Controller) Active() Conversation {
	return c.active
}

// Rooms returns a copy of the room list.
func (c *Controller) Rooms() []Room {
	return append([]Room(nil), c.rooms...)
}

// SelectDirectPeer makes peerID the active conversation and loads its history.
// A previously active room is dropped locally without telling the server.
func (c *Controller) SelectDirectPeer(ctx context.Context, peerID string) error {
	if peerID == "" {
		return errs.NewError(errs.ErrInvalidParams)
	}

	c.active = Direct(peerID)
	c.stream.LoadHistory(ctx, c.active)

	return nil
}

// SelectRoom makes roomID the active conversation, joins it on the server, asks for a fresh
// presence snapshot, and loads its history. The selection holds even when the join cannot be
// sent; that error is returned.
func (c *Controller) SelectRoom(ctx context.Context, roomID string) error {
	if roomID == "" {
		return errs.NewError(errs.ErrInvalidParams)
	}

	c.active = InRoom(roomID)

	joinErr := c.bus.Emit(realtime.Chat, realtime.EventJoinRoom, roomID)
	if joinErr == nil {
		if err := c.presence.RequestSnapshot(); err != nil {
			c.logger.Debug().Err(err).Msg("Presence snapshot request failed after join.")
		}
	} else {
		c.logger.Warn().Err(joinErr).Str("room_id", roomID).Msg("Could not send join-room.")
	}

	c.stream.LoadHistory(ctx, c.active)

	return joinErr
}

// ClearConversation drops the active conversation and empties the stream.
func (c *Controller) ClearConversation() {
	c.active = Conversation{}
	c.stream.Reset()
}

// Reset forgets everything bound to the signed-in user.
func (c *Controller) Reset() {
	c.ClearConversation()
	c.rooms = nil
	c.created = newRecentSet(maxCreatedRooms)
	c.gen++
}

func (c *Controller) stale(gen uint64, op string) bool {
	if gen == c.gen {
		return false
	}
	c.logger.Debug().Str("op", op).Msg("Dropping result for a previous user.")
	return true
}

// LeaveRoom leaves roomID on the socket and through REST. Local state changes only once the
// REST call succeeds; a failure raises an error notice and changes nothing.
func (c *Controller) LeaveRoom(ctx context.Context, roomID string) error {
	if roomID == "" {
		return errs.NewError(errs.ErrInvalidParams)
	}

	if err := c.bus.Emit(realtime.Chat, realtime.EventLeaveRoom, roomID); err != nil {
		c.logger.Warn().Err(err).Str("room_id", roomID).Msg("Could not send leave-room, relying on REST.")
	}

	gen := c.gen
	async(ctx, c.exec, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.api.LeaveRoom(ctx, roomID)
	}, func(_ struct{}, err error) {
		if c.stale(gen, "leave-room") {
			return
		}
		if err != nil {
			c.logger.Error().Err(err).Str("room_id", roomID).Msg("Leave room failed.")
			c.notify.Notify(Notice{Level: Failure, Topic: TopicRoom, Message: "Could not leave room: " + errorMessage(err)})
			return
		}

		name := c.roomName(roomID)
		if c.active.Kind == RoomConversation && c.active.RoomID == roomID {
			c.ClearConversation()
		}
		c.notify.Notify(Notice{Level: Transient, Topic: TopicRoom, Message: fmt.Sprintf("Left %s", name)})
		c.RefreshRooms(ctx)
	})

	return nil
}

// CreateRoom creates a room through REST. The new room is remembered so its own room-added
// echo does not raise a notice.
func (c *Controller) CreateRoom(ctx context.Context, req CreateRoomRequest) error {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return errs.NewError(errs.ErrInvalidParams)
	}

	gen := c.gen
	async(ctx, c.exec, func(ctx context.Context) (Room, error) {
		return c.api.CreateRoom(ctx, req)
	}, func(room Room, err error) {
		if c.stale(gen, "create-room") {
			return
		}
		if err != nil {
			c.logger.Error().Err(err).Str("room_name", req.Name).Msg("Create room failed.")
			c.notify.Notify(Notice{Level: Failure, Topic: TopicRoom, Message: "Could not create room: " + errorMessage(err)})
			return
		}

		c.created.add(room.ID)
		c.notify.Notify(Notice{Level: Transient, Topic: TopicRoom, Message: fmt.Sprintf("Created %s", room.Name)})
		c.RefreshRooms(ctx)
	})

	return nil
}

// RefreshRooms reloads the room list in the background. A list fetched for a previous user is
// discarded.
func (c *Controller) RefreshRooms(ctx context.Context) {
	gen := c.gen
	async(ctx, c.exec, c.api.Rooms, func(rooms []Room, err error) {
		if c.stale(gen, "rooms") {
			return
		}
		if err != nil {
			c.logger.Warn().Err(err).Msg("Room list refresh failed.")
			return
		}
		c.rooms = rooms
	})
}

// OnlineMembers returns the members of roomID that are in the global presence set.
// This is an approximation: presence is not tracked per room.
func (c *Controller) OnlineMembers(roomID string) []string {
	room, ok := c.room(roomID)
	if !ok {
		return nil
	}

	online := make([]string, 0, len(room.Members))
	for _, id := range room.Members {
		if c.presence.IsOnline(id) {
			online = append(online, id)
		}
	}
	return online
}

// Send routes text to the active conversation.
func (c *Controller) Send(text string) error {
	if strings.TrimSpace(text) == "" {
		return errs.NewError(errs.ErrMessageEmpty)
	}
	if len(text) > MaxContentBytes {
		return errs.NewError(errs.ErrMessageContentTooLong)
	}

	switch c.active.Kind {
	case DirectConversation:
		return c.bus.Emit(realtime.Chat, realtime.EventPrivateMessage, DirectMessage{RecipientID: c.active.PeerID, Message: text})
	case RoomConversation:
		return c.bus.Emit(realtime.Chat, realtime.EventRoomMessage, RoomMessage{RoomID: c.active.RoomID, Message: text})
	}
	return errs.NewError(errs.ErrNoConversation)
}

func (c *Controller) onNewMessage(m Message) {
	if AcceptsIncoming(c.active, m) {
		c.stream.Append(m)
	}
}

func (c *Controller) onMessageSent(m Message) {
	if AcceptsEcho(c.active, m) {
		c.stream.Append(m)
	}
}

func (c *Controller) onNewRoomMessage(m Message) {
	if AcceptsRoomMessage(c.active, m) {
		c.stream.Append(m)
	}
}

func (c *Controller) onRoomAdded(ctx context.Context, r RoomAdded) {
	suppress := c.created.has(r.Room.ID)
	if me, ok := c.self(); ok && r.Room.Creator == me.ID {
		suppress = true
	}

	if !suppress {
		msg := r.Message
		if msg == "" {
			msg = fmt.Sprintf("You were added to %s", r.Room.Name)
		}
		c.notify.Notify(Notice{Level: Transient, Topic: TopicRoom, Message: msg})
	}

	c.RefreshRooms(ctx)
}

func (c *Controller) room(roomID string) (Room, bool) {
	for _, r := range c.rooms {
		if r.ID == roomID {
			return r, true
		}
	}
	return Room{}, false
}

func (c *Controller) roomName(roomID string) string {
	if r, ok := c.room(roomID); ok && r.Name != "" {
		return r.Name
	}
	return roomID
}

// AcceptsIncoming reports whether a new-message belongs to the active conversation.
func AcceptsIncoming(active Conversation, m Message) bool {
	return active.Kind == DirectConversation && m.Sender.ID == active.PeerID
}

// AcceptsEcho reports whether a message-sent echo belongs to the active conversation.
func AcceptsEcho(active Conversation, m Message) bool {
	switch active.Kind {
	case DirectConversation:
		return m.Recipient == active.PeerID
	case RoomConversation:
		return m.RoomID == active.RoomID
	}
	return false
}

// AcceptsRoomMessage reports whether a new-room-message belongs to the active conversation.
func AcceptsRoomMessage(active Conversation, m Message) bool {
	return active.Kind == RoomConversation && m.RoomID == active.RoomID
}

func errorMessage(err error) string {
	var customErr *errs.CustomError
	if errors.As(err, &customErr) {
		return customErr.Message
	}
	return err.Error()
}

// recentSet is a bounded set evicting its oldest entry when full.
type recentSet struct {
	limit int
	order []string
	items map[string]struct{}
}

func newRecentSet(limit int) *recentSet {
	return &recentSet{limit: limit, items: make(map[string]struct{})}
}

func (s *recentSet) add(id string) {
	if id == "" {
		return
	}
	if _, ok := s.items[id]; ok {
		return
	}
	if len(s.order) >= s.limit {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.items, oldest)
	}
	s.order = append(s.order, id)
	s.items[id] = struct{}{}
}

func (s *recentSet) has(id string) bool {
	_, ok := s.items[id]
	return ok
}

func (s *recentSet) len() int {
	return len(s.order)
}
