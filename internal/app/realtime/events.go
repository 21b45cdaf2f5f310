package realtime

// The closed set of events each connection understands. An event is bound to one
// connection kind and one direction; anything outside this table is rejected.

// Kind identifies one of the two logical connections.
type Kind string

const (
	// Public is the unauthenticated broadcast-only connection.
	Public Kind = "public"

	// Chat is the connection authenticated with the bearer credential.
	Chat Kind = "chat"
)

// Event is the name carried in every frame envelope.
type Event string

// Direction tells whether an event is sent by the client, received from the server,
// or synthesized locally by the transport.
type Direction int

const (
	Outbound Direction = iota + 1
	Inbound
	Local
)

// Chat connection events.
const (
	EventPrivateMessage         Event = "private-message"
	EventNewMessage             Event = "new-message"
	EventMessageSent            Event = "message-sent"
	EventRoomMessage            Event = "room-message"
	EventNewRoomMessage         Event = "new-room-message"
	EventJoinRoom               Event = "join-room"
	EventRoomJoined             Event = "room-joined"
	EventLeaveRoom              Event = "leave-room"
	EventRoomLeft               Event = "room-left"
	EventRoomAdded              Event = "room-added"
	EventGetOnlineUsers         Event = "get-online-users"
	EventOnlineUsersList        Event = "online-users-list"
	EventUserOnline             Event = "user-online"
	EventUserOffline            Event = "user-offline"
	EventReconnectionSuccessful Event = "reconnection-successful"
)

// Public connection events.
const (
	EventMovieAdded    Event = "movie-added"
	EventRatingUpdated Event = "rating-updated"
)

// Lifecycle events synthesized by the transport on either connection.
const (
	// EventConnect fires when the first dial cycle of a connection succeeds, including when
	// earlier attempts of that cycle failed. A connection replaced after a credential change
	// starts a new cycle, so it also reports connect.
	EventConnect Event = "connect"

	// EventDisconnect fires when an open connection drops unexpectedly.
	EventDisconnect Event = "disconnect"

	// EventReconnect fires when a dial succeeds after an open connection dropped.
	// Its data is the attempt number.
	EventReconnect Event = "reconnect"

	// EventReconnectFailed fires when the retry policy gives up and the connection is closed.
	EventReconnectFailed Event = "reconnect_failed"
)

type route struct {
	kind      Kind
	direction Direction
}

var routes = map[Event]route{
	EventPrivateMessage:         {Chat, Outbound},
	EventNewMessage:             {Chat, Inbound},
	EventMessageSent:            {Chat, Inbound},
	EventRoomMessage:            {Chat, Outbound},
	EventNewRoomMessage:         {Chat, Inbound},
	EventJoinRoom:               {Chat, Outbound},
	EventRoomJoined:             {Chat, Inbound},
	EventLeaveRoom:              {Chat, Outbound},
	EventRoomLeft:               {Chat, Inbound},
	EventRoomAdded:              {Chat, Inbound},
	EventGetOnlineUsers:         {Chat, Outbound},
	EventOnlineUsersList:        {Chat, Inbound},
	EventUserOnline:             {Chat, Inbound},
	EventUserOffline:            {Chat, Inbound},
	EventReconnectionSuccessful: {Chat, Inbound},
	EventMovieAdded:             {Public, Inbound},
	EventRatingUpdated:          {Public, Inbound},
}

// IsLocal reports whether e is a transport lifecycle event, valid on both connections.
func (e Event) IsLocal() bool {
	switch e {
	case EventConnect, EventDisconnect, EventReconnect, EventReconnectFailed:
		return true
	}
	return false
}

// CanSend reports whether the client may emit e on the kind connection.
func CanSend(kind Kind, e Event) bool {
	r, ok := routes[e]
	return ok && r.kind == kind && r.direction == Outbound
}

// CanReceive reports whether handlers may subscribe to e on the kind connection.
func CanReceive(kind Kind, e Event) bool {
	if e.IsLocal() {
		return kind == Public || kind == Chat
	}
	r, ok := routes[e]
	return ok && r.kind == kind && r.direction == Inbound
}
