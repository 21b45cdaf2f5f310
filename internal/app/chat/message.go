/*
Package chat contains the client-side chat session: presence tracking, the active
conversation and its message stream, room membership, and recovery after reconnects.

This file defines the payloads exchanged with the chat server over the Chat connection
and the REST history endpoints.
*/
package chat

import (
	"errors"
	"time"

	"moviechat/internal/app/user"
)

// MaxContentBytes is the maximum allowed size (in bytes) of an outgoing message.
const MaxContentBytes = 5000

// Message is one chat message, direct or room-scoped. Exactly one of Recipient and RoomID is set.
type Message struct {
	ID          string    `json:"_id"`
	Sender      user.User `json:"sender"`
	Recipient   string    `json:"recipient,omitempty"`
	RoomID      string    `json:"roomId,omitempty"`
	Message     string    `json:"message"`
	MessageType string    `json:"messageType"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`

	// Read is tracked locally and never sent to the server.
	Read bool `json:"-"`
}

// Validate checks the fields every dispatched message must carry.
func (m *Message) Validate() error {
	switch {
	case m.ID == "":
		return errors.New("message without _id")
	case m.Sender.ID == "":
		return errors.New("message without sender")
	case m.Recipient == "" && m.RoomID == "":
		return errors.New("message without recipient or roomId")
	case m.Recipient != "" && m.RoomID != "":
		return errors.New("message with both recipient and roomId")
	}
	return nil
}

// Room is a named group conversation.
type Room struct {
	ID          string   `json:"_id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	IsPrivate   bool     `json:"isPrivate"`
	Creator     string   `json:"creator"`
	Members     []string `json:"members"`
}

// CreateRoomRequest is the body of the create-room call.
type CreateRoomRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Members     []string `json:"members"`
}

// DirectMessage is the payload of private-message.
type DirectMessage struct {
	RecipientID string `json:"recipientId"`
	Message     string `json:"message"`
}

// RoomMessage is the payload of room-message.
type RoomMessage struct {
	RoomID  string `json:"roomId"`
	Message string `json:"message"`
}

// RoomEvent is the payload of room-joined and room-left.
type RoomEvent struct {
	RoomID string `json:"roomId"`
	Name   string `json:"name"`
}

// RoomAdded is the payload of room-added.
type RoomAdded struct {
	Room    Room   `json:"room"`
	Message string `json:"message"`
}

func (r *RoomAdded) Validate() error {
	if r.Room.ID == "" {
		return errors.New("room-added without room id")
	}
	return nil
}

// OnlineUsers is the payload of online-users-list.
type OnlineUsers struct {
	UserIDs []string `json:"userIds"`
}

// UserOnline is the payload of user-online. User is filled by servers that include the profile.
type UserOnline struct {
	UserID string     `json:"userId"`
	User   *user.User `json:"user,omitempty"`
}

func (u *UserOnline) Validate() error {
	if u.UserID == "" {
		return errors.New("user-online without userId")
	}
	return nil
}

// UserOffline is the payload of user-offline.
type UserOffline struct {
	UserID string `json:"userId"`
}

func (u *UserOffline) Validate() error {
	if u.UserID == "" {
		return errors.New("user-offline without userId")
	}
	return nil
}

// ReconnectionSuccessful is the payload the server sends once it has restored a reconnected session.
type ReconnectionSuccessful struct {
	Message string `json:"message"`
}
