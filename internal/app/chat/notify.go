package chat

import (
	"context"

	"moviechat/internal/app/user"
)

// Level tells the UI how long to keep a notice on screen.
type Level string

const (
	// Transient notices disappear on their own.
	Transient Level = "transient"

	// Persistent notices stay until the user acts.
	Persistent Level = "persistent"

	// Failure notices report an operation that did not complete.
	Failure Level = "error"
)

// Topic groups notices by the component that raised them.
type Topic string

const (
	TopicPresence Topic = "presence"
	TopicRoom     Topic = "room"
	TopicRecovery Topic = "recovery"
	TopicMessage  Topic = "message"
)

// Notice is a user-facing message raised by the session.
type Notice struct {
	Level   Level
	Topic   Topic
	Message string
}

// Notifier receives notices. Notify is called on the session loop and must not block.
type Notifier interface {
	Notify(n Notice)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(n Notice)

func (f NotifierFunc) Notify(n Notice) { f(n) }

// Executor runs completions on the session loop.
type Executor interface {
	Post(fn func()) bool
}

// API is the subset of the REST backend the session uses.
type API interface {
	DirectHistory(ctx context.Context, peerID string) ([]Message, error)
	RoomHistory(ctx context.Context, roomID string) ([]Message, error)
	Rooms(ctx context.Context) ([]Room, error)
	CreateRoom(ctx context.Context, req CreateRoomRequest) (Room, error)
	LeaveRoom(ctx context.Context, roomID string) error
	Contacts(ctx context.Context) ([]user.User, error)
}

// Identity returns the locally authenticated user; ok is false while signed out.
type Identity func() (u user.User, ok bool)

// async runs fetch off the loop and posts done back onto it.
func async[T any](ctx context.Context, exec Executor, fetch func(context.Context) (T, error), done func(T, error)) {
	go func() {
		v, err := fetch(ctx)
		exec.Post(func() { done(v, err) })
	}()
}
