package chat

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"moviechat/internal/pkg/logx"
)

// ConversationKind distinguishes the three states of the active conversation.
type ConversationKind int

const (
	NoConversation ConversationKind = iota
	DirectConversation
	RoomConversation
)

// Conversation is the active conversation: nothing, one peer, or one room.
type Conversation struct {
	Kind   ConversationKind
	PeerID string
	RoomID string
}

// Direct returns the conversation with peer id.
func Direct(peerID string) Conversation {
	return Conversation{Kind: DirectConversation, PeerID: peerID}
}

// InRoom returns the conversation of room id.
func InRoom(roomID string) Conversation {
	return Conversation{Kind: RoomConversation, RoomID: roomID}
}

func (c Conversation) String() string {
	switch c.Kind {
	case DirectConversation:
		return "direct:" + c.PeerID
	case RoomConversation:
		return "room:" + c.RoomID
	}
	return "none"
}

// Stream is the ordered message list of the active conversation.
// It is owned by the session loop.
type Stream struct {
	exec Executor
	api  API

	messages []Message

	// target is the conversation the messages belong to.
	target Conversation

	// loadSeq identifies the latest history load; older results are discarded.
	loadSeq uint64

	// loading is true until the latest history load completes.
	loading bool

	logger zerolog.Logger
}

// NewStream constructs an empty Stream.
func NewStream(exec Executor, api API) *Stream {
	return &Stream{
		exec:   exec,
		api:    api,
		logger: logx.Component("stream"),
	}
}

// LoadHistory empties the stream and replaces it with the history of c once fetched.
// A failed fetch leaves it empty. Only the latest load started for the current target applies.
func (s *Stream) LoadHistory(ctx context.Context, c Conversation) {
	s.loadSeq++
	seq := s.loadSeq
	s.target = c
	s.messages = nil

	if c.Kind == NoConversation {
		s.loading = false
		return
	}
	s.loading = true

	async(ctx, s.exec, func(ctx context.Context) ([]Message, error) {
		return s.fetch(ctx, c)
	}, func(history []Message, err error) {
		if seq != s.loadSeq || s.target != c {
			s.logger.Debug().Str("conversation", c.String()).Msg("Discarding stale history result.")
			return
		}
		s.loading = false

		if err != nil {
			s.logger.Warn().Err(err).Str("conversation", c.String()).Msg("History fetch failed.")
			s.messages = nil
			return
		}

		// Live events may have been appended while the fetch was in flight.
		live := s.messages
		s.messages = make([]Message, 0, len(history)+len(live))
		s.messages = append(s.messages, history...)
		for _, m := range live {
			if !s.contains(m.ID) {
				s.messages = append(s.messages, m)
			}
		}
	})
}

func (s *Stream) fetch(ctx context.Context, c Conversation) ([]Message, error) {
	switch c.Kind {
	case DirectConversation:
		return s.api.DirectHistory(ctx, c.PeerID)
	case RoomConversation:
		return s.api.RoomHistory(ctx, c.RoomID)
	}
	return nil, fmt.Errorf("no history for conversation %s", c)
}

// Replace sets the content of the stream directly.
func (s *Stream) Replace(messages []Message) {
	s.messages = append([]Message(nil), messages...)
}

// Append adds m to the end of the stream.
func (s *Stream) Append(m Message) {
	s.messages = append(s.messages, m)
}

// Reset empties the stream and cancels the effect of any pending history load.
func (s *Stream) Reset() {
	s.loadSeq++
	s.target = Conversation{}
	s.messages = nil
	s.loading = false
}

// Messages returns a copy of the stream.
func (s *Stream) Messages() []Message {
	return append([]Message(nil), s.messages...)
}

// Loading reports whether the latest history load is still in flight.
func (s *Stream) Loading() bool {
	return s.loading
}

// Target returns the conversation the stream holds.
func (s *Stream) Target() Conversation {
	return s.target
}

// MarkRead sets the local read flag of message id and reports whether it was found.
func (s *Stream) MarkRead(id string) bool {
	for i := range s.messages {
		if s.messages[i].ID == id {
			s.messages[i].Read = true
			return true
		}
	}
	return false
}

func (s *Stream) contains(id string) bool {
	for _, m := range s.messages {
		if m.ID == id {
			return true
		}
	}
	return false
}
