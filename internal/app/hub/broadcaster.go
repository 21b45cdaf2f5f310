package hub

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"moviechat/internal/app/realtime"
	"moviechat/internal/app/user"
	"moviechat/internal/pkg/logx"
)

// Broadcaster serves the public socket. Clients only listen; frames they send are ignored.
type Broadcaster struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	closed  bool
	logger  zerolog.Logger
}

// NewBroadcaster creates an empty Broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		clients: make(map[*Client]struct{}),
		logger:  logx.Component("broadcaster"),
	}
}

// Serve runs one public connection until it closes.
func (b *Broadcaster) Serve(conn *websocket.Conn) {
	client := newClient(b, conn, user.User{}, 0, "broadcaster")

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		conn.Close()
		return
	}
	b.clients[client] = struct{}{}
	b.mu.Unlock()

	go client.WritePump()
	client.ReadPump()
}

// Broadcast sends one event to every public connection and returns how many were reached.
func (b *Broadcaster) Broadcast(e realtime.Event, payload any) int {
	env, err := realtime.NewEnvelope(e, payload)
	if err != nil {
		b.logger.Error().Err(err).Str("event", string(e)).Msg("Failed to build broadcast envelope")
		return 0
	}
	frame, err := json.Marshal(env)
	if err != nil {
		b.logger.Error().Err(err).Str("event", string(e)).Msg("Failed to marshal broadcast envelope")
		return 0
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	sent := 0
	for c := range b.clients {
		if c.sendFrame(frame) == nil {
			sent++
		}
	}

	b.logger.Debug().Str("event", string(e)).Int("clients", sent).Msg("Broadcast sent")
	return sent
}

// Len returns the number of connected clients.
func (b *Broadcaster) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// Close disconnects every client and rejects new ones.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	for c := range b.clients {
		delete(b.clients, c)
		c.closeSend()
	}
}

func (b *Broadcaster) inbound(c *Client, env realtime.Envelope) {
	c.logger.Debug().Str("event", string(env.Event)).Msg("Ignoring frame on the public socket")
}

func (b *Broadcaster) unregister(c *Client) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.clients[c]; ok {
		delete(b.clients, c)
		c.closeSend()
	}
}
