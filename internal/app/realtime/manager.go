package realtime

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"moviechat/internal/pkg/errs"
	"moviechat/internal/pkg/logx"
)

// RetryPolicy bounds the dial attempts of one reconnection cycle.
type RetryPolicy struct {
	// total dial attempts before the cycle gives up.
	Attempts int

	// fixed delay between two attempts.
	Delay time.Duration
}

// DefaultRetryPolicy is five attempts one second apart.
var DefaultRetryPolicy = RetryPolicy{Attempts: 5, Delay: time.Second}

// Options configures a Manager.
type Options struct {
	// PublicURL is the socket endpoint of the broadcast connection, e.g. ws://host/socket.
	PublicURL string

	// ChatURL is the socket endpoint of the authenticated connection, e.g. ws://host/socket/chat.
	ChatURL string

	Retry RetryPolicy

	// Dialer overrides the websocket dialer; nil uses a dialer with a 10s handshake timeout.
	Dialer *websocket.Dialer
}

// Manager owns the at-most-one Public and at-most-one Chat connection.
// All methods are safe for concurrent use.
type Manager struct {
	opts Options
	sink Sink

	// root context every connection derives from; set by Start.
	ctx context.Context

	// mu protects conns.
	mu sync.Mutex

	// conns holds the current connection of each kind.
	conns map[Kind]*Conn

	// structured logger with Manager context.
	logger zerolog.Logger
}

// NewManager constructs a Manager delivering every frame and lifecycle event to sink.
func NewManager(opts Options, sink Sink) *Manager {
	if opts.Retry.Attempts <= 0 {
		opts.Retry.Attempts = DefaultRetryPolicy.Attempts
	}
	if opts.Retry.Delay < 0 {
		opts.Retry.Delay = DefaultRetryPolicy.Delay
	}
	if opts.Dialer == nil {
		opts.Dialer = &websocket.Dialer{
			Proxy:            websocket.DefaultDialer.Proxy,
			HandshakeTimeout: 10 * time.Second,
		}
	}

	return &Manager{
		opts:   opts,
		sink:   sink,
		ctx:    context.Background(),
		conns:  make(map[Kind]*Conn),
		logger: logx.Component("Manager"),
	}
}

// Start sets the context bounding every connection opened afterwards.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ctx = ctx
}

// OpenPublic opens the broadcast connection. A second call is a no-op while the first
// connection is still alive.
func (m *Manager) OpenPublic() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c, ok := m.conns[Public]; ok && c.State() != Closed {
		return
	}

	m.openLocked(Public, m.opts.PublicURL, "")
}

// OpenChat reconciles the chat connection with credential. An empty credential closes it.
// An unchanged credential on a live connection is a no-op. Any other credential closes the
// current connection and opens a new one, so frames from the old one are never dispatched.
// It reports whether a new connection was opened.
func (m *Manager) OpenChat(credential string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.conns[Chat]

	if credential == "" {
		if ok {
			current.Close()
			delete(m.conns, Chat)
			m.logger.Info().Msg("Chat connection closed, credential cleared.")
		}
		return false
	}

	if ok && current.Credential() == credential && current.State() != Closed {
		return false
	}

	if ok {
		current.Close()
		m.logger.Info().Msg("Credential changed, replacing chat connection.")
	}

	m.openLocked(Chat, m.opts.ChatURL, credential)
	return true
}

func (m *Manager) openLocked(kind Kind, url, credential string) {
	c := newConn(kind, url, credential, m.opts.Retry, m.opts.Dialer, m.sink)
	m.conns[kind] = c
	c.open(m.ctx)

	m.logger.Info().Str("connection", string(kind)).Str("url", url).Msg("Opening connection.")
}

// Current returns the live connection of kind, or nil.
func (m *Manager) Current(kind Kind) *Conn {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.conns[kind]
}

// State returns the lifecycle state of the kind connection; Closed when there is none.
func (m *Manager) State(kind Kind) State {
	c := m.Current(kind)
	if c == nil {
		return Closed
	}
	return c.State()
}

// Send writes env on the kind connection.
func (m *Manager) Send(kind Kind, env Envelope) error {
	c := m.Current(kind)
	if c == nil {
		return errs.NewError(errs.ErrNotConnected)
	}
	return c.Send(env)
}

// Close tears down the kind connection if one exists.
func (m *Manager) Close(kind Kind) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c, ok := m.conns[kind]; ok {
		c.Close()
		delete(m.conns, kind)
	}
}

// Shutdown closes every connection and waits for their goroutines to exit.
func (m *Manager) Shutdown() {
	m.logger.Info().Msg("Shutting down connections...")

	m.mu.Lock()
	conns := make([]*Conn, 0, len(m.conns))
	for kind, c := range m.conns {
		c.Close()
		conns = append(conns, c)
		delete(m.conns, kind)
	}
	m.mu.Unlock()

	for _, c := range conns {
		<-c.Done()
	}

	m.logger.Info().Msg("Manager shutdown complete.")
}
