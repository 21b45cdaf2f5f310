/*
Package realtime implements the client side of the two socket connections: the public
broadcast connection and the authenticated chat connection.

This file defines Conn, one logical connection with its lifecycle state machine, bounded
retry policy, and the read/write pumps that move frames between the socket and the Sink.
*/
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"moviechat/internal/pkg/errs"
	"moviechat/internal/pkg/logx"
)

const (
	// timeout duration for writing to the WebSocket connection.
	writeWait = 10 * time.Second

	// maximum time allowed between two server pings before the connection is considered dead.
	pongWait = 60 * time.Second

	// maximum allowed size (in bytes) of a frame received from the server.
	maxMessageSize = 64 * 1024

	// capacity of the outbound frame queue of an open connection.
	sendQueueSize = 256

	// ReconnectHeader carries the attempt number on dials that follow a drop, so the server
	// can confirm recovery with reconnection-successful.
	ReconnectHeader = "X-Reconnect-Attempt"
)

// State is the lifecycle state of a Conn.
type State string

const (
	Closed       State = "closed"
	Connecting   State = "connecting"
	Open         State = "open"
	Reconnecting State = "reconnecting"
)

// Sink receives every frame read from a connection and every lifecycle event it synthesizes.
// Deliver is called from the connection's reader goroutine, in receipt order.
type Sink interface {
	Deliver(c *Conn, env Envelope)
}

// Failure is the data of EventReconnectFailed.
type Failure struct {
	Attempts int    `json:"attempts"`
	Reason   string `json:"reason"`
}

// Conn is one logical connection. It is opened once and, after Close or retry exhaustion,
// never reused: the Manager creates a fresh Conn for every open.
type Conn struct {
	kind       Kind
	url        string
	credential string
	policy     RetryPolicy
	dialer     *websocket.Dialer
	sink       Sink

	mu sync.Mutex

	// current lifecycle state.
	state State

	// outbound queue of the live socket; nil while not Open.
	send chan []byte

	// set once Close has been called.
	closed bool

	cancel context.CancelFunc

	// closed when the run goroutine exits.
	done chan struct{}

	logger zerolog.Logger
}

func newConn(kind Kind, url, credential string, policy RetryPolicy, dialer *websocket.Dialer, sink Sink) *Conn {
	return &Conn{
		kind:       kind,
		url:        url,
		credential: credential,
		policy:     policy,
		dialer:     dialer,
		sink:       sink,
		state:      Closed,
		done:       make(chan struct{}),
		logger:     logx.Logger().With().Str("component", "transport").Str("connection", string(kind)).Logger(),
	}
}

// Kind returns the logical identity of the connection.
func (c *Conn) Kind() Kind {
	return c.kind
}

// Credential returns the credential the connection was opened with (empty for Public).
func (c *Conn) Credential() string {
	return c.credential
}

// State returns the current lifecycle state.
func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.state
}

// Done returns a channel closed once the connection has fully stopped.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

func (c *Conn) setState(s State) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	if c.state != s {
		c.logger.Debug().Str("from", string(c.state)).Str("to", string(s)).Msg("Connection state changed.")
	}
	c.state = s
}

// open starts the connection lifecycle in the background.
func (c *Conn) open(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.setState(Connecting)

	go c.run(runCtx)
}

// Close tears the connection down. Pending outbound frames are dropped. It does not wait
// for the background goroutines; use Done for that.
func (c *Conn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.state = Closed
	c.send = nil
	c.mu.Unlock()

	c.logger.Info().Msg("Connection closed by client.")

	if c.cancel != nil {
		c.cancel()
	}
}

// Send queues env for writing. It fails with ErrNotConnected unless the connection is Open.
func (c *Conn) Send(env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal %s frame: %w", env.Event, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != Open || c.send == nil {
		return errs.NewError(errs.ErrNotConnected)
	}

	select {
	case c.send <- data:
		return nil
	default:
		c.logger.Warn().Int("queue_len", len(c.send)).Msg("Send queue full, dropping frame.")
		return errs.NewError(errs.ErrSendQueueFull)
	}
}

// run drives the state machine until the context is cancelled or the retry policy gives up.
func (c *Conn) run(ctx context.Context) {
	defer close(c.done)
	defer c.setState(Closed)

	reconnecting := false

	for {
		ws, attempts, err := c.dial(ctx, reconnecting)
		if err != nil {
			if ctx.Err() != nil {
				return
			}

			c.logger.Error().Err(err).Int("attempts", attempts).Msg("Connection attempts exhausted.")
			c.setState(Closed)
			c.deliverLocal(EventReconnectFailed, Failure{Attempts: attempts, Reason: err.Error()})
			return
		}

		send := c.attach(ws)

		if reconnecting {
			c.logger.Info().Int("attempt", attempts).Msg("Reconnected.")
			c.deliverLocal(EventReconnect, attempts)
		} else {
			c.logger.Info().Int("attempt", attempts).Msg("Connected.")
			c.deliverLocal(EventConnect, nil)
		}

		readErr := c.serve(ctx, ws, send)

		if ctx.Err() != nil {
			return
		}

		c.detach()
		c.logger.Warn().Err(readErr).Msg("Connection dropped.")
		c.deliverLocal(EventDisconnect, disconnectReason(readErr))
		reconnecting = true
	}
}

// dial performs one retry cycle, returning the socket and the number of attempts used.
func (c *Conn) dial(ctx context.Context, reconnecting bool) (*websocket.Conn, int, error) {
	attempts := 0

	operation := func() (*websocket.Conn, error) {
		attempts++
		if reconnecting || attempts > 1 {
			c.setState(Reconnecting)
		} else {
			c.setState(Connecting)
		}

		header := http.Header{}
		if c.credential != "" {
			header.Set("Authorization", "Bearer "+c.credential)
		}
		if reconnecting {
			header.Set(ReconnectHeader, strconv.Itoa(attempts))
		}

		ws, res, err := c.dialer.DialContext(ctx, c.url, header)
		if err != nil {
			if res != nil && (res.StatusCode == http.StatusUnauthorized || res.StatusCode == http.StatusForbidden) {
				return nil, backoff.Permanent(errs.NewError(errs.ErrHandshakeRejected))
			}

			c.logger.Debug().Err(err).Int("attempt", attempts).Msg("Dial failed.")
			return nil, err
		}

		return ws, nil
	}

	ws, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewConstantBackOff(c.policy.Delay)),
		backoff.WithMaxTries(uint(c.policy.Attempts)),
	)
	if err != nil {
		return nil, attempts, err
	}

	return ws, attempts, nil
}

// attach installs a fresh outbound queue for a newly dialed socket and marks the connection Open.
func (c *Conn) attach(ws *websocket.Conn) chan []byte {
	send := make(chan []byte, sendQueueSize)

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.send = send
		c.state = Open
	}

	return send
}

// detach drops the outbound queue of a dead socket. Queued frames are lost.
func (c *Conn) detach() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.send = nil
	if !c.closed {
		c.state = Reconnecting
	}
}

// serve pumps frames in both directions until the socket fails or ctx is cancelled.
// It returns the read error that ended the session.
func (c *Conn) serve(ctx context.Context, ws *websocket.Conn, send <-chan []byte) error {
	sessionCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		c.writePump(sessionCtx, ws, send)
	}()

	err := c.readPump(ws)

	cancel()
	<-writerDone

	return err
}

// readPump reads frames until the socket fails. Server pings extend the read deadline.
func (c *Conn) readPump(ws *websocket.Conn) error {
	ws.SetReadLimit(maxMessageSize)

	if err := ws.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		return err
	}

	ws.SetPingHandler(func(appData string) error {
		if err := ws.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			return err
		}

		err := ws.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(writeWait))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return err
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.logger.Warn().Err(err).Bytes("frame", data).Msg("Server sent invalid JSON frame.")
			continue
		}

		if env.Event.IsLocal() {
			c.logger.Warn().Str("event", string(env.Event)).Msg("Server sent a reserved lifecycle event.")
			continue
		}

		c.sink.Deliver(c, env)
	}
}

// writePump writes queued frames to the socket. On cancellation it sends a close frame,
// then closes the socket so the reader unblocks.
func (c *Conn) writePump(ctx context.Context, ws *websocket.Conn, send <-chan []byte) {
	defer func() {
		if err := ws.Close(); err != nil {
			c.logger.Debug().Err(err).Msg("Socket close error in writePump.")
		}
	}()

	for {
		select {
		case data := <-send:
			if err := ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.logger.Error().Err(err).Msg("Failed to set write deadline.")
				return
			}

			if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Error().Err(err).Msg("Error writing frame.")
				return
			}

		case <-ctx.Done():
			closeMessage := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			if err := ws.WriteControl(websocket.CloseMessage, closeMessage, time.Now().Add(writeWait)); err != nil {
				c.logger.Debug().Err(err).Msg("Error writing close frame.")
			}
			return
		}
	}
}

func (c *Conn) deliverLocal(e Event, payload any) {
	env, err := NewEnvelope(e, payload)
	if err != nil {
		c.logger.Error().Err(err).Str("event", string(e)).Msg("Failed to build lifecycle event.")
		return
	}

	c.sink.Deliver(c, env)
}

func disconnectReason(err error) string {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		if closeErr.Text != "" {
			return closeErr.Text
		}
		return "close " + strconv.Itoa(closeErr.Code)
	}
	if err == nil {
		return "transport closed"
	}
	return "transport error"
}
