/*
Package hub contains the server side of both realtime connections of the development backend.

Hub serves the authenticated chat socket: it tracks who is online, relays direct and room
messages, and tells room members when they are added to a room. Broadcaster serves the public
socket and pushes catalog changes to every connected client.

This file defines the Client struct, one accepted WebSocket connection, with its read and write
pumps.
*/
package hub

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"moviechat/internal/app/realtime"
	"moviechat/internal/app/user"
	"moviechat/internal/pkg/errs"
	"moviechat/internal/pkg/logx"
)

const (
	// timeout duration for writing to the WebSocket connection.
	writeWait = 10 * time.Second

	// maximum time allowed for the server to wait for a Pong message from the client.
	pongWait = 60 * time.Second

	// frequency at which the server sends a Ping message.
	pingPeriod = (pongWait * 9) / 10

	// maximum allowed size (in bytes) of a frame sent by the client.
	maxMessageSize = 64 << 10

	sendBufferSize = 256
)

// owner is the hub a client reports to.
type owner interface {
	inbound(c *Client, env realtime.Envelope)
	unregister(c *Client)
}

// Client represents an accepted WebSocket connection and its authenticated user (zero on the
// public socket).
type Client struct {
	owner owner
	conn  *websocket.Conn
	user  user.User

	// reconnectAttempt is the attempt number the client announced in its handshake; 0 on a first connect.
	reconnectAttempt int

	// a buffered channel used to queue frames waiting to be written.
	send      chan []byte
	closeOnce sync.Once

	logger zerolog.Logger
}

func newClient(o owner, conn *websocket.Conn, u user.User, reconnectAttempt int, component string) *Client {
	return &Client{
		owner:            o,
		conn:             conn,
		user:             u,
		reconnectAttempt: reconnectAttempt,
		send:             make(chan []byte, sendBufferSize),
		logger: logx.Logger().With().
			Str("component", component).
			Str("client_id", u.ID).
			Str("remote_addr", conn.RemoteAddr().String()).
			Logger(),
	}
}

// User returns the authenticated user of the connection.
func (c *Client) User() user.User {
	return c.user
}

// ReadPump reads frames until the connection fails, handing every envelope to the owner.
func (c *Client) ReadPump() {
	defer c.cleanupOnDisconnect()

	c.conn.SetReadLimit(maxMessageSize)

	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set read deadline")
		return
	}

	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Info().Err(err).Msg("Error reading message (Client close/going away)")
			}
			break
		}

		var env realtime.Envelope
		if err := json.Unmarshal(frame, &env); err != nil || env.Event == "" {
			c.logger.Warn().Err(err).Bytes("frame", frame).Msg("Client sent invalid envelope")
			continue
		}

		c.owner.inbound(c, env)
	}
}

func (c *Client) cleanupOnDisconnect() {
	c.logger.Debug().Msg("Client connection cleanup starting.")

	c.owner.unregister(c)

	if err := c.conn.Close(); err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		c.logger.Debug().Err(err).Msg("Client connection close error")
	}
}

// WritePump writes queued frames and periodic pings. It sends a close frame once the send
// channel is closed.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()

		if err := c.conn.Close(); err != nil {
			c.logger.Debug().Err(err).Msg("Client connection close error in WritePump")
		}
	}()

	for {
		select {
		case frame, ok := <-c.send:
			if !c.writeQueuedFrame(frame, ok) {
				return
			}

		case <-ticker.C:
			if !c.writePing() {
				return
			}
		}
	}
}

// writeQueuedFrame returns false when the pump should stop.
func (c *Client) writeQueuedFrame(frame []byte, ok bool) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set write deadline")
		return false
	}

	if !ok {
		if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
			c.logger.Debug().Err(err).Msg("Error writing close message")
		}
		return false
	}

	if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		c.logger.Error().Err(err).Msg("Error writing message")
		return false
	}

	return true
}

func (c *Client) writePing() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set write deadline on ping")
		return false
	}

	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		c.logger.Error().Err(err).Msg("Error writing ping")
		return false
	}

	return true
}

// sendEnvelope queues one frame. A full queue drops the frame.
func (c *Client) sendEnvelope(e realtime.Event, payload any) error {
	env, err := realtime.NewEnvelope(e, payload)
	if err != nil {
		c.logger.Error().Err(err).Msg("Error building envelope for client")
		return err
	}

	frame, err := json.Marshal(env)
	if err != nil {
		c.logger.Error().Err(err).Msg("Error marshaling envelope for client")
		return err
	}

	return c.sendFrame(frame)
}

func (c *Client) sendFrame(frame []byte) error {
	select {
	case c.send <- frame:
		return nil
	default:
		c.logger.Warn().Int("queue_len", len(c.send)).Msg("Client send channel full, dropping frame")
		return errs.NewError(errs.ErrSendQueueFull)
	}
}

// closeSend makes WritePump send a close frame and exit. Safe to call more than once.
func (c *Client) closeSend() {
	c.closeOnce.Do(func() { close(c.send) })
}
