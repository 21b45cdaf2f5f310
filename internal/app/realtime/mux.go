package realtime

import (
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"moviechat/internal/pkg/errs"
	"moviechat/internal/pkg/logx"
)

// Handler consumes the raw data of one inbound event.
type Handler func(data json.RawMessage)

// Executor runs dispatch work in order. Post reports false when fn was discarded.
type Executor interface {
	Post(fn func()) bool
}

// Transport is what the Multiplexer needs from the connection Manager.
type Transport interface {
	Current(kind Kind) *Conn
	Send(kind Kind, env Envelope) error
}

// Bus is the subscribe/emit surface the chat components depend on.
type Bus interface {
	Subscribe(kind Kind, event Event, h Handler) (*Subscription, error)
	Emit(kind Kind, event Event, payload any) error
}

type handlerKey struct {
	kind  Kind
	event Event
}

// Subscription is the revocation token returned by Subscribe.
type Subscription struct {
	mux    *Multiplexer
	key    handlerKey
	id     uint64
	fn     Handler
	active atomic.Bool
}

// Unsubscribe removes the handler. Calling it more than once is a no-op.
func (s *Subscription) Unsubscribe() {
	if s == nil || !s.active.CompareAndSwap(true, false) {
		return
	}
	s.mux.remove(s)
}

// Multiplexer routes inbound frames to handlers and validates outbound events.
// Handlers belong to the Multiplexer, not to a connection, so they survive credential swaps
// and may be registered before any connection exists. Every handler runs on the Executor.
type Multiplexer struct {
	exec Executor

	mu        sync.RWMutex
	transport Transport
	handlers  map[handlerKey][]*Subscription
	nextID    uint64

	logger zerolog.Logger
}

// NewMultiplexer constructs a Multiplexer dispatching on exec.
func NewMultiplexer(exec Executor) *Multiplexer {
	return &Multiplexer{
		exec:     exec,
		handlers: make(map[handlerKey][]*Subscription),
		logger:   logx.Component("mux"),
	}
}

// Bind attaches the transport used for emits and for the stale-connection check.
func (m *Multiplexer) Bind(t Transport) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.transport = t
}

// Subscribe registers h for event on the kind connection. Handlers of one event run in
// registration order.
func (m *Multiplexer) Subscribe(kind Kind, event Event, h Handler) (*Subscription, error) {
	if !CanReceive(kind, event) {
		return nil, errs.NewError(errs.ErrUnknownEvent, event, kind)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	sub := &Subscription{mux: m, key: handlerKey{kind, event}, id: m.nextID, fn: h}
	sub.active.Store(true)
	m.handlers[sub.key] = append(m.handlers[sub.key], sub)

	return sub, nil
}

func (m *Multiplexer) remove(sub *Subscription) {
	m.mu.Lock()
	defer m.mu.Unlock()

	subs := m.handlers[sub.key]
	for i, s := range subs {
		if s.id == sub.id {
			m.handlers[sub.key] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(m.handlers[sub.key]) == 0 {
		delete(m.handlers, sub.key)
	}
}

// Emit sends event with payload on the kind connection. It fails with ErrUnknownEvent for
// events the client may not send there and ErrNotConnected unless the connection is Open.
func (m *Multiplexer) Emit(kind Kind, event Event, payload any) error {
	if !CanSend(kind, event) {
		return errs.NewError(errs.ErrUnknownEvent, event, kind)
	}

	m.mu.RLock()
	t := m.transport
	m.mu.RUnlock()

	if t == nil {
		return errs.NewError(errs.ErrNotConnected)
	}

	env, err := NewEnvelope(event, payload)
	if err != nil {
		return err
	}

	if err := t.Send(kind, env); err != nil {
		m.logger.Debug().Err(err).Str("event", string(event)).Str("connection", string(kind)).Msg("Emit failed.")
		return err
	}

	return nil
}

// Deliver implements Sink. It hands the frame to the Executor; dispatch happens there.
func (m *Multiplexer) Deliver(c *Conn, env Envelope) {
	if !CanReceive(c.Kind(), env.Event) {
		m.logger.Warn().Str("event", string(env.Event)).Str("connection", string(c.Kind())).Msg("Dropping unknown inbound event.")
		return
	}

	if !m.exec.Post(func() { m.dispatch(c.Kind(), c, env) }) {
		m.logger.Debug().Str("event", string(env.Event)).Msg("Executor stopped, dropping event.")
	}
}

// Inject dispatches env to the kind handlers as if the current connection had read it.
func (m *Multiplexer) Inject(kind Kind, env Envelope) error {
	if !CanReceive(kind, env.Event) {
		return errs.NewError(errs.ErrUnknownEvent, env.Event, kind)
	}
	if !m.exec.Post(func() { m.dispatch(kind, nil, env) }) {
		return errs.NewError(errs.ErrNotConnected)
	}
	return nil
}

func (m *Multiplexer) dispatch(kind Kind, c *Conn, env Envelope) {
	m.mu.RLock()
	t := m.transport
	subs := append([]*Subscription(nil), m.handlers[handlerKey{kind, env.Event}]...)
	m.mu.RUnlock()

	// A frame read before a credential swap must not reach handlers afterwards.
	if c != nil && t != nil && t.Current(kind) != c {
		m.logger.Debug().Str("event", string(env.Event)).Str("connection", string(kind)).Msg("Dropping event from replaced connection.")
		return
	}

	for _, sub := range subs {
		if sub.active.Load() {
			sub.fn(env.Data)
		}
	}
}

// Validator is implemented by payloads that check their own invariants after decoding.
type Validator interface {
	Validate() error
}

// On subscribes fn to event with its data decoded into T. Payloads that fail to decode or
// validate are logged and dropped.
func On[T any](bus Bus, kind Kind, event Event, fn func(T)) (*Subscription, error) {
	return bus.Subscribe(kind, event, func(data json.RawMessage) {
		if len(data) == 0 {
			data = json.RawMessage("null")
		}

		var v T
		if err := json.Unmarshal(data, &v); err != nil {
			logx.Warn(errs.NewError(errs.ErrInvalidPayload, event).Message, "event", string(event), "error", err.Error())
			return
		}

		if val, ok := any(&v).(Validator); ok {
			if err := val.Validate(); err != nil {
				logx.Warn(errs.NewError(errs.ErrInvalidPayload, event).Message, "event", string(event), "error", err.Error())
				return
			}
		}

		fn(v)
	})
}
