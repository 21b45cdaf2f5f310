package chat

import (
	"github.com/rs/zerolog"

	"moviechat/internal/app/realtime"
	"moviechat/internal/pkg/errs"
	"moviechat/internal/pkg/logx"
)

// RecoveryState is Stable while the Chat connection is healthy and Degraded during a gap.
type RecoveryState string

const (
	Stable   RecoveryState = "stable"
	Degraded RecoveryState = "degraded"
)

// Recovery reacts to the Chat connection lifecycle. A drop degrades the session silently; the
// reconnect restores it and resynchronizes presence. It never blocks sends.
type Recovery struct {
	bus      realtime.Bus
	notify   Notifier
	presence *Presence

	state RecoveryState

	subs   subscriptions
	logger zerolog.Logger
}

// NewRecovery constructs a Recovery in the Stable state.
func NewRecovery(bus realtime.Bus, notify Notifier, presence *Presence) *Recovery {
	return &Recovery{
		bus:      bus,
		notify:   notify,
		presence: presence,
		state:    Stable,
		logger:   logx.Component("recovery"),
	}
}

// Register subscribes Recovery to the lifecycle events of both connections.
func (r *Recovery) Register() error {
	return r.subs.addAll(
		func() (*realtime.Subscription, error) {
			return realtime.On(r.bus, realtime.Chat, realtime.EventDisconnect, r.onDisconnect)
		},
		func() (*realtime.Subscription, error) {
			return realtime.On(r.bus, realtime.Chat, realtime.EventReconnect, r.onReconnect)
		},
		func() (*realtime.Subscription, error) {
			return realtime.On(r.bus, realtime.Chat, realtime.EventConnect, func(struct{}) { r.onConnect() })
		},
		func() (*realtime.Subscription, error) {
			return realtime.On(r.bus, realtime.Chat, realtime.EventReconnectionSuccessful, r.onRecovered)
		},
		func() (*realtime.Subscription, error) {
			return realtime.On(r.bus, realtime.Chat, realtime.EventReconnectFailed, func(f realtime.Failure) {
				r.onFailed(realtime.Chat, f)
			})
		},
		func() (*realtime.Subscription, error) {
			return realtime.On(r.bus, realtime.Public, realtime.EventReconnectFailed, func(f realtime.Failure) {
				r.onFailed(realtime.Public, f)
			})
		},
	)
}

// Close removes every subscription made by Register.
func (r *Recovery) Close() {
	r.subs.close()
}

// State returns the current recovery state.
func (r *Recovery) State() RecoveryState {
	return r.state
}

// Reset returns to Stable without notices, used when the credential changes.
func (r *Recovery) Reset() {
	r.state = Stable
}

func (r *Recovery) onDisconnect(reason string) {
	if r.state == Degraded {
		return
	}
	r.state = Degraded
	r.logger.Info().Str("reason", reason).Msg("Chat connection lost, waiting for reconnect.")
}

func (r *Recovery) onReconnect(attempt int) {
	if r.state != Degraded {
		return
	}
	r.state = Stable
	r.logger.Info().Int("attempt", attempt).Msg("Chat connection restored.")

	r.notify.Notify(Notice{Level: Transient, Topic: TopicRecovery, Message: "Reconnected to chat"})

	if err := r.presence.RequestSnapshot(); err != nil {
		r.logger.Warn().Err(err).Msg("Presence resync request failed.")
	}
}

// onConnect covers a gap closed by a new connection rather than a redial of the old one, as
// after a credential refresh. The server sends no reconnection-successful in that case.
// Presence requests its own snapshot on connect.
func (r *Recovery) onConnect() {
	if r.state != Degraded {
		return
	}
	r.state = Stable
	r.logger.Info().Msg("Chat connection replaced during a gap.")

	r.notify.Notify(Notice{Level: Transient, Topic: TopicRecovery, Message: "Reconnected to chat"})
}

func (r *Recovery) onRecovered(p ReconnectionSuccessful) {
	r.state = Stable

	msg := p.Message
	if msg == "" {
		msg = "Chat session recovered"
	}
	r.notify.Notify(Notice{Level: Transient, Topic: TopicRecovery, Message: msg})
}

func (r *Recovery) onFailed(kind realtime.Kind, f realtime.Failure) {
	r.logger.Error().Str("connection", string(kind)).Int("attempts", f.Attempts).Str("reason", f.Reason).Msg("Reconnect attempts exhausted.")

	msg := errs.NewError(errs.ErrReconnectExhausted).Message
	if kind == realtime.Public {
		msg = "Live movie updates are unavailable. Reload to try again."
	}
	r.notify.Notify(Notice{Level: Persistent, Topic: TopicRecovery, Message: msg})
}
