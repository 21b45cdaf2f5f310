package chat

import (
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"moviechat/internal/app/realtime"
	"moviechat/internal/app/user"
	"moviechat/internal/pkg/logx"
)

// Presence tracks which users are online, as reported by the Chat connection.
// It is owned by the session loop.
type Presence struct {
	bus    realtime.Bus
	notify Notifier
	self   Identity

	// lookup resolves a user id to a profile for notices; may be nil.
	lookup func(id string) (user.User, bool)

	online map[string]struct{}

	// stale is true between a disconnect and the next snapshot.
	stale bool

	subs   subscriptions
	logger zerolog.Logger
}

// NewPresence constructs an empty Presence.
func NewPresence(bus realtime.Bus, notify Notifier, self Identity) *Presence {
	return &Presence{
		bus:    bus,
		notify: notify,
		self:   self,
		online: make(map[string]struct{}),
		logger: logx.Component("presence"),
	}
}

// SetDirectory sets the profile lookup used to name users in notices.
func (p *Presence) SetDirectory(lookup func(id string) (user.User, bool)) {
	p.lookup = lookup
}

// Register subscribes Presence to the Chat connection.
func (p *Presence) Register() error {
	return p.subs.addAll(
		func() (*realtime.Subscription, error) {
			return realtime.On(p.bus, realtime.Chat, realtime.EventOnlineUsersList, func(o OnlineUsers) { p.Replace(o.UserIDs) })
		},
		func() (*realtime.Subscription, error) {
			return realtime.On(p.bus, realtime.Chat, realtime.EventUserOnline, p.markOnline)
		},
		func() (*realtime.Subscription, error) {
			return realtime.On(p.bus, realtime.Chat, realtime.EventUserOffline, p.markOffline)
		},
		func() (*realtime.Subscription, error) {
			return realtime.On(p.bus, realtime.Chat, realtime.EventConnect, func(struct{}) {
				p.Reset()
				if err := p.RequestSnapshot(); err != nil {
					p.logger.Warn().Err(err).Msg("Initial presence snapshot request failed.")
				}
			})
		},
		func() (*realtime.Subscription, error) {
			return realtime.On(p.bus, realtime.Chat, realtime.EventDisconnect, func(string) {
				p.Reset()
				p.stale = true
			})
		},
	)
}

// Close removes every subscription made by Register.
func (p *Presence) Close() {
	p.subs.close()
}

// RequestSnapshot asks the server for the full online list. It fails while Chat is not open.
func (p *Presence) RequestSnapshot() error {
	return p.bus.Emit(realtime.Chat, realtime.EventGetOnlineUsers, nil)
}

// Replace installs a snapshot, discarding every incremental update received before it.
func (p *Presence) Replace(ids []string) {
	online := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id != "" {
			online[id] = struct{}{}
		}
	}

	p.online = online
	p.stale = false
	p.logger.Debug().Int("online", len(online)).Msg("Presence snapshot applied.")
}

// Reset empties the set.
func (p *Presence) Reset() {
	p.online = make(map[string]struct{})
}

func (p *Presence) markOnline(u UserOnline) {
	if _, ok := p.online[u.UserID]; ok {
		return
	}
	p.online[u.UserID] = struct{}{}

	if p.isSelf(u.UserID) {
		return
	}

	name := p.displayName(u.UserID)
	if u.User != nil && u.User.Name != "" {
		name = u.User.Name
	}
	p.notify.Notify(Notice{Level: Transient, Topic: TopicPresence, Message: fmt.Sprintf("%s is online", name)})
}

func (p *Presence) markOffline(u UserOffline) {
	if _, ok := p.online[u.UserID]; !ok {
		return
	}
	delete(p.online, u.UserID)

	if p.isSelf(u.UserID) {
		return
	}

	p.notify.Notify(Notice{Level: Transient, Topic: TopicPresence, Message: fmt.Sprintf("%s went offline", p.displayName(u.UserID))})
}

func (p *Presence) isSelf(id string) bool {
	if p.self == nil {
		return false
	}
	me, ok := p.self()
	return ok && me.ID == id
}

func (p *Presence) displayName(id string) string {
	if p.lookup != nil {
		if u, ok := p.lookup(id); ok && u.Name != "" {
			return u.Name
		}
	}
	return id
}

// IsOnline reports whether id is in the set.
func (p *Presence) IsOnline(id string) bool {
	_, ok := p.online[id]
	return ok
}

// Online returns the online ids in lexical order.
func (p *Presence) Online() []string {
	ids := make([]string, 0, len(p.online))
	for id := range p.online {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of online users.
func (p *Presence) Len() int {
	return len(p.online)
}

// Stale reports whether the set was cleared by a disconnect and not yet resynchronized.
func (p *Presence) Stale() bool {
	return p.stale
}

// subscriptions collects the tokens of one component.
type subscriptions []*realtime.Subscription

// addAll runs each subscribe and keeps the tokens. On the first error every token taken so
// far is released.
func (s *subscriptions) addAll(subscribe ...func() (*realtime.Subscription, error)) error {
	for _, fn := range subscribe {
		sub, err := fn()
		if err != nil {
			s.close()
			return err
		}
		*s = append(*s, sub)
	}
	return nil
}

func (s *subscriptions) close() {
	for _, sub := range *s {
		sub.Unsubscribe()
	}
	*s = nil
}
