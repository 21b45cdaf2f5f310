package chat

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"moviechat/internal/app/realtime"
	"moviechat/internal/app/user"
	"moviechat/internal/pkg/errs"
	"moviechat/internal/pkg/eventloop"
	"moviechat/internal/pkg/logx"
)

// DefaultPresenceInterval is how often the online list is refreshed while Chat is open.
const DefaultPresenceInterval = 60 * time.Second

// Credentials is the read side of the authentication store.
type Credentials interface {
	Token() string
	User() (user.User, bool)

	// Subscribe calls fn after every credential change and returns the unsubscribe function.
	Subscribe(fn func(token string)) (cancel func())
}

// Options configures a Session.
type Options struct {
	Transport        realtime.Options
	PresenceInterval time.Duration
}

// View is a consistent snapshot of the session state for rendering.
type View struct {
	User     user.User
	SignedIn bool

	Active   Conversation
	Messages []Message
	Loading  bool

	Rooms    []Room
	Contacts []user.User
	Online   []string

	Chat     realtime.State
	Public   realtime.State
	Recovery RecoveryState
}

// Session wires the transport, the event loop, and the chat components together.
// Every exported method is safe for concurrent use; the state itself lives on the loop.
type Session struct {
	opts   Options
	api    API
	creds  Credentials
	notify Notifier

	loop      *eventloop.Loop
	mux       *realtime.Multiplexer
	transport *realtime.Manager

	presence *Presence
	stream   *Stream
	rooms    *Controller
	recovery *Recovery

	// loop-owned identity of the signed-in user.
	self        user.User
	signedIn    bool
	contacts    []user.User
	contactsGen uint64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	unsubscribeCreds func()

	logger zerolog.Logger
}

// NewSession constructs a Session. Nothing connects until Start.
func NewSession(opts Options, api API, creds Credentials, notify Notifier) *Session {
	if opts.PresenceInterval == 0 {
		opts.PresenceInterval = DefaultPresenceInterval
	}
	if notify == nil {
		notify = NotifierFunc(func(Notice) {})
	}

	s := &Session{
		opts:   opts,
		api:    api,
		creds:  creds,
		notify: notify,
		loop:   eventloop.New(),
		logger: logx.Component("session"),
	}

	s.mux = realtime.NewMultiplexer(s.loop)
	s.transport = realtime.NewManager(opts.Transport, s.mux)
	s.mux.Bind(s.transport)

	identity := func() (user.User, bool) { return s.self, s.signedIn }

	s.presence = NewPresence(s.mux, notify, identity)
	s.presence.SetDirectory(s.lookupContact)
	s.stream = NewStream(s.loop, api)
	s.rooms = NewController(s.mux, api, s.loop, notify, s.presence, s.stream, identity)
	s.recovery = NewRecovery(s.mux, notify, s.presence)

	return s
}

// Start runs the loop, opens the Public connection, and opens Chat when a credential exists.
func (s *Session) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop.Run(s.ctx)
	}()

	s.transport.Start(s.ctx)

	s.unsubscribeCreds = s.creds.Subscribe(func(string) {
		s.loop.Post(s.applyCredential)
	})

	err := s.loop.Call(ctx, func() error {
		if err := s.presence.Register(); err != nil {
			return err
		}
		if err := s.rooms.Register(s.ctx); err != nil {
			return err
		}
		if err := s.recovery.Register(); err != nil {
			return err
		}

		s.transport.OpenPublic()
		s.applyCredential()
		return nil
	})
	if err != nil {
		s.Close()
		return err
	}

	s.wg.Add(1)
	go s.runPresenceTicker()

	s.logger.Info().Msg("Chat session started.")
	return nil
}

// Close disconnects both connections and stops the loop.
func (s *Session) Close() {
	if s.unsubscribeCreds != nil {
		s.unsubscribeCreds()
	}

	s.presence.Close()
	s.rooms.Close()
	s.recovery.Close()

	if s.cancel != nil {
		s.cancel()
	}
	s.transport.Shutdown()
	s.wg.Wait()

	s.logger.Info().Msg("Chat session closed.")
}

// Bus exposes the multiplexer so other features (the movie feed) can subscribe on the loop.
func (s *Session) Bus() realtime.Bus {
	return s.mux
}

// applyCredential reconciles the Chat connection and the per-user state with the store.
func (s *Session) applyCredential() {
	token := s.creds.Token()
	me, ok := s.creds.User()
	if token == "" {
		ok = false
	}
	if !ok {
		me = user.User{}
	}

	changed := me.ID != s.self.ID
	if changed {
		s.rooms.Reset()
		s.presence.Reset()
		s.recovery.Reset()
		s.contacts = nil
		s.contactsGen++
	}
	s.self = me
	s.signedIn = ok

	if s.transport.OpenChat(token) {
		s.logger.Info().Str("user_id", me.ID).Msg("Chat connection (re)opened for credential.")
	}

	if changed && ok {
		s.rooms.RefreshRooms(s.ctx)
		s.refreshContacts()
	}
}

func (s *Session) refreshContacts() {
	gen := s.contactsGen
	async(s.ctx, s.loop, s.api.Contacts, func(contacts []user.User, err error) {
		if gen != s.contactsGen {
			return
		}
		if err != nil {
			s.logger.Warn().Err(err).Msg("Contact list refresh failed.")
			return
		}
		s.contacts = contacts
	})
}

func (s *Session) lookupContact(id string) (user.User, bool) {
	for _, u := range s.contacts {
		if u.ID == id {
			return u, true
		}
	}
	return user.User{}, false
}

func (s *Session) runPresenceTicker() {
	defer s.wg.Done()

	if s.opts.PresenceInterval < 0 {
		return
	}

	ticker := time.NewTicker(s.opts.PresenceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.loop.Post(func() {
				if s.transport.State(realtime.Chat) != realtime.Open {
					return
				}
				if err := s.presence.RequestSnapshot(); err != nil {
					s.logger.Debug().Err(err).Msg("Periodic presence request failed.")
				}
			})
		case <-s.ctx.Done():
			return
		}
	}
}

// SelectDirectPeer opens the conversation with peerID.
func (s *Session) SelectDirectPeer(ctx context.Context, peerID string) error {
	return s.loop.Call(ctx, func() error {
		return s.rooms.SelectDirectPeer(s.ctx, peerID)
	})
}

// SelectRoom opens the conversation of roomID.
func (s *Session) SelectRoom(ctx context.Context, roomID string) error {
	return s.loop.Call(ctx, func() error {
		return s.rooms.SelectRoom(s.ctx, roomID)
	})
}

// ClearConversation closes the active conversation.
func (s *Session) ClearConversation(ctx context.Context) error {
	return s.loop.Call(ctx, func() error {
		s.rooms.ClearConversation()
		return nil
	})
}

// LeaveRoom leaves roomID. The outcome is reported through a notice.
func (s *Session) LeaveRoom(ctx context.Context, roomID string) error {
	return s.loop.Call(ctx, func() error {
		return s.rooms.LeaveRoom(s.ctx, roomID)
	})
}

// CreateRoom creates a room. The outcome is reported through a notice.
func (s *Session) CreateRoom(ctx context.Context, req CreateRoomRequest) error {
	return s.loop.Call(ctx, func() error {
		return s.rooms.CreateRoom(s.ctx, req)
	})
}

// RefreshRooms reloads the room list.
func (s *Session) RefreshRooms(ctx context.Context) error {
	return s.loop.Call(ctx, func() error {
		if !s.signedIn {
			return errs.NewError(errs.ErrUnauthorized)
		}
		s.rooms.RefreshRooms(s.ctx)
		s.refreshContacts()
		return nil
	})
}

// RequestPresence asks the server for a fresh online list.
func (s *Session) RequestPresence(ctx context.Context) error {
	return s.loop.Call(ctx, s.presence.RequestSnapshot)
}

// Send sends text to the active conversation.
func (s *Session) Send(ctx context.Context, text string) error {
	return s.loop.Call(ctx, func() error {
		return s.rooms.Send(text)
	})
}

// MarkRead flags message id as read locally.
func (s *Session) MarkRead(ctx context.Context, id string) error {
	return s.loop.Call(ctx, func() error {
		if !s.stream.MarkRead(id) {
			return errs.NewError(errs.ErrInvalidParams)
		}
		return nil
	})
}

// OnlineMembers returns the members of roomID that are currently online.
func (s *Session) OnlineMembers(ctx context.Context, roomID string) ([]string, error) {
	var members []string
	err := s.loop.Call(ctx, func() error {
		members = s.rooms.OnlineMembers(roomID)
		return nil
	})
	return members, err
}

// Contacts returns the chat contacts matching query (all of them when query is empty).
func (s *Session) Contacts(ctx context.Context, query string) ([]user.User, error) {
	var contacts []user.User
	err := s.loop.Call(ctx, func() error {
		contacts = user.Filter(s.contacts, query)
		return nil
	})
	return contacts, err
}

// View returns a snapshot of the session.
func (s *Session) View(ctx context.Context) (View, error) {
	var v View
	err := s.loop.Call(ctx, func() error {
		v = View{
			User:     s.self,
			SignedIn: s.signedIn,
			Active:   s.rooms.Active(),
			Messages: s.stream.Messages(),
			Loading:  s.stream.Loading(),
			Rooms:    s.rooms.Rooms(),
			Contacts: append([]user.User(nil), s.contacts...),
			Online:   s.presence.Online(),
			Chat:     s.transport.State(realtime.Chat),
			Public:   s.transport.State(realtime.Public),
			Recovery: s.recovery.State(),
		}
		return nil
	})
	return v, err
}
