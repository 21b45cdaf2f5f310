package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"moviechat/internal/app/api"
	"moviechat/internal/app/auth"
	"moviechat/internal/app/chat"
	"moviechat/internal/app/db"
	"moviechat/internal/app/hub"
	"moviechat/internal/app/movie"
	"moviechat/internal/app/realtime"
	"moviechat/internal/configs"
	"moviechat/internal/pkg/errs"
)

type backend struct {
	deps *AppDeps
	srv  *httptest.Server
}

func newBackend(t *testing.T) *backend {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())

	deps := &AppDeps{
		DB:     db.New(),
		Public: hub.NewBroadcaster(),
		Config: &configs.ServerConfig{Environment: "development", Port: 4000, JWTSecret: "test-secret"},
	}
	deps.Chat = hub.NewHub(deps.DB)
	go deps.Chat.Run()

	srv := httptest.NewServer(Router(ctx, deps))
	t.Cleanup(func() {
		deps.Chat.Stop()
		deps.Public.Close()
		srv.Close()
		cancel()
	})

	return &backend{deps: deps, srv: srv}
}

func (b *backend) socketURL() string {
	return "ws" + strings.TrimPrefix(b.srv.URL, "http")
}

type account struct {
	store   *auth.Store
	client  *api.Client
	service *auth.Service
}

func (b *backend) register(t *testing.T, name string) *account {
	t.Helper()

	store := auth.NewStore()
	client := api.New(b.srv.URL, store)
	a := &account{store: store, client: client, service: auth.NewService(client, store)}

	_, err := a.service.Register(context.Background(), name, strings.ToLower(name)+"@example.com", "password1")
	require.NoError(t, err)
	return a
}

func (a *account) id() string {
	u, _ := a.store.User()
	return u.ID
}

type noticeRecorder struct {
	mu      sync.Mutex
	notices []chat.Notice
}

func (r *noticeRecorder) Notify(n chat.Notice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, n)
}

func (r *noticeRecorder) has(msg string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.ContainsFunc(r.notices, func(n chat.Notice) bool { return n.Message == msg })
}

func (b *backend) session(t *testing.T, a *account, notify chat.Notifier) *chat.Session {
	t.Helper()

	s := chat.NewSession(chat.Options{
		Transport: realtime.Options{
			PublicURL: b.socketURL() + "/socket",
			ChatURL:   b.socketURL() + "/socket/chat",
			Retry:     realtime.RetryPolicy{Attempts: 3, Delay: 20 * time.Millisecond},
		},
		PresenceInterval: -1,
	}, a.client, a.store, notify)

	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(s.Close)
	return s
}

func view(t *testing.T, s *chat.Session) chat.View {
	t.Helper()
	v, err := s.View(context.Background())
	require.NoError(t, err)
	return v
}

func TestAuthFlow(t *testing.T) {
	b := newBackend(t)
	ctx := context.Background()
	ann := b.register(t, "Ann")

	dup := auth.NewStore()
	_, err := api.New(b.srv.URL, dup).Register(ctx, "Ann", "ann@example.com", "password1")
	assert.True(t, errs.HasCode(err, errs.ErrUserAlreadyExists))

	_, err = api.New(b.srv.URL, dup).Login(ctx, "ann@example.com", "wrong-password")
	assert.True(t, errs.HasCode(err, errs.ErrUnauthorized))

	before := ann.store.Token()
	time.Sleep(1100 * time.Millisecond) // token iat/exp have second resolution
	res, err := ann.client.Refresh(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, before, res.AccessToken)
	assert.Equal(t, res.AccessToken, ann.store.Token())

	ann.service.Logout(ctx)
	assert.Empty(t, ann.store.Token())

	_, err = ann.client.Refresh(ctx)
	assert.True(t, errs.HasCode(err, errs.ErrSessionExpired))
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	b := newBackend(t)

	res, err := http.Get(b.srv.URL + "/chat/rooms")
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)

	res2, err := http.Get(b.srv.URL + "/socket/chat")
	require.NoError(t, err)
	defer res2.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, res2.StatusCode)
}

func TestMoviesAndRooms(t *testing.T) {
	b := newBackend(t)
	ctx := context.Background()
	ann := b.register(t, "Ann")
	bob := b.register(t, "Bob")

	m, err := ann.client.CreateMovie(ctx, movie.CreateRequest{
		Title:       "Alien",
		Description: "In space no one can hear you scream.",
		ReleaseDate: "1979-05-25",
		Genre:       []string{"horror"},
		ImageURL:    "https://img.example/alien.jpg",
	})
	require.NoError(t, err)

	_, err = ann.client.RateMovie(ctx, m.ID, 5)
	require.NoError(t, err)
	rated, err := bob.client.RateMovie(ctx, m.ID, 2)
	require.NoError(t, err)
	assert.InDelta(t, 3.5, rated.AverageRating, 1e-9)

	_, err = bob.client.Movie(ctx, "missing")
	assert.True(t, errs.HasCode(err, errs.ErrNotFound))

	room, err := ann.client.CreateRoom(ctx, chat.CreateRoomRequest{Name: "Noir", Members: []string{bob.id()}})
	require.NoError(t, err)
	assert.Equal(t, []string{ann.id(), bob.id()}, room.Members)

	rooms, err := bob.client.Rooms(ctx)
	require.NoError(t, err)
	require.Len(t, rooms, 1)

	require.NoError(t, bob.client.LeaveRoom(ctx, room.ID))
	_, err = bob.client.RoomHistory(ctx, room.ID)
	assert.True(t, errs.HasCode(err, errs.ErrNotFound))

	contacts, err := ann.client.Contacts(ctx)
	require.NoError(t, err)
	require.Len(t, contacts, 1)
	assert.Equal(t, "Bob", contacts[0].Name)
}

func TestSessionEndToEnd(t *testing.T) {
	b := newBackend(t)
	ctx := context.Background()
	ann := b.register(t, "Ann")
	bob := b.register(t, "Bob")

	annNotices := &noticeRecorder{}
	annSession := b.session(t, ann, annNotices)

	var mu sync.Mutex
	var added []string
	stop, err := movie.Watch(annSession.Bus(), movie.Handlers{
		OnAdded: func(m movie.Movie) {
			mu.Lock()
			added = append(added, m.Title)
			mu.Unlock()
		},
	})
	require.NoError(t, err)
	defer stop()

	require.Eventually(t, func() bool {
		v := view(t, annSession)
		return v.Chat == realtime.Open && v.Public == realtime.Open
	}, 2*time.Second, 10*time.Millisecond)

	bobSession := b.session(t, bob, nil)
	require.Eventually(t, func() bool { return annNotices.has("Bob is online") }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, annSession.SelectDirectPeer(ctx, bob.id()))
	require.NoError(t, bobSession.SelectDirectPeer(ctx, ann.id()))
	require.Eventually(t, func() bool { return view(t, bobSession).Chat == realtime.Open }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, bobSession.Send(ctx, "popcorn?"))

	require.Eventually(t, func() bool {
		msgs := view(t, annSession).Messages
		return len(msgs) == 1 && msgs[0].Message == "popcorn?"
	}, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return len(view(t, bobSession).Messages) == 1 }, 2*time.Second, 10*time.Millisecond)

	_, err = bob.client.CreateMovie(ctx, movie.CreateRequest{
		Title:       "Heat",
		Description: "A group of professional bank robbers.",
		ReleaseDate: "1995-12-15",
		Genre:       []string{"crime"},
		ImageURL:    "https://img.example/heat.jpg",
	})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return slices.Equal(added, []string{"Heat"})
	}, 2*time.Second, 10*time.Millisecond)

	// Bob adds Ann to a room: Ann is told, Bob is not.
	require.NoError(t, bobSession.CreateRoom(ctx, chat.CreateRoomRequest{Name: "Noir", Members: []string{ann.id()}}))
	require.Eventually(t, func() bool { return annNotices.has("You were added to Noir") }, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return len(view(t, annSession).Rooms) == 1 }, 2*time.Second, 10*time.Millisecond)

	// Dropping Ann's socket makes her client reconnect with the attempt header and recover.
	b.deps.Chat.Disconnect(ann.id())
	require.Eventually(t, func() bool { return annNotices.has("Reconnected after 1 attempt(s)") }, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, chat.Stable, view(t, annSession).Recovery)
}
