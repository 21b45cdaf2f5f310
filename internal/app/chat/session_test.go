package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"moviechat/internal/app/realtime"
	"moviechat/internal/app/user"
)

var bob = user.User{ID: "bob", Name: "Bob", Email: "bob@example.com"}

// fakeCreds is a settable credential store.
type fakeCreds struct {
	mu    sync.Mutex
	token string
	user  user.User
	fn    func(string)
}

func (c *fakeCreds) Token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

func (c *fakeCreds) User() (user.User, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.user, c.user.ID != ""
}

func (c *fakeCreds) Subscribe(fn func(string)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fn = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.fn = nil
	}
}

func (c *fakeCreds) set(u user.User, token string) {
	c.mu.Lock()
	c.user, c.token = u, token
	fn := c.fn
	c.mu.Unlock()

	if fn != nil {
		fn(token)
	}
}

// socketStub accepts both connections and counts what the client sends on Chat.
type socketStub struct {
	*httptest.Server

	chatDials        atomic.Int32
	publicDials      atomic.Int32
	presenceRequests atomic.Int32
}

func newSocketStub(t *testing.T) *socketStub {
	t.Helper()

	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	s := &socketStub{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		chat := strings.HasSuffix(r.URL.Path, "/chat")
		if chat {
			s.chatDials.Add(1)
		} else {
			s.publicDials.Add(1)
		}

		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()

		for {
			_, raw, err := ws.ReadMessage()
			if err != nil {
				return
			}
			var env realtime.Envelope
			if json.Unmarshal(raw, &env) == nil && chat && env.Event == realtime.EventGetOnlineUsers {
				s.presenceRequests.Add(1)
			}
		}
	}))
	t.Cleanup(s.Close)

	return s
}

func (s *socketStub) url(path string) string {
	return "ws" + strings.TrimPrefix(s.URL, "http") + path
}

func startSession(t *testing.T, stub *socketStub, api API, creds Credentials, interval time.Duration) *Session {
	t.Helper()

	s := NewSession(Options{
		Transport: realtime.Options{
			PublicURL: stub.url("/socket"),
			ChatURL:   stub.url("/socket/chat"),
			Retry:     realtime.RetryPolicy{Attempts: 3, Delay: 20 * time.Millisecond},
		},
		PresenceInterval: interval,
	}, api, creds, nil)

	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(s.Close)

	return s
}

func TestSession_PresenceTickerRepeatsWhileChatIsOpen(t *testing.T) {
	stub := newSocketStub(t)
	creds := &fakeCreds{user: me, token: "token-me"}

	startSession(t, stub, newFakeAPI(), creds, 25*time.Millisecond)

	// one request on connect, the rest from the ticker
	require.Eventually(t, func() bool { return stub.presenceRequests.Load() >= 3 }, 2*time.Second, 10*time.Millisecond)
	assert.EqualValues(t, 1, stub.chatDials.Load())
}

func TestSession_PresenceTickerIdleWithoutCredential(t *testing.T) {
	stub := newSocketStub(t)

	s := startSession(t, stub, newFakeAPI(), &fakeCreds{}, 25*time.Millisecond)

	require.Eventually(t, func() bool { return stub.publicDials.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Never(t, func() bool { return stub.presenceRequests.Load() > 0 }, 200*time.Millisecond, 10*time.Millisecond)
	assert.Zero(t, stub.chatDials.Load())

	v, err := s.View(context.Background())
	require.NoError(t, err)
	assert.False(t, v.SignedIn)
	assert.Equal(t, realtime.Closed, v.Chat)
}

func TestSession_ContactsOfPreviousUserAreDropped(t *testing.T) {
	stub := newSocketStub(t)
	api := newFakeAPI()
	api.contacts = []user.User{{ID: "u2", Name: "Ann"}}
	gate := make(chan struct{})
	api.gates["contacts"] = gate

	creds := &fakeCreds{user: me, token: "token-me"}
	s := startSession(t, stub, api, creds, -1)
	require.Eventually(t, func() bool { return api.contactCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	api.mu.Lock()
	api.contacts = []user.User{{ID: "u3", Name: "Cid"}}
	api.mu.Unlock()
	creds.set(bob, "token-bob")
	require.Eventually(t, func() bool { return api.contactCount() == 2 }, 2*time.Second, 10*time.Millisecond)

	close(gate)

	want := []user.User{{ID: "u3", Name: "Cid"}}
	require.Eventually(t, func() bool {
		v, err := s.View(context.Background())
		return err == nil && v.User.ID == bob.ID && assert.ObjectsAreEqual(want, v.Contacts)
	}, 2*time.Second, 10*time.Millisecond)

	// give the first fetch time to land; it must not replace the list
	time.Sleep(50 * time.Millisecond)
	contacts, err := s.Contacts(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, want, contacts)
}
