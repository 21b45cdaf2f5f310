package realtime

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"moviechat/internal/pkg/errs"
)

const waitTimeout = 3 * time.Second

var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

// socketServer records every handshake and hands each upgraded socket to handle.
type socketServer struct {
	*httptest.Server

	mu      sync.Mutex
	headers []http.Header
}

func newSocketServer(t *testing.T, handle func(n int, ws *websocket.Conn)) *socketServer {
	t.Helper()

	s := &socketServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.headers = append(s.headers, r.Header.Clone())
		n := len(s.headers)
		s.mu.Unlock()

		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()

		handle(n, ws)
	}))
	t.Cleanup(s.Close)

	return s
}

func (s *socketServer) wsURL() string {
	return "ws" + strings.TrimPrefix(s.URL, "http")
}

func (s *socketServer) handshakes() []http.Header {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]http.Header(nil), s.headers...)
}

// drain keeps a server socket open until the client goes away.
func drain(_ int, ws *websocket.Conn) {
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			return
		}
	}
}

type delivery struct {
	conn *Conn
	env  Envelope
}

type recordingSink struct {
	ch chan delivery
}

func newRecordingSink() *recordingSink {
	return &recordingSink{ch: make(chan delivery, 64)}
}

func (s *recordingSink) Deliver(c *Conn, env Envelope) {
	s.ch <- delivery{conn: c, env: env}
}

func (s *recordingSink) waitFor(t *testing.T, e Event) delivery {
	t.Helper()

	deadline := time.After(waitTimeout)
	for {
		select {
		case d := <-s.ch:
			if d.env.Event == e {
				return d
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", e)
			return delivery{}
		}
	}
}

type inlineExecutor struct{}

func (inlineExecutor) Post(fn func()) bool {
	fn()
	return true
}

func fastOptions(url string) Options {
	return Options{
		PublicURL: url,
		ChatURL:   url,
		Retry:     RetryPolicy{Attempts: 3, Delay: 10 * time.Millisecond},
	}
}

func TestManager_OpenChatIsIdempotent(t *testing.T) {
	srv := newSocketServer(t, drain)
	sink := newRecordingSink()
	m := NewManager(fastOptions(srv.wsURL()), sink)
	t.Cleanup(m.Shutdown)

	assert.True(t, m.OpenChat("token-a"))
	sink.waitFor(t, EventConnect)

	assert.False(t, m.OpenChat("token-a"))

	// Give a duplicate dial, if any, time to reach the server.
	time.Sleep(50 * time.Millisecond)
	require.Len(t, srv.handshakes(), 1)
	assert.Equal(t, "Bearer token-a", srv.handshakes()[0].Get("Authorization"))
	assert.Equal(t, Open, m.State(Chat))
}

func TestManager_CredentialChangeReplacesConnection(t *testing.T) {
	srv := newSocketServer(t, drain)
	sink := newRecordingSink()
	m := NewManager(fastOptions(srv.wsURL()), sink)
	t.Cleanup(m.Shutdown)

	m.OpenChat("token-a")
	first := sink.waitFor(t, EventConnect).conn

	assert.True(t, m.OpenChat("token-b"))
	second := sink.waitFor(t, EventConnect).conn

	assert.NotSame(t, first, second)
	assert.Same(t, second, m.Current(Chat))
	assert.Equal(t, Closed, first.State())

	select {
	case <-first.Done():
	case <-time.After(waitTimeout):
		t.Fatal("replaced connection did not stop")
	}

	hs := srv.handshakes()
	require.Len(t, hs, 2)
	assert.Equal(t, "Bearer token-b", hs[1].Get("Authorization"))
}

func TestManager_EmptyCredentialClosesChat(t *testing.T) {
	srv := newSocketServer(t, drain)
	sink := newRecordingSink()
	m := NewManager(fastOptions(srv.wsURL()), sink)
	t.Cleanup(m.Shutdown)

	m.OpenChat("token-a")
	c := sink.waitFor(t, EventConnect).conn

	m.OpenChat("")

	assert.Nil(t, m.Current(Chat))
	assert.Equal(t, Closed, m.State(Chat))
	assert.Equal(t, Closed, c.State())

	err := m.Send(Chat, Envelope{Event: EventGetOnlineUsers})
	assert.True(t, errs.HasCode(err, errs.ErrNotConnected))
}

func TestConn_ReconnectsAfterDrop(t *testing.T) {
	srv := newSocketServer(t, func(n int, ws *websocket.Conn) {
		if n == 1 {
			return
		}
		drain(n, ws)
	})
	sink := newRecordingSink()
	m := NewManager(fastOptions(srv.wsURL()), sink)
	t.Cleanup(m.Shutdown)

	m.OpenPublic()

	sink.waitFor(t, EventConnect)
	sink.waitFor(t, EventDisconnect)
	d := sink.waitFor(t, EventReconnect)

	var attempt int
	require.NoError(t, json.Unmarshal(d.env.Data, &attempt))
	assert.Equal(t, 1, attempt)

	hs := srv.handshakes()
	require.Len(t, hs, 2)
	assert.Empty(t, hs[0].Get(ReconnectHeader))
	assert.Equal(t, "1", hs[1].Get(ReconnectHeader))
	assert.Empty(t, hs[1].Get("Authorization"))
}

func TestConn_GivesUpAfterRetryBudget(t *testing.T) {
	var dials int
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		dials++
		mu.Unlock()
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	sink := newRecordingSink()
	m := NewManager(fastOptions("ws"+strings.TrimPrefix(srv.URL, "http")), sink)
	t.Cleanup(m.Shutdown)

	m.OpenChat("token-a")
	d := sink.waitFor(t, EventReconnectFailed)

	var failure Failure
	require.NoError(t, json.Unmarshal(d.env.Data, &failure))
	assert.Equal(t, 3, failure.Attempts)
	assert.Equal(t, Closed, d.conn.State())

	mu.Lock()
	assert.Equal(t, 3, dials)
	mu.Unlock()

	// An explicit reopen with the same credential starts a new cycle.
	assert.True(t, m.OpenChat("token-a"))
}

func TestConn_RejectedHandshakeIsNotRetried(t *testing.T) {
	var dials int
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		dials++
		mu.Unlock()
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	t.Cleanup(srv.Close)

	sink := newRecordingSink()
	m := NewManager(fastOptions("ws"+strings.TrimPrefix(srv.URL, "http")), sink)
	t.Cleanup(m.Shutdown)

	m.OpenChat("expired")
	d := sink.waitFor(t, EventReconnectFailed)

	var failure Failure
	require.NoError(t, json.Unmarshal(d.env.Data, &failure))
	assert.Equal(t, 1, failure.Attempts)

	mu.Lock()
	assert.Equal(t, 1, dials)
	mu.Unlock()
}

func TestMultiplexer_EmitRequiresOpenConnection(t *testing.T) {
	mux := NewMultiplexer(inlineExecutor{})
	m := NewManager(fastOptions("ws://127.0.0.1:1"), mux)
	mux.Bind(m)

	err := mux.Emit(Chat, EventPrivateMessage, map[string]string{"message": "hi"})
	assert.True(t, errs.HasCode(err, errs.ErrNotConnected))
}

func TestMultiplexer_RejectsEventsOutsideTheTable(t *testing.T) {
	mux := NewMultiplexer(inlineExecutor{})

	_, err := mux.Subscribe(Public, EventNewMessage, func(json.RawMessage) {})
	assert.True(t, errs.HasCode(err, errs.ErrUnknownEvent))

	_, err = mux.Subscribe(Chat, EventPrivateMessage, func(json.RawMessage) {})
	assert.True(t, errs.HasCode(err, errs.ErrUnknownEvent), "outbound events cannot be subscribed")

	err = mux.Emit(Public, EventPrivateMessage, nil)
	assert.True(t, errs.HasCode(err, errs.ErrUnknownEvent))

	_, err = mux.Subscribe(Public, EventConnect, func(json.RawMessage) {})
	assert.NoError(t, err)
}

func TestMultiplexer_EmitAndReceiveOverSocket(t *testing.T) {
	frames := make(chan Envelope, 4)
	srv := newSocketServer(t, func(_ int, ws *websocket.Conn) {
		_ = ws.WriteJSON(Envelope{Event: EventUserOnline, Data: json.RawMessage(`{"userId":"u1"}`)})
		_ = ws.WriteJSON(Envelope{Event: "unknown-event"})
		for {
			var env Envelope
			if err := ws.ReadJSON(&env); err != nil {
				return
			}
			frames <- env
		}
	})

	mux := NewMultiplexer(inlineExecutor{})
	m := NewManager(fastOptions(srv.wsURL()), mux)
	mux.Bind(m)
	t.Cleanup(m.Shutdown)

	type online struct {
		UserID string `json:"userId"`
	}
	got := make(chan string, 1)
	_, err := On(mux, Chat, EventUserOnline, func(p online) { got <- p.UserID })
	require.NoError(t, err)

	m.OpenChat("token-a")

	select {
	case id := <-got:
		assert.Equal(t, "u1", id)
	case <-time.After(waitTimeout):
		t.Fatal("handler not called")
	}

	require.Eventually(t, func() bool { return m.State(Chat) == Open }, waitTimeout, 10*time.Millisecond)
	require.NoError(t, mux.Emit(Chat, EventGetOnlineUsers, nil))

	select {
	case env := <-frames:
		assert.Equal(t, EventGetOnlineUsers, env.Event)
		assert.Empty(t, env.Data)
	case <-time.After(waitTimeout):
		t.Fatal("server did not receive the frame")
	}
}

type fixedTransport struct {
	current *Conn
}

func (f fixedTransport) Current(Kind) *Conn { return f.current }

func (f fixedTransport) Send(Kind, Envelope) error { return nil }

func TestMultiplexer_DropsFramesFromReplacedConnection(t *testing.T) {
	mux := NewMultiplexer(inlineExecutor{})

	old := newConn(Chat, "", "a", DefaultRetryPolicy, nil, mux)
	current := newConn(Chat, "", "b", DefaultRetryPolicy, nil, mux)
	mux.Bind(fixedTransport{current: current})

	var calls []string
	_, err := mux.Subscribe(Chat, EventNewMessage, func(json.RawMessage) { calls = append(calls, "handler") })
	require.NoError(t, err)

	mux.Deliver(old, Envelope{Event: EventNewMessage})
	assert.Empty(t, calls)

	mux.Deliver(current, Envelope{Event: EventNewMessage})
	assert.Equal(t, []string{"handler"}, calls)
}

func TestMultiplexer_HandlersRunInOrderAndUnsubscribe(t *testing.T) {
	mux := NewMultiplexer(inlineExecutor{})
	c := newConn(Public, "", "", DefaultRetryPolicy, nil, mux)
	mux.Bind(fixedTransport{current: c})

	var calls []int
	first, err := mux.Subscribe(Public, EventMovieAdded, func(json.RawMessage) { calls = append(calls, 1) })
	require.NoError(t, err)
	_, err = mux.Subscribe(Public, EventMovieAdded, func(json.RawMessage) { calls = append(calls, 2) })
	require.NoError(t, err)

	mux.Deliver(c, Envelope{Event: EventMovieAdded})
	assert.Equal(t, []int{1, 2}, calls)

	first.Unsubscribe()
	first.Unsubscribe()

	calls = nil
	mux.Deliver(c, Envelope{Event: EventMovieAdded})
	assert.Equal(t, []int{2}, calls)
}

func TestOn_DropsMalformedPayload(t *testing.T) {
	mux := NewMultiplexer(inlineExecutor{})
	c := newConn(Chat, "", "a", DefaultRetryPolicy, nil, mux)
	mux.Bind(fixedTransport{current: c})

	type list struct {
		UserIDs []string `json:"userIds"`
	}
	var got [][]string
	_, err := On(mux, Chat, EventOnlineUsersList, func(p list) { got = append(got, p.UserIDs) })
	require.NoError(t, err)

	mux.Deliver(c, Envelope{Event: EventOnlineUsersList, Data: json.RawMessage(`"not-an-object"`)})
	mux.Deliver(c, Envelope{Event: EventOnlineUsersList, Data: json.RawMessage(`{"userIds":["a","b"]}`)})

	assert.Equal(t, [][]string{{"a", "b"}}, got)
}
