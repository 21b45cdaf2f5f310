package chat

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"moviechat/internal/app/realtime"
	"moviechat/internal/app/user"
)

var me = user.User{ID: "me", Name: "Me", Email: "me@example.com"}

type inlineExecutor struct{}

func (inlineExecutor) Post(fn func()) bool {
	fn()
	return true
}

// queueExecutor collects completions so the test goroutine runs them one at a time.
type queueExecutor struct {
	ch chan func()
}

func newQueueExecutor() *queueExecutor {
	return &queueExecutor{ch: make(chan func(), 64)}
}

func (q *queueExecutor) Post(fn func()) bool {
	q.ch <- fn
	return true
}

// step runs the next posted completion.
func (q *queueExecutor) step(t *testing.T) {
	t.Helper()

	select {
	case fn := <-q.ch:
		fn()
	case <-time.After(2 * time.Second):
		t.Fatal("no completion posted")
	}
}

// recordingTransport captures emits; err, when set, fails every send.
type recordingTransport struct {
	mu   sync.Mutex
	sent []realtime.Envelope
	err  error
}

func (r *recordingTransport) Current(realtime.Kind) *realtime.Conn { return nil }

func (r *recordingTransport) Send(_ realtime.Kind, env realtime.Envelope) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, env)
	return nil
}

func (r *recordingTransport) fail(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

func (r *recordingTransport) events() []realtime.Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]realtime.Event, 0, len(r.sent))
	for _, env := range r.sent {
		out = append(out, env.Event)
	}
	return out
}

func (r *recordingTransport) last() realtime.Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.sent) == 0 {
		return realtime.Envelope{}
	}
	return r.sent[len(r.sent)-1]
}

type noticeLog struct {
	mu      sync.Mutex
	notices []Notice
}

func (n *noticeLog) Notify(notice Notice) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, notice)
}

func (n *noticeLog) all() []Notice {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Notice(nil), n.notices...)
}

// fakeAPI serves canned REST results. A gate blocks the history fetch of that target until closed.
type fakeAPI struct {
	mu sync.Mutex

	direct     map[string][]Message
	room       map[string][]Message
	historyErr error
	gates      map[string]chan struct{}

	rooms     []Room
	roomsErr  error
	created   Room
	createErr error
	leaveErr  error
	contacts  []user.User

	contactCalls int

	leaves []string
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		direct: make(map[string][]Message),
		room:   make(map[string][]Message),
		gates:  make(map[string]chan struct{}),
	}
}

func (f *fakeAPI) wait(target string) {
	f.mu.Lock()
	gate, ok := f.gates[target]
	f.mu.Unlock()
	if ok {
		<-gate
	}
}

func (f *fakeAPI) DirectHistory(_ context.Context, peerID string) ([]Message, error) {
	f.wait(peerID)

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.historyErr != nil {
		return nil, f.historyErr
	}
	return append([]Message(nil), f.direct[peerID]...), nil
}

func (f *fakeAPI) RoomHistory(_ context.Context, roomID string) ([]Message, error) {
	f.wait(roomID)

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.historyErr != nil {
		return nil, f.historyErr
	}
	return append([]Message(nil), f.room[roomID]...), nil
}

func (f *fakeAPI) Rooms(context.Context) ([]Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Room(nil), f.rooms...), f.roomsErr
}

func (f *fakeAPI) CreateRoom(_ context.Context, req CreateRoomRequest) (Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return Room{}, f.createErr
	}
	room := f.created
	room.Name = req.Name
	f.rooms = append(f.rooms, room)
	return room, nil
}

func (f *fakeAPI) LeaveRoom(_ context.Context, roomID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.leaves = append(f.leaves, roomID)
	if f.leaveErr != nil {
		return f.leaveErr
	}
	kept := f.rooms[:0]
	for _, r := range f.rooms {
		if r.ID != roomID {
			kept = append(kept, r)
		}
	}
	f.rooms = kept
	return nil
}

// Contacts snapshots the list before waiting on the "contacts" gate, so a blocked call returns
// what was configured when it started.
func (f *fakeAPI) Contacts(context.Context) ([]user.User, error) {
	f.mu.Lock()
	contacts := append([]user.User(nil), f.contacts...)
	f.contactCalls++
	f.mu.Unlock()

	f.wait("contacts")
	return contacts, nil
}

func (f *fakeAPI) contactCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.contactCalls
}

// fixture wires every component to an in-memory transport, dispatching inline.
type fixture struct {
	mux       *realtime.Multiplexer
	transport *recordingTransport
	exec      *queueExecutor
	api       *fakeAPI
	notices   *noticeLog

	presence *Presence
	stream   *Stream
	rooms    *Controller
	recovery *Recovery
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		mux:       realtime.NewMultiplexer(inlineExecutor{}),
		transport: &recordingTransport{},
		exec:      newQueueExecutor(),
		api:       newFakeAPI(),
		notices:   &noticeLog{},
	}
	f.mux.Bind(f.transport)

	identity := func() (user.User, bool) { return me, true }

	f.presence = NewPresence(f.mux, f.notices, identity)
	f.stream = NewStream(f.exec, f.api)
	f.rooms = NewController(f.mux, f.api, f.exec, f.notices, f.presence, f.stream, identity)
	f.recovery = NewRecovery(f.mux, f.notices, f.presence)

	require.NoError(t, f.presence.Register())
	require.NoError(t, f.rooms.Register(context.Background()))
	require.NoError(t, f.recovery.Register())

	t.Cleanup(func() {
		f.presence.Close()
		f.rooms.Close()
		f.recovery.Close()
	})

	return f
}

// inject delivers a server event on the Chat connection.
func (f *fixture) inject(t *testing.T, e realtime.Event, payload any) {
	t.Helper()

	env, err := realtime.NewEnvelope(e, payload)
	require.NoError(t, err)
	require.NoError(t, f.mux.Inject(realtime.Chat, env))
}

func decode[T any](t *testing.T, data json.RawMessage) T {
	t.Helper()

	var v T
	require.NoError(t, json.Unmarshal(data, &v))
	return v
}

func directMsg(id, from, to, text string) Message {
	return Message{
		ID:          id,
		Sender:      user.User{ID: from, Name: from},
		Recipient:   to,
		Message:     text,
		MessageType: "text",
		CreatedAt:   time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC),
	}
}

func roomMsg(id, from, roomID, text string) Message {
	m := directMsg(id, from, "", text)
	m.RoomID = roomID
	return m
}
