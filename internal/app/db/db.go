/*
Package db is the in-memory store of the development backend.

It keeps users, refresh sessions, the movie catalog, chat rooms and chat messages behind a single
mutex. Every read returns copies, so callers may keep and modify the values they get.
*/
package db

import (
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"moviechat/internal/app/chat"
	"moviechat/internal/app/movie"
	"moviechat/internal/app/user"
	"moviechat/internal/pkg/randx"
)

type userRecord struct {
	user         user.User
	passwordHash []byte
}

type session struct {
	userID    string
	expiresAt time.Time
}

// DB is the in-memory store.
type DB struct {
	mu sync.RWMutex

	users    map[string]*userRecord
	byEmail  map[string]string
	sessions map[string]session

	movies     map[string]*movie.Movie
	movieOrder []string

	rooms     map[string]*chat.Room
	roomOrder []string

	messages []chat.Message

	now func() time.Time
}

// New creates an empty store.
func New() *DB {
	return &DB{
		users:    make(map[string]*userRecord),
		byEmail:  make(map[string]string),
		sessions: make(map[string]session),
		movies:   make(map[string]*movie.Movie),
		rooms:    make(map[string]*chat.Room),
		now:      time.Now,
	}
}

func emailKey(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// CreateUser stores a new account. The e-mail is unique, case-insensitively.
func (d *DB) CreateUser(name, email string, passwordHash []byte) (user.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	key := emailKey(email)
	if _, ok := d.byEmail[key]; ok {
		return user.User{}, ErrDuplicate
	}

	u := user.User{ID: randx.ID(), Name: strings.TrimSpace(name), Email: strings.TrimSpace(email)}
	d.users[u.ID] = &userRecord{user: u, passwordHash: slices.Clone(passwordHash)}
	d.byEmail[key] = u.ID

	return u, nil
}

// UserByEmail returns the account registered with email and its password hash.
func (d *DB) UserByEmail(email string) (user.User, []byte, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	id, ok := d.byEmail[emailKey(email)]
	if !ok {
		return user.User{}, nil, ErrNotFound
	}

	rec := d.users[id]
	return rec.user, slices.Clone(rec.passwordHash), nil
}

// UserByID returns the account with the given id.
func (d *DB) UserByID(id string) (user.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	rec, ok := d.users[id]
	if !ok {
		return user.User{}, ErrNotFound
	}
	return rec.user, nil
}

// Users lists every account, ordered by name.
func (d *DB) Users() []user.User {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]user.User, 0, len(d.users))
	for _, rec := range d.users {
		out = append(out, rec.user)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name == out[j].Name {
			return out[i].ID < out[j].ID
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// CreateSession records a refresh token for userID.
func (d *DB) CreateSession(token, userID string, ttl time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.sessions[token] = session{userID: userID, expiresAt: d.now().Add(ttl)}
}

// SessionUser returns the user a refresh token belongs to. Expired tokens are removed.
func (d *DB) SessionUser(token string) (user.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	s, ok := d.sessions[token]
	if !ok {
		return user.User{}, ErrNotFound
	}
	if d.now().After(s.expiresAt) {
		delete(d.sessions, token)
		return user.User{}, ErrNotFound
	}

	rec, ok := d.users[s.userID]
	if !ok {
		return user.User{}, ErrNotFound
	}
	return rec.user, nil
}

// DeleteSession revokes a refresh token.
func (d *DB) DeleteSession(token string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	delete(d.sessions, token)
}

// CreateMovie adds a catalog entry and returns it with id and timestamps set.
func (d *DB) CreateMovie(req movie.CreateRequest) movie.Movie {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	m := &movie.Movie{
		ID:          randx.ID(),
		Title:       strings.TrimSpace(req.Title),
		Description: strings.TrimSpace(req.Description),
		ReleaseDate: req.ReleaseDate,
		Genre:       slices.Clone(req.Genre),
		ImageURL:    req.ImageURL,
		Ratings:     []movie.Rating{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	d.movies[m.ID] = m
	d.movieOrder = append(d.movieOrder, m.ID)

	return copyMovie(m)
}

// Movies lists the catalog, newest first.
func (d *DB) Movies() []movie.Movie {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]movie.Movie, 0, len(d.movieOrder))
	for i := len(d.movieOrder) - 1; i >= 0; i-- {
		out = append(out, copyMovie(d.movies[d.movieOrder[i]]))
	}
	return out
}

// Movie returns one catalog entry.
func (d *DB) Movie(id string) (movie.Movie, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	m, ok := d.movies[id]
	if !ok {
		return movie.Movie{}, ErrNotFound
	}
	return copyMovie(m), nil
}

// RateMovie sets userID's rating of a movie, replacing an earlier one, and recomputes the average.
func (d *DB) RateMovie(id, userID string, value int) (movie.Movie, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	m, ok := d.movies[id]
	if !ok {
		return movie.Movie{}, ErrNotFound
	}

	now := d.now()
	idx := slices.IndexFunc(m.Ratings, func(r movie.Rating) bool { return r.User == userID })
	if idx >= 0 {
		m.Ratings[idx].Value = value
		m.Ratings[idx].UpdatedAt = now
	} else {
		m.Ratings = append(m.Ratings, movie.Rating{User: userID, Value: value, CreatedAt: now, UpdatedAt: now})
	}
	m.AverageRating = movie.Average(m.Ratings)
	m.UpdatedAt = now

	return copyMovie(m), nil
}

// CreateRoom stores a room. The creator is always a member; duplicate and empty member ids are dropped.
func (d *DB) CreateRoom(creatorID string, req chat.CreateRoomRequest) chat.Room {
	d.mu.Lock()
	defer d.mu.Unlock()

	members := []string{creatorID}
	for _, id := range req.Members {
		if id != "" && !slices.Contains(members, id) {
			members = append(members, id)
		}
	}

	r := &chat.Room{
		ID:          randx.ID(),
		Name:        strings.TrimSpace(req.Name),
		Description: strings.TrimSpace(req.Description),
		Creator:     creatorID,
		Members:     members,
	}
	d.rooms[r.ID] = r
	d.roomOrder = append(d.roomOrder, r.ID)

	return copyRoom(r)
}

// Room returns a room if userID is a member of it.
func (d *DB) Room(id, userID string) (chat.Room, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	r, ok := d.rooms[id]
	if !ok {
		return chat.Room{}, ErrNotFound
	}
	if !slices.Contains(r.Members, userID) {
		return chat.Room{}, ErrNotMember
	}
	return copyRoom(r), nil
}

// RoomsFor lists the rooms userID belongs to, oldest first.
func (d *DB) RoomsFor(userID string) []chat.Room {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := []chat.Room{}
	for _, id := range d.roomOrder {
		if r := d.rooms[id]; slices.Contains(r.Members, userID) {
			out = append(out, copyRoom(r))
		}
	}
	return out
}

// LeaveRoom removes userID from a room's members.
func (d *DB) LeaveRoom(id, userID string) (chat.Room, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	r, ok := d.rooms[id]
	if !ok {
		return chat.Room{}, ErrNotFound
	}

	idx := slices.Index(r.Members, userID)
	if idx < 0 {
		return chat.Room{}, ErrNotMember
	}
	r.Members = slices.Delete(r.Members, idx, idx+1)

	return copyRoom(r), nil
}

// AddMessage stores a direct or room message and returns it with id and timestamps set.
func (d *DB) AddMessage(m chat.Message) chat.Message {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	m.ID = randx.ID()
	m.CreatedAt, m.UpdatedAt = now, now
	if m.MessageType == "" {
		m.MessageType = "text"
	}
	d.messages = append(d.messages, m)

	return m
}

// DirectHistory returns the direct messages between a and b, oldest first.
func (d *DB) DirectHistory(a, b string) []chat.Message {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := []chat.Message{}
	for _, m := range d.messages {
		if m.RoomID != "" {
			continue
		}
		if (m.Sender.ID == a && m.Recipient == b) || (m.Sender.ID == b && m.Recipient == a) {
			out = append(out, m)
		}
	}
	return out
}

// RoomHistory returns the messages of a room, oldest first.
func (d *DB) RoomHistory(roomID string) []chat.Message {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := []chat.Message{}
	for _, m := range d.messages {
		if m.RoomID == roomID {
			out = append(out, m)
		}
	}
	return out
}

func copyMovie(m *movie.Movie) movie.Movie {
	c := *m
	c.Genre = slices.Clone(m.Genre)
	c.Ratings = slices.Clone(m.Ratings)
	return c
}

func copyRoom(r *chat.Room) chat.Room {
	c := *r
	c.Members = slices.Clone(r.Members)
	return c
}
