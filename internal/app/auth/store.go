/*
Package auth owns the signed-in identity of the client: the credential store every other
component reads, and the service that signs in, signs out and keeps the access token fresh.
*/
package auth

import (
	"sync"

	"moviechat/internal/app/user"
)

// Store holds the current user and access token. It is safe for concurrent use.
type Store struct {
	mu     sync.Mutex
	user   user.User
	token  string
	nextID int
	subs   map[int]func(token string)
}

// NewStore creates an empty (signed out) store.
func NewStore() *Store {
	return &Store{subs: make(map[int]func(string))}
}

// Token returns the access token, or "" while signed out.
func (s *Store) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// User returns the signed-in user; ok is false while signed out.
func (s *Store) User() (user.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user, s.token != ""
}

// Set stores a new credential. Subscribers are called only if the token or the user changed.
func (s *Store) Set(u user.User, token string) {
	s.mu.Lock()
	changed := s.token != token || s.user.ID != u.ID
	s.user, s.token = u, token
	subs := s.snapshot(changed)
	s.mu.Unlock()

	for _, fn := range subs {
		fn(token)
	}
}

// Clear signs out.
func (s *Store) Clear() {
	s.Set(user.User{}, "")
}

// Subscribe calls fn with the new token after every change and returns the unsubscribe function.
// fn runs on the goroutine that changed the store.
func (s *Store) Subscribe(fn func(token string)) (cancel func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

func (s *Store) snapshot(changed bool) []func(string) {
	if !changed {
		return nil
	}

	subs := make([]func(string), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	return subs
}
