/*
Package user contains the representation of a catalog account as exchanged with the REST
backend and carried in chat payloads.
*/
package user

import (
	"encoding/json"
	"strings"
)

// User represents the basic identity information of a chat participant.
type User struct {

	// ID is the backend identifier of the account.
	ID string `json:"_id"`

	// Name is the display name shown next to messages.
	Name string `json:"name"`

	// Email is the login address of the account.
	Email string `json:"email"`
}

// UnmarshalJSON accepts both "_id" and "id", since the user endpoints are not consistent.
func (u *User) UnmarshalJSON(data []byte) error {
	var raw struct {
		MongoID string `json:"_id"`
		ID      string `json:"id"`
		Name    string `json:"name"`
		Email   string `json:"email"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	u.ID = raw.MongoID
	if u.ID == "" {
		u.ID = raw.ID
	}
	u.Name = raw.Name
	u.Email = raw.Email

	return nil
}

// Matches reports whether query is a case-insensitive substring of the name or e-mail.
// An empty query matches everyone.
func (u User) Matches(query string) bool {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return true
	}
	return strings.Contains(strings.ToLower(u.Name), q) || strings.Contains(strings.ToLower(u.Email), q)
}

// Filter returns the users matching query, preserving order.
func Filter(users []User, query string) []User {
	out := make([]User, 0, len(users))
	for _, u := range users {
		if u.Matches(query) {
			out = append(out, u)
		}
	}
	return out
}
