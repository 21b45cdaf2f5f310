/*
Package api is the REST client of the movie backend.

Every call carries the current access token as a Bearer header. A call answered with 401 triggers
one token refresh, shared by all concurrent callers, and is retried once with the new token. A
refresh that is itself rejected clears the credential store and surfaces ErrSessionExpired.
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"moviechat/internal/app/chat"
	"moviechat/internal/app/movie"
	"moviechat/internal/app/user"
	"moviechat/internal/pkg/errs"
	"moviechat/internal/pkg/logx"
)

const (
	requestTimeout = 15 * time.Second

	// maxErrorBody bounds how much of a failed response is read for its message.
	maxErrorBody = 64 << 10

	refreshPath = "/auth/refresh-token"
)

// TokenStore holds the credential the client authenticates with.
type TokenStore interface {
	Token() string
	Set(u user.User, token string)
	Clear()
}

// AuthResponse is returned by login, register and refresh.
type AuthResponse struct {
	User        user.User `json:"user"`
	AccessToken string    `json:"accessToken"`
}

type errorBody struct {
	Message string `json:"message"`
}

var _ chat.API = (*Client)(nil)

// Client talks to the REST backend at BaseURL.
type Client struct {
	baseURL string
	http    *http.Client
	store   TokenStore
	refresh singleflight.Group
}

// New creates a Client. The refresh cookie set by login is kept in the client's own cookie jar.
func New(baseURL string, store TokenStore) *Client {
	jar, _ := cookiejar.New(nil)

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout:   requestTimeout,
			Jar:       jar,
			Transport: &logx.Transport{},
		},
		store: store,
	}
}

// Register creates an account and signs in.
func (c *Client) Register(ctx context.Context, name, email, password string) (AuthResponse, error) {
	var out AuthResponse
	in := map[string]string{"name": name, "email": email, "password": password}
	err := c.send(ctx, http.MethodPost, "/auth/register", "", in, &out)
	return out, err
}

// Login exchanges e-mail and password for an access token and a refresh cookie.
func (c *Client) Login(ctx context.Context, email, password string) (AuthResponse, error) {
	var out AuthResponse
	in := map[string]string{"email": email, "password": password}
	err := c.send(ctx, http.MethodPost, "/auth/login", "", in, &out)
	return out, err
}

// Logout revokes the refresh cookie on the server.
func (c *Client) Logout(ctx context.Context) error {
	return c.send(ctx, http.MethodPost, "/auth/logout", c.store.Token(), nil, nil)
}

// Refresh obtains a new access token from the refresh cookie and stores it. Concurrent callers
// share one request. A 401 answer clears the store and returns ErrSessionExpired.
func (c *Client) Refresh(ctx context.Context) (AuthResponse, error) {
	v, err, _ := c.refresh.Do(refreshPath, func() (any, error) {
		var out AuthResponse
		if err := c.send(ctx, http.MethodPost, refreshPath, "", nil, &out); err != nil {
			if errs.HasCode(err, errs.ErrUnauthorized) {
				c.store.Clear()
				return out, errs.NewError(errs.ErrSessionExpired)
			}
			return out, err
		}

		c.store.Set(out.User, out.AccessToken)
		return out, nil
	})

	out, _ := v.(AuthResponse)
	return out, err
}

// Users lists all registered users.
func (c *Client) Users(ctx context.Context) ([]user.User, error) {
	var out []user.User
	err := c.do(ctx, http.MethodGet, "/users", nil, &out)
	return out, err
}

// Contacts lists the users the signed-in user can chat with.
func (c *Client) Contacts(ctx context.Context) ([]user.User, error) {
	var out []user.User
	err := c.do(ctx, http.MethodGet, "/chat/users", nil, &out)
	return out, err
}

// Movies lists the catalog.
func (c *Client) Movies(ctx context.Context) ([]movie.Movie, error) {
	var out []movie.Movie
	err := c.do(ctx, http.MethodGet, "/movies", nil, &out)
	return out, err
}

// Movie fetches one catalog entry.
func (c *Client) Movie(ctx context.Context, id string) (movie.Movie, error) {
	var out movie.Movie
	if id == "" {
		return out, errs.NewError(errs.ErrInvalidParams)
	}
	err := c.do(ctx, http.MethodGet, "/movies/"+url.PathEscape(id), nil, &out)
	return out, err
}

// CreateMovie adds a catalog entry. The server broadcasts movie-added on success.
func (c *Client) CreateMovie(ctx context.Context, req movie.CreateRequest) (movie.Movie, error) {
	var out movie.Movie
	if err := req.Validate(); err != nil {
		return out, err
	}
	err := c.do(ctx, http.MethodPost, "/movies", req, &out)
	return out, err
}

// RateMovie records the signed-in user's rating. The server broadcasts rating-updated on success.
func (c *Client) RateMovie(ctx context.Context, id string, value int) (movie.Movie, error) {
	var out movie.Movie
	if err := movie.ValidateRating(value); err != nil {
		return out, err
	}
	if id == "" {
		return out, errs.NewError(errs.ErrInvalidParams)
	}
	in := map[string]int{"value": value}
	err := c.do(ctx, http.MethodPost, "/movies/"+url.PathEscape(id)+"/rate", in, &out)
	return out, err
}

// DirectHistory returns the messages exchanged with peerID, oldest first.
func (c *Client) DirectHistory(ctx context.Context, peerID string) ([]chat.Message, error) {
	var out []chat.Message
	err := c.do(ctx, http.MethodGet, "/chat/history/"+url.PathEscape(peerID), nil, &out)
	return out, err
}

// RoomHistory returns the messages of roomID, oldest first.
func (c *Client) RoomHistory(ctx context.Context, roomID string) ([]chat.Message, error) {
	var out []chat.Message
	err := c.do(ctx, http.MethodGet, "/chat/rooms/"+url.PathEscape(roomID)+"/messages", nil, &out)
	return out, err
}

// Rooms lists the rooms the signed-in user belongs to.
func (c *Client) Rooms(ctx context.Context) ([]chat.Room, error) {
	var out []chat.Room
	err := c.do(ctx, http.MethodGet, "/chat/rooms", nil, &out)
	return out, err
}

// CreateRoom creates a room; the server adds the creator to the members.
func (c *Client) CreateRoom(ctx context.Context, req chat.CreateRoomRequest) (chat.Room, error) {
	var out chat.Room
	err := c.do(ctx, http.MethodPost, "/chat/rooms", req, &out)
	return out, err
}

// LeaveRoom removes the signed-in user from roomID.
func (c *Client) LeaveRoom(ctx context.Context, roomID string) error {
	return c.do(ctx, http.MethodPost, "/chat/rooms/"+url.PathEscape(roomID)+"/leave", nil, nil)
}

// do performs an authenticated call, refreshing the token once on 401.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	token := c.store.Token()
	err := c.send(ctx, method, path, token, in, out)
	if err == nil || !errs.HasCode(err, errs.ErrUnauthorized) || token == "" {
		return err
	}

	refreshed, err := c.Refresh(ctx)
	if err != nil {
		return err
	}

	return c.send(ctx, method, path, refreshed.AccessToken, in, out)
}

func (c *Client) send(ctx context.Context, method, path, token string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return responseError(res)
	}

	if out == nil || res.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, res.Body)
		return nil
	}

	if err := json.NewDecoder(res.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode %s %s: %w", method, path, errors.Join(errs.NewError(errs.ErrInvalidJSONFormat), err))
	}
	return nil
}

// responseError maps a non-2xx response to a CustomError carrying the server's message.
func responseError(res *http.Response) error {
	var body errorBody
	raw, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBody))
	_ = json.Unmarshal(raw, &body)

	code := errs.ErrUpstream
	switch res.StatusCode {
	case http.StatusBadRequest:
		code = errs.ErrInvalidParams
	case http.StatusUnauthorized:
		code = errs.ErrUnauthorized
	case http.StatusNotFound:
		code = errs.ErrNotFound
	case http.StatusConflict:
		code = errs.ErrUserAlreadyExists
	case http.StatusTooManyRequests:
		code = errs.ErrRateLimitExceeded
	}

	return errs.WithMessage(code, res.StatusCode, body.Message)
}
