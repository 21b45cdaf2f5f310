package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"moviechat/internal/app/db"
	"moviechat/internal/app/hub"
	"moviechat/internal/app/movie"
	"moviechat/internal/configs"
	"moviechat/internal/handler"
	"moviechat/internal/pkg/errs"
)

func newServer(t *testing.T) (*httptest.Server, *db.DB) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	deps := &handler.AppDeps{
		DB:     db.New(),
		Public: hub.NewBroadcaster(),
		Config: &configs.ServerConfig{Environment: "development", JWTSecret: "test-secret"},
	}
	deps.Chat = hub.NewHub(deps.DB)
	go deps.Chat.Run()

	srv := httptest.NewServer(handler.Router(ctx, deps))
	t.Cleanup(func() {
		deps.Chat.Stop()
		deps.Public.Close()
		srv.Close()
		cancel()
	})
	return srv, deps.DB
}

func run(t *testing.T, apiURL string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("API_URL", apiURL)
	t.Setenv("CHAT_EMAIL", "")
	t.Setenv("CHAT_PASSWORD", "")

	var out bytes.Buffer
	cmd := rootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--env-file", t.TempDir() + "/missing.env"}, args...))

	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestMoviesList(t *testing.T) {
	srv, store := newServer(t)
	store.CreateMovie(movie.CreateRequest{
		Title:       "Heat",
		Description: "A group of professional bank robbers.",
		ReleaseDate: "1995-12-15",
		Genre:       []string{"crime"},
		ImageURL:    "https://img.example/heat.jpg",
	})

	out, err := run(t, srv.URL, "movies", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "TITLE")
	assert.Contains(t, out, "Heat")
	assert.Contains(t, out, "1995-12-15")
}

func TestRateRejectsOutOfRangeBeforeSignIn(t *testing.T) {
	_, err := run(t, "http://127.0.0.1:1", "movies", "rate", "some-id", "9")
	assert.True(t, errs.HasCode(err, errs.ErrInvalidRating))
}

func TestRegisterThenListRooms(t *testing.T) {
	srv, _ := newServer(t)

	out, err := run(t, srv.URL, "register", "--name", "Ann", "--email", "ann@example.com", "--password", "password1")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "registered Ann <ann@example.com>"))

	out, err = run(t, srv.URL, "rooms", "--email", "ann@example.com", "--password", "password1")
	require.NoError(t, err)
	assert.Contains(t, out, "MEMBERS")
}

func TestCommandsNeedAnAccount(t *testing.T) {
	srv, _ := newServer(t)

	_, err := run(t, srv.URL, "rooms")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no account configured")
}
