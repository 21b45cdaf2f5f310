package auth

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"moviechat/internal/app/api"
	"moviechat/internal/app/user"
	"moviechat/internal/pkg/auth/jwt"
	"moviechat/internal/pkg/errs"
	"moviechat/internal/pkg/logx"
)

// RefreshWindow is how long before expiry the access token is proactively refreshed.
const RefreshWindow = 2 * time.Minute

// Client is the part of the REST backend the service signs in with.
type Client interface {
	Register(ctx context.Context, name, email, password string) (api.AuthResponse, error)
	Login(ctx context.Context, email, password string) (api.AuthResponse, error)
	Logout(ctx context.Context) error
	Refresh(ctx context.Context) (api.AuthResponse, error)
}

// Service signs the user in and out and refreshes the access token before it expires.
type Service struct {
	client Client
	store  *Store
	window time.Duration
	logger zerolog.Logger

	mu     sync.Mutex
	ctx    context.Context
	timer  *time.Timer
	cancel func()
}

// NewService creates a Service writing to store.
func NewService(client Client, store *Store) *Service {
	return &Service{
		client: client,
		store:  store,
		window: RefreshWindow,
		logger: logx.Component("auth"),
	}
}

// Start schedules proactive refreshes for every token stored from now on, until ctx is done or Close.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	s.cancel = s.store.Subscribe(s.schedule)
	s.schedule(s.store.Token())

	go func() {
		<-ctx.Done()
		s.Close()
	}()
}

// Close stops the refresh timer.
func (s *Service) Close() {
	if s.cancel != nil {
		s.cancel()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// Login signs in with e-mail and password.
func (s *Service) Login(ctx context.Context, email, password string) (user.User, error) {
	if _, ok := s.store.User(); ok {
		return user.User{}, errs.NewError(errs.ErrAlreadyLoggedIn)
	}

	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return user.User{}, errs.NewError(errs.ErrInvalidParams)
	}

	res, err := s.client.Login(ctx, email, password)
	if err != nil {
		return user.User{}, err
	}

	s.store.Set(res.User, res.AccessToken)
	s.logger.Info().Str("user_id", res.User.ID).Msg("Signed in")
	return res.User, nil
}

// Register creates an account and signs in with it.
func (s *Service) Register(ctx context.Context, name, email, password string) (user.User, error) {
	if _, ok := s.store.User(); ok {
		return user.User{}, errs.NewError(errs.ErrAlreadyLoggedIn)
	}

	name, email = strings.TrimSpace(name), strings.TrimSpace(email)
	if name == "" || email == "" || password == "" {
		return user.User{}, errs.NewError(errs.ErrInvalidParams)
	}

	res, err := s.client.Register(ctx, name, email, password)
	if err != nil {
		return user.User{}, err
	}

	s.store.Set(res.User, res.AccessToken)
	s.logger.Info().Str("user_id", res.User.ID).Msg("Registered")
	return res.User, nil
}

// Logout revokes the session on the server and always clears the local credential.
func (s *Service) Logout(ctx context.Context) {
	if _, ok := s.store.User(); !ok {
		return
	}

	if err := s.client.Logout(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("Server logout failed, clearing local session anyway")
	}
	s.store.Clear()
}

// Restore tries to resume a session from the refresh cookie.
func (s *Service) Restore(ctx context.Context) (user.User, bool) {
	res, err := s.client.Refresh(ctx)
	if err != nil {
		s.logger.Debug().Err(err).Msg("No session to restore")
		return user.User{}, false
	}

	s.store.Set(res.User, res.AccessToken)
	return res.User, true
}

func (s *Service) schedule(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if token == "" || s.ctx == nil || s.ctx.Err() != nil {
		return
	}

	exp, err := jwt.ExpiresAt(token)
	if err != nil {
		s.logger.Debug().Err(err).Msg("Access token carries no readable expiry, not scheduling a refresh")
		return
	}

	delay := time.Until(exp) - s.window
	if delay < 0 {
		delay = 0
	}

	ctx := s.ctx
	s.timer = time.AfterFunc(delay, func() { s.refresh(ctx, token) })
	s.logger.Debug().Dur("in", delay).Msg("Access token refresh scheduled")
}

func (s *Service) refresh(ctx context.Context, token string) {
	if s.store.Token() != token {
		return
	}

	res, err := s.client.Refresh(ctx)
	if err != nil {
		if errs.HasCode(err, errs.ErrSessionExpired) || errs.HasCode(err, errs.ErrUnauthorized) {
			s.logger.Warn().Msg("Session expired, signing out")
			s.store.Clear()
			return
		}
		s.logger.Error().Err(err).Msg("Proactive token refresh failed")
		return
	}

	s.store.Set(res.User, res.AccessToken)
}
