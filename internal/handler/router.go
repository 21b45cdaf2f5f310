/*
Package handler provides the HTTP handlers and routing setup for the development backend.

This file defines the main Router, applying necessary middleware like logging, CORS,
and IP-based rate limiting before delegating requests to specific handlers (REST and WebSocket).
*/
package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"
	"golang.org/x/time/rate"

	"moviechat/internal/pkg/auth/jwt"
	"moviechat/internal/pkg/limiter"
	"moviechat/internal/pkg/logx"
	"moviechat/internal/pkg/resp"
)

const (
	AuthRate    = 1
	AuthBurst   = 10
	SocketRate  = 5
	SocketBurst = 20
)

// Router sets up the main HTTP routing table (chi.Router) for the application.
// The rate limiters' cleanup goroutines stop when ctx is done.
func Router(ctx context.Context, deps *AppDeps) http.Handler {
	authLimiter := limiter.NewIPRateLimiter(ctx, rate.Limit(AuthRate), AuthBurst)
	socketLimiter := limiter.NewIPRateLimiter(ctx, rate.Limit(SocketRate), SocketBurst)

	r := chi.NewRouter()

	allowedOrigins := make(map[string]struct{})
	for _, origin := range deps.Config.AllowedOrigins {
		allowedOrigins[origin] = struct{}{}
	}

	var wsUpgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if deps.Config.IsDevelopment() {
				return true
			}

			// Non-browser clients send no Origin.
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			if _, ok := allowedOrigins[origin]; ok {
				return true
			}

			logx.Warn("WebSocket connection rejected: Origin not allowed.", "origin", origin)
			return false
		},
	}

	corsAllowedOrigins := []string{}
	if deps.Config.IsDevelopment() {
		corsAllowedOrigins = []string{"*"}
	} else if len(deps.Config.AllowedOrigins) > 0 {
		corsAllowedOrigins = deps.Config.AllowedOrigins
	}

	c := cors.New(cors.Options{
		AllowedOrigins:   corsAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{},
		AllowCredentials: true,
		MaxAge:           300,
	})
	r.Use(c.Handler)

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logx.RequestLogger())
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		resp.RespondSuccess(w, r, map[string]any{
			"status":  "ok",
			"service": "MovieChat Dev Server",
			"online":  len(deps.Chat.Online()),
			"public":  deps.Public.Len(),
		})
	})

	r.Route("/auth", func(auth chi.Router) {
		auth.Use(authLimiter.Middleware)

		auth.Post("/register", HandleRegister(deps))
		auth.Post("/login", HandleLogin(deps))
		auth.Post("/refresh-token", HandleRefresh(deps))
		auth.Post("/logout", HandleLogout(deps))
	})

	r.Get("/movies", HandleListMovies(deps))
	r.Get("/movies/{id}", HandleGetMovie(deps))

	r.Group(func(private chi.Router) {
		private.Use(jwt.RequireAuthMiddleware(deps.Config.JWTSecret))

		private.Get("/users", HandleListUsers(deps))

		private.Post("/movies", HandleCreateMovie(deps))
		private.Post("/movies/{id}/rate", HandleRateMovie(deps))

		private.Route("/chat", func(chat chi.Router) {
			chat.Get("/users", HandleChatUsers(deps))
			chat.Get("/history/{peerId}", HandleDirectHistory(deps))
			chat.Get("/rooms", HandleListRooms(deps))
			chat.Post("/rooms", HandleCreateRoom(deps))
			chat.Get("/rooms/{roomId}/messages", HandleRoomHistory(deps))
			chat.Post("/rooms/{roomId}/leave", HandleLeaveRoom(deps))
		})
	})

	r.Group(func(ws chi.Router) {
		ws.Use(socketLimiter.Middleware)

		ws.Get("/socket", HandlePublicSocket(deps, wsUpgrader))
		ws.Get("/socket/chat", HandleChatSocket(deps, wsUpgrader))
	})

	return r
}
