/*
Package handler provides the HTTP handler functions for WebSocket connection upgrading.

The public socket accepts anyone. The chat socket requires a valid bearer token and answers 401
before upgrading otherwise, so clients can tell a rejected credential from a network failure.
*/
package handler

import (
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"

	"moviechat/internal/app/realtime"
	"moviechat/internal/pkg/auth/jwt"
	"moviechat/internal/pkg/errs"
	"moviechat/internal/pkg/logx"
	"moviechat/internal/pkg/resp"
)

// HandlePublicSocket upgrades the connection and attaches it to the broadcaster.
func HandlePublicSocket(deps *AppDeps, upgrader websocket.Upgrader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logx.Error(err, "Failed to upgrade public connection to WebSocket")
			return
		}

		deps.Public.Serve(conn)
	}
}

// HandleChatSocket authenticates the handshake, upgrades the connection and attaches it to the hub.
func HandleChatSocket(deps *AppDeps, upgrader websocket.Upgrader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tokenString := jwt.BearerToken(r)
		if tokenString == "" {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		payload, err := jwt.ParseToken(tokenString, deps.Config.JWTSecret)
		if err != nil {
			logx.Warn("Chat socket rejected: invalid token", "error", err)
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		u, err := deps.DB.UserByID(payload.ID)
		if err != nil {
			logx.Warn("Chat socket rejected: unknown user", "user_id", payload.ID)
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		attempt, _ := strconv.Atoi(r.Header.Get(realtime.ReconnectHeader))

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logx.Error(err, "Failed to upgrade chat connection to WebSocket")
			return
		}

		logx.Info("Chat connection established", "client_id", u.ID, "reconnect_attempt", attempt)

		deps.Chat.Serve(conn, u, attempt)
	}
}
