package handler

import (
	"net/http"

	"moviechat/internal/app/user"
	"moviechat/internal/pkg/auth/jwt"
	"moviechat/internal/pkg/resp"
)

// HandleListUsers lists every registered user.
func HandleListUsers(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp.RespondSuccess(w, r, deps.DB.Users())
	}
}

// HandleChatUsers lists the users the caller can chat with, that is everyone but the caller.
func HandleChatUsers(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := jwt.GetPayloadFromContext(r)

		users := deps.DB.Users()
		contacts := make([]user.User, 0, len(users))
		for _, u := range users {
			if u.ID != identity.ID {
				contacts = append(contacts, u)
			}
		}

		resp.RespondSuccess(w, r, contacts)
	}
}
