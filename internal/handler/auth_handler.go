/*
Package handler provides HTTP handler functions for user authentication and management.
*/
package handler

import (
	"net/http"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"

	"moviechat/internal/app/db"
	"moviechat/internal/app/user"
	"moviechat/internal/pkg/auth/jwt"
	"moviechat/internal/pkg/errs"
	"moviechat/internal/pkg/logx"
	"moviechat/internal/pkg/randx"
	"moviechat/internal/pkg/req"
	"moviechat/internal/pkg/resp"
)

// RefreshCookieName is the cookie carrying the refresh token.
const RefreshCookieName = "refreshToken"

const (
	minPasswordLength = 6
	maxPasswordLength = 50
)

type RegisterInput struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (in *RegisterInput) Validate() error {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return errs.NewError(errs.ErrInvalidParams)
	}

	if _, err := mail.ParseAddress(in.Email); err != nil {
		return errs.NewError(errs.ErrInvalidParams)
	}

	passwordLen := utf8.RuneCountInString(in.Password)
	if passwordLen < minPasswordLength || passwordLen > maxPasswordLength {
		return errs.NewError(errs.ErrInvalidParams)
	}

	return nil
}

type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	User        user.User `json:"user"`
	AccessToken string    `json:"accessToken"`
}

// HandleRegister creates an account and signs it in.
func HandleRegister(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input RegisterInput
		if customErr := req.BindJSON(w, r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		hashedPassword, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
		if err != nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown, err))
			return
		}

		u, err := deps.DB.CreateUser(input.Name, input.Email, hashedPassword)
		if err != nil {
			if db.IsUniqueViolation(err) {
				logx.Warn("registration conflict: e-mail already exists", "email", input.Email)
				resp.RespondError(w, r, errs.NewError(errs.ErrUserAlreadyExists))
				return
			}

			logx.Error(err, "failed to create user")
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown))
			return
		}

		issueSession(w, r, deps, u, http.StatusCreated)
	}
}

// HandleLogin verifies user credentials and issues an access token plus a refresh cookie.
func HandleLogin(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input LoginInput
		if customErr := req.BindJSON(w, r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		u, hash, err := deps.DB.UserByEmail(input.Email)
		if err != nil {
			logx.Warn("login: user fetch failed", "email", input.Email, "error", err)
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidCredentials))
			return
		}

		if err := bcrypt.CompareHashAndPassword(hash, []byte(input.Password)); err != nil {
			logx.Warn("login: password mismatch", "email", input.Email)
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidCredentials))
			return
		}

		issueSession(w, r, deps, u, http.StatusOK)
	}
}

// HandleRefresh exchanges the refresh cookie for a new access token.
func HandleRefresh(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(RefreshCookieName)
		if err != nil || !randx.IsValidRefreshToken(cookie.Value) {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		u, err := deps.DB.SessionUser(cookie.Value)
		if err != nil {
			logx.Warn("refresh: unknown or expired refresh token")
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		token, err := accessToken(deps, u)
		if err != nil {
			logx.Error(err, "refresh: jwt generation failed")
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown))
			return
		}

		resp.RespondSuccess(w, r, authResponse{User: u, AccessToken: token})
	}
}

// HandleLogout revokes the refresh cookie and drops the caller's chat connections.
func HandleLogout(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cookie, err := r.Cookie(RefreshCookieName); err == nil {
			deps.DB.DeleteSession(cookie.Value)
		}

		if identity, err := jwt.ParseToken(jwt.BearerToken(r), deps.Config.JWTSecret); err == nil {
			deps.Chat.Disconnect(identity.ID)
		}

		http.SetCookie(w, &http.Cookie{
			Name:     RefreshCookieName,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})

		resp.RespondSuccess(w, r, map[string]string{"message": "Logged out"})
	}
}

func accessToken(deps *AppDeps, u user.User) (string, error) {
	payload := &jwt.Payload{ID: u.ID, Email: u.Email}
	return jwt.GenerateToken(payload, deps.Config.JWTSecret, jwt.AccessExpiration)
}

func issueSession(w http.ResponseWriter, r *http.Request, deps *AppDeps, u user.User, status int) {
	token, err := accessToken(deps, u)
	if err != nil {
		logx.Error(err, "jwt generation failed", "user_id", u.ID)
		resp.RespondError(w, r, errs.NewError(errs.ErrUnknown))
		return
	}

	refresh, err := randx.RefreshToken()
	if err != nil {
		logx.Error(err, "refresh token generation failed", "user_id", u.ID)
		resp.RespondError(w, r, errs.NewError(errs.ErrUnknown))
		return
	}
	deps.DB.CreateSession(refresh, u.ID, jwt.RefreshExpiration)

	http.SetCookie(w, &http.Cookie{
		Name:     RefreshCookieName,
		Value:    refresh,
		Path:     "/",
		Expires:  time.Now().Add(jwt.RefreshExpiration),
		HttpOnly: true,
		Secure:   !deps.Config.IsDevelopment(),
		SameSite: http.SameSiteLaxMode,
	})

	resp.RespondJSON(w, r, status, authResponse{User: u, AccessToken: token})
}
