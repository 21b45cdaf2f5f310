package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"moviechat/internal/app/db"
	"moviechat/internal/app/movie"
	"moviechat/internal/app/realtime"
	"moviechat/internal/pkg/auth/jwt"
	"moviechat/internal/pkg/errs"
	"moviechat/internal/pkg/req"
	"moviechat/internal/pkg/resp"
)

type RateInput struct {
	Value int `json:"value"`
}

func (in *RateInput) Validate() error {
	return movie.ValidateRating(in.Value)
}

// HandleListMovies lists the catalog.
func HandleListMovies(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp.RespondSuccess(w, r, deps.DB.Movies())
	}
}

// HandleGetMovie returns one catalog entry.
func HandleGetMovie(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m, err := deps.DB.Movie(chi.URLParam(r, "id"))
		if err != nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrMovieNotFound))
			return
		}
		resp.RespondSuccess(w, r, m)
	}
}

// HandleCreateMovie adds a catalog entry and broadcasts movie-added on the public socket.
func HandleCreateMovie(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input movie.CreateRequest
		if customErr := req.BindJSON(w, r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		m := deps.DB.CreateMovie(input)
		deps.Public.Broadcast(realtime.EventMovieAdded, m)

		resp.RespondCreated(w, r, m)
	}
}

// HandleRateMovie records the caller's rating and broadcasts rating-updated on the public socket.
func HandleRateMovie(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := jwt.GetPayloadFromContext(r)

		var input RateInput
		if customErr := req.BindJSON(w, r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		m, err := deps.DB.RateMovie(chi.URLParam(r, "id"), identity.ID, input.Value)
		if err != nil {
			if db.IsNotFound(err) {
				resp.RespondError(w, r, errs.NewError(errs.ErrMovieNotFound))
				return
			}
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown))
			return
		}

		deps.Public.Broadcast(realtime.EventRatingUpdated, movie.RatingUpdate{
			MovieID:       m.ID,
			AverageRating: m.AverageRating,
			RatingsCount:  len(m.Ratings),
		})

		resp.RespondSuccess(w, r, m)
	}
}
