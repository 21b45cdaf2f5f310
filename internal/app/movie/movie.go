/*
Package movie contains the catalog types served by the REST backend and the live feed of
catalog changes broadcast on the Public connection.
*/
package movie

import (
	"errors"
	"net/url"
	"strings"
	"time"

	"moviechat/internal/pkg/errs"
)

const (
	// MinRating is the lowest accepted rating value.
	MinRating = 1

	// MaxRating is the highest accepted rating value.
	MaxRating = 5
)

// Rating is one user's rating of a movie.
type Rating struct {
	User      string    `json:"user"`
	Value     int       `json:"value"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Movie is a catalog entry.
type Movie struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	Description   string    `json:"description"`
	ReleaseDate   string    `json:"releaseDate"`
	Genre         []string  `json:"genre"`
	ImageURL      string    `json:"imageUrl"`
	Ratings       []Rating  `json:"ratings"`
	AverageRating float64   `json:"averageRating"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

func (m *Movie) Validate() error {
	if m.ID == "" {
		return errors.New("movie without id")
	}
	return nil
}

// RatingUpdate is the payload of rating-updated.
type RatingUpdate struct {
	MovieID       string  `json:"movieId"`
	AverageRating float64 `json:"averageRating"`
	RatingsCount  int     `json:"ratingsCount"`
}

func (r *RatingUpdate) Validate() error {
	if r.MovieID == "" {
		return errors.New("rating update without movieId")
	}
	return nil
}

// CreateRequest is the body of the create-movie call.
type CreateRequest struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	ReleaseDate string   `json:"releaseDate"`
	Genre       []string `json:"genre"`
	ImageURL    string   `json:"imageUrl"`
}

// Validate checks that every field is present and the image URL is absolute.
func (r *CreateRequest) Validate() error {
	if strings.TrimSpace(r.Title) == "" || strings.TrimSpace(r.Description) == "" ||
		strings.TrimSpace(r.ReleaseDate) == "" || len(r.Genre) == 0 {
		return errs.NewError(errs.ErrInvalidParams)
	}

	u, err := url.Parse(r.ImageURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return errs.NewError(errs.ErrInvalidParams)
	}

	return nil
}

// ValidateRating checks that value is within MinRating and MaxRating.
func ValidateRating(value int) error {
	if value < MinRating || value > MaxRating {
		return errs.NewError(errs.ErrInvalidRating, MinRating, MaxRating)
	}
	return nil
}

// Average recomputes the mean of ratings; zero when there are none.
func Average(ratings []Rating) float64 {
	if len(ratings) == 0 {
		return 0
	}

	total := 0
	for _, r := range ratings {
		total += r.Value
	}
	return float64(total) / float64(len(ratings))
}
