/*
Package req provides helper functions for HTTP request parsing and data binding.

Request bodies that implement Validator are validated right after decoding, so handlers only
see inputs that are well-formed and within bounds.
*/
package req

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"moviechat/internal/pkg/errs"
)

// MaxBodySize bounds JSON request bodies (1 MB).
const MaxBodySize int64 = 1 << 20

// Validator is implemented by request bodies that check their own fields.
type Validator interface {
	Validate() error
}

// BindJSON decodes the JSON body of r into dst and validates it when dst is a Validator.
// Validation failures keep their code when they are *errs.CustomError and become
// ErrInvalidParams otherwise.
func BindJSON(w http.ResponseWriter, r *http.Request, dst any) *errs.CustomError {
	contentType := r.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "application/json") {
		return errs.NewError(errs.ErrUnsupportedMediaType)
	}

	r.Body = http.MaxBytesReader(w, r.Body, MaxBodySize)

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return errs.NewError(errs.ErrInvalidParams)
		}
		return errs.NewError(errs.ErrInvalidJSONFormat)
	}

	if decoder.More() {
		return errs.NewError(errs.ErrExtraContentInBody)
	}

	v, ok := dst.(Validator)
	if !ok {
		return nil
	}

	if err := v.Validate(); err != nil {
		var customErr *errs.CustomError
		if errors.As(err, &customErr) {
			return customErr
		}
		return errs.NewError(errs.ErrInvalidParams)
	}

	return nil
}
