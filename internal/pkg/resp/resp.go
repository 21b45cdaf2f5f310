/*
Package resp provides helper functions for constructing and sending HTTP JSON responses.

Successful responses carry the resource itself as the body. Errors carry the business code and
the client-friendly message, which the REST client turns back into an errs.CustomError.
*/
package resp

import (
	"encoding/json"
	"net/http"

	"moviechat/internal/pkg/errs"
	"moviechat/internal/pkg/logx"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	// Code is the business error code (see errs package).
	Code int `json:"code"`

	// Message is the client-friendly error message.
	Message string `json:"message"`
}

// RespondJSON is a generic response function used to set the Content-Type and send the JSON payload.
func RespondJSON(w http.ResponseWriter, r *http.Request, httpStatus int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")

	response, err := json.Marshal(payload)
	if err != nil {
		logx.Error(
			err,
			"Error encoding JSON response",
			"http_status", httpStatus,
			"path", r.URL.Path,
		)

		http.Error(w, "Error encoding JSON response", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(httpStatus)
	w.Write(response)
}

// RespondSuccess sends data with HTTP 200 OK.
func RespondSuccess(w http.ResponseWriter, r *http.Request, data any) {
	RespondJSON(w, r, http.StatusOK, data)
}

// RespondCreated sends data with HTTP 201 Created.
func RespondCreated(w http.ResponseWriter, r *http.Request, data any) {
	RespondJSON(w, r, http.StatusCreated, data)
}

// RespondError sends an HTTP response containing custom error information.
func RespondError(w http.ResponseWriter, r *http.Request, customErr *errs.CustomError) {
	if customErr == nil {
		customErr = errs.NewError(errs.ErrUnknown)
	}

	RespondJSON(w, r, customErr.Status, ErrorResponse{
		Code:    customErr.Code,
		Message: customErr.Message,
	})
}
