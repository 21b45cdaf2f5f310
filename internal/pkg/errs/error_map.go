/*
Package errs provides custom error types and application-level error code constants.

This file defines the map from error codes to the CustomError struct, used to standardize
HTTP responses and internal error handling.
*/
package errs

import "net/http"

// errorMap stores the template CustomError for every application error code.
// The key is the error code (int), and the value contains the user message and HTTP status code.
var errorMap = map[int]CustomError{
	// 1xxx: General Request Handling Errors
	ErrInvalidParams:        {Code: ErrInvalidParams, Message: "Invalid request parameters.", Status: http.StatusBadRequest},
	ErrUnsupportedMediaType: {Code: ErrUnsupportedMediaType, Message: "Unsupported request format.", Status: http.StatusUnsupportedMediaType},
	ErrInvalidJSONFormat:    {Code: ErrInvalidJSONFormat, Message: "Unsupported request format.", Status: http.StatusBadRequest},
	ErrExtraContentInBody:   {Code: ErrExtraContentInBody, Message: "Request contains unexpected data.", Status: http.StatusBadRequest},
	ErrNotFound:             {Code: ErrNotFound, Message: "The requested resource was not found.", Status: http.StatusNotFound},
	ErrRateLimitExceeded:    {Code: ErrRateLimitExceeded, Message: "Too many requests. Please try again later.", Status: http.StatusTooManyRequests},

	// 2xxx: Chat and Catalog Errors
	ErrRoomNotFound:          {Code: ErrRoomNotFound, Message: "Chat room not found.", Status: http.StatusNotFound},
	ErrMovieNotFound:         {Code: ErrMovieNotFound, Message: "Movie not found.", Status: http.StatusNotFound},
	ErrInvalidRating:         {Code: ErrInvalidRating, Message: "Rating must be between %d and %d.", Status: http.StatusBadRequest},
	ErrMessageContentTooLong: {Code: ErrMessageContentTooLong, Message: "Message is too long.", Status: http.StatusBadRequest},
	ErrMessageEmpty:          {Code: ErrMessageEmpty, Message: "Message is empty."},
	ErrNoConversation:        {Code: ErrNoConversation, Message: "Select a contact or a room first."},
	ErrInvalidPayload:        {Code: ErrInvalidPayload, Message: "Malformed %s payload."},

	// 3xxx: User, Session, and Security Errors
	ErrAlreadyLoggedIn:    {Code: ErrAlreadyLoggedIn, Message: "You are already signed in.", Status: http.StatusBadRequest},
	ErrUserAlreadyExists:  {Code: ErrUserAlreadyExists, Message: "E-mail is already registered.", Status: http.StatusConflict},
	ErrInvalidCredentials: {Code: ErrInvalidCredentials, Message: "Incorrect e-mail or password.", Status: http.StatusUnauthorized},
	ErrUnauthorized:       {Code: ErrUnauthorized, Message: "Please sign in to continue.", Status: http.StatusUnauthorized},
	ErrSessionExpired:     {Code: ErrSessionExpired, Message: "Session expired, please log in again.", Status: http.StatusUnauthorized},

	// 4xxx: Realtime Transport Errors
	ErrNotConnected:       {Code: ErrNotConnected, Message: "Chat is not connected."},
	ErrUnknownEvent:       {Code: ErrUnknownEvent, Message: "Event %q is not supported on the %s connection."},
	ErrSendQueueFull:      {Code: ErrSendQueueFull, Message: "Too many pending messages. Please try again."},
	ErrReconnectExhausted: {Code: ErrReconnectExhausted, Message: "Could not reconnect to chat. Reload or sign in again."},
	ErrHandshakeRejected:  {Code: ErrHandshakeRejected, Message: "Chat server refused the connection."},

	// 5xxx: Internal System Errors
	ErrUnknown:  {Code: ErrUnknown, Message: "Something went wrong. Please try again.", Status: http.StatusInternalServerError},
	ErrUpstream: {Code: ErrUpstream, Message: "Request failed. Please try again.", Status: http.StatusBadGateway},
}
