/*
Package errs provides custom error types and application-level error code constants.

These error codes identify specific business or system errors both inside the client
and in the JSON error bodies served by the development backend.
*/
package errs

// 1xxx: General Request Handling Errors
const (
	// ErrInvalidParams indicates that request parameter validation failed.
	ErrInvalidParams = 1001

	// ErrUnsupportedMediaType indicates that the request header Content-Type is not supported.
	ErrUnsupportedMediaType = 1002

	// ErrInvalidJSONFormat indicates that a JSON body or payload could not be decoded.
	ErrInvalidJSONFormat = 1003

	// ErrExtraContentInBody indicates that the request body contained extra content after valid JSON data.
	ErrExtraContentInBody = 1004

	// ErrNotFound indicates that the requested resource does not exist.
	ErrNotFound = 1005

	// ErrRateLimitExceeded indicates that the request rate has exceeded the set limit.
	ErrRateLimitExceeded = 1007
)

// 2xxx: Chat and Catalog Errors
const (
	// ErrRoomNotFound indicates that the room does not exist or the user is not a member.
	ErrRoomNotFound = 2103

	// ErrMovieNotFound indicates that the requested movie does not exist.
	ErrMovieNotFound = 2104

	// ErrInvalidRating indicates a rating outside the accepted 1-5 range.
	ErrInvalidRating = 2105

	// ErrMessageContentTooLong indicates that the message content exceeded the maximum length limit.
	ErrMessageContentTooLong = 2201

	// ErrMessageEmpty indicates that an outbound message has no content.
	ErrMessageEmpty = 2202

	// ErrNoConversation indicates a send attempted with neither a peer nor a room selected.
	ErrNoConversation = 2301

	// ErrInvalidPayload indicates an inbound event payload that failed shape validation.
	ErrInvalidPayload = 2302
)

// 3xxx: User, Session, and Security Errors
const (
	// ErrAlreadyLoggedIn indicates an attempt to register or log in with an active session.
	ErrAlreadyLoggedIn = 3005

	// ErrUserAlreadyExists indicates that the e-mail address is already registered.
	ErrUserAlreadyExists = 3008

	// ErrInvalidCredentials indicates a wrong e-mail or password.
	ErrInvalidCredentials = 3009

	// ErrUnauthorized indicates a missing, invalid or expired access token.
	ErrUnauthorized = 3010

	// ErrSessionExpired indicates that the refresh token was rejected and the user must log in again.
	ErrSessionExpired = 3011
)

// 4xxx: Realtime Transport Errors
const (
	// ErrNotConnected indicates a command emitted while the target connection is not open.
	ErrNotConnected = 4001

	// ErrUnknownEvent indicates an event that is not valid for the given connection or direction.
	ErrUnknownEvent = 4002

	// ErrSendQueueFull indicates that the connection's outbound queue is saturated.
	ErrSendQueueFull = 4003

	// ErrReconnectExhausted indicates that the bounded retry policy gave up.
	ErrReconnectExhausted = 4004

	// ErrHandshakeRejected indicates that the server refused the socket handshake.
	ErrHandshakeRejected = 4005
)

// 5xxx: Internal System Errors
const (
	// ErrUnknown represents an unclassified, general internal error.
	ErrUnknown = 5000

	// ErrUpstream indicates a non-2xx response from the REST backend.
	ErrUpstream = 5001
)
