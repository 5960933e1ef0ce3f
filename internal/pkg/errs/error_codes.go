/*
Package errs provides custom error types and application-level error code constants.

These error codes identify specific business or system errors both inside the server and
in the JSON envelope returned to HTTP clients.
*/
package errs

// 1xxx: General Request Handling Errors
const (
	// ErrInvalidParams indicates that request parameter validation failed.
	ErrInvalidParams = 1001

	// ErrUnsupportedMediaType indicates that the request header Content-Type is not supported.
	ErrUnsupportedMediaType = 1002

	// ErrInvalidJSONFormat indicates that the request body JSON format is incorrect.
	ErrInvalidJSONFormat = 1003

	// ErrExtraContentInBody indicates that the request body contained extra content after valid JSON data.
	ErrExtraContentInBody = 1004

	// ErrRequestEntityTooLarge indicates that the request body size exceeded the server limit.
	ErrRequestEntityTooLarge = 1006

	// ErrRateLimitExceeded indicates that the request rate has exceeded the set limit.
	ErrRateLimitExceeded = 1007
)

// 2xxx: Message and Conversation Errors
const (
	// ErrConversationForbidden indicates that the caller is not a party of the requested conversation.
	ErrConversationForbidden = 2101

	// ErrSearchQueryInvalid indicates an empty or oversized search query.
	ErrSearchQueryInvalid = 2102

	// ErrAvatarInvalid indicates that the submitted profile picture could not be accepted.
	ErrAvatarInvalid = 2201

	// ErrFileSizeTooLarge indicates that an uploaded file exceeds the size limit.
	ErrFileSizeTooLarge = 2202

	// ErrStorageDisabled indicates that object storage has not been configured on this server.
	ErrStorageDisabled = 2203
)

// 3xxx: User, Session, and Security Errors
const (
	// ErrInvalidUsername indicates the username does not satisfy the format rules.
	ErrInvalidUsername = 3001

	// ErrInvalidPassword indicates the password does not satisfy the length rules.
	ErrInvalidPassword = 3002

	// ErrUserAlreadyExists indicates that the username is already registered.
	ErrUserAlreadyExists = 3003

	// ErrInvalidCredentials indicates a login with an unknown user or wrong password.
	ErrInvalidCredentials = 3004

	// ErrUserNotFound indicates the requested account does not exist.
	ErrUserNotFound = 3005

	// ErrUnauthorized indicates a missing or invalid identity token.
	ErrUnauthorized = 3006
)

// 5xxx: Internal System Errors
const (
	// ErrUnknown represents an unclassified, general server internal error.
	ErrUnknown = 5000

	// ErrStoreUnavailable indicates that the persistence layer failed.
	ErrStoreUnavailable = 5001

	// ErrFileStorageFailed indicates that the object storage call failed.
	ErrFileStorageFailed = 5002
)
