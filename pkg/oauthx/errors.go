package oauthx

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// OAuth2 / CIBA error codes per RFC 6749 and OpenID CIBA Core.
const (
	ErrorCodeInvalidRequest       = "invalid_request"
	ErrorCodeInvalidClient        = "invalid_client"
	ErrorCodeInvalidGrant         = "invalid_grant"
	ErrorCodeUnauthorizedClient   = "unauthorized_client"
	ErrorCodeUnsupportedGrantType = "unsupported_grant_type"
	ErrorCodeInvalidScope         = "invalid_scope"
	ErrorCodeServerError          = "server_error"
	ErrorCodeAccessDenied         = "access_denied"
	ErrorCodeAuthorizationPending = "authorization_pending"
	ErrorCodeSlowDown             = "slow_down"
	ErrorCodeExpiredToken         = "expired_token"
	ErrorCodeUnknownUserID        = "unknown_user_id"
	ErrorCodeInvalidUserCode      = "invalid_user_code"
)

// Error is a standard OAuth2 error response. It implements the error
// interface so grant services can return it directly; the HTTP boundary
// maps it onto the wire exactly once.
type Error struct {
	// StatusCode is the HTTP status code for this error
	StatusCode int `json:"-"`

	// Code is the OAuth2 error code (e.g., "invalid_grant")
	Code string `json:"error"`

	// Description is a human-readable description of the error
	Description string `json:"error_description"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// WithDescription returns a copy with a different description. The
// sentinel value itself is never mutated so errors.Is keeps working.
func (e *Error) WithDescription(desc string) *Error {
	return &Error{StatusCode: e.StatusCode, Code: e.Code, Description: desc}
}

// Is matches on the OAuth error code so wrapped or re-described errors
// still compare equal to the sentinel they were derived from.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WriteError writes this Error to an HTTP response writer.
func (e *Error) WriteError(w http.ResponseWriter) {
	NoCache(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.StatusCode)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":             e.Code,
		"error_description": e.Description,
	})
}

var (
	// ErrInvalidRequest is returned when the request is missing a required
	// parameter or is otherwise malformed. Static validation only; requests
	// failing here never touch storage.
	ErrInvalidRequest = &Error{
		StatusCode:  http.StatusBadRequest,
		Code:        ErrorCodeInvalidRequest,
		Description: "the request is malformed or missing required parameters",
	}

	// ErrInvalidClient is returned when the client binding on a grant does
	// not match the requesting client.
	ErrInvalidClient = &Error{
		StatusCode:  http.StatusUnauthorized,
		Code:        ErrorCodeInvalidClient,
		Description: "invalid client",
	}

	// ErrInvalidGrant covers a precursor artifact that is missing, expired,
	// already consumed, or bound to different request parameters. All four
	// conditions produce the identical response on purpose: a caller must
	// not be able to distinguish "already used" from "never existed".
	ErrInvalidGrant = &Error{
		StatusCode:  http.StatusBadRequest,
		Code:        ErrorCodeInvalidGrant,
		Description: "the provided grant is invalid, expired or revoked",
	}

	// ErrUnauthorizedClient is returned when the client is not allowed to
	// use the requested grant type.
	ErrUnauthorizedClient = &Error{
		StatusCode:  http.StatusBadRequest,
		Code:        ErrorCodeUnauthorizedClient,
		Description: "the client is not authorized to use this grant type",
	}

	// ErrUnsupportedGrantType is returned when no strategy is registered
	// for the requested grant_type.
	ErrUnsupportedGrantType = &Error{
		StatusCode:  http.StatusBadRequest,
		Code:        ErrorCodeUnsupportedGrantType,
		Description: "grant type not supported",
	}

	// ErrInvalidScope is returned when the requested scope exceeds what the
	// client or user may be granted.
	ErrInvalidScope = &Error{
		StatusCode:  http.StatusBadRequest,
		Code:        ErrorCodeInvalidScope,
		Description: "requested scope is invalid",
	}

	// ErrServerError is the only 500-class token error. The description is
	// deliberately generic; details go to the server log, never the client.
	ErrServerError = &Error{
		StatusCode:  http.StatusInternalServerError,
		Code:        ErrorCodeServerError,
		Description: "internal server error",
	}

	// ErrAuthorizationPending tells a CIBA client the end user has not yet
	// decided. Retryable; not logged as an error.
	ErrAuthorizationPending = &Error{
		StatusCode:  http.StatusBadRequest,
		Code:        ErrorCodeAuthorizationPending,
		Description: "the authorization request is still pending",
	}

	// ErrSlowDown tells a CIBA client it is polling faster than the agreed
	// interval. The client should back off and retry.
	ErrSlowDown = &Error{
		StatusCode:  http.StatusBadRequest,
		Code:        ErrorCodeSlowDown,
		Description: "polling too frequently, increase the polling interval",
	}

	// ErrExpiredToken is returned when a CIBA auth_req_id has passed its
	// requested expiry without a decision.
	ErrExpiredToken = &Error{
		StatusCode:  http.StatusBadRequest,
		Code:        ErrorCodeExpiredToken,
		Description: "the auth_req_id has expired",
	}

	// ErrAccessDenied is returned when the end user denied the CIBA request.
	ErrAccessDenied = &Error{
		StatusCode:  http.StatusBadRequest,
		Code:        ErrorCodeAccessDenied,
		Description: "the end user denied the authorization request",
	}

	// ErrUnknownUserID is returned when a CIBA hint resolves to no user.
	ErrUnknownUserID = &Error{
		StatusCode:  http.StatusBadRequest,
		Code:        ErrorCodeUnknownUserID,
		Description: "the provided hint does not identify a user",
	}

	// ErrInvalidUserCode is returned when a CIBA user_code check fails.
	ErrInvalidUserCode = &Error{
		StatusCode:  http.StatusBadRequest,
		Code:        ErrorCodeInvalidUserCode,
		Description: "invalid user code",
	}

	// ErrInvalidContentType is returned when the Content-Type header is not
	// application/x-www-form-urlencoded.
	ErrInvalidContentType = &Error{
		StatusCode:  http.StatusBadRequest,
		Code:        ErrorCodeInvalidRequest,
		Description: "content-type must be application/x-www-form-urlencoded",
	}

	// ErrInvalidFormBody is returned when the form body cannot be parsed.
	ErrInvalidFormBody = &Error{
		StatusCode:  http.StatusBadRequest,
		Code:        ErrorCodeInvalidRequest,
		Description: "invalid form body",
	}
)

// NewError creates an Error with the given status code, error code, and
// description for cases not covered by the sentinels above.
func NewError(statusCode int, code, description string) *Error {
	return &Error{
		StatusCode:  statusCode,
		Code:        code,
		Description: description,
	}
}
