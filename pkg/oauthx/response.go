package oauthx

import (
	"encoding/json"
	"errors"
	"net/http"
)

// TokenResponse is the token endpoint success body per RFC 6749 §5.1,
// with the OIDC id_token extension.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	IDToken      string `json:"id_token,omitempty"`
	Scope        string `json:"scope,omitempty"`
}

// BackchannelAuthResponse is the CIBA authentication endpoint success body.
type BackchannelAuthResponse struct {
	AuthReqID string `json:"auth_req_id"`
	ExpiresIn int64  `json:"expires_in"`
	Interval  int64  `json:"interval"`
}

// ErrorResponse is the wire shape of a failed request.
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// Response is the transport-agnostic result every grant family produces.
// The HTTP layer writes it verbatim; other bindings could too.
type Response struct {
	StatusCode int
	Headers    map[string]string
	Body       any
}

// NewTokenResponse wraps a successful token issuance.
func NewTokenResponse(body TokenResponse) Response {
	return Response{
		StatusCode: http.StatusOK,
		Headers:    noStoreHeaders(),
		Body:       body,
	}
}

// NewBackchannelResponse wraps a successful CIBA authentication request.
func NewBackchannelResponse(body BackchannelAuthResponse) Response {
	return Response{
		StatusCode: http.StatusOK,
		Headers:    noStoreHeaders(),
		Body:       body,
	}
}

// ErrorResponseFor converts any error into a Response. Unrecognised errors
// collapse to server_error with a generic description.
func ErrorResponseFor(err error) Response {
	var oe *Error
	if !errors.As(err, &oe) {
		oe = ErrServerError
	}
	return Response{
		StatusCode: oe.StatusCode,
		Headers:    noStoreHeaders(),
		Body: ErrorResponse{
			Error:            oe.Code,
			ErrorDescription: oe.Description,
		},
	}
}

// Write renders the response onto an http.ResponseWriter.
func (r Response) Write(w http.ResponseWriter) {
	for k, v := range r.Headers {
		w.Header().Set(k, v)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(r.StatusCode)
	_ = json.NewEncoder(w).Encode(r.Body)
}

// NoCache sets the no-store headers RFC 6749 §5.1 requires on token responses.
func NoCache(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
}

func noStoreHeaders() map[string]string {
	return map[string]string{
		"Cache-Control": "no-store",
		"Pragma":        "no-cache",
	}
}
