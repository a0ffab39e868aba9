package oauthx_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/relayid/grantd/pkg/oauthx"
	"github.com/stretchr/testify/require"
)

func TestNewTokenResponse_Write(t *testing.T) {
	resp := oauthx.NewTokenResponse(oauthx.TokenResponse{
		AccessToken:  "abc",
		TokenType:    "Bearer",
		ExpiresIn:    900,
		RefreshToken: "def",
		Scope:        "openid profile",
	})

	rec := httptest.NewRecorder()
	resp.Write(rec)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	require.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	require.Equal(t, "no-cache", rec.Header().Get("Pragma"))

	var body oauthx.TokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "abc", body.AccessToken)
	require.Equal(t, "Bearer", body.TokenType)
	require.EqualValues(t, 900, body.ExpiresIn)
	require.Equal(t, "openid profile", body.Scope)
}

func TestTokenResponse_OmitsEmptyOptionalFields(t *testing.T) {
	raw, err := json.Marshal(oauthx.TokenResponse{
		AccessToken: "abc",
		TokenType:   "Bearer",
		ExpiresIn:   900,
	})
	require.NoError(t, err)
	require.NotContains(t, string(raw), "refresh_token")
	require.NotContains(t, string(raw), "id_token")
	require.NotContains(t, string(raw), "scope")
}

func TestNewBackchannelResponse(t *testing.T) {
	resp := oauthx.NewBackchannelResponse(oauthx.BackchannelAuthResponse{
		AuthReqID: "req-1",
		ExpiresIn: 300,
		Interval:  3,
	})

	rec := httptest.NewRecorder()
	resp.Write(rec)

	require.Equal(t, http.StatusOK, rec.Code)

	var body oauthx.BackchannelAuthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "req-1", body.AuthReqID)
	require.EqualValues(t, 300, body.ExpiresIn)
	require.EqualValues(t, 3, body.Interval)
}

func TestErrorResponseFor(t *testing.T) {
	t.Run("oauth error passes through", func(t *testing.T) {
		resp := oauthx.ErrorResponseFor(oauthx.ErrInvalidScope)
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)

		body := resp.Body.(oauthx.ErrorResponse)
		require.Equal(t, "invalid_scope", body.Error)
	})

	t.Run("wrapped oauth error unwraps", func(t *testing.T) {
		wrapped := fmt.Errorf("exchange: %w", oauthx.ErrInvalidClient)
		resp := oauthx.ErrorResponseFor(wrapped)
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

		body := resp.Body.(oauthx.ErrorResponse)
		require.Equal(t, "invalid_client", body.Error)
	})

	t.Run("unknown error collapses to server_error", func(t *testing.T) {
		resp := oauthx.ErrorResponseFor(errors.New("database exploded"))
		require.Equal(t, http.StatusInternalServerError, resp.StatusCode)

		body := resp.Body.(oauthx.ErrorResponse)
		require.Equal(t, "server_error", body.Error)
		require.NotContains(t, body.ErrorDescription, "database",
			"internal details never reach the client")
	})
}
