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

func TestErrorIs_MatchesOnCode(t *testing.T) {
	redescribed := oauthx.ErrInvalidGrant.WithDescription("the code was already redeemed")
	require.ErrorIs(t, redescribed, oauthx.ErrInvalidGrant)
	require.NotSame(t, oauthx.ErrInvalidGrant, redescribed, "sentinel is never mutated")
	require.Equal(t, "the code was already redeemed", redescribed.Description)

	wrapped := fmt.Errorf("exchange failed: %w", oauthx.ErrSlowDown)
	require.ErrorIs(t, wrapped, oauthx.ErrSlowDown)
	require.NotErrorIs(t, wrapped, oauthx.ErrAuthorizationPending)

	require.NotErrorIs(t, oauthx.ErrInvalidGrant, errors.New("invalid_grant"),
		"only oauthx errors compare by code")
}

func TestErrorIs_SharedCodeSentinels(t *testing.T) {
	// Content-type and form-body failures are both invalid_request on the
	// wire, so they compare equal to the generic sentinel.
	require.ErrorIs(t, oauthx.ErrInvalidContentType, oauthx.ErrInvalidRequest)
	require.ErrorIs(t, oauthx.ErrInvalidFormBody, oauthx.ErrInvalidRequest)
}

func TestErrorMessage(t *testing.T) {
	err := oauthx.NewError(http.StatusBadRequest, "invalid_target", "unknown resource")
	require.Equal(t, "invalid_target: unknown resource", err.Error())
}

func TestStatusCodes(t *testing.T) {
	require.Equal(t, http.StatusUnauthorized, oauthx.ErrInvalidClient.StatusCode)
	require.Equal(t, http.StatusInternalServerError, oauthx.ErrServerError.StatusCode)
	require.Equal(t, http.StatusBadRequest, oauthx.ErrInvalidGrant.StatusCode)
	require.Equal(t, http.StatusBadRequest, oauthx.ErrAuthorizationPending.StatusCode)
}

func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()
	oauthx.ErrInvalidGrant.WriteError(rec)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	require.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	require.Equal(t, "no-cache", rec.Header().Get("Pragma"))

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "invalid_grant", body["error"])
	require.NotEmpty(t, body["error_description"])
}
