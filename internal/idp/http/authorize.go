package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/relayid/grantd/internal/idp/domain"
	"github.com/relayid/grantd/internal/idp/service"
	"github.com/relayid/grantd/pkg/httpx"
	"github.com/relayid/grantd/pkg/oauthx"
)

// AuthorizeHandler serves POST /v1/tenants/{tenant}/oauth2/authorize.
//
// Login and consent UI live in a trusted frontend; it calls this endpoint
// after the user has authenticated and approved, and receives the
// authorization code to hand back to the client via its redirect.
type AuthorizeHandler struct {
	AuthorizeService *service.AuthorizeService
}

type authorizeResponse struct {
	Code      string    `json:"code"`
	RequestID string    `json:"request_id"`
	State     string    `json:"state,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (h *AuthorizeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if ct := r.Header.Get("Content-Type"); ct != "" &&
		!strings.HasPrefix(ct, "application/x-www-form-urlencoded") {
		oauthx.ErrInvalidContentType.WriteError(w)
		return
	}

	if err := r.ParseForm(); err != nil {
		oauthx.ErrInvalidFormBody.WriteError(w)
		return
	}

	form := r.Form
	params := service.AuthorizeParams{
		TenantID:     r.PathValue("tenant"),
		ClientID:     strings.TrimSpace(form.Get("client_id")),
		UserID:       strings.TrimSpace(form.Get("user_id")),
		RedirectURI:  strings.TrimSpace(form.Get("redirect_uri")),
		ResponseType: strings.TrimSpace(form.Get("response_type")),
		Scope:        strings.TrimSpace(form.Get("scope")),
		Nonce:        strings.TrimSpace(form.Get("nonce")),
		State:        form.Get("state"),

		RequestedIDTokenClaims:  strings.Fields(form.Get("id_token_claims")),
		RequestedUserinfoClaims: strings.Fields(form.Get("userinfo_claims")),

		Authentication: authenticationFromForm(form.Get("amr"), form.Get("acr")),
	}

	if params.ClientID == "" || params.UserID == "" {
		oauthx.ErrInvalidRequest.WithDescription("client_id and user_id are required").WriteError(w)
		return
	}

	issued, err := h.AuthorizeService.IssueCode(r.Context(), params)
	if err != nil {
		oauthx.ErrorResponseFor(err).Write(w)
		return
	}

	oauthx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, authorizeResponse{
		Code:      issued.Code,
		RequestID: issued.RequestID,
		State:     params.State,
		ExpiresAt: issued.ExpiresAt,
	})
}

// authenticationFromForm records how the frontend authenticated the user.
// Authentication time is the request time; the frontend calls this
// endpoint as part of the login flow, not after.
func authenticationFromForm(amr, acr string) domain.Authentication {
	return domain.Authentication{
		Time:    time.Now(),
		Methods: strings.Fields(amr),
		ACR:     strings.TrimSpace(acr),
	}
}
