package http

import (
	"net/http"
	"strings"

	"github.com/relayid/grantd/internal/idp/service"
	"github.com/relayid/grantd/pkg/oauthx"
)

// TokenHandler serves POST /v1/tenants/{tenant}/oauth2/token.
// Accepts application/x-www-form-urlencoded per RFC 6749. Grant type
// dispatch happens in the service registry; the handler only translates
// between the wire and the service types.
type TokenHandler struct {
	TokenService *service.TokenService
}

func (h *TokenHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
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
	req := service.TokenRequest{
		TenantID:     r.PathValue("tenant"),
		GrantType:    strings.TrimSpace(form.Get("grant_type")),
		ClientID:     strings.TrimSpace(form.Get("client_id")),
		ClientSecret: form.Get("client_secret"),
		Code:         strings.TrimSpace(form.Get("code")),
		RedirectURI:  strings.TrimSpace(form.Get("redirect_uri")),
		RefreshToken: form.Get("refresh_token"),
		Username:     strings.TrimSpace(form.Get("username")),
		Password:     form.Get("password"),
		Assertion:    strings.TrimSpace(form.Get("assertion")),
		AuthReqID:    strings.TrimSpace(form.Get("auth_req_id")),
		Scope:        strings.TrimSpace(form.Get("scope")),
	}

	issued, err := h.TokenService.Exchange(r.Context(), req)
	if err != nil {
		oauthx.ErrorResponseFor(err).Write(w)
		return
	}

	oauthx.NewTokenResponse(oauthx.TokenResponse{
		AccessToken:  issued.Token.AccessToken.Value,
		TokenType:    "Bearer",
		ExpiresIn:    int64(issued.ExpiresIn.Seconds()),
		RefreshToken: issued.RefreshValue,
		IDToken:      issued.Token.IDToken,
		Scope:        strings.Join(issued.Token.Grant.Scopes, " "),
	}).Write(w)
}
