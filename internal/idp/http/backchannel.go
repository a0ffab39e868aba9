package http

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/relayid/grantd/internal/idp/service"
	"github.com/relayid/grantd/pkg/httpx"
	"github.com/relayid/grantd/pkg/oauthx"
)

// BackchannelHandler serves the CIBA endpoints: the client-facing
// bc-authorize request and the frontend-facing decision endpoints. Token
// redemption goes through the regular token endpoint.
type BackchannelHandler struct {
	BackchannelService *service.BackchannelService
}

// HandleRequest serves POST /v1/tenants/{tenant}/oauth2/bc-authorize.
func (h *BackchannelHandler) HandleRequest(w http.ResponseWriter, r *http.Request) {
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
	params := service.BackchannelRequestParams{
		TenantID:     r.PathValue("tenant"),
		ClientID:     strings.TrimSpace(form.Get("client_id")),
		ClientSecret: form.Get("client_secret"),
		Scope:        strings.TrimSpace(form.Get("scope")),
		Hints: service.CibaHints{
			LoginHint:      strings.TrimSpace(form.Get("login_hint")),
			LoginHintToken: strings.TrimSpace(form.Get("login_hint_token")),
			IDTokenHint:    strings.TrimSpace(form.Get("id_token_hint")),
		},
		BindingMessage: form.Get("binding_message"),
		UserCode:       strings.TrimSpace(form.Get("user_code")),
	}

	if v := strings.TrimSpace(form.Get("requested_expiry")); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil || seconds <= 0 {
			oauthx.ErrInvalidRequest.WithDescription("requested_expiry must be a positive integer").WriteError(w)
			return
		}
		params.RequestedExpiry = time.Duration(seconds) * time.Second
	}

	auth, err := h.BackchannelService.RequestAuthorization(r.Context(), params)
	if err != nil {
		oauthx.ErrorResponseFor(err).Write(w)
		return
	}

	oauthx.NewBackchannelResponse(oauthx.BackchannelAuthResponse{
		AuthReqID: auth.AuthReqID,
		ExpiresIn: int64(auth.ExpiresIn.Seconds()),
		Interval:  int64(auth.Interval.Seconds()),
	}).Write(w)
}

// HandleAuthorize serves POST /v1/tenants/{tenant}/backchannel/{auth_req_id}/authorize.
// Called by the trusted frontend once the user approved on their device.
func (h *BackchannelHandler) HandleAuthorize(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, h.BackchannelService.Authorize)
}

// HandleDeny serves POST /v1/tenants/{tenant}/backchannel/{auth_req_id}/deny.
func (h *BackchannelHandler) HandleDeny(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, h.BackchannelService.Deny)
}

func (h *BackchannelHandler) decide(
	w http.ResponseWriter,
	r *http.Request,
	decision func(ctx context.Context, tenantID, authReqID string) error,
) {
	tenantID := r.PathValue("tenant")
	authReqID := r.PathValue("auth_req_id")
	if authReqID == "" {
		oauthx.ErrInvalidRequest.WithDescription("auth_req_id is required").WriteError(w)
		return
	}

	if err := decision(r.Context(), tenantID, authReqID); err != nil {
		oauthx.ErrorResponseFor(err).Write(w)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
