package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/relayid/grantd/internal/idp/service"
	"github.com/relayid/grantd/internal/idp/store"
	"github.com/relayid/grantd/pkg/httpx"
	"github.com/relayid/grantd/pkg/jwtx"
	"github.com/relayid/grantd/pkg/slogx"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	keys         *jwtx.KeyManager
	buildVersion string
	startTime    time.Time
	logger       *slog.Logger

	store              store.Store
	TokenService       *service.TokenService
	AuthorizeService   *service.AuthorizeService
	BackchannelService *service.BackchannelService
}

func NewRouter(
	keys *jwtx.KeyManager,
	buildVersion string,
	st store.Store,
	logger *slog.Logger,
) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		keys:         keys,
		buildVersion: buildVersion,
		startTime:    time.Now(),
		store:        st,
		logger:       logger,
	}

	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerOAuth2()
	r.registerBackchannel()
	r.registerSystem()
}

// ServeHTTP implements http.Handler and applies the global middleware
// chain around the mux.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerOAuth2() {
	// POST /token covers every grant type; limited by IP plus client_id
	// so one noisy client behind a NAT doesn't starve the rest.
	tokenHandler := &TokenHandler{TokenService: r.TokenService}
	r.Mux.Handle("POST /v1/tenants/{tenant}/oauth2/token",
		httpx.Chain(tokenHandler,
			httpx.RateLimitByIPAndFormField(httpx.StrictLimit, "client_id"),
		),
	)

	// POST /authorize is called by the trusted login frontend.
	authorizeHandler := &AuthorizeHandler{AuthorizeService: r.AuthorizeService}
	r.Mux.Handle("POST /v1/tenants/{tenant}/oauth2/authorize",
		httpx.Chain(authorizeHandler,
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)

	r.Mux.Handle("GET /.well-known/jwks.json",
		httpx.Chain(JWKSHandler(r.keys),
			httpx.RateLimitByIP(httpx.PublicLimit),
		),
	)
}

func (r *Router) registerBackchannel() {
	h := &BackchannelHandler{BackchannelService: r.BackchannelService}

	// bc-authorize is client-credentialed; strict limit keyed the same
	// way as the token endpoint.
	r.Mux.Handle("POST /v1/tenants/{tenant}/oauth2/bc-authorize",
		httpx.Chain(http.HandlerFunc(h.HandleRequest),
			httpx.RateLimitByIPAndFormField(httpx.StrictLimit, "client_id"),
		),
	)

	// Decision endpoints are called by the trusted frontend after the
	// user acted on their device.
	r.Mux.Handle("POST /v1/tenants/{tenant}/backchannel/{auth_req_id}/authorize",
		httpx.Chain(http.HandlerFunc(h.HandleAuthorize),
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)
	r.Mux.Handle("POST /v1/tenants/{tenant}/backchannel/{auth_req_id}/deny",
		httpx.Chain(http.HandlerFunc(h.HandleDeny),
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)
}

func (r *Router) registerSystem() {
	r.Mux.Handle("GET /livez",
		httpx.Chain(LivezHandler(r.startTime, r.buildVersion),
			httpx.RateLimitByIP(httpx.PublicLimit),
		),
	)
	r.Mux.Handle("GET /readyz",
		httpx.Chain(ReadyzHandler(r.startTime, r.buildVersion, r.store),
			httpx.RateLimitByIP(httpx.PublicLimit),
		),
	)
}
