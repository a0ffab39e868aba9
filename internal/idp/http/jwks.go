package http

import (
	"net/http"

	"github.com/relayid/grantd/pkg/httpx"
	"github.com/relayid/grantd/pkg/jwtx"
)

// JWKSHandler exposes the signing keys' public halves so resource
// servers and federation partners can verify issued JWTs.
func JWKSHandler(keys *jwtx.KeyManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, keys.PublicJWKS())
	}
}
