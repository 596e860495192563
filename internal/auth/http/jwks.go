package http

import (
	"net/http"

	"github.com/aussiebroadwan/stepup/pkg/authsdk"
	"github.com/aussiebroadwan/stepup/pkg/httpx"
	"github.com/aussiebroadwan/stepup/pkg/jwtx"
)

// JWKSHandler publishes the public step-up signing keys. The set is empty
// when tokens are signed with a shared HS256 secret.
//
//	@Summary		Get JWKS
//	@Description	Returns the JSON Web Key Set used to verify step-up tokens.
//	@Tags			well-known
//	@Produce		json
//	@Success		200	{object}	authsdk.JWKSResponse	"The JSON Web Key Set"
//	@Router			/.well-known/jwks.json [get].
func JWKSHandler(keys *jwtx.KeySet) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, authsdk.JWKSResponse(keys.PublicJWKS()))
	}
}
