package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"net/http"
	"strings"

	"helios-hq/relay/pkg/proxy"
	"helios-hq/relay/pkg/proxy/types"
)

// Credential maps one accepted API key to its principal and tenant.
type Credential struct {
	// Key is the accepted bearer token.
	Key string `yaml:"key"`

	// PrincipalID identifies the caller.
	PrincipalID string `yaml:"principal_id"`

	// TenantID groups principals.
	TenantID string `yaml:"tenant_id"`
}

// Auth extracts and verifies the bearer credential, attaching the caller
// identity to the context. This is the full extent of authentication in
// the gateway; policy decisions beyond identity are out of scope.
//
// Key comparison is constant-time over a digest so key length is not
// observable.
type Auth struct {
	byDigest map[[32]byte]Identity
}

// NewAuth indexes the accepted credentials.
func NewAuth(credentials []Credential) *Auth {
	byDigest := make(map[[32]byte]Identity, len(credentials))
	for _, c := range credentials {
		byDigest[sha256.Sum256([]byte(c.Key))] = Identity{
			PrincipalID: c.PrincipalID,
			TenantID:    c.TenantID,
		}
	}
	return &Auth{byDigest: byDigest}
}

// Middleware rejects requests without a valid bearer token.
func (a *Auth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := GetRequestID(r.Context())

		header := r.Header.Get("Authorization")
		if header == "" {
			errResp := types.NewError(types.ErrorTypeAuthentication,
				"Missing Authorization header.", types.CodeMissingAuth, requestID)
			proxy.WriteErrorResponse(w, errResp)
			return
		}

		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			errResp := types.NewError(types.ErrorTypeAuthentication,
				"Authorization header must use the Bearer scheme.", types.CodeInvalidAuth, requestID)
			proxy.WriteErrorResponse(w, errResp)
			return
		}

		identity, ok := a.lookup(token)
		if !ok {
			errResp := types.NewError(types.ErrorTypeAuthentication,
				"Invalid API key.", types.CodeInvalidAuth, requestID)
			proxy.WriteErrorResponse(w, errResp)
			return
		}

		next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), identity)))
	})
}

func (a *Auth) lookup(token string) (Identity, bool) {
	digest := sha256.Sum256([]byte(token))
	for stored, identity := range a.byDigest {
		if subtle.ConstantTimeCompare(stored[:], digest[:]) == 1 {
			return identity, true
		}
	}
	return Identity{}, false
}
