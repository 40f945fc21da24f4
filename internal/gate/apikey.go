package gate

import (
	"crypto/subtle"
	"net/http"

	"fastgeoapi/internal/config"
)

// APIKeyHeader carries the shared global key.
const APIKeyHeader = "X-API-KEY"

// APIKeyValidator admits requests presenting the single global key.
type APIKeyValidator struct {
	key []byte
}

func NewAPIKeyValidator(key string) *APIKeyValidator {
	return &APIKeyValidator{key: []byte(key)}
}

func (v *APIKeyValidator) Scheme() config.Scheme { return config.SchemeAPIKey }

func (v *APIKeyValidator) Evaluate(r *http.Request) Decision {
	got := r.Header.Get(APIKeyHeader)
	if got == "" {
		return noCredential(ReasonNoAPIKey)
	}
	if subtle.ConstantTimeCompare([]byte(got), v.key) != 1 {
		return invalid(ReasonInvalidAPIKey, nil)
	}
	return allow(ReasonValidCredential, &Principal{Label: "global"})
}
