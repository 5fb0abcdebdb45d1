package handler

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"

	"github.com/averix/storefront-checkout/internal/domain/auth"
)

// APIKeyHeader carries the caller's API key.
const APIKeyHeader = "X-Api-Key"

type userIDKey struct{}

// UserID returns the acting user resolved by the API-key middleware, or the
// empty string when the request was not authenticated.
func UserID(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey{}).(string)
	return id
}

func withUserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, userIDKey{}, id)
}

// APIKeyAuth authenticates requests by HMAC-hashing the presented key with a
// server-side pepper and looking the digest up in storage. The key resolves
// to the storefront user it acts for.
type APIKeyAuth struct {
	keys   auth.Repository
	pepper []byte
}

// NewAPIKeyAuth constructs the middleware with the key repository and pepper.
func NewAPIKeyAuth(keys auth.Repository, pepper string) *APIKeyAuth {
	return &APIKeyAuth{keys: keys, pepper: []byte(pepper)}
}

// HashKey computes the storable digest for a raw API key.
func (a *APIKeyAuth) HashKey(key string) string {
	mac := hmac.New(sha256.New, a.pepper)
	mac.Write([]byte(key))
	return hex.EncodeToString(mac.Sum(nil))
}

// Wrap authenticates the request before passing it on. The digest lookup is
// followed by a constant-time comparison so a stale or wrong row from the
// repository cannot open a timing side-channel.
func (a *APIKeyAuth) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(APIKeyHeader)
		if key == "" {
			writeError(w, r, http.StatusUnauthorized, "api key required")
			return
		}

		digest := a.HashKey(key)
		info, err := a.keys.FindByHash(r.Context(), digest)
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, "unauthorized")
			return
		}

		stored, err := hex.DecodeString(info.KeyHash)
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, "unauthorized")
			return
		}
		computed, _ := hex.DecodeString(digest)
		if subtle.ConstantTimeCompare(computed, stored) != 1 {
			writeError(w, r, http.StatusUnauthorized, "unauthorized")
			return
		}

		next.ServeHTTP(w, r.WithContext(withUserID(r.Context(), info.UserID)))
	})
}
