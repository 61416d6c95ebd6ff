package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"toolwatch/pkg/apierror"
)

// APIKey guards producer endpoints. The key is read from X-API-Key or an
// Authorization bearer token. With no keys configured every request passes.
func APIKey(keys []string) func(http.Handler) http.Handler {
	valid := make([][]byte, 0, len(keys))
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			valid = append(valid, []byte(k))
		}
	}

	return func(next http.Handler) http.Handler {
		if len(valid) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
					key = strings.TrimPrefix(auth, "Bearer ")
				}
			}
			if key == "" {
				writeError(w, apierror.Unauthorized("Authentication required. Use the X-API-Key header."))
				return
			}
			if !isValidKey([]byte(key), valid) {
				writeError(w, apierror.Unauthorized("Invalid API key"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeError(w http.ResponseWriter, err *apierror.Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.StatusCode)
	w.Write(err.ToJSON())
}

func isValidKey(key []byte, validKeys [][]byte) bool {
	ok := 0
	for _, valid := range validKeys {
		ok |= subtle.ConstantTimeCompare(key, valid)
	}
	return ok == 1
}
