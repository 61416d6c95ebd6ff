package middleware

import (
	"context"
	"net/http"

	"toolwatch/pkg/uid"
)

type ctxKey int

const requestIDKey ctxKey = iota

// maxRequestIDLen bounds client-supplied request ids.
const maxRequestIDLen = 128

// RequestID propagates a well-formed X-Request-ID from the caller, or assigns
// a fresh UUID, and echoes it on the response.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if !wellFormedID(id) {
			id = uid.New()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

// wellFormedID accepts 1..128 characters from [A-Za-z0-9._:-] so ids are safe
// to echo into headers and log lines.
func wellFormedID(id string) bool {
	if id == "" || len(id) > maxRequestIDLen {
		return false
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '-', c == '_', c == '.', c == ':':
		default:
			return false
		}
	}
	return true
}

// GetRequestID returns the request id stored by RequestID, or "".
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}
