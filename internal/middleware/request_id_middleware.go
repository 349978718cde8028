package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

const (
	RequestIDKey    contextKey = "requestID"
	RequestIDHeader            = "X-Request-Id"
)

// RequestIDMiddleware tags every request with an id, honoring one the
// client already sent, and echoes it back so client logs and server
// logs can be lined up.
func RequestIDMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(RequestIDHeader)
			if id == "" {
				id = uuid.New().String()
			}
			w.Header().Set(RequestIDHeader, id)

			ctx := context.WithValue(r.Context(), RequestIDKey, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func GetRequestID(r *http.Request) string {
	id, ok := r.Context().Value(RequestIDKey).(string)
	if !ok {
		return ""
	}
	return id
}
