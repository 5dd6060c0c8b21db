package httpmiddleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

const (
	// HeaderRequestID carries the request id in both directions.
	HeaderRequestID = "X-Request-ID"
	// HeaderCorrelationID is accepted as a fallback from upstream proxies.
	HeaderCorrelationID = "X-Correlation-ID"

	maxRequestIDLen = 64
)

type ctxRequestID struct{}

// RequestIDFromContext returns the request id, or "" outside a request.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(ctxRequestID{}).(string)
	return id
}

// RequestID tags every request with an id taken from X-Request-ID or
// X-Correlation-ID when it is a safe token, otherwise a fresh UUID.
func RequestID() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := incomingRequestID(r.Header)
			if id == "" {
				id = uuid.NewString()
			}
			w.Header().Set(HeaderRequestID, id)
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxRequestID{}, id)))
		})
	}
}

func incomingRequestID(h http.Header) string {
	for _, name := range [...]string{HeaderRequestID, HeaderCorrelationID} {
		if id := h.Get(name); safeToken(id) {
			return id
		}
	}
	return ""
}

// safeToken accepts ids that can go into log fields and headers unescaped.
func safeToken(s string) bool {
	if s == "" || len(s) > maxRequestIDLen {
		return false
	}
	for _, c := range []byte(s) {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '-', c == '_', c == '.', c == ':':
		default:
			return false
		}
	}
	return true
}
