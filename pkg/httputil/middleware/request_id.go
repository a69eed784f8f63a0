package middleware

import (
	"context"
	"net/http"
	"regexp"

	"github.com/edgeflare/pgcrud/pkg/httputil"
	"github.com/google/uuid"
)

const RequestIDHeader = "X-Request-Id"

// clients may pass their own id as long as it is short and printable
var clientRequestID = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,128}$`)

// RequestID stores a request id in the context and echoes it in the
// X-Request-Id response header. An id already in the context or a well formed
// X-Request-Id request header is kept; otherwise a UUID is generated.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := httputil.RequestID(r)
		if reqID == "" {
			if h := r.Header.Get(RequestIDHeader); clientRequestID.MatchString(h) {
				reqID = h
			} else {
				reqID = uuid.New().String()
			}
		}

		ctx := context.WithValue(r.Context(), httputil.RequestIDCtxKey, reqID)
		w.Header().Set(RequestIDHeader, reqID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
