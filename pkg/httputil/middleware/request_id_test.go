package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/edgeflare/pgcrud/pkg/httputil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestRequestID(t *testing.T) {
	echo := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(httputil.RequestID(r)))
	})

	t.Run("should generate a new request ID if none exists", func(t *testing.T) {
		w := httptest.NewRecorder()
		RequestID(echo).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "http://example.com/foo", nil))

		reqID := w.Result().Header.Get(RequestIDHeader)
		_, err := uuid.Parse(reqID)
		assert.NoError(t, err, "Response header X-Request-Id should be a valid UUID")
		assert.Equal(t, reqID, w.Body.String())
	})

	t.Run("should preserve existing request ID", func(t *testing.T) {
		existing := uuid.New().String()
		ctx := context.WithValue(context.Background(), httputil.RequestIDCtxKey, existing)
		w := httptest.NewRecorder()
		RequestID(echo).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "http://example.com/foo", nil).WithContext(ctx))

		assert.Equal(t, existing, w.Result().Header.Get(RequestIDHeader))
		assert.Equal(t, existing, w.Body.String())
	})

	t.Run("should accept a well formed client header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "http://example.com/foo", nil)
		req.Header.Set(RequestIDHeader, "trace-42")
		w := httptest.NewRecorder()
		RequestID(echo).ServeHTTP(w, req)

		assert.Equal(t, "trace-42", w.Body.String())
	})

	t.Run("should replace a malformed client header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "http://example.com/foo", nil)
		req.Header.Set(RequestIDHeader, "bad id\nwith newline")
		w := httptest.NewRecorder()
		RequestID(echo).ServeHTTP(w, req)

		_, err := uuid.Parse(w.Body.String())
		assert.NoError(t, err)
	})

	t.Run("should handle multiple requests independently", func(t *testing.T) {
		w1 := httptest.NewRecorder()
		RequestID(echo).ServeHTTP(w1, httptest.NewRequest(http.MethodGet, "http://example.com/foo1", nil))
		w2 := httptest.NewRecorder()
		RequestID(echo).ServeHTTP(w2, httptest.NewRequest(http.MethodGet, "http://example.com/foo2", nil))

		assert.NotEqual(t, w1.Body.String(), w2.Body.String(), "Request IDs should be different for different requests")
	})
}
