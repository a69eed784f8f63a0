package middleware

import (
	"context"
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/edgeflare/pgcrud/pkg/httputil"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ResponseRecorder wraps http.ResponseWriter to capture the status code and
// the number of bytes written.
type ResponseRecorder struct {
	http.ResponseWriter
	StatusCode  int
	Bytes       int
	wroteHeader bool
}

func NewResponseRecorder(w http.ResponseWriter) *ResponseRecorder {
	return &ResponseRecorder{ResponseWriter: w, StatusCode: http.StatusOK}
}

func (rr *ResponseRecorder) WriteHeader(statusCode int) {
	if !rr.wroteHeader {
		rr.StatusCode = statusCode
		rr.wroteHeader = true
	}
	rr.ResponseWriter.WriteHeader(statusCode)
}

func (rr *ResponseRecorder) Write(b []byte) (int, error) {
	rr.wroteHeader = true
	n, err := rr.ResponseWriter.Write(b)
	rr.Bytes += n
	return n, err
}

// LoggerFromContext returns the request-scoped logger set by the logger
// middleware, or fallback.
func LoggerFromContext(ctx context.Context, fallback *zap.Logger) *zap.Logger {
	if l, ok := ctx.Value(httputil.LogEntryCtxKey).(*zap.Logger); ok {
		return l
	}
	return fallback
}

// LoggerOptions defines configuration for the logger middleware.
type LoggerOptions struct {
	Logger *zap.Logger
	Format func(reqID string, rec *ResponseRecorder, r *http.Request, latency time.Duration) []zap.Field
}

func defaultFormat(reqID string, rec *ResponseRecorder, r *http.Request, latency time.Duration) []zap.Field {
	return []zap.Field{
		zap.String("req_id", reqID),
		zap.Int("status", rec.StatusCode),
		zap.String("method", r.Method),
		zap.String("host", r.Host),
		zap.String("url", r.URL.String()),
		zap.String("remote_addr", r.RemoteAddr),
		zap.String("user_agent", r.UserAgent()),
		zap.Int("bytes", rec.Bytes),
		zap.Duration("latency", latency),
	}
}

// LoggerWithOptions logs one "response" entry per request and stores a
// logger tagged with the request id in the context. Server errors are logged
// at error level.
func LoggerWithOptions(options *LoggerOptions) func(http.Handler) http.Handler {
	opts := LoggerOptions{}
	if options != nil {
		opts = *options
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Format == nil {
		opts.Format = defaultFormat
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := r.Context().Value(httputil.LogEntryCtxKey).(*zap.Logger); ok {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			reqID := httputil.RequestID(r)
			if reqID == "" {
				reqID = uuid.Nil.String()
			}

			rec := NewResponseRecorder(w)
			ctx := context.WithValue(r.Context(), httputil.LogEntryCtxKey, opts.Logger.With(zap.String("req_id", reqID)))
			next.ServeHTTP(rec, r.WithContext(ctx))

			fields := opts.Format(reqID, rec, r, time.Since(start))
			if rec.StatusCode >= http.StatusInternalServerError {
				opts.Logger.Error("response", fields...)
				return
			}
			opts.Logger.Info("response", fields...)
		})
	}
}

// Recover turns a panicking handler into a 500 response and logs the panic.
func Recover(logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if v := recover(); v != nil {
					if v == http.ErrAbortHandler {
						panic(v)
					}
					LoggerFromContext(r.Context(), logger).Error("handler panicked",
						zap.String("panic", fmt.Sprint(v)),
						zap.ByteString("stack", debug.Stack()))
					httputil.Error(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
