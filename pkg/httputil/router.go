package httputil

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Middleware wraps an http.Handler to modify or enhance its behavior.
type Middleware func(http.Handler) http.Handler

// RouterOptions configures a Router.
type RouterOptions func(*Router)

// Router registers method-qualified routes on an http.ServeMux and wraps each
// of them with the router's middleware.
type Router struct {
	mux        *http.ServeMux
	server     *http.Server
	logger     *zap.Logger
	prefix     string
	middleware []Middleware
	mu         sync.RWMutex
}

func NewRouter(opts ...RouterOptions) *Router {
	r := &Router{
		mux: http.NewServeMux(),
		server: &http.Server{
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// WithServerOptions applies custom http.Server settings.
func WithServerOptions(opts ...func(*http.Server)) RouterOptions {
	return func(r *Router) {
		for _, opt := range opts {
			opt(r.server)
		}
	}
}

func WithLogger(logger *zap.Logger) RouterOptions {
	return func(r *Router) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithTLS serves HTTPS with the given key pair.
func WithTLS(cert tls.Certificate) RouterOptions {
	return func(r *Router) {
		r.server.TLSConfig = &tls.Config{
			MinVersion:   tls.VersionTLS12,
			Certificates: []tls.Certificate{cert},
		}
	}
}

// Use appends middleware. They run in the order added, for routes registered afterwards.
func (r *Router) Use(mw Middleware, additional ...Middleware) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.middleware = append(r.middleware, mw)
	r.middleware = append(r.middleware, additional...)
}

// Group returns a sub-router sharing the mux, rooted at prefix, inheriting
// the current middleware.
func (r *Router) Group(prefix string) *Router {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return &Router{
		mux:        r.mux,
		server:     r.server,
		logger:     r.logger,
		middleware: slices.Clone(r.middleware),
		prefix:     r.prefix + prefix,
	}
}

// Handle registers handler for "METHOD /pattern" using the Go 1.22 mux
// patterns. On a group with prefix /p, the route becomes "METHOD /p/pattern".
// It panics on a pattern without a method, as http.ServeMux does on conflicts.
func (r *Router) Handle(methodPattern string, handler http.Handler) {
	method, pattern, ok := strings.Cut(methodPattern, " ")
	if !ok || method == "" || !strings.HasPrefix(pattern, "/") {
		panic(fmt.Sprintf("httputil: invalid method pattern %q", methodPattern))
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	h := handler
	for i := len(r.middleware) - 1; i >= 0; i-- {
		h = r.middleware[i](h)
	}
	r.mux.Handle(method+" "+r.prefix+pattern, h)
}

func (r *Router) HandleFunc(methodPattern string, fn http.HandlerFunc) {
	r.Handle(methodPattern, fn)
}

// Handler returns the root handler serving every registered route.
func (r *Router) Handler() http.Handler {
	return r.mux
}

// ListenAndServe serves HTTPS when WithTLS was given, HTTP otherwise.
func (r *Router) ListenAndServe(addr string) error {
	r.server.Addr = addr
	r.server.Handler = r.mux

	if r.server.TLSConfig != nil {
		r.logger.Info("starting server", zap.String("addr", addr), zap.Bool("tls", true))
		return r.server.ListenAndServeTLS("", "")
	}
	r.logger.Info("starting server", zap.String("addr", addr))
	return r.server.ListenAndServe()
}

func (r *Router) Shutdown(ctx context.Context) error {
	r.logger.Info("shutting down server")
	return r.server.Shutdown(ctx)
}
